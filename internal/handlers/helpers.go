package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/elfein/storefront/internal/middleware/auth"
)

var errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")

// GetID reads the authenticated user id set by the auth middleware.
func GetID(c echo.Context) (uint, error) {
	id := auth.UserID(c)
	if id == 0 {
		return 0, errUnauthorized
	}
	return id, nil
}

func paramUint(c echo.Context, name string) (uint, error) {
	raw := c.Param(name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(v), nil
}

func queryInt(c echo.Context, name string) int {
	v, _ := strconv.Atoi(c.QueryParam(name))
	return v
}

// badRequestIf maps a known sentinel to 400 with its message; anything else
// stays an internal error.
func badRequestIf(err error, sentinels ...error) *echo.HTTPError {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return nil
}
