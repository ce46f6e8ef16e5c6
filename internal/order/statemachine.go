package order

import (
	"errors"
	"fmt"

	"github.com/elfein/storefront/internal/models"
)

// statusFlow is the main fulfillment track. Admin updates move exactly one
// step forward along it; skipping and reversing are rejected.
var statusFlow = []models.ItemStatus{
	models.ItemPending,
	models.ItemShipped,
	models.ItemOutForDelivery,
	models.ItemDelivered,
}

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminalStatus    = errors.New("status can no longer be changed")
)

func flowIndex(s models.ItemStatus) int {
	for i, v := range statusFlow {
		if v == s {
			return i
		}
	}
	return -1
}

// terminal statuses are immutable to further admin edits. The return flow
// (returnRequested -> returned|rejected) is driven by its own endpoints,
// never by the generic status update.
func terminal(s models.ItemStatus) bool {
	switch s {
	case models.ItemDelivered, models.ItemCancelled, models.ItemReturned, models.ItemFailed:
		return true
	}
	return false
}

// ValidateAdminTransition checks an admin-requested item status change.
// "returned" and "rejected" are system-controlled outcomes of the return
// queue and are never accepted here; "cancelled" is reachable only from
// "pending".
func ValidateAdminTransition(current, next models.ItemStatus) error {
	switch next {
	case models.ItemReturned, models.ItemRejected, models.ItemReturnRequested, models.ItemFailed:
		return fmt.Errorf("%w: %s cannot be set directly", ErrInvalidTransition, next)
	}
	if terminal(current) || current == models.ItemReturnRequested {
		return fmt.Errorf("%w: item is %s", ErrTerminalStatus, current)
	}
	if next == models.ItemCancelled {
		if current != models.ItemPending {
			return fmt.Errorf("%w: cancel only from pending, item is %s", ErrInvalidTransition, current)
		}
		return nil
	}
	from, to := flowIndex(current), flowIndex(next)
	if from < 0 || to < 0 || to != from+1 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	return nil
}

// Rollup derives the order-level status from the item statuses. The rule
// order is deliberate and load-bearing: earlier rules win.
func Rollup(items []models.OrderItem) models.OrderStatus {
	if len(items) == 0 {
		return models.OrderPending
	}

	all := func(s models.ItemStatus) bool {
		for _, it := range items {
			if it.OrderStatus != s {
				return false
			}
		}
		return true
	}
	any := func(s models.ItemStatus) bool {
		for _, it := range items {
			if it.OrderStatus == s {
				return true
			}
		}
		return false
	}

	switch {
	case all(models.ItemCancelled):
		return models.OrderCancelled
	case all(models.ItemReturned):
		return models.OrderReturned
	case any(models.ItemDelivered):
		return models.OrderDelivered
	case allIn(items, models.ItemReturned, models.ItemCancelled):
		return models.OrderReturned
	case any(models.ItemOutForDelivery):
		return models.OrderOutForDelivery
	case any(models.ItemShipped):
		return models.OrderShipped
	default:
		return models.OrderPending
	}
}

func allIn(items []models.OrderItem, set ...models.ItemStatus) bool {
	for _, it := range items {
		ok := false
		for _, s := range set {
			if it.OrderStatus == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// returnRollup is the narrower derivation used after a return is resolved:
// an order whose payable items all came back is returned, anything else
// stays delivered.
func returnRollup(items []models.OrderItem) models.OrderStatus {
	returned := true
	for _, it := range items {
		if it.OrderStatus == models.ItemCancelled {
			continue
		}
		if it.OrderStatus != models.ItemReturned {
			returned = false
			break
		}
	}
	if returned {
		return models.OrderReturned
	}
	return models.OrderDelivered
}
