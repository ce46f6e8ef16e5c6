// Package wallet keeps the per-user balance and its append-only transaction
// log. The balance is maintained incrementally; every mutation updates the
// balance row and appends a transaction inside one database transaction so
// the two cannot drift apart.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/elfein/storefront/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrValidation          = errors.New("validation")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
)

type Service struct {
	DB *gorm.DB
}

// ensure fetches the user's wallet, creating an empty one on first use.
func (s *Service) ensure(tx *gorm.DB, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w = models.Wallet{UserID: userID, Balance: decimal.Zero}
		if err := tx.Create(&w).Error; err != nil {
			return nil, err
		}
		return &w, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Service) Balance(ctx context.Context, userID uint) (decimal.Decimal, error) {
	var w models.Wallet
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

func (s *Service) Transactions(ctx context.Context, userID uint) ([]models.WalletTransaction, error) {
	var w models.Wallet
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var txs []models.WalletTransaction
	if err := s.DB.WithContext(ctx).
		Where("wallet_id = ?", w.ID).
		Order("created_at DESC, id DESC").
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// Credit adds amount to the wallet, logging a transaction tagged with the
// originating order when there is one.
func (s *Service) Credit(ctx context.Context, userID uint, amount decimal.Decimal, description, orderID string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: credit amount must be positive", ErrValidation)
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.ensure(tx, userID)
		if err != nil {
			return err
		}

		w.Balance = w.Balance.Add(amount).Round(2)
		if err := tx.Model(w).Update("balance", w.Balance).Error; err != nil {
			return err
		}

		return tx.Create(&models.WalletTransaction{
			WalletID:    w.ID,
			Type:        models.TransactionCredit,
			Amount:      amount,
			Description: description,
			OrderID:     orderID,
		}).Error
	})
}

// Debit removes amount from the wallet. A debit that would overdraw the
// balance is rejected without mutating anything.
func (s *Service) Debit(ctx context.Context, userID uint, amount decimal.Decimal, description, orderID string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: debit amount must be positive", ErrValidation)
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.ensure(tx, userID)
		if err != nil {
			return err
		}
		if w.Balance.LessThan(amount) {
			return ErrInsufficientBalance
		}

		w.Balance = w.Balance.Sub(amount).Round(2)
		if err := tx.Model(w).Update("balance", w.Balance).Error; err != nil {
			return err
		}

		return tx.Create(&models.WalletTransaction{
			WalletID:    w.ID,
			Type:        models.TransactionDebit,
			Amount:      amount,
			Description: description,
			OrderID:     orderID,
		}).Error
	})
}
