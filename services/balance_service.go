// services/balance_service.go
package services

import (
	"errors"
	"log"
	"time"

	"pft-node-service/models"
	"pft-node-service/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BalanceService struct {
	DB *gorm.DB
}

func NewBalanceService(db *gorm.DB) *BalanceService {
	return &BalanceService{DB: db}
}

// ApplyTransfer applies one successful transfer to the running balances:
// sender down, destination up, creating zero-initialized rows as needed.
// It must run inside the same database transaction as the ingest insert —
// projection only happens on first-ever ingestion of a hash, which is what
// makes the delta exactly-once system-wide.
func ApplyTransfer(tx *gorm.DB, record *models.MemoRecord) error {
	if record.Amount == nil || record.TransactionResult != TxResultSuccess {
		return nil
	}
	if record.Destination == "" {
		return nil
	}

	now := time.Now().UTC()
	deltas := []models.Balance{
		{Account: record.Account, Balance: -*record.Amount, LastTxHash: record.Hash, UpdatedAt: now},
		{Account: record.Destination, Balance: *record.Amount, LastTxHash: record.Hash, UpdatedAt: now},
	}

	// One upsert per party: the database's row lock on the balance row
	// serializes concurrent transfers touching the same account. The two
	// deltas go in separate statements so a self-payment never hits the
	// same row twice within one INSERT.
	for _, delta := range deltas {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"balance":      gorm.Expr("balances.balance + EXCLUDED.balance"),
				"last_tx_hash": gorm.Expr("EXCLUDED.last_tx_hash"),
				"updated_at":   gorm.Expr("EXCLUDED.updated_at"),
			}),
		}).Create(&delta).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// GetBalance returns the current balance row for an account, or a
// zero-valued row if the account has never been part of a transfer.
func (s *BalanceService) GetBalance(account string) (*models.Balance, error) {
	var balance models.Balance
	err := s.DB.First(&balance, "account = ?", account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Balance{Account: account}, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// --- HTTP handlers ---

// GetBalanceByAccount serves GET /balances/:account
func (s *BalanceService) GetBalanceByAccount(c *fiber.Ctx) error {
	account := c.Params("account")
	if !utils.IsValidAddress(account) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid account address"})
	}

	balance, err := s.GetBalance(account)
	if err != nil {
		log.Printf("DB error fetching balance for %s: %v", account, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch balance"})
	}
	return c.JSON(balance)
}
