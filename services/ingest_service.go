// services/ingest_service.go
package services

import (
	"fmt"
	"log"
	"time"

	"pft-node-service/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultIngestBatchSize bounds how many transactions share one database
// transaction during batch ingest, which in turn bounds how many balance
// rows a single unit of work can hold locks on.
const DefaultIngestBatchSize = 100

type IngestService struct {
	DB        *gorm.DB
	BatchSize int
}

func NewIngestService(db *gorm.DB) *IngestService {
	return &IngestService{DB: db, BatchSize: DefaultIngestBatchSize}
}

// Ingest persists one transaction record keyed by hash. A hash that already
// exists is a no-op and reports inserted=false — existing rows are never
// touched. On a fresh insert the memo projection and any balance delta are
// applied synchronously inside the same database transaction, so a
// transaction row is never visible without its derived state.
func (s *IngestService) Ingest(record *models.Transaction) (bool, error) {
	inserted := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		newRow, err := insertAndProject(tx, record)
		if err != nil {
			return err
		}
		inserted = newRow
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to ingest transaction %s: %w", record.Hash, err)
	}
	return inserted, nil
}

// IngestBatch ingests many transactions in hash order, chunked into
// bounded database transactions. The returned map reports, per candidate
// hash, whether this call committed it — pre-existing rows come back
// false, so callers can log "N new" without a second query and without
// double-counting collisions.
func (s *IngestService) IngestBatch(records []*models.Transaction) (map[string]bool, error) {
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultIngestBatchSize
	}

	outcome := make(map[string]bool, len(records))
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		err := s.DB.Transaction(func(tx *gorm.DB) error {
			for _, record := range chunk {
				newRow, err := insertAndProject(tx, record)
				if err != nil {
					return err
				}
				// A hash repeated within one call stays true once any
				// occurrence committed it.
				outcome[record.Hash] = outcome[record.Hash] || newRow
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to ingest batch of %d transactions: %w", len(chunk), err)
		}
	}
	return outcome, nil
}

// insertAndProject is the atomic unit: dedup insert, then projection and
// balance application for rows that were actually new.
func insertAndProject(tx *gorm.DB, record *models.Transaction) (bool, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hash"}},
		DoNothing: true,
	}).Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		// Duplicate hash: defined no-op, no derived-state work.
		return false, nil
	}

	memoRecord := ProjectMemoRecord(record)
	if memoRecord == nil {
		// Unparseable body or metadata: the transaction row still lands.
		return true, nil
	}

	// Re-projection of the same hash replaces the derived row rather than
	// appending.
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hash"}},
		UpdateAll: true,
	}).Create(memoRecord).Error
	if err != nil {
		return false, err
	}

	if err := ApplyTransfer(tx, memoRecord); err != nil {
		return false, err
	}
	return true, nil
}

// --- HTTP handlers ---

// IngestTransactions serves POST /transactions — the ledger client hands us
// batches of raw transaction records, at-least-once across restarts.
func (s *IngestService) IngestTransactions(c *fiber.Ctx) error {
	var req struct {
		Transactions []*models.Transaction `json:"transactions"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if len(req.Transactions) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No transactions provided"})
	}
	for _, record := range req.Transactions {
		if record.Hash == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Transaction with empty hash"})
		}
	}

	outcome, err := s.IngestBatch(req.Transactions)
	if err != nil {
		log.Printf("❌ Batch ingest failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to ingest transactions"})
	}

	newCount := 0
	for _, inserted := range outcome {
		if inserted {
			newCount++
		}
	}
	log.Printf("📥 Ingested %d transaction(s), %d new", len(req.Transactions), newCount)

	return c.JSON(fiber.Map{
		"received": len(req.Transactions),
		"inserted": newCount,
		"outcome":  outcome,
	})
}
