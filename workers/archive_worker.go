package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"pft-node-service/models"
	"pft-node-service/utils"

	"gorm.io/gorm"
)

// archiveChunkSize is how many transactions go into one archive object.
const archiveChunkSize = 1000

// ArchiveWorker exports raw transaction JSON to R2 object storage in
// ledger-index order, as cold history the relational store doesn't need to
// serve.
type ArchiveWorker struct {
	DB           *gorm.DB
	lastArchived int64
}

func NewArchiveWorker(db *gorm.DB) *ArchiveWorker {
	return &ArchiveWorker{DB: db}
}

// runOnce archives the next chunk of transactions past the watermark.
// Returns the number of transactions archived.
func (w *ArchiveWorker) runOnce() (int, error) {
	var transactions []models.Transaction
	err := w.DB.
		Where("ledger_index > ?", w.lastArchived).
		Order("ledger_index ASC").
		Limit(archiveChunkSize).
		Find(&transactions).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read transactions for archive: %w", err)
	}
	if len(transactions) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(transactions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal archive chunk: %w", err)
	}

	first := transactions[0].LedgerIndex
	last := transactions[len(transactions)-1].LedgerIndex
	key := fmt.Sprintf("ledger/%010d-%010d.json", first, last)

	if err := utils.UploadArchiveToR2(key, payload); err != nil {
		return 0, err
	}

	w.lastArchived = last
	return len(transactions), nil
}

// RunArchiver periodically uploads raw-ledger archive chunks until the
// context is cancelled.
func RunArchiver(ctx context.Context, worker *ArchiveWorker, interval time.Duration) {
	log.Println("Starting raw-ledger archiver...")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Raw-ledger archiver stopped.")
			return
		case <-ticker.C:
			archived, err := worker.runOnce()
			if err != nil {
				log.Printf("❌ Archive pass failed: %v", err)
				continue
			}
			if archived > 0 {
				log.Printf("📦 Archived %d transaction(s) up to ledger %d", archived, worker.lastArchived)
			}
		}
	}
}
