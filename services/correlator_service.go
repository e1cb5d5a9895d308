// services/correlator_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"pft-node-service/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CorrelatorService struct {
	DB *gorm.DB
}

func NewCorrelatorService(db *gorm.DB) *CorrelatorService {
	return &CorrelatorService{DB: db}
}

// ResponseQuery describes a request→response correlation: a caller issued a
// request transaction and wants the system's reply to it.
type ResponseQuery struct {
	RequestingAccount  string    // account that sent the request
	DestinationAccount string    // account the request was addressed to
	RequestTime        time.Time // close time of the request transaction
	MemoType           string    // required memo type of the response
	MemoFormat         string    // optional
	MemoData           string    // optional
	RequireAfter       bool      // response must close strictly after the request
}

// FindResponse returns the earliest successful transaction sent back to the
// requesting account that matches the query, or nil when no response
// exists yet. Memo values containing '%' are treated as LIKE patterns.
func (s *CorrelatorService) FindResponse(query ResponseQuery) (*models.MemoRecord, error) {
	q := s.DB.Model(&models.MemoRecord{}).
		Where("account = ?", query.DestinationAccount).
		Where("destination = ?", query.RequestingAccount).
		Where("transaction_result = ?", TxResultSuccess)

	q = whereMemoField(q, "memo_type", query.MemoType)
	if query.MemoFormat != "" {
		q = whereMemoField(q, "memo_format", query.MemoFormat)
	}
	if query.MemoData != "" {
		q = whereMemoField(q, "memo_data", query.MemoData)
	}
	if query.RequireAfter {
		q = q.Where("datetime > ?", query.RequestTime)
	}

	var response models.MemoRecord
	err := q.Order("datetime ASC").First(&response).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up response: %w", err)
	}
	return &response, nil
}

func whereMemoField(q *gorm.DB, column, value string) *gorm.DB {
	if strings.Contains(value, "%") {
		return q.Where(column+" LIKE ?", value)
	}
	return q.Where(column+" = ?", value)
}

// RecordOutcome upserts the processing verdict for a hash. Re-evaluation
// overwrites the prior verdict and stamps a fresh review timestamp.
func (s *CorrelatorService) RecordOutcome(hash string, processed bool, ruleName string, responseTxHash *string, notes string) error {
	result := models.ProcessingResult{
		Hash:           hash,
		Processed:      processed,
		RuleName:       ruleName,
		ResponseTxHash: responseTxHash,
		Notes:          notes,
		ReviewedAt:     time.Now().UTC(),
	}
	err := s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"processed",
			"rule_name",
			"response_tx_hash",
			"notes",
			"reviewed_at",
		}),
	}).Create(&result).Error
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", hash, err)
	}
	return nil
}

// ListUnprocessed returns memo records with no recorded outcome or with
// processed=false, ordered by timestamp and paged. includeProcessed lifts
// the filter entirely.
func (s *CorrelatorService) ListUnprocessed(includeProcessed bool, descending bool, limit, offset int) ([]models.MemoRecord, error) {
	q := s.DB.Model(&models.MemoRecord{}).
		Joins("LEFT JOIN processing_results ON processing_results.hash = memo_records.hash")
	if !includeProcessed {
		q = q.Where("processing_results.hash IS NULL OR processing_results.processed = ?", false)
	}

	order := "memo_records.datetime ASC"
	if descending {
		order = "memo_records.datetime DESC"
	}
	q = q.Order(order)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var records []models.MemoRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list unprocessed transactions: %w", err)
	}
	return records, nil
}

// ProcessedOutcome is a processed verdict joined with its memo context, as
// served to the notification collaborator.
type ProcessedOutcome struct {
	Hash           string    `json:"hash"`
	RuleName       string    `json:"rule_name"`
	ResponseTxHash *string   `json:"response_tx_hash"`
	Notes          string    `json:"notes"`
	ReviewedAt     time.Time `json:"reviewed_at"`
	Account        string    `json:"account"`
	Destination    string    `json:"destination"`
	MemoType       string    `json:"memo_type"`
	MemoData       string    `json:"memo_data"`
}

// ListNewlyProcessed returns outcomes reviewed after the given watermark,
// oldest first, so the notification service can page forward through them.
func (s *CorrelatorService) ListNewlyProcessed(since time.Time) ([]ProcessedOutcome, error) {
	var outcomes []ProcessedOutcome
	err := s.DB.Model(&models.ProcessingResult{}).
		Select(`processing_results.hash, processing_results.rule_name,
			processing_results.response_tx_hash, processing_results.notes,
			processing_results.reviewed_at, memo_records.account,
			memo_records.destination, memo_records.memo_type, memo_records.memo_data`).
		Joins("JOIN memo_records ON memo_records.hash = processing_results.hash").
		Where("processing_results.processed = ?", true).
		Where("processing_results.reviewed_at > ?", since).
		Order("processing_results.reviewed_at ASC").
		Scan(&outcomes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list newly processed outcomes: %w", err)
	}
	return outcomes, nil
}

// ClearOutcomes removes processing results for the given hashes so the
// transactions get re-evaluated on the next pass.
func (s *CorrelatorService) ClearOutcomes(hashes []string) (int64, error) {
	if len(hashes) == 0 {
		return 0, nil
	}
	res := s.DB.Where("hash IN ?", hashes).Delete(&models.ProcessingResult{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear outcomes: %w", res.Error)
	}
	log.Printf("Cleared processing results for %d transaction(s)", res.RowsAffected)
	return res.RowsAffected, nil
}

// --- HTTP handlers ---

// GetUnprocessed serves GET /transactions/unprocessed
func (s *CorrelatorService) GetUnprocessed(c *fiber.Ctx) error {
	includeProcessed := c.QueryBool("include_processed", false)
	descending := strings.EqualFold(c.Query("order", "asc"), "desc")
	limit := c.QueryInt("limit", 100)
	offset := c.QueryInt("offset", 0)

	records, err := s.ListUnprocessed(includeProcessed, descending, limit, offset)
	if err != nil {
		log.Printf("DB error listing unprocessed transactions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list transactions"})
	}
	return c.JSON(fiber.Map{"transactions": records, "count": len(records)})
}

// Reprocess serves POST /transactions/reprocess
func (s *CorrelatorService) Reprocess(c *fiber.Ctx) error {
	var req struct {
		Hashes []string `json:"hashes" validate:"required"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if len(req.Hashes) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No hashes provided"})
	}

	cleared, err := s.ClearOutcomes(req.Hashes)
	if err != nil {
		log.Printf("DB error clearing outcomes: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to clear outcomes"})
	}
	return c.JSON(fiber.Map{"cleared": cleared})
}

// GetNotifications serves GET /outcomes/notifications?since=<RFC3339>
func (s *CorrelatorService) GetNotifications(c *fiber.Ctx) error {
	sinceParam := c.Query("since")
	if sinceParam == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing since parameter"})
	}
	since, err := time.Parse(time.RFC3339, sinceParam)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid since timestamp, expected RFC3339"})
	}

	outcomes, err := s.ListNewlyProcessed(since)
	if err != nil {
		log.Printf("DB error listing notifications: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list outcomes"})
	}
	return c.JSON(fiber.Map{"outcomes": outcomes, "count": len(outcomes)})
}
