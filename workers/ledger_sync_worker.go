package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"pft-node-service/models"
	"pft-node-service/services"

	"gorm.io/gorm"
)

// LedgerSyncClient pulls transaction records from the external ledger
// client and hands them to the ingest pipeline. The ledger client presents
// records at-least-once; the pipeline's dedup absorbs replays.
type LedgerSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
	Ingest     *services.IngestService
}

func NewLedgerSyncClient(db *gorm.DB, ingest *services.IngestService) *LedgerSyncClient {
	baseURL := os.Getenv("LEDGER_CLIENT_URL")
	if baseURL == "" {
		log.Fatal("LEDGER_CLIENT_URL environment variable is required")
	}
	token := os.Getenv("SERVICE_TOKEN")
	if token == "" {
		log.Fatal("SERVICE_TOKEN environment variable is required for ledger sync")
	}

	return &LedgerSyncClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		Ingest:  ingest,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetTransactionsSince fetches validated transactions with a ledger index
// greater than minLedger.
func (c *LedgerSyncClient) GetTransactionsSince(ctx context.Context, minLedger int64) ([]*models.Transaction, error) {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/transactions", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("min_ledger", strconv.FormatInt(minLedger, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call ledger client: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ledger client returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Transactions []*models.Transaction `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode ledger client response: %w", err)
	}

	return response.Transactions, nil
}

// lastIngestedLedger recovers the sync watermark from persisted state, so
// restarts re-fetch at most the tail (duplicates are absorbed anyway).
func (c *LedgerSyncClient) lastIngestedLedger() int64 {
	var maxLedger int64
	err := c.DB.Model(&models.Transaction{}).
		Select("COALESCE(MAX(ledger_index), 0)").
		Scan(&maxLedger).Error
	if err != nil {
		log.Printf("⚠️  Could not read ledger watermark, starting from 0: %v", err)
		return 0
	}
	return maxLedger
}

// PollLedger polls the ledger client and feeds new transactions to the
// ingest pipeline.
func PollLedger(ctx context.Context, client *LedgerSyncClient, pollInterval time.Duration) {
	log.Println("Starting ledger polling...")
	watermark := client.lastIngestedLedger()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Ledger polling stopped.")
			return
		case <-ticker.C:
			transactions, err := client.GetTransactionsSince(ctx, watermark)
			if err != nil {
				log.Printf("❌ Error polling ledger client: %v", err)
				continue
			}

			if len(transactions) == 0 {
				continue
			}

			outcome, err := client.Ingest.IngestBatch(transactions)
			if err != nil {
				log.Printf("❌ Failed to ingest %d transaction(s): %v", len(transactions), err)
				// Do NOT advance the watermark on failure — retry same window next tick
				continue
			}

			newCount := 0
			for _, inserted := range outcome {
				if inserted {
					newCount++
				}
			}

			for _, tx := range transactions {
				if tx.LedgerIndex > watermark {
					watermark = tx.LedgerIndex
				}
			}
			log.Printf("📥 Ingested %d transaction(s) from ledger client, %d new (watermark %d)",
				len(transactions), newCount, watermark)
		}
	}
}
