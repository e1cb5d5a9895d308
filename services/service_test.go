package services

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"pft-node-service/models"
	"pft-node-service/utils"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Transaction{},
		&models.MemoRecord{},
		&models.Balance{},
		&models.ProcessingResult{},
		&models.AuthorizedAddress{},
		&models.ModerationAction{},
	))
	return db
}

type testTxOptions struct {
	hash        string
	account     string
	destination string
	amount      string // raw JSON fragment, e.g. `"1000000"` or an issued-currency object
	fee         string
	result      string
	closeTime   time.Time
	memoFormat  string
	memoType    string
	memoData    string
	noMemo      bool
}

func makeTransaction(t *testing.T, opts testTxOptions) *models.Transaction {
	t.Helper()

	body := map[string]interface{}{
		"Account":         opts.account,
		"TransactionType": "Payment",
	}
	if opts.destination != "" {
		body["Destination"] = opts.destination
	}
	if opts.amount != "" {
		body["Amount"] = json.RawMessage(opts.amount)
	}
	if opts.fee != "" {
		body["Fee"] = opts.fee
	}
	if !opts.noMemo {
		body["Memos"] = []map[string]interface{}{
			{
				"Memo": map[string]string{
					"MemoFormat": utils.TextToHex(opts.memoFormat),
					"MemoType":   utils.TextToHex(opts.memoType),
					"MemoData":   utils.TextToHex(opts.memoData),
				},
			},
		}
	}
	txJSON, err := json.Marshal(body)
	require.NoError(t, err)

	meta, err := json.Marshal(map[string]string{"TransactionResult": opts.result})
	require.NoError(t, err)

	closeTime := opts.closeTime
	if closeTime.IsZero() {
		closeTime = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	}

	return &models.Transaction{
		Hash:        opts.hash,
		LedgerIndex: 1000,
		CloseTime:   closeTime,
		TxJSON:      txJSON,
		Meta:        meta,
		Validated:   true,
	}
}

// issuedAmountJSON builds the issued-currency amount encoding.
func issuedAmountJSON(value string) string {
	return fmt.Sprintf(`{"currency":"PFT","issuer":"rnQUEEG8yyTKzVbbqAbVVsRSRtnVyrXTRv","value":%q}`, value)
}
