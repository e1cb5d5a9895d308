package services

import (
	"testing"
	"time"

	"pft-node-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedMemoRecord(t *testing.T, db *gorm.DB, hash, account, destination, memoType, result string, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.Transaction{
		Hash:        hash,
		LedgerIndex: 1,
		CloseTime:   at,
		TxJSON:      []byte(`{}`),
		Meta:        []byte(`{}`),
		Validated:   true,
	}).Error)
	require.NoError(t, db.Create(&models.MemoRecord{
		Hash:              hash,
		Account:           account,
		Destination:       destination,
		MemoType:          memoType,
		TransactionResult: result,
		Datetime:          at,
	}).Error)
}

func TestFindResponseReturnsEarliest(t *testing.T) {
	db := newTestDB(t)
	svc := NewCorrelatorService(db)

	requestTime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	nodeAccount := accountB
	userAccount := accountA

	// Three qualifying responses, seeded out of order.
	seedMemoRecord(t, db, "RESP2", nodeAccount, userAccount, "initiation_reward", TxResultSuccess, requestTime.Add(2*time.Hour))
	seedMemoRecord(t, db, "RESP1", nodeAccount, userAccount, "initiation_reward", TxResultSuccess, requestTime.Add(30*time.Minute))
	seedMemoRecord(t, db, "RESP3", nodeAccount, userAccount, "initiation_reward", TxResultSuccess, requestTime.Add(3*time.Hour))

	response, err := svc.FindResponse(ResponseQuery{
		RequestingAccount:  userAccount,
		DestinationAccount: nodeAccount,
		RequestTime:        requestTime,
		MemoType:           "initiation_reward",
		RequireAfter:       true,
	})
	require.NoError(t, err)
	require.NotNil(t, response)
	assert.Equal(t, "RESP1", response.Hash)
}

func TestFindResponseRequireAfter(t *testing.T) {
	db := newTestDB(t)
	svc := NewCorrelatorService(db)

	requestTime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	seedMemoRecord(t, db, "BEFORE", accountB, accountA, "initiation_reward", TxResultSuccess, requestTime.Add(-time.Hour))

	query := ResponseQuery{
		RequestingAccount:  accountA,
		DestinationAccount: accountB,
		RequestTime:        requestTime,
		MemoType:           "initiation_reward",
		RequireAfter:       true,
	}

	response, err := svc.FindResponse(query)
	require.NoError(t, err)
	assert.Nil(t, response)

	// Lifting the ordering requirement admits the earlier response.
	query.RequireAfter = false
	response, err = svc.FindResponse(query)
	require.NoError(t, err)
	require.NotNil(t, response)
	assert.Equal(t, "BEFORE", response.Hash)
}

func TestFindResponseIgnoresFailedAndMismatched(t *testing.T) {
	db := newTestDB(t)
	svc := NewCorrelatorService(db)

	requestTime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	seedMemoRecord(t, db, "FAILED", accountB, accountA, "initiation_reward", "tecUNFUNDED", requestTime.Add(time.Hour))
	seedMemoRecord(t, db, "WRONGTYPE", accountB, accountA, "proposal", TxResultSuccess, requestTime.Add(time.Hour))
	seedMemoRecord(t, db, "WRONGDEST", accountB, accountC, "initiation_reward", TxResultSuccess, requestTime.Add(time.Hour))

	response, err := svc.FindResponse(ResponseQuery{
		RequestingAccount:  accountA,
		DestinationAccount: accountB,
		RequestTime:        requestTime,
		MemoType:           "initiation_reward",
		RequireAfter:       true,
	})
	require.NoError(t, err)
	assert.Nil(t, response)
}

func TestFindResponseLikePattern(t *testing.T) {
	db := newTestDB(t)
	svc := NewCorrelatorService(db)

	requestTime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	seedMemoRecord(t, db, "TASK", accountB, accountA, "2025-03-01_12:15__AB12", TxResultSuccess, requestTime.Add(15*time.Minute))

	response, err := svc.FindResponse(ResponseQuery{
		RequestingAccount:  accountA,
		DestinationAccount: accountB,
		RequestTime:        requestTime,
		MemoType:           "2025-03-01%",
		RequireAfter:       true,
	})
	require.NoError(t, err)
	require.NotNil(t, response)
	assert.Equal(t, "TASK", response.Hash)
}

func TestRecordOutcomeUpsertsVerdict(t *testing.T) {
	db := newTestDB(t)
	svc := NewCorrelatorService(db)

	seedMemoRecord(t, db, "REQ1", accountA, accountB, "task_request", TxResultSuccess, time.Now().UTC())

	require.NoError(t, svc.RecordOutcome("REQ1", false, "task_request_rule", nil, "no response yet"))

	var first models.ProcessingResult
	require.NoError(t, db.First(&first, "hash = ?", "REQ1").Error)
	assert.False(t, first.Processed)

	responseHash := "RESP1"
	require.NoError(t, svc.RecordOutcome("REQ1", true, "task_request_rule", &responseHash, "matched"))

	var second models.ProcessingResult
	require.NoError(t, db.First(&second, "hash = ?", "REQ1").Error)
	assert.True(t, second.Processed)
	require.NotNil(t, second.ResponseTxHash)
	assert.Equal(t, "RESP1", *second.ResponseTxHash)
	assert.Equal(t, "matched", second.Notes)
	assert.False(t, second.ReviewedAt.Before(first.ReviewedAt))

	var count int64
	require.NoError(t, db.Model(&models.ProcessingResult{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestListUnprocessed(t *testing.T) {
	db := newTestDB(t)
	svc := NewCorrelatorService(db)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	seedMemoRecord(t, db, "NOVERDICT", accountA, accountB, "task_request", TxResultSuccess, base)
	seedMemoRecord(t, db, "PENDING", accountA, accountB, "task_request", TxResultSuccess, base.Add(time.Hour))
	seedMemoRecord(t, db, "DONE", accountA, accountB, "task_request", TxResultSuccess, base.Add(2*time.Hour))

	require.NoError(t, svc.RecordOutcome("PENDING", false, "rule", nil, ""))
	require.NoError(t, svc.RecordOutcome("DONE", true, "rule", nil, ""))

	records, err := svc.ListUnprocessed(false, false, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "NOVERDICT", records[0].Hash)
	assert.Equal(t, "PENDING", records[1].Hash)

	// Descending order flips the page.
	records, err = svc.ListUnprocessed(false, true, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "PENDING", records[0].Hash)

	// includeProcessed lifts the filter.
	records, err = svc.ListUnprocessed(true, false, 0, 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	// Paging.
	records, err = svc.ListUnprocessed(false, false, 1, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "PENDING", records[0].Hash)
}

func TestListNewlyProcessedWatermark(t *testing.T) {
	db := newTestDB(t)
	svc := NewCorrelatorService(db)

	seedMemoRecord(t, db, "OLD", accountA, accountB, "task_request", TxResultSuccess, time.Now().UTC())
	seedMemoRecord(t, db, "NEW", accountA, accountB, "task_request", TxResultSuccess, time.Now().UTC())

	require.NoError(t, svc.RecordOutcome("OLD", true, "rule", nil, ""))
	watermark := time.Now().UTC()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, svc.RecordOutcome("NEW", true, "rule", nil, ""))

	outcomes, err := svc.ListNewlyProcessed(watermark)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "NEW", outcomes[0].Hash)
	assert.Equal(t, accountA, outcomes[0].Account)
}

func TestClearOutcomes(t *testing.T) {
	db := newTestDB(t)
	svc := NewCorrelatorService(db)

	seedMemoRecord(t, db, "R1", accountA, accountB, "task_request", TxResultSuccess, time.Now().UTC())
	seedMemoRecord(t, db, "R2", accountA, accountB, "task_request", TxResultSuccess, time.Now().UTC())
	require.NoError(t, svc.RecordOutcome("R1", true, "rule", nil, ""))
	require.NoError(t, svc.RecordOutcome("R2", true, "rule", nil, ""))

	cleared, err := svc.ClearOutcomes([]string{"R1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	records, err := svc.ListUnprocessed(false, false, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "R1", records[0].Hash)
}
