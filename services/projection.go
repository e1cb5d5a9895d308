// services/projection.go
package services

import (
	"encoding/json"
	"log"
	"strconv"

	"pft-node-service/models"
	"pft-node-service/utils"
)

// TxResultSuccess is the result code of a successfully applied transaction.
const TxResultSuccess = "tesSUCCESS"

// dropsPerToken converts native amounts (integer drops on the wire) to
// whole tokens.
const dropsPerToken = 1_000_000

type txBody struct {
	Account         string          `json:"Account"`
	Destination     string          `json:"Destination"`
	TransactionType string          `json:"TransactionType"`
	Fee             string          `json:"Fee"`
	Amount          json.RawMessage `json:"Amount"`
	Memos           []struct {
		Memo utils.RawMemo `json:"Memo"`
	} `json:"Memos"`
}

type txMeta struct {
	TransactionResult string          `json:"TransactionResult"`
	DeliveredAmount   json.RawMessage `json:"delivered_amount"`
}

type issuedAmount struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
	Value    string `json:"value"`
}

// ProjectMemoRecord flattens a raw transaction into its MemoRecord. Only
// the first memo entry is projected. Returns nil when the body or metadata
// cannot be parsed; ingestion of the parent transaction proceeds either
// way.
func ProjectMemoRecord(tx *models.Transaction) *models.MemoRecord {
	if tx == nil || len(tx.TxJSON) == 0 {
		return nil
	}

	var body txBody
	if err := json.Unmarshal(tx.TxJSON, &body); err != nil {
		log.Printf("Skipping projection for %s: unparseable tx body: %v", tx.Hash, err)
		return nil
	}
	if body.Account == "" {
		log.Printf("Skipping projection for %s: tx body has no Account", tx.Hash)
		return nil
	}

	var meta txMeta
	if len(tx.Meta) > 0 {
		if err := json.Unmarshal(tx.Meta, &meta); err != nil {
			log.Printf("Skipping projection for %s: unparseable metadata: %v", tx.Hash, err)
			return nil
		}
	}

	record := &models.MemoRecord{
		Hash:              tx.Hash,
		Account:           body.Account,
		Destination:       body.Destination,
		Amount:            parseAmount(deliveredOrStated(meta.DeliveredAmount, body.Amount)),
		Fee:               parseFee(body.Fee),
		TransactionResult: meta.TransactionResult,
		Datetime:          tx.CloseTime,
	}

	// Multi-memo transactions project the first entry only.
	if len(body.Memos) > 0 {
		decoded := utils.DecodeMemo(body.Memos[0].Memo)
		record.MemoFormat = decoded.Format
		record.MemoType = decoded.Type
		record.MemoData = decoded.Data
	}

	return record
}

// deliveredOrStated prefers the metadata's delivered_amount over the stated
// Amount; partial payments can deliver less than the body claims.
func deliveredOrStated(delivered, stated json.RawMessage) json.RawMessage {
	if len(delivered) > 0 {
		return delivered
	}
	return stated
}

// parseAmount handles both amount encodings: a quoted string of native
// drops, or an issued-currency object carrying a decimal value. An exact
// zero is normalized to nil so non-transfers and empty transfers read the
// same downstream.
func parseAmount(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}

	var drops string
	if err := json.Unmarshal(raw, &drops); err == nil {
		value, err := strconv.ParseFloat(drops, 64)
		if err != nil {
			log.Printf("⚠️ Malformed drops amount %q: %v", drops, err)
			return nil
		}
		return normalizeAmount(value / dropsPerToken)
	}

	var issued issuedAmount
	if err := json.Unmarshal(raw, &issued); err != nil {
		return nil
	}
	value, err := strconv.ParseFloat(issued.Value, 64)
	if err != nil {
		log.Printf("⚠️ Malformed issued-currency value %q: %v", issued.Value, err)
		return nil
	}
	return normalizeAmount(value)
}

func parseFee(fee string) *float64 {
	if fee == "" {
		return nil
	}
	drops, err := strconv.ParseFloat(fee, 64)
	if err != nil {
		log.Printf("⚠️ Malformed fee %q: %v", fee, err)
		return nil
	}
	return normalizeAmount(drops / dropsPerToken)
}

func normalizeAmount(value float64) *float64 {
	if value == 0 {
		return nil
	}
	return &value
}
