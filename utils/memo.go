// utils/memo.go
package utils

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"
)

// RawMemo holds the hex-encoded memo fields as they appear on the ledger.
type RawMemo struct {
	MemoFormat string `json:"MemoFormat"`
	MemoType   string `json:"MemoType"`
	MemoData   string `json:"MemoData"`
}

// DecodedMemo holds the UTF-8 decoded memo triple. Fields that could not be
// decoded are left as empty strings.
type DecodedMemo struct {
	Format string `json:"memo_format"`
	Type   string `json:"memo_type"`
	Data   string `json:"memo_data"`
}

// HexToText decodes a hex-encoded memo field into UTF-8 text. A leading
// `\x` marker (carried over from bytea-style dumps) is stripped before
// decoding. Empty input decodes to an empty string; malformed hex or
// non-UTF-8 bytes are returned as an error for the caller to skip on.
func HexToText(hexStr string) (string, error) {
	if hexStr == "" {
		return "", nil
	}
	hexStr = strings.TrimPrefix(hexStr, `\x`)
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", fmt.Errorf("invalid hex in memo field: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("memo bytes are not valid UTF-8")
	}
	return string(raw), nil
}

// TextToHex is the inverse of HexToText, used when constructing memos.
func TextToHex(text string) string {
	return strings.ToUpper(hex.EncodeToString([]byte(text)))
}

// DecodeMemo decodes all three memo fields independently. A field that
// fails to decode defaults to "" without affecting the others.
func DecodeMemo(raw RawMemo) DecodedMemo {
	var decoded DecodedMemo
	fields := []struct {
		name string
		in   string
		out  *string
	}{
		{"MemoFormat", raw.MemoFormat, &decoded.Format},
		{"MemoType", raw.MemoType, &decoded.Type},
		{"MemoData", raw.MemoData, &decoded.Data},
	}
	for _, f := range fields {
		text, err := HexToText(f.in)
		if err != nil {
			log.Printf("Failed to decode %s: %v", f.name, err)
			continue
		}
		*f.out = text
	}
	return decoded
}
