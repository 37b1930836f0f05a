package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

// chainHash computes the tamper-evident hash of an entry given the hash of
// the entry immediately before it in the same chain. An empty
// previousHash marks the first entry in the chain.
func chainHash(entry domain.AuditEntry, previousHash string) (string, error) {
	canonicalDetails, err := canonicalJSON(entry.Details)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalizing details: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(entry.EventTime.UTC().Format("2006-01-02T15:04:05.000000000Z")))
	h.Write([]byte{0})
	h.Write([]byte(entry.EventType))
	h.Write([]byte{0})
	h.Write([]byte(entry.UserName))
	h.Write([]byte{0})
	h.Write([]byte(entry.Action))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(entry.Success)))
	h.Write([]byte{0})
	h.Write(canonicalDetails)
	h.Write([]byte{0})
	h.Write([]byte(previousHash))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalJSON renders a details map to JSON. encoding/json sorts
// map[string]interface{} keys on marshal, so the same logical content
// always hashes identically regardless of map iteration order.
func canonicalJSON(details map[string]interface{}) ([]byte, error) {
	if details == nil {
		return []byte("null"), nil
	}
	return json.Marshal(details)
}
