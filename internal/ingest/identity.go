package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AssignID returns the storage id of a record.
//
// With derive=false the source identifier is used verbatim. With derive=true
// the id is the SHA-256 of the sorted-key JSON of identifier, description,
// date, processed_date and charged_amount. Amounts are canonicalized first so
// -18, -18.0 and "-18.00" hash alike.
func AssignID(rec FlatRecord, derive bool) (string, error) {
	if !derive {
		return scalarString(rec, "identifier")
	}

	tuple := map[string]any{
		"identifier":     nullable(rec["identifier"]),
		"description":    nullable(rec["description"]),
		"date":           nullable(rec["date"]),
		"processed_date": nullable(rec["processedDate"]),
		"charged_amount": nil,
	}
	if v := rec["chargedAmount"]; v != nil {
		amount, err := toDecimal(v)
		if err != nil {
			return "", mappingErr("chargedAmount", "%v", err)
		}
		tuple["charged_amount"] = amount.String()
	}

	// encoding/json writes map keys in sorted order.
	canonical, err := json.Marshal(tuple)
	if err != nil {
		return "", fmt.Errorf("marshal identity tuple: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// SnapshotKey derives the natural key of a raw payload snapshot.
func SnapshotKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}

func nullable(v any) any {
	if v == nil {
		return nil
	}
	return stringify(v)
}
