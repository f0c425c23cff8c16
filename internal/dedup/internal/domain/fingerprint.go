// Package domain contains the pure data structures behind duplicate row
// detection: the row fingerprint function and the time-windowed fingerprint
// store.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// volatileColumns are header names whose values rotate between otherwise
// identical log exports. Fields under these columns are excluded from
// fingerprinting so that overlapping exports hash to the same fingerprint
// even when their timestamps differ by seconds.
var volatileColumns = map[string]struct{}{
	"timestamp":    {},
	"time":         {},
	"datetime":     {},
	"date":         {},
	"created_at":   {},
	"updated_at":   {},
	"processed_at": {},
	"logged_at":    {},
	"received_at":  {},
	"sent_at":      {},
}

// Fingerprint computes the SHA-256 hex digest of a CSV row's non-volatile
// field values. Fields whose (lowercased, trimmed) header name is a known
// volatile column are dropped; remaining values are trimmed and joined with
// "|" before hashing. Fields beyond the header bounds are always retained.
func Fingerprint(row, header []string) string {
	filtered := make([]string, 0, len(row))
	for i, value := range row {
		if i < len(header) {
			name := strings.ToLower(strings.TrimSpace(header[i]))
			if _, volatile := volatileColumns[name]; volatile {
				continue
			}
		}
		filtered = append(filtered, strings.TrimSpace(value))
	}

	sum := sha256.Sum256([]byte(strings.Join(filtered, "|")))
	return hex.EncodeToString(sum[:])
}
