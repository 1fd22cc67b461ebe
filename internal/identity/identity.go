package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// HashIdentity maps a raw subject identity to a stable pseudonymous key.
// The input is lower-cased and whitespace-trimmed first so the same logical
// subject always yields the same digest regardless of input formatting.
// Deliberately unsalted: lookup-by-hash requires the digest to be
// reproducible across calls and over time.
func HashIdentity(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NewDocumentID produces a document identifier unique with overwhelming
// probability: millisecond timestamp plus a 4-byte random suffix. Collisions
// require two documents in the same millisecond drawing the same suffix.
func NewDocumentID() string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// nanosecond component rather than panic in the pipeline.
		return fmt.Sprintf("hr_%d_%08x", time.Now().UnixMilli(), time.Now().UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("hr_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(suffix))
}
