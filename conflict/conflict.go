// Package conflict materializes unresolved merges to sibling files
// (spec §4.10), leaving the destination's existing content untouched.
package conflict

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/castsync/cast/normalize"
)

const timestampLayout = "20060102150405"

const (
	ConflictKey   = "cast-conflict"
	ConflictAtKey = "cast-conflict-at"
)

// Path derives the sibling conflict file path for destPath at the
// given instant: "<stem>.conflicted-<YYYYMMDDHHMMSS><ext>".
func Path(destPath string, at time.Time) string {
	ext := filepath.Ext(destPath)
	stem := strings.TrimSuffix(destPath, ext)
	return fmt.Sprintf("%s.conflicted-%s%s", stem, at.UTC().Format(timestampLayout), ext)
}

// Materialize builds the conflict file's bytes: header carries the
// inherited identifier first, plus cast-conflict / cast-conflict-at,
// over the fully merged body (with embedded hunk markers).
func Materialize(header normalize.Header, mergedBody []byte, at time.Time) []byte {
	h := header.Set(ConflictKey, normalize.Value{Kind: normalize.KindScalar, Scalar: "true"})
	h = h.Set(ConflictAtKey, normalize.Value{Kind: normalize.KindScalar, Scalar: at.UTC().Format(time.RFC3339)})
	h = h.EnsureFirst(normalize.IdentifierKey)
	return normalize.Serialize(h, mergedBody)
}
