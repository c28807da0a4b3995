// Package identity manages the cast-id header key: generation,
// parsing, first-key enforcement, injection, and duplicate detection
// (spec §4.2).
package identity

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/castsync/cast/normalize"
)

// Key is the reserved header key holding a document's stable cross-vault
// identifier.
const Key = normalize.IdentifierKey

// TriggerKeys are the header keys whose presence on a file lacking an
// id causes InjectIfEligible to assign one (spec §4.2: "Files without
// either triggering key are left untouched").
var TriggerKeys = []string{"cast-vaults", "cast-type"}

// Generate returns a new random UUID v4, using google/uuid's
// crypto/rand-backed generator to satisfy "cryptographically random
// source".
func Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating cast-id: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Of returns the cast-id of header, if present and well-formed.
func Of(header normalize.Header) (string, bool) {
	v, ok := header.Get(Key)
	if !ok || v.Kind != normalize.KindScalar || !Valid(v.Scalar) {
		return "", false
	}
	return v.Scalar, true
}

// EnsureIDFirst reorders header so Key is its first entry, a no-op if
// Key is absent or already first.
func EnsureIDFirst(header normalize.Header) normalize.Header {
	return header.EnsureFirst(Key)
}

// eligibleForInjection reports whether header carries a trigger key but
// no id yet.
func eligibleForInjection(header normalize.Header) bool {
	if header.Has(Key) {
		return false
	}
	for _, k := range TriggerKeys {
		if header.Has(k) {
			return true
		}
	}
	return false
}

// InjectIfEligible assigns a fresh cast-id to header when it carries
// cast-vaults or cast-type but no identifier yet, placing it first. It
// returns the (possibly unchanged) header and whether an id was
// injected.
func InjectIfEligible(header normalize.Header) (normalize.Header, bool, error) {
	if !eligibleForInjection(header) {
		return header, false, nil
	}
	id, err := Generate()
	if err != nil {
		return header, false, err
	}
	injected := append(normalize.Header{{Key: Key, Value: normalize.Value{Kind: normalize.KindScalar, Scalar: id}}}, header...)
	return injected, true, nil
}

// Located is the (identifier, path) pair used to report duplicates.
type Located struct {
	ID   string
	Path string
}

// FindDuplicates groups entries by ID and returns only the groups with
// more than one path — the "uniqueness invariant" violations of spec
// §4.2. The map key is the cast-id; values are every path that claims it.
func FindDuplicates(entries []Located) map[string][]string {
	byID := make(map[string][]string)
	for _, e := range entries {
		byID[e.ID] = append(byID[e.ID], e.Path)
	}
	dups := make(map[string][]string)
	for id, paths := range byID {
		if len(paths) > 1 {
			dups[id] = paths
		}
	}
	return dups
}
