package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// CountHash returns an order-independent digest of the store's population:
// a sha256 over each type name and its sorted id list. Two stores holding
// the same ids per type hash equal regardless of payload content or map
// iteration order; it is a population fingerprint, not a content hash.
func CountHash(es Entities) string {
	h := sha256.New()
	for _, typ := range sortedTypes(es) {
		fmt.Fprintf(h, "%s\n", typ)
		for _, id := range sortedIDs(es[typ]) {
			fmt.Fprintf(h, "  %s\n", id)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TypeHashes returns the per-type population digest, used to tell
// same-count-different-ids drift apart from no drift at all.
func TypeHashes(es Entities) map[string]string {
	hashes := make(map[string]string, len(es))
	for typ, em := range es {
		h := sha256.New()
		for _, id := range sortedIDs(em) {
			fmt.Fprintf(h, "%s\n", id)
		}
		hashes[typ] = hex.EncodeToString(h.Sum(nil))
	}
	return hashes
}

// SortedTypes returns the store's type names in sorted order, for callers
// that need deterministic iteration.
func SortedTypes(es Entities) []string { return sortedTypes(es) }

// SortedIDs returns an entity map's ids in sorted order.
func SortedIDs(em EntityMap) []string { return sortedIDs(em) }

func sortedTypes(es Entities) []string {
	types := make([]string, 0, len(es))
	for typ := range es {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

func sortedIDs(em EntityMap) []string {
	ids := make([]string, 0, len(em))
	for id := range em {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
