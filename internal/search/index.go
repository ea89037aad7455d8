// Package search filters decrypted entries by free-text query. It works on
// snapshots only and holds no state, so there is nothing extra to wipe when
// the session locks.
package search

import (
	"strings"

	"github.com/PyPartners/MindVault/internal/vault"
)

// Filter returns the entries whose site, username or notes contain the
// query, case-insensitive. An empty query matches everything. Input order
// is preserved.
func Filter(entries []vault.Entry, query string) []vault.Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return entries
	}
	var out []vault.Entry
	for _, e := range entries {
		if matches(e, q) {
			out = append(out, e)
		}
	}
	return out
}

func matches(e vault.Entry, q string) bool {
	return strings.Contains(strings.ToLower(e.Site), q) ||
		strings.Contains(strings.ToLower(e.Username), q) ||
		strings.Contains(strings.ToLower(e.Notes), q)
}
