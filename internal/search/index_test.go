package search

import (
	"testing"

	"github.com/PyPartners/MindVault/internal/vault"
)

func TestFilter(t *testing.T) {
	entries := []vault.Entry{
		{ID: "1", Site: "example.com", Username: "alice"},
		{ID: "2", Site: "bank.example.org", Username: "bob", Notes: "joint account"},
		{ID: "3", Site: "forum.net", Username: "Alice"},
	}

	cases := []struct {
		query string
		want  []string
	}{
		{"", []string{"1", "2", "3"}},
		{"example", []string{"1", "2"}},
		{"ALICE", []string{"1", "3"}},
		{"joint", []string{"2"}},
		{"nothing", nil},
		{"  bank  ", []string{"2"}},
	}
	for _, c := range cases {
		got := Filter(entries, c.query)
		if len(got) != len(c.want) {
			t.Errorf("Filter(%q) returned %d entries, want %d", c.query, len(got), len(c.want))
			continue
		}
		for i := range got {
			if got[i].ID != c.want[i] {
				t.Errorf("Filter(%q)[%d] = %s, want %s", c.query, i, got[i].ID, c.want[i])
			}
		}
	}
}
