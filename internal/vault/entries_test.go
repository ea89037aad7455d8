package vault

import (
	"errors"
	"testing"
)

func TestPlainInsertionOrder(t *testing.T) {
	p := NewPlain()
	a := p.Add("a.com", "u1", "p1", "")
	b := p.Add("b.com", "u2", "p2", "")
	c := p.Add("c.com", "u3", "p3", "")

	if a.ID == b.ID || b.ID == c.ID || a.ID == c.ID {
		t.Fatal("IDs must be unique")
	}

	if err := p.Delete(b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	snap := p.Snapshot()
	if len(snap) != 2 || snap[0].ID != a.ID || snap[1].ID != c.ID {
		t.Fatalf("order not preserved after delete: %+v", snap)
	}
}

func TestPlainUpdateKeepsIDAndPosition(t *testing.T) {
	p := NewPlain()
	a := p.Add("a.com", "u1", "p1", "")
	b := p.Add("b.com", "u2", "p2", "")

	if err := p.Update(a.ID, Entry{Site: "a2.com", Username: "u1b", Password: "p1b", Notes: "n"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	snap := p.Snapshot()
	if snap[0].ID != a.ID || snap[0].Site != "a2.com" {
		t.Fatalf("update lost ID or position: %+v", snap[0])
	}
	if snap[1].ID != b.ID {
		t.Fatal("unrelated entry moved")
	}
}

func TestPlainUnknownID(t *testing.T) {
	p := NewPlain()
	if err := p.Update("nope", Entry{}); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("want ErrEntryNotFound, got %v", err)
	}
	if err := p.Delete("nope"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("want ErrEntryNotFound, got %v", err)
	}
}

func TestPlainMarshalRoundTrip(t *testing.T) {
	p := NewPlain()
	p.Add("site", "user", "pass", "notes with ✓ unicode")
	p.TwoFactor = TwoFactor{Secret: "ABC234", Enabled: true}

	b, err := p.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalPlain(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Entries[0] != p.Entries[0] || got.TwoFactor != p.TwoFactor {
		t.Fatal("roundtrip mismatch")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	p := NewPlain()
	p.Add("a.com", "u", "p", "")
	c := p.Clone()
	c.Entries[0].Password = "changed"
	if p.Entries[0].Password != "p" {
		t.Fatal("clone shares backing array with original")
	}
}
