package vault

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// ErrEntryNotFound reports an operation against an ID absent from the vault.
var ErrEntryNotFound = errors.New("vault: entry not found")

// Entry is one stored credential. The collection keeps insertion order and
// IDs are unique within a vault.
type Entry struct {
	ID       string `cbor:"id"`
	Site     string `cbor:"site"`
	Username string `cbor:"username"`
	Password string `cbor:"password"`
	Notes    string `cbor:"notes"`
}

// TwoFactor is the 2FA enrollment embedded in the encrypted payload, so the
// TOTP secret is itself encrypted at rest.
type TwoFactor struct {
	Secret  string `cbor:"secret,omitempty"`
	Enabled bool   `cbor:"enabled"`
}

// Plain is the decrypted vault payload: the ordered entry collection plus
// embedded metadata. It exists in memory only while a session is not locked.
type Plain struct {
	Entries   []Entry   `cbor:"entries"`
	TwoFactor TwoFactor `cbor:"two_factor"`
}

func NewPlain() *Plain {
	return &Plain{Entries: []Entry{}}
}

// Marshal serializes the payload for encryption.
func (p *Plain) Marshal() ([]byte, error) {
	return cbor.Marshal(p)
}

// UnmarshalPlain parses a decrypted payload.
func UnmarshalPlain(b []byte) (*Plain, error) {
	var p Plain
	if err := cbor.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	if p.Entries == nil {
		p.Entries = []Entry{}
	}
	return &p, nil
}

// Add appends a new entry with a fresh unique ID and returns it.
func (p *Plain) Add(site, username, password, notes string) Entry {
	e := Entry{
		ID:       uuid.NewString(),
		Site:     site,
		Username: username,
		Password: password,
		Notes:    notes,
	}
	p.Entries = append(p.Entries, e)
	return e
}

// Get returns the entry with the given ID.
func (p *Plain) Get(id string) (Entry, bool) {
	for _, e := range p.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Update replaces the fields of an existing entry, keeping its ID and its
// position in the collection.
func (p *Plain) Update(id string, upd Entry) error {
	for i := range p.Entries {
		if p.Entries[i].ID == id {
			upd.ID = id
			p.Entries[i] = upd
			return nil
		}
	}
	return ErrEntryNotFound
}

// Delete removes an entry, preserving the order of the rest.
func (p *Plain) Delete(id string) error {
	for i := range p.Entries {
		if p.Entries[i].ID == id {
			p.Entries = append(p.Entries[:i], p.Entries[i+1:]...)
			return nil
		}
	}
	return ErrEntryNotFound
}

// Snapshot returns a read-only copy of the entry collection.
func (p *Plain) Snapshot() []Entry {
	return append([]Entry(nil), p.Entries...)
}

// Clone deep-copies the payload. Mutations persist-then-commit through a
// clone so a failed write can roll back.
func (p *Plain) Clone() *Plain {
	return &Plain{Entries: p.Snapshot(), TwoFactor: p.TwoFactor}
}
