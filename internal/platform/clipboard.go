// Package platform wraps the host-OS integrations the vault touches: the
// clipboard and core dump suppression.
package platform

import (
	"time"

	"github.com/atotto/clipboard"
)

// Clipboard abstracts the system clipboard so tests can substitute a fake.
type Clipboard interface {
	Set(text string) error
	Get() (string, error)
}

type systemClipboard struct{}

func (systemClipboard) Set(text string) error { return clipboard.WriteAll(text) }
func (systemClipboard) Get() (string, error)  { return clipboard.ReadAll() }

func NewClipboard() Clipboard { return systemClipboard{} }

// CopyWithClear places text on the clipboard and clears it after ttl, unless
// something else has been copied in the meantime. The returned timer lets
// the caller cancel or flush early.
func CopyWithClear(cb Clipboard, text string, ttl time.Duration) (*time.Timer, error) {
	if err := cb.Set(text); err != nil {
		return nil, err
	}
	t := time.AfterFunc(ttl, func() {
		if cur, err := cb.Get(); err == nil && cur == text {
			_ = cb.Set("")
		}
	})
	return t, nil
}
