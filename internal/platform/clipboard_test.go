package platform

import (
	"sync"
	"testing"
	"time"
)

type fakeClipboard struct {
	mu  sync.Mutex
	val string
}

func (f *fakeClipboard) Set(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.val = text
	return nil
}

func (f *fakeClipboard) Get() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val, nil
}

func TestCopyWithClearClearsOwnValue(t *testing.T) {
	cb := &fakeClipboard{}
	if _, err := CopyWithClear(cb, "hunter2", 10*time.Millisecond); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if v, _ := cb.Get(); v != "hunter2" {
		t.Fatalf("clipboard = %q", v)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if v, _ := cb.Get(); v == "" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("clipboard never cleared")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCopyWithClearLeavesForeignValue(t *testing.T) {
	cb := &fakeClipboard{}
	if _, err := CopyWithClear(cb, "hunter2", 10*time.Millisecond); err != nil {
		t.Fatalf("copy: %v", err)
	}
	cb.Set("something else")
	time.Sleep(50 * time.Millisecond)
	if v, _ := cb.Get(); v != "something else" {
		t.Fatalf("foreign clipboard value clobbered: %q", v)
	}
}
