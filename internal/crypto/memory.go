package crypto

// Zero overwrites b in place so key material does not linger on the heap.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// LockBuffer pins b into RAM so it cannot be swapped to disk. Best effort:
// platforms without mlock make this a no-op.
func LockBuffer(b []byte) error { return lockMemory(b) }

// UnlockBuffer releases a LockBuffer pin.
func UnlockBuffer(b []byte) error { return unlockMemory(b) }
