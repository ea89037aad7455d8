// Package session implements the authentication state machine that owns the
// derived key and the decrypted entry collection of a running vault
// instance.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/PyPartners/MindVault/internal/audit"
	"github.com/PyPartners/MindVault/internal/crypto"
	"github.com/PyPartners/MindVault/internal/totp"
	"github.com/PyPartners/MindVault/internal/vault"
)

// State is the session's position in the login lifecycle.
type State int

const (
	Locked State = iota
	PendingTwoFactor
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case PendingTwoFactor:
		return "pending-2fa"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Status is the outcome of an unlock or two-factor attempt.
type Status int

const (
	StatusFailed Status = iota
	StatusUnlocked
	StatusNeedsTwoFactor
)

var (
	// ErrLocked reports an operation that needs an unlocked vault.
	ErrLocked = errors.New("session: vault is locked")
	// ErrNotLocked reports an unlock or create against a live session.
	ErrNotLocked = errors.New("session: vault is not locked")
	// ErrNoChallenge reports a two-factor submission with nothing pending.
	ErrNoChallenge = errors.New("session: no two-factor challenge pending")
	// ErrTwoFactorFailed reports a rejected or expired two-factor code.
	ErrTwoFactorFailed = errors.New("session: two-factor code rejected")
	// ErrThrottled reports unlock attempts arriving faster than allowed.
	ErrThrottled = errors.New("session: too many unlock attempts")
	// ErrVaultExists guards CreateVault against clobbering a vault file.
	ErrVaultExists = errors.New("session: vault file already exists")
)

// Config carries the session's collaborators and tunables.
type Config struct {
	VaultPath string
	Clock     Clock
	Logger    zerolog.Logger

	// AutoLock is the inactivity window; zero disables auto-lock.
	AutoLock time.Duration
	// PendingWindow bounds how long a two-factor challenge stays open.
	PendingWindow time.Duration
	// PollInterval is how often Run checks the watchdog.
	PollInterval time.Duration
	// AttemptEvery and AttemptBurst throttle unlock attempts.
	AttemptEvery time.Duration
	AttemptBurst int

	// NewKDF supplies cost parameters for vault creation and master secret
	// rotation. Defaults to crypto.DefaultKDF.
	NewKDF func() crypto.KDFParams
}

func (c *Config) setDefaults() {
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	if c.PendingWindow <= 0 {
		c.PendingWindow = 2 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.AttemptEvery <= 0 {
		c.AttemptEvery = 2 * time.Second
	}
	if c.AttemptBurst <= 0 {
		c.AttemptBurst = 10
	}
	if c.NewKDF == nil {
		c.NewKDF = crypto.DefaultKDF
	}
}

// Session is the single per-process authentication state machine. It is
// created Locked, holds the derived key and decrypted payload only while
// not Locked, and wipes both on every transition back to Locked. All
// methods are safe for concurrent use; mutations and forced-lock events
// serialize on one mutex, so a lock is never applied in the middle of a
// half-completed mutation.
type Session struct {
	cfg      Config
	clock    Clock
	log      zerolog.Logger
	trail    *audit.Trail
	attempts *rate.Limiter
	timer    *AutoLockTimer

	mu       sync.Mutex
	state    State
	header   vault.Header
	key      []byte
	plain    *vault.Plain
	failed   int
	deadline time.Time
}

// New creates a Locked session for the vault file at cfg.VaultPath.
func New(cfg Config) *Session {
	cfg.setDefaults()
	return &Session{
		cfg:      cfg,
		clock:    cfg.Clock,
		log:      cfg.Logger,
		trail:    audit.NewTrail(),
		attempts: rate.NewLimiter(rate.Every(cfg.AttemptEvery), cfg.AttemptBurst),
		timer:    NewAutoLockTimer(cfg.Clock, cfg.AutoLock),
		state:    Locked,
	}
}

// Run drives the auto-lock watchdog until ctx is cancelled, then forces the
// session Locked on the way out. Lock events arrive on a single ordered
// channel; applying one takes the session mutex, so no mutation is ever
// interleaved with a forced lock.
func (s *Session) Run(ctx context.Context) {
	go s.timer.Watch(ctx, s.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			s.Lock()
			return
		case <-s.timer.Events():
			s.applyAutoLock()
		}
	}
}

// State reports the current machine state. Observation is also when lazy
// expiry applies: an elapsed inactivity window or two-factor deadline locks
// the session before the state is returned.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	return s.state
}

// FailedAttempts counts consecutive failed unlocks since the last success.
func (s *Session) FailedAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// AuditTrail returns the recorded lifecycle events.
func (s *Session) AuditTrail() []audit.Event { return s.trail.Events() }

// CreateVault initializes a new empty vault file under secret and leaves
// the session Unlocked on it. Fails if the file already exists.
func (s *Session) CreateVault(secret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Locked {
		return ErrNotLocked
	}
	if _, err := os.Stat(s.cfg.VaultPath); err == nil {
		return ErrVaultExists
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: stat vault: %w", err)
	}

	params := s.cfg.NewKDF()
	key := crypto.DeriveKey(secret, params)
	h := vault.NewHeader(params)
	p := vault.NewPlain()

	raw, err := vault.Seal(key, h, p)
	if err != nil {
		crypto.Zero(key)
		return err
	}
	if err := vault.WriteFileAtomic(s.cfg.VaultPath, raw, 0o600); err != nil {
		crypto.Zero(key)
		return fmt.Errorf("session: write vault: %w", err)
	}

	s.adoptLocked(h, key, p)
	s.trail.Append("vault.create")
	s.log.Info().Str("path", s.cfg.VaultPath).Msg("vault created")
	return nil
}

// Unlock submits the master secret. The outcome is Unlocked, NeedsTwoFactor
// when a second factor is enrolled, or Failed with the cause in err. A
// failed decrypt never distinguishes wrong secret from corruption.
func (s *Session) Unlock(secret []byte) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Locked {
		return StatusFailed, ErrNotLocked
	}
	if !s.attempts.Allow() {
		s.log.Warn().Msg("unlock throttled")
		return StatusFailed, ErrThrottled
	}

	raw, err := os.ReadFile(s.cfg.VaultPath)
	if err != nil {
		return StatusFailed, fmt.Errorf("session: read vault: %w", err)
	}
	h, err := vault.DecodeHeader(raw)
	if err != nil {
		return StatusFailed, err
	}

	key := crypto.DeriveKey(secret, h.KDF())
	_, p, err := vault.Open(key, raw)
	if err != nil {
		crypto.Zero(key)
		s.failed++
		s.trail.Append("unlock.failed")
		s.log.Warn().Int("failed_attempts", s.failed).Msg("unlock rejected")
		return StatusFailed, err
	}
	s.failed = 0

	if p.TwoFactor.Enabled {
		s.header = h
		s.key = key
		_ = crypto.LockBuffer(s.key)
		s.plain = p
		s.state = PendingTwoFactor
		s.deadline = s.clock.Now().Add(s.cfg.PendingWindow)
		s.trail.Append("unlock.pending")
		s.log.Info().Msg("master secret accepted, second factor required")
		return StatusNeedsTwoFactor, nil
	}

	s.adoptLocked(h, key, p)
	s.trail.Append("unlock")
	s.log.Info().Msg("vault unlocked")
	return StatusUnlocked, nil
}

// VerifyTwoFactor completes a pending unlock. A wrong code keeps the
// challenge open; an expired window wipes and returns to Locked.
func (s *Session) VerifyTwoFactor(code string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != PendingTwoFactor {
		return StatusFailed, ErrNoChallenge
	}
	if s.clock.Now().After(s.deadline) {
		s.wipeLocked()
		s.trail.Append("unlock.pending.expired")
		s.log.Warn().Msg("two-factor window expired")
		return StatusFailed, ErrTwoFactorFailed
	}
	if !totp.Verify(s.plain.TwoFactor.Secret, code, s.clock.Now()) {
		s.trail.Append("unlock.pending.rejected")
		s.log.Warn().Msg("two-factor code rejected")
		return StatusFailed, ErrTwoFactorFailed
	}

	s.state = Unlocked
	s.deadline = time.Time{}
	s.timer.Touch()
	s.trail.Append("unlock")
	s.log.Info().Msg("vault unlocked")
	return StatusUnlocked, nil
}

// CancelTwoFactor abandons a pending challenge and wipes the held key.
func (s *Session) CancelTwoFactor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != PendingTwoFactor {
		return
	}
	s.wipeLocked()
	s.trail.Append("unlock.pending.cancelled")
}

// Lock transitions to Locked, wiping the key and decrypted payload. It is
// idempotent. Every mutation persists before returning, so there is never
// unsaved state to flush here.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Locked {
		return
	}
	s.wipeLocked()
	s.trail.Append("lock")
	s.log.Info().Msg("vault locked")
}

// RecordActivity feeds the inactivity watchdog.
func (s *Session) RecordActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Unlocked {
		s.timer.Touch()
	}
}

// SetAutoLockTimeout changes the inactivity window at runtime; zero
// disables auto-lock. The next expiry check uses the new value.
func (s *Session) SetAutoLockTimeout(d time.Duration) {
	s.timer.SetTimeout(d)
}

// Entries returns a read-only snapshot of the collection, insertion order
// preserved. Only valid while Unlocked.
func (s *Session) Entries() ([]vault.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	if s.state != Unlocked {
		return nil, ErrLocked
	}
	return s.plain.Snapshot(), nil
}

// AddEntry appends a credential and persists before returning.
func (s *Session) AddEntry(site, username, password, notes string) (vault.Entry, error) {
	var added vault.Entry
	err := s.mutate("entry.add", func(p *vault.Plain) error {
		added = p.Add(site, username, password, notes)
		return nil
	})
	return added, err
}

// UpdateEntry replaces an entry's fields in place and persists.
func (s *Session) UpdateEntry(id string, upd vault.Entry) error {
	return s.mutate("entry.update", func(p *vault.Plain) error {
		return p.Update(id, upd)
	})
}

// DeleteEntry removes an entry and persists.
func (s *Session) DeleteEntry(id string) error {
	return s.mutate("entry.delete", func(p *vault.Plain) error {
		return p.Delete(id)
	})
}

// TwoFactorEnabled reports whether a second factor is enrolled.
func (s *Session) TwoFactorEnabled() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	if s.state != Unlocked {
		return false, ErrLocked
	}
	return s.plain.TwoFactor.Enabled, nil
}

// EnableTwoFactor enrolls a TOTP secret. The caller must prove possession
// by submitting a currently valid code before enrollment takes effect.
func (s *Session) EnableTwoFactor(secret, code string) error {
	if !totp.Verify(secret, code, s.clock.Now()) {
		return ErrTwoFactorFailed
	}
	return s.mutate("2fa.enable", func(p *vault.Plain) error {
		p.TwoFactor = vault.TwoFactor{Secret: secret, Enabled: true}
		return nil
	})
}

// DisableTwoFactor removes the enrollment.
func (s *Session) DisableTwoFactor() error {
	return s.mutate("2fa.disable", func(p *vault.Plain) error {
		p.TwoFactor = vault.TwoFactor{}
		return nil
	})
}

// ChangeMasterSecret re-encrypts the vault under a new secret with a fresh
// salt. The current secret must verify first.
func (s *Session) ChangeMasterSecret(current, next []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	if s.state != Unlocked {
		return ErrLocked
	}

	check := crypto.DeriveKey(current, s.header.KDF())
	ok := subtle.ConstantTimeCompare(check, s.key) == 1
	crypto.Zero(check)
	if !ok {
		s.trail.Append("rotate.rejected")
		return crypto.ErrAuthFailed
	}

	params := s.cfg.NewKDF()
	newKey := crypto.DeriveKey(next, params)
	newHeader := vault.NewHeader(params)

	raw, err := vault.Seal(newKey, newHeader, s.plain)
	if err != nil {
		crypto.Zero(newKey)
		return err
	}
	if err := vault.WriteFileAtomic(s.cfg.VaultPath, raw, 0o600); err != nil {
		crypto.Zero(newKey)
		return fmt.Errorf("session: write vault: %w", err)
	}

	_ = crypto.UnlockBuffer(s.key)
	crypto.Zero(s.key)
	s.key = newKey
	_ = crypto.LockBuffer(s.key)
	s.header = newHeader
	s.timer.Touch()
	s.trail.Append("rotate")
	s.log.Info().Msg("master secret rotated")
	return nil
}

// mutate applies fn to the payload and persists before returning. A failed
// persist rolls the in-memory payload back, so disk and memory never
// diverge past the call.
func (s *Session) mutate(event string, fn func(p *vault.Plain) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	if s.state != Unlocked {
		return ErrLocked
	}

	prev := s.plain
	next := prev.Clone()
	if err := fn(next); err != nil {
		return err
	}

	raw, err := vault.Seal(s.key, s.header, next)
	if err != nil {
		return err
	}
	if err := vault.WriteFileAtomic(s.cfg.VaultPath, raw, 0o600); err != nil {
		return fmt.Errorf("session: write vault: %w", err)
	}

	s.plain = next
	s.timer.Touch()
	s.trail.Append(event)
	return nil
}

// applyAutoLock handles a queued watchdog event. Activity that arrived
// after the event was queued makes it a no-op.
func (s *Session) applyAutoLock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Unlocked || !s.timer.Expired() {
		return
	}
	s.wipeLocked()
	s.trail.Append("lock.auto")
	s.log.Info().Msg("vault auto-locked after inactivity")
}

// reapLocked applies lazy expiry under the held mutex: an elapsed
// inactivity window or two-factor deadline forces Locked.
func (s *Session) reapLocked() {
	switch s.state {
	case Unlocked:
		if s.timer.Expired() {
			s.wipeLocked()
			s.trail.Append("lock.auto")
			s.log.Info().Msg("vault auto-locked after inactivity")
		}
	case PendingTwoFactor:
		if s.clock.Now().After(s.deadline) {
			s.wipeLocked()
			s.trail.Append("unlock.pending.expired")
		}
	}
}

func (s *Session) adoptLocked(h vault.Header, key []byte, p *vault.Plain) {
	s.header = h
	s.key = key
	_ = crypto.LockBuffer(s.key)
	s.plain = p
	s.state = Unlocked
	s.deadline = time.Time{}
	s.timer.Touch()
}

func (s *Session) wipeLocked() {
	if s.key != nil {
		_ = crypto.UnlockBuffer(s.key)
		crypto.Zero(s.key)
		s.key = nil
	}
	s.plain = nil
	s.state = Locked
	s.deadline = time.Time{}
}
