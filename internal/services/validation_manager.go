// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/J-Ellette/GGAS-sub001/internal/license"
	"github.com/J-Ellette/GGAS-sub001/internal/models"
	"github.com/J-Ellette/GGAS-sub001/internal/verifier"
)

const (
	DefaultGracePeriod          = 7 * 24 * time.Hour
	DefaultRevalidationInterval = 24 * time.Hour
	DefaultRequestTimeout       = 15 * time.Second
)

// State is the validation state of the manager.
type State string

const (
	StateUnvalidated  State = "unvalidated"
	StateValidating   State = "validating"
	StateValidOnline  State = "valid_online"
	StateValidOffline State = "valid_offline"
	StateInvalid      State = "invalid"
)

// Valid reports whether s grants features.
func (s State) Valid() bool {
	return s == StateValidOnline || s == StateValidOffline
}

type LicenseVerifier interface {
	Verify(ctx context.Context, req verifier.Request) (*verifier.Response, error)
}

// SnapshotStore holds the single validation snapshot. Load returns
// models.ErrSnapshotNotFound when there is none.
type SnapshotStore interface {
	Load(ctx context.Context) (*models.ValidationSnapshot, error)
	Save(ctx context.Context, snapshot *models.ValidationSnapshot) error
	Delete(ctx context.Context) error
}

type FingerprintProvider interface {
	Fingerprint(ctx context.Context) (string, error)
}

// ValidationRecorder receives validation outcomes, typically for metrics.
type ValidationRecorder interface {
	RecordValidation(result string)
	RecordRevalidation(success bool)
}

// Validation results passed to ValidationRecorder.
const (
	ResultOnline  = "online"
	ResultOffline = "offline"
	ResultInvalid = "invalid"
)

type noopRecorder struct{}

func (noopRecorder) RecordValidation(string) {}
func (noopRecorder) RecordRevalidation(bool) {}

// Status is a diagnostic view of the manager.
type Status struct {
	State                State               `json:"state"`
	LicenseKey           string              `json:"licenseKey,omitempty"`
	LicenseType          license.LicenseType `json:"licenseType,omitempty"`
	Features             license.Features    `json:"features"`
	ExpiresAt            *time.Time          `json:"expiresAt,omitempty"`
	LastValidatedAt      *time.Time          `json:"lastValidatedAt,omitempty"`
	LastError            string              `json:"lastError,omitempty"`
	RevalidationActive   bool                `json:"revalidationActive"`
	RevalidationInterval string              `json:"revalidationInterval"`
	GracePeriod          string              `json:"gracePeriod"`
}

type ManagerOption func(*ValidationManager)

func WithClock(clock clockwork.Clock) ManagerOption {
	return func(m *ValidationManager) {
		m.clock = clock
	}
}

func WithGracePeriod(d time.Duration) ManagerOption {
	return func(m *ValidationManager) {
		if d > 0 {
			m.gracePeriod = d
		}
	}
}

func WithRevalidationInterval(d time.Duration) ManagerOption {
	return func(m *ValidationManager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRequestTimeout bounds each online verification attempt.
func WithRequestTimeout(d time.Duration) ManagerOption {
	return func(m *ValidationManager) {
		if d > 0 {
			m.requestTimeout = d
		}
	}
}

func WithClientVersion(v string) ManagerOption {
	return func(m *ValidationManager) {
		m.clientVersion = v
	}
}

func WithRecorder(r ValidationRecorder) ManagerOption {
	return func(m *ValidationManager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// ValidationManager turns a license key into the live feature set. It tries
// the remote verifier first and falls back to the last persisted snapshot,
// and re-validates in the background while the license is valid.
type ValidationManager struct {
	codec        *license.Codec
	verifier     LicenseVerifier
	store        SnapshotStore
	fingerprints FingerprintProvider
	recorder     ValidationRecorder
	clock        clockwork.Clock

	gracePeriod    time.Duration
	interval       time.Duration
	requestTimeout time.Duration
	clientVersion  string

	group singleflight.Group

	mu            sync.Mutex
	state         State
	key           string
	licenseType   license.LicenseType
	features      license.Features
	expiresAt     *time.Time
	lastValidated time.Time
	lastErr       error
	// epoch changes on Clear and Close; results started under an older
	// epoch are dropped.
	epoch    uint64
	inFlight int
	// settled is the state to return to when every caller of an attempt
	// gives up before it resolves.
	settled    State
	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

func NewValidationManager(codec *license.Codec, v LicenseVerifier, store SnapshotStore, fingerprints FingerprintProvider, opts ...ManagerOption) *ValidationManager {
	m := &ValidationManager{
		codec:          codec,
		verifier:       v,
		store:          store,
		fingerprints:   fingerprints,
		recorder:       noopRecorder{},
		clock:          clockwork.NewRealClock(),
		gracePeriod:    DefaultGracePeriod,
		interval:       DefaultRevalidationInterval,
		requestTimeout: DefaultRequestTimeout,
		clientVersion:  verifier.DevVersion,
		state:          StateUnvalidated,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// outcome is the resolution of one validation attempt.
type outcome struct {
	state       State
	licenseType license.LicenseType
	features    license.Features
	expiresAt   *time.Time
	validatedAt time.Time
	fingerprint string
	err         error
}

// Validate checks key and adopts the result as the current license state.
// Concurrent calls for the same key share one attempt; across different keys
// the call that resolves last wins. The shared attempt is not tied to any one
// caller's ctx: a caller whose ctx ends returns false without affecting the
// others.
func (m *ValidationManager) Validate(ctx context.Context, key string) bool {
	key = license.FormatKey(strings.ToUpper(key))

	m.mu.Lock()
	epoch := m.epoch
	m.inFlight++
	if m.state != StateValidating {
		m.settled = m.state
	}
	if !m.state.Valid() {
		m.state = StateValidating
	}
	m.mu.Unlock()

	attempt := m.group.DoChan(key, func() (any, error) {
		return m.resolve(context.WithoutCancel(ctx), key), nil
	})

	select {
	case res := <-attempt:
		return m.commit(ctx, epoch, key, res.Val.(outcome))
	case <-ctx.Done():
		m.abandon(key, ctx.Err())
		return false
	}
}

// abandon leaves an attempt whose caller gave up. The attempt itself keeps
// running for any other caller sharing it.
func (m *ValidationManager) abandon(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inFlight--
	if m.inFlight == 0 && m.state == StateValidating {
		m.state = m.settled
	}

	log.Debug().Err(err).Str("licenseKey", license.MaskKey(key)).Msg("License validation abandoned by caller")
}

// Resume validates the key held in the persisted snapshot, if any.
func (m *ValidationManager) Resume(ctx context.Context) bool {
	snapshot, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrSnapshotNotFound) {
			log.Warn().Err(err).Msg("Could not load license snapshot")
		}
		return false
	}
	return m.Validate(ctx, snapshot.LicenseKey)
}

// resolve runs one attempt. ctx carries no cancellation of its own; each
// network or store call below is bounded by the request timeout.
func (m *ValidationManager) resolve(ctx context.Context, key string) outcome {
	payload, err := m.codec.Decode(key)
	if err != nil {
		return outcome{state: StateInvalid, err: err}
	}

	out, err := m.online(ctx, key, payload)
	if err == nil {
		return out
	}

	// A key past its embedded expiry can still be renewed server side, so it
	// is only refused once the server has had its say.
	if payload.ExpiresAt != nil && m.clock.Now().After(*payload.ExpiresAt) {
		err = fmt.Errorf("%w on %s: %v", ErrExpired, payload.ExpiresAt.Format(time.DateOnly), err)
	}

	log.Warn().
		Err(err).
		Str("licenseKey", license.MaskKey(key)).
		Msg("Online license validation failed, trying offline validation")

	return m.offline(ctx, key, err)
}

func (m *ValidationManager) online(ctx context.Context, key string, payload *license.Payload) (outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()

	fingerprint, err := m.fingerprints.Fingerprint(ctx)
	if err != nil {
		return outcome{}, fmt.Errorf("%w: fingerprint: %v", ErrNetworkUnavailable, err)
	}

	resp, err := m.verifier.Verify(ctx, verifier.Request{
		LicenseKey:          key,
		HardwareFingerprint: fingerprint,
		ClientVersion:       m.clientVersion,
	})
	if err != nil {
		return outcome{}, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	if !resp.Valid {
		if resp.Message != "" {
			return outcome{}, fmt.Errorf("%w: %s", ErrLicenseRejected, resp.Message)
		}
		return outcome{}, ErrLicenseRejected
	}

	licenseType := resp.LicenseType
	if licenseType == "" {
		licenseType = payload.LicenseType
	}

	return outcome{
		state:       StateValidOnline,
		licenseType: licenseType,
		features:    resp.Features,
		expiresAt:   resp.ExpiresAt,
		validatedAt: m.clock.Now(),
		fingerprint: fingerprint,
	}, nil
}

// offline accepts key only when a fresh, unexpired snapshot for the same key
// exists. onlineErr is kept as context for the failure reason.
func (m *ValidationManager) offline(ctx context.Context, key string, onlineErr error) outcome {
	invalid := func(err error) outcome {
		return outcome{state: StateInvalid, err: fmt.Errorf("%w (online: %v)", err, onlineErr)}
	}

	ctx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()

	snapshot, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, models.ErrSnapshotNotFound):
		return invalid(ErrNoSnapshot)
	case err != nil:
		log.Error().Err(err).Msg("Failed to load license snapshot")
		return invalid(fmt.Errorf("%w: %v", ErrSnapshotUnreadable, err))
	}

	now := m.clock.Now()
	switch {
	case !snapshot.Matches(key):
		return invalid(ErrSnapshotMismatch)
	case !snapshot.WithinGrace(now, m.gracePeriod):
		return invalid(fmt.Errorf("%w: last online validation %s ago", ErrGracePeriodExceeded,
			now.Sub(snapshot.LastValidatedAt).Round(time.Minute)))
	case snapshot.IsExpired(now):
		return invalid(ErrExpired)
	case !m.codec.ValidateFormat(key):
		return invalid(license.ErrMalformedKey)
	}

	return outcome{
		state:       StateValidOffline,
		licenseType: snapshot.LicenseType,
		features:    snapshot.Features,
		expiresAt:   snapshot.ExpiresAt,
		validatedAt: snapshot.LastValidatedAt,
		fingerprint: snapshot.HardwareFingerprint,
	}
}

func (m *ValidationManager) commit(ctx context.Context, epoch uint64, key string, out outcome) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inFlight--
	if epoch != m.epoch {
		log.Debug().Str("licenseKey", license.MaskKey(key)).Msg("Discarding validation result after clear")
		if m.inFlight == 0 && m.state == StateValidating {
			m.state = StateUnvalidated
		}
		return false
	}

	switch out.state {
	case StateValidOnline:
		m.persistLocked(ctx, key, out)
	case StateValidOffline:
	default:
		m.state = StateInvalid
		m.key = ""
		m.licenseType = ""
		m.features = license.Features{}
		m.expiresAt = nil
		m.lastValidated = time.Time{}
		m.lastErr = out.err
		m.stopLoopLocked()
		m.recorder.RecordValidation(ResultInvalid)

		log.Warn().
			Err(out.err).
			Str("licenseKey", license.MaskKey(key)).
			Msg("License validation failed")
		return false
	}

	m.adoptLocked(key, out)
	m.lastErr = nil
	m.startLoopLocked(key)

	result := ResultOnline
	if out.state == StateValidOffline {
		result = ResultOffline
	}
	m.recorder.RecordValidation(result)

	log.Info().
		Str("licenseKey", license.MaskKey(key)).
		Str("licenseType", out.licenseType.String()).
		Str("mode", result).
		Strs("features", out.features.List()).
		Msg("License validated")
	return true
}

func (m *ValidationManager) adoptLocked(key string, out outcome) {
	m.state = out.state
	m.key = key
	m.licenseType = out.licenseType
	m.features = out.features
	m.expiresAt = out.expiresAt
	m.lastValidated = out.validatedAt
}

// persistLocked must run under m.mu so that Clear cannot interleave with it.
func (m *ValidationManager) persistLocked(ctx context.Context, key string, out outcome) {
	snapshot := &models.ValidationSnapshot{
		LicenseKey:          key,
		Features:            out.features,
		ExpiresAt:           out.expiresAt,
		LicenseType:         out.licenseType,
		LastValidatedAt:     out.validatedAt,
		HardwareFingerprint: out.fingerprint,
	}
	if err := m.store.Save(context.WithoutCancel(ctx), snapshot); err != nil {
		log.Error().Err(err).Msg("Failed to persist license snapshot")
	}
}

func (m *ValidationManager) startLoopLocked(key string) {
	m.stopLoopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancelLoop = cancel
	m.loopDone = done

	ticker := m.clock.NewTicker(m.interval)
	go m.loop(ctx, ticker, done, m.epoch, key)
}

func (m *ValidationManager) stopLoopLocked() chan struct{} {
	done := m.loopDone
	if m.cancelLoop != nil {
		m.cancelLoop()
	}
	m.cancelLoop = nil
	m.loopDone = nil
	return done
}

func (m *ValidationManager) loop(ctx context.Context, ticker clockwork.Ticker, done chan struct{}, epoch uint64, key string) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			m.revalidate(ctx, epoch, key)
		}
	}
}

// revalidate refreshes the current license online. Failures are logged and
// counted but never demote the session.
func (m *ValidationManager) revalidate(ctx context.Context, epoch uint64, key string) {
	payload, err := m.codec.Decode(key)
	if err != nil {
		return
	}

	out, err := m.online(ctx, key, payload)
	if err != nil {
		m.recorder.RecordRevalidation(false)
		log.Warn().
			Err(err).
			Str("licenseKey", license.MaskKey(key)).
			Msg("Background license re-validation failed")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch || key != m.key || !m.state.Valid() || ctx.Err() != nil {
		return
	}

	m.persistLocked(ctx, key, out)
	m.adoptLocked(key, out)
	m.recorder.RecordRevalidation(true)

	log.Debug().Str("licenseKey", license.MaskKey(key)).Msg("License re-validated")
}

// Clear stops background re-validation, forgets the current license and
// erases the persisted snapshot. It is safe to call repeatedly.
func (m *ValidationManager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	m.stopLoopLocked()

	m.state = StateUnvalidated
	m.key = ""
	m.licenseType = ""
	m.features = license.Features{}
	m.expiresAt = nil
	m.lastValidated = time.Time{}
	m.lastErr = nil

	if err := m.store.Delete(ctx); err != nil {
		return fmt.Errorf("failed to erase license snapshot: %w", err)
	}

	log.Info().Msg("License cleared")
	return nil
}

// Close stops background re-validation and waits for the loop to exit. The
// current state and the persisted snapshot are kept.
func (m *ValidationManager) Close() {
	m.mu.Lock()
	m.epoch++
	done := m.stopLoopLocked()
	m.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Features returns the current feature set. It is empty unless the license is valid.
func (m *ValidationManager) Features() license.Features {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.features
}

func (m *ValidationManager) IsFeatureEnabled(name string) bool {
	return m.Features().Enabled(name)
}

// RequireFeature returns nil when name is enabled, and a descriptive error
// otherwise.
func (m *ValidationManager) RequireFeature(name string) error {
	if !license.IsKnownFeature(name) {
		if suggestion, ok := license.SuggestFeature(name); ok {
			return fmt.Errorf("%w: %q (did you mean %q?)", license.ErrUnknownFeature, name, suggestion)
		}
		return fmt.Errorf("%w: %q", license.ErrUnknownFeature, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.features.Enabled(name) {
		return nil
	}
	return &FeatureNotEnabledError{
		Feature:     name,
		LicenseType: m.licenseType.String(),
		State:       m.state,
	}
}

func (m *ValidationManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ValidationManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		State:                m.state,
		LicenseType:          m.licenseType,
		Features:             m.features,
		ExpiresAt:            m.expiresAt,
		RevalidationActive:   m.cancelLoop != nil,
		RevalidationInterval: m.interval.String(),
		GracePeriod:          m.gracePeriod.String(),
	}
	if m.key != "" {
		s.LicenseKey = license.MaskKey(m.key)
	}
	if !m.lastValidated.IsZero() {
		t := m.lastValidated
		s.LastValidatedAt = &t
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}
