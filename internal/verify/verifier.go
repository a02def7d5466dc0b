package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// IdentityRegistry is the slice of the registry the verifier needs.
type IdentityRegistry interface {
	LookupByName(name string) (*domain.Identity, error)
	IncrementFailure(name string) error
	ResetFailure(name string) error
}

// ProbeMatcher resolves a probe embedding to an enrolled identity.
type ProbeMatcher interface {
	Match(ctx context.Context, probe []float64) (domain.MatchResult, error)
}

// PinReader is the PIN-input collaborator. RequestPin blocks until the
// operator submits a PIN or aborts; an abort is domain.ErrPinCancelled.
type PinReader interface {
	RequestPin(ctx context.Context, name string) (string, error)
}

// OutcomeRecorder persists loggable outcomes to the event logs.
type OutcomeRecorder interface {
	Record(outcome domain.Outcome) error
}

// SessionGranter issues an administrator session token.
type SessionGranter interface {
	Grant(name string) (string, error)
}

// Config carries the verification policy.
type Config struct {
	AdminName        string
	LockoutThreshold int
	PinTimeout       time.Duration // 0 means wait forever
	ProviderName     string
}

// Verifier drives the two-factor flow for one probe: embedding match, then
// PIN confirmation, gated by the lockout counter. One probe is processed at
// a time; shared state (counters, log files) is serialized by its owners.
type Verifier struct {
	registry IdentityRegistry
	matcher  ProbeMatcher
	pins     PinReader
	recorder OutcomeRecorder
	sessions SessionGranter
	audit    audit.Logger
	cfg      Config

	now func() time.Time
}

func New(reg IdentityRegistry, matcher ProbeMatcher, pins PinReader, recorder OutcomeRecorder, sessions SessionGranter, auditLogger audit.Logger, cfg Config) *Verifier {
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}

	return &Verifier{
		registry: reg,
		matcher:  matcher,
		pins:     pins,
		recorder: recorder,
		sessions: sessions,
		audit:    auditLogger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Verify runs one verification attempt for the probe embedding.
//
// Terminal outcomes:
//   - Unmatched: nobody matched; nothing is logged and no counter moves.
//   - Anomaly: the matched identity is locked out; no PIN prompt happens.
//   - Attendance: PIN accepted; counter reset to zero. The administrator
//     additionally receives a session token on the outcome.
//   - IncorrectPin: PIN rejected; counter incremented by one.
//   - Cancelled: the operator abandoned PIN entry (or it timed out); the
//     counter does not move and nothing is logged.
//
// A registered identity without a PIN is a configuration error, fatal to
// the attempt, never an incorrect-PIN event.
func (v *Verifier) Verify(ctx context.Context, probe []float64) (domain.Outcome, error) {
	attemptID := uuid.New()

	result, err := v.matcher.Match(ctx, probe)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("match probe: %w", err)
	}

	if !result.Identified() {
		// Intentionally silent: unrecognized faces produce no event.
		return domain.Outcome{
			AttemptID: attemptID,
			Kind:      domain.OutcomeUnmatched,
			Timestamp: v.now(),
		}, nil
	}

	identity, err := v.registry.LookupByName(result.Name)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("lookup matched identity %s: %w", result.Name, err)
	}

	v.logAudit(ctx, attemptID, audit.EventFaceMatched, identity.Name, true, nil, map[string]string{
		"confidence": fmt.Sprintf("%.4f", result.Confidence),
	})

	if identity.LockedOut(v.cfg.LockoutThreshold) {
		return v.lockedOut(ctx, attemptID, identity, result.Confidence)
	}

	if identity.Pin == "" {
		err := domain.ErrMissingPin.WithError(fmt.Errorf("identity %s", identity.Name))
		v.logAudit(ctx, attemptID, audit.EventConfigError, identity.Name, false, err, nil)
		return domain.Outcome{}, err
	}

	return v.awaitPin(ctx, attemptID, identity, result.Confidence)
}

func (v *Verifier) lockedOut(ctx context.Context, attemptID uuid.UUID, identity *domain.Identity, confidence float64) (domain.Outcome, error) {
	outcome := domain.Outcome{
		AttemptID:  attemptID,
		Kind:       domain.OutcomeAnomaly,
		Name:       identity.Name,
		Confidence: confidence,
		Timestamp:  v.now(),
	}

	v.logAudit(ctx, attemptID, audit.EventLockout, identity.Name, false, nil, map[string]string{
		"failed_attempts": fmt.Sprintf("%d", identity.FailedAttempts),
	})

	if err := v.recorder.Record(outcome); err != nil {
		return outcome, fmt.Errorf("record anomaly: %w", err)
	}

	return outcome, nil
}

func (v *Verifier) awaitPin(ctx context.Context, attemptID uuid.UUID, identity *domain.Identity, confidence float64) (domain.Outcome, error) {
	pinCtx := ctx
	if v.cfg.PinTimeout > 0 {
		var cancel context.CancelFunc
		pinCtx, cancel = context.WithTimeout(ctx, v.cfg.PinTimeout)
		defer cancel()
	}

	pin, err := v.pins.RequestPin(pinCtx, identity.Name)
	if err != nil {
		if errors.Is(err, domain.ErrPinCancelled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// Abandonment is not a failed attempt: no counter movement,
			// no log line.
			v.logAudit(ctx, attemptID, audit.EventPinCancelled, identity.Name, false, err, nil)
			return domain.Outcome{
				AttemptID: attemptID,
				Kind:      domain.OutcomeCancelled,
				Name:      identity.Name,
				Timestamp: v.now(),
			}, nil
		}
		return domain.Outcome{}, fmt.Errorf("request pin for %s: %w", identity.Name, err)
	}

	if pin != identity.Pin {
		return v.pinRejected(ctx, attemptID, identity, confidence)
	}

	return v.verified(ctx, attemptID, identity, confidence)
}

func (v *Verifier) pinRejected(ctx context.Context, attemptID uuid.UUID, identity *domain.Identity, confidence float64) (domain.Outcome, error) {
	if err := v.registry.IncrementFailure(identity.Name); err != nil {
		return domain.Outcome{}, fmt.Errorf("increment failures for %s: %w", identity.Name, err)
	}

	outcome := domain.Outcome{
		AttemptID:  attemptID,
		Kind:       domain.OutcomeIncorrectPin,
		Name:       identity.Name,
		Confidence: confidence,
		Timestamp:  v.now(),
	}

	v.logAudit(ctx, attemptID, audit.EventPinRejected, identity.Name, false, nil, nil)

	if err := v.recorder.Record(outcome); err != nil {
		return outcome, fmt.Errorf("record incorrect pin: %w", err)
	}

	return outcome, nil
}

func (v *Verifier) verified(ctx context.Context, attemptID uuid.UUID, identity *domain.Identity, confidence float64) (domain.Outcome, error) {
	// Reset is idempotent: a counter already at zero stays at zero.
	if err := v.registry.ResetFailure(identity.Name); err != nil {
		return domain.Outcome{}, fmt.Errorf("reset failures for %s: %w", identity.Name, err)
	}

	outcome := domain.Outcome{
		AttemptID:  attemptID,
		Kind:       domain.OutcomeAttendance,
		Name:       identity.Name,
		Confidence: confidence,
		Timestamp:  v.now(),
	}

	if v.isAdmin(identity.Name) {
		token, err := v.sessions.Grant(identity.Name)
		if err != nil {
			return domain.Outcome{}, fmt.Errorf("grant admin session for %s: %w", identity.Name, err)
		}
		outcome.AdminSession = token
	}

	v.logAudit(ctx, attemptID, audit.EventIdentityVerified, identity.Name, true, nil, map[string]string{
		"confidence": fmt.Sprintf("%.4f", confidence),
		"admin":      fmt.Sprintf("%t", outcome.AdminSession != ""),
	})

	if err := v.recorder.Record(outcome); err != nil {
		return outcome, fmt.Errorf("record attendance: %w", err)
	}

	return outcome, nil
}

func (v *Verifier) isAdmin(name string) bool {
	return v.cfg.AdminName != "" && strings.EqualFold(name, v.cfg.AdminName)
}

// logAudit emits an audit event, fire-and-forget: audit failure never
// affects the attempt.
func (v *Verifier) logAudit(ctx context.Context, attemptID uuid.UUID, eventType audit.EventType, name string, success bool, err error, metadata map[string]string) {
	event := audit.Event{
		AttemptID: attemptID,
		EventType: eventType,
		Identity:  name,
		Provider:  v.cfg.ProviderName,
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	_ = v.audit.Log(ctx, event)
}
