package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/registry"
)

type MockMatcher struct {
	mock.Mock
}

func (m *MockMatcher) Match(ctx context.Context, probe []float64) (domain.MatchResult, error) {
	args := m.Called(ctx, probe)
	return args.Get(0).(domain.MatchResult), args.Error(1)
}

type MockPinReader struct {
	mock.Mock
}

func (m *MockPinReader) RequestPin(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) Grant(name string) (string, error) {
	args := m.Called(name)
	return args.String(0), args.Error(1)
}

// fakeAudit collects emitted audit events in memory
type fakeAudit struct {
	events []audit.Event
}

func (a *fakeAudit) Log(_ context.Context, event audit.Event) error {
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) eventTypes() []audit.EventType {
	types := make([]audit.EventType, 0, len(a.events))
	for _, e := range a.events {
		types = append(types, e.EventType)
	}
	return types
}

// fakeRecorder collects recorded outcomes in memory
type fakeRecorder struct {
	recorded []domain.Outcome
	err      error
}

func (r *fakeRecorder) Record(outcome domain.Outcome) error {
	if r.err != nil {
		return r.err
	}
	r.recorded = append(r.recorded, outcome)
	return nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.Enroll(&domain.Identity{Name: "ada", Pin: "4321", Embedding: []float64{1}}))
	require.NoError(t, reg.Enroll(&domain.Identity{Name: "root", Pin: "9999", Embedding: []float64{2}}))
	return reg
}

func testConfig() Config {
	return Config{
		AdminName:        "root",
		LockoutThreshold: 3,
		ProviderName:     "mock",
	}
}

func failedAttempts(t *testing.T, reg *registry.Registry, name string) int {
	t.Helper()

	id, err := reg.LookupByName(name)
	require.NoError(t, err)
	return id.FailedAttempts
}

func TestVerifier_Verify_Attendance(t *testing.T) {
	reg := testRegistry(t)
	probe := []float64{1}

	matcher := &MockMatcher{}
	matcher.On("Match", mock.Anything, probe).Return(domain.MatchResult{Name: "ada", Confidence: 0.93}, nil)

	pins := &MockPinReader{}
	pins.On("RequestPin", mock.Anything, "ada").Return("4321", nil)

	sessions := &MockSessions{}
	recorder := &fakeRecorder{}

	v := New(reg, matcher, pins, recorder, sessions, nil, testConfig())

	outcome, err := v.Verify(context.Background(), probe)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAttendance, outcome.Kind)
	assert.Equal(t, "ada", outcome.Name)
	assert.Empty(t, outcome.AdminSession)
	assert.False(t, outcome.Timestamp.IsZero())

	// Counter stays at zero (idempotent reset) and exactly one line logged
	assert.Equal(t, 0, failedAttempts(t, reg, "ada"))
	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, domain.OutcomeAttendance, recorder.recorded[0].Kind)

	sessions.AssertNotCalled(t, "Grant", mock.Anything)
}

func TestVerifier_Verify_LockoutAfterThreeFailures(t *testing.T) {
	reg := testRegistry(t)
	probe := []float64{1}

	matcher := &MockMatcher{}
	matcher.On("Match", mock.Anything, probe).Return(domain.MatchResult{Name: "ada", Confidence: 0.9}, nil)

	pins := &MockPinReader{}
	pins.On("RequestPin", mock.Anything, "ada").Return("0000", nil)

	recorder := &fakeRecorder{}
	v := New(reg, matcher, pins, recorder, &MockSessions{}, nil, testConfig())

	for i := 1; i <= 3; i++ {
		outcome, err := v.Verify(context.Background(), probe)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeIncorrectPin, outcome.Kind)
		assert.Equal(t, i, failedAttempts(t, reg, "ada"))
	}

	// Fourth match: hard gate, no PIN prompt at all
	freshPins := &MockPinReader{}
	locked := New(reg, matcher, freshPins, recorder, &MockSessions{}, nil, testConfig())

	outcome, err := locked.Verify(context.Background(), probe)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAnomaly, outcome.Kind)
	assert.Equal(t, "ada", outcome.Name)
	freshPins.AssertNotCalled(t, "RequestPin", mock.Anything, mock.Anything)

	// Lockout does not move the counter
	assert.Equal(t, 3, failedAttempts(t, reg, "ada"))

	require.Len(t, recorder.recorded, 4)
	assert.Equal(t, domain.OutcomeAnomaly, recorder.recorded[3].Kind)
}

func TestVerifier_Verify_SuccessResetsCounter(t *testing.T) {
	reg := testRegistry(t)
	require.NoError(t, reg.IncrementFailure("ada"))
	require.NoError(t, reg.IncrementFailure("ada"))

	probe := []float64{1}
	matcher := &MockMatcher{}
	matcher.On("Match", mock.Anything, probe).Return(domain.MatchResult{Name: "ada", Confidence: 0.9}, nil)

	pins := &MockPinReader{}
	pins.On("RequestPin", mock.Anything, "ada").Return("4321", nil)

	v := New(reg, matcher, pins, &fakeRecorder{}, &MockSessions{}, nil, testConfig())

	outcome, err := v.Verify(context.Background(), probe)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAttendance, outcome.Kind)
	assert.Equal(t, 0, failedAttempts(t, reg, "ada"))
}

func TestVerifier_Verify_Unmatched(t *testing.T) {
	reg := testRegistry(t)
	probe := []float64{42}

	matcher := &MockMatcher{}
	matcher.On("Match", mock.Anything, probe).Return(domain.MatchResult{}, nil)

	pins := &MockPinReader{}
	recorder := &fakeRecorder{}

	v := New(reg, matcher, pins, recorder, &MockSessions{}, nil, testConfig())

	outcome, err := v.Verify(context.Background(), probe)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeUnmatched, outcome.Kind)
	assert.Empty(t, outcome.Name)

	// Unknown faces leave no trace: no log line, no counter movement
	assert.Empty(t, recorder.recorded)
	pins.AssertNotCalled(t, "RequestPin", mock.Anything, mock.Anything)
	assert.Equal(t, 0, failedAttempts(t, reg, "ada"))
}

func TestVerifier_Verify_CancelledDoesNotPenalize(t *testing.T) {
	reg := testRegistry(t)
	probe := []float64{1}

	matcher := &MockMatcher{}
	matcher.On("Match", mock.Anything, probe).Return(domain.MatchResult{Name: "ada", Confidence: 0.9}, nil)

	pins := &MockPinReader{}
	pins.On("RequestPin", mock.Anything, "ada").Return("", domain.ErrPinCancelled)

	recorder := &fakeRecorder{}
	v := New(reg, matcher, pins, recorder, &MockSessions{}, nil, testConfig())

	outcome, err := v.Verify(context.Background(), probe)
	require.NoError(t, err)

	// Deliberately lenient: abandonment is distinct from a wrong PIN
	assert.Equal(t, domain.OutcomeCancelled, outcome.Kind)
	assert.Equal(t, 0, failedAttempts(t, reg, "ada"))
	assert.Empty(t, recorder.recorded)
}

// slowPinReader blocks until the context is done
type slowPinReader struct{}

func (slowPinReader) RequestPin(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestVerifier_Verify_PinTimeoutResolvesAsCancelled(t *testing.T) {
	reg := testRegistry(t)
	probe := []float64{1}

	matcher := &MockMatcher{}
	matcher.On("Match", mock.Anything, probe).Return(domain.MatchResult{Name: "ada", Confidence: 0.9}, nil)

	cfg := testConfig()
	cfg.PinTimeout = 10 * time.Millisecond

	recorder := &fakeRecorder{}
	v := New(reg, matcher, slowPinReader{}, recorder, &MockSessions{}, nil, cfg)

	outcome, err := v.Verify(context.Background(), probe)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeCancelled, outcome.Kind)
	assert.Equal(t, 0, failedAttempts(t, reg, "ada"))
	assert.Empty(t, recorder.recorded)
}

func TestVerifier_Verify_AdminSessionGrant(t *testing.T) {
	reg := testRegistry(t)
	probe := []float64{2}

	matcher := &MockMatcher{}
	matcher.On("Match", mock.Anything, probe).Return(domain.MatchResult{Name: "root", Confidence: 0.97}, nil)

	pins := &MockPinReader{}
	pins.On("RequestPin", mock.Anything, "root").Return("9999", nil)

	sessions := &MockSessions{}
	sessions.On("Grant", "root").Return("token-abc", nil)

	recorder := &fakeRecorder{}
	v := New(reg, matcher, pins, recorder, sessions, nil, testConfig())

	outcome, err := v.Verify(context.Background(), probe)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAttendance, outcome.Kind)
	assert.Equal(t, "token-abc", outcome.AdminSession)
	sessions.AssertExpectations(t)

	// The grant rides on the outcome, not on the log line
	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, domain.OutcomeAttendance, recorder.recorded[0].Kind)
}

func TestVerifier_Verify_MissingPinIsConfigurationError(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Enroll(&domain.Identity{Name: "ada", Embedding: []float64{1}}))

	probe := []float64{1}
	matcher := &MockMatcher{}
	matcher.On("Match", mock.Anything, probe).Return(domain.MatchResult{Name: "ada", Confidence: 0.9}, nil)

	pins := &MockPinReader{}
	recorder := &fakeRecorder{}
	auditLog := &fakeAudit{}

	v := New(reg, matcher, pins, recorder, &MockSessions{}, auditLog, testConfig())

	_, err := v.Verify(context.Background(), probe)
	assert.ErrorIs(t, err, domain.ErrMissingPin)

	// Fatal to the attempt: no prompt, no counter movement, no log line
	pins.AssertNotCalled(t, "RequestPin", mock.Anything, mock.Anything)
	assert.Equal(t, 0, failedAttempts(t, reg, "ada"))
	assert.Empty(t, recorder.recorded)

	// Audited as misconfiguration, never as an operator's wrong PIN
	assert.Contains(t, auditLog.eventTypes(), audit.EventConfigError)
	assert.NotContains(t, auditLog.eventTypes(), audit.EventPinRejected)
}

func TestVerifier_Verify_MatcherErrorIsFatal(t *testing.T) {
	matcherErr := errors.New("provider unavailable")

	matcher := &MockMatcher{}
	matcher.On("Match", mock.Anything, mock.Anything).Return(domain.MatchResult{}, matcherErr)

	v := New(testRegistry(t), matcher, &MockPinReader{}, &fakeRecorder{}, &MockSessions{}, nil, testConfig())

	_, err := v.Verify(context.Background(), []float64{1})
	assert.ErrorIs(t, err, matcherErr)
}

func TestVerifier_Verify_RecordFailureSurfaces(t *testing.T) {
	reg := testRegistry(t)
	probe := []float64{1}

	matcher := &MockMatcher{}
	matcher.On("Match", mock.Anything, probe).Return(domain.MatchResult{Name: "ada", Confidence: 0.9}, nil)

	pins := &MockPinReader{}
	pins.On("RequestPin", mock.Anything, "ada").Return("4321", nil)

	recorder := &fakeRecorder{err: domain.ErrPersistence}
	v := New(reg, matcher, pins, recorder, &MockSessions{}, nil, testConfig())

	outcome, err := v.Verify(context.Background(), probe)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, domain.OutcomeAttendance, outcome.Kind)
}
