package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_Log(t *testing.T) {
	tests := []struct {
		name          string
		event         Event
		wantEventType string
		wantIdentity  string
		wantSuccess   bool
		wantHasError  bool
	}{
		{
			name: "identity verified event",
			event: Event{
				AttemptID: uuid.New(),
				EventType: EventIdentityVerified,
				Identity:  "ada",
				Provider:  "mock",
				Success:   true,
				Metadata: map[string]string{
					"confidence": "0.93",
				},
			},
			wantEventType: string(EventIdentityVerified),
			wantIdentity:  "ada",
			wantSuccess:   true,
			wantHasError:  false,
		},
		{
			name: "lockout event",
			event: Event{
				AttemptID: uuid.New(),
				EventType: EventLockout,
				Identity:  "grace",
				Provider:  "rekognition",
				Success:   false,
			},
			wantEventType: string(EventLockout),
			wantIdentity:  "grace",
			wantSuccess:   false,
			wantHasError:  false,
		},
		{
			name: "failed enrollment with error",
			event: Event{
				EventType: EventIdentityEnrolled,
				Identity:  "grace",
				Provider:  "mock",
				Success:   false,
				Error:     "no face detected",
			},
			wantEventType: string(EventIdentityEnrolled),
			wantIdentity:  "grace",
			wantSuccess:   false,
			wantHasError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
			logger := slog.New(handler)

			auditLogger := NewSlogLogger(logger)

			err := auditLogger.Log(context.Background(), tt.event)
			require.NoError(t, err)

			output := buf.String()
			require.NotEmpty(t, output)

			var logEntry map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(output), &logEntry))

			assert.Equal(t, "audit_event", logEntry["msg"])
			assert.Equal(t, tt.wantEventType, logEntry["event_type"])
			assert.Equal(t, tt.wantIdentity, logEntry["identity"])
			assert.Equal(t, tt.wantSuccess, logEntry["success"])
			assert.Equal(t, "audit", logEntry["component"])

			eventData, ok := logEntry["event_data"].(string)
			require.True(t, ok, "event_data should be a string")

			var event Event
			require.NoError(t, json.Unmarshal([]byte(eventData), &event))

			assert.NotEqual(t, uuid.Nil, event.ID, "event ID should be assigned")
			assert.False(t, event.Timestamp.IsZero(), "timestamp should be assigned")

			if tt.wantHasError {
				assert.True(t, strings.Contains(eventData, tt.event.Error))
			}
		})
	}
}

func TestSlogLogger_PreservesProvidedIDAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	auditLogger := NewSlogLogger(logger)

	id := uuid.New()
	ts := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	err := auditLogger.Log(context.Background(), Event{
		ID:        id,
		Timestamp: ts,
		EventType: EventFaceMatched,
		Identity:  "ada",
		Provider:  "mock",
		Success:   true,
	})
	require.NoError(t, err)

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	var event Event
	require.NoError(t, json.Unmarshal([]byte(logEntry["event_data"].(string)), &event))

	assert.Equal(t, id, event.ID)
	assert.True(t, event.Timestamp.Equal(ts))
}

func TestNoOpLogger(t *testing.T) {
	l := &NoOpLogger{}
	assert.NoError(t, l.Log(context.Background(), Event{EventType: EventPinRejected}))
}
