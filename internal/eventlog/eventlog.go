package eventlog

import (
	"fmt"
	"os"
	"sync"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// timestampLayout is the fixed wire format of the third field. Existing log
// consumers parse it, so it never changes.
const timestampLayout = "2006-01-02 15:04:05"

// Recorder appends verification outcomes to the attendance and anomaly
// logs. Each outcome becomes exactly one KIND,NAME,TIMESTAMP line, written
// whole under a mutex and fsynced before Record returns.
type Recorder struct {
	mu         sync.Mutex
	attendance *os.File
	anomaly    *os.File
}

// Open creates or opens both log files for appending. Both files exist
// from startup even before the first event.
func Open(attendancePath, anomalyPath string) (*Recorder, error) {
	attendance, err := os.OpenFile(attendancePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, domain.ErrPersistence.WithError(fmt.Errorf("open attendance log: %w", err))
	}

	anomaly, err := os.OpenFile(anomalyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		attendance.Close()
		return nil, domain.ErrPersistence.WithError(fmt.Errorf("open anomaly log: %w", err))
	}

	return &Recorder{
		attendance: attendance,
		anomaly:    anomaly,
	}, nil
}

// Record appends the outcome to its log. Attendance goes to the attendance
// log; anomalies and incorrect PIN attempts go to the anomaly log. Kinds
// that are not loggable are a caller bug.
func (r *Recorder) Record(outcome domain.Outcome) error {
	var target *os.File

	switch outcome.Kind {
	case domain.OutcomeAttendance:
		target = r.attendance
	case domain.OutcomeAnomaly, domain.OutcomeIncorrectPin:
		target = r.anomaly
	default:
		return fmt.Errorf("outcome kind %q is not loggable", outcome.Kind)
	}

	line := fmt.Sprintf("%s,%s,%s\n", outcome.Kind, outcome.Name, outcome.Timestamp.Format(timestampLayout))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := target.WriteString(line); err != nil {
		return domain.ErrPersistence.WithError(err)
	}
	if err := target.Sync(); err != nil {
		return domain.ErrPersistence.WithError(err)
	}

	return nil
}

// Close releases both log files.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errA := r.attendance.Close()
	errB := r.anomaly.Close()
	if errA != nil {
		return errA
	}
	return errB
}
