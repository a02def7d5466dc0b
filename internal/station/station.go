package station

import (
	"context"
	"errors"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// Embedder encodes a frame into a probe embedding.
type Embedder interface {
	Embed(ctx context.Context, image []byte) ([]float64, error)
}

// Verifier runs the two-factor flow for one probe.
type Verifier interface {
	Verify(ctx context.Context, probe []float64) (domain.Outcome, error)
}

// Station is the unattended kiosk loop: frames in, outcomes out. One frame
// is processed at a time; the spool absorbs bursts.
type Station struct {
	frames   FrameSource
	embedder Embedder
	verifier Verifier
	console  AdminConsole
	logger   *slog.Logger
}

func New(frames FrameSource, embedder Embedder, verifier Verifier, console AdminConsole, logger *slog.Logger) *Station {
	return &Station{
		frames:   frames,
		embedder: embedder,
		verifier: verifier,
		console:  console,
		logger:   logger,
	}
}

// Run processes frames until the context is cancelled. Frame-level problems
// (unreadable image, no face, wrong PIN) never stop the loop; a failure to
// persist an event log line does, because silently dropped records are
// worse than a halted kiosk.
func (s *Station) Run(ctx context.Context) error {
	s.logger.Info("station started")

	for {
		frame, err := s.frames.NextFrame(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Info("station stopped")
				return nil
			}
			if errors.Is(err, ErrNoFrame) {
				continue
			}
			return err
		}

		probe, err := s.embedder.Embed(ctx, frame)
		if err != nil {
			s.logger.Warn("frame rejected", slog.String("error", err.Error()))
			continue
		}

		outcome, err := s.verifier.Verify(ctx, probe)
		if err != nil {
			if errors.Is(err, domain.ErrPersistence) {
				return err
			}
			s.logger.Error("verification attempt failed", slog.String("error", err.Error()))
			continue
		}

		s.report(ctx, outcome)
	}
}

func (s *Station) report(ctx context.Context, outcome domain.Outcome) {
	switch outcome.Kind {
	case domain.OutcomeAttendance:
		s.logger.Info("attendance recorded",
			slog.String("name", outcome.Name),
			slog.Float64("confidence", outcome.Confidence))
	case domain.OutcomeAnomaly:
		s.logger.Warn("anomaly recorded",
			slog.String("name", outcome.Name))
	case domain.OutcomeIncorrectPin:
		s.logger.Warn("incorrect pin attempt",
			slog.String("name", outcome.Name))
	case domain.OutcomeCancelled:
		s.logger.Info("pin entry cancelled",
			slog.String("name", outcome.Name))
	case domain.OutcomeUnmatched:
		s.logger.Debug("unmatched probe")
	}

	if outcome.AdminSession == "" {
		return
	}

	if err := s.console.Open(ctx, outcome.Name, outcome.AdminSession); err != nil {
		s.logger.Error("failed to open admin console", slog.String("error", err.Error()))
	}
}
