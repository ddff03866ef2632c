package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sunfin/quote-engine/internal/model"
)

// ViolationDetector is the slice of the penalty store the SLA pass reads.
type ViolationDetector interface {
	ListOverdueInstallations(ctx context.Context, now time.Time) ([]model.OverdueInstallation, error)
}

// AutoPenaltyApplier applies one detected violation idempotently.
type AutoPenaltyApplier interface {
	ApplyAuto(ctx context.Context, violation model.OverdueInstallation) (*model.Penalty, bool, error)
}

// PassSummary reports one detection and application pass.
type PassSummary struct {
	ViolationsDetected int `json:"violations_detected"`
	PenaltiesApplied   int `json:"penalties_applied"`
}

// SLAService runs the violation detection and automatic penalty application
// pass. The periodic timer and the manual admin trigger both call RunOnce, so
// the outcome is identical regardless of how the pass was started.
type SLAService struct {
	detector ViolationDetector
	applier  AutoPenaltyApplier
	log      zerolog.Logger
}

func NewSLAService(detector ViolationDetector, applier AutoPenaltyApplier, log zerolog.Logger) *SLAService {
	return &SLAService{
		detector: detector,
		applier:  applier,
		log:      log,
	}
}

// RunOnce detects all current violations and applies auto-penalties for those
// matching an auto-apply rule. A failure on one violation is logged and does
// not stop the rest of the pass.
func (s *SLAService) RunOnce(ctx context.Context) (PassSummary, error) {
	now := time.Now()
	violations, err := s.detector.ListOverdueInstallations(ctx, now)
	if err != nil {
		return PassSummary{}, err
	}

	summary := PassSummary{ViolationsDetected: len(violations)}
	for _, violation := range violations {
		penalty, applied, err := s.applier.ApplyAuto(ctx, violation)
		if err != nil {
			s.log.Error().
				Err(err).
				Str("request_id", violation.RequestID.String()).
				Str("contractor_id", violation.ContractorID.String()).
				Msg("auto penalty application failed")
			continue
		}
		if applied {
			summary.PenaltiesApplied++
			s.log.Info().
				Str("penalty_id", penalty.ID.String()).
				Str("request_id", violation.RequestID.String()).
				Str("amount", penalty.Amount.String()).
				Msg("late installation penalty applied")
		}
	}

	s.log.Info().
		Int("violations_detected", summary.ViolationsDetected).
		Int("penalties_applied", summary.PenaltiesApplied).
		Msg("sla pass finished")
	return summary, nil
}
