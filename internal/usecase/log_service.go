package usecase

import (
	"context"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
)

const (
	defaultLogPageSize = 50
	maxLogPageSize     = 500
)

// validOutcomes are the accepted values of the forwarding-log status filter.
var validOutcomes = map[string]struct{}{
	model.ForwardOutcomeSuccess: {},
	model.ForwardOutcomeFailed:  {},
	model.ForwardOutcomeRetry:   {},
	model.ForwardOutcomeSkipped: {},
}

// ForwardingLogPage is one page of forwarding log entries, newest first.
type ForwardingLogPage struct {
	Entries []model.ForwardingLog `json:"entries"`
	Total   int64                 `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// List returns a page of the scope's forwarding log. outcome filters by
// attempt outcome when non-empty; limit and offset are clamped to sane
// bounds.
func (s *LogService) List(ctx context.Context, outcome string, limit, offset int) (*ForwardingLogPage, error) {
	if outcome != "" {
		if _, ok := validOutcomes[outcome]; !ok {
			return nil, apperrors.NewFatal(apperrors.ErrValidation, "unknown forwarding log status %q", outcome)
		}
	}
	if limit <= 0 {
		limit = defaultLogPageSize
	}
	if limit > maxLogPageSize {
		limit = maxLogPageSize
	}
	if offset < 0 {
		offset = 0
	}

	entries, total, err := s.logRepo.List(ctx, outcome, limit, offset)
	if err != nil {
		return nil, err
	}
	return &ForwardingLogPage{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// Stats returns the scope's aggregate delivery counts per outcome plus
// per-rule success counters.
func (s *LogService) Stats(ctx context.Context) (*model.ForwardingStats, error) {
	return s.logRepo.Stats(ctx)
}
