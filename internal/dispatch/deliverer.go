package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/observer"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/storage"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/utils"
)

const (
	userAgent         = "lead-routing-engine/1.0"
	sourceScopeHeader = "X-Lead-Source"
)

// Disposition tells the queue loop what to do with the message after an
// attempt.
type Disposition int

const (
	// DispositionAck acknowledges the job: delivered, or skipped for a
	// reason that retrying cannot change.
	DispositionAck Disposition = iota
	// DispositionRetry NAKs the job back onto the stream with a delay.
	DispositionRetry
	// DispositionTerminate drops the job after its terminal failure.
	DispositionTerminate
)

// Deliverer performs one webhook delivery attempt and records it in the
// forwarding log. It holds no queue state, so it is testable with a plain
// HTTP server.
type Deliverer struct {
	ruleRepo     storage.RuleRepo
	logRepo      storage.ForwardingLogRepo
	settingsRepo storage.SettingsRepo
	client       *http.Client
}

// NewDeliverer creates a deliverer with the given per-attempt HTTP timeout.
func NewDeliverer(ruleRepo storage.RuleRepo, logRepo storage.ForwardingLogRepo, settingsRepo storage.SettingsRepo, timeout time.Duration) *Deliverer {
	return &Deliverer{
		ruleRepo:     ruleRepo,
		logRepo:      logRepo,
		settingsRepo: settingsRepo,
		client:       &http.Client{Timeout: timeout},
	}
}

// Deliver runs one attempt of a dispatch job. retryCount is how many prior
// attempts this logical delivery has had; lastAttempt marks the final
// permitted one. Both the master toggle and the rule are re-read here, at
// dispatch time, so administrative changes gate jobs already in flight.
// Every attempt writes one forwarding log row, except a gating read failure
// that still has retries left; on the final attempt even those close out
// with a terminal failed row.
func (d *Deliverer) Deliver(ctx context.Context, job model.DispatchJob, retryCount int, lastAttempt bool) Disposition {
	log := logger.FromContext(ctx)
	start := utils.Now()

	settings, err := d.settingsRepo.Get(ctx)
	if err != nil {
		if lastAttempt {
			return d.failReads(ctx, job, retryCount, "forwarding toggle unreadable: "+err.Error())
		}
		log.Error("Failed to read forwarding toggle, retrying delivery later",
			zap.String("delivery_id", job.DeliveryID),
			zap.Error(err),
		)
		return DispositionRetry
	}
	if !settings.ForwardingEnabled {
		d.appendLog(ctx, job, model.ForwardOutcomeSkipped, 0, "forwarding disabled for scope", retryCount)
		observer.IncForwardOutcome(job.ScopeID, model.ForwardOutcomeSkipped)
		return DispositionAck
	}

	rule, err := d.ruleRepo.GetForwardingRule(ctx, job.RuleID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			d.appendLog(ctx, job, model.ForwardOutcomeSkipped, 0, "forwarding rule deleted", retryCount)
			observer.IncForwardOutcome(job.ScopeID, model.ForwardOutcomeSkipped)
			return DispositionAck
		}
		if lastAttempt {
			return d.failReads(ctx, job, retryCount, "forwarding rule unreadable: "+err.Error())
		}
		log.Error("Failed to read forwarding rule, retrying delivery later",
			zap.String("delivery_id", job.DeliveryID),
			zap.Int64("rule_id", job.RuleID),
			zap.Error(err),
		)
		return DispositionRetry
	}
	if !rule.IsActive || !rule.ForwardEnabled {
		d.appendLog(ctx, job, model.ForwardOutcomeSkipped, 0, "forwarding rule disabled", retryCount)
		observer.IncForwardOutcome(job.ScopeID, model.ForwardOutcomeSkipped)
		return DispositionAck
	}

	status, postErr := d.post(ctx, job)
	observer.ObserveDispatchDeliveryDuration(job.ScopeID, time.Since(start))

	if postErr == nil && status >= 200 && status < 300 {
		d.appendLog(ctx, job, model.ForwardOutcomeSuccess, status, "", retryCount)
		observer.IncForwardOutcome(job.ScopeID, model.ForwardOutcomeSuccess)
		if err := d.ruleRepo.IncrementForwardCount(ctx, job.RuleID); err != nil {
			log.Warn("Failed to increment forward counter",
				zap.Int64("rule_id", job.RuleID),
				zap.Error(err),
			)
		}
		log.Info("Forward delivered",
			zap.String("delivery_id", job.DeliveryID),
			zap.Int64("lead_id", job.LeadID),
			zap.Int64("rule_id", job.RuleID),
			zap.Int("http_status", status),
			zap.Int("retry_count", retryCount),
		)
		return DispositionAck
	}

	errMsg := fmt.Sprintf("unexpected status %d", status)
	if postErr != nil {
		errMsg = postErr.Error()
	}

	if lastAttempt {
		d.appendLog(ctx, job, model.ForwardOutcomeFailed, status, errMsg, retryCount)
		observer.IncForwardOutcome(job.ScopeID, model.ForwardOutcomeFailed)
		log.Warn("Forward failed terminally, retries exhausted",
			zap.String("delivery_id", job.DeliveryID),
			zap.Int64("lead_id", job.LeadID),
			zap.Int64("rule_id", job.RuleID),
			zap.Int("http_status", status),
			zap.Int("retry_count", retryCount),
			zap.String("error", errMsg),
		)
		return DispositionTerminate
	}

	d.appendLog(ctx, job, model.ForwardOutcomeRetry, status, errMsg, retryCount)
	observer.IncForwardOutcome(job.ScopeID, model.ForwardOutcomeRetry)
	log.Warn("Forward attempt failed, will retry",
		zap.String("delivery_id", job.DeliveryID),
		zap.Int64("rule_id", job.RuleID),
		zap.Int("http_status", status),
		zap.Int("retry_count", retryCount),
		zap.String("error", errMsg),
	)
	return DispositionRetry
}

// failReads closes out a delivery whose gating reads failed on the final
// permitted attempt. Without a terminal row the delivery would exhaust its
// redeliveries and vanish from the audit trail.
func (d *Deliverer) failReads(ctx context.Context, job model.DispatchJob, retryCount int, errMsg string) Disposition {
	d.appendLog(ctx, job, model.ForwardOutcomeFailed, 0, errMsg, retryCount)
	observer.IncForwardOutcome(job.ScopeID, model.ForwardOutcomeFailed)
	logger.FromContext(ctx).Error("Forward failed terminally, dispatch state unreadable",
		zap.String("delivery_id", job.DeliveryID),
		zap.Int64("rule_id", job.RuleID),
		zap.Int("retry_count", retryCount),
		zap.String("error", errMsg),
	)
	return DispositionTerminate
}

// post issues the outbound webhook request. The response body is drained
// and discarded; only the status code matters for classification.
func (d *Deliverer) post(ctx context.Context, job model.DispatchJob) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.TargetURL, bytes.NewReader(job.Payload))
	if err != nil {
		return 0, fmt.Errorf("%w: building request: %v", apperrors.ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(sourceScopeHeader, job.ScopeID)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrDelivery, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}

// appendLog writes the attempt's immutable audit row. Append failures are
// logged but never change the delivery disposition.
func (d *Deliverer) appendLog(ctx context.Context, job model.DispatchJob, outcome string, httpStatus int, errMsg string, retryCount int) {
	entry := &model.ForwardingLog{
		DeliveryID:      job.DeliveryID,
		ScopeID:         job.ScopeID,
		LeadID:          job.LeadID,
		ContactID:       job.ContactID,
		RuleID:          job.RuleID,
		TargetID:        job.TargetID,
		TargetURL:       job.TargetURL,
		Outcome:         outcome,
		HTTPStatus:      httpStatus,
		ErrorMessage:    errMsg,
		RetryCount:      retryCount,
		MatchedCriteria: utils.MustMarshalJSON(job.Matched),
		Payload:         datatypes.JSON(job.Payload),
		AttemptedAt:     utils.Now(),
	}
	if err := d.logRepo.Append(ctx, entry); err != nil {
		logger.FromContext(ctx).Error("Failed to append forwarding log entry",
			zap.String("delivery_id", job.DeliveryID),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
	}
}
