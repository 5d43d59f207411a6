package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/config"
	internal_js "gitlab.com/leadcore/api/lead-routing-engine/internal/jetstream"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/observer"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/scope"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/usecase"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
)

const (
	fetchBatchSize = 10
	fetchMaxWait   = 5 * time.Second
	durableName    = "forward_dispatch_consumer"
)

// Worker drives webhook delivery: it pulls dispatch jobs from the forwards
// stream and runs each attempt on a bounded pool. Retry state lives in
// JetStream delivery metadata, so attempts survive process restarts.
type Worker struct {
	cfg       *config.Config
	logger    *zap.Logger
	js        internal_js.ClientInterface
	pool      *ants.Pool
	deliverer *Deliverer
	msgCh     chan *nats.Msg
	stopWg    sync.WaitGroup
	cancel    context.CancelFunc
}

// NewWorker creates the dispatch worker and provisions its JetStream
// stream and pull consumer.
func NewWorker(cfg *config.Config, log *zap.Logger, jsClient internal_js.ClientInterface, deliverer *Deliverer) (*Worker, error) {
	pool, err := ants.NewPool(cfg.Dispatch.Workers,
		ants.WithLogger(newAntsLoggerAdapter(log.Named("ants_pool"))),
		ants.WithPanicHandler(func(err interface{}) {
			log.Error("Dispatch worker panic caught", zap.Any("error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	setupCtx := context.Background()
	streamName := cfg.NATS.Forwards.Stream
	subjectPattern := usecase.ForwardSubjectPrefix + ">"
	maxAge := time.Duration(cfg.NATS.Forwards.MaxAgeDays) * 24 * time.Hour

	streamCfg := &nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPattern},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    maxAge,
	}
	if err := jsClient.SetupStream(setupCtx, streamCfg); err != nil {
		pool.Release()
		return nil, fmt.Errorf("failed to setup forwards stream '%s': %w", streamName, err)
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:       durableName,
		FilterSubject: subjectPattern,
		AckPolicy:     nats.AckExplicitPolicy,
		// First delivery plus one redelivery per permitted retry.
		MaxDeliver:    cfg.NATS.Forwards.MaxRetries + 1,
		AckWait:       cfg.NATS.Forwards.AckWait,
		MaxAckPending: cfg.NATS.Forwards.MaxAckPending,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}
	if err := jsClient.SetupConsumer(setupCtx, streamName, consumerCfg); err != nil {
		pool.Release()
		return nil, fmt.Errorf("failed to setup forwards consumer '%s': %w", durableName, err)
	}

	queueSize := cfg.Dispatch.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	worker := &Worker{
		cfg:       cfg,
		logger:    log.Named("dispatch_worker"),
		js:        jsClient,
		pool:      pool,
		deliverer: deliverer,
		msgCh:     make(chan *nats.Msg, queueSize),
	}

	worker.logger.Info("Dispatch worker initialized",
		zap.String("stream", streamName),
		zap.Int("pool_size", cfg.Dispatch.Workers),
		zap.Int("max_deliver", consumerCfg.MaxDeliver),
	)
	return worker, nil
}

// Start begins the fetch and dispatch loops and blocks until the context
// is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	derivedCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.logger.Info("Starting dispatch worker...")

	subjectPattern := usecase.ForwardSubjectPrefix + ">"
	sub, err := w.js.SubscribePull(w.cfg.NATS.Forwards.Stream, subjectPattern, durableName)
	if err != nil {
		w.logger.Error("Failed to create forwards pull subscription", zap.Error(err))
		cancel()
		return fmt.Errorf("failed to create forwards pull subscription: %w", err)
	}

	w.stopWg.Add(1)
	go w.fetchMessages(derivedCtx, sub)

	w.stopWg.Add(1)
	go w.dispatchMessages(derivedCtx)

	w.logger.Info("Dispatch worker started successfully")

	<-derivedCtx.Done()
	w.logger.Info("Dispatch worker context cancelled, initiating shutdown...")

	return nil
}

// Stop gracefully shuts down the dispatch worker.
func (w *Worker) Stop() {
	w.logger.Info("Stopping dispatch worker...")
	if w.cancel != nil {
		w.cancel()
	}

	w.stopWg.Wait()
	w.logger.Info("Fetcher and dispatcher stopped")

	close(w.msgCh)
	w.pool.Release()
	w.logger.Info("Dispatch worker stopped successfully")
}

// fetchMessages pulls dispatch jobs from the subscription into msgCh.
func (w *Worker) fetchMessages(ctx context.Context, sub *nats.Subscription) {
	defer w.stopWg.Done()
	w.logger.Info("Starting dispatch fetcher loop...")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Fetcher loop stopping due to context cancellation")
			return
		default:
			observer.IncDispatchFetchRequest()
			msgs, err := sub.Fetch(fetchBatchSize, nats.MaxWait(fetchMaxWait))
			if err != nil {
				if err == context.Canceled || err == nats.ErrTimeout || err == nats.ErrConnectionClosed {
					if ctx.Err() != nil {
						return
					}
					continue
				}
				observer.IncDispatchFetchError()
				w.logger.Error("Fetcher loop error retrieving messages", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}

			for _, msg := range msgs {
				select {
				case w.msgCh <- msg:
				case <-ctx.Done():
					w.logger.Info("Fetcher loop stopping while sending to channel")
					return
				}
			}
		}
	}
}

// dispatchMessages reads jobs from msgCh and submits them to the worker
// pool. Matched targets of one lead ride separate messages, so they deliver
// independently and in parallel.
func (w *Worker) dispatchMessages(ctx context.Context) {
	defer w.stopWg.Done()
	w.logger.Info("Starting dispatch loop...")

	for {
		observer.SetDispatchQueueLength(len(w.msgCh))
		observer.SetDispatchWorkersActive(w.pool.Running())

		select {
		case <-ctx.Done():
			w.logger.Info("Dispatch loop stopping due to context cancellation")
			return
		case msg, ok := <-w.msgCh:
			if !ok {
				w.logger.Info("Message channel closed, dispatch loop stopping")
				return
			}
			currentMsg := msg
			err := w.pool.Submit(func() {
				taskCtx, taskCancel := context.WithTimeout(context.Background(), 1*time.Minute)
				defer taskCancel()
				w.handle(taskCtx, currentMsg)
			})
			if err != nil {
				w.logger.Error("Failed to submit delivery task to pool", zap.Error(err))
				if nakErr := currentMsg.NakWithDelay(5 * time.Second); nakErr != nil {
					w.logger.Error("Failed to NAK message after pool submission error", zap.Error(nakErr))
				}
			}
		}
	}
}

// handle runs one delivery attempt for one fetched message and applies the
// deliverer's disposition to JetStream.
func (w *Worker) handle(ctx context.Context, msg *nats.Msg) {
	meta, err := msg.Metadata()
	if err != nil {
		w.logger.Error("Failed to get message metadata", zap.Error(err))
		if termErr := msg.Term(); termErr != nil {
			w.logger.Error("Failed to terminate message after metadata error", zap.Error(termErr))
		}
		return
	}

	var job model.DispatchJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		w.logger.Error("Failed to unmarshal dispatch job, terminating",
			zap.Error(err),
			zap.Uint64("sequence", meta.Sequence.Stream),
			zap.String("subject", msg.Subject),
		)
		if termErr := msg.Term(); termErr != nil {
			w.logger.Error("Failed to terminate malformed message", zap.Error(termErr))
		}
		return
	}

	retryCount := int(meta.NumDelivered) - 1
	lastAttempt := int(meta.NumDelivered) >= w.cfg.NATS.Forwards.MaxRetries+1

	handlerCtx := scope.WithScopeID(ctx, job.ScopeID)
	handlerCtx = logger.WithLogger(handlerCtx, w.logger.With(
		zap.String("scope_id", job.ScopeID),
		zap.String("delivery_id", job.DeliveryID),
		zap.Int64("lead_id", job.LeadID),
	))

	disposition := w.deliverer.Deliver(handlerCtx, job, retryCount, lastAttempt)

	switch disposition {
	case DispositionAck:
		if ackErr := msg.Ack(); ackErr != nil {
			w.logger.Error("Failed to ACK delivered message", zap.Error(ackErr))
			observer.IncDispatchAckFailure(job.ScopeID)
			return
		}
		observer.IncDispatchAckSuccess(job.ScopeID)
	case DispositionRetry:
		delay := w.retryDelay(retryCount)
		if nakErr := msg.NakWithDelay(delay); nakErr != nil {
			w.logger.Error("Failed to NAK message with delay", zap.Error(nakErr))
			observer.IncDispatchAckFailure(job.ScopeID)
			return
		}
		observer.IncDispatchRetry(job.ScopeID)
	case DispositionTerminate:
		if termErr := msg.Term(); termErr != nil {
			w.logger.Error("Failed to terminate exhausted message", zap.Error(termErr))
			observer.IncDispatchAckFailure(job.ScopeID)
			return
		}
		observer.IncDispatchTasksDropped(job.ScopeID)
	}
}

// retryDelay returns the backoff before the next attempt: the schedule
// entry for this retry, with the last entry repeating past the end.
func (w *Worker) retryDelay(retryCount int) time.Duration {
	schedule := w.cfg.NATS.Forwards.RetryDelays
	if len(schedule) == 0 {
		return 5 * time.Second
	}
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[retryCount]
}

// --- Ants Logger Adapter ---

type antsLoggerAdapter struct {
	logger *zap.Logger
}

func newAntsLoggerAdapter(logger *zap.Logger) *antsLoggerAdapter {
	return &antsLoggerAdapter{logger: logger}
}

func (a *antsLoggerAdapter) Printf(format string, args ...interface{}) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
