package dispatch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/leadcore/api/lead-routing-engine/internal/apperrors"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/config"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/rules"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/scope"
	storagemock "gitlab.com/leadcore/api/lead-routing-engine/internal/storage/mock"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
)

const testScopeID = "scope-test-123"

type delivererFixture struct {
	ruleRepo     *storagemock.RuleRepoMock
	logRepo      *storagemock.ForwardingLogRepoMock
	settingsRepo *storagemock.SettingsRepoMock
	deliverer    *Deliverer
}

func newDelivererFixture(t *testing.T) *delivererFixture {
	logger.Log = zaptest.NewLogger(t)
	f := &delivererFixture{
		ruleRepo:     new(storagemock.RuleRepoMock),
		logRepo:      new(storagemock.ForwardingLogRepoMock),
		settingsRepo: new(storagemock.SettingsRepoMock),
	}
	f.deliverer = NewDeliverer(f.ruleRepo, f.logRepo, f.settingsRepo, 2*time.Second)
	return f
}

func (f *delivererFixture) enableScope() {
	f.settingsRepo.On("Get", mock.Anything).
		Return(&model.ScopeSettings{ScopeID: testScopeID, ForwardingEnabled: true}, nil)
}

func (f *delivererFixture) activeRule(id int64) {
	f.ruleRepo.On("GetForwardingRule", mock.Anything, id).
		Return(&model.ForwardingRule{ID: id, ScopeID: testScopeID, IsActive: true, ForwardEnabled: true}, nil)
}

func (f *delivererFixture) expectLog(outcome string) *mock.Call {
	return f.logRepo.On("Append", mock.Anything, mock.MatchedBy(func(e *model.ForwardingLog) bool {
		return e.Outcome == outcome
	})).Return(nil)
}

func testJob(targetURL string) model.DispatchJob {
	return model.DispatchJob{
		DeliveryID: "d-0001",
		ScopeID:    testScopeID,
		LeadID:     41,
		ContactID:  7,
		RuleID:     10,
		TargetID:   "tgt-a",
		TargetURL:  targetURL,
		Matched:    rules.MatchedCriteria{ProductType: "Solar", ZipCode: "90210", State: "CA"},
		Payload:    []byte(`{"lead_id":41}`),
	}
}

func deliverCtx() context.Context {
	return scope.WithScopeID(context.Background(), testScopeID)
}

func TestDeliver_Success(t *testing.T) {
	f := newDelivererFixture(t)
	f.enableScope()
	f.activeRule(10)

	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "lead-routing-engine/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, testScopeID, r.Header.Get("X-Lead-Source"))
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var logged *model.ForwardingLog
	f.logRepo.On("Append", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		logged = args.Get(1).(*model.ForwardingLog)
	}).Return(nil).Once()
	f.ruleRepo.On("IncrementForwardCount", mock.Anything, int64(10)).Return(nil).Once()

	disposition := f.deliverer.Deliver(deliverCtx(), testJob(srv.URL), 0, false)
	assert.Equal(t, DispositionAck, disposition)

	require.NotNil(t, logged)
	assert.Equal(t, model.ForwardOutcomeSuccess, logged.Outcome)
	assert.Equal(t, http.StatusOK, logged.HTTPStatus)
	assert.Equal(t, 0, logged.RetryCount)
	assert.Equal(t, `{"lead_id":41}`, string(gotBody))
	f.ruleRepo.AssertExpectations(t)
}

func TestDeliver_ToggleOffSkips(t *testing.T) {
	f := newDelivererFixture(t)
	f.settingsRepo.On("Get", mock.Anything).
		Return(&model.ScopeSettings{ScopeID: testScopeID, ForwardingEnabled: false}, nil).Once()

	var called atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	defer srv.Close()

	f.expectLog(model.ForwardOutcomeSkipped).Once()

	disposition := f.deliverer.Deliver(deliverCtx(), testJob(srv.URL), 0, false)
	assert.Equal(t, DispositionAck, disposition)
	assert.False(t, called.Load())
	f.ruleRepo.AssertNotCalled(t, "GetForwardingRule", mock.Anything, mock.Anything)
	f.logRepo.AssertExpectations(t)
}

func TestDeliver_RuleDeletedSkips(t *testing.T) {
	f := newDelivererFixture(t)
	f.enableScope()
	f.ruleRepo.On("GetForwardingRule", mock.Anything, int64(10)).
		Return(nil, apperrors.ErrNotFound).Once()
	f.expectLog(model.ForwardOutcomeSkipped).Once()

	disposition := f.deliverer.Deliver(deliverCtx(), testJob("http://unreachable.invalid"), 1, false)
	assert.Equal(t, DispositionAck, disposition)
	f.logRepo.AssertExpectations(t)
}

func TestDeliver_RuleDisabledSkips(t *testing.T) {
	f := newDelivererFixture(t)
	f.enableScope()
	f.ruleRepo.On("GetForwardingRule", mock.Anything, int64(10)).
		Return(&model.ForwardingRule{ID: 10, ScopeID: testScopeID, IsActive: true, ForwardEnabled: false}, nil).Once()
	f.expectLog(model.ForwardOutcomeSkipped).Once()

	disposition := f.deliverer.Deliver(deliverCtx(), testJob("http://unreachable.invalid"), 0, false)
	assert.Equal(t, DispositionAck, disposition)
}

func TestDeliver_ServerErrorRetries(t *testing.T) {
	f := newDelivererFixture(t)
	f.enableScope()
	f.activeRule(10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var logged *model.ForwardingLog
	f.logRepo.On("Append", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		logged = args.Get(1).(*model.ForwardingLog)
	}).Return(nil).Once()

	disposition := f.deliverer.Deliver(deliverCtx(), testJob(srv.URL), 1, false)
	assert.Equal(t, DispositionRetry, disposition)

	require.NotNil(t, logged)
	assert.Equal(t, model.ForwardOutcomeRetry, logged.Outcome)
	assert.Equal(t, http.StatusInternalServerError, logged.HTTPStatus)
	assert.Equal(t, 1, logged.RetryCount)
	f.ruleRepo.AssertNotCalled(t, "IncrementForwardCount", mock.Anything, mock.Anything)
}

func TestDeliver_ExhaustionIsTerminal(t *testing.T) {
	f := newDelivererFixture(t)
	f.enableScope()
	f.activeRule(10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var logged *model.ForwardingLog
	f.logRepo.On("Append", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		logged = args.Get(1).(*model.ForwardingLog)
	}).Return(nil).Once()

	// Fourth delivery: three retries already spent.
	disposition := f.deliverer.Deliver(deliverCtx(), testJob(srv.URL), 3, true)
	assert.Equal(t, DispositionTerminate, disposition)

	require.NotNil(t, logged)
	assert.Equal(t, model.ForwardOutcomeFailed, logged.Outcome)
	assert.Equal(t, 3, logged.RetryCount)
}

func TestDeliver_ConnectionErrorRetries(t *testing.T) {
	f := newDelivererFixture(t)
	f.enableScope()
	f.activeRule(10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Refuse connections.

	var logged *model.ForwardingLog
	f.logRepo.On("Append", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		logged = args.Get(1).(*model.ForwardingLog)
	}).Return(nil).Once()

	disposition := f.deliverer.Deliver(deliverCtx(), testJob(srv.URL), 0, false)
	assert.Equal(t, DispositionRetry, disposition)

	require.NotNil(t, logged)
	assert.Equal(t, model.ForwardOutcomeRetry, logged.Outcome)
	assert.Zero(t, logged.HTTPStatus)
	assert.NotEmpty(t, logged.ErrorMessage)
}

func TestDeliver_SettingsErrorRetriesWithoutLog(t *testing.T) {
	f := newDelivererFixture(t)
	f.settingsRepo.On("Get", mock.Anything).
		Return(nil, apperrors.ErrDatabase).Once()

	disposition := f.deliverer.Deliver(deliverCtx(), testJob("http://unreachable.invalid"), 0, false)
	assert.Equal(t, DispositionRetry, disposition)
	f.logRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestDeliver_SettingsErrorOnLastAttemptIsTerminal(t *testing.T) {
	f := newDelivererFixture(t)
	f.settingsRepo.On("Get", mock.Anything).
		Return(nil, apperrors.ErrDatabase).Once()

	var logged *model.ForwardingLog
	f.logRepo.On("Append", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		logged = args.Get(1).(*model.ForwardingLog)
	}).Return(nil).Once()

	disposition := f.deliverer.Deliver(deliverCtx(), testJob("http://unreachable.invalid"), 3, true)
	assert.Equal(t, DispositionTerminate, disposition)

	// The audit trail keeps a terminal row even when the toggle was unreadable.
	require.NotNil(t, logged)
	assert.Equal(t, model.ForwardOutcomeFailed, logged.Outcome)
	assert.Equal(t, 3, logged.RetryCount)
	assert.Contains(t, logged.ErrorMessage, "forwarding toggle unreadable")
}

func TestDeliver_RuleReadErrorOnLastAttemptIsTerminal(t *testing.T) {
	f := newDelivererFixture(t)
	f.enableScope()
	f.ruleRepo.On("GetForwardingRule", mock.Anything, int64(10)).
		Return(nil, apperrors.ErrDatabase).Once()

	var logged *model.ForwardingLog
	f.logRepo.On("Append", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		logged = args.Get(1).(*model.ForwardingLog)
	}).Return(nil).Once()

	disposition := f.deliverer.Deliver(deliverCtx(), testJob("http://unreachable.invalid"), 3, true)
	assert.Equal(t, DispositionTerminate, disposition)

	require.NotNil(t, logged)
	assert.Equal(t, model.ForwardOutcomeFailed, logged.Outcome)
	assert.Contains(t, logged.ErrorMessage, "forwarding rule unreadable")
}

func TestRetryDelaySchedule(t *testing.T) {
	cfg := &config.Config{}
	cfg.NATS.Forwards.RetryDelays = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}
	w := &Worker{cfg: cfg}

	assert.Equal(t, time.Second, w.retryDelay(0))
	assert.Equal(t, 5*time.Second, w.retryDelay(1))
	assert.Equal(t, 30*time.Second, w.retryDelay(2))
	// Past the schedule the last delay repeats.
	assert.Equal(t, 30*time.Second, w.retryDelay(7))

	w.cfg.NATS.Forwards.RetryDelays = nil
	assert.Equal(t, 5*time.Second, w.retryDelay(0))
}
