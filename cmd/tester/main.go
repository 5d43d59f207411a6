package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/model"
	"gitlab.com/leadcore/api/lead-routing-engine/internal/observer"
	"gitlab.com/leadcore/api/lead-routing-engine/pkg/logger"
	"go.uber.org/zap"
)

// SeedTask is one lead submission to be posted by a worker.
type SeedTask struct {
	ScopeID string
}

var productTypes = []string{"Solar", "Roofing", "HVAC", "Windows"}

var usStates = []string{"CA", "TX", "FL", "NY", "AZ", "NV", "WA", "CO"}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of the lead routing engine")
	scopeIDsStr := flag.String("scopes", "scope-loadtest-1", "Comma-separated list of scope IDs to submit leads under")
	rate := flag.Int("rate", 50, "Target lead submissions per second (total)")
	duration := flag.Duration("duration", 1*time.Minute, "Load test duration")
	concurrency := flag.Int("concurrency", 10, "Number of concurrent submit workers")
	dupeRatio := flag.Float64("dupe-ratio", 0.2, "Fraction of submissions that reuse a previously sent phone number")
	sinkPort := flag.Int("sink-port", 0, "If >0, run a local webhook sink on this port that accepts forwarded leads")
	seedRules := flag.String("seed-rules", "", "If set, create a wildcard forwarding rule per scope targeting this URL before seeding leads")
	metricsPort := flag.Int("metrics-port", 9091, "Port for Prometheus metrics endpoint")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Lead Seeder\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generates load by posting fake lead submissions to the ingestion webhook.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if err := logger.Initialize(*logLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := startMetricsServer(*metricsPort)
	var sinkServer *http.Server
	if *sinkPort > 0 {
		sinkServer = startWebhookSink(*sinkPort)
	}

	scopeIDs := strings.Split(*scopeIDsStr, ",")
	if len(scopeIDs) == 0 || scopeIDs[0] == "" {
		logger.Log.Fatal("No scope IDs provided")
	}

	logger.Log.Info("Starting lead seeder",
		zap.String("base_url", *baseURL),
		zap.Strings("scopes", scopeIDs),
		zap.Int("rate_per_sec", *rate),
		zap.Duration("duration", *duration),
		zap.Int("concurrency", *concurrency),
		zap.Float64("dupe_ratio", *dupeRatio),
		zap.Int("sink_port", *sinkPort),
	)

	gofakeit.Seed(time.Now().UnixNano())

	seeder := &seeder{
		baseURL:   strings.TrimRight(*baseURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
		dupeRatio: *dupeRatio,
	}

	if *seedRules != "" {
		if err := seeder.seedForwardingRules(ctx, scopeIDs, *seedRules); err != nil {
			logger.Log.Fatal("Failed to seed forwarding rules", zap.Error(err))
		}
	}

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(*concurrency, func(data interface{}) {
		defer wg.Done()
		task := data.(SeedTask)
		seeder.submit(ctx, task.ScopeID)
	})
	if err != nil {
		logger.Log.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var loopWg sync.WaitGroup
	loopWg.Add(1)
	go runSeedLoop(ctx, *rate, *duration, scopeIDs, pool, &wg, &loopWg)

	select {
	case sig := <-sigChan:
		logger.Log.Info("Received termination signal, shutting down...", zap.String("signal", sig.String()))
		cancel()
	case <-ctx.Done():
	}

	loopWg.Wait()
	logger.Log.Info("Seed loop finished, waiting for in-flight submissions...")
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Metrics server shutdown error", zap.Error(err))
	}
	if sinkServer != nil {
		if err := sinkServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Webhook sink shutdown error", zap.Error(err))
		}
	}

	logger.Log.Info("Lead seeder shutdown complete")
}

// runSeedLoop submits SeedTasks to the pool at the target rate until the
// duration elapses or the context is cancelled.
func runSeedLoop(ctx context.Context, rate int, duration time.Duration, scopeIDs []string, pool *ants.PoolWithFunc, wg *sync.WaitGroup, loopWg *sync.WaitGroup) {
	defer loopWg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	durationTimer := time.NewTimer(duration)
	defer durationTimer.Stop()

	counter := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-durationTimer.C:
			logger.Log.Info("Seed duration elapsed")
			return
		case <-ticker.C:
			scopeID := scopeIDs[counter%len(scopeIDs)]
			counter++

			observer.IncSeederLeadsAttempted(scopeID)
			wg.Add(1)
			if err := pool.Invoke(SeedTask{ScopeID: scopeID}); err != nil {
				wg.Done()
				logger.Log.Warn("Failed to invoke worker pool", zap.Error(err))
				observer.IncSeederSubmitErrors(scopeID)
			}
		}
	}
}

// seedForwardingRules creates one catch-all forwarding rule per scope so
// every seeded lead produces a dispatch, typically pointed at the local sink.
func (s *seeder) seedForwardingRules(ctx context.Context, scopeIDs []string, targetURL string) error {
	for _, scopeID := range scopeIDs {
		payload := model.ForwardingRulePayload{
			Name:         "seeder catch-all",
			Priority:     1,
			TargetID:     "seeder-sink",
			TargetURL:    targetURL,
			ProductTypes: []string{"*"},
			ZipCodes:     []string{"*"},
			States:       []string{"*"},
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}

		url := fmt.Sprintf("%s/admin/scopes/%s/forwarding-rules", s.baseURL, scopeID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("seed rule for scope %s: %w", scopeID, err)
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("seed rule for scope %s: unexpected status %d", scopeID, resp.StatusCode)
		}
		logger.Log.Info("Seeded forwarding rule",
			zap.String("scope_id", scopeID),
			zap.String("target_url", targetURL))
	}
	return nil
}

type seeder struct {
	baseURL   string
	client    *http.Client
	dupeRatio float64

	mu         sync.Mutex
	seenPhones []string
}

// submit posts one fake lead submission to the ingestion webhook. A fraction
// of submissions reuse a previously sent phone number to exercise contact
// deduplication on the receiving side.
func (s *seeder) submit(ctx context.Context, scopeID string) {
	sub := model.LeadSubmission{
		FirstName:   gofakeit.FirstName(),
		LastName:    gofakeit.LastName(),
		Email:       gofakeit.Email(),
		Source:      "seeder",
		Phone:       model.RandomPhone(),
		ProductType: productTypes[rand.Intn(len(productTypes))],
		ZipCode:     gofakeit.Zip(),
		State:       usStates[rand.Intn(len(usStates))],
		City:        gofakeit.City(),
		Address:     gofakeit.Street(),
	}

	s.mu.Lock()
	if len(s.seenPhones) > 0 && rand.Float64() < s.dupeRatio {
		sub.Phone = s.seenPhones[rand.Intn(len(s.seenPhones))]
	} else if len(s.seenPhones) < 10000 {
		s.seenPhones = append(s.seenPhones, sub.Phone)
	}
	s.mu.Unlock()

	body, err := json.Marshal(sub)
	if err != nil {
		logger.Log.Error("Failed to marshal submission", zap.Error(err))
		observer.IncSeederSubmitErrors(scopeID)
		return
	}

	url := fmt.Sprintf("%s/webhook/%s", s.baseURL, scopeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		observer.IncSeederSubmitErrors(scopeID)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Log.Warn("Submission failed", zap.String("scope_id", scopeID), zap.Error(err))
		observer.IncSeederSubmitErrors(scopeID)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		observer.IncSeederLeadsSubmitted(scopeID)
	} else {
		logger.Log.Warn("Submission rejected",
			zap.String("scope_id", scopeID),
			zap.Int("status", resp.StatusCode))
		observer.IncSeederSubmitErrors(scopeID)
	}
}

func startMetricsServer(port int) *http.Server {
	logger.Log.Info("Starting Prometheus metrics server", zap.Int("port", port))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Failed to start Prometheus metrics server", zap.Error(err))
		}
	}()

	return server
}

// startWebhookSink runs a local HTTP server that accepts forwarded leads and
// logs them, useful as a target URL for forwarding rules during load tests.
func startWebhookSink(port int) *http.Server {
	logger.Log.Info("Starting webhook sink", zap.Int("port", port))
	mux := http.NewServeMux()
	mux.HandleFunc("/sink", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload model.ForwardPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			logger.Log.Warn("Sink received malformed payload", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		logger.Log.Info("Sink received forwarded lead",
			zap.Int64("lead_id", payload.LeadID),
			zap.String("scope", payload.Scope),
			zap.String("source_header", r.Header.Get("X-Lead-Source")),
		)
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Failed to start webhook sink", zap.Error(err))
		}
	}()

	return server
}
