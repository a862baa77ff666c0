package scheduler

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core/route"
	"github.com/vitalsync/vitalsync/internal/core/userdir"
	"github.com/vitalsync/vitalsync/internal/sink"
)

// RunnerConfig tunes the polling loop.
type RunnerConfig struct {
	// PollInterval spaces consecutive cycles.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// Workers is the number of concurrent request executors.
	Workers int `mapstructure:"workers"`
	// MaxBatch bounds the requests generated per route per cycle.
	MaxBatch int `mapstructure:"max_batch"`
	// RequestTimeout bounds each upstream request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 100
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	return c
}

// Stats summarizes one polling cycle.
type Stats struct {
	Requests int64 `json:"requests"`
	Records  int64 `json:"records"`
	Failures int64 `json:"failures"`
}

// Runner drives the generator on a timer, executes the generated
// requests over a bounded worker pool, and publishes records to the sink.
type Runner struct {
	cfg    RunnerConfig
	gen    *Generator
	repo   userdir.Repository
	routes []route.Route
	sink   sink.Sink
	client *http.Client
	log    *zap.Logger

	mu   sync.Mutex
	last Stats
}

// NewRunner wires the polling loop. A nil client gets a default with the
// configured request timeout.
func NewRunner(cfg RunnerConfig, gen *Generator, repo userdir.Repository, routes []route.Route, out sink.Sink, client *http.Client, log *zap.Logger) *Runner {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		cfg:    cfg,
		gen:    gen,
		repo:   repo,
		routes: routes,
		sink:   out,
		client: client,
		log:    log,
	}
}

// Run polls until the context is canceled. The first cycle starts
// immediately.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		stats := r.RunOnce(ctx)
		r.log.Info("cycle complete",
			zap.Int64("requests", stats.Requests),
			zap.Int64("records", stats.Records),
			zap.Int64("failures", stats.Failures))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single polling cycle and returns its stats.
func (r *Runner) RunOnce(ctx context.Context) Stats {
	if r.repo.HasPendingUpdates() {
		if err := r.repo.ApplyPendingUpdates(ctx); err != nil {
			r.log.Warn("user directory refresh failed", zap.Error(err))
		}
	}

	var reqs []RestRequest
	for _, rt := range r.routes {
		reqs = append(reqs, r.gen.Requests(ctx, rt, r.cfg.MaxBatch)...)
	}

	var stats Stats
	if len(reqs) == 0 {
		r.setLast(stats)
		return stats
	}

	work := make(chan RestRequest)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range work {
				r.execute(ctx, req, &stats)
			}
		}()
	}

	for _, req := range reqs {
		select {
		case <-ctx.Done():
		case work <- req:
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(work)
	wg.Wait()

	r.setLast(stats)
	return stats
}

func (r *Runner) execute(ctx context.Context, req RestRequest, stats *Stats) {
	atomic.AddInt64(&stats.Requests, 1)

	resp, err := r.client.Do(req.Request)
	if err != nil {
		atomic.AddInt64(&stats.Failures, 1)
		_ = r.gen.HandleTransportError(req, err)
		return
	}
	defer resp.Body.Close()

	records, err := r.gen.HandleResponse(ctx, req, resp)
	if err != nil {
		atomic.AddInt64(&stats.Failures, 1)
	}
	if len(records) == 0 {
		return
	}
	atomic.AddInt64(&stats.Records, int64(len(records)))

	if err := r.sink.Publish(ctx, records); err != nil {
		atomic.AddInt64(&stats.Failures, 1)
		r.log.Error("publish failed",
			zap.String("pair", req.Key().String()),
			zap.Error(err))
	}
}

func (r *Runner) setLast(stats Stats) {
	r.mu.Lock()
	r.last = stats
	r.mu.Unlock()
}

// LastStats returns the most recent cycle's stats for status reporting.
func (r *Runner) LastStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
