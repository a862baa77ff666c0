package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalsync/vitalsync/internal/core"
	"github.com/vitalsync/vitalsync/internal/core/converter"
	"github.com/vitalsync/vitalsync/internal/core/offsets"
	"github.com/vitalsync/vitalsync/internal/core/route"
	"github.com/vitalsync/vitalsync/internal/core/userdir"
	verrors "github.com/vitalsync/vitalsync/internal/errors"
)

// Config holds the scheduling tunables. The zero value is usable; every
// field falls back to a sensible default.
type Config struct {
	BaseURL string `mapstructure:"base_url"`

	// SuccessBackoff spaces consecutive requests for a healthy pair.
	SuccessBackoff time.Duration `mapstructure:"success_backoff"`
	// FailureBackoff applies after server errors, client errors other
	// than auth, and transport failures.
	FailureBackoff time.Duration `mapstructure:"failure_backoff"`
	// UserBackoff applies after 401/403 responses for one pair.
	UserBackoff time.Duration `mapstructure:"user_backoff"`
	// GlobalBackoff suppresses all pairs after a 429 when the response
	// carries no usable Retry-After header.
	GlobalBackoff time.Duration `mapstructure:"global_backoff"`

	// Buffer is subtracted from real time by re-polling: the offset is
	// advanced to the newest record's timestamp plus this margin so that
	// late-arriving records inside the margin are fetched again.
	Buffer time.Duration `mapstructure:"buffer"`
	// OldDataAge is the window-end age beyond which data is considered
	// settled and the offset may jump to the window end.
	OldDataAge time.Duration `mapstructure:"old_data_age"`
	// EmptyConfirmDelay is how old a window start must be before an
	// empty response is trusted enough to advance the offset.
	EmptyConfirmDelay time.Duration `mapstructure:"empty_confirm_delay"`
	// GracePeriod past a user's end date before the pair is disabled
	// permanently.
	GracePeriod time.Duration `mapstructure:"grace_period"`

	// HistoricalThreshold is the backlog size that switches a pair into
	// bulk backfill mode.
	HistoricalThreshold time.Duration `mapstructure:"historical_threshold"`
	// HistoricalInterval is the chunk size used in bulk backfill mode.
	HistoricalInterval time.Duration `mapstructure:"historical_interval"`
	// MaxRequestsPerPair caps the windows generated for one pair in a
	// single cycle outside bulk backfill mode.
	MaxRequestsPerPair int `mapstructure:"max_requests_per_pair"`
}

func (c Config) withDefaults() Config {
	if c.SuccessBackoff <= 0 {
		c.SuccessBackoff = time.Minute
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = 10 * time.Minute
	}
	if c.UserBackoff <= 0 {
		c.UserBackoff = 3 * time.Hour
	}
	if c.GlobalBackoff <= 0 {
		c.GlobalBackoff = 10 * time.Minute
	}
	if c.Buffer <= 0 {
		c.Buffer = 12 * time.Hour
	}
	if c.OldDataAge <= 0 {
		c.OldDataAge = 7 * 24 * time.Hour
	}
	if c.EmptyConfirmDelay <= 0 {
		c.EmptyConfirmDelay = 2 * 24 * time.Hour
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 30 * 24 * time.Hour
	}
	if c.HistoricalThreshold <= 0 {
		c.HistoricalThreshold = 365 * 24 * time.Hour
	}
	if c.HistoricalInterval <= 0 {
		c.HistoricalInterval = 30 * 24 * time.Hour
	}
	if c.MaxRequestsPerPair <= 0 {
		c.MaxRequestsPerPair = 20
	}
	return c
}

// RestRequest is one ready-to-send upstream request together with the
// provenance the response handler needs to classify the outcome.
type RestRequest struct {
	ID      string
	Request *http.Request
	User    core.User
	Route   route.Route
	Start   time.Time
	End     time.Time
}

// Key returns the (user, route) pair the request belongs to.
func (r RestRequest) Key() core.PairKey {
	return core.PairKey{UserID: r.User.VersionedID(), Route: r.Route.Name}
}

// Generator turns the user directory and the offset store into concrete
// upstream requests and applies response outcomes back to both.
type Generator struct {
	cfg     Config
	base    *url.URL
	repo    userdir.Repository
	offsets offsets.Manager
	backoff *Registry
	locks   *keyedLocks
	log     *zap.Logger

	// Clock is injectable for tests.
	Clock func() time.Time
}

// NewGenerator validates the base URL and wires the generator.
func NewGenerator(cfg Config, repo userdir.Repository, mgr offsets.Manager, log *zap.Logger) (*Generator, error) {
	cfg = cfg.withDefaults()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, verrors.New(verrors.KindValidation, fmt.Sprintf("invalid api base url %q", cfg.BaseURL))
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		cfg:     cfg,
		base:    base,
		repo:    repo,
		offsets: mgr,
		backoff: NewRegistry(),
		locks:   newKeyedLocks(),
		log:     log,
		Clock:   time.Now,
	}, nil
}

// Backoff exposes the registry for status reporting.
func (g *Generator) Backoff() *Registry { return g.backoff }

func (g *Generator) now() time.Time { return g.Clock().UTC() }

// Requests builds up to max requests for the route across all current
// users, fairly bounded per pair. A zero or negative max means no overall
// limit. The global rate-limit gate short-circuits everything.
func (g *Generator) Requests(ctx context.Context, rt route.Route, max int) []RestRequest {
	if !g.backoff.GlobalReady(g.now()) {
		return nil
	}
	users, err := g.repo.Stream(ctx)
	if err != nil {
		g.log.Warn("user directory unavailable", zap.String("route", rt.Name), zap.Error(err))
		return nil
	}

	var out []RestRequest
	for _, user := range users {
		remaining := max - len(out)
		if max > 0 && remaining <= 0 {
			break
		}
		out = append(out, g.RequestsForUser(ctx, user, rt, remaining)...)
	}
	return out
}

// RequestsForUser builds the next request windows for one (user, route)
// pair, honoring its backoff state, the stored offset, and the user's
// enrollment dates. A zero or negative max means no caller-imposed limit.
func (g *Generator) RequestsForUser(ctx context.Context, user core.User, rt route.Route, max int) []RestRequest {
	now := g.now()
	key := core.PairKey{UserID: user.VersionedID(), Route: rt.Name}
	if !g.backoff.GlobalReady(now) || !g.backoff.Ready(key, now) {
		return nil
	}

	unlock := g.locks.lock(key)
	defer unlock()

	stored, err := g.offsets.Get(ctx, rt.Name, user)
	if err != nil {
		g.log.Error("offset lookup failed", zap.String("pair", key.String()), zap.Error(err))
		g.backoff.Set(key, now.Add(g.cfg.FailureBackoff))
		return nil
	}

	start := user.StartDate
	if stored != nil && stored.Offset.After(start) {
		start = stored.Offset
	}
	end := now
	if user.EndDate != nil && user.EndDate.Before(end) {
		end = *user.EndDate
	}

	if !start.Before(end) {
		if user.EndDate != nil && now.Sub(*user.EndDate) > g.cfg.GracePeriod {
			g.log.Info("user past end date, disabling pair",
				zap.String("pair", key.String()),
				zap.Time("endDate", *user.EndDate))
			g.backoff.Disable(key)
		}
		return nil
	}

	token, err := g.repo.GetAccessToken(ctx, user)
	if err != nil {
		wait := g.cfg.FailureBackoff
		if verrors.IsKind(err, verrors.KindUnauthorized) {
			wait = g.cfg.UserBackoff
		}
		g.log.Warn("access token unavailable", zap.String("pair", key.String()), zap.Error(err))
		g.backoff.Set(key, now.Add(wait))
		return nil
	}

	interval := rt.Interval
	limit := g.cfg.MaxRequestsPerPair
	if now.Sub(start) > g.cfg.HistoricalThreshold {
		// Bulk backfill: larger chunks, no per-pair cap.
		interval = g.cfg.HistoricalInterval
		limit = 0
	}
	if max > 0 && (limit <= 0 || max < limit) {
		limit = max
	}

	var out []RestRequest
	for start.Before(end) {
		if limit > 0 && len(out) >= limit {
			break
		}
		windowEnd := start.Add(interval)
		if windowEnd.After(end) {
			windowEnd = end
		}
		req, err := g.buildRequest(ctx, user, rt, token, start, windowEnd)
		if err != nil {
			g.log.Error("request construction failed", zap.String("pair", key.String()), zap.Error(err))
			break
		}
		out = append(out, req)
		start = windowEnd
	}
	return out
}

func (g *Generator) buildRequest(ctx context.Context, user core.User, rt route.Route, token string, start, end time.Time) (RestRequest, error) {
	u := *g.base
	u.Path, _ = url.JoinPath(u.Path, rt.SubPath)
	q := u.Query()
	q.Set("start_datetime", start.UTC().Format(time.RFC3339))
	q.Set("end_datetime", end.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return RestRequest{}, verrors.Wrap(verrors.KindGeneric, err, "build request")
	}
	id := uuid.New().String()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", id)

	return RestRequest{
		ID:      id,
		Request: req,
		User:    user,
		Route:   rt,
		Start:   start,
		End:     end,
	}, nil
}

// HandleResponse classifies the upstream response for one request, runs
// the route's converters on success, advances the offset, and updates the
// pair's backoff state. The returned records are ready for publishing.
// The offset only moves after conversion succeeded, so records are never
// silently skipped.
func (g *Generator) HandleResponse(ctx context.Context, req RestRequest, resp *http.Response) ([]core.Record, error) {
	key := req.Key()
	unlock := g.locks.lock(key)
	defer unlock()

	now := g.now()
	status := resp.StatusCode

	switch {
	case status >= 200 && status < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			g.backoff.Set(key, now.Add(g.cfg.FailureBackoff))
			return nil, verrors.Wrap(verrors.KindGeneric, err, "read response body")
		}
		return g.handleSuccess(ctx, req, resp.Header, body, now)

	case status == http.StatusTooManyRequests:
		cooldown := g.cfg.GlobalBackoff
		if after, ok := retryAfter(resp.Header, now); ok {
			cooldown = after
		}
		until := now.Add(cooldown)
		g.backoff.SetGlobal(until)
		g.log.Warn("rate limited, suppressing all requests",
			zap.String("pair", key.String()),
			zap.Time("until", until))
		return nil, verrors.FromStatus(status, "rate limited")

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		g.backoff.Set(key, now.Add(g.cfg.UserBackoff))
		g.log.Warn("authorization rejected",
			zap.String("pair", key.String()),
			zap.Int("status", status))
		return nil, verrors.FromStatus(status, "authorization rejected")

	default:
		g.backoff.Set(key, now.Add(g.cfg.FailureBackoff))
		g.log.Warn("request failed",
			zap.String("pair", key.String()),
			zap.Int("status", status))
		return nil, verrors.FromStatus(status, "request failed")
	}
}

func (g *Generator) handleSuccess(ctx context.Context, req RestRequest, headers http.Header, body []byte, now time.Time) ([]core.Record, error) {
	key := req.Key()
	convReq := converter.Request{
		User:  req.User,
		Route: req.Route.Name,
		Start: req.Start,
		End:   req.End,
	}

	var records []core.Record
	for _, conv := range req.Route.Converters {
		recs, err := conv.Convert(convReq, headers, body)
		if err != nil {
			g.backoff.Set(key, now.Add(g.cfg.FailureBackoff))
			return nil, verrors.Wrap(verrors.KindConverter, err, "convert response")
		}
		records = append(records, recs...)
	}

	if len(records) == 0 {
		// Only trust an empty window once its start is old enough that
		// late-arriving data is unlikely.
		if now.Sub(req.Start) > g.cfg.EmptyConfirmDelay {
			if err := g.offsets.Update(ctx, req.Route.Name, req.User, req.End); err != nil {
				g.backoff.Set(key, now.Add(g.cfg.FailureBackoff))
				return nil, verrors.Wrap(verrors.KindGeneric, err, "update offset")
			}
		}
		g.backoff.Set(key, now.Add(g.cfg.SuccessBackoff))
		return nil, nil
	}

	latest := records[0].Timestamp
	for _, rec := range records[1:] {
		if rec.Timestamp.After(latest) {
			latest = rec.Timestamp
		}
	}
	offset := latest.Add(g.cfg.Buffer)
	if now.Sub(req.End) > g.cfg.OldDataAge && req.End.After(offset) {
		// Settled window: no need to re-poll inside the buffer margin.
		offset = req.End
	}
	if err := g.offsets.Update(ctx, req.Route.Name, req.User, offset); err != nil {
		g.backoff.Set(key, now.Add(g.cfg.FailureBackoff))
		return records, verrors.Wrap(verrors.KindGeneric, err, "update offset")
	}

	g.backoff.Set(key, now.Add(g.cfg.SuccessBackoff))
	g.log.Debug("window polled",
		zap.String("pair", key.String()),
		zap.Time("start", req.Start),
		zap.Time("end", req.End),
		zap.Int("records", len(records)),
		zap.Time("offset", offset))
	return records, nil
}

// HandleTransportError records a failed request attempt that produced no
// response at all.
func (g *Generator) HandleTransportError(req RestRequest, err error) error {
	key := req.Key()
	unlock := g.locks.lock(key)
	defer unlock()

	now := g.now()
	g.backoff.Set(key, now.Add(g.cfg.FailureBackoff))
	g.log.Warn("request transport failed", zap.String("pair", key.String()), zap.Error(err))
	return verrors.Wrap(verrors.KindGeneric, err, "execute request")
}

// retryAfter parses a Retry-After header as either delta seconds or an
// HTTP date, returning the cooldown duration from now.
func retryAfter(headers http.Header, now time.Time) (time.Duration, bool) {
	raw := headers.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
	}
	return 0, false
}
