package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/aspexa/automa/pkg/models"
)

// Options are the dispatch knobs resolved from configuration.
type Options struct {
	MaxConcurrentAttacks int
	RequestsPerSecond    float64
	RequestTimeout       time.Duration
	MaxRetries           int
}

// Gate blocks dispatch while the campaign is paused. Implemented by the
// control plane's per-campaign handle.
type Gate interface {
	WaitIfPaused(ctx context.Context) (bool, error)
}

type gateKey struct{}

// WithGate attaches a pause gate to the dispatch context. The dispatcher
// honors it before each individual attempt, so a pause takes effect
// mid-wave rather than at the next wave boundary.
func WithGate(ctx context.Context, g Gate) context.Context {
	if g == nil {
		return ctx
	}
	return context.WithValue(ctx, gateKey{}, g)
}

func gateFrom(ctx context.Context) Gate {
	g, _ := ctx.Value(gateKey{}).(Gate)
	return g
}

// Dispatcher sends payloads at a target. One instance per process; the
// per-URL rate limiter state lives inside it.
type Dispatcher struct {
	opts     Options
	client   *http.Client
	limiters *limiterPool
	log      *slog.Logger
}

// NewDispatcher creates a dispatcher with the given knobs.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.MaxConcurrentAttacks < 1 {
		opts.MaxConcurrentAttacks = 1
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Dispatcher{
		opts:     opts,
		client:   &http.Client{},
		limiters: newLimiterPool(opts.RequestsPerSecond, opts.MaxConcurrentAttacks),
		log:      slog.With("component", "attack_dispatcher"),
	}
}

// Dispatch sends every payload and returns one attempt per payload,
// index-aligned with the input. Per-attempt failures are recorded on the
// attempt, not returned; the error is non-nil only when ctx ends before
// all payloads were sent, in which case unsent slots carry a cancellation
// error.
func (d *Dispatcher) Dispatch(ctx context.Context, payloads []models.Payload, target Target) ([]models.AttackAttempt, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	attempts := make([]models.AttackAttempt, len(payloads))
	limiter := d.limiters.get(target.URL)
	gate := gateFrom(ctx)

	var g errgroup.Group
	g.SetLimit(d.opts.MaxConcurrentAttacks)

	for i, payload := range payloads {
		g.Go(func() error {
			if gate != nil {
				if _, err := gate.WaitIfPaused(ctx); err != nil {
					attempts[i] = models.AttackAttempt{
						Payload: payload,
						Error:   fmt.Sprintf("cancelled before dispatch: %v", err),
					}
					return err
				}
			}
			if err := limiter.Wait(ctx); err != nil {
				attempts[i] = models.AttackAttempt{
					Payload: payload,
					Error:   fmt.Sprintf("cancelled before dispatch: %v", err),
				}
				return err
			}
			attempts[i] = d.attempt(ctx, payload, target)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return attempts, fmt.Errorf("dispatch aborted: %w", err)
	}
	return attempts, nil
}

// attempt runs one payload with retries. Transient failures (network
// errors, 429, 5xx) retry with exponential backoff and jitter; 4xx other
// than 429 is permanent.
func (d *Dispatcher) attempt(ctx context.Context, payload models.Payload, target Target) models.AttackAttempt {
	start := time.Now()
	attempt := models.AttackAttempt{Payload: payload}

	body, err := target.renderBody(payload.Content)
	if err != nil {
		attempt.Error = err.Error()
		return attempt
	}

	operation := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, d.opts.RequestTimeout)
		defer cancel()

		var response string
		var status int
		var opErr error
		switch target.Protocol {
		case models.ProtocolWebSocket:
			response, opErr = d.sendWS(reqCtx, target, body)
		default:
			response, status, opErr = d.sendHTTP(reqCtx, target, body)
		}
		if opErr != nil {
			return opErr
		}

		attempt.Response = response
		attempt.StatusCode = status
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(d.opts.MaxRetries)),
		ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		attempt.Error = err.Error()
		d.log.Warn("Attack attempt failed",
			"target_url", target.URL,
			"iteration", payload.Iteration,
			"error", err)
	}

	attempt.LatencyMS = time.Since(start).Milliseconds()
	return attempt
}

func (d *Dispatcher) sendHTTP(ctx context.Context, target Target, body string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, strings.NewReader(body))
	if err != nil {
		return "", 0, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: request failed: %v", models.ErrDependencyTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("%w: failed to read response: %v", models.ErrDependencyTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", resp.StatusCode, fmt.Errorf("%w: target returned %d", models.ErrDependencyTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", resp.StatusCode, backoff.Permanent(fmt.Errorf("%w: target returned %d", models.ErrDependencyPermanent, resp.StatusCode))
	}

	text, err := target.extractResponse(raw)
	if err != nil {
		return "", resp.StatusCode, backoff.Permanent(err)
	}
	return text, resp.StatusCode, nil
}

// sendWS performs a single-frame RPC: one frame out, one frame in.
func (d *Dispatcher) sendWS(ctx context.Context, target Target, body string) (string, error) {
	conn, _, err := websocket.Dial(ctx, target.URL, &websocket.DialOptions{
		HTTPHeader: wsHeaders(target.Headers),
	})
	if err != nil {
		return "", fmt.Errorf("%w: websocket dial failed: %v", models.ErrDependencyTransient, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(ctx, websocket.MessageText, []byte(body)); err != nil {
		return "", fmt.Errorf("%w: websocket write failed: %v", models.ErrDependencyTransient, err)
	}

	_, raw, err := conn.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: websocket read failed: %v", models.ErrDependencyTransient, err)
	}

	text, err := target.extractResponse(raw)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	return text, nil
}

func wsHeaders(headers map[string]string) http.Header {
	if len(headers) == 0 {
		return nil
	}
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	return h
}
