package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aluiziolira/go-bookmeta/config"
	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 8 << 20

// Request describes one outbound call. Source names the upstream for metrics,
// rate limiting and circuit breaking.
type Request struct {
	Source   string
	Method   string
	URL      string
	Header   http.Header
	Body     []byte
	Timeout  time.Duration
	MaxBytes int64
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64
	Body          []byte
}

// Client issues upstream HTTP calls with a timeout on every request, an
// optional per-source rate limit and a per-source circuit breaker.
type Client struct {
	http      *http.Client
	userAgent string
	timeout   time.Duration
	rps       float64
	metrics   *Metrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker[*Response]
}

// NewClient builds a client from cfg. A nil transport uses a pooled default.
func NewClient(cfg *config.Config, transport http.RoundTripper, metrics *Metrics) *Client {
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.RequestTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	return &Client{
		http:      &http.Client{Transport: transport},
		userAgent: cfg.UserAgent,
		timeout:   cfg.RequestTimeout,
		rps:       cfg.RequestsPerSecond,
		metrics:   metrics,
		limiters:  make(map[string]*rate.Limiter),
		breakers:  make(map[string]*gobreaker.CircuitBreaker[*Response]),
	}
}

// Do performs req. Non-2xx statuses come back as *StatusError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if limiter := c.limiter(req.Source); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait for %s: %w", req.Source, err)
		}
	}
	return c.breaker(req.Source).Execute(func() (*Response, error) {
		return c.do(ctx, req)
	})
}

// GetJSON performs req and decodes the body into target.
func (c *Client) GetJSON(ctx context.Context, req Request, target any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, target); err != nil {
		return fmt.Errorf("decode %s response: %w", req.Source, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.Source, err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	c.metrics.ObserveDuration(req.Source, time.Since(start))
	if err != nil {
		classified := classifyError(req.Source, err, 0)
		c.metrics.IncRequest(req.Source, ErrorLabel(classified))
		return nil, classified
	}
	defer resp.Body.Close()

	limit := req.MaxBytes
	if limit <= 0 {
		limit = maxBodyBytes
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		classified := classifyError(req.Source, err, 0)
		c.metrics.IncRequest(req.Source, ErrorLabel(classified))
		return nil, fmt.Errorf("read %s response: %w", req.Source, classified)
	}

	if classified := classifyError(req.Source, nil, resp.StatusCode); classified != nil {
		c.metrics.IncRequest(req.Source, ErrorLabel(classified))
		return nil, classified
	}
	c.metrics.IncRequest(req.Source, "success")

	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          payload,
	}, nil
}

func (c *Client) limiter(source string) *rate.Limiter {
	if c.rps <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[source]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.rps), 1)
		c.limiters[source] = l
	}
	return l
}

func (c *Client) breaker(source string) *gobreaker.CircuitBreaker[*Response] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[source]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        source,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change",
				slog.String("source", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			c.metrics.SetBreakerState(name, breakerGauge(to))
		},
	})
	c.breakers[source] = cb
	return cb
}

// breakerSuccess keeps "not found" style answers and caller cancellation
// from counting against an upstream.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.StatusCode < 500 && status.StatusCode != http.StatusTooManyRequests
	}
	return false
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
