package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ultratendency/sentry/internal/update"
)

// Wire paths.
const (
	PathUpdates  = "/v1/paths/updates"
	PathLastSeen = "/v1/paths/last-seen"
	PathPing     = "/v1/ping"
)

// Defaults applied by NewClient when Options leaves a field zero.
const (
	DefaultPort              = 8038
	DefaultConnectionTimeout = 200 * time.Second
	DefaultRPCRetryTotal     = 3
	DefaultFullRetryTotal    = 2
	DefaultPoolMaxTotal      = 8
	DefaultPoolMaxIdle       = 8
)

// Retry and backoff constants.
const (
	baseBackoff     = 100 * time.Millisecond
	maxBackoff      = 5 * time.Second
	backoffFactor   = 2.0
	jitterFraction  = 0.25
	userAgent       = "sentry-paths/0.1"
	requestIDHeader = "X-Request-ID"
	contentTypeCBOR = "application/cbor"
)

// Options configures a Client.
type Options struct {
	// Endpoints are base URLs, tried in order. See Endpoints.
	Endpoints         []string
	ConnectionTimeout time.Duration
	RPCRetryTotal     int // attempts per endpoint
	FullRetryTotal    int // rounds over the whole endpoint list
	PoolMaxTotal      int
	PoolMaxIdle       int
	PoolMinIdle       int // connections opened by Connect
	Compress          bool
	Logger            *slog.Logger

	// HTTPClient overrides the pooled client built from the options above.
	HTTPClient *http.Client
}

// Client pushes path updates to the remote authorization service.
// It fails over across endpoints and retries with exponential backoff.
type Client struct {
	endpoints      []string
	httpClient     *http.Client
	rpcRetryTotal  int
	fullRetryTotal int
	poolMinIdle    int
	compress       bool
	logger         *slog.Logger

	// sleepFunc is called to wait between retries. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Endpoints turns configured addresses into base URLs. A bare host gets
// port appended; host:port and full URLs are kept.
func Endpoints(addresses []string, port int) []string {
	if port <= 0 {
		port = DefaultPort
	}

	urls := make([]string, 0, len(addresses))

	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}

		switch {
		case strings.Contains(addr, "://"):
			urls = append(urls, strings.TrimRight(addr, "/"))
		case hasPort(addr):
			urls = append(urls, "http://"+addr)
		default:
			urls = append(urls, "http://"+net.JoinHostPort(addr, strconv.Itoa(port)))
		}
	}

	return urls
}

func hasPort(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	return err == nil && port != ""
}

// NewClient creates a Client. It does not touch the network; see Connect.
func NewClient(opts *Options) (*Client, error) {
	if len(opts.Endpoints) == 0 {
		return nil, errors.New("remote: no endpoints configured")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newPooledClient(opts)
	}

	return &Client{
		endpoints:      opts.Endpoints,
		httpClient:     httpClient,
		rpcRetryTotal:  orDefault(opts.RPCRetryTotal, DefaultRPCRetryTotal),
		fullRetryTotal: orDefault(opts.FullRetryTotal, DefaultFullRetryTotal),
		poolMinIdle:    opts.PoolMinIdle,
		compress:       opts.Compress,
		logger:         logger,
		sleepFunc:      timeSleep,
	}, nil
}

// Dial creates a Client and connects it.
func Dial(ctx context.Context, opts *Options) (*Client, error) {
	c, err := NewClient(opts)
	if err != nil {
		return nil, err
	}

	if err := c.Connect(ctx); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func newPooledClient(opts *Options) *http.Client {
	timeout := opts.ConnectionTimeout
	if timeout <= 0 {
		timeout = DefaultConnectionTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = orDefault(opts.PoolMaxTotal, DefaultPoolMaxTotal)
	transport.MaxIdleConnsPerHost = orDefault(opts.PoolMaxIdle, DefaultPoolMaxIdle)
	transport.DialContext = (&net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}

	return v
}

// Connect verifies the service is reachable and opens PoolMinIdle
// connections concurrently so they sit idle in the pool.
func (c *Client) Connect(ctx context.Context) error {
	n := max(c.poolMinIdle, 1)

	g, gctx := errgroup.WithContext(ctx)
	for range n {
		g.Go(func() error {
			return c.Ping(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("remote: connect: %w", err)
	}

	c.logger.Debug("connected to remote service",
		slog.Any("endpoints", c.endpoints),
		slog.Int("warm_connections", n),
	)

	return nil
}

// Close releases idle pooled connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Ping checks that some endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, PathPing, nil)
	if err != nil {
		return err
	}

	drainAndClose(resp)

	return nil
}

// PushUpdate sends u to the service.
func (c *Client) PushUpdate(ctx context.Context, u *update.Update) error {
	data, err := update.Marshal(u)
	if err != nil {
		return fmt.Errorf("remote: encoding update %d: %w", u.SeqNum, err)
	}

	rawLen := len(data)
	if c.compress {
		data = compressBody(data)
	}

	c.logger.Debug("pushing path update",
		slog.Int64("seq_num", u.SeqNum),
		slog.Bool("full_image", u.FullImage),
		slog.Int("changes", u.Len()),
		slog.Int("raw_bytes", rawLen),
		slog.Int("wire_bytes", len(data)),
	)

	resp, err := c.do(ctx, http.MethodPost, PathUpdates, data)
	if err != nil {
		return err
	}

	drainAndClose(resp)

	return nil
}

type lastSeenResponse struct {
	SeqNum int64 `json:"seq_num"`
}

// LastSeenSeqNum returns the sequence number of the last update the
// service applied.
func (c *Client) LastSeenSeqNum(ctx context.Context) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, PathLastSeen, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var body lastSeenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("remote: decoding last-seen response: %w", err)
	}

	return body.SeqNum, nil
}

// do runs a request with failover: every endpoint in order, each with up
// to rpcRetryTotal attempts, the whole cycle repeated fullRetryTotal times.
// A rejected request is returned at once. The caller closes the response
// body on success.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var lastErr error

	for round := range c.fullRetryTotal {
		for _, endpoint := range c.endpoints {
			resp, err := c.doEndpoint(ctx, endpoint, method, path, body)
			if err == nil {
				return resp, nil
			}

			if ctx.Err() != nil {
				return nil, fmt.Errorf("remote: request canceled: %w", ctx.Err())
			}

			if errors.Is(err, ErrRejected) {
				return nil, err
			}

			lastErr = err

			c.logger.Warn("remote endpoint failed",
				slog.String("endpoint", endpoint),
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("round", round+1),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil, fmt.Errorf("%w: %s %s failed on %d endpoints after %d rounds: %w",
		ErrUnavailable, method, path, len(c.endpoints), c.fullRetryTotal, lastErr)
}

// doEndpoint retries a request against one endpoint.
func (c *Client) doEndpoint(ctx context.Context, endpoint, method, path string, body []byte) (*http.Response, error) {
	url := endpoint + path

	var attempt int
	for {
		reqID := uuid.NewString()

		resp, err := c.doOnce(ctx, method, url, reqID, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			if attempt+1 < c.rpcRetryTotal {
				backoff := c.calcBackoff(attempt)
				c.logger.Debug("retrying after network error",
					slog.String("url", url),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, sleepErr
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("%s %s failed after %d attempts: %w", method, url, attempt+1, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt+1 < c.rpcRetryTotal {
			backoff := c.calcBackoff(attempt)
			c.logger.Debug("retrying after HTTP error",
				slog.String("url", url),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, err
			}

			attempt++

			continue
		}

		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			RequestID:  reqID,
			Message:    strings.TrimSpace(string(errBody)),
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, url, reqID string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(requestIDHeader, reqID)

	if body != nil {
		req.Header.Set("Content-Type", contentTypeCBOR)

		if c.compress {
			req.Header.Set("Content-Encoding", contentEncodingZstd)
		}
	}

	return c.httpClient.Do(req)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
