// Package fetch downloads asset bundles and the catalog index from the CDN.
//
// Transient failures (timeouts, 408, 429, 5xx, dropped or refused
// connections, truncated bodies) are retried with capped exponential backoff. Downloads land in a ".part" file and are renamed into
// place only after the bundle signature is verified.
package fetch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"assetsync/internal/config"
	"assetsync/internal/logging"
)

const (
	bundleSuffix          = ".unity3d"
	partSuffix            = ".part"
	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 8 * time.Second
)

var bundleMagics = [][]byte{[]byte("UnityFS"), []byte("UnityWeb"), []byte("UnityRaw")}

// Config controls the client.
type Config struct {
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	SkipExisting   bool
	VerifyMagic    bool
}

// ConfigFromSettings converts the remote configuration section.
func ConfigFromSettings(remote config.Remote) Config {
	return Config{
		BaseURL:        remote.BaseURL,
		UserAgent:      remote.UserAgent,
		Timeout:        time.Duration(remote.RequestTimeout) * time.Second,
		RetryAttempts:  remote.RetryAttempts,
		RetryBaseDelay: time.Duration(remote.RetryBaseDelayMS) * time.Millisecond,
		RetryMaxDelay:  time.Duration(remote.RetryMaxDelayMS) * time.Millisecond,
		SkipExisting:   remote.SkipExisting,
		VerifyMagic:    remote.VerifyMagic,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient injects a custom HTTP client (useful for tests).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the clock used for the index cache-buster.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client downloads bundles from one base URL.
type Client struct {
	cfg        Config
	httpClient *http.Client
	sleeper    func(time.Duration)
	logger     *slog.Logger
	now        func() time.Time
}

// New constructs a Client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = defaultRetryMaxDelay
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Result describes one fetched (or skipped) bundle.
type Result struct {
	Bundle   string
	Path     string
	Bytes    int64
	Skipped  bool
	Attempts int
}

// BundleURL is the remote location of bundle.
func (c *Client) BundleURL(bundle string) string {
	return c.cfg.BaseURL + url.PathEscape(bundle) + bundleSuffix
}

// BundlePath is where bundle is stored under dir.
func BundlePath(dir, bundle string) string {
	return filepath.Join(dir, bundle+bundleSuffix)
}

// IndexBundleName is the bundle that carries the catalog index of indexType.
func IndexBundleName(indexType string) string {
	return "_Version_a_" + indexType + "_txt"
}

// Fetch downloads bundle into dir. When SkipExisting is set and a local copy
// exists, the download is skipped if the remote size matches or cannot be
// determined.
func (c *Client) Fetch(ctx context.Context, bundle, dir string) (Result, error) {
	dest := BundlePath(dir, bundle)
	target := c.BundleURL(bundle)
	if c.cfg.SkipExisting {
		if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
			if c.remoteMatches(ctx, target, info.Size()) {
				c.logger.Debug("bundle already downloaded",
					logging.String("bundle", bundle),
					logging.String("size", humanize.Bytes(uint64(info.Size()))),
				)
				return Result{Bundle: bundle, Path: dest, Bytes: info.Size(), Skipped: true}, nil
			}
		}
	}
	return c.download(ctx, bundle, target, dest)
}

// FetchIndex downloads the catalog index bundle for indexType, bypassing CDN
// caches with a millisecond timestamp query.
func (c *Client) FetchIndex(ctx context.Context, indexType, dir string) (Result, error) {
	bundle := IndexBundleName(indexType)
	target := c.BundleURL(bundle) + "?t=" + strconv.FormatInt(c.now().UnixMilli(), 10)
	return c.download(ctx, bundle, target, BundlePath(dir, bundle))
}

func (c *Client) remoteMatches(ctx context.Context, target string, localSize int64) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return true
	}
	c.decorate(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.ContentLength < 0 {
		return true
	}
	return resp.ContentLength == localSize
}

func (c *Client) download(ctx context.Context, bundle, target, dest string) (Result, error) {
	attempts := c.cfg.RetryAttempts
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		n, err := c.downloadOnce(ctx, target, dest)
		if err == nil {
			c.logger.Debug("bundle downloaded",
				logging.String("bundle", bundle),
				logging.String("size", humanize.Bytes(uint64(n))),
				logging.Int("attempt", attempt),
			)
			return Result{Bundle: bundle, Path: dest, Bytes: n, Attempts: attempt}, nil
		}
		lastErr = err
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return Result{Bundle: bundle, Attempts: attempt}, &Error{Bundle: bundle, URL: target, Attempts: attempt, Err: err}
		}
		c.logger.Debug("retrying bundle download",
			logging.String("bundle", bundle),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return Result{Bundle: bundle, Attempts: attempt}, &Error{Bundle: bundle, URL: target, Attempts: attempt, Err: err}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return Result{Bundle: bundle, Attempts: attempts}, &Error{Bundle: bundle, URL: target, Attempts: attempts, Err: lastErr}
}

func (c *Client) downloadOnce(ctx context.Context, target, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	c.decorate(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return 0, &StatusError{StatusCode: resp.StatusCode, RetryAfter: retryAfter}
	}

	body := bufio.NewReader(resp.Body)
	if c.cfg.VerifyMagic {
		head, err := body.Peek(8)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("read bundle header: %w", err)
		}
		if !hasBundleMagic(head) {
			return 0, ErrBadMagic
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}
	part := dest + partSuffix
	file, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("create partial file: %w", err)
	}
	n, copyErr := io.Copy(file, body)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(part)
		if copyErr != nil {
			return 0, fmt.Errorf("read bundle body: %w", copyErr)
		}
		return 0, fmt.Errorf("close partial file: %w", closeErr)
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return 0, fmt.Errorf("promote download: %w", err)
	}
	return n, nil
}

func (c *Client) decorate(req *http.Request) {
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
}

func hasBundleMagic(head []byte) bool {
	for _, magic := range bundleMagics {
		if bytes.HasPrefix(head, magic) {
			return true
		}
	}
	return false
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil {
		return 0, false
	}
	if ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) {
		return 0, false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.backoffDelay(attempt), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	if connectionDropped(err) {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

// connectionDropped reports failures of the connection rather than of the
// request: resets, refusals, truncated bodies and other transport errors.
func connectionDropped(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, unix.ECONNRESET) ||
		errors.Is(err, unix.ECONNREFUSED) ||
		errors.Is(err, unix.EPIPE) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && !urlErr.Timeout()
}

// backoffDelay doubles from the base delay per attempt and caps at the max delay.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.cfg.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > c.cfg.RetryMaxDelay/2 {
			return c.cfg.RetryMaxDelay
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if delay > c.cfg.RetryMaxDelay {
		return c.cfg.RetryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay, true
		}
	}
	return 0, false
}
