package assetstudio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"assetsync/internal/config"
	"assetsync/internal/logging"
	"assetsync/internal/services"
)

const outputTailLines = 20

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// Extractor unpacks one bundle into a directory.
type Extractor interface {
	Extract(ctx context.Context, input, outputDir string, req Request) (*Result, error)
}

// Settings are the invocation flags shared by every export.
type Settings struct {
	Game        string
	ExportType  string
	GroupAssets string
	ExtraArgs   []string
}

// Request narrows a single export.
type Request struct {
	// Types is passed as repeated --types flags; empty exports every type.
	Types []string
	// Containers is an optional --containers regex.
	Containers string
}

// UnpackError reports a failed or empty export.
type UnpackError struct {
	Input    string
	ExitCode int
	Reason   string
	Output   []string
	Err      error
}

func (e *UnpackError) Error() string {
	msg := fmt.Sprintf("unpack %s: %s", filepath.Base(e.Input), e.Reason)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnpackError) Unwrap() error { return e.Err }

func (e *UnpackError) Is(target error) bool {
	return target == services.ErrExternalTool
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger attaches a logger for exporter output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client wraps AssetStudio CLI interactions.
type Client struct {
	binary   string
	settings Settings
	timeout  time.Duration
	exec     Executor
	logger   *slog.Logger
}

// New constructs an AssetStudio client.
func New(binary string, settings Settings, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("assetstudio binary required")
	}
	client := &Client{
		binary:   binary,
		settings: settings,
		timeout:  time.Duration(timeoutSeconds) * time.Second,
		exec:     commandExecutor{},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// NewFromConfig builds a client from the extractor configuration section.
func NewFromConfig(cfg config.Extractor, opts ...Option) (*Client, error) {
	return New(cfg.Binary, Settings{
		Game:        cfg.Game,
		ExportType:  cfg.ExportType,
		GroupAssets: cfg.GroupAssets,
		ExtraArgs:   cfg.ExtraArgs,
	}, cfg.Timeout, opts...)
}

// Binary returns the configured executable.
func (c *Client) Binary() string { return c.binary }

// Args builds the exporter command line for one input.
func (c *Client) Args(input, outputDir string, req Request) []string {
	args := []string{input, outputDir}
	if c.settings.Game != "" {
		args = append(args, "--game", c.settings.Game)
	}
	if c.settings.ExportType != "" {
		args = append(args, "--export_type", c.settings.ExportType)
	}
	if c.settings.GroupAssets != "" {
		args = append(args, "--group_assets", c.settings.GroupAssets)
	}
	for _, t := range req.Types {
		if t = strings.TrimSpace(t); t != "" {
			args = append(args, "--types", t)
		}
	}
	if req.Containers != "" {
		args = append(args, "--containers", req.Containers)
	}
	return append(args, c.settings.ExtraArgs...)
}

// Extract exports input into outputDir, which is emptied first. A non-zero
// exit, a timeout, or an export with no files yields *UnpackError.
func (c *Client) Extract(ctx context.Context, input, outputDir string, req Request) (*Result, error) {
	if outputDir == "" {
		return nil, errors.New("output directory required")
	}
	if err := os.RemoveAll(outputDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("prepare export dir: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	tail := newLineTail(outputTailLines)
	args := c.Args(input, outputDir, req)
	c.logger.Debug("running exporter",
		logging.String("binary", c.binary),
		logging.Strings("args", args),
	)
	if err := c.exec.Run(runCtx, c.binary, args, tail.add); err != nil {
		unpackErr := &UnpackError{Input: input, Reason: "exporter failed", Output: tail.lines(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			unpackErr.ExitCode = exitErr.ExitCode()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			unpackErr.Reason = fmt.Sprintf("exporter timed out after %s", c.timeout)
		}
		return nil, unpackErr
	}

	result, err := Inventory(outputDir)
	if err != nil {
		return nil, fmt.Errorf("inspect export: %w", err)
	}
	if len(result.Files) == 0 {
		return nil, &UnpackError{Input: input, Reason: "no files exported", Output: tail.lines()}
	}
	return result, nil
}

type lineTail struct {
	mu    sync.Mutex
	limit int
	items []string
}

func newLineTail(limit int) *lineTail { return &lineTail{limit: limit} }

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.items) == t.limit {
		t.items = t.items[1:]
	}
	t.items = append(t.items, line)
}

func (t *lineTail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.items)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onOutput != nil {
				onOutput(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
