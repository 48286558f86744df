package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofrs/flock"

	"assetsync/internal/assetstudio"
	"assetsync/internal/catalog"
	"assetsync/internal/config"
	"assetsync/internal/fetch"
	"assetsync/internal/logging"
	"assetsync/internal/notifications"
	"assetsync/internal/pipeline"
	"assetsync/internal/preflight"
	"assetsync/internal/runstore"
	"assetsync/internal/services"
)

// ErrLocked is returned when another process holds the state lock.
var ErrLocked = errors.New("another assetsync run holds the state lock")

// Fetcher downloads target bundles and the index bundle.
type Fetcher interface {
	pipeline.Fetcher
	FetchIndex(ctx context.Context, indexType, dir string) (fetch.Result, error)
}

// Runner executes sync, bust, and card-list runs against one configuration.
type Runner struct {
	cfg       *config.Config
	base      *slog.Logger
	logger    *slog.Logger
	fetcher   Fetcher
	extractor assetstudio.Extractor
	snapshots catalog.Store
	ledger    *runstore.Store
	ownLedger bool
	notifier  notifications.Service
}

// Option customises a Runner.
type Option func(*Runner)

// WithFetcher replaces the HTTP fetch client.
func WithFetcher(f Fetcher) Option {
	return func(r *Runner) {
		if f != nil {
			r.fetcher = f
		}
	}
}

// WithExtractor replaces the exporter client.
func WithExtractor(e assetstudio.Extractor) Option {
	return func(r *Runner) {
		if e != nil {
			r.extractor = e
		}
	}
}

// WithLedger uses an already open run store. The caller keeps ownership.
func WithLedger(store *runstore.Store) Option {
	return func(r *Runner) {
		if store != nil {
			r.ledger = store
		}
	}
}

// WithNotifier replaces the notification service.
func WithNotifier(n notifications.Service) Option {
	return func(r *Runner) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithSnapshotStore replaces the file-backed snapshot store.
func WithSnapshotStore(store catalog.Store) Option {
	return func(r *Runner) {
		if store != nil {
			r.snapshots = store
		}
	}
}

// New builds a runner. Collaborators that are not injected are constructed
// from cfg; the exporter binary must resolve in that case.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("runner requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:    cfg,
		base:   logger,
		logger: logging.NewComponentLogger(logger, "runner"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "runner", "prepare directories", "", err)
	}
	for _, check := range []preflight.Result{
		preflight.CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		preflight.CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		preflight.CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	} {
		if !check.Passed {
			return nil, services.Wrap(services.ErrConfiguration, "runner", "check directories", check.Name+": "+check.Detail, nil)
		}
	}

	if r.fetcher == nil {
		r.fetcher = fetch.New(fetch.ConfigFromSettings(cfg.Remote),
			fetch.WithLogger(logging.NewComponentLogger(logger, "fetch")))
	}
	if r.extractor == nil {
		check := preflight.CheckExtractor(cfg.Extractor)
		if !check.Passed {
			return nil, services.Wrap(services.ErrConfiguration, "runner", "resolve extractor", check.Detail, nil)
		}
		settings := cfg.Extractor
		settings.Binary = check.Detail
		client, err := assetstudio.NewFromConfig(settings,
			assetstudio.WithLogger(logging.NewComponentLogger(logger, "assetstudio")))
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "runner", "build extractor", "", err)
		}
		r.extractor = client
	}
	if r.snapshots == nil {
		r.snapshots = catalog.NewFileStore(cfg.IndexStoreDir(), cfg.Remote.IndexType,
			logging.NewComponentLogger(logger, "catalog"))
	}
	if r.notifier == nil {
		r.notifier = notifications.NewService(cfg)
	}
	if r.ledger == nil {
		store, err := runstore.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open run store: %w", err)
		}
		r.ledger = store
		r.ownLedger = true
	}
	return r, nil
}

// Ledger exposes the run store for status queries.
func (r *Runner) Ledger() *runstore.Store { return r.ledger }

// Close releases the run store when the runner opened it.
func (r *Runner) Close() error {
	if r.ownLedger && r.ledger != nil {
		return r.ledger.Close()
	}
	return nil
}

func (r *Runner) lock() (func(), error) {
	lock := flock.New(r.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, r.cfg.LockPath())
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release state lock",
				logging.Error(err),
				logging.String(logging.FieldEventType, "lock_release_failed"),
				logging.String(logging.FieldErrorHint, "remove "+r.cfg.LockPath()+" if no run is active"),
			)
		}
	}, nil
}

func (r *Runner) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := r.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "run continues without this notification"),
		)
	}
}

func (r *Runner) orchestrator(placer pipeline.Placer) *pipeline.Orchestrator {
	return pipeline.New(r.fetcher, r.extractor, placer, r.ledger, logging.NewComponentLogger(r.base, "pipeline"))
}

// typeAttempts splits each configured attempt into its --types values. An
// empty attempt exports every type.
func typeAttempts(attempts []string) [][]string {
	out := make([][]string, 0, len(attempts))
	for _, attempt := range attempts {
		var types []string
		for _, part := range strings.Split(attempt, ",") {
			if part = strings.TrimSpace(part); part != "" {
				types = append(types, part)
			}
		}
		out = append(out, types)
	}
	return out
}
