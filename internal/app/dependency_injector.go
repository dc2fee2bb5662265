package app

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/you-humble/docsort/internal/archive"
	"github.com/you-humble/docsort/internal/health"
	"github.com/you-humble/docsort/internal/infra/config"
	"github.com/you-humble/docsort/internal/infra/index"
	"github.com/you-humble/docsort/internal/infra/remote"
	"github.com/you-humble/docsort/internal/pipeline"
	"github.com/you-humble/docsort/internal/queue"
	"github.com/you-humble/docsort/internal/watch"
)

const defaultCfgPath = "./configs/local.yaml"

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	remote   *remote.Client
	idx      pipeline.ProcessedIndex
	idxInit  bool
	repl     *archive.Replicator
	replInit bool

	pipe      *pipeline.Pipeline
	queue     *queue.Queue
	monitor   *health.Monitor
	debouncer *watch.Debouncer
	watcher   *watch.Watcher
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		path := defaultCfgPath
		if env := os.Getenv("DOCSORT_CONFIG"); env != "" {
			path = env
		}
		di.cfg = config.MustLoad(path)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(
			slog.NewTextHandler(
				os.Stdout,
				&slog.HandlerOptions{
					Level: slog.LevelInfo,
				},
			),
		)
	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) Remote() *remote.Client {
	if di.remote == nil {
		cfg := di.Config().Remote
		cl, err := remote.NewClient(remote.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			log.Fatalf("Remote: %+v", err)
		}
		di.remote = cl
		di.Logger().Info("remote service client ready", slog.String("base_url", cfg.BaseURL))
	}

	return di.remote
}

// Index returns nil when the processed-file index is disabled; the
// pipeline treats a nil index as "hash nothing, skip nothing".
func (di *dependencyInjector) Index(ctx context.Context) pipeline.ProcessedIndex {
	if !di.idxInit {
		di.idxInit = true

		cfg := di.Config().Index
		if !cfg.Enabled {
			return nil
		}

		client, err := index.NewClient(index.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatalf("Index redis: %+v", err)
		}
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Redis.Addr))

		di.idx = index.NewRedisIndex(client, cfg.TTL)
	}

	return di.idx
}

// Archiver returns nil when archival is disabled.
func (di *dependencyInjector) Archiver(ctx context.Context) pipeline.Archiver {
	if !di.replInit {
		di.replInit = true

		cfg := di.Config().Archive
		if !cfg.Enabled {
			return nil
		}

		store, err := archive.NewMinIOStore(ctx, archive.MinIOConfig{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			UseSSL:          cfg.MinIO.UseSSL,
			Bucket:          cfg.MinIO.Bucket,
			BasePath:        cfg.MinIO.BasePath,
		})
		if err != nil {
			log.Fatalf("Archiver minio: %+v", err)
		}
		di.Logger().Info(
			"initialized MinIO archive store",
			slog.String("endpoint", cfg.MinIO.Endpoint),
			slog.String("bucket", cfg.MinIO.Bucket),
		)

		di.repl = archive.NewReplicator(store, cfg.QueueCapacity, cfg.PoolSize, cfg.MaxRetries)
		di.repl.Start()
	}

	if di.repl == nil {
		return nil
	}
	return di.repl
}

func (di *dependencyInjector) Pipeline(ctx context.Context) *pipeline.Pipeline {
	if di.pipe == nil {
		cfg := di.Config()
		di.pipe = pipeline.New(pipeline.Config{
			OutputDir:       cfg.OutputDir,
			FailedDir:       cfg.FailedDir,
			PassthroughDir:  cfg.PassthroughDir,
			Passthrough:     cfg.Passthrough,
			DryRun:          cfg.DryRun,
			ApplyRename:     cfg.Rename.Apply,
			RenameMaxBytes:  cfg.Rename.MaxFileSizeMb << 20,
			SplitEnabled:    cfg.Split.Enabled,
			SplitMode:       cfg.Split.Mode,
			SplitMaxBytes:   cfg.Split.MaxFileSizeMb << 20,
			PollInterval:    cfg.Split.PollInterval,
			MaxPollAttempts: cfg.Split.MaxPollAttempts,
			DeleteSource:    cfg.Split.DeleteSource,
		}, di.Remote(), di.Index(ctx), di.Archiver(ctx))
	}

	return di.pipe
}

func (di *dependencyInjector) Queue() *queue.Queue {
	if di.queue == nil {
		cfg := di.Config()
		di.queue = queue.New(cfg.Concurrency, cfg.RetryAttempts, cfg.RetryDelay)
	}

	return di.queue
}

func (di *dependencyInjector) Monitor() *health.Monitor {
	if di.monitor == nil {
		di.monitor = health.NewMonitor(di.Config().HealthSocket)
	}

	return di.monitor
}

func (di *dependencyInjector) Debouncer(ctx context.Context) *watch.Debouncer {
	if di.debouncer == nil {
		cfg := di.Config()
		pipe := di.Pipeline(ctx)
		q := di.Queue()
		mon := di.Monitor()

		// Transient failures leave the source in place between attempts;
		// routing happens only once the queue gives up on the path.
		q.OnExhausted(func(path string, err error) {
			pipe.RouteFailure(path)
		})

		onReady := func(path string) {
			// Tasks carry their own context so an interrupted run drains
			// in-flight work instead of cancelling it mid-flight.
			accepted := q.Enqueue(context.Background(), path, func(taskCtx context.Context) error {
				res := pipe.Execute(taskCtx, path)
				if res.Success {
					mon.RecordSuccess()
				} else {
					mon.RecordError()
				}
				mon.UpdateStats(q.Stats())
				return res.Err
			})
			if !accepted {
				slog.Debug("task already queued", slog.String("path", path))
			}
		}

		di.debouncer = watch.NewDebouncer(cfg.Debounce, cfg.Patterns, onReady)
	}

	return di.debouncer
}

func (di *dependencyInjector) Watcher(ctx context.Context) *watch.Watcher {
	if di.watcher == nil {
		di.watcher = watch.NewWatcher(di.Config().WatchDir, di.Debouncer(ctx))
	}

	return di.watcher
}
