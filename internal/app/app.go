package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"house-finance/internal/alerting"
	"house-finance/internal/classifier"
	"house-finance/internal/config"
	"house-finance/internal/fetcher"
	"house-finance/internal/prediction"
	"house-finance/internal/rules"
	"house-finance/internal/scheduler"
	"house-finance/internal/service"
	"house-finance/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) retryPolicy() service.RetryPolicy {
	return service.RetryPolicy{Attempts: a.Config.Retry.Attempts, Delay: a.Config.Retry.Delay}
}

func (a *App) newFetchers() map[string]fetcher.PayloadFetcher {
	out := make(map[string]fetcher.PayloadFetcher, len(a.Config.Sources))
	for _, src := range a.Config.Sources {
		out[src.Name] = fetcher.NewScraper(fetcher.ScraperOptions{
			Name:        src.Name,
			Command:     src.Command,
			Args:        src.Args,
			WorkDir:     src.WorkDir,
			Credentials: src.Credentials,
			PassMonths:  src.Kind == config.SourceCreditCard,
			Timeout:     src.Timeout,
		}, a.Logger)
	}
	return out
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Notification.Telegram.Enabled {
		cfg := a.Config.Notification.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if a.Config.Database.ApplySchema {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
	}
	return store, store.Close, nil
}

// requireStore opens the database or fails for commands that cannot run without it.
func (a *App) requireStore(ctx context.Context, action string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("database not configured; cannot %s", action)
	}
	return store, closeStore, nil
}

func (a *App) newCollector(store *storage.Store) *service.Collector {
	return service.NewCollector(a.Config.Sources, a.newFetchers(), store, store, a.retryPolicy(), a.Logger)
}

// postProcessOptions loads the rule cascade from the configured file, or the
// built-in tables when none is set.
func (a *App) postProcessOptions() (prediction.Options, error) {
	cascade := rules.DefaultCascade()
	if path := a.Config.Classifier.RulesFile; path != "" {
		loaded, err := rules.LoadCascade(path)
		if err != nil {
			return prediction.Options{}, err
		}
		cascade = loaded
	}
	opts := prediction.Options{Cascade: cascade}
	if a.Config.Classifier.DismissClasses {
		opts.Dismiss = rules.DismissedClasses()
	}
	return opts, nil
}

func (a *App) newClassifier(store *storage.Store) (*service.Classifier, error) {
	cfg := a.Config.Classifier
	if !cfg.Enabled {
		return nil, errors.New("classifier not enabled")
	}

	params := cfg.Extractors
	if len(params) == 0 {
		params = prediction.DefaultExtractors()
	}
	pipeline, err := prediction.DefaultRegistry().BuildPipeline(params)
	if err != nil {
		return nil, err
	}
	opts, err := a.postProcessOptions()
	if err != nil {
		return nil, err
	}

	model := classifier.NewClient(classifier.Options{Endpoint: cfg.Endpoint, Timeout: cfg.Timeout}, a.Logger)
	return service.NewClassifier(store, store, model, service.ClassifierOptions{
		ModelName:      cfg.Endpoint,
		FeatureColumns: cfg.FeatureColumns,
		Pipeline:       pipeline,
		PostProcess:    opts,
		Retry:          a.retryPolicy(),
	}, a.Logger), nil
}

func (a *App) newReporter(store storage.ExpenseStore, notifier alerting.Notifier) *service.Reporter {
	n := a.Config.Notification
	return service.NewReporter(store, notifier, n.MonthlyLimits, n.PersonalAccounts, a.Config.Location(), a.Logger)
}

// Run executes the long-running collection pipeline.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx, "run the pipeline")
	if err != nil {
		return err
	}
	defer closeStore()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Location:     a.Config.Location(),
		RunOnStart:   a.Config.Scheduler.RunOnStart,
	}, a.Logger)

	opts := service.Options{
		Collector:    a.newCollector(store),
		Locker:       store,
		LockKey:      a.Config.Scheduler.AdvisoryLockKey,
		ClassifySpan: a.Config.Classifier.MonthsAhead,
		Location:     a.Config.Location(),
	}
	if a.Config.Classifier.Enabled {
		if opts.Classifier, err = a.newClassifier(store); err != nil {
			return err
		}
	} else {
		a.Logger.Warn().Msg("classifier disabled; transactions will not be labeled")
	}
	if notifier := a.newNotifier(); notifier != nil {
		opts.Reporter = a.newReporter(store, notifier)
	} else {
		a.Logger.Warn().Msg("telegram disabled; progress reports will not be sent")
	}

	svc := service.New(sched, opts, a.Logger)

	a.Logger.Info().Strs("sources", opts.Collector.Sources()).Dur("interval", a.Config.Scheduler.Interval).Msg("starting pipeline service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("pipeline service stopped")
	return nil
}

// CollectOptions configure a one-off collection.
type CollectOptions struct {
	Sources   []string
	StartDate string
	Months    int
}

// ExportOptions hold parameters for exporting month-to-date spending.
type ExportOptions struct {
	From    string
	To      string
	PNGPath string
	CSVPath string
	MaxRows int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure a field backfill.
type BackfillOptions struct {
	Source    string
	Fields    []string
	StartDate string
	Months    int
}

// ClassifyOptions configure a one-off classification.
type ClassifyOptions struct {
	StartDate string
	Months    int
	DryRun    bool
}

// NotifyOptions configure a one-off progress report.
type NotifyOptions struct {
	Date   string
	DryRun bool
}
