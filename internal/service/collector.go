package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"house-finance/internal/config"
	"house-finance/internal/fetcher"
	"house-finance/internal/ingest"
	"house-finance/internal/storage"
)

// ErrUnknownSource is returned for a source name missing from configuration.
var ErrUnknownSource = errors.New("service: unknown source")

// CollectOptions override a source's configured scrape window.
type CollectOptions struct {
	StartDate string
	Months    int
}

// Collector runs scrapers and persists their normalized output.
type Collector struct {
	sources  []config.SourceConfig
	fetchers map[string]fetcher.PayloadFetcher
	writer   storage.CollectionWriter
	patcher  storage.TransactionStore
	retry    RetryPolicy
	now      func() time.Time
	logger   zerolog.Logger
}

// NewCollector wires one fetcher per configured source.
func NewCollector(sources []config.SourceConfig, fetchers map[string]fetcher.PayloadFetcher, writer storage.CollectionWriter, patcher storage.TransactionStore, policy RetryPolicy, logger zerolog.Logger) *Collector {
	return &Collector{
		sources:  sources,
		fetchers: fetchers,
		writer:   writer,
		patcher:  patcher,
		retry:    policy,
		now:      time.Now,
		logger:   logger.With().Str("component", "collector").Logger(),
	}
}

// Sources lists the configured source names in order.
func (c *Collector) Sources() []string {
	names := make([]string, 0, len(c.sources))
	for _, src := range c.sources {
		names = append(names, src.Name)
	}
	return names
}

// prepared is one scraped and mapped batch, not yet written.
type prepared struct {
	source  config.SourceConfig
	window  fetcher.Window
	payload any
	flat    []ingest.FlatRecord
	records []ingest.TransactionRecord
	balance *ingest.BalanceRecord
	account string
	shape   ingest.Shape
}

// Collect scrapes one source, snapshots the raw payload and stores the mapped
// transactions, plus a balance row for bank sources. A mapping failure aborts
// before anything is written.
func (c *Collector) Collect(ctx context.Context, name string, opts CollectOptions) (storage.CollectionResult, error) {
	runID := uuid.New()
	logger := c.logger.With().Str("source", name).Str("run_id", runID.String()).Logger()

	batch, err := c.scrape(ctx, name, opts, logger)
	if err != nil {
		return storage.CollectionResult{}, err
	}

	raw, err := json.Marshal(batch.payload)
	if err != nil {
		return storage.CollectionResult{}, fmt.Errorf("encode raw snapshot: %w", err)
	}
	account := batch.account
	if account == "" {
		account = batch.source.AccountNumber
	}
	snapshot := &storage.Snapshot{
		Key:       ingest.SnapshotKey(batch.window.StartDate(), account),
		Source:    name,
		StartDate: batch.window.StartDate(),
		Payload:   raw,
		FetchedAt: c.now().UTC(),
	}

	res, err := c.writer.WriteCollection(ctx, storage.CollectionBatch{
		Source:       name,
		Snapshot:     snapshot,
		Transactions: batch.records,
		Balance:      batch.balance,
	})
	if err != nil {
		return storage.CollectionResult{}, fmt.Errorf("store %s collection: %w", name, err)
	}

	logger.Info().
		Str("shape", batch.shape.String()).
		Str("start_date", batch.window.StartDate()).
		Int("records", len(batch.records)).
		Int64("inserted", res.Inserted).
		Int64("skipped", res.Skipped).
		Bool("balance", res.Balance).
		Msg("collection stored")
	return res, nil
}

// CollectAll runs every configured source and joins their errors; one failing
// source does not stop the others.
func (c *Collector) CollectAll(ctx context.Context) error {
	var errs []error
	for _, src := range c.sources {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := c.Collect(ctx, src.Name, CollectOptions{}); err != nil {
			c.logger.Error().Err(err).Str("source", src.Name).Msg("collection failed")
			errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Backfill re-scrapes a source and rewrites only fields of rows that already
// exist, matched by id.
func (c *Collector) Backfill(ctx context.Context, name string, fields []string, opts CollectOptions) (int64, error) {
	if c.patcher == nil {
		return 0, errors.New("backfill store not configured")
	}
	logger := c.logger.With().Str("source", name).Str("run_id", uuid.NewString()).Logger()

	batch, err := c.scrape(ctx, name, opts, logger)
	if err != nil {
		return 0, err
	}

	updated, err := c.patcher.UpdateTransactionFields(ctx, batch.records, fields)
	if err != nil {
		return 0, fmt.Errorf("backfill %s: %w", name, err)
	}
	logger.Info().Strs("fields", fields).Int("records", len(batch.records)).Int64("updated", updated).Msg("backfill applied")
	return updated, nil
}

func (c *Collector) scrape(ctx context.Context, name string, opts CollectOptions, logger zerolog.Logger) (*prepared, error) {
	src, ok := c.source(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	f, ok := c.fetchers[name]
	if !ok {
		return nil, fmt.Errorf("%w: no fetcher for %s", ErrUnknownSource, name)
	}

	months := src.Months
	if opts.Months != 0 {
		months = opts.Months
	}
	window, err := fetcher.ResolveWindow(opts.StartDate, months, src.LookbackDays, c.now())
	if err != nil {
		return nil, err
	}

	var payload any
	err = retry(ctx, c.retry, logger, "fetch", func(ctx context.Context) error {
		var fetchErr error
		payload, fetchErr = f.Fetch(ctx, window)
		if fetchErr != nil {
			return fetchErr
		}
		return ingest.ValidatePayload(payload)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}

	batch := &prepared{source: src, window: window, payload: payload}
	if err := batch.transform(); err != nil {
		return nil, fmt.Errorf("transform %s: %w", name, err)
	}
	return batch, nil
}

func (p *prepared) transform() error {
	defaultAccount := p.source.AccountNumber
	if defaultAccount == "" {
		defaultAccount = ingest.DefaultAccountNumber
	}

	var summary map[string]any
	if p.source.Kind == config.SourceBank {
		var ok bool
		summary, p.account, ok = ingest.AccountSummary(p.payload)
		if !ok {
			return fmt.Errorf("%w: bank payload has no account summary", ingest.ErrValidation)
		}
	}

	flat, shape, err := ingest.Normalize(p.payload, defaultAccount)
	if err != nil {
		return err
	}
	p.flat, p.shape = flat, shape

	if p.records, err = ingest.ToTransactionRecords(flat, p.source.DeriveID); err != nil {
		return err
	}

	if summary != nil {
		balance, err := ingest.ToBalanceRecord(summary, flat, p.account)
		if err != nil {
			return err
		}
		p.balance = &balance
	}
	return nil
}

func (c *Collector) source(name string) (config.SourceConfig, bool) {
	for _, src := range c.sources {
		if src.Name == name {
			return src, true
		}
	}
	return config.SourceConfig{}, false
}
