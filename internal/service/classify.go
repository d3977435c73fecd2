package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"house-finance/internal/classifier"
	"house-finance/internal/prediction"
	"house-finance/internal/storage"
)

// ClassifyResult summarizes one classification run.
type ClassifyResult struct {
	RunID     uuid.UUID
	Rows      int
	Overruled int
	Stored    int64
}

// Classifier labels stored transactions with the category model.
type Classifier struct {
	transactions storage.TransactionStore
	predictions  storage.PredictionStore
	model        classifier.Model
	pipeline     *prediction.Pipeline
	columns      []string
	opts         prediction.Options
	modelName    string
	retry        RetryPolicy
	now          func() time.Time
	logger       zerolog.Logger
}

// ClassifierOptions assemble a Classifier.
type ClassifierOptions struct {
	ModelName      string
	FeatureColumns []string
	Pipeline       *prediction.Pipeline
	PostProcess    prediction.Options
	Retry          RetryPolicy
}

// NewClassifier wires the feature pipeline, model and post-processing.
func NewClassifier(transactions storage.TransactionStore, predictions storage.PredictionStore, model classifier.Model, opts ClassifierOptions, logger zerolog.Logger) *Classifier {
	pipeline := opts.Pipeline
	if pipeline == nil {
		pipeline = prediction.NewPipeline()
	}
	return &Classifier{
		transactions: transactions,
		predictions:  predictions,
		model:        model,
		pipeline:     pipeline,
		columns:      opts.FeatureColumns,
		opts:         opts.PostProcess,
		modelName:    opts.ModelName,
		retry:        opts.Retry,
		now:          time.Now,
		logger:       logger.With().Str("component", "classifier").Logger(),
	}
}

// Run classifies transactions dated in [from, to) and appends the outputs
// as one prediction run. Nothing is stored when any step fails.
func (c *Classifier) Run(ctx context.Context, from, to time.Time) (ClassifyResult, error) {
	runID := uuid.New()
	result := ClassifyResult{RunID: runID}
	logger := c.logger.With().Str("run_id", runID.String()).Logger()

	txns, err := c.transactions.ListTransactionsBetween(ctx, from, to)
	if err != nil {
		return result, fmt.Errorf("load transactions: %w", err)
	}
	if len(txns) == 0 {
		logger.Info().Time("from", from).Time("to", to).Msg("no transactions to classify")
		return result, nil
	}

	outputs, err := c.Predict(ctx, txns)
	if err != nil {
		return result, err
	}
	result.Rows = len(outputs)
	for _, o := range outputs {
		if o.Overruled {
			result.Overruled++
		}
	}

	stored, err := c.predictions.InsertPredictions(ctx, storage.PredictionRun{
		ID:        runID,
		Model:     c.modelName,
		Outputs:   outputs,
		CreatedAt: c.now().UTC(),
	})
	if err != nil {
		return result, fmt.Errorf("store predictions: %w", err)
	}
	result.Stored = stored

	logger.Info().
		Time("from", from).
		Time("to", to).
		Int("rows", result.Rows).
		Int("overruled", result.Overruled).
		Int64("stored", stored).
		Msg("classification stored")
	return result, nil
}

// Predict runs features, model and post-processing over txns without storing.
func (c *Classifier) Predict(ctx context.Context, txns []storage.StoredTransaction) ([]prediction.Output, error) {
	base := make([]prediction.Row, 0, len(txns))
	for _, t := range txns {
		base = append(base, featureRow(t))
	}
	rows, err := c.pipeline.Apply(base)
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}
	frame := prediction.Frame{Columns: c.columns, Rows: rows}

	var probs []prediction.Distribution
	err = retry(ctx, c.retry, c.logger, "predict", func(ctx context.Context) error {
		var predictErr error
		probs, predictErr = c.model.PredictProba(ctx, frame)
		return predictErr
	})
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	raw := make([]prediction.RawRow, len(txns))
	for i, t := range txns {
		raw[i] = rawRow(t, rows[i])
	}
	return prediction.PostProcess(probs, frame, raw, c.opts)
}

// featureRow exposes the stored columns to the extractors. The scraper's own
// transaction type is kept apart from the inferred organization type.
func featureRow(t storage.StoredTransaction) prediction.Row {
	amount, _ := t.ChargedAmount.Float64()
	row := prediction.Row{
		"id":             t.ID,
		"description":    t.Description,
		"date":           t.Date,
		"processed_date": t.ProcessedDate,
		"charged_amount": amount,
		"account_number": t.AccountNumber,
		"category_raw":   nil,
		"txn_type":       nil,
	}
	if t.CategoryRaw != nil {
		row["category_raw"] = *t.CategoryRaw
	}
	if t.Type != nil {
		row["txn_type"] = *t.Type
	}
	return row
}

func rawRow(t storage.StoredTransaction, features prediction.Row) prediction.RawRow {
	raw := prediction.RawRow{ID: t.ID, Name: t.Description}
	if t.CategoryRaw != nil {
		raw.CategoryRaw = *t.CategoryRaw
	}
	if typ, ok := features[prediction.ColumnType].(string); ok {
		raw.Type = typ
	}
	return raw
}
