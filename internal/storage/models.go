package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"house-finance/internal/ingest"
	"house-finance/internal/prediction"
)

// Snapshot is a raw scraper payload kept verbatim for replay.
type Snapshot struct {
	Key       string
	Source    string
	StartDate string
	Payload   json.RawMessage
	FetchedAt time.Time
}

// CollectionBatch is everything one collection run writes, committed together.
type CollectionBatch struct {
	Source       string
	Snapshot     *Snapshot
	Transactions []ingest.TransactionRecord
	Balance      *ingest.BalanceRecord
}

// CollectionResult reports what a batch changed.
type CollectionResult struct {
	Inserted int64
	Skipped  int64
	// Balance is false when a balance for the account and date already exists.
	Balance bool
}

// StoredTransaction is a persisted transaction with its collection metadata.
type StoredTransaction struct {
	ingest.TransactionRecord
	Source    string
	CreatedAt time.Time
}

// PredictionRun is one append-only batch of classifier output.
type PredictionRun struct {
	ID        uuid.UUID
	Model     string
	Outputs   []prediction.Output
	CreatedAt time.Time
}

// CategoryExpense is the month-to-date expense of one account and category.
// CategoryID is nil for uncategorized transactions.
type CategoryExpense struct {
	AccountNumber string
	CategoryID    *int
	Total         decimal.Decimal
}

// ExpenseRow is a single categorized expense for reporting.
type ExpenseRow struct {
	ID            string
	Date          string
	Description   string
	Amount        decimal.Decimal
	AccountNumber string
	CategoryID    *int
}
