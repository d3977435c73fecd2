package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"house-finance/internal/ingest"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrUnknownField marks a backfill field outside the updatable whitelist.
	ErrUnknownField = errors.New("storage: field cannot be updated")
)

//go:embed schema.sql
var schemaSQL string

const (
	insertTransactionSQL = `INSERT INTO transactions (
        id,
        description,
        notes,
        date,
        processed_date,
        charged_amount,
        original_amount,
        category_raw,
        account_number,
        type,
        source
    ) VALUES (
        $1,$2,$3,$4::date,$5::date,$6::numeric,$7::numeric,$8,$9,$10,$11
    )
    ON CONFLICT (id) DO NOTHING;`

	insertBalanceSQL = `INSERT INTO bank_balances (
        account_number,
        date,
        balance,
        credit_limit,
        credit_utilization,
        balance_currency
    ) VALUES (
        $1,$2::date,$3::numeric,$4::numeric,$5::numeric,$6
    )
    ON CONFLICT (account_number, date) DO NOTHING;`

	upsertSnapshotSQL = `INSERT INTO raw_snapshots (
        mongo_key,
        source,
        start_date,
        payload,
        fetched_at
    ) VALUES (
        $1,$2,$3::date,$4,$5
    )
    ON CONFLICT (mongo_key) DO UPDATE
    SET payload    = EXCLUDED.payload,
        fetched_at = EXCLUDED.fetched_at;`

	insertPredictionSQL = `INSERT INTO predictions (
        run_id,
        model,
        transaction_id,
        features,
        predicted_category,
        proba,
        overruled
    ) VALUES (
        $1::uuid,$2,$3,$4,$5,$6,$7
    );`

	transactionColumns = `id,
        description,
        notes,
        date::text,
        processed_date::text,
        charged_amount::text,
        original_amount::text,
        category_raw,
        account_number,
        type,
        source,
        created_at`

	listTransactionsBetweenSQL = `SELECT ` + transactionColumns + `
    FROM transactions
    WHERE date >= $1::date
      AND date < $2::date
    ORDER BY date, id;`

	listRecentTransactionsSQL = `SELECT ` + transactionColumns + `
    FROM transactions
    ORDER BY date DESC, id
    LIMIT $1;`

	latestPredictionCTE = `WITH latest AS (
        SELECT DISTINCT ON (transaction_id) transaction_id, predicted_category
        FROM predictions
        ORDER BY transaction_id, created_at DESC, id DESC
    )`

	monthToDateExpensesSQL = latestPredictionCTE + `
    SELECT t.account_number, l.predicted_category, SUM(-t.charged_amount)::text
    FROM transactions t
    LEFT JOIN latest l ON l.transaction_id = t.id
    WHERE t.date >= $1::date
      AND t.date <= $2::date
      AND t.charged_amount < 0
    GROUP BY t.account_number, l.predicted_category
    ORDER BY t.account_number, l.predicted_category NULLS LAST;`

	listExpensesBetweenSQL = latestPredictionCTE + `
    SELECT t.id, t.date::text, t.description, (-t.charged_amount)::text, t.account_number, l.predicted_category
    FROM transactions t
    LEFT JOIN latest l ON l.transaction_id = t.id
    WHERE t.date >= $1::date
      AND t.date <= $2::date
      AND t.charged_amount < 0
    ORDER BY t.date DESC, t.account_number, t.id
    LIMIT $3;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// CollectionWriter persists one collection run atomically.
type CollectionWriter interface {
	WriteCollection(ctx context.Context, batch CollectionBatch) (CollectionResult, error)
}

// TransactionStore reads and patches stored transactions.
type TransactionStore interface {
	ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]StoredTransaction, error)
	ListRecentTransactions(ctx context.Context, limit int) ([]StoredTransaction, error)
	UpdateTransactionFields(ctx context.Context, records []ingest.TransactionRecord, fields []string) (int64, error)
}

// PredictionStore appends classifier output.
type PredictionStore interface {
	InsertPredictions(ctx context.Context, run PredictionRun) (int64, error)
}

// ExpenseStore aggregates categorized spending.
type ExpenseStore interface {
	MonthToDateExpenses(ctx context.Context, from, to time.Time) ([]CategoryExpense, error)
	ListExpensesBetween(ctx context.Context, from, to time.Time, limit int) ([]ExpenseRow, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to transactions, balances, snapshots and predictions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// A failed unlock is released with the session when the connection closes.
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// WriteCollection stores the raw snapshot, inserts new transactions and the
// balance in one transaction. Existing transaction ids and balances are kept.
func (s *Store) WriteCollection(ctx context.Context, batch CollectionBatch) (CollectionResult, error) {
	pool, err := s.getPool()
	if err != nil {
		return CollectionResult{}, err
	}

	var res CollectionResult
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if snap := batch.Snapshot; snap != nil {
			if _, err := tx.Exec(ctx, upsertSnapshotSQL, snap.Key, snap.Source, snap.StartDate, []byte(snap.Payload), snap.FetchedAt); err != nil {
				return fmt.Errorf("upsert raw snapshot: %w", err)
			}
		}

		inserted, err := insertTransactions(ctx, tx, batch.Source, batch.Transactions)
		if err != nil {
			return err
		}
		res.Inserted = inserted
		res.Skipped = int64(len(batch.Transactions)) - inserted

		if bal := batch.Balance; bal != nil {
			tag, err := tx.Exec(ctx, insertBalanceSQL,
				bal.AccountNumber,
				bal.Date,
				bal.Balance.String(),
				bal.CreditLimit.String(),
				decimalOrNil(bal.CreditUtilization),
				bal.BalanceCurrency,
			)
			if err != nil {
				return fmt.Errorf("insert bank balance: %w", err)
			}
			res.Balance = tag.RowsAffected() == 1
		}
		return nil
	})
	if err != nil {
		return CollectionResult{}, err
	}
	return res, nil
}

func insertTransactions(ctx context.Context, tx pgx.Tx, source string, records []ingest.TransactionRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(insertTransactionSQL,
			rec.ID,
			rec.Description,
			rec.Notes,
			rec.Date,
			rec.ProcessedDate,
			rec.ChargedAmount.String(),
			rec.OriginalAmount.String(),
			rec.CategoryRaw,
			rec.AccountNumber,
			rec.Type,
			source,
		)
	}

	br := tx.SendBatch(ctx, batch)
	var inserted int64
	for i := range records {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("insert transaction %s: %w", records[i].ID, err)
		}
		inserted += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close transaction batch: %w", err)
	}
	return inserted, nil
}

// UpdateTransactionFields rewrites only the named columns of existing rows,
// matched by id. Rows that do not exist are not created.
func (s *Store) UpdateTransactionFields(ctx context.Context, records []ingest.TransactionRecord, fields []string) (int64, error) {
	query, specs, err := buildUpdateSQL(fields)
	if err != nil {
		return 0, err
	}
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var updated int64
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range records {
			args := make([]any, 0, len(specs)+1)
			args = append(args, rec.ID)
			for _, spec := range specs {
				args = append(args, spec.value(rec))
			}
			batch.Queue(query, args...)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for i := range records {
			tag, err := br.Exec()
			if err != nil {
				return fmt.Errorf("update transaction %s: %w", records[i].ID, err)
			}
			updated += tag.RowsAffected()
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

type fieldSpec struct {
	column string
	cast   string
	value  func(ingest.TransactionRecord) any
}

var updatableFields = map[string]fieldSpec{
	"description":     {column: "description", value: func(r ingest.TransactionRecord) any { return r.Description }},
	"notes":           {column: "notes", value: func(r ingest.TransactionRecord) any { return r.Notes }},
	"date":            {column: "date", cast: "::date", value: func(r ingest.TransactionRecord) any { return r.Date }},
	"processed_date":  {column: "processed_date", cast: "::date", value: func(r ingest.TransactionRecord) any { return r.ProcessedDate }},
	"charged_amount":  {column: "charged_amount", cast: "::numeric", value: func(r ingest.TransactionRecord) any { return r.ChargedAmount.String() }},
	"original_amount": {column: "original_amount", cast: "::numeric", value: func(r ingest.TransactionRecord) any { return r.OriginalAmount.String() }},
	"category_raw":    {column: "category_raw", value: func(r ingest.TransactionRecord) any { return r.CategoryRaw }},
	"account_number":  {column: "account_number", value: func(r ingest.TransactionRecord) any { return r.AccountNumber }},
	"type":            {column: "type", value: func(r ingest.TransactionRecord) any { return r.Type }},
}

// UpdatableFields lists the columns a backfill may rewrite.
func UpdatableFields() []string {
	out := make([]string, 0, len(updatableFields))
	for name := range updatableFields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// buildUpdateSQL renders the backfill statement; $1 is always the id.
func buildUpdateSQL(fields []string) (string, []fieldSpec, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("%w: no fields to update", ErrUnknownField)
	}
	seen := make(map[string]struct{}, len(fields))
	specs := make([]fieldSpec, 0, len(fields))
	sets := make([]string, 0, len(fields)+1)
	for _, raw := range fields {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "id" {
			return "", nil, fmt.Errorf("%w: id is the match key", ErrUnknownField)
		}
		spec, ok := updatableFields[name]
		if !ok {
			return "", nil, fmt.Errorf("%w: %q (allowed: %s)", ErrUnknownField, raw, strings.Join(UpdatableFields(), ", "))
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		specs = append(specs, spec)
		sets = append(sets, spec.column+" = $"+strconv.Itoa(len(specs)+1)+spec.cast)
	}
	sets = append(sets, "updated_at = now()")
	return "UPDATE transactions SET " + strings.Join(sets, ", ") + " WHERE id = $1;", specs, nil
}

// ListTransactionsBetween lists transactions dated in [from, to).
func (s *Store) ListTransactionsBetween(ctx context.Context, from, to time.Time) ([]StoredTransaction, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listTransactionsBetweenSQL, from.Format(ingest.DateLayout), to.Format(ingest.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list transactions between: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows, 0)
}

// ListRecentTransactions lists the newest transactions first.
func (s *Store) ListRecentTransactions(ctx context.Context, limit int) ([]StoredTransaction, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listRecentTransactionsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows, limit)
}

func collectTransactions(rows pgx.Rows, capacity int) ([]StoredTransaction, error) {
	out := make([]StoredTransaction, 0, capacity)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func scanTransaction(rows pgx.Rows) (StoredTransaction, error) {
	var txn StoredTransaction
	var chargedStr, origStr string
	if err := rows.Scan(
		&txn.ID,
		&txn.Description,
		&txn.Notes,
		&txn.Date,
		&txn.ProcessedDate,
		&chargedStr,
		&origStr,
		&txn.CategoryRaw,
		&txn.AccountNumber,
		&txn.Type,
		&txn.Source,
		&txn.CreatedAt,
	); err != nil {
		return StoredTransaction{}, err
	}

	var err error
	if txn.ChargedAmount, err = decimal.NewFromString(chargedStr); err != nil {
		return StoredTransaction{}, fmt.Errorf("parse charged amount: %w", err)
	}
	if txn.OriginalAmount, err = decimal.NewFromString(origStr); err != nil {
		return StoredTransaction{}, fmt.Errorf("parse original amount: %w", err)
	}
	return txn, nil
}

// InsertPredictions appends one classification run.
func (s *Store) InsertPredictions(ctx context.Context, run PredictionRun) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if run.ID == uuid.Nil {
		return 0, errors.New("prediction run id is required")
	}
	if len(run.Outputs) == 0 {
		return 0, nil
	}

	var inserted int64
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, out := range run.Outputs {
			batch.Queue(insertPredictionSQL,
				run.ID.String(),
				run.Model,
				out.ID,
				[]byte(out.Features),
				out.PredictedCategory,
				out.Proba,
				out.Overruled,
			)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for i := range run.Outputs {
			tag, err := br.Exec()
			if err != nil {
				return fmt.Errorf("insert prediction for %s: %w", run.Outputs[i].ID, err)
			}
			inserted += tag.RowsAffected()
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// MonthToDateExpenses sums expenses per account and latest predicted category
// for transactions dated in [from, to].
func (s *Store) MonthToDateExpenses(ctx context.Context, from, to time.Time) ([]CategoryExpense, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, monthToDateExpensesSQL, from.Format(ingest.DateLayout), to.Format(ingest.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("month to date expenses: %w", err)
	}
	defer rows.Close()

	out := make([]CategoryExpense, 0)
	for rows.Next() {
		var (
			exp      CategoryExpense
			totalStr string
		)
		if err := rows.Scan(&exp.AccountNumber, &exp.CategoryID, &totalStr); err != nil {
			return nil, err
		}
		if exp.Total, err = decimal.NewFromString(totalStr); err != nil {
			return nil, fmt.Errorf("parse expense total: %w", err)
		}
		out = append(out, exp)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListExpensesBetween lists individual expenses in [from, to], newest first.
func (s *Store) ListExpensesBetween(ctx context.Context, from, to time.Time, limit int) ([]ExpenseRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listExpensesBetweenSQL, from.Format(ingest.DateLayout), to.Format(ingest.DateLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("list expenses between: %w", err)
	}
	defer rows.Close()

	out := make([]ExpenseRow, 0)
	for rows.Next() {
		var (
			row       ExpenseRow
			amountStr string
		)
		if err := rows.Scan(&row.ID, &row.Date, &row.Description, &amountStr, &row.AccountNumber, &row.CategoryID); err != nil {
			return nil, err
		}
		if row.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("parse expense amount: %w", err)
		}
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func decimalOrNil(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

var (
	_ CollectionWriter = (*Store)(nil)
	_ TransactionStore = (*Store)(nil)
	_ PredictionStore  = (*Store)(nil)
	_ ExpenseStore     = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
)
