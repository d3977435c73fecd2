package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRecord is the canonical stored transaction.
type TransactionRecord struct {
	ID             string
	Description    string
	Notes          *string
	Date           string
	ProcessedDate  string
	ChargedAmount  decimal.Decimal
	OriginalAmount decimal.Decimal
	CategoryRaw    *string
	AccountNumber  string
	Type           *string
}

// BalanceRecord is one account balance snapshot per scrape batch.
type BalanceRecord struct {
	Balance           decimal.Decimal
	CreditLimit       decimal.Decimal
	Date              string
	CreditUtilization *decimal.Decimal
	BalanceCurrency   *string
	AccountNumber     string
}

// ToTransactionRecord maps a flat scraper record onto the storage schema.
func ToTransactionRecord(rec FlatRecord, id string) (TransactionRecord, error) {
	if id == "" {
		return TransactionRecord{}, mappingErr("id", "is empty")
	}

	var (
		out TransactionRecord
		err error
	)
	out.ID = id
	if out.Description, err = requiredString(rec, "description"); err != nil {
		return TransactionRecord{}, err
	}
	if out.Notes, err = optionalString(rec, "memo"); err != nil {
		return TransactionRecord{}, err
	}
	if out.Date, _, err = requiredDate(rec, "date"); err != nil {
		return TransactionRecord{}, err
	}
	if out.ProcessedDate, _, err = requiredDate(rec, "processedDate"); err != nil {
		return TransactionRecord{}, err
	}
	if out.ChargedAmount, err = requiredDecimal(rec, "chargedAmount"); err != nil {
		return TransactionRecord{}, err
	}
	if out.OriginalAmount, err = requiredDecimal(rec, "originalAmount"); err != nil {
		return TransactionRecord{}, err
	}
	if out.CategoryRaw, err = optionalString(rec, "category"); err != nil {
		return TransactionRecord{}, err
	}
	if out.AccountNumber, err = scalarString(rec, "accountNumber"); err != nil {
		return TransactionRecord{}, err
	}
	if out.Type, err = optionalString(rec, "type"); err != nil {
		return TransactionRecord{}, err
	}
	return out, nil
}

// ToTransactionRecords assigns ids and maps a whole batch. The first failure
// aborts the batch and no records are returned.
func ToTransactionRecords(records []FlatRecord, derive bool) ([]TransactionRecord, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no transactions to transform", ErrValidation)
	}

	out := make([]TransactionRecord, 0, len(records))
	for i, rec := range records {
		id, err := AssignID(rec, derive)
		if err != nil {
			return nil, withIndex(err, i)
		}
		txn, err := ToTransactionRecord(rec, id)
		if err != nil {
			return nil, withIndex(err, i)
		}
		out = append(out, txn)
	}
	return out, nil
}

// ToBalanceRecord maps a raw account summary. Its date is always the day
// after the latest transaction date in the batch.
func ToBalanceRecord(raw map[string]any, transactions []FlatRecord, accountNumber string) (BalanceRecord, error) {
	if len(raw) == 0 {
		return BalanceRecord{}, fmt.Errorf("%w: balance summary is empty", ErrValidation)
	}
	date, err := NextDayAfterLatest(transactions)
	if err != nil {
		return BalanceRecord{}, err
	}
	if accountNumber == "" {
		return BalanceRecord{}, mappingErr("accountNumber", "is empty")
	}

	out := BalanceRecord{Date: date, AccountNumber: accountNumber}
	if out.Balance, err = requiredDecimal(raw, "balance"); err != nil {
		return BalanceRecord{}, err
	}
	if out.CreditLimit, err = requiredDecimal(raw, "creditLimit"); err != nil {
		return BalanceRecord{}, err
	}
	if out.CreditUtilization, err = optionalDecimal(raw, "creditUtilization"); err != nil {
		return BalanceRecord{}, err
	}
	if out.BalanceCurrency, err = optionalString(raw, "balanceCurrency"); err != nil {
		return BalanceRecord{}, err
	}
	return out, nil
}

// NextDayAfterLatest returns max(date)+1 day of a batch as an ISO date.
func NextDayAfterLatest(transactions []FlatRecord) (string, error) {
	if len(transactions) == 0 {
		return "", fmt.Errorf("%w: balance requires at least one transaction", ErrValidation)
	}
	var latest time.Time
	for i, txn := range transactions {
		_, t, err := requiredDate(txn, "date")
		if err != nil {
			return "", withIndex(err, i)
		}
		y, m, d := t.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		if day.After(latest) {
			latest = day
		}
	}
	return latest.AddDate(0, 0, 1).Format(DateLayout), nil
}

func withIndex(err error, index int) error {
	var me *MappingError
	if errors.As(err, &me) {
		cp := *me
		cp.Index = index
		return &cp
	}
	return fmt.Errorf("record %d: %w", index, err)
}

// AccountSummary extracts the first account's summary and number from a
// single-account envelope. ok is false when the envelope carries no summary.
func AccountSummary(payload any) (summary map[string]any, accountNumber string, ok bool) {
	m, isMap := asMap(payload)
	if !isMap {
		return nil, "", false
	}
	accounts, _ := asSlice(m["accounts"])
	if len(accounts) == 0 {
		return nil, "", false
	}
	account, isMap := asMap(accounts[0])
	if !isMap {
		return nil, "", false
	}
	summary, ok = asMap(account["summary"])
	return summary, stringify(account["accountNumber"]), ok
}
