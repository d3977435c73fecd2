package ingest

import (
	"fmt"
)

// DefaultAccountNumber tags transactions whose payload carries no account scope.
const DefaultAccountNumber = "NA"

// FlatRecord is a single scraped transaction with its account context attached.
type FlatRecord map[string]any

// Flatten turns a shaped payload into an ordered list of flat records, each
// carrying an accountNumber. Records are copied; the payload is not mutated.
func Flatten(payload any, shape Shape, defaultAccount string) ([]FlatRecord, error) {
	if err := ValidatePayload(payload); err != nil {
		return nil, err
	}
	if defaultAccount == "" {
		defaultAccount = DefaultAccountNumber
	}

	switch shape {
	case ShapeSingleAccountEnvelope:
		m, ok := asMap(payload)
		if !ok {
			return nil, fmt.Errorf("%w: envelope payload is %T", ErrShape, payload)
		}
		accounts, _ := asSlice(m["accounts"])
		if len(accounts) == 0 {
			return nil, fmt.Errorf("%w: envelope has no accounts", ErrShape)
		}
		account, ok := asMap(accounts[0])
		if !ok {
			return nil, fmt.Errorf("%w: accounts[0] is %T", ErrShape, accounts[0])
		}
		return appendAccount(nil, account, nil)

	case ShapeTransactionList:
		items, ok := asSlice(payload)
		if !ok {
			return nil, fmt.Errorf("%w: transaction list payload is %T", ErrShape, payload)
		}
		return appendTransactions(make([]FlatRecord, 0, len(items)), items, defaultAccount, false, nil)

	case ShapeAccountMapList:
		entries, ok := asSlice(payload)
		if !ok {
			return nil, fmt.Errorf("%w: account map payload is %T", ErrShape, payload)
		}
		var out []FlatRecord
		for i, entry := range entries {
			accounts, ok := asMap(entry)
			if !ok {
				return nil, fmt.Errorf("%w: entry %d is %T, want mapping", ErrShape, i, entry)
			}
			for _, key := range sortedKeys(accounts) {
				account, ok := asMap(accounts[key])
				if !ok {
					return nil, fmt.Errorf("%w: entry %d account %q is %T, want mapping", ErrShape, i, key, accounts[key])
				}
				var err error
				out, err = appendAccount(out, account, account["index"])
				if err != nil {
					return nil, fmt.Errorf("entry %d account %q: %w", i, key, err)
				}
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: cannot flatten shape %s", ErrShape, shape)
	}
}

// Normalize runs shape detection and flattening in one step.
func Normalize(payload any, defaultAccount string) ([]FlatRecord, Shape, error) {
	shape, err := DetectShape(payload)
	if err != nil {
		return nil, shape, err
	}
	records, err := Flatten(payload, shape, defaultAccount)
	if err != nil {
		return nil, shape, err
	}
	return records, shape, nil
}

func appendAccount(out []FlatRecord, account map[string]any, index any) ([]FlatRecord, error) {
	txns, ok := asSlice(account["txns"])
	if !ok {
		return nil, fmt.Errorf("%w: account has no txns sequence", ErrShape)
	}
	number := stringify(account["accountNumber"])
	return appendTransactions(out, txns, number, true, index)
}

// appendTransactions copies txns into out tagged with accountNumber. When
// override is false a record's own non-empty accountNumber is kept.
func appendTransactions(out []FlatRecord, txns []any, accountNumber string, override bool, index any) ([]FlatRecord, error) {
	for i, item := range txns {
		txn, ok := asMap(item)
		if !ok {
			return nil, fmt.Errorf("%w: transaction %d is %T, want mapping", ErrShape, i, item)
		}
		rec := make(FlatRecord, len(txn)+2)
		for k, v := range txn {
			rec[k] = v
		}
		if override || stringify(rec["accountNumber"]) == "" {
			rec["accountNumber"] = accountNumber
		}
		if index != nil {
			rec["index"] = index
		}
		out = append(out, rec)
	}
	return out, nil
}
