package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ScraperTimeLayout is the timestamp format the scrapers print.
const ScraperTimeLayout = "2006-01-02T15:04:05.000Z"

// DateLayout is the canonical ISO date of stored records.
const DateLayout = "2006-01-02"

var dateLayouts = []string{ScraperTimeLayout, time.RFC3339Nano, DateLayout}

// ParseDate accepts scraper timestamps, RFC3339 and plain ISO dates. Offset
// timestamps keep their own calendar date.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", raw)
}

// stringify renders scalar payload values; nil becomes "".
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}

func requiredString(rec map[string]any, key string) (string, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return "", mappingErr(key, "missing required field")
	}
	s, ok := v.(string)
	if !ok {
		return "", mappingErr(key, "has type %T, want string", v)
	}
	return s, nil
}

// optionalString maps absent, null and blank values to nil.
func optionalString(rec map[string]any, key string) (*string, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, mappingErr(key, "has type %T, want string", v)
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return &s, nil
}

// scalarString accepts strings and numbers, used for identifiers and account numbers.
func scalarString(rec map[string]any, key string) (string, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return "", mappingErr(key, "missing required field")
	}
	switch v.(type) {
	case string, json.Number, float64, float32, int, int64:
	default:
		return "", mappingErr(key, "has type %T, want string or number", v)
	}
	s := stringify(v)
	if strings.TrimSpace(s) == "" {
		return "", mappingErr(key, "is empty")
	}
	return s, nil
}

func requiredDate(rec map[string]any, key string) (string, time.Time, error) {
	raw, err := requiredString(rec, key)
	if err != nil {
		return "", time.Time{}, err
	}
	t, err := ParseDate(raw)
	if err != nil {
		return "", time.Time{}, mappingErr(key, "%v", err)
	}
	return t.Format(DateLayout), t, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case json.Number:
		return decimal.NewFromString(val.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(val))
	case float64:
		return decimal.NewFromFloat(val), nil
	case float32:
		return decimal.NewFromFloat32(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int64:
		return decimal.NewFromInt(val), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("has type %T, want number", v)
	}
}

func requiredDecimal(rec map[string]any, key string) (decimal.Decimal, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return decimal.Decimal{}, mappingErr(key, "missing required field")
	}
	d, err := toDecimal(v)
	if err != nil {
		return decimal.Decimal{}, mappingErr(key, "%v", err)
	}
	return d, nil
}

func optionalDecimal(rec map[string]any, key string) (*decimal.Decimal, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return nil, nil
	}
	d, err := toDecimal(v)
	if err != nil {
		return nil, mappingErr(key, "%v", err)
	}
	return &d, nil
}
