package prediction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"house-finance/internal/rules"
)

var (
	// ErrAlignment marks prediction, feature and raw inputs of different lengths.
	ErrAlignment = errors.New("prediction: inputs are misaligned")
	// ErrInvalidPrediction marks an unusable model output row.
	ErrInvalidPrediction = errors.New("prediction: invalid model output")
)

// ClassScore is one class probability of a model output.
type ClassScore struct {
	Class string  `json:"class"`
	Proba float64 `json:"proba"`
}

// Distribution is the per-row probability vector returned by a model.
type Distribution []ClassScore

// Top returns the highest-probability class; ties keep the earlier class.
func (d Distribution) Top() (ClassScore, bool) {
	if len(d) == 0 {
		return ClassScore{}, false
	}
	best := d[0]
	for _, c := range d[1:] {
		if c.Proba > best.Proba {
			best = c
		}
	}
	return best, true
}

// RawRow carries the source fields the rule cascade reads.
type RawRow struct {
	ID          string
	CategoryRaw string
	Type        string
	Name        string
}

// Output is the labeled result of one row. Overruled implies Proba == 1.
type Output struct {
	ID                string
	Features          json.RawMessage
	PredictedCategory *int
	Proba             float64
	Overruled         bool
}

// Options configure post-processing.
type Options struct {
	Cascade rules.Cascade
	// Dismiss nulls low-precision model classes when no cascade rule fired.
	Dismiss *rules.Rule
}

// PostProcess combines model output with the rule cascade. The three inputs
// must be row-aligned; a length mismatch fails before any row is processed.
func PostProcess(probs []Distribution, features Frame, raw []RawRow, opts Options) ([]Output, error) {
	if len(probs) != features.Len() || len(probs) != len(raw) {
		return nil, fmt.Errorf("%w: predictions=%d features=%d raw=%d", ErrAlignment, len(probs), features.Len(), len(raw))
	}

	out := make([]Output, 0, len(probs))
	for i := range probs {
		top, ok := probs[i].Top()
		if !ok {
			return nil, fmt.Errorf("%w: row %d has an empty probability vector", ErrInvalidPrediction, i)
		}
		modelResult, err := parseClass(top.Class)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidPrediction, i, err)
		}

		snapshot, err := encodeFeatures(features.Columns, features.Rows[i])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		row := Output{ID: raw[i].ID, Features: snapshot, Proba: top.Proba}
		final := modelResult

		ruled := opts.Cascade.Apply(raw[i].CategoryRaw, raw[i].Type, raw[i].Name)
		switch {
		case ruled.Fired() && top.Proba != 1.0 && ruled != modelResult:
			row.Overruled = true
			row.Proba = 1.0
			final = ruled
		case !ruled.Fired() && top.Proba != 1.0 && opts.Dismiss != nil && !modelResult.IsNull():
			if dismissed := opts.Dismiss.Apply(top.Class); dismissed.Fired() {
				final = dismissed
			}
		}

		row.PredictedCategory = final.Ptr()
		out = append(out, row)
	}
	return out, nil
}

// parseClass maps a model label to a rule result; NA-like labels are Null.
func parseClass(label string) (rules.Result, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "na", "nan", "none", "null":
		return rules.Null, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(label), 64)
	if err != nil || f != float64(int(f)) {
		return rules.NoMatch, fmt.Errorf("class %q is not a category id", label)
	}
	return rules.Category(int(f)), nil
}

// encodeFeatures writes the declared columns, in order, as a JSON object.
func encodeFeatures(columns []string, row Row) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, fmt.Errorf("encode feature name %q: %w", col, err)
		}
		val, err := json.Marshal(row[col])
		if err != nil {
			return nil, fmt.Errorf("encode feature %q: %w", col, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return json.RawMessage(buf.Bytes()), nil
}
