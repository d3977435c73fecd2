package prediction

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Row is one record of a feature frame keyed by column name.
type Row map[string]any

// Frame is a row-aligned table with declared feature columns.
type Frame struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (f Frame) Len() int { return len(f.Rows) }

// Extractor derives new columns from a row.
type Extractor interface {
	Name() string
	Extract(row Row) (Row, error)
}

// Output columns produced by the built-in extractors.
const (
	ColumnNormalized = "normalized"
	ColumnType       = "type"
	ColumnWeekday    = "weekday"
	ColumnMonth      = "month"
	ColumnDay        = "day"
)

// Pipeline runs extractors in order and merges their columns into each row.
type Pipeline struct {
	extractors []Extractor
}

// NewPipeline assembles extractors in the given order.
func NewPipeline(extractors ...Extractor) *Pipeline {
	return &Pipeline{extractors: extractors}
}

// Apply returns copies of rows extended with every extractor's columns.
// Later extractors see the columns of earlier ones.
func (p *Pipeline) Apply(rows []Row) ([]Row, error) {
	out := make([]Row, 0, len(rows))
	for i, row := range rows {
		merged := make(Row, len(row)+8)
		for k, v := range row {
			merged[k] = v
		}
		for _, ex := range p.extractors {
			cols, err := ex.Extract(merged)
			if err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", i, ex.Name(), err)
			}
			for k, v := range cols {
				merged[k] = v
			}
		}
		out = append(out, merged)
	}
	return out, nil
}

// WeekDayExtractor adds weekday (Monday=0), month and day of a date column.
type WeekDayExtractor struct {
	column string
}

func (e *WeekDayExtractor) Name() string { return "weekday" }

func (e *WeekDayExtractor) Extract(row Row) (Row, error) {
	out := Row{ColumnWeekday: nil, ColumnMonth: nil, ColumnDay: nil}
	var t time.Time
	switch v := row[e.column].(type) {
	case time.Time:
		t = v
	case string:
		parsed, err := parseDate(v)
		if err != nil {
			return nil, err
		}
		t = parsed
	case nil:
		return out, nil
	default:
		return nil, fmt.Errorf("column %q has type %T", e.column, v)
	}
	out[ColumnWeekday] = (int(t.Weekday()) + 6) % 7
	out[ColumnMonth] = int(t.Month())
	out[ColumnDay] = t.Day()
	return out, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05.000Z", time.RFC3339} {
		if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", raw)
}

// NameExtractor normalizes a merchant description: known spelling variants
// are switched, known brands collapse to the brand name and stopwords are
// removed.
type NameExtractor struct {
	column      string
	switchTerms []termSwap
	brands      []string
	stopwords   []termSwap
}

type termSwap struct {
	from, to string
}

func (e *NameExtractor) Name() string { return "name" }

func (e *NameExtractor) Extract(row Row) (Row, error) {
	raw, _ := row[e.column].(string)
	return Row{ColumnNormalized: e.Normalize(raw)}, nil
}

// Normalize applies the switch, brand and stopword passes.
func (e *NameExtractor) Normalize(value string) string {
	value = replaceWholeWords(value, e.switchTerms)
	value = e.normalizeToBrand(value)
	return strings.TrimSpace(replaceWholeWords(value, e.stopwords))
}

func (e *NameExtractor) normalizeToBrand(value string) string {
	lower := strings.ToLower(value)
	for _, b := range e.brands {
		if strings.Contains(lower, strings.ToLower(b)) {
			return strings.ToLower(b)
		}
	}
	return lower
}

// TypeExtractor infers an organization type from the normalized name.
type TypeExtractor struct {
	column         string
	nameRules      []termSwap
	normalizations map[string]string
}

func (e *TypeExtractor) Name() string { return "type" }

func (e *TypeExtractor) Extract(row Row) (Row, error) {
	name, _ := row[e.column].(string)
	padded := " " + strings.ToLower(name) + " "
	for _, r := range e.nameRules {
		if strings.Contains(padded, strings.ToLower(r.from)) {
			return Row{ColumnType: e.normalize(r.to)}, nil
		}
	}
	if existing, ok := row[ColumnType].(string); ok && existing != "" {
		return Row{ColumnType: e.normalize(existing)}, nil
	}
	return Row{ColumnType: nil}, nil
}

func (e *TypeExtractor) normalize(t string) string {
	if n, ok := e.normalizations[strings.ToLower(t)]; ok {
		return n
	}
	return t
}

// replaceWholeWords replaces terms that start and end on a word boundary.
// At each position the first listed term that matches wins.
func replaceWholeWords(value string, terms []termSwap) string {
	if len(terms) == 0 || value == "" {
		return value
	}
	src := []rune(value)
	var b strings.Builder
	for i := 0; i < len(src); {
		matched := false
		if isBoundary(src, i) {
			for _, t := range terms {
				tr := []rune(t.from)
				end := i + len(tr)
				if len(tr) == 0 || end > len(src) || string(src[i:end]) != t.from {
					continue
				}
				if !isBoundary(src, end) {
					continue
				}
				b.WriteString(t.to)
				i = end
				matched = true
				break
			}
		}
		if !matched {
			b.WriteRune(src[i])
			i++
		}
	}
	return b.String()
}

func isBoundary(src []rune, i int) bool {
	before := i > 0 && isWordRune(src[i-1])
	after := i < len(src) && isWordRune(src[i])
	return before != after
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
