package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnknownOperatorFailsAtConstruction(t *testing.T) {
	_, err := New("broken", "regex", []Entry{{Key: "a", Target: Category(1)}})
	require.ErrorIs(t, err, ErrRuleConfiguration)

	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "broken", ce.Rule)
}

func TestNew_RejectsBadEntries(t *testing.T) {
	_, err := New("r", "equals", []Entry{{Key: "a", Target: NoMatch}})
	assert.ErrorIs(t, err, ErrRuleConfiguration)

	_, err = New("r", "equals", []Entry{{Key: "a", Target: Category(1)}, {Key: "a", Target: Category(2)}})
	assert.ErrorIs(t, err, ErrRuleConfiguration)

	_, err = New("r", "contains", []Entry{{Key: "", Target: Category(1)}})
	assert.ErrorIs(t, err, ErrRuleConfiguration)
}

func TestParseOperator(t *testing.T) {
	tests := map[string]Operator{
		"equals":           OpEquals,
		"eq":               OpEquals,
		"Contains":         OpContains,
		"contains_reverse": OpContainsReverse,
	}
	for in, want := range tests {
		got, err := ParseOperator(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
}

func TestEquals(t *testing.T) {
	r := MustNew("r", "equals", []Entry{{Key: "דלק", Target: Category(17)}, {Key: "paybox", Target: Null}})

	assert.Equal(t, Category(17), r.Apply("דלק"))
	assert.Equal(t, Null, r.Apply("paybox"))
	assert.Equal(t, NoMatch, r.Apply("דלק פז"))
	assert.Equal(t, NoMatch, r.Apply(""))
}

func TestContains_KeyIsNeedleCandidateIsHaystack(t *testing.T) {
	r := MustNew("name", "contains", []Entry{{Key: "פנגו", Target: Category(18)}})

	assert.Equal(t, Category(18), r.Apply("פנגו חניה ת״א"))
	assert.Equal(t, NoMatch, r.Apply("פנג"), "a candidate shorter than the key does not match")
}

func TestContainsReverse_CandidateIsNeedleKeyIsHaystack(t *testing.T) {
	r := MustNew("name", "contains_reverse", []Entry{{Key: "פנגו חניה", Target: Category(18)}})

	assert.Equal(t, Category(18), r.Apply("פנגו"))
	assert.Equal(t, NoMatch, r.Apply("פנגו חניה ת״א"))
}

func TestContains_FirstDeclaredEntryWins(t *testing.T) {
	r := MustNew("name", "contains", []Entry{
		{Key: "כספומט", Target: Category(19)},
		{Key: "ישראכרט", Target: Null},
	})
	assert.Equal(t, Category(19), r.Apply("כספומט ישראכרט"))
}

func TestNilRuleNeverFires(t *testing.T) {
	var r *Rule
	assert.False(t, r.Apply("anything").Fired())
}

func TestResult(t *testing.T) {
	assert.False(t, NoMatch.Fired())
	assert.True(t, Null.Fired())
	assert.True(t, Null.IsNull())
	assert.Nil(t, Null.Ptr())
	assert.Nil(t, NoMatch.Ptr())

	id, ok := Category(23).CategoryID()
	assert.True(t, ok)
	assert.Equal(t, 23, id)
	assert.Equal(t, 23, *Category(23).Ptr())
	assert.NotEqual(t, Null, Category(0), "category 0 is distinct from null")
	assert.Equal(t, "no_match", NoMatch.String())
}

func TestCascade_CategoryRawTakesPrecedence(t *testing.T) {
	c := Cascade{
		CategoryRaw: MustNew("category_raw", "equals", []Entry{{Key: "דלק", Target: Category(17)}}),
		Type:        MustNew("type", "equals", []Entry{{Key: "Supermarket", Target: Category(20)}}),
		Name:        MustNew("name", "contains", []Entry{{Key: "כספומט", Target: Category(19)}}),
	}

	assert.Equal(t, Category(17), c.Apply("דלק", "Supermarket", "כספומט לאומי"))
	assert.Equal(t, Category(20), c.Apply("", "Supermarket", "כספומט לאומי"))
	assert.Equal(t, Category(19), c.Apply("other", "other", "כספומט לאומי"))
	assert.Equal(t, NoMatch, c.Apply("other", "other", "other"))
}

func TestCascade_NullShortCircuits(t *testing.T) {
	c := Cascade{
		Type: MustNew("type", "equals", []Entry{{Key: "Transfer", Target: Null}}),
		Name: MustNew("name", "contains", []Entry{{Key: "x", Target: Category(1)}}),
	}
	assert.Equal(t, Null, c.Apply("", "Transfer", "x"))
}

func TestDefaultCascade(t *testing.T) {
	c := DefaultCascade()
	assert.Equal(t, Category(CategoryCarExpenses), c.Apply("מוסכים", "", ""))
	assert.Equal(t, Category(CategoryGroceries), c.Apply("", "Supermarket", ""))
	assert.Equal(t, Category(CategoryCash), c.Apply("", "", "כספומט בנק הפועלים"))
	assert.Equal(t, Null, c.Apply("", "", "העברה ב bit בנה\"פ"))

	id, fired := ApplyDomainRules("מוסכים", "", "כספומט")
	require.True(t, fired)
	require.NotNil(t, id)
	assert.Equal(t, CategoryCarExpenses, *id)

	id, fired = ApplyDomainRules("", "", "paybox transfer")
	assert.True(t, fired)
	assert.Nil(t, id)

	_, fired = ApplyDomainRules("", "", "")
	assert.False(t, fired)
}

func TestDismissedClasses(t *testing.T) {
	r := DismissedClasses()
	assert.Equal(t, Null, r.Apply("23"))
	assert.Equal(t, NoMatch, r.Apply("20"))
}

func TestParseCascade(t *testing.T) {
	doc := []byte(`
name:
  operator: contains
  rules:
    - key: wolt
      category: 12
    - key: paybox
      category: null
`)
	c, err := ParseCascade(doc)
	require.NoError(t, err)
	assert.Equal(t, Category(12), c.Name.Apply("wolt tel aviv"))
	assert.Equal(t, Null, c.Name.Apply("paybox"))
	assert.Equal(t, Category(CategoryCarExpenses), c.CategoryRaw.Apply("מוסכים"), "omitted sections keep built-in tables")
}

func TestParseCascade_UnknownOperator(t *testing.T) {
	_, err := ParseCascade([]byte("type:\n  operator: like\n  rules: []\n"))
	assert.ErrorIs(t, err, ErrRuleConfiguration)
}

func TestLoadCascade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("category_raw:\n  operator: eq\n  rules:\n    - key: ספרים\n      category: 9\n"), 0o600))

	c, err := LoadCascade(path)
	require.NoError(t, err)
	assert.Equal(t, Category(9), c.CategoryRaw.Apply("ספרים"))
	assert.Equal(t, NoMatch, c.CategoryRaw.Apply("מוסכים"))

	_, err = LoadCascade(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
