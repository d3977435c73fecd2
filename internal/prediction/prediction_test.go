package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"house-finance/internal/rules"
)

func dist(pairs ...any) Distribution {
	var d Distribution
	for i := 0; i < len(pairs); i += 2 {
		d = append(d, ClassScore{Class: pairs[i].(string), Proba: pairs[i+1].(float64)})
	}
	return d
}

func frame(n int) Frame {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{"normalized": "x", "weekday": i, "month": 1, "description": "dropped"}
	}
	return Frame{Columns: []string{"normalized", "weekday", "month"}, Rows: rows}
}

func TestPostProcess_Alignment(t *testing.T) {
	_, err := PostProcess([]Distribution{dist("1", 0.5)}, frame(2), []RawRow{{ID: "a"}}, Options{})
	assert.ErrorIs(t, err, ErrAlignment)

	_, err = PostProcess([]Distribution{dist("1", 0.5)}, frame(1), nil, Options{})
	assert.ErrorIs(t, err, ErrAlignment)
}

func TestPostProcess_RuleEqualToModelIsNotAnOverride(t *testing.T) {
	out, err := PostProcess(
		[]Distribution{dist("20", 0.1, "23", 0.6, "17", 0.3)},
		frame(1),
		[]RawRow{{ID: "t1", CategoryRaw: "מוסכים"}},
		Options{Cascade: rules.DefaultCascade(), Dismiss: rules.DismissedClasses()},
	)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.False(t, out[0].Overruled)
	assert.Equal(t, 0.6, out[0].Proba)
	require.NotNil(t, out[0].PredictedCategory)
	assert.Equal(t, 23, *out[0].PredictedCategory)
}

func TestPostProcess_OverrideForcesProbaOne(t *testing.T) {
	out, err := PostProcess(
		[]Distribution{dist("20", 0.7, "17", 0.3)},
		frame(1),
		[]RawRow{{ID: "t1", CategoryRaw: "דלק"}},
		Options{Cascade: rules.DefaultCascade()},
	)
	require.NoError(t, err)
	assert.True(t, out[0].Overruled)
	assert.Equal(t, 1.0, out[0].Proba)
	assert.Equal(t, rules.CategoryGasoline, *out[0].PredictedCategory)
}

func TestPostProcess_ConfidentModelIsKept(t *testing.T) {
	out, err := PostProcess(
		[]Distribution{dist("20", 1.0)},
		frame(1),
		[]RawRow{{ID: "t1", CategoryRaw: "דלק"}},
		Options{Cascade: rules.DefaultCascade()},
	)
	require.NoError(t, err)
	assert.False(t, out[0].Overruled)
	assert.Equal(t, 1.0, out[0].Proba)
	assert.Equal(t, 20, *out[0].PredictedCategory)
}

func TestPostProcess_NullRuleNullsCategory(t *testing.T) {
	out, err := PostProcess(
		[]Distribution{dist("19", 0.4)},
		frame(1),
		[]RawRow{{ID: "t1", Name: "paybox transfer"}},
		Options{Cascade: rules.DefaultCascade()},
	)
	require.NoError(t, err)
	assert.True(t, out[0].Overruled)
	assert.Equal(t, 1.0, out[0].Proba)
	assert.Nil(t, out[0].PredictedCategory)
}

func TestPostProcess_NAModelLabel(t *testing.T) {
	out, err := PostProcess([]Distribution{dist("NA", 0.9)}, frame(1), []RawRow{{ID: "t1"}}, Options{})
	require.NoError(t, err)
	assert.Nil(t, out[0].PredictedCategory)
	assert.False(t, out[0].Overruled)
	assert.Equal(t, 0.9, out[0].Proba)
}

func TestPostProcess_DismissedClass(t *testing.T) {
	out, err := PostProcess(
		[]Distribution{dist("8", 0.55)},
		frame(1),
		[]RawRow{{ID: "t1", Name: "unknown merchant"}},
		Options{Cascade: rules.DefaultCascade(), Dismiss: rules.DismissedClasses()},
	)
	require.NoError(t, err)
	assert.Nil(t, out[0].PredictedCategory)
	assert.False(t, out[0].Overruled)
	assert.Equal(t, 0.55, out[0].Proba)
}

func TestPostProcess_ConfidentModelIsNotDismissed(t *testing.T) {
	out, err := PostProcess(
		[]Distribution{dist("23", 1.0)},
		frame(1),
		[]RawRow{{ID: "1"}},
		Options{Cascade: rules.DefaultCascade(), Dismiss: rules.DismissedClasses()},
	)
	require.NoError(t, err)
	require.NotNil(t, out[0].PredictedCategory)
	assert.Equal(t, 23, *out[0].PredictedCategory)
	assert.Equal(t, 1.0, out[0].Proba)
	assert.False(t, out[0].Overruled)
}

func TestPostProcess_OverrideProbabilityCoupling(t *testing.T) {
	probs := []Distribution{dist("20", 0.6), dist("17", 0.2), dist("23", 1.0), dist("5", 0.33), dist("NA", 0.5)}
	raw := []RawRow{
		{ID: "a", CategoryRaw: "מוסכים"},
		{ID: "b", Type: "Supermarket"},
		{ID: "c", Name: "כספומט"},
		{ID: "d"},
		{ID: "e", Name: "ישראכרט"},
	}
	out, err := PostProcess(probs, frame(len(raw)), raw, Options{Cascade: rules.DefaultCascade()})
	require.NoError(t, err)
	require.Len(t, out, len(raw))

	for i, o := range out {
		top, _ := probs[i].Top()
		if o.Overruled {
			assert.Equal(t, 1.0, o.Proba, "row %d", i)
		} else {
			assert.Equal(t, top.Proba, o.Proba, "row %d", i)
		}
		assert.Equal(t, raw[i].ID, o.ID)
	}
	assert.True(t, out[0].Overruled)
	assert.True(t, out[1].Overruled)
	assert.False(t, out[2].Overruled)
	assert.False(t, out[3].Overruled)
	assert.False(t, out[4].Overruled, "null rule equal to null model label is not an override")
}

func TestPostProcess_FeaturesAreDeclaredColumnsInOrder(t *testing.T) {
	f := Frame{
		Columns: []string{"weekday", "normalized", "missing"},
		Rows:    []Row{{"normalized": "קפה", "weekday": 3, "description": "ארומה קפה"}},
	}
	out, err := PostProcess([]Distribution{dist("1", 0.5)}, f, []RawRow{{ID: "a"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, `{"weekday":3,"normalized":"קפה","missing":null}`, string(out[0].Features))
}

func TestPostProcess_InvalidModelOutput(t *testing.T) {
	_, err := PostProcess([]Distribution{{}}, frame(1), []RawRow{{ID: "a"}}, Options{})
	assert.ErrorIs(t, err, ErrInvalidPrediction)

	_, err = PostProcess([]Distribution{dist("groceries", 0.5)}, frame(1), []RawRow{{ID: "a"}}, Options{})
	assert.ErrorIs(t, err, ErrInvalidPrediction)
}

func TestDistributionTop(t *testing.T) {
	top, ok := dist("1", 0.4, "2", 0.4, "3", 0.2).Top()
	require.True(t, ok)
	assert.Equal(t, "1", top.Class)

	_, ok = Distribution{}.Top()
	assert.False(t, ok)
}
