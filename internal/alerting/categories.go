package alerting

import "sort"

// HighLevelCategory groups household categories for the monthly report.
type HighLevelCategory string

const (
	GroceriesCategory      HighLevelCategory = "groceries"
	TransportationCategory HighLevelCategory = "transportation"
	FixedCategory          HighLevelCategory = "fixed"
	VariableNoamCategory   HighLevelCategory = "variable_noam"
	VariableEdenCategory   HighLevelCategory = "variable_eden"
	VariableMutualCategory HighLevelCategory = "variable_mutual"
	// VariableCategory is the unsplit bucket before account routing.
	VariableCategory HighLevelCategory = "variable"
)

var categoryLabels = map[HighLevelCategory]string{
	VariableNoamCategory:   "🧔 הוצאות משתנות (נעם)",
	VariableEdenCategory:   "👩 הוצאות משתנות (עדן)",
	VariableMutualCategory: "👨‍👩‍👧‍👦 הוצאות משתנות (משותף)",
	TransportationCategory: "🚙 הוצאות דלק ותחבורה",
	GroceriesCategory:      "🥕 הוצאות סופר 🍏",
	FixedCategory:          "🏠 הוצאות קבועות",
	VariableCategory:       "הוצאות משתנות",
}

// displayOrder is the order report lines are sent in.
var displayOrder = []HighLevelCategory{
	FixedCategory,
	GroceriesCategory,
	TransportationCategory,
	VariableMutualCategory,
	VariableNoamCategory,
	VariableEdenCategory,
	VariableCategory,
}

// Label returns the display name; unknown slugs render as themselves.
func (c HighLevelCategory) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

func (c HighLevelCategory) rank() int {
	for i, cat := range displayOrder {
		if cat == c {
			return i
		}
	}
	return len(displayOrder)
}

// themeCategories maps category ids to their high-level group. Ids not listed
// fall into the variable bucket.
var themeCategories = map[int]HighLevelCategory{
	20: GroceriesCategory,
	21: GroceriesCategory,
	16: VariableMutualCategory,
	17: TransportationCategory,
	18: TransportationCategory,
	9:  FixedCategory,
	22: FixedCategory,
	24: FixedCategory,
	33: FixedCategory,
	34: FixedCategory,
	35: FixedCategory,
	36: FixedCategory,
	37: FixedCategory,
	38: FixedCategory,
	44: FixedCategory,
}

// Categorizer assigns transactions to high-level categories.
type Categorizer struct {
	theme    map[int]HighLevelCategory
	personal map[string]HighLevelCategory
}

// NewCategorizer builds a categorizer. personal routes the variable expenses of
// an account number to a personal bucket; other accounts share the mutual one.
func NewCategorizer(personal map[string]string) *Categorizer {
	c := &Categorizer{theme: themeCategories, personal: make(map[string]HighLevelCategory, len(personal))}
	for account, slug := range personal {
		c.personal[account] = HighLevelCategory(slug)
	}
	return c
}

// Categorize resolves a category id (nil when uncategorized) and account.
func (c *Categorizer) Categorize(categoryID *int, account string) HighLevelCategory {
	high := VariableCategory
	if categoryID != nil {
		if theme, ok := c.theme[*categoryID]; ok {
			high = theme
		}
	}
	if high != VariableCategory {
		return high
	}
	if personal, ok := c.personal[account]; ok {
		return personal
	}
	return VariableMutualCategory
}

func sortCategories(cats []HighLevelCategory) {
	sort.SliceStable(cats, func(i, j int) bool {
		ri, rj := cats[i].rank(), cats[j].rank()
		if ri != rj {
			return ri < rj
		}
		return cats[i] < cats[j]
	})
}
