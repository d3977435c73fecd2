package rules

import "strconv"

// Household category ids referenced by the built-in tables.
const (
	CategoryClothing      = 8
	CategoryGasoline      = 17
	CategoryTransport     = 18
	CategoryCash          = 19
	CategoryGroceries     = 20
	CategoryHealth        = 21
	CategoryCarExpenses   = 23
	CategoryVacation      = 25
	CategoryHousehold     = 28
	CategoryGarden        = 43
	CategoryChildExpenses = 44
	CategoryClimbing      = 6
)

var defaultCascade = DefaultCascade()

// DefaultCascade returns the built-in household rule tables.
func DefaultCascade() Cascade {
	return Cascade{
		CategoryRaw: MustNew("category_raw", "equals", []Entry{
			{"שירותי רכב", Category(CategoryCarExpenses)},
			{"מוסכים", Category(CategoryCarExpenses)},
			{"רהיטים", Category(CategoryHousehold)},
			{"צעצועים", Category(CategoryChildExpenses)},
			{"פירות וירקות", Category(CategoryGroceries)},
			{"פארמה", Category(CategoryHealth)},
			{"נופש ותיור", Category(CategoryVacation)},
			{"משתלות", Category(CategoryGarden)},
			{"מכולת/סופר", Category(CategoryGroceries)},
			{"מינימרקטים ומכולות", Category(CategoryGroceries)},
			{"הלבשה", Category(CategoryClothing)},
			{"דלק", Category(CategoryGasoline)},
		}),
		Type: MustNew("type", "equals", []Entry{
			{"Car service", Category(CategoryCarExpenses)},
			{"Airline", Category(CategoryVacation)},
			{"Supermarket", Category(CategoryGroceries)},
			{"Fuel supplier", Category(CategoryGasoline)},
			{"חניון בתל אביב", Category(CategoryGasoline)},
			{"Clothing store", Category(CategoryClothing)},
			{"Transport company", Category(CategoryTransport)},
			{"Rock climbing", Category(CategoryClimbing)},
			{"Medical clinic", Category(CategoryHealth)},
			{"Tire shop", Category(CategoryCarExpenses)},
			{"Plant nursery", Category(CategoryGarden)},
		}),
		Name: MustNew("name", "contains", []Entry{
			{"כספומט", Category(CategoryCash)},
			{"paybox", Null},
			{"פנגו", Category(CategoryTransport)},
			{"BUBBLE DAN", Category(CategoryTransport)},
			{"העברה באפליקציית box", Null},
			{`העברה ב bit בנה"פ`, Null},
			{"ישראכרט", Null},
		}),
	}
}

// dismissedClasses are low-precision model classes whose predictions are
// discarded rather than stored.
var dismissedClasses = []int{46, 45, 43, 42, 41, 40, 38, 32, 23, 31, 30, 27, 26, 16, 11, 10, 8, 7, 29}

// DismissedClasses returns an equals rule mapping each dismissed class to Null.
func DismissedClasses() *Rule {
	entries := make([]Entry, 0, len(dismissedClasses))
	for _, c := range dismissedClasses {
		entries = append(entries, Entry{Key: strconv.Itoa(c), Target: Null})
	}
	return MustNew("dismissed_classes", "equals", entries)
}
