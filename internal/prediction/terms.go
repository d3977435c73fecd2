package prediction

// Preprocessing tables for merchant names.

var switchTerms = []termSwap{
	{"coffe", "קפה"},
	{"paypal ebay", "ebay"},
	{"paypal  grammarly", "grammarly"},
	{"paypal  steam games", "steam games"},
	{"paypal  spotify", "spotify"},
	{"paypal  booking", "booking"},
	{`ת"א -יפו`, "ת״א"},
	{`ת"א יפו`, "ת״א"},
	{"תא", "ת״א"},
	{"ת א", "ת״א"},
	{"חניון", "חניה"},
	{"תל אביב", "ת״א"},
	{"כספונט", "כספומט"},
	{"בנקט", "כספומט"},
	{"פירות וירקות", "פירות"},
	{"a i g", "aig"},
	{"דרך ארץ הוראת קבע", "כביש 6"},
}

var brands = []string{
	"audible",
	"פז yellow",
	"סיבוס",
	"קסטרו",
	"הום סנטר",
	"משיכת שיק",
	"כספומט",
	"ישראכרט",
	"סונול",
	"שילב",
	"דלק מנטה",
	"רולדין",
	"צומת ספרים",
	"איכילוב",
	"פנגו",
	"ארומה",
	"איקאה",
	"כללית",
	"דלק",
	"חניה",
	"חניון",
	"חומוס",
	"spotify",
	"booking",
	"שאוורמה",
	"קפה",
	"פיצוחי",
	"פיצה",
	"מסעדת",
	"מסעדה",
	"שוק",
	"שווארמה",
	"מילואים",
	"גולדה",
	"רכבת ישראל",
	"סופר פארם",
	"שופרסל",
	"סופר",
}

var stopwords = []termSwap{
	{"בע״מ", ""},
	{"בעמ", ""},
	{"בע''מ", ""},
	{`בע"מ`, ""},
	{`בע"`, ""},
	{"בע'", ""},
	{"בע''", ""},
	{"אנד", ""},
	{"סניף", ""},
	{"com", ""},
	{"www", ""},
	{"-גמא", ""},
}

// nameTypeRules map a name fragment to an organization type, first match wins.
var nameTypeRules = []termSwap{
	{"אי.אם.פי.אם", "Supermarket"},
	{"מוסכי", "Car service"},
	{" lim ride ", "Transport"},
	{"מוסך", "Car service"},
	{"מכון רישוי", "Car service"},
	{"רשיונות", "Car service"},
	{"חומוס", "Restaurant"},
	{"קפה", "Restaurant"},
	{"דלק", "Gasoline"},
	{"פנגו", "Transport"},
	{"מרכז לטיפוס סלעים בתל אביב", "Climbing"},
	{"צמחים", "Plant nursery"},
}

var typeNormalizations = map[string]string{
	"restaurant": "Restaurant",
	"מסעדה":      "Restaurant",
	"מסעדת":      "Restaurant",
	"bar":        "Restaurant",
	"בית קפה":    "Restaurant",
}
