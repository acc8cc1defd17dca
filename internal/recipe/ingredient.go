package recipe

// UCUM volumetric unit codes accepted for the cup/tablespoon/teaspoon measure.
// The US, metric, and imperial variants of each are distinct units with
// different volumes, so they are enumerated individually.
const (
	UnitCupUS   = "cup_us"
	UnitCupM    = "cup_m"
	UnitCupImp  = "cup_imp"
	UnitTbspUS  = "tbsp_us"
	UnitTbspM   = "tbsp_m"
	UnitTbspImp = "tbsp_imp"
	UnitTspUS   = "tsp_us"
	UnitTspM    = "tsp_m"
	UnitTspImp  = "tsp_imp"
)

// Metric unit codes accepted for the mass/volume measure.
const (
	UnitMilliliter = "ml"
	UnitGram       = "g"
)

// UCUMUnits lists every valid volumetric unit code, in canonical order.
var UCUMUnits = []string{
	UnitCupUS, UnitCupM, UnitCupImp,
	UnitTbspUS, UnitTbspM, UnitTbspImp,
	UnitTspUS, UnitTspM, UnitTspImp,
}

// MetricUnits lists every valid mass/volume unit code.
var MetricUnits = []string{UnitMilliliter, UnitGram}

// AllergenCodes lists the 17 recognised allergen codes.
// An ingredient carries at most one of these.
var AllergenCodes = []string{
	"GLUTEN", "CRUSTACEAN", "EGG", "FISH", "PEANUT", "SOY", "MILK", "NUT",
	"CELERY", "MUSTARD", "SESAME", "SULPHITE", "LUPIN", "MOLLUSC",
	"SHELLFISH", "TREENUT", "WHEAT",
}

// Ingredient is a single recipe ingredient with a dual quantity: a volumetric
// UCUM measure (multiples of 0.1) and an exact integer metric measure.
//
// JSON field names match the persisted wire shape, including the hyphenated
// keys inherited from the recipe data contract.
type Ingredient struct {
	Name         string  `json:"name"`
	UCUMUnit     string  `json:"ucum-unit"`
	UCUMAmount   float64 `json:"ucum-amount"`
	MetricUnit   string  `json:"metric-unit"`
	MetricAmount float64 `json:"metric-amount"`
	Notes        string  `json:"notes"`
	// AllergenCode is empty when the ingredient carries no allergen.
	AllergenCode string `json:"allergen-code,omitempty"`
}

// IsUCUMUnit reports whether code is a valid volumetric unit.
func IsUCUMUnit(code string) bool { return contains(UCUMUnits, code) }

// IsMetricUnit reports whether code is a valid metric unit.
func IsMetricUnit(code string) bool { return contains(MetricUnits, code) }

// IsAllergenCode reports whether code is one of the recognised allergen codes.
func IsAllergenCode(code string) bool { return contains(AllergenCodes, code) }

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
