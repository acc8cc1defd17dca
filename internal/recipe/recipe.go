package recipe

// Meal type codes accepted for the optional meal_type field.
const (
	MealBreakfast = "breakfast"
	MealBrunch    = "brunch"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
	MealSnack     = "snack"
	MealDessert   = "dessert"
)

// MealTypes lists every valid meal type code.
var MealTypes = []string{
	MealBreakfast, MealBrunch, MealLunch, MealDinner, MealSnack, MealDessert,
}

// IsMealType reports whether code is a valid meal type.
func IsMealType(code string) bool { return contains(MealTypes, code) }

// MaxDescriptionLength bounds the recipe description field.
const MaxDescriptionLength = 250

// WarnTotalTimeMinutes is the threshold above which total_time draws a
// warning rather than an error. Slow-ferment recipes legitimately exceed a
// day, but they are unusual enough to flag.
const WarnTotalTimeMinutes = 1440

// Recipe is the validated recipe contract. TotalTime is in minutes.
//
// A Recipe value is only ever constructed from input that passed validation;
// code holding a Recipe may assume the field invariants hold.
type Recipe struct {
	Title       string       `json:"title"`
	ImageURL    string       `json:"image_url"`
	Description string       `json:"description"`
	Notes       string       `json:"notes"`
	PreReqs     []string     `json:"pre_reqs"`
	TotalTime   int          `json:"total_time"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []string     `json:"steps"`
	MealType    string       `json:"meal_type,omitempty"`
}

// Stored is a Recipe that has been accepted by a storage adapter.
// UUID is assigned on first put and never changes; UpdatedAtEpochMs is bumped
// on every subsequent write of the same recipe.
type Stored struct {
	Recipe
	UUID             string `json:"uuid"`
	CreatedAtEpochMs int64  `json:"createdAtEpochMs"`
	UpdatedAtEpochMs int64  `json:"updatedAtEpochMs"`
}

// Clone returns a deep copy. Storage adapters hand out clones so callers can
// treat returned records as immutable snapshots without sharing slices.
func (r Recipe) Clone() Recipe {
	out := r
	out.PreReqs = append([]string(nil), r.PreReqs...)
	out.Steps = append([]string(nil), r.Steps...)
	out.Ingredients = append([]Ingredient(nil), r.Ingredients...)
	return out
}

// Clone returns a deep copy of the stored recipe.
func (s Stored) Clone() Stored {
	out := s
	out.Recipe = s.Recipe.Clone()
	return out
}
