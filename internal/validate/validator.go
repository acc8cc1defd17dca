package validate

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/mealplanner/pantry/internal/recipe"
)

//go:embed schema.cue
var schemaCUE string

// multipleTolerance absorbs float representation noise when checking that a
// volumetric amount is a multiple of 0.1 (0.3/0.1 is not exactly 3 in binary).
const multipleTolerance = 1e-8

// ucumAmountStep is the granularity required of volumetric amounts.
const ucumAmountStep = 0.1

// Validator checks raw untyped input against the recipe/ingredient contract.
//
// Validation runs two independent passes: a structural pass against the
// embedded CUE schema (field presence and shape, closed field sets), and a
// semantic pass that walks an explicit per-field check table. Findings from
// both passes are accumulated, never short-circuited, so one call reports
// every problem at once.
//
// A Validator is immutable after construction and safe for concurrent use.
type Validator struct {
	cuectx           *cue.Context
	recipeSchema     cue.Value
	ingredientSchema cue.Value
	warnTotalTime    int
}

// Option configures a Validator.
type Option func(*Validator)

// WithWarnTotalTime overrides the total_time threshold (in minutes) above
// which a warning is reported. The default is recipe.WarnTotalTimeMinutes.
func WithWarnTotalTime(minutes int) Option {
	return func(v *Validator) { v.warnTotalTime = minutes }
}

// New compiles the embedded schema and returns a ready Validator.
// Panics if the embedded schema fails to compile, which indicates a broken
// build rather than bad input.
func New(opts ...Option) *Validator {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		panic(fmt.Sprintf("validate: compiling embedded schema: %v", err))
	}

	v := &Validator{
		cuectx:           ctx,
		recipeSchema:     schema.LookupPath(cue.ParsePath("#Recipe")),
		ingredientSchema: schema.LookupPath(cue.ParsePath("#Ingredient")),
		warnTotalTime:    recipe.WarnTotalTimeMinutes,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateRecipe validates raw input against the Recipe contract.
// Warnings do not block: IsValid is true whenever no error-severity finding
// is present.
func (v *Validator) ValidateRecipe(input any) Result {
	return v.validateRecipe(input, "root")
}

// ValidateIngredient validates raw input against the Ingredient contract.
func (v *Validator) ValidateIngredient(input any) Result {
	return v.validateIngredient(input, "root")
}

// StoreRecipe validates input and, on success, decodes it into a typed
// Recipe. The input is never mutated or coerced; on failure the zero Recipe
// and the full validation result are returned.
func (v *Validator) StoreRecipe(input any) (recipe.Recipe, Result) {
	res := v.ValidateRecipe(input)
	if !res.IsValid {
		return recipe.Recipe{}, res
	}
	var r recipe.Recipe
	if err := decodeInto(input, &r); err != nil {
		res.IsValid = false
		res.Errors = append(res.Errors, newError("root", msgRecipeInvalid, errOpts{
			expected: "decodable recipe object",
		}))
		res.Summary = "Recipe validation failed with 1 error"
		return recipe.Recipe{}, res
	}
	return r, res
}

// StoreIngredient validates input and, on success, decodes it into a typed
// Ingredient.
func (v *Validator) StoreIngredient(input any) (recipe.Ingredient, Result) {
	res := v.ValidateIngredient(input)
	if !res.IsValid {
		return recipe.Ingredient{}, res
	}
	var ing recipe.Ingredient
	if err := decodeInto(input, &ing); err != nil {
		res.IsValid = false
		res.Errors = append(res.Errors, newError("root", msgIngredientInvalid, errOpts{
			expected: "decodable ingredient object",
		}))
		res.Summary = "Ingredient validation failed with 1 error"
		return recipe.Ingredient{}, res
	}
	return ing, res
}

func (v *Validator) validateRecipe(input any, path string) Result {
	obj, ok := asObject(input)
	if !ok {
		return Result{
			IsValid: false,
			Errors: []Error{newError(path, msgObjectRequired, errOpts{
				value: input, expected: "object", path: path,
			})},
			Summary: "Recipe data must be an object",
		}
	}

	errs := v.structuralErrors(v.recipeSchema, obj, path, msgRecipeInvalid)
	errs = append(errs, walkObject(obj, v.recipeTable(), path)...)

	hasErrors := hasErrorSeverity(errs)
	errorCount := countBySeverity(errs, SeverityError)
	warningCount := countBySeverity(errs, SeverityWarning)

	summary := "Recipe validation passed"
	if hasErrors {
		summary = fmt.Sprintf("Recipe validation failed with %d error%s", errorCount, plural(errorCount))
	}
	if warningCount > 0 {
		fragment := fmt.Sprintf("%d warning%s", warningCount, plural(warningCount))
		if hasErrors {
			summary = summary + " and " + fragment
		} else {
			summary = "Recipe validation failed with " + fragment
		}
	}

	return Result{IsValid: !hasErrors, Errors: errs, Summary: summary}
}

func (v *Validator) validateIngredient(input any, path string) Result {
	obj, ok := asObject(input)
	if !ok {
		return Result{
			IsValid: false,
			Errors: []Error{newError(path, msgObjectRequired, errOpts{
				value: input, expected: "object", path: path,
			})},
			Summary: "Ingredient data must be an object",
		}
	}

	errs := v.structuralErrors(v.ingredientSchema, obj, path, msgIngredientInvalid)
	errs = append(errs, walkObject(obj, v.ingredientTable(), path)...)

	hasErrors := hasErrorSeverity(errs)
	summary := "Ingredient validation passed"
	if hasErrors {
		summary = fmt.Sprintf("Ingredient validation failed with %d error%s", len(errs), plural(len(errs)))
	}

	return Result{IsValid: !hasErrors, Errors: errs, Summary: summary}
}

// structuralErrors unifies the input with the closed CUE schema and converts
// every CUE error into a schema-tagged finding. The semantic pass reports its
// own findings independently, so overlap between the passes is expected.
func (v *Validator) structuralErrors(schema cue.Value, input map[string]any, path, message string) []Error {
	val := v.cuectx.Encode(input)
	if val.Err() != nil {
		// Non-encodable input; the shape checks in the semantic pass cover it.
		return nil
	}

	unified := schema.Unify(val)
	err := unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var errs []Error
	for _, e := range cueerrors.Errors(err) {
		joined := strings.Join(e.Path(), ".")
		if joined == "" {
			joined = path
		}
		errs = append(errs, newError("schema:"+joined, message, errOpts{path: joined}))
	}
	return errs
}

// fieldCheck inspects a single field value. present is false when the field
// is absent from the input; required-field checks still run in that case so
// that a missing field reports both its absence and its expected shape.
type fieldCheck func(value any, present bool, path string) []Error

// fieldSpec describes one field of the closed-world contract.
type fieldSpec struct {
	name     string
	required bool
	check    fieldCheck
}

// walkObject applies the closed-world field contract generically: unknown
// fields are rejected, required fields must be present, and each field's
// check runs independently so every problem is reported.
func walkObject(obj map[string]any, fields []fieldSpec, path string) []Error {
	var errs []Error

	allowed := make(map[string]bool, len(fields))
	allowedNames := make([]string, 0, len(fields))
	for _, f := range fields {
		allowed[f.name] = true
		allowedNames = append(allowedNames, f.name)
	}

	// Unknown keys, sorted for deterministic reporting.
	var unknown []string
	for key := range obj {
		if !allowed[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		errs = append(errs, newError(key, msgAdditionalProperties, errOpts{
			value:    obj[key],
			expected: "Allowed fields: " + strings.Join(allowedNames, ", "),
			path:     path + "." + key,
		}))
	}

	for _, f := range fields {
		value, present := obj[f.name]
		if f.required && !present {
			errs = append(errs, newError(f.name, msgMissingRequiredField, errOpts{
				expected: "Required field",
				path:     path + "." + f.name,
			}))
		}
		if f.required || present {
			errs = append(errs, f.check(value, present, path+"."+f.name)...)
		}
	}

	return errs
}

func (v *Validator) ingredientTable() []fieldSpec {
	return []fieldSpec{
		{name: "name", required: true, check: checkNonEmptyString("name")},
		{name: "ucum-unit", required: true, check: checkEnum("ucum-unit", recipe.UCUMUnits)},
		{name: "ucum-amount", required: true, check: checkUCUMAmount},
		{name: "metric-unit", required: true, check: checkEnum("metric-unit", recipe.MetricUnits)},
		{name: "metric-amount", required: true, check: checkMetricAmount},
		{name: "notes", required: true, check: checkString("notes")},
		{name: "allergen-code", required: false, check: checkEnum("allergen-code", recipe.AllergenCodes)},
	}
}

func (v *Validator) recipeTable() []fieldSpec {
	return []fieldSpec{
		{name: "title", required: true, check: checkNonEmptyString("title")},
		{name: "image_url", required: true, check: checkImageURL},
		{name: "description", required: true, check: checkDescription},
		{name: "notes", required: true, check: checkString("notes")},
		{name: "pre_reqs", required: true, check: checkStringArray("pre_reqs", false)},
		{name: "total_time", required: true, check: v.checkTotalTime},
		{name: "ingredients", required: true, check: v.checkIngredients},
		{name: "steps", required: true, check: checkStringArray("steps", true)},
		{name: "meal_type", required: false, check: checkEnum("meal_type", recipe.MealTypes)},
	}
}

func checkString(field string) fieldCheck {
	return func(value any, _ bool, path string) []Error {
		if _, ok := value.(string); !ok {
			return []Error{newError(field, msgStringRequired, errOpts{
				value: value, expected: "string", path: path,
			})}
		}
		return nil
	}
}

func checkNonEmptyString(field string) fieldCheck {
	return func(value any, _ bool, path string) []Error {
		s, ok := value.(string)
		if !ok {
			return []Error{newError(field, msgStringRequired, errOpts{
				value: value, expected: "non-empty string", path: path,
			})}
		}
		if strings.TrimSpace(s) == "" {
			return []Error{newError(field, msgStringMinLength(1), errOpts{
				value: value, expected: "non-empty string", path: path,
			})}
		}
		return nil
	}
}

func checkEnum(field string, valid []string) fieldCheck {
	expected := strings.Join(valid, ", ")
	return func(value any, _ bool, path string) []Error {
		s, ok := value.(string)
		if !ok {
			return []Error{newError(field, msgStringRequired, errOpts{
				value: value, expected: expected, path: path,
			})}
		}
		for _, code := range valid {
			if s == code {
				return nil
			}
		}
		return []Error{newError(field, msgEnumInvalid(valid), errOpts{
			value: value, expected: expected, path: path,
		})}
	}
}

func checkUCUMAmount(value any, _ bool, path string) []Error {
	n, ok := asNumber(value)
	if !ok {
		return []Error{newError("ucum-amount", msgNumberRequired, errOpts{
			value: value, expected: "number", path: path,
		})}
	}
	if !isMultipleOf(n, ucumAmountStep) {
		return []Error{newError("ucum-amount", msgNumberMultiple(ucumAmountStep), errOpts{
			value: value, expected: "multiple of 0.1", path: path,
		})}
	}
	return nil
}

func checkMetricAmount(value any, _ bool, path string) []Error {
	n, ok := asNumber(value)
	if !ok {
		return []Error{newError("metric-amount", msgNumberRequired, errOpts{
			value: value, expected: "integer", path: path,
		})}
	}
	if n != math.Trunc(n) {
		return []Error{newError("metric-amount", msgNumberInteger, errOpts{
			value: value, expected: "integer value", path: path,
		})}
	}
	return nil
}

func checkImageURL(value any, _ bool, path string) []Error {
	s, ok := value.(string)
	if !ok {
		return []Error{newError("image_url", msgStringRequired, errOpts{
			value: value, expected: "http(s) URL", path: path,
		})}
	}
	if !isHTTPURL(s) {
		return []Error{newError("image_url", msgStringURI, errOpts{
			value: value, expected: "http(s) URL", path: path,
		})}
	}
	return nil
}

func checkDescription(value any, _ bool, path string) []Error {
	s, ok := value.(string)
	if !ok {
		return []Error{newError("description", msgStringRequired, errOpts{
			value: value, expected: "string", path: path,
		})}
	}
	if len([]rune(s)) > recipe.MaxDescriptionLength {
		return []Error{newError("description", msgStringMaxLength(recipe.MaxDescriptionLength), errOpts{
			value: value, expected: fmt.Sprintf("max length %d", recipe.MaxDescriptionLength), path: path,
		})}
	}
	return nil
}

// checkStringArray validates a []string field. When requireItems is true the
// array must be non-empty and every item must be a non-blank string (steps);
// otherwise items only need to be strings (pre_reqs).
func checkStringArray(field string, requireItems bool) fieldCheck {
	return func(value any, _ bool, path string) []Error {
		arr, ok := value.([]any)
		if !ok {
			return []Error{newError(field, msgArrayRequired, errOpts{
				value: value, expected: "string[]", path: path,
			})}
		}
		if requireItems && len(arr) == 0 {
			return []Error{newError(field, msgArrayMinItems(1), errOpts{
				value: value, expected: ">= 1 item", path: path,
			})}
		}
		for _, item := range arr {
			s, isString := item.(string)
			if !isString || (requireItems && strings.TrimSpace(s) == "") {
				return []Error{newError(field, msgArrayStringItems, errOpts{
					value: value, expected: "string[]", path: path,
				})}
			}
		}
		return nil
	}
}

func (v *Validator) checkTotalTime(value any, _ bool, path string) []Error {
	n, ok := asNumber(value)
	if !ok {
		return []Error{newError("total_time", msgNumberRequired, errOpts{
			value: value, expected: "integer >= 1", path: path,
		})}
	}
	if n != math.Trunc(n) {
		return []Error{newError("total_time", msgNumberInteger, errOpts{
			value: value, expected: "integer >= 1", path: path,
		})}
	}
	if n < 1 {
		return []Error{newError("total_time", msgNumberMin(1), errOpts{
			value: value, expected: ">= 1", path: path,
		})}
	}
	if int(n) > v.warnTotalTime {
		return []Error{newError("total_time",
			"Total time exceeds 24 hours – confirm long-duration recipes with research lead",
			errOpts{
				value:    value,
				expected: fmt.Sprintf("<= %d", v.warnTotalTime),
				path:     path,
				severity: SeverityWarning,
			})}
	}
	return nil
}

func (v *Validator) checkIngredients(value any, _ bool, path string) []Error {
	arr, ok := value.([]any)
	if !ok {
		return []Error{newError("ingredients", msgArrayRequired, errOpts{
			value: value, expected: "Ingredient[]", path: path,
		})}
	}
	if len(arr) == 0 {
		return []Error{newError("ingredients", msgArrayMinItems(1), errOpts{
			value: value, expected: ">= 1 item", path: path,
		})}
	}

	var errs []Error
	for i, item := range arr {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		res := v.validateIngredient(item, itemPath)
		if res.IsValid {
			continue
		}
		// Bubble nested findings up with the fully resolved path as the field
		// so callers can attribute each problem to its ingredient index.
		for _, e := range res.Errors {
			resolved := e.Path
			if resolved == "" {
				resolved = itemPath
			}
			e.Field = resolved
			e.Path = resolved
			errs = append(errs, e)
		}
	}
	return errs
}

// asObject accepts only JSON-object-shaped input. nil, arrays, and scalars
// are rejected up front with a single structural error by the caller.
func asObject(input any) (map[string]any, bool) {
	if input == nil {
		return nil, false
	}
	obj, ok := input.(map[string]any)
	return obj, ok
}

// asNumber normalizes the numeric representations that reach the validator:
// float64 from JSON decoding, plus int/int64/json.Number from in-process
// callers constructing input directly.
func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func isMultipleOf(value, multiple float64) bool {
	q := value / multiple
	return math.Abs(q-math.Round(q)) < multipleTolerance
}

func isHTTPURL(value string) bool {
	u, err := url.Parse(value)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// decodeInto round-trips through JSON to produce a typed value without
// touching the caller's input.
func decodeInto(input, out any) error {
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	return nil
}
