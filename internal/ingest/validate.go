package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/model"
)

// FieldError is the failure half of a typed field decode: where, and why.
type FieldError struct {
	Path    string
	Problem string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Problem)
}

// SchemaError collects every FieldError found in one fragment, so a single
// log line shows all that the model got wrong.
type SchemaError struct {
	Fields []*FieldError
}

func (e *SchemaError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return strings.Join(parts, "; ")
}

// ValidateFragment decodes a candidate into a Fragment.
//
// Shape:
//
//	{ "<ISO date or date-time>": {
//	    "foods":   [ {name, calories, protein, carbs, fat, amount, mealType?}, ... ],
//	    "summary": {calories, protein, carbs, fat} } }
//
// Every required field must be present and a JSON string. Unknown fields are
// dropped. The fragment must hold at least one date-key. Date-keys are parsed
// in UTC here only to prove they are dates; the stored key is the raw string.
//
// Failures are apperror.MalformedAIResponse: stage = candidate.Source when the
// text is not JSON at all, StageSchemaValidation when the shape is wrong.
func ValidateFragment(c Candidate) (model.Fragment, error) {
	if !gjson.Valid(c.Text) {
		return nil, apperror.MalformedAIResponse(string(c.Source), fmt.Errorf("candidate is not valid JSON"))
	}

	root := gjson.Parse(c.Text)
	if !root.IsObject() {
		return nil, schemaFailure(&FieldError{Path: "$", Problem: "expected an object keyed by date"})
	}

	var errs []*FieldError
	fragment := make(model.Fragment)

	root.ForEach(func(key, value gjson.Result) bool {
		dateKey := key.String()
		if _, err := ParseDateKey(dateKey, nil); err != nil {
			errs = append(errs, &FieldError{Path: strconv.Quote(dateKey), Problem: "key is not an ISO-8601 date"})
			return true
		}
		record, fieldErrs := decodeRecord(strconv.Quote(dateKey), value)
		if len(fieldErrs) > 0 {
			errs = append(errs, fieldErrs...)
			return true
		}
		fragment[dateKey] = record
		return true
	})

	if len(errs) > 0 {
		return nil, schemaFailure(errs...)
	}
	if len(fragment) == 0 {
		return nil, schemaFailure(&FieldError{Path: "$", Problem: "no date-key present"})
	}
	return fragment, nil
}

func schemaFailure(errs ...*FieldError) error {
	return apperror.MalformedAIResponse(string(StageSchemaValidation), &SchemaError{Fields: errs})
}

func decodeRecord(path string, v gjson.Result) (model.DailyRecord, []*FieldError) {
	var errs []*FieldError
	if !v.IsObject() {
		return model.DailyRecord{}, []*FieldError{{Path: path, Problem: "expected an object"}}
	}

	foods := v.Get("foods")
	if !foods.IsArray() {
		errs = append(errs, &FieldError{Path: path + ".foods", Problem: problemFor(foods, "an array")})
	}

	record := model.DailyRecord{Foods: make([]model.FoodItem, 0)}
	if foods.IsArray() {
		for i, f := range foods.Array() {
			food, fieldErrs := decodeFood(fmt.Sprintf("%s.foods[%d]", path, i), f)
			errs = append(errs, fieldErrs...)
			record.Foods = append(record.Foods, food)
		}
	}

	summary, fieldErrs := decodeSummary(path+".summary", v.Get("summary"))
	errs = append(errs, fieldErrs...)
	record.Summary = summary

	return record, errs
}

func decodeFood(path string, v gjson.Result) (model.FoodItem, []*FieldError) {
	if !v.IsObject() {
		return model.FoodItem{}, []*FieldError{{Path: path, Problem: "expected an object"}}
	}

	d := fieldDecoder{obj: v, path: path}
	food := model.FoodItem{
		Name:     d.required("name"),
		Calories: d.required("calories"),
		Protein:  d.required("protein"),
		Carbs:    d.required("carbs"),
		Fat:      d.required("fat"),
		Amount:   d.required("amount"),
		MealType: d.optional("mealType"),
	}
	return food, d.errs
}

func decodeSummary(path string, v gjson.Result) (model.Summary, []*FieldError) {
	if !v.IsObject() {
		return model.Summary{}, []*FieldError{{Path: path, Problem: problemFor(v, "an object")}}
	}

	d := fieldDecoder{obj: v, path: path}
	summary := model.Summary{
		Calories: d.required("calories"),
		Protein:  d.required("protein"),
		Carbs:    d.required("carbs"),
		Fat:      d.required("fat"),
	}
	return summary, d.errs
}

// fieldDecoder reads string fields off one JSON object and records a
// FieldError for every field that is missing or not a string.
type fieldDecoder struct {
	obj  gjson.Result
	path string
	errs []*FieldError
}

func (d *fieldDecoder) required(name string) string {
	v := d.obj.Get(gjson.Escape(name))
	if v.Type != gjson.String {
		d.errs = append(d.errs, &FieldError{Path: d.path + "." + name, Problem: problemFor(v, "a string")})
		return ""
	}
	return v.String()
}

func (d *fieldDecoder) optional(name string) string {
	v := d.obj.Get(gjson.Escape(name))
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	if v.Type != gjson.String {
		d.errs = append(d.errs, &FieldError{Path: d.path + "." + name, Problem: problemFor(v, "a string")})
		return ""
	}
	return v.String()
}

func problemFor(v gjson.Result, want string) string {
	if !v.Exists() {
		return "missing"
	}
	return fmt.Sprintf("expected %s, got %s", want, v.Type.String())
}
