package validation

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/go-playground/validator/v10"
)

// maxSafeInteger mirrors the largest integer a JSON client can round-trip exactly.
const maxSafeInteger = 1<<53 - 1

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = validate.RegisterValidation("integral", validateIntegral)
	_ = validate.RegisterValidation("minunits", validateMinUnits)
}

// validateMinUnits is min for strings measured in UTF-16 code units, the
// length browsers and JavaScript clients report. An emoji counts as two.
func validateMinUnits(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return false
	}
	minUnits, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return utf16Len(field.String()) >= minUnits
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// validateIntegral accepts finite whole numbers inside the safe integer range.
func validateIntegral(fl validator.FieldLevel) bool {
	field := fl.Field()
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		f := field.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
		return f == math.Trunc(f) && math.Abs(f) <= maxSafeInteger
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	default:
		return false
	}
}

// FieldError describes one rejected field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Errors is the list of field failures for one input. Empty means valid.
type Errors []FieldError

func (e Errors) add(field, reason string) Errors {
	return append(e, FieldError{Field: field, Reason: reason})
}

// Has reports whether field already has a recorded failure.
func (e Errors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Error joins the failures into a single line, used for logging.
func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Reason)
	}
	return strings.Join(parts, "; ")
}

func validateStruct(s any, errs Errors) Errors {
	err := validate.Struct(s)
	if err == nil {
		return errs
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errs.add("body", "is invalid")
	}
	for _, fe := range verrs {
		field := fe.Field()
		if errs.Has(field) {
			continue
		}
		errs = errs.add(field, reasonFor(fe))
	}
	return errs
}

func reasonFor(fe validator.FieldError) string {
	param := fe.Param()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min", "minunits":
		return fmt.Sprintf("must be at least %s characters", param)
	case "integral":
		return "must be an integer"
	case "gt":
		return fmt.Sprintf("must be greater than %s", param)
	case "gte":
		return fmt.Sprintf("must be at least %s", param)
	case "lte":
		return fmt.Sprintf("must be at most %s", param)
	default:
		return "is invalid"
	}
}
