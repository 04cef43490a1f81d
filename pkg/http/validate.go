package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// ValidationError is one rejected field of a request body.
type ValidationError struct {
	Code    string                 `json:"code" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"news.headline"`
	Message string                 `json:"message" example:"news.headline is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// validate names fields by their JSON keys so errors point into the body.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ReadAndValidateRequest binds the body into req, applies default tags and
// validates it. It returns nil when req is usable.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	if err := c.Bind(req); err != nil {
		return bindErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return bindErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return bindErrors(err)
	}
	return nil
}

func bindErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			field := fieldPath(fe.Namespace())
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   field,
				Message: fieldMessage(field, fe),
				Params:  fieldParams(fe),
			})
		}
		return out
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return []ValidationError{{
			Code:    "ERR_TYPE",
			Field:   typeErr.Field,
			Message: fmt.Sprintf("%s has the wrong type: got %s", typeErr.Field, typeErr.Value),
		}}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_UNKNOWN", Message: fmt.Sprintf("%v", he.Message)}}
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
}

// fieldPath turns "AnalyzeRequest.AnalysisInput.news.headline" into
// "news.headline". Segments named after Go types (the root and embedded
// structs) have no JSON key and are dropped.
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	out := parts[:0]
	for i, p := range parts {
		if i == 0 || p == "" || unicode.IsUpper(rune(p[0])) {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}

func fieldMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be an absolute URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}

func fieldParams(fe validator.FieldError) map[string]interface{} {
	switch fe.Tag() {
	case "gte", "min":
		return map[string]interface{}{"min": fe.Param()}
	case "lte", "max":
		return map[string]interface{}{"max": fe.Param()}
	case "oneof":
		return map[string]interface{}{"options": strings.Fields(fe.Param())}
	}
	return nil
}
