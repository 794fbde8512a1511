package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/l0p7/emailrep/internal/config"
)

// maxEntities bounds one batch. The scheduler keeps at most ten requests in
// flight regardless, so this only limits how long a single call can run.
const maxEntities = 1000

type lookupRequest struct {
	Entities []entityPayload        `json:"entities" validate:"max=1000,dive"`
	Options  config.LookupOverrides `json:"options"`
}

type entityPayload struct {
	Value string `json:"value" validate:"required"`
	Type  string `json:"type" validate:"omitempty,oneof=email domain"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			if tag == "" || tag == "-" {
				return fld.Name
			}
			return tag
		})
		validate = v
	})
	return validate
}

// validateRequest reports payload problems keyed by their JSON path.
func validateRequest(req *lookupRequest) []config.FieldError {
	err := requestValidator().Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []config.FieldError{{Field: "", Message: err.Error()}}
	}
	fields := make([]config.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, config.FieldError{
			Field:   strings.TrimPrefix(fe.Namespace(), "lookupRequest."),
			Message: fieldMessage(fe),
		})
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "max":
		return fmt.Sprintf("must contain at most %d entries", maxEntities)
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
