package validation

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
)

// MaxBodyBytes bounds decoded request bodies.
const MaxBodyBytes = 64 << 10

// Validator validates request data
type Validator struct {
	errors *apperrors.ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: apperrors.NewValidationErrors(),
	}
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return v.errors.HasErrors()
}

// Errors returns the validation errors
func (v *Validator) Errors() *apperrors.ValidationErrors {
	return v.errors
}

// Err returns the collected errors, or nil when there are none.
func (v *Validator) Err() error {
	if !v.errors.HasErrors() {
		return nil
	}
	return v.errors
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.errors.Add(field, "This field is required")
	}
	return v
}

// MaxLength validates maximum string length
func (v *Validator) MaxLength(field, value string, max int) *Validator {
	if len(value) > max {
		v.errors.Add(field, "Must be at most "+strconv.Itoa(max)+" characters")
	}
	return v
}

// OneOf validates value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" {
		return v // Empty is handled by Required
	}

	for _, a := range allowed {
		if value == a {
			return v
		}
	}

	v.errors.Add(field, "Must be one of: "+strings.Join(allowed, ", "))
	return v
}

// Custom adds a custom validation
func (v *Validator) Custom(field string, valid bool, message string) *Validator {
	if !valid {
		v.errors.Add(field, message)
	}
	return v
}

// EventType validates that value names a declared event type.
func (v *Validator) EventType(field, value string) *Validator {
	if value == "" {
		return v
	}
	if _, err := domain.ParseEventType(value); err != nil {
		v.errors.Add(field, "Unknown event type")
	}
	return v
}

// NotificationKind validates an optional notification kind.
func (v *Validator) NotificationKind(field, value string) *Validator {
	if value != "" && !domain.NotificationKind(value).IsValid() {
		v.errors.Add(field, "Must be one of: success, error, info")
	}
	return v
}

// UserID validates an optional user id.
func (v *Validator) UserID(field, value string) *Validator {
	if value != "" && domain.ValidateUserID(value) != nil {
		v.errors.Add(field, "Must be a valid user id")
	}
	return v
}

// UserIDs validates every id in values.
func (v *Validator) UserIDs(field string, values []string) *Validator {
	for i, id := range values {
		if domain.ValidateUserID(id) != nil {
			v.errors.Add(field+"["+strconv.Itoa(i)+"]", "Must be a valid user id")
		}
	}
	return v
}

// Link validates an optional in-app path.
func (v *Validator) Link(field, value string) *Validator {
	if value != "" && !strings.HasPrefix(value, "/") {
		v.errors.Add(field, "Must be an absolute in-app path")
	}
	return v
}

// DecodeAndValidate decodes a bounded JSON request body, rejecting unknown fields.
func DecodeAndValidate[T any](w http.ResponseWriter, r *http.Request) (*T, error) {
	var req T

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, apperrors.NewBadRequestError(err, "Invalid request body")
	}

	return &req, nil
}
