package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/prn-tf/medstore/internal/domain"
)

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// AttemptsRemaining is set for rejected credentials.
	AttemptsRemaining *int `json:"attempts_remaining,omitempty"`

	// RemainingMinutes is set while the identifier is locked.
	RemainingMinutes *int `json:"remaining_minutes,omitempty"`

	// Fields lists invalid request fields.
	Fields []domain.ValidationError `json:"fields,omitempty"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindInvalidInput:          http.StatusBadRequest,
	domain.KindInvalidCredentials:    http.StatusUnauthorized,
	domain.KindNotAuthenticated:      http.StatusUnauthorized,
	domain.KindNoActiveSession:       http.StatusUnauthorized,
	domain.KindInsufficientPrivilege: http.StatusForbidden,
	domain.KindAccountInactive:       http.StatusForbidden,
	domain.KindNotFound:              http.StatusNotFound,
	domain.KindConflict:              http.StatusConflict,
	domain.KindSelfTarget:            http.StatusConflict,
	domain.KindAccountLocked:         http.StatusLocked,
	domain.KindStoreUnavailable:      http.StatusServiceUnavailable,
}

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	if status, ok := kindStatus[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// newAPIError builds the response body for err. Store faults and unknown errors
// get a generic message.
func newAPIError(err error) APIError {
	kind := domain.KindOf(err)
	apiErr := APIError{Code: string(kind), Message: err.Error()}

	var lockErr *domain.LockoutError
	var credErr *domain.CredentialsError
	var verrs domain.ValidationErrors
	switch {
	case errors.As(err, &lockErr):
		apiErr.RemainingMinutes = &lockErr.RemainingMinutes
		if lockErr.Trigger != nil {
			apiErr.AttemptsRemaining = &lockErr.Trigger.AttemptsRemaining
		}
	case errors.As(err, &credErr):
		apiErr.AttemptsRemaining = &credErr.AttemptsRemaining
	case errors.As(err, &verrs):
		apiErr.Fields = verrs
	}

	switch kind {
	case domain.KindStoreUnavailable:
		apiErr.Message = domain.ErrStoreUnavailable.Error()
	case domain.KindUnknown:
		apiErr.Message = "internal server error"
	}
	return apiErr
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: newAPIError(err)})
}

// =============================================================================
// Request decoding
// =============================================================================

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeBody decodes a single JSON value into dst and validates it.
// Failures are wrapped in domain.ErrInvalidInput.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ValidationErrors{{Field: "body", Message: err.Error()}}.Err()
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.ValidationErrors{{Field: "body", Message: "request body must contain a single JSON value"}}.Err()
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.ValidationErrors{{Field: "body", Message: err.Error()}}.Err()
	}

	verrs := make(domain.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		verrs = append(verrs, domain.ValidationError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return verrs.Err()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters long"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters long"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	}
	return fe.Field() + " is invalid"
}
