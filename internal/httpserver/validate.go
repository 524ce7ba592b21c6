package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aegiscore/identity/pkg/apperr"
)

// maxRequestBody bounds every decoded request body. Identity requests are
// small; anything near this limit is hostile or broken.
const maxRequestBody = 1 << 20

// validate is the package-level validator. Field names are reported by
// their json tag, so violation details line up with what the client sent
// (e.g. CreateTenantRequest.Slug surfaces as "slug").
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FieldViolation is one request field that failed validation.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// InvalidRequestResponse is the envelope for a request rejected before it
// reached a handler: the standard error pair plus per-field detail.
type InvalidRequestResponse struct {
	Error   string           `json:"error"`
	Message string           `json:"message"`
	Details []FieldViolation `json:"details,omitempty"`
}

// Decode reads the JSON request body into dst: at most one JSON value,
// unknown fields rejected, size capped at maxRequestBody. The returned
// error is safe to show the client.
func Decode(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxRequestBody)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
	case errors.As(err, &tooLarge):
		return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
	case errors.Is(err, io.EOF):
		return errors.New("request body is empty")
	default:
		return fmt.Errorf("invalid JSON: %v", err)
	}

	if dec.More() {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

// ValidateStruct runs struct-tag validation on v, returning one violation
// per failing field.
func ValidateStruct(v any) []FieldViolation {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ferrs validator.ValidationErrors
	if !errors.As(err, &ferrs) {
		return []FieldViolation{{Reason: err.Error()}}
	}

	violations := make([]FieldViolation, len(ferrs))
	for i, fe := range ferrs {
		violations[i] = FieldViolation{Field: fe.Field(), Reason: violationReason(fe)}
	}
	return violations
}

// violationReason renders the tags the identity API actually uses; any
// tag added to a request struct without a case here still gets a usable
// fallback message.
func violationReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "is not a valid email address"
	case "uuid":
		return "is not a valid UUID"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "is below the minimum of " + fe.Param()
	case "max":
		return "is above the maximum of " + fe.Param()
	default:
		return fmt.Sprintf("violates the %q constraint", fe.Tag())
	}
}

// DecodeAndValidate decodes the JSON body into dst and applies struct-tag
// validation. Both failure classes are invalid_argument; on failure it
// writes the response and returns false.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := Decode(r, dst); err != nil {
		Respond(w, http.StatusBadRequest, InvalidRequestResponse{
			Error:   string(apperr.InvalidArgument),
			Message: err.Error(),
		})
		return false
	}
	if violations := ValidateStruct(dst); len(violations) > 0 {
		Respond(w, http.StatusBadRequest, InvalidRequestResponse{
			Error:   string(apperr.InvalidArgument),
			Message: "request failed validation",
			Details: violations,
		})
		return false
	}
	return true
}
