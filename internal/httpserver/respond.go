package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/aegiscore/identity/pkg/apperr"
)

// Respond writes v as a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the JSON envelope for every error the API returns.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RespondError writes a status/kind/message triple as an ErrorResponse.
func RespondError(w http.ResponseWriter, status int, kind, message string) {
	Respond(w, status, ErrorResponse{Error: kind, Message: message})
}

// RespondAppError translates an *apperr.Error into the HTTP envelope,
// never leaking the wrapped cause to the client.
func RespondAppError(w http.ResponseWriter, err error) {
	ae := apperr.As(err)
	RespondError(w, apperr.ToHTTPStatus(ae.Kind), string(ae.Kind), ae.Message)
}
