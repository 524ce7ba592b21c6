package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// registerPayload mirrors the shape of the registration request so the
// helpers are exercised against the tags the identity API really uses.
type registerPayload struct {
	TenantSlug string `json:"tenant_slug" validate:"required,min=2,max=64"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	Channel    string `json:"channel" validate:"omitempty,oneof=email sms whatsapp"`
	OrgNodeID  string `json:"org_node_id" validate:"omitempty,uuid"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string // empty means success
	}{
		{
			name: "valid body",
			body: `{"tenant_slug":"acme","email":"u@acme.com","password":"SecurePass123!"}`,
		},
		{
			name:    "empty body",
			body:    "",
			wantErr: "request body is empty",
		},
		{
			name:    "malformed JSON",
			body:    `{"tenant_slug":`,
			wantErr: "invalid JSON",
		},
		{
			name:    "unknown field",
			body:    `{"tenant_slug":"acme","surprise":true}`,
			wantErr: "invalid JSON",
		},
		{
			name:    "second JSON value",
			body:    `{"tenant_slug":"acme"}{"again":true}`,
			wantErr: "single JSON value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p registerPayload
			err := Decode(r, &p)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Decode: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Decode error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		payload registerPayload
		fields  []string // json names expected to be reported, in order
	}{
		{
			name:    "valid",
			payload: registerPayload{TenantSlug: "acme", Email: "u@acme.com", Password: "SecurePass123!"},
		},
		{
			name:    "everything missing",
			payload: registerPayload{},
			fields:  []string{"tenant_slug", "email", "password"},
		},
		{
			name:    "bad email",
			payload: registerPayload{TenantSlug: "acme", Email: "nope", Password: "SecurePass123!"},
			fields:  []string{"email"},
		},
		{
			name:    "password below minimum",
			payload: registerPayload{TenantSlug: "acme", Email: "u@acme.com", Password: "short"},
			fields:  []string{"password"},
		},
		{
			name:    "channel outside enumeration",
			payload: registerPayload{TenantSlug: "acme", Email: "u@acme.com", Password: "SecurePass123!", Channel: "carrier-pigeon"},
			fields:  []string{"channel"},
		},
		{
			name:    "org node id not a uuid",
			payload: registerPayload{TenantSlug: "acme", Email: "u@acme.com", Password: "SecurePass123!", OrgNodeID: "root"},
			fields:  []string{"org_node_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := ValidateStruct(tt.payload)
			if len(violations) != len(tt.fields) {
				t.Fatalf("got %d violations (%+v), want %d", len(violations), violations, len(tt.fields))
			}
			for i, want := range tt.fields {
				if violations[i].Field != want {
					t.Errorf("violation %d field = %q, want %q", i, violations[i].Field, want)
				}
				if violations[i].Reason == "" {
					t.Errorf("violation %d has no reason", i)
				}
			}
		})
	}
}

func TestDecodeAndValidate(t *testing.T) {
	// Valid request passes through untouched.
	r := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"tenant_slug":"acme","email":"u@acme.com","password":"SecurePass123!"}`))
	w := httptest.NewRecorder()
	var p registerPayload
	if !DecodeAndValidate(w, r, &p) {
		t.Fatalf("DecodeAndValidate rejected a valid request: %s", w.Body.String())
	}
	if p.TenantSlug != "acme" {
		t.Errorf("tenant_slug = %q, want %q", p.TenantSlug, "acme")
	}

	// Both failure classes respond 400 invalid_argument.
	for name, body := range map[string]string{
		"malformed json": `{broken`,
		"field failures": `{"tenant_slug":"a"}`,
	} {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			w := httptest.NewRecorder()
			var p registerPayload
			if DecodeAndValidate(w, r, &p) {
				t.Fatal("expected rejection")
			}
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var resp InvalidRequestResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding error envelope: %v", err)
			}
			if resp.Error != "invalid_argument" {
				t.Errorf("error kind = %q, want invalid_argument", resp.Error)
			}
		})
	}
}

func TestDecodeAndValidateReportsJSONFieldNames(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"tenant_slug":"acme","email":"u@acme.com","password":"tiny"}`))
	w := httptest.NewRecorder()
	var p registerPayload
	if DecodeAndValidate(w, r, &p) {
		t.Fatal("expected rejection")
	}

	var resp InvalidRequestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if len(resp.Details) != 1 || resp.Details[0].Field != "password" {
		t.Errorf("details = %+v, want a single violation on \"password\"", resp.Details)
	}
}
