package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aegiscore/identity/internal/authz"
	"github.com/aegiscore/identity/internal/httpserver"
	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/internal/policy"
	"github.com/aegiscore/identity/internal/telemetry"
	"github.com/aegiscore/identity/pkg/apperr"
)

// Capability keys gating the admin surface. Org-tree, assignment, and
// visibility keys match the gRPC guards of the auth service's existing
// clients; tenant and role CRUD are gated uniformly in their own namespaces.
const (
	capTenantCreate  = "tenant:create"
	capTenantRead    = "tenant:read"
	capTenantSuspend = "tenant:suspend"

	capOrgNodeCreate     = "org.node:create"
	capOrgNodeRead       = "org.node:read"
	capOrgNodeDeactivate = "org.node:deactivate"

	capRoleCreate = "role:create"
	capRoleRead   = "role:read"
	capRoleUpdate = "role:update"

	capAssignmentCreate = "org.assignment:create"
	capAssignmentRead   = "org.assignment:read"
	capAssignmentEnd    = "org.assignment:end"

	capVisibilityGrant  = "visibility:grant"
	capVisibilityRead   = "visibility:read"
	capVisibilityRevoke = "visibility:revoke"

	capAuditRead = "audit:read"
)

// requireCapability resolves the authenticated subject and enforces capKey
// through the authorization engine. On a miss it records the denial as a
// security event, responds, and returns ok=false.
func (h *Handler) requireCapability(w http.ResponseWriter, r *http.Request, capKey string) (*authz.AuthContext, bool) {
	subject, ok := subjectFromContext(r.Context())
	if !ok {
		httpserver.RespondAppError(w, apperr.New(apperr.Unauthenticated, "missing authenticated subject"))
		return nil, false
	}
	ac, err := h.authz.RequireCapability(r.Context(), subject, capKey)
	if err != nil {
		if apperr.Is(err, apperr.PermissionDenied) {
			telemetry.CapabilityChecksTotal.WithLabelValues("denied").Inc()
			h.securityEvent(r, "capability_denied", "missing capability: "+capKey, &subject.TenantID, &subject.UserID)
		}
		httpserver.RespondAppError(w, err)
		return nil, false
	}
	telemetry.CapabilityChecksTotal.WithLabelValues("allowed").Inc()
	return ac, true
}

// securityEvent records a security-relevant anomaly; failures to record are
// logged, never surfaced to the client.
func (h *Handler) securityEvent(r *http.Request, eventType, details string, tenantID, userID *string) {
	err := h.store.InsertSecurityEvent(r.Context(), &identity.SecurityAuditEvent{
		EventType: eventType,
		Severity:  identity.SeverityWarning,
		TenantID:  tenantID,
		UserID:    userID,
		IP:        r.RemoteAddr,
		Path:      r.URL.Path,
		Method:    r.Method,
		Details:   details,
	})
	if err != nil {
		h.logger.Error("recording security event", "error", err, "event_type", eventType)
	}
}

// sameTenantOr404 enforces tenant isolation on admin reads and writes: a
// caller reaching for another tenant's entity gets the same not-found as a
// truly absent one, and the attempt is recorded.
func (h *Handler) sameTenantOr404(w http.ResponseWriter, r *http.Request, ac *authz.AuthContext, entityTenantID string) bool {
	if ac.TenantID == entityTenantID {
		return true
	}
	h.securityEvent(r, "cross_tenant_attempt", "subject tenant does not own target entity", &ac.TenantID, &ac.UserID)
	httpserver.RespondAppError(w, apperr.New(apperr.NotFound, "not found"))
	return false
}

// --- Tenants ---

// CreateTenantRequest is the body of POST /admin/tenants.
type CreateTenantRequest struct {
	Slug  string `json:"slug" validate:"required,min=2,max=64"`
	Label string `json:"label" validate:"required,max=255"`
}

// TenantResponse is the wire shape of a tenant.
type TenantResponse struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Label     string    `json:"label"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

func tenantResponse(t *identity.Tenant) TenantResponse {
	return TenantResponse{ID: t.ID, Slug: t.Slug, Label: t.Label, State: string(t.State), CreatedAt: t.CreatedAt}
}

func (h *Handler) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capTenantCreate)
	if !ok {
		return
	}
	var req CreateTenantRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	tenant := &identity.Tenant{
		Slug:   req.Slug,
		Label:  req.Label,
		State:  identity.TenantActive,
		Policy: policy.Default(),
	}
	if err := h.store.InsertTenant(r.Context(), tenant); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.audit(r, "tenant.created", &tenant.ID, &ac.UserID, strPtr("tenant"), &tenant.ID, map[string]any{"slug": tenant.Slug})
	httpserver.Respond(w, http.StatusCreated, tenantResponse(tenant))
}

func (h *Handler) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capTenantRead)
	if !ok {
		return
	}
	tenant, err := h.store.FindTenantByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if tenant.ID != ac.TenantID && !ac.Trusted && !ac.HasCapability(identity.SuperadminCapabilityKey) {
		h.securityEvent(r, "cross_tenant_attempt", "read of foreign tenant", &ac.TenantID, &ac.UserID)
		httpserver.RespondAppError(w, apperr.New(apperr.NotFound, "tenant not found"))
		return
	}
	httpserver.Respond(w, http.StatusOK, tenantResponse(tenant))
}

// SetTenantStateRequest is the body of POST /admin/tenants/{id}/state.
type SetTenantStateRequest struct {
	State string `json:"state" validate:"required,oneof=active suspended"`
}

func (h *Handler) handleSetTenantState(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capTenantSuspend)
	if !ok {
		return
	}
	var req SetTenantStateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.SetTenantState(r.Context(), id, identity.TenantState(req.State)); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	h.audit(r, "tenant.state_changed", &id, &ac.UserID, strPtr("tenant"), &id, map[string]any{"state": req.State})
	httpserver.Respond(w, http.StatusOK, map[string]string{"id": id, "state": req.State})
}

// --- Org nodes ---

// CreateOrgNodeRequest is the body of POST /admin/orgs.
type CreateOrgNodeRequest struct {
	ParentID *string `json:"parent_id"`
	TypeCode string  `json:"type_code" validate:"required,max=64"`
	Label    string  `json:"label" validate:"required,max=255"`
}

// OrgNodeResponse is the wire shape of an org node.
type OrgNodeResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	ParentID  *string   `json:"parent_id,omitempty"`
	TypeCode  string    `json:"type_code"`
	Label     string    `json:"label"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func orgNodeResponse(n *identity.OrgNode) OrgNodeResponse {
	return OrgNodeResponse{
		ID: n.ID, TenantID: n.TenantID, ParentID: n.ParentID,
		TypeCode: n.TypeCode, Label: n.Label, Active: n.Active, CreatedAt: n.CreatedAt,
	}
}

func (h *Handler) handleCreateOrgNode(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capOrgNodeCreate)
	if !ok {
		return
	}
	var req CreateOrgNodeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	if req.ParentID != nil {
		parent, err := h.store.FindOrgNodeByID(ctx, ac.TenantID, *req.ParentID)
		if err != nil {
			httpserver.RespondAppError(w, err)
			return
		}
		if !parent.Active {
			h.securityEvent(r, "disabled_org_access", "new child under deactivated org node", &ac.TenantID, &ac.UserID)
			httpserver.RespondAppError(w, apperr.New(apperr.FailedPrecondition, "parent org node is deactivated"))
			return
		}
	}

	node := &identity.OrgNode{
		TenantID: ac.TenantID,
		ParentID: req.ParentID,
		TypeCode: req.TypeCode,
		Label:    req.Label,
		Active:   true,
	}
	if err := h.store.InsertOrgNode(ctx, node); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.audit(r, "org_node.created", &ac.TenantID, &ac.UserID, strPtr("org_node"), &node.ID, nil)
	httpserver.Respond(w, http.StatusCreated, orgNodeResponse(node))
}

func (h *Handler) handleListOrgNodes(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capOrgNodeRead)
	if !ok {
		return
	}
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondAppError(w, apperr.New(apperr.InvalidArgument, err.Error()))
		return
	}
	nodes, err := h.store.FindOrgNodesByTenant(r.Context(), ac.TenantID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	lo, hi := params.Slice(len(nodes))
	out := make([]OrgNodeResponse, 0, hi-lo)
	for _, n := range nodes[lo:hi] {
		out = append(out, orgNodeResponse(n))
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(out, params, len(nodes)))
}

func (h *Handler) handleListOrgNodeDescendants(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capOrgNodeRead)
	if !ok {
		return
	}
	nodes, err := h.store.FindOrgNodeDescendants(r.Context(), ac.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	out := make([]OrgNodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, orgNodeResponse(n))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"org_nodes": out})
}

func (h *Handler) handleDeactivateOrgNode(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capOrgNodeDeactivate)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.SetOrgNodeActive(r.Context(), ac.TenantID, id, false); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	h.audit(r, "org_node.deactivated", &ac.TenantID, &ac.UserID, strPtr("org_node"), &id, nil)
	httpserver.Respond(w, http.StatusOK, map[string]any{"id": id, "active": false})
}

// --- Roles & capabilities ---

// CreateRoleRequest is the body of POST /admin/roles.
type CreateRoleRequest struct {
	Label string `json:"label" validate:"required,max=255"`
}

// RoleResponse is the wire shape of a role.
type RoleResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capRoleCreate)
	if !ok {
		return
	}
	var req CreateRoleRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	role := &identity.Role{TenantID: ac.TenantID, Label: req.Label}
	if err := h.store.InsertRole(r.Context(), role); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	h.audit(r, "role.created", &ac.TenantID, &ac.UserID, strPtr("role"), &role.ID, map[string]any{"label": role.Label})
	httpserver.Respond(w, http.StatusCreated, RoleResponse{
		ID: role.ID, TenantID: role.TenantID, Label: role.Label, CreatedAt: role.CreatedAt,
	})
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capRoleRead)
	if !ok {
		return
	}
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondAppError(w, apperr.New(apperr.InvalidArgument, err.Error()))
		return
	}
	roles, err := h.store.FindRolesByTenant(r.Context(), ac.TenantID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	lo, hi := params.Slice(len(roles))
	out := make([]RoleResponse, 0, hi-lo)
	for _, role := range roles[lo:hi] {
		out = append(out, RoleResponse{ID: role.ID, TenantID: role.TenantID, Label: role.Label, CreatedAt: role.CreatedAt})
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(out, params, len(roles)))
}

// AssignCapabilityRequest is the body of POST /admin/roles/{id}/capabilities.
// The capability row is created on first use; keys are global and opaque.
type AssignCapabilityRequest struct {
	Key string `json:"key" validate:"required,max=128"`
}

func (h *Handler) handleAssignCapability(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capRoleUpdate)
	if !ok {
		return
	}
	var req AssignCapabilityRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	roleID := chi.URLParam(r, "id")
	role, err := h.store.FindRoleByID(ctx, ac.TenantID, roleID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	cap, err := h.store.InsertCapabilityIfMissing(ctx, req.Key)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if err := h.store.AssignCapabilityToRole(ctx, role.ID, cap.ID); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.audit(r, "role.capability_assigned", &ac.TenantID, &ac.UserID, strPtr("role"), &role.ID, map[string]any{"capability": req.Key})
	httpserver.Respond(w, http.StatusOK, map[string]string{"role_id": role.ID, "capability": req.Key})
}

func (h *Handler) handleUnassignCapability(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capRoleUpdate)
	if !ok {
		return
	}
	ctx := r.Context()

	role, err := h.store.FindRoleByID(ctx, ac.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	cap, err := h.store.FindCapabilityByKey(ctx, chi.URLParam(r, "key"))
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if err := h.store.UnassignCapabilityFromRole(ctx, role.ID, cap.ID); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.audit(r, "role.capability_unassigned", &ac.TenantID, &ac.UserID, strPtr("role"), &role.ID, map[string]any{"capability": cap.Key})
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireCapability(w, r, capRoleRead); !ok {
		return
	}
	caps, err := h.store.GetAllCapabilities(r.Context())
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	keys := make([]string, 0, len(caps))
	for _, c := range caps {
		keys = append(keys, c.Key)
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"capabilities": keys})
}

func (h *Handler) handleListRoleCapabilities(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capRoleRead)
	if !ok {
		return
	}
	ctx := r.Context()

	role, err := h.store.FindRoleByID(ctx, ac.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	caps, err := h.store.GetRoleCapabilities(ctx, role.ID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	keys := make([]string, 0, len(caps))
	for _, c := range caps {
		keys = append(keys, c.Key)
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"role_id": role.ID, "capabilities": keys})
}

// --- Assignments ---

// CreateAssignmentRequest is the body of POST /admin/assignments.
type CreateAssignmentRequest struct {
	UserID    string     `json:"user_id" validate:"required,uuid"`
	OrgNodeID string     `json:"org_node_id" validate:"required,uuid"`
	RoleID    string     `json:"role_id" validate:"required,uuid"`
	StartAt   *time.Time `json:"start_at"`
	EndAt     *time.Time `json:"end_at"`
}

// AssignmentResponse is the wire shape of an org assignment.
type AssignmentResponse struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	UserID    string     `json:"user_id"`
	OrgNodeID string     `json:"org_node_id"`
	RoleID    string     `json:"role_id"`
	StartAt   time.Time  `json:"start_at"`
	EndAt     *time.Time `json:"end_at,omitempty"`
}

func assignmentResponse(a *identity.OrgAssignment) AssignmentResponse {
	return AssignmentResponse{
		ID: a.ID, TenantID: a.TenantID, UserID: a.UserID,
		OrgNodeID: a.OrgNodeID, RoleID: a.RoleID, StartAt: a.StartAt, EndAt: a.EndAt,
	}
}

func (h *Handler) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capAssignmentCreate)
	if !ok {
		return
	}
	var req CreateAssignmentRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	node, err := h.store.FindOrgNodeByID(ctx, ac.TenantID, req.OrgNodeID)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if !node.Active {
		h.securityEvent(r, "disabled_org_access", "new assignment on deactivated org node", &ac.TenantID, &ac.UserID)
		httpserver.RespondAppError(w, apperr.New(apperr.FailedPrecondition, "org node is deactivated"))
		return
	}
	if _, err := h.store.FindRoleByID(ctx, ac.TenantID, req.RoleID); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if _, err := h.store.FindUserByID(ctx, ac.TenantID, req.UserID); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	start := time.Now()
	if req.StartAt != nil {
		start = *req.StartAt
	}
	assignment := &identity.OrgAssignment{
		TenantID:  ac.TenantID,
		UserID:    req.UserID,
		OrgNodeID: req.OrgNodeID,
		RoleID:    req.RoleID,
		StartAt:   start,
		EndAt:     req.EndAt,
	}
	if err := h.store.InsertOrgAssignment(ctx, assignment); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.audit(r, "assignment.created", &ac.TenantID, &ac.UserID, strPtr("org_assignment"), &assignment.ID, map[string]any{
		"user_id": req.UserID, "role_id": req.RoleID, "org_node_id": req.OrgNodeID,
	})
	httpserver.Respond(w, http.StatusCreated, assignmentResponse(assignment))
}

func (h *Handler) handleEndAssignment(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capAssignmentEnd)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.EndAssignment(r.Context(), ac.TenantID, id); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	h.audit(r, "assignment.ended", &ac.TenantID, &ac.UserID, strPtr("org_assignment"), &id, nil)
	httpserver.Respond(w, http.StatusOK, map[string]string{"id": id})
}

func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capAssignmentRead)
	if !ok {
		return
	}
	assignments, err := h.store.FindActiveAssignmentsForUser(r.Context(), ac.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	out := make([]AssignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, assignmentResponse(a))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"assignments": out})
}

// --- Visibility grants ---

// CreateVisibilityGrantRequest is the body of POST /admin/visibility-grants.
type CreateVisibilityGrantRequest struct {
	UserID    string     `json:"user_id" validate:"required,uuid"`
	OrgNodeID string     `json:"org_node_id" validate:"required,uuid"`
	Scope     string     `json:"scope" validate:"required,oneof=read write admin"`
	StartAt   *time.Time `json:"start_at"`
	EndAt     *time.Time `json:"end_at"`
}

// VisibilityGrantResponse is the wire shape of a visibility grant.
type VisibilityGrantResponse struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	UserID    string     `json:"user_id"`
	OrgNodeID string     `json:"org_node_id"`
	Scope     string     `json:"scope"`
	StartAt   time.Time  `json:"start_at"`
	EndAt     *time.Time `json:"end_at,omitempty"`
}

func visibilityGrantResponse(g *identity.VisibilityGrant) VisibilityGrantResponse {
	return VisibilityGrantResponse{
		ID: g.ID, TenantID: g.TenantID, UserID: g.UserID,
		OrgNodeID: g.OrgNodeID, Scope: string(g.Scope), StartAt: g.StartAt, EndAt: g.EndAt,
	}
}

func (h *Handler) handleCreateVisibilityGrant(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capVisibilityGrant)
	if !ok {
		return
	}
	var req CreateVisibilityGrantRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()

	if _, err := h.store.FindOrgNodeByID(ctx, ac.TenantID, req.OrgNodeID); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	if _, err := h.store.FindUserByID(ctx, ac.TenantID, req.UserID); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	start := time.Now()
	if req.StartAt != nil {
		start = *req.StartAt
	}
	grant := &identity.VisibilityGrant{
		TenantID:  ac.TenantID,
		UserID:    req.UserID,
		OrgNodeID: req.OrgNodeID,
		Scope:     identity.VisibilityScope(req.Scope),
		StartAt:   start,
		EndAt:     req.EndAt,
	}
	if err := h.store.InsertVisibilityGrant(ctx, grant); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	h.audit(r, "visibility.granted", &ac.TenantID, &ac.UserID, strPtr("visibility_grant"), &grant.ID, map[string]any{
		"user_id": req.UserID, "org_node_id": req.OrgNodeID, "scope": req.Scope,
	})
	httpserver.Respond(w, http.StatusCreated, visibilityGrantResponse(grant))
}

func (h *Handler) handleRevokeVisibilityGrant(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capVisibilityRevoke)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.RevokeVisibilityGrant(r.Context(), ac.TenantID, id); err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	h.audit(r, "visibility.revoked", &ac.TenantID, &ac.UserID, strPtr("visibility_grant"), &id, nil)
	httpserver.Respond(w, http.StatusOK, map[string]string{"id": id})
}

// handleListVisibilityGrants returns the full grant history for a user,
// ended grants included; the self-service view filters to active ones.
func (h *Handler) handleListVisibilityGrants(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capVisibilityRead)
	if !ok {
		return
	}
	grants, err := h.store.FindVisibilityGrantsForUser(r.Context(), ac.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}
	out := make([]VisibilityGrantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, visibilityGrantResponse(g))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"visibility_grants": out})
}

// --- Audit events ---

// AuditEventResponse is the wire shape of an audit event.
type AuditEventResponse struct {
	ID            string         `json:"id"`
	ActorUserID   *string        `json:"actor_user_id,omitempty"`
	ActorSvcID    *string        `json:"actor_svc_id,omitempty"`
	EventTypeCode string         `json:"event_type_code"`
	TargetType    *string        `json:"target_type,omitempty"`
	TargetID      *string        `json:"target_id,omitempty"`
	EventData     map[string]any `json:"event_data,omitempty"`
	IP            *string        `json:"ip,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (h *Handler) handleListAuditEvents(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.requireCapability(w, r, capAuditRead)
	if !ok {
		return
	}
	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondAppError(w, apperr.New(apperr.InvalidArgument, err.Error()))
		return
	}

	var beforeTime time.Time
	var beforeID string
	if params.After != nil {
		beforeTime = params.After.CreatedAt
		beforeID = params.After.ID
	}

	// Fetch one past the page to detect whether more rows exist.
	events, err := h.store.FindAuditEvents(r.Context(), ac.TenantID, beforeTime, beforeID, params.Limit+1)
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	out := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, AuditEventResponse{
			ID:            e.ID,
			ActorUserID:   e.ActorUserID,
			ActorSvcID:    e.ActorSvcID,
			EventTypeCode: e.EventTypeCode,
			TargetType:    e.TargetType,
			TargetID:      e.TargetID,
			EventData:     e.EventData,
			IP:            e.IP,
			CreatedAt:     e.CreatedAt,
		})
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewCursorPage(out, params.Limit, func(e AuditEventResponse) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	}))
}

func strPtr(s string) *string { return &s }
