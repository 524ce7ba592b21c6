// Package memory is a mutex-guarded in-memory implementation of
// identity.Store for test harnesses. Not shared across processes.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aegiscore/identity/internal/identity"
	"github.com/aegiscore/identity/pkg/apperr"
)

// Store is an in-memory identity.Store, safe for concurrent use.
type Store struct {
	mu sync.Mutex

	tenants      map[string]*identity.Tenant
	tenantsBySlug map[string]string
	orgNodes     map[string]*identity.OrgNode
	roles        map[string]*identity.Role
	caps         map[string]*identity.Capability
	capsByKey    map[string]string
	roleCaps     map[string]map[string]bool
	users        map[string]*identity.User
	usersByEmail map[string]string // tenantID+"|"+emailLower -> userID
	assignments  map[string]*identity.OrgAssignment
	visibility   map[string]*identity.VisibilityGrant
	refreshTok   map[string]*identity.RefreshToken
	otps         map[string]*identity.OtpRecord
	services     map[string]*identity.ServiceAccount
	servicesByKey map[string]string
	secrets      map[string]*identity.ServiceSecret // serviceID -> current secret
	servicePerms map[string]map[string]bool
	auditEvents  []*identity.AuditEvent
	securityEvents []*identity.SecurityAuditEvent
	bootstrapDone bool

	seq int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		tenants:        make(map[string]*identity.Tenant),
		tenantsBySlug:  make(map[string]string),
		orgNodes:       make(map[string]*identity.OrgNode),
		roles:          make(map[string]*identity.Role),
		caps:           make(map[string]*identity.Capability),
		capsByKey:      make(map[string]string),
		roleCaps:       make(map[string]map[string]bool),
		users:          make(map[string]*identity.User),
		usersByEmail:   make(map[string]string),
		assignments:    make(map[string]*identity.OrgAssignment),
		visibility:     make(map[string]*identity.VisibilityGrant),
		refreshTok:     make(map[string]*identity.RefreshToken),
		otps:           make(map[string]*identity.OtpRecord),
		services:       make(map[string]*identity.ServiceAccount),
		servicesByKey:  make(map[string]string),
		secrets:        make(map[string]*identity.ServiceSecret),
		servicePerms:   make(map[string]map[string]bool),
	}
}

// nextID returns a UUID-formatted id (8-4-4-4-12 lowercase hex): the
// current UnixNano fills the first three groups and the store's sequence
// number the last, so ids sort in creation order.
func (s *Store) nextID() string {
	s.seq++
	ns := uint64(time.Now().UTC().UnixNano())
	return fmt.Sprintf("%08x-%04x-%04x-0000-%012x", ns>>32, (ns>>16)&0xffff, ns&0xffff, s.seq)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Tenants

func (s *Store) FindTenantByID(_ context.Context, id string) (*identity.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "tenant not found")
	}
	cp := *t
	return &cp, nil
}

func (s *Store) FindTenantBySlug(_ context.Context, slug string) (*identity.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tenantsBySlug[slug]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "tenant not found")
	}
	cp := *s.tenants[id]
	return &cp, nil
}

func (s *Store) InsertTenant(_ context.Context, t *identity.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = s.nextID()
	}
	if _, exists := s.tenantsBySlug[t.Slug]; exists {
		return apperr.New(apperr.AlreadyExists, "tenant slug already taken")
	}
	cp := *t
	s.tenants[t.ID] = &cp
	s.tenantsBySlug[t.Slug] = t.ID
	return nil
}

func (s *Store) SetTenantState(_ context.Context, id string, state identity.TenantState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return apperr.New(apperr.NotFound, "tenant not found")
	}
	t.State = state
	return nil
}

// OrgNodes

func (s *Store) InsertOrgNode(_ context.Context, n *identity.OrgNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = s.nextID()
	}
	cp := *n
	s.orgNodes[n.ID] = &cp
	return nil
}

func (s *Store) FindOrgNodeByID(_ context.Context, tenantID, id string) (*identity.OrgNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.orgNodes[id]
	if !ok || n.TenantID != tenantID {
		return nil, apperr.New(apperr.NotFound, "org node not found")
	}
	cp := *n
	return &cp, nil
}

func (s *Store) FindOrgNodesByTenant(_ context.Context, tenantID string) ([]*identity.OrgNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*identity.OrgNode
	for _, n := range s.orgNodes {
		if n.TenantID == tenantID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sortOrgNodes(out)
	return out, nil
}

func (s *Store) FindOrgNodeDescendants(_ context.Context, tenantID, id string) ([]*identity.OrgNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byParent := make(map[string][]*identity.OrgNode)
	for _, n := range s.orgNodes {
		if n.TenantID != tenantID || n.ParentID == nil {
			continue
		}
		byParent[*n.ParentID] = append(byParent[*n.ParentID], n)
	}
	var out []*identity.OrgNode
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range byParent[cur] {
			cp := *child
			out = append(out, &cp)
			queue = append(queue, child.ID)
		}
	}
	sortOrgNodes(out)
	return out, nil
}

func sortOrgNodes(nodes []*identity.OrgNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}

func (s *Store) SetOrgNodeActive(_ context.Context, tenantID, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.orgNodes[id]
	if !ok || n.TenantID != tenantID {
		return apperr.New(apperr.NotFound, "org node not found")
	}
	n.Active = active
	return nil
}

// Roles

func (s *Store) InsertRole(_ context.Context, r *identity.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = s.nextID()
	}
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *Store) FindRoleByID(_ context.Context, tenantID, id string) (*identity.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok || r.TenantID != tenantID {
		return nil, apperr.New(apperr.NotFound, "role not found")
	}
	cp := *r
	return &cp, nil
}

func (s *Store) FindRolesByTenant(_ context.Context, tenantID string) ([]*identity.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*identity.Role
	for _, r := range s.roles {
		if r.TenantID == tenantID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Capabilities

func (s *Store) InsertCapabilityIfMissing(_ context.Context, key string) (*identity.Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.capsByKey[key]; ok {
		cp := *s.caps[id]
		return &cp, nil
	}
	c := &identity.Capability{ID: s.nextID(), Key: key, CreatedAt: time.Now().UTC()}
	s.caps[c.ID] = c
	s.capsByKey[key] = c.ID
	cp := *c
	return &cp, nil
}

func (s *Store) FindCapabilityByKey(_ context.Context, key string) (*identity.Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.capsByKey[key]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "capability not found")
	}
	cp := *s.caps[id]
	return &cp, nil
}

func (s *Store) GetAllCapabilities(_ context.Context) ([]*identity.Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*identity.Capability
	for _, c := range s.caps {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) GetRoleCapabilities(_ context.Context, roleID string) ([]*identity.Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*identity.Capability
	for capID := range s.roleCaps[roleID] {
		cp := *s.caps[capID]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) AssignCapabilityToRole(_ context.Context, roleID, capID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roleCaps[roleID] == nil {
		s.roleCaps[roleID] = make(map[string]bool)
	}
	s.roleCaps[roleID][capID] = true
	return nil
}

func (s *Store) UnassignCapabilityFromRole(_ context.Context, roleID, capID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roleCaps[roleID], capID)
	return nil
}

// Users

func (s *Store) InsertUser(_ context.Context, u *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = s.nextID()
	}
	key := u.TenantID + "|" + u.EmailLower
	if _, exists := s.usersByEmail[key]; exists {
		return apperr.New(apperr.AlreadyExists, "email already registered for tenant")
	}
	cp := *u
	s.users[u.ID] = &cp
	s.usersByEmail[key] = u.ID
	return nil
}

func (s *Store) FindUserByID(_ context.Context, tenantID, id string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *Store) FindUserByTenantAndEmail(_ context.Context, tenantID, emailLower string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usersByEmail[tenantID+"|"+emailLower]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) UpdateUserFields(_ context.Context, tenantID, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.TenantID != tenantID {
		return apperr.New(apperr.NotFound, "user not found")
	}
	for k, v := range fields {
		switch k {
		case "display_name":
			if v == nil {
				u.DisplayName = nil
			} else if sv, ok := v.(string); ok {
				u.DisplayName = &sv
			}
		case "verified":
			if bv, ok := v.(bool); ok {
				u.Verified = bv
			}
		case "state":
			if sv, ok := v.(identity.UserState); ok {
				u.State = sv
			}
		case "password_hash":
			if sv, ok := v.(string); ok {
				u.PasswordHash = &sv
			}
		case "social_id":
			if sv, ok := v.(string); ok {
				u.SocialID = &sv
			}
		}
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// Assignments

func (s *Store) InsertOrgAssignment(_ context.Context, a *identity.OrgAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = s.nextID()
	}
	cp := *a
	s.assignments[a.ID] = &cp
	return nil
}

func (s *Store) EndAssignment(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok || a.TenantID != tenantID {
		return apperr.New(apperr.NotFound, "assignment not found")
	}
	now := time.Now().UTC()
	a.EndAt = &now
	return nil
}

func (s *Store) FindActiveAssignmentsForUser(_ context.Context, tenantID, userID string) ([]*identity.OrgAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var out []*identity.OrgAssignment
	for _, a := range s.assignments {
		if a.TenantID == tenantID && a.UserID == userID && a.Active(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Visibility

func (s *Store) InsertVisibilityGrant(_ context.Context, g *identity.VisibilityGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = s.nextID()
	}
	cp := *g
	s.visibility[g.ID] = &cp
	return nil
}

func (s *Store) RevokeVisibilityGrant(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.visibility[id]
	if !ok || g.TenantID != tenantID {
		return apperr.New(apperr.NotFound, "visibility grant not found")
	}
	now := time.Now().UTC()
	g.EndAt = &now
	return nil
}

func (s *Store) FindVisibilityGrantsForUser(_ context.Context, tenantID, userID string) ([]*identity.VisibilityGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*identity.VisibilityGrant
	for _, g := range s.visibility {
		if g.TenantID == tenantID && g.UserID == userID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) FindActiveVisibilityGrantsForUser(_ context.Context, tenantID, userID string) ([]*identity.VisibilityGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var out []*identity.VisibilityGrant
	for _, g := range s.visibility {
		if g.TenantID == tenantID && g.UserID == userID && g.Active(now) {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Refresh tokens

func (s *Store) InsertRefreshToken(_ context.Context, t *identity.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.refreshTok[t.ID] = &cp
	return nil
}

func (s *Store) FindRefreshTokenByJTI(_ context.Context, jti string) (*identity.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refreshTok[jti]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "refresh token not found")
	}
	cp := *t
	return &cp, nil
}

func (s *Store) RevokeRefreshTokenByJTI(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refreshTok[jti]
	if !ok {
		return apperr.New(apperr.NotFound, "refresh token not found")
	}
	t.Revoked = true
	return nil
}

func (s *Store) RevokeAllRefreshTokensForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.refreshTok {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (s *Store) RotateRefreshToken(_ context.Context, predecessorJTI string, successor *identity.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pred, ok := s.refreshTok[predecessorJTI]
	if !ok || pred.Revoked {
		return apperr.New(apperr.Unauthenticated, "refresh token already revoked or expired")
	}
	pred.Revoked = true
	cp := *successor
	cp.Revoked = false
	s.refreshTok[successor.ID] = &cp
	return nil
}

// OTPs

func (s *Store) InsertOTP(_ context.Context, o *identity.OtpRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = s.nextID()
	}
	cp := *o
	s.otps[o.ID] = &cp
	return nil
}

func (s *Store) FindOTPByID(_ context.Context, id string) (*identity.OtpRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.otps[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "otp not found")
	}
	cp := *o
	return &cp, nil
}

func (s *Store) FindActiveOTP(_ context.Context, tenantID, destination string, purpose identity.OTPPurpose) (*identity.OtpRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, o := range s.otps {
		if o.TenantID == tenantID && o.Destination == destination && o.Purpose == purpose &&
			!o.Consumed() && !o.Expired(now) && !o.Exhausted() {
			cp := *o
			return &cp, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "no active otp")
}

func (s *Store) ConsumeOTP(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.otps[id]
	if !ok {
		return apperr.New(apperr.NotFound, "otp not found")
	}
	now := time.Now().UTC()
	o.ConsumedAt = &now
	return nil
}

func (s *Store) IncrementOTPAttempts(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.otps[id]
	if !ok {
		return apperr.New(apperr.NotFound, "otp not found")
	}
	o.Attempts++
	return nil
}

// Service accounts

func (s *Store) InsertServiceAccount(_ context.Context, sa *identity.ServiceAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sa.ID == "" {
		sa.ID = s.nextID()
	}
	if _, exists := s.servicesByKey[sa.Key]; exists {
		return apperr.New(apperr.AlreadyExists, "service key already taken")
	}
	cp := *sa
	s.services[sa.ID] = &cp
	s.servicesByKey[sa.Key] = sa.ID
	return nil
}

func (s *Store) FindServiceByID(_ context.Context, id string) (*identity.ServiceAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, ok := s.services[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "service account not found")
	}
	cp := *sa
	return &cp, nil
}

func (s *Store) FindServiceByKey(_ context.Context, key string) (*identity.ServiceAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.servicesByKey[key]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "service account not found")
	}
	cp := *s.services[id]
	return &cp, nil
}

func (s *Store) FindServiceByLookupHash(_ context.Context, lookupHash string) (*identity.ServiceAccount, *identity.ServiceSecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for svcID, sec := range s.secrets {
		prevLive := sec.PreviousLookupHash != nil && *sec.PreviousLookupHash == lookupHash &&
			sec.PreviousExpiry != nil && now.Before(*sec.PreviousExpiry)
		if sec.LookupHash == lookupHash || prevLive {
			acc, ok := s.services[svcID]
			if !ok {
				continue
			}
			accCp, secCp := *acc, *sec
			return &accCp, &secCp, nil
		}
	}
	return nil, nil, apperr.New(apperr.NotFound, "service secret not found")
}

func (s *Store) SetServiceState(_ context.Context, id string, state identity.ServiceAccountState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, ok := s.services[id]
	if !ok {
		return apperr.New(apperr.NotFound, "service account not found")
	}
	sa.State = state
	return nil
}

func (s *Store) RotateServiceSecret(_ context.Context, serviceID string, next *identity.ServiceSecret, graceExpiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.secrets[serviceID]
	if cur != nil {
		prevHash, prevLookup := cur.SecretHash, cur.LookupHash
		next.PreviousSecretHash = &prevHash
		next.PreviousLookupHash = &prevLookup
		next.PreviousExpiry = &graceExpiry
	}
	if next.ID == "" {
		next.ID = s.nextID()
	}
	next.ServiceID = serviceID
	cp := *next
	s.secrets[serviceID] = &cp
	return nil
}

func (s *Store) GetServicePermissions(_ context.Context, serviceID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for perm := range s.servicePerms[serviceID] {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) GrantServicePermission(_ context.Context, serviceID, permKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.servicePerms[serviceID] == nil {
		s.servicePerms[serviceID] = make(map[string]bool)
	}
	s.servicePerms[serviceID][permKey] = true
	return nil
}

// Audit

func (s *Store) InsertAuditEvent(_ context.Context, e *identity.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = s.nextID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.auditEvents = append(s.auditEvents, e)
	return nil
}

func (s *Store) FindAuditEvents(_ context.Context, tenantID string, beforeTime time.Time, beforeID string, limit int) ([]*identity.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*identity.AuditEvent
	for _, e := range s.auditEvents {
		if e.TenantID == nil || *e.TenantID != tenantID {
			continue
		}
		if !beforeTime.IsZero() {
			if e.CreatedAt.After(beforeTime) || (e.CreatedAt.Equal(beforeTime) && e.ID >= beforeID) {
				continue
			}
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) InsertSecurityEvent(_ context.Context, e *identity.SecurityAuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = s.nextID()
	}
	s.securityEvents = append(s.securityEvents, e)
	return nil
}

// AuditEvents exposes recorded audit events for test assertions.
func (s *Store) AuditEvents() []*identity.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*identity.AuditEvent, len(s.auditEvents))
	copy(out, s.auditEvents)
	return out
}

// SecurityEvents exposes recorded security events for test assertions.
func (s *Store) SecurityEvents() []*identity.SecurityAuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*identity.SecurityAuditEvent, len(s.securityEvents))
	copy(out, s.securityEvents)
	return out
}

// Misc

func (s *Store) HealthCheck(context.Context) error { return nil }

func (s *Store) IsBootstrapDone(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootstrapDone, nil
}

// MarkBootstrapDone is called by internal/bootstrap after a successful
// bootstrap transaction, flipping the one-shot flag.
func (s *Store) MarkBootstrapDone(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootstrapDone = true
	return nil
}
