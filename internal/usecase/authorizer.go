package usecase

import (
	"context"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
)

// Authorizer decides whether an approver may act for a role. Identity and
// RBAC live outside this service.
type Authorizer interface {
	IsAuthorized(ctx context.Context, approverID string, role domain.Role) bool
}

// StaticAuthorizer grants roles from a fixed table, usually loaded from config.
type StaticAuthorizer struct {
	grants map[string]map[domain.Role]bool
}

func NewStaticAuthorizer(grants map[string][]domain.Role) *StaticAuthorizer {
	a := &StaticAuthorizer{grants: make(map[string]map[domain.Role]bool, len(grants))}
	for approverID, roles := range grants {
		set := make(map[domain.Role]bool, len(roles))
		for _, r := range roles {
			set[r] = true
		}
		a.grants[approverID] = set
	}
	return a
}

func (a *StaticAuthorizer) IsAuthorized(_ context.Context, approverID string, role domain.Role) bool {
	return a.grants[approverID][role]
}

// AuthorizerFunc adapts a plain function to Authorizer.
type AuthorizerFunc func(ctx context.Context, approverID string, role domain.Role) bool

func (f AuthorizerFunc) IsAuthorized(ctx context.Context, approverID string, role domain.Role) bool {
	return f(ctx, approverID, role)
}

// AllowAll authorizes every approver for every role.
var AllowAll = AuthorizerFunc(func(context.Context, string, domain.Role) bool { return true })
