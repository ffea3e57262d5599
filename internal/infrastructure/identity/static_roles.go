// Package identity resolves workflow roles for authenticated actors.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/p2p-approval/internal/application/port"
	domainwf "github.com/garyjia/p2p-approval/internal/domain/workflow"
)

// StaticRoles maps actors to roles from configuration. Actors missing from
// the map get the default role, which may be empty.
type StaticRoles struct {
	roles       map[string]domainwf.Role
	defaultRole domainwf.Role
}

// NewStaticRoles validates the configured roles
func NewStaticRoles(assignments map[string]string, defaultRole string) (*StaticRoles, error) {
	roles := make(map[string]domainwf.Role, len(assignments))
	for actor, name := range assignments {
		role := domainwf.Role(strings.TrimSpace(name))
		if !role.IsValid() {
			return nil, fmt.Errorf("actor %s: unknown role %q", actor, name)
		}
		roles[strings.ToLower(strings.TrimSpace(actor))] = role
	}

	def := domainwf.Role(strings.TrimSpace(defaultRole))
	if def != "" && !def.IsValid() {
		return nil, fmt.Errorf("unknown default role %q", defaultRole)
	}

	return &StaticRoles{roles: roles, defaultRole: def}, nil
}

// Role implements port.RoleProvider. Actor names are case-insensitive.
func (s *StaticRoles) Role(ctx context.Context, actor string) (domainwf.Role, error) {
	if role, ok := s.roles[strings.ToLower(strings.TrimSpace(actor))]; ok {
		return role, nil
	}
	return s.defaultRole, nil
}

var _ port.RoleProvider = (*StaticRoles)(nil)
