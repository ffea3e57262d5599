package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainwf "github.com/garyjia/p2p-approval/internal/domain/workflow"
)

func TestStaticRoles(t *testing.T) {
	roles, err := NewStaticRoles(map[string]string{
		"Alice@acme.com": "staff",
		"m1@acme.com":    "manager_1",
		"fin@acme.com":   "finance",
	}, "")
	require.NoError(t, err)

	tests := []struct {
		actor string
		want  domainwf.Role
	}{
		{"alice@acme.com", domainwf.RoleStaff},
		{" M1@ACME.COM ", domainwf.RoleManager1},
		{"fin@acme.com", domainwf.RoleFinance},
		{"stranger@acme.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.actor, func(t *testing.T) {
			got, err := roles.Role(context.Background(), tt.actor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStaticRoles_DefaultRole(t *testing.T) {
	roles, err := NewStaticRoles(nil, "staff")
	require.NoError(t, err)

	got, err := roles.Role(context.Background(), "anyone")
	require.NoError(t, err)
	assert.Equal(t, domainwf.RoleStaff, got)
}

func TestStaticRoles_RejectsUnknownRoles(t *testing.T) {
	_, err := NewStaticRoles(map[string]string{"bob": "auditor"}, "")
	assert.Error(t, err)

	_, err = NewStaticRoles(nil, "admin")
	assert.Error(t, err)
}
