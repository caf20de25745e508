package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleRank(t *testing.T) {
	assert.Equal(t, 5, RoleAdmin.Rank())
	assert.Equal(t, 4, RolePM.Rank())
	assert.Equal(t, 3, RolePurchaser.Rank())
	assert.Equal(t, 2, RoleAP.Rank())
	assert.Equal(t, 1, RoleField.Rank())
	assert.Equal(t, 0, Role("Superuser").Rank())
	assert.Equal(t, 0, Role("").Rank())
}

func TestHasRole_MatchesRankDefinitionForAllPairs(t *testing.T) {
	all := append(ValidRoles(), Role("Unknown"))
	for _, user := range all {
		for _, req := range all {
			want := user.Rank() >= req.Rank()
			assert.Equal(t, want, HasRole([]Role{req}, user), "user=%s required=%s", user, req)
		}
	}
}

func TestHasRole(t *testing.T) {
	tests := []struct {
		name     string
		required []Role
		user     Role
		want     bool
	}{
		{"admin satisfies everything", []Role{RoleAdmin}, RoleAdmin, true},
		{"purchaser cannot reach admin view", []Role{RoleAdmin}, RolePurchaser, false},
		{"minimum of the required set applies", []Role{RoleAdmin, RoleAP}, RolePurchaser, true},
		{"field below AP", []Role{RoleAP}, RoleField, false},
		{"unknown user role ranks lowest", []Role{RoleField}, Role("Contractor"), false},
		{"empty requirement allows", nil, RoleField, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasRole(tt.required, tt.user))
		})
	}
}

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole("Purchaser"))
	assert.False(t, IsValidRole("purchaser"))
	assert.False(t, IsValidRole(""))
}
