package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ibs-portal-api/internal/models"
	"github.com/noah-isme/ibs-portal-api/pkg/config"
)

func newDefaultPolicy(t *testing.T) *AccessPolicy {
	t.Helper()
	policy, err := NewAccessPolicy(config.DefaultEditPositions)
	require.NoError(t, err)
	return policy
}

func roleSets() [][]models.AppRole {
	return [][]models.AppRole{
		nil,
		{models.RoleViewer},
		{models.RoleManager},
		{models.RoleAdmin},
		{models.RoleManager, models.RoleAdmin},
		{models.RoleAdmin, models.RoleAdmin},
	}
}

func TestResolveAdminIffMDOrAdminRole(t *testing.T) {
	policy := newDefaultPolicy(t)
	for _, position := range models.AllPositions() {
		position := position
		for _, roles := range roleSets() {
			caps := policy.Resolve(&position, roles)
			hasAdmin := false
			for _, r := range roles {
				if r == models.RoleAdmin {
					hasAdmin = true
				}
			}
			expected := position == models.PositionMD || hasAdmin
			assert.Equal(t, expected, caps.IsAdmin, "position=%s roles=%v", position, roles)
			if caps.IsAdmin {
				assert.True(t, caps.CanView && caps.CanCopy && caps.CanCreate && caps.CanEdit && caps.CanDelete)
			}
			require.NotNil(t, caps.Position)
			assert.Equal(t, position, *caps.Position)
		}
	}
}

func TestResolveNonAdminEditGate(t *testing.T) {
	policy := newDefaultPolicy(t)
	editable := map[models.Position]bool{}
	for _, p := range config.DefaultEditPositions {
		editable[models.Position(p)] = true
	}

	for _, position := range models.AllPositions() {
		position := position
		if position == models.PositionMD {
			continue
		}
		for _, roles := range [][]models.AppRole{nil, {models.RoleViewer}, {models.RoleManager}} {
			caps := policy.Resolve(&position, roles)
			assert.False(t, caps.IsAdmin)
			assert.True(t, caps.CanView)
			assert.True(t, caps.CanCopy)
			assert.Equal(t, caps.CanCreate, caps.CanEdit)
			assert.Equal(t, caps.CanEdit, caps.CanDelete)
			assert.Equal(t, editable[position], caps.CanCreate, "position=%s", position)
		}
	}
}

func TestResolveUnresolvedProfileFailsClosed(t *testing.T) {
	policy := newDefaultPolicy(t)
	for _, roles := range roleSets() {
		assert.Equal(t, models.Capabilities{}, policy.Resolve(nil, roles))
	}
	assert.Equal(t, models.Capabilities{}, policy.ResolvePrincipal(nil))
	assert.Equal(t, models.Capabilities{}, policy.ResolvePrincipal(&models.Principal{UserID: 7, Roles: []models.AppRole{models.RoleAdmin}}))
}

func TestResolveIsIdempotent(t *testing.T) {
	policy := newDefaultPolicy(t)
	position := models.PositionJunior
	roles := []models.AppRole{models.RoleManager}
	first := policy.Resolve(&position, roles)
	second := policy.Resolve(&position, roles)
	assert.Equal(t, first, second)
	assert.Equal(t, []models.AppRole{models.RoleManager}, roles)
}

func TestEveryPositionIsClassified(t *testing.T) {
	policy := newDefaultPolicy(t)
	restricted := map[models.Position]bool{
		models.PositionJunior:  true,
		models.PositionTrainee: true,
		models.PositionNYSC:    true,
		models.PositionITSwiss: true,
	}
	for _, position := range models.AllPositions() {
		assert.NotEqual(t, policy.CanEditAsPosition(position), restricted[position], "position %s is unclassified", position)
	}
}

func TestDeveloperKeepsEditRightsByDefault(t *testing.T) {
	policy := newDefaultPolicy(t)
	assert.Contains(t, policy.EditPositions(), models.PositionDeveloper)

	narrowed, err := NewAccessPolicy([]string{"MD", "HOD"})
	require.NoError(t, err)
	developer := models.PositionDeveloper
	assert.False(t, narrowed.Resolve(&developer, nil).CanEdit)
}

func TestNewAccessPolicyRejectsBadConfig(t *testing.T) {
	_, err := NewAccessPolicy([]string{"MD", "Intern"})
	assert.Error(t, err)
	_, err = NewAccessPolicy([]string{"QA", "QA"})
	assert.Error(t, err)
}

func TestAllows(t *testing.T) {
	policy := newDefaultPolicy(t)
	junior := models.PositionJunior
	caps := policy.Resolve(&junior, nil)

	assert.True(t, policy.Allows(caps, models.CapabilityView))
	assert.True(t, policy.Allows(caps, models.CapabilityCopy))
	assert.False(t, policy.Allows(caps, models.CapabilityCreate))
	assert.False(t, policy.Allows(caps, models.CapabilityEdit))
	assert.False(t, policy.Allows(caps, models.CapabilityDelete))
	assert.False(t, policy.Allows(caps, models.CapabilityAdmin))
	assert.False(t, policy.Allows(caps, models.Capability("launch")))
}
