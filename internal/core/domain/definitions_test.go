package domain_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
)

func TestDefinitions_CoverTaxonomy(t *testing.T) {
	require.Len(t, domain.EventTypes, 35)

	for _, et := range domain.EventTypes {
		def, ok := domain.DefinitionOf(et)
		require.True(t, ok, "%s has no definition", et)
		assert.Equal(t, et, def.Type)
		assert.NotEmpty(t, def.Title, "%s", et)
		assert.True(t, def.Kind.IsValid(), "%s", et)
		for _, key := range def.Invalidates {
			assert.Contains(t, domain.QueryKeys, key, "%s", et)
		}
	}

	_, ok := domain.DefinitionOf("ORDER_REFUND")
	assert.False(t, ok)
}

func TestDefinitionOf_ReturnsCopy(t *testing.T) {
	def, _ := domain.DefinitionOf(domain.EventOrderAdd)
	def.Invalidates[0] = "tampered"

	again, _ := domain.DefinitionOf(domain.EventOrderAdd)
	assert.NotEqual(t, domain.QueryKey("tampered"), again.Invalidates[0])
}

func TestDefinitions_AlertOnlyForNewLiveOrders(t *testing.T) {
	var alerting []domain.EventType
	for _, et := range domain.EventTypes {
		if def, _ := domain.DefinitionOf(et); def.Alert {
			alerting = append(alerting, et)
		}
	}
	slices.Sort(alerting)
	assert.Equal(t, []domain.EventType{domain.EventOrderAdd, domain.EventPOSAdd}, alerting)

	def, _ := domain.DefinitionOf(domain.EventPOSAdd)
	assert.True(t, def.ShouldAlert("/pos/live"))
	assert.True(t, def.ShouldAlert("/pos/live/17"))
	assert.False(t, def.ShouldAlert("/pos/reservation"))
	assert.False(t, def.ShouldAlert(""))

	update, _ := domain.DefinitionOf(domain.EventPOSUpdate)
	assert.False(t, update.ShouldAlert("/pos/live"))
}

func TestDefinitions_AudienceByFamily(t *testing.T) {
	tests := map[domain.EventType]domain.Audience{
		domain.EventOrderAdd:              domain.AudienceUser,
		domain.EventDepositFailed:         domain.AudienceUser,
		domain.EventPOSAdd:                domain.AudienceStaff,
		domain.EventDepositStatusUpdate:   domain.AudienceStaff,
		domain.EventUserAuthorityUpdate:   domain.AudienceAdmin,
		domain.EventConnectionCountUpdate: domain.AudienceAdmin,
		domain.EventMenuUpdate:            domain.AudiencePublic,
		domain.EventInventoryUpdate:       domain.AudiencePublic,
	}
	for et, want := range tests {
		def, _ := domain.DefinitionOf(et)
		assert.Equal(t, want, def.Audience, "%s", et)
	}

	authority, _ := domain.DefinitionOf(domain.EventUserAuthorityUpdate)
	assert.True(t, authority.AlsoOwner)
}

func TestParseEventType(t *testing.T) {
	et, err := domain.ParseEventType("MENU_ADD")
	require.NoError(t, err)
	assert.Equal(t, domain.EventMenuAdd, et)

	_, err = domain.ParseEventType("menu_add")
	assert.Error(t, err)
}
