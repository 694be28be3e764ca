package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/ports"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/services"
)

var allRoles = []domain.Role{domain.RoleUser, domain.RoleStaff, domain.RoleAdmin, domain.RoleServer}

func mustUserChannel(t *testing.T, id string) domain.Channel {
	t.Helper()
	ch, err := domain.UserChannel(id)
	require.NoError(t, err)
	return ch
}

func TestChannelRouter_ResolveChannelsForEvent(t *testing.T) {
	router := services.NewChannelRouter()
	owner := ports.MutationContext{OwnerID: "u1"}

	tests := []struct {
		name  string
		event domain.EventType
		mc    ports.MutationContext
		want  []domain.Channel
	}{
		{"user event to owner", domain.EventOrderAdd, owner, []domain.Channel{mustUserChannel(t, "u1")}},
		{"staff event", domain.EventPOSAdd, owner, []domain.Channel{domain.StaffChannel()}},
		{"public event", domain.EventMenuUpdate, ports.MutationContext{}, []domain.Channel{domain.PublicChannel()}},
		{"admin event", domain.EventBonusAdd, owner, []domain.Channel{domain.AdminChannel()}},
		{"authority update also reaches owner", domain.EventUserAuthorityUpdate, owner,
			[]domain.Channel{domain.AdminChannel(), mustUserChannel(t, "u1")}},
		{"authority update without owner", domain.EventUserAuthorityUpdate, ports.MutationContext{},
			[]domain.Channel{domain.AdminChannel()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := router.ResolveChannelsForEvent(domain.NewEnvelope(tt.event), tt.mc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChannelRouter_ResolveIsDeterministic(t *testing.T) {
	router := services.NewChannelRouter()
	mc := ports.MutationContext{OwnerID: "owner-7", UserIDs: []string{"a", "b"}}

	for _, et := range domain.EventTypes {
		env := domain.NewEnvelope(et)
		first, err := router.ResolveChannelsForEvent(env, mc)
		require.NoError(t, err, "%s", et)
		require.NotEmpty(t, first, "%s", et)

		for range 3 {
			again, err := router.ResolveChannelsForEvent(env, mc)
			require.NoError(t, err)
			assert.Equal(t, first, again, "%s", et)
		}
	}
}

func TestChannelRouter_UserEventRequiresOwner(t *testing.T) {
	router := services.NewChannelRouter()

	_, err := router.ResolveChannelsForEvent(domain.NewEnvelope(domain.EventDepositRecharge), ports.MutationContext{})
	assert.ErrorIs(t, err, apperrors.ErrMissingOwner)

	_, err = router.ResolveChannelsForEvent(domain.NewEnvelope(domain.EventDepositRecharge), ports.MutationContext{OwnerID: "bad id"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidUserID)
}

func TestChannelRouter_UnknownEvent(t *testing.T) {
	router := services.NewChannelRouter()

	_, err := router.ResolveChannelsForEvent(domain.Envelope{}, ports.MutationContext{})
	assert.ErrorIs(t, err, apperrors.ErrUnknownEventType)
}

func TestChannelRouter_AuthorizeSubscription(t *testing.T) {
	router := services.NewChannelRouter()

	tests := []struct {
		role    domain.Role
		channel domain.Channel
		want    bool
	}{
		{domain.RoleUser, domain.PublicChannel(), true},
		{domain.RoleUser, domain.StaffChannel(), false},
		{domain.RoleUser, domain.AdminChannel(), false},
		{domain.RoleStaff, domain.StaffChannel(), true},
		{domain.RoleStaff, domain.AdminChannel(), false},
		{domain.RoleAdmin, domain.StaffChannel(), true},
		{domain.RoleAdmin, domain.AdminChannel(), true},
		{domain.RoleServer, domain.AdminChannel(), true},
	}
	for _, tt := range tests {
		p := domain.Principal{ID: "u1", Role: tt.role}
		assert.Equal(t, tt.want, router.AuthorizeSubscription(p, tt.channel), "%s on %s", tt.role, tt.channel)
	}
}

func TestChannelRouter_UserChannelsAreIdentityBound(t *testing.T) {
	router := services.NewChannelRouter()
	own := mustUserChannel(t, "u1")
	other := mustUserChannel(t, "u2")

	for _, role := range allRoles {
		p := domain.Principal{ID: "u1", Role: role}
		assert.True(t, router.AuthorizeSubscription(p, own), "%s", role)
		assert.False(t, router.AuthorizeSubscription(p, other), "%s", role)
	}
	assert.False(t, router.AuthorizeSubscription(domain.Principal{Role: domain.RoleAdmin}, own))
}

func TestChannelRouter_HigherRolesSeeAtLeastAsMuch(t *testing.T) {
	router := services.NewChannelRouter()
	groups := []domain.Channel{domain.PublicChannel(), domain.StaffChannel(), domain.AdminChannel()}

	for _, lower := range allRoles {
		for _, higher := range allRoles {
			if !higher.Dominates(lower) {
				continue
			}
			for _, ch := range groups {
				if router.AuthorizeSubscription(domain.Principal{ID: "x", Role: lower}, ch) {
					assert.True(t, router.AuthorizeSubscription(domain.Principal{ID: "x", Role: higher}, ch),
						"%s may see %s but %s may not", lower, ch, higher)
				}
			}
		}
	}
}

func TestChannelRouter_RejectsInvalidPrincipal(t *testing.T) {
	router := services.NewChannelRouter()

	assert.False(t, router.AuthorizeSubscription(domain.Principal{ID: "u1", Role: "GUEST"}, domain.PublicChannel()))
	assert.False(t, router.AuthorizeSubscription(domain.Principal{ID: "u1", Role: domain.RoleServer}, domain.Channel{}))
}

func TestChannelRouter_Authorize(t *testing.T) {
	router := services.NewChannelRouter()
	staff := domain.Principal{ID: "s1", Role: domain.RoleStaff}

	ch, err := router.Authorize(staff, "staff-message")
	require.NoError(t, err)
	assert.Equal(t, domain.StaffChannel(), ch)

	_, err = router.Authorize(staff, "admin-message")
	assert.ErrorIs(t, err, apperrors.ErrSubscriptionDenied)

	_, err = router.Authorize(staff, "everyone")
	assert.ErrorIs(t, err, apperrors.ErrMalformedChannel)
}

func TestChannelRouter_SubscribableChannels(t *testing.T) {
	router := services.NewChannelRouter()

	got := router.SubscribableChannels(domain.Principal{ID: "s1", Role: domain.RoleStaff})
	assert.Equal(t, []domain.Channel{domain.PublicChannel(), domain.StaffChannel(), mustUserChannel(t, "s1")}, got)

	got = router.SubscribableChannels(domain.Principal{Role: domain.RoleServer})
	assert.Equal(t, []domain.Channel{domain.PublicChannel(), domain.StaffChannel(), domain.AdminChannel()}, got)
}
