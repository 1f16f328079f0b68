package session_test

import (
	"testing"

	"github.com/studylane/go-session-gateway/identity"
	"github.com/studylane/go-session-gateway/session"
	"github.com/stretchr/testify/require"
)

func TestDecideRoute(t *testing.T) {
	tests := []struct {
		name    string
		profile identity.Profile
		want    session.Route
	}{
		{
			name:    "incomplete profile routes to completion regardless of role",
			profile: identity.Profile{Role: identity.RoleStudent, ProfileComplete: false},
			want:    session.RouteCompleteProfile,
		},
		{
			name:    "incomplete profile wins over staff flag",
			profile: identity.Profile{Role: identity.RoleAdmin, ProfileComplete: false, IsStaff: true},
			want:    session.RouteCompleteProfile,
		},
		{
			name:    "incomplete profile wins over super flag",
			profile: identity.Profile{ProfileComplete: false, IsSuper: true},
			want:    session.RouteCompleteProfile,
		},
		{
			name:    "staff routes to admin dashboard",
			profile: identity.Profile{Role: identity.RoleTeacher, ProfileComplete: true, IsStaff: true},
			want:    session.RouteAdminDashboard,
		},
		{
			name:    "super routes to admin dashboard",
			profile: identity.Profile{Role: identity.RoleSubAdmin, ProfileComplete: true, IsSuper: true},
			want:    session.RouteAdminDashboard,
		},
		{
			name:    "complete non-staff routes to study home",
			profile: identity.Profile{Role: identity.RoleStudent, ProfileComplete: true},
			want:    session.RouteStudyHome,
		},
		{
			name:    "trainer without staff flags routes to study home",
			profile: identity.Profile{Role: identity.RoleTrainer, ProfileComplete: true},
			want:    session.RouteStudyHome,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, session.DecideRoute(tc.profile))
		})
	}
}
