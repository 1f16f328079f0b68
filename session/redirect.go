package session

import "github.com/studylane/go-session-gateway/identity"

// Route is the destination the client should navigate to after any
// successful gateway call.
type Route string

const (
	RouteCompleteProfile Route = "/complete-profile"
	RouteAdminDashboard  Route = "/admin/dashboard"
	RouteStudyHome       Route = "/study"
)

// DecideRoute is the one redirect decision applied after login, after
// confirm-email and after hydrate. An incomplete profile always wins over
// staff flags; keeping a single call site avoids the divergent redirect
// bugs this replaces.
func DecideRoute(p identity.Profile) Route {
	if !p.ProfileComplete {
		return RouteCompleteProfile
	}
	if p.IsStaff || p.IsSuper {
		return RouteAdminDashboard
	}
	return RouteStudyHome
}
