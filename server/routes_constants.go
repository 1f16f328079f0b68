package server

// Route path constants
// All gateway routes are defined here to ensure consistency and prevent typos
const (
	RouteAuthLogin        = "/auth/login"
	RouteAuthHydrate      = "/auth/hydrate"
	RouteAuthLogout       = "/auth/logout"
	RouteAuthConfirmEmail = "/auth/confirm-email"
)
