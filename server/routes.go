package server

func (s *Server) initRoutes() {
	mw := s.APIMiddleware()

	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), mw...))
	// Page loads hydrate with GET, API interceptors with POST; same handler.
	s.RegisterRouteHandler("GET "+RouteAuthHydrate, ChainMiddleware(s.HydrateHandler(), mw...))
	s.RegisterRouteHandler("POST "+RouteAuthHydrate, ChainMiddleware(s.HydrateHandler(), mw...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), mw...))
	s.RegisterRouteHandler("POST "+RouteAuthConfirmEmail, ChainMiddleware(s.ConfirmEmailHandler(), mw...))

	// CORS preflights carry no method-specific pattern; the CORS middleware
	// answers them before this handler runs.
	s.RegisterRouteHandler("OPTIONS /auth/", ChainMiddleware(s.PreflightHandler(), mw...))
}
