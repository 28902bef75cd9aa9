package api

func (s *APIServer) setupRoutes() {
	httpWithRateLimit := chain(s.headersMiddleware, s.rateLimiter.Middleware)
	httpWithAuth := chain(s.headersMiddleware, s.rateLimiter.Middleware, s.bearerTokenAuthMiddleware)

	s.router.Handle("GET /health", httpWithRateLimit(s.handleHealth()))
	s.router.Handle("GET /v1/version", httpWithAuth(s.handleVersion()))
	s.router.Handle("POST /v1/commands", httpWithAuth(s.handleCommand()))
	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.rateLimiter.Middleware(s.metrics.ServeHTTP))
	}
}
