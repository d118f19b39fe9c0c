// README: API gateway; builds the gin engine and delegates to the navigation service.
package http

import (
	"net/http"

	"bridgetalk/internal/http/handlers"
	"bridgetalk/internal/infra"
	"bridgetalk/internal/modules/navigation"
	"bridgetalk/internal/stream"
)

type ServerDeps struct {
	Navigation *navigation.Service
	Hub        *stream.Hub
	// Verifier enables Firebase auth; nil leaves the API open.
	Verifier infra.TokenVerifier
	// Allowance adds the monthly agent call count to trip listings.
	Allowance handlers.AgentAllowance
}

type Server struct {
	navigation *navigation.Service
	hub        *stream.Hub
	verifier   infra.TokenVerifier
	allowance  handlers.AgentAllowance
}

func NewServer(deps ServerDeps) *Server {
	hub := deps.Hub
	if hub == nil {
		hub = stream.NewHub(nil)
	}
	return &Server{
		navigation: deps.Navigation,
		hub:        hub,
		verifier:   deps.Verifier,
		allowance:  deps.Allowance,
	}
}

func (s *Server) Routes() http.Handler {
	return NewRouter(s.navigation, s.hub, s.verifier, s.allowance)
}
