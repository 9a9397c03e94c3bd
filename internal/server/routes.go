package server

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/app", s.getApp)

	r.Route("/config", func(r chi.Router) {
		r.Get("/", s.getConfig)
		r.Get("/providers", s.listProviders)
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)

			r.Post("/abort", s.abortSession)
			r.Post("/share", s.shareSession)
			r.Delete("/share", s.unshareSession)

			r.Get("/message", s.listMessages)
			r.Post("/message", s.sendMessage)
		})
	})

	r.Get("/event", s.events)

	r.Route("/file", func(r chi.Router) {
		r.Get("/", s.readFile)
		r.Get("/status", s.fileStatus)
	})

	r.Route("/find", func(r chi.Router) {
		r.Get("/", s.findText)
		r.Get("/file", s.findFiles)
		r.Get("/symbol", s.findSymbols)
	})

	r.Post("/permission/{permissionID}", s.respondPermission)
}
