package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xavierca1/immigration-crm/internal/infra/http/middleware"
)

// Routes mounts the contact-message API on r. Staff routes require a bearer token.
func Routes(r chi.Router, contact *ContactHandler, prospects *ProspectHandler, auth middleware.TokenParser) {
	r.Route("/contact-messages", func(r chi.Router) {
		r.Post("/", contact.Submit)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(auth))

			r.Get("/", prospects.List)
			r.Get("/stats", prospects.Stats)
			r.Get("/{id}", prospects.Get)
			r.Patch("/{id}/assign", prospects.Assign)
			r.Patch("/{id}/reassign", prospects.Reassign)
			r.Patch("/{id}/assign-consultant", prospects.AssignToConsultant)
			r.Patch("/{id}/consultant-notes", prospects.AddConsultantNote)
			r.Patch("/{id}/consultation", prospects.EnterConsultation)
			r.Post("/{id}/convert-to-client", prospects.Convert)
			r.Patch("/{id}/archive", prospects.Archive)
		})
	})
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	writeErrorResponse(w, http.StatusNotFound, "ROUTE_NOT_FOUND", "no route for "+r.Method+" "+r.URL.Path)
}
