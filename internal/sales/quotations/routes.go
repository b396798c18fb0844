package quotations

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/cascade/internal/shared"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotations", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)
		r.Group(func(r chi.Router) {
			r.Use(shared.Idempotent(h.idem, "quotations", h.logger))
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Post("/{id}/submit", h.Submit)
			r.Post("/{id}/approve", h.Approve)
			r.Post("/{id}/reject", h.Reject)
			r.Post("/{id}/duplicate", h.Duplicate)
			if h.convert != nil {
				r.Post("/{id}/convert", h.convert)
				r.Post("/{id}/generate-sales-order", h.convert)
			}
		})
	})
}
