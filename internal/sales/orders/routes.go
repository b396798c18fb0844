package orders

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/cascade/internal/shared"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sales-orders", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)
		r.Get("/{id}/job-orders", h.JobOrders)
		r.Group(func(r chi.Router) {
			r.Use(shared.Idempotent(h.idem, "sales_orders", h.logger))
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Post("/{id}/confirm", h.Confirm)
			r.Post("/{id}/cancel", h.Cancel)
			r.Post("/{id}/complete", h.Complete)
			r.Post("/{id}/generate-invoice", h.GenerateInvoice)
			r.Post("/{id}/generate-job-order", h.GenerateJobOrder)
			r.Post("/{id}/duplicate", h.Duplicate)
		})
	})
}
