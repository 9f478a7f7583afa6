package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// NewRouter wires the device sync surface and the back-office API. Sync
// routes authenticate the device via x-device-id plus a cashier token; the
// back-office routes are role-gated per subtree.
func NewRouter(handler *Handler, jwtSecret string, log *logrus.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(Timeout)
	r.Use(CORS)

	r.Get("/healthz", handler.Health)

	r.Route("/sync", func(r chi.Router) {
		r.Use(Auth(jwtSecret))
		r.Use(RequireRole(RoleAdmin, RoleKasir, RoleGudang))
		r.Use(RequireDeviceID)

		r.Get("/pull", handler.SyncPull)
		r.Post("/push", handler.SyncPush)
		r.Post("/pushSales", handler.SyncPushSales)
		r.Post("/pushReturns", handler.SyncPushReturns)
		r.Post("/pullStock", handler.SyncPullStock)
	})

	r.Route("/_jobs", func(r chi.Router) {
		r.Use(Auth(jwtSecret))
		r.Use(RequireRole(RoleAdmin))

		r.Get("/run-tombstone-retention", handler.RunRetention)
		r.Post("/run-tombstone-retention", handler.RunRetention)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Auth(jwtSecret))

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin, RoleKasir, RoleGudang))

			r.Get("/products", handler.ListProducts)
			r.Get("/products/{id}", handler.GetProduct)
			r.Get("/customers", handler.ListCustomers)
			r.Get("/locations", handler.ListLocations)
			r.Get("/stock/{productId}", handler.GetStock)
			r.Post("/stock/query", handler.QueryStock)
			r.Get("/sales", handler.ListSales)
			r.Get("/sales/{id}", handler.GetSale)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin))

			r.Post("/products", handler.CreateProduct)
			r.Put("/products/{id}", handler.UpdateProduct)
			r.Delete("/products/{id}", handler.DeleteProduct)
			r.Put("/products/{id}/uoms", handler.PutProductUom)
			r.Delete("/products/{id}/uoms/{uom}", handler.DeleteProductUom)
			r.Put("/barcodes", handler.PutBarcode)
			r.Delete("/barcodes/{code}", handler.DeleteBarcode)
			r.Put("/prices", handler.PutPrice)
			r.Delete("/prices/{id}/{uom}", handler.DeletePrice)
			r.Post("/locations", handler.CreateLocation)
			r.Put("/locations/{id}", handler.UpdateLocation)
			r.Delete("/locations/{id}", handler.DeleteLocation)
			r.Post("/inventory/import-excel", handler.ImportProducts)
			r.Get("/audit", handler.ListAudit)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin, RoleKasir))

			r.Post("/customers", handler.CreateCustomer)
			r.Put("/customers/{id}", handler.UpdateCustomer)
			r.Delete("/customers/{id}", handler.DeleteCustomer)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin, RoleGudang))

			r.Post("/purchases", handler.CreatePurchase)
			r.Post("/stock/adjust", handler.AdjustStock)
			r.Post("/stock/transfer", handler.TransferStock)
			r.Post("/stock/repack", handler.RepackStock)
		})
	})

	return r
}
