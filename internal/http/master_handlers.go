package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"backend/internal/service"
)

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseOptionalInt(query.Get("limit"), 200)
	if err != nil {
		writeErr(w, err)
		return
	}
	offset, err := parseOptionalInt(query.Get("offset"), 0)
	if err != nil {
		writeErr(w, err)
		return
	}

	items, err := h.master.ListProducts(r.Context(), query.Get("search"), limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, uoms, err := h.master.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"product": product, "uoms": uoms})
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	product, err := h.master.CreateProduct(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusCreated, product)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	product, err := h.master.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, product)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.master.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) PutProductUom(w http.ResponseWriter, r *http.Request) {
	var req service.ProductUomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	registration, err := h.master.PutProductUom(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, registration)
}

func (h *Handler) DeleteProductUom(w http.ResponseWriter, r *http.Request) {
	if err := h.master.DeleteProductUom(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "uom")); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) PutBarcode(w http.ResponseWriter, r *http.Request) {
	var req service.BarcodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	barcode, err := h.master.PutBarcode(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, barcode)
}

func (h *Handler) DeleteBarcode(w http.ResponseWriter, r *http.Request) {
	if err := h.master.DeleteBarcode(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) PutPrice(w http.ResponseWriter, r *http.Request) {
	var req service.PriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	price, err := h.master.PutPrice(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, price)
}

func (h *Handler) DeletePrice(w http.ResponseWriter, r *http.Request) {
	if err := h.master.DeletePrice(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "uom")); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseOptionalInt(query.Get("limit"), 200)
	if err != nil {
		writeErr(w, err)
		return
	}
	offset, err := parseOptionalInt(query.Get("offset"), 0)
	if err != nil {
		writeErr(w, err)
		return
	}

	items, err := h.master.ListCustomers(r.Context(), query.Get("search"), limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req service.CustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	customer, err := h.master.CreateCustomer(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusCreated, customer)
}

func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req service.CustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	customer, err := h.master.UpdateCustomer(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, customer)
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.master.DeleteCustomer(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	items, err := h.master.ListLocations(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *Handler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req service.LocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	location, err := h.master.CreateLocation(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusCreated, location)
}

func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req service.LocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	location, err := h.master.UpdateLocation(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, location)
}

func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	if err := h.master.DeleteLocation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"deleted": true})
}
