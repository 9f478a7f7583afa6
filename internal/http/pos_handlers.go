package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"backend/internal/domain"
	"backend/internal/service"
)

func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	productID := chi.URLParam(r, "productId")
	locationID := strings.TrimSpace(query.Get("location_id"))
	if locationID == "" {
		writeErr(w, domain.Validationf("location_id is required"))
		return
	}

	snapshot, err := h.pos.Balance(r.Context(), productID, locationID, strings.TrimSpace(query.Get("uom")))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, snapshot)
}

func (h *Handler) QueryStock(w http.ResponseWriter, r *http.Request) {
	var req service.StockQuery
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	snapshots, err := h.pos.Stock(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"items": snapshots, "count": len(snapshots)})
}

func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req service.PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	req.Actor = actorFrom(r.Context())

	purchase, err := h.pos.Purchase(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusCreated, purchase)
}

func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req service.AdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	req.Actor = actorFrom(r.Context())

	move, err := h.pos.Adjust(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusCreated, move)
}

func (h *Handler) TransferStock(w http.ResponseWriter, r *http.Request) {
	var req service.TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	req.Actor = actorFrom(r.Context())

	refID, err := h.pos.Transfer(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]any{"ref_id": refID})
}

func (h *Handler) RepackStock(w http.ResponseWriter, r *http.Request) {
	var req service.RepackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	req.Actor = actorFrom(r.Context())

	refID, err := h.pos.Repack(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]any{"ref_id": refID})
}

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
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

	var from, to *time.Time
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErr(w, domain.Validationf("invalid from timestamp %q", raw))
			return
		}
		from = &parsed
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErr(w, domain.Validationf("invalid to timestamp %q", raw))
			return
		}
		to = &parsed
	}

	sales, err := h.pos.ListSales(r.Context(), from, to, limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"items": sales, "count": len(sales)})
}

func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, lines, payments, err := h.pos.SaleDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"sale": sale, "lines": lines, "payments": payments})
}

// ImportProducts accepts a multipart upload with the workbook in the "file"
// field and the destination location in the query string.
func (h *Handler) ImportProducts(w http.ResponseWriter, r *http.Request) {
	locationID := strings.TrimSpace(r.URL.Query().Get("location_id"))
	if locationID == "" {
		writeErr(w, domain.Validationf("location_id query parameter is required"))
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeErr(w, domain.Validationf("invalid multipart form: %s", err.Error()))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeErr(w, domain.Validationf("file field is required"))
		return
	}
	defer file.Close()

	summary, err := h.importer.ImportProducts(r.Context(), locationID, file, actorFrom(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, summary)
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
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

	entries, err := h.master.ListAudit(r.Context(), limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
}
