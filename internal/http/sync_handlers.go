package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"backend/internal/domain"
	"backend/internal/service"
)

// SyncPull serves the incremental snapshot. Resources arrive as a csv query
// parameter; an explicit since overrides the stored checkpoint.
func (h *Handler) SyncPull(w http.ResponseWriter, r *http.Request) {
	client, err := h.sync.RegisterDevice(r.Context(), deviceIDFrom(r.Context()), userAgent(r))
	if err != nil {
		writeErr(w, err)
		return
	}

	query := r.URL.Query()
	var resources []string
	for _, raw := range strings.Split(query.Get("resources"), ",") {
		if resource := strings.TrimSpace(raw); resource != "" {
			resources = append(resources, resource)
		}
	}
	limit, err := parseOptionalInt(query.Get("limit"), 0)
	if err != nil {
		writeErr(w, err)
		return
	}
	var since *time.Time
	if raw := strings.TrimSpace(query.Get("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeErr(w, domain.Validationf("invalid since timestamp %q", raw))
			return
		}
		since = &parsed
	}

	result, err := h.sync.Pull(r.Context(), client.ID, resources, since, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"data":           result.Data,
		"tombstones":     result.Tombstones,
		"nextCheckpoint": result.NextCheckpoint,
	})
}

func (h *Handler) SyncPush(w http.ResponseWriter, r *http.Request) {
	client, err := h.sync.RegisterDevice(r.Context(), deviceIDFrom(r.Context()), userAgent(r))
	if err != nil {
		writeErr(w, err)
		return
	}

	var req service.PushRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	summary, err := h.sync.Push(r.Context(), client.ID, req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "summary": summary})
}

// Batch shapes deliberately skip per-element validation: each document is
// validated inside the ingest loop so one bad record answers as rejected in
// its own result instead of failing the whole request.
type pushSalesRequest struct {
	Sales []service.SaleIn `json:"sales" validate:"required,min=1"`
}

// SyncPushSales applies a sale batch. Always 200: each document reports its
// own fate in results, and the summary counts them.
func (h *Handler) SyncPushSales(w http.ResponseWriter, r *http.Request) {
	client, err := h.sync.RegisterDevice(r.Context(), deviceIDFrom(r.Context()), userAgent(r))
	if err != nil {
		writeErr(w, err)
		return
	}

	var req pushSalesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	summary, results := h.pos.PushSales(r.Context(), client.ID, req.Sales)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"summary": map[string]any{"sales": summary},
		"results": results,
	})
}

type pushReturnsRequest struct {
	Returns []service.ReturnIn `json:"returns" validate:"required,min=1"`
}

func (h *Handler) SyncPushReturns(w http.ResponseWriter, r *http.Request) {
	client, err := h.sync.RegisterDevice(r.Context(), deviceIDFrom(r.Context()), userAgent(r))
	if err != nil {
		writeErr(w, err)
		return
	}

	var req pushReturnsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	summary, results := h.pos.PushReturns(r.Context(), client.ID, req.Returns)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"summary": map[string]any{"returns": summary},
		"results": results,
	})
}

// SyncPullStock answers a bulk balance snapshot so a device can reconcile its
// cached quantities after being offline.
func (h *Handler) SyncPullStock(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sync.RegisterDevice(r.Context(), deviceIDFrom(r.Context()), userAgent(r)); err != nil {
		writeErr(w, err)
		return
	}

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
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": snapshots})
}

// RunRetention triggers a tombstone sweep outside the scheduled interval.
// Query parameters override the configured policy for this run only.
func (h *Handler) RunRetention(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ttlDays, err := queryIntPtr(query, "ttlDays")
	if err != nil {
		writeErr(w, err)
		return
	}
	staleDays, err := queryIntPtr(query, "staleDays")
	if err != nil {
		writeErr(w, err)
		return
	}
	safetySec, err := queryIntPtr(query, "safetySec")
	if err != nil {
		writeErr(w, err)
		return
	}

	opts := service.SweepOptions{TTLDays: ttlDays, StaleDays: staleDays}
	if safetySec != nil {
		safety := time.Duration(*safetySec) * time.Second
		opts.Safety = &safety
	}

	result, err := h.retention.Sweep(r.Context(), time.Now().UTC(), opts)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"deleted":   result.Deleted,
		"threshold": result.Threshold,
	})
}

func queryIntPtr(query url.Values, key string) (*int, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil, domain.Validationf("invalid integer %q for %s", raw, key)
	}
	return &value, nil
}

func userAgent(r *http.Request) *string {
	value := r.Header.Get("User-Agent")
	if value == "" {
		return nil
	}
	return &value
}
