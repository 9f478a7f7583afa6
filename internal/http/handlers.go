package http

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"backend/internal/service"
)

// Pinger is the liveness probe dependency, satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	sync      *service.Sync
	pos       *service.POS
	master    *service.Master
	importer  *service.Importer
	retention *service.Retention
	db        Pinger
	log       *logrus.Logger
}

func NewHandler(sync *service.Sync, pos *service.POS, master *service.Master, importer *service.Importer, retention *service.Retention, db Pinger, log *logrus.Logger) *Handler {
	return &Handler{sync: sync, pos: pos, master: master, importer: importer, retention: retention, db: db, log: log}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.log.WithError(err).Error("health check db ping failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
