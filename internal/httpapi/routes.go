package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tablesync/internal/actionlog"
	"github.com/DoyleJ11/tablesync/internal/hub"
	"github.com/DoyleJ11/tablesync/internal/ws"
)

func SetupRoutes(h *hub.Hub, alog actionlog.Log, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Route("/games/{gameID}", func(r chi.Router) {
		r.Post("/", Follow(h))
		r.Delete("/", Unfollow(h))
		r.Get("/", GetView(h))
		r.Post("/actions", SubmitAction(h, log))
		r.Get("/actions", RecentActions(alog))
		r.Post("/reconnect", ForceReconnect(h))
		r.Get("/ws", ws.Handler(h, log.Named("ws")))
	})
	return r
}
