package server

import (
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Token auth already gates the endpoint; origin checks stay with the proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// registerWS exposes the status update stream. Clients pass the session
// token as a query parameter and subscribe to one company's updates.
func registerWS(router chi.Router, basePath string, cfg Config) {
	router.Get(path.Join(basePath, "ws"), func(w http.ResponseWriter, req *http.Request) {
		companyID := req.URL.Query().Get("company_id")
		if companyID == "" {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "company_id is required", nil))
			return
		}
		if authErr := requireCompanyMember(req.Context(), cfg.Engine, companyID); authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		conn, err := wsUpgrader.Upgrade(w, req, nil)
		if err != nil {
			// Upgrade already wrote the handshake failure.
			return
		}
		cfg.Hub.Serve(companyID, conn)
	})
}
