package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/groups", h.ListGroups)
	mux.HandleFunc("POST /v1/groups", h.CreateGroup)
	mux.HandleFunc("POST /v1/groups/import", h.ImportGroup)
	mux.HandleFunc("GET /v1/groups/{id}", h.GetGroup)
	mux.HandleFunc("PATCH /v1/groups/{id}", h.UpdateGroup)
	mux.HandleFunc("DELETE /v1/groups/{id}", h.DeleteGroup)

	mux.HandleFunc("GET /v1/messages", h.ListMessages)
	mux.HandleFunc("POST /v1/messages", h.CreateMessage)
	mux.HandleFunc("DELETE /v1/messages", h.DeleteAllMessages)
	mux.HandleFunc("DELETE /v1/messages/{id}", h.DeleteMessage)
	mux.HandleFunc("POST /v1/messages/batch-delete", h.BatchDeleteMessages)
	mux.HandleFunc("POST /v1/messages/{id}/send", h.SendMessageNow)

	mux.HandleFunc("GET /v1/conversations/{id}/messages", h.ListConversationMessages)

	mux.HandleFunc("GET /v1/sweeper/status", h.SweeperStatus)
	mux.HandleFunc("POST /v1/sweeper/start", h.SweeperStart)
	mux.HandleFunc("POST /v1/sweeper/stop", h.SweeperStop)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("quik scheduled messaging"))
	})

	return mux
}
