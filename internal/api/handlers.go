package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/jjiill888/quik/internal/aggregate"
	"github.com/jjiill888/quik/internal/cache"
	"github.com/jjiill888/quik/internal/importer"
	"github.com/jjiill888/quik/internal/model"
	"github.com/jjiill888/quik/internal/repo"
	"github.com/jjiill888/quik/internal/service"
	"github.com/jjiill888/quik/internal/store"
	"github.com/jjiill888/quik/internal/sweep"
)

type Handler struct {
	groups     repo.ScheduledGroupRepository
	messages   repo.ScheduledMessageRepository
	svc        *service.GroupService
	reconciler *service.Reconciler
	sweeper    *sweep.Sweeper
	parser     *importer.Parser
	stats      cache.StatsCache // nil when redis is disabled
}

func NewHandler(
	groups repo.ScheduledGroupRepository,
	messages repo.ScheduledMessageRepository,
	svc *service.GroupService,
	reconciler *service.Reconciler,
	sweeper *sweep.Sweeper,
	stats cache.StatsCache,
) *Handler {
	return &Handler{
		groups:     groups,
		messages:   messages,
		svc:        svc,
		reconciler: reconciler,
		sweeper:    sweeper,
		parser:     importer.NewParser(),
		stats:      stats,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type groupView struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	CreatedAt   int64            `json:"createdAt"`
	UpdatedAt   int64            `json:"updatedAt"`
	Stats       model.GroupStats `json:"stats"`
}

type messageView struct {
	ID             int64    `json:"id"`
	Date           int64    `json:"date"`
	SubscriptionID int      `json:"subscriptionId"`
	Recipients     []string `json:"recipients"`
	SendAsGroup    bool     `json:"sendAsGroup"`
	Body           string   `json:"body"`
	Attachments    []string `json:"attachments,omitempty"`
	ConversationID int64    `json:"conversationId"`
	GroupID        int64    `json:"groupId"`
	Completed      bool     `json:"completed"`
	CompletedAt    int64    `json:"completedAt,omitempty"`
}

func toMessageView(m model.ScheduledMessage) messageView {
	return messageView{
		ID:             m.ID,
		Date:           m.Date,
		SubscriptionID: m.SubscriptionID,
		Recipients:     m.Recipients,
		SendAsGroup:    m.SendAsGroup,
		Body:           m.Body,
		Attachments:    m.Attachments,
		ConversationID: m.ConversationID,
		GroupID:        m.GroupID,
		Completed:      m.Completed,
		CompletedAt:    m.CompletedAt,
	}
}

// ListGroups renders every group with its stats in display order:
// incomplete groups first, newest first within each bucket.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groups, err := h.groups.List(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats := map[int64]model.GroupStats{}
	var missing []model.ScheduledGroup
	for _, g := range groups {
		if h.stats != nil {
			if s, err := h.stats.GetStats(ctx, g.ID); err == nil {
				stats[g.ID] = s
				continue
			}
		}
		missing = append(missing, g)
	}

	if len(missing) > 0 {
		messages, err := h.messages.List(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		computed := aggregate.GroupStats(missing, messages)
		for id, s := range computed {
			stats[id] = s
			if h.stats != nil {
				_ = h.stats.StoreStats(ctx, id, s)
			}
		}
	}

	aggregate.SortGroups(groups, stats)

	items := make([]groupView, 0, len(groups))
	for _, g := range groups {
		items = append(items, groupView{
			ID:          g.ID,
			Name:        g.Name,
			Description: g.Description,
			CreatedAt:   g.CreatedAt,
			UpdatedAt:   g.UpdatedAt,
			Stats:       stats[g.ID],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Messages    []struct {
		Name        string `json:"name"`
		PhoneNumber string `json:"phoneNumber"`
		ScheduledAt int64  `json:"scheduledAt"`
		Body        string `json:"body"`
	} `json:"messages"`
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	msgs := make([]service.GroupMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, service.GroupMessage{
			ScheduledAtMilli: m.ScheduledAt,
			PhoneNumber:      m.PhoneNumber,
			Body:             m.Body,
			Name:             m.Name,
		})
	}

	group, err := h.svc.CreateGroupWithMessages(r.Context(), req.Name, req.Description, msgs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": group.ID, "name": group.Name})
}

type importErrorView struct {
	Line int    `json:"line"`
	Kind string `json:"kind"`
	Raw  string `json:"raw,omitempty"`
}

// ImportGroup parses a CSV request body and creates a group from the
// valid rows. Row errors never fail the import; they are reported back
// alongside what was created. Only an all-rows-invalid input is
// rejected.
func (h *Handler) ImportGroup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name query parameter is required", http.StatusBadRequest)
		return
	}
	description := r.URL.Query().Get("description")

	result, err := h.parser.Parse(r.Body)
	if err != nil {
		http.Error(w, "failed to read csv: "+err.Error(), http.StatusBadRequest)
		return
	}

	errorViews := make([]importErrorView, 0, len(result.Errors))
	for _, e := range result.Errors {
		errorViews = append(errorViews, importErrorView{Line: e.Line, Kind: e.Kind.String(), Raw: e.Raw})
	}

	if len(result.Rows) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"imported": 0,
			"errors":   errorViews,
		})
		return
	}

	msgs := make([]service.GroupMessage, 0, len(result.Rows))
	for _, row := range result.Rows {
		msgs = append(msgs, service.GroupMessage{
			ScheduledAtMilli: row.ScheduledAtMilli,
			PhoneNumber:      row.PhoneNumber,
			Body:             row.Body,
			Name:             row.Name,
		})
	}

	group, err := h.svc.CreateGroupWithMessages(r.Context(), name, description, msgs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       group.ID,
		"name":     group.Name,
		"imported": len(result.Rows),
		"errors":   errorViews,
	})
}

func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	group, err := h.groups.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "group not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	messages, err := h.messages.ListForGroup(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats := aggregate.StatsFor(messages)
	if h.stats != nil {
		_ = h.stats.StoreStats(r.Context(), id, stats)
	}

	items := make([]messageView, 0, len(messages))
	for _, m := range messages {
		items = append(items, toMessageView(m))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"group": groupView{
			ID:          group.ID,
			Name:        group.Name,
			Description: group.Description,
			CreatedAt:   group.CreatedAt,
			UpdatedAt:   group.UpdatedAt,
			Stats:       stats,
		},
		"messages": items,
	})
}

type updateGroupRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	group, err := h.groups.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "group not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if req.Name != nil {
		group.Name = *req.Name
	}
	if req.Description != nil {
		group.Description = *req.Description
	}

	if err := h.svc.UpdateGroup(r.Context(), group); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": group.ID})
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteGroup(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if h.stats != nil {
		_ = h.stats.Invalidate(r.Context(), id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messages.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]messageView, 0, len(messages))
	for _, m := range messages {
		items = append(items, toMessageView(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ListConversationMessages renders the messages scheduled into one
// conversation thread, in the same order as the unfiltered list.
func (h *Handler) ListConversationMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	messages, err := h.messages.ListForConversation(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]messageView, 0, len(messages))
	for _, m := range messages {
		items = append(items, toMessageView(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type createMessageRequest struct {
	Date           int64    `json:"date"`
	SubscriptionID *int     `json:"subscriptionId"`
	Recipients     []string `json:"recipients"`
	SendAsGroup    bool     `json:"sendAsGroup"`
	Body           string   `json:"body"`
	Attachments    []string `json:"attachments"`
	ConversationID int64    `json:"conversationId"`
	GroupID        int64    `json:"groupId"`
}

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Recipients) == 0 {
		http.Error(w, "at least one recipient is required", http.StatusBadRequest)
		return
	}
	if req.Body == "" && len(req.Attachments) == 0 {
		http.Error(w, "body or attachments required", http.StatusBadRequest)
		return
	}

	subID := model.DefaultSubscriptionID
	if req.SubscriptionID != nil {
		subID = *req.SubscriptionID
	}

	message, err := h.svc.ScheduleMessage(r.Context(), repo.SaveMessageParams{
		Date:           req.Date,
		SubscriptionID: subID,
		Recipients:     req.Recipients,
		SendAsGroup:    req.SendAsGroup,
		Body:           req.Body,
		Attachments:    req.Attachments,
		ConversationID: req.ConversationID,
		GroupID:        req.GroupID,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageView(message))
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteMessage(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// BatchDeleteMessages accepts the ids and returns immediately; the
// deletions run on a background pool (optimistic completion).
func (h *Handler) BatchDeleteMessages(w http.ResponseWriter, r *http.Request) {
	var req batchDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.svc.DeleteMessages(req.IDs)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(req.IDs)})
}

// DeleteAllMessages materializes the ids of every message and hands the
// batch to the background delete pool. The snapshot keeps the wipe
// stable against saves that race it.
func (h *Handler) DeleteAllMessages(w http.ResponseWriter, r *http.Request) {
	ids, err := h.messages.IDsSnapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.svc.DeleteMessages(ids)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(ids)})
}

// SendMessageNow runs fire-time reconciliation for the message
// immediately, as if its wake-up had just arrived.
func (h *Handler) SendMessageNow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.reconciler.OnFire(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) SweeperStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"running": h.sweeper.IsRunning()}
	if last, ok := h.sweeper.LastResult(); ok {
		resp["lastSweepAt"] = last.At.UnixMilli()
		resp["lastArmed"] = last.Armed
		if last.Err != nil {
			resp["lastError"] = last.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SweeperStart(w http.ResponseWriter, r *http.Request) {
	h.sweeper.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sweeper.IsRunning()})
}

func (h *Handler) SweeperStop(w http.ResponseWriter, r *http.Request) {
	h.sweeper.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sweeper.IsRunning()})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
