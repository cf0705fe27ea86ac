package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"intsync/internal/models"
	"intsync/internal/store"
)

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListAudit(r.Context(), auditFilterFromRequest(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func auditFilterFromRequest(r *http.Request) store.AuditFilter {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	return store.AuditFilter{
		Action: strings.TrimSpace(query.Get("action")),
		UserID: strings.TrimSpace(query.Get("user_id")),
		Limit:  limit,
	}
}

func (h *Handler) recordAudit(r *http.Request, action, targetType, targetID, detail string) {
	actor := ""
	if info, ok := authFromContext(r.Context()); ok {
		actor = info.User.UserID
	}
	h.recordAuditAs(r, actor, action, targetType, targetID, detail)
}

// recordAuditAs never fails the request; a lost audit row is only logged.
func (h *Handler) recordAuditAs(r *http.Request, actor, action, targetType, targetID, detail string) {
	err := h.store.RecordAudit(r.Context(), models.AuditEntry{
		ActorUserID: actor,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Detail:      detail,
		IP:          clientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("action", action).Str("target_id", targetID).Msg("record audit failed")
	}
}
