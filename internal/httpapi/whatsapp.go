package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"intsync/internal/models"
	"intsync/internal/whatsapp"
)

type whatsappActionRequest struct {
	Action string `json:"action"`
}

// handleWhatsAppStatus proxies the backend status endpoint as {state, qr}.
func (h *Handler) handleWhatsAppStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.backend.WhatsAppStatus(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", requestIDFromRequest(r)).Msg("whatsapp status proxy failed")
		writeJSON(w, http.StatusInternalServerError, models.ActionResult{Success: false, Message: "failed to fetch WhatsApp status"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleWhatsAppAction(w http.ResponseWriter, r *http.Request) {
	var req whatsappActionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))
	result, err := h.whatsapp.Action(r.Context(), action)
	if err != nil {
		if errors.Is(err, whatsapp.ErrUnknownAction) {
			writeError(w, r, http.StatusBadRequest, "invalid_action", "action must be logout or restart")
			return
		}
		if result.Message == "" {
			result.Message = "WhatsApp " + action + " failed"
		}
		result.Success = false
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}
	h.recordAudit(r, "whatsapp."+action, "whatsapp", "", "")
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleWhatsAppState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.whatsapp.Poller().Snapshot())
}
