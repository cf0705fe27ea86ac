package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"intsync/internal/models"
	"intsync/internal/whatsapp"
)

func whatsappBackend(status string, actionStatus int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/whatsapp/status":
			if status == "" {
				http.Error(w, "down", http.StatusBadGateway)
				return
			}
			_, _ = io.WriteString(w, status)
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/whatsapp/"):
			if actionStatus != http.StatusOK {
				http.Error(w, "down", actionStatus)
				return
			}
			_, _ = io.WriteString(w, `{"success":true,"message":"ok"}`)
		default:
			http.NotFound(w, r)
		}
	}
}

func TestWhatsAppStatusProxy(t *testing.T) {
	srv := newTestServer(t, signedIn(models.RoleAdmin), whatsappBackend(`{"state":"QR_READY","qr":"abc"}`, http.StatusOK))
	resp := srv.do(http.MethodGet, "/api/whatsapp", nil, "sess-1")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var status models.WhatsAppStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.State != "QR_READY" || status.QR != "abc" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestWhatsAppStatusUpstreamFailure(t *testing.T) {
	srv := newTestServer(t, signedIn(models.RoleAdmin), whatsappBackend("", http.StatusOK))
	resp := srv.do(http.MethodGet, "/api/whatsapp", nil, "sess-1")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Code)
	}
	var result models.ActionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Success || result.Message == "" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestWhatsAppRestartAction(t *testing.T) {
	st := signedIn(models.RoleManager)
	srv := newTestServer(t, st, whatsappBackend(`{"state":"DISCONNECTED"}`, http.StatusOK))
	resp := srv.do(http.MethodPost, "/api/whatsapp", map[string]string{"action": "restart"}, "sess-1")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if actions := st.actions(); len(actions) != 1 || actions[0] != "whatsapp.restart" {
		t.Fatalf("unexpected audit %v", actions)
	}

	resp = srv.do(http.MethodGet, "/api/whatsapp/state", nil, "sess-1")
	var snapshot whatsapp.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.State != whatsapp.StateDisconnected || !snapshot.Restarting {
		t.Fatalf("expected restart in flight, got %+v", snapshot)
	}
}

func TestWhatsAppActionUpstreamFailure(t *testing.T) {
	srv := newTestServer(t, signedIn(models.RoleAdmin), whatsappBackend(`{"state":"ACTIVE"}`, http.StatusInternalServerError))
	resp := srv.do(http.MethodPost, "/api/whatsapp", map[string]string{"action": "logout"}, "sess-1")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Code)
	}
	var result models.ActionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Success {
		t.Fatalf("expected success=false")
	}
}

func TestWhatsAppUnknownAction(t *testing.T) {
	srv := newTestServer(t, signedIn(models.RoleAdmin), whatsappBackend(`{"state":"ACTIVE"}`, http.StatusOK))
	resp := srv.do(http.MethodPost, "/api/whatsapp", map[string]string{"action": "reboot"}, "sess-1")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestStaffCannotReachWhatsApp(t *testing.T) {
	srv := newTestServer(t, signedIn(models.RoleStaff), whatsappBackend(`{"state":"ACTIVE"}`, http.StatusOK))
	resp := srv.do(http.MethodGet, "/api/whatsapp", nil, "sess-1")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestWhatsAppPageRenders(t *testing.T) {
	srv := newTestServer(t, signedIn(models.RoleAdmin), whatsappBackend(`{"state":"ACTIVE"}`, http.StatusOK))
	resp := srv.do(http.MethodGet, "/whatsapp", nil, "sess-1")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `id="wa-state"`) {
		t.Fatalf("expected status block in page")
	}
}
