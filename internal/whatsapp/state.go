// Package whatsapp tracks the connection state of the WhatsApp integration
// by polling the backend status endpoint.
package whatsapp

import (
	"strings"

	"intsync/internal/models"
)

type State string

const (
	StateDisconnected  State = "disconnected"
	StateQR            State = "qr"
	StateAuthenticated State = "authenticated"
	StateActive        State = "active"
)

// FromServer maps the backend state string. Anything unrecognised counts as
// disconnected.
func FromServer(status models.WhatsAppStatus) State {
	switch strings.ToUpper(strings.TrimSpace(status.State)) {
	case models.WhatsAppServerActive:
		return StateActive
	case models.WhatsAppServerAuthenticated:
		return StateAuthenticated
	case models.WhatsAppServerQRReady:
		return StateQR
	default:
		return StateDisconnected
	}
}

func (s State) Connected() bool {
	return s == StateActive || s == StateAuthenticated
}

type NoticeKind string

const (
	NoticeScanQR       NoticeKind = "scan_qr"
	NoticeConnected    NoticeKind = "connected"
	NoticeDisconnected NoticeKind = "disconnected"
)

type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Level   string     `json:"level"`
	Message string     `json:"message"`
}

// Snapshot is the poller state as exposed to handlers and browsers.
type Snapshot struct {
	State      State  `json:"state"`
	QR         string `json:"qr,omitempty"`
	Restarting bool   `json:"restarting"`
	Polling    bool   `json:"polling"`
}

func noticeFor(prev, next State, restarting bool) (Notice, bool) {
	switch {
	case next == StateQR && prev != StateQR:
		return Notice{Kind: NoticeScanQR, Level: "info", Message: "Scan the QR code with WhatsApp to connect"}, true
	case prev == StateQR && next.Connected():
		return Notice{Kind: NoticeConnected, Level: "success", Message: "WhatsApp connected"}, true
	case next == StateDisconnected && prev != StateDisconnected && !restarting:
		return Notice{Kind: NoticeDisconnected, Level: "error", Message: "WhatsApp disconnected"}, true
	}
	return Notice{}, false
}
