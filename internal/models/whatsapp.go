package models

// WhatsAppStatus is the payload of the backend status endpoint.
type WhatsAppStatus struct {
	State string `json:"state"`
	QR    string `json:"qr,omitempty"`
}

const (
	WhatsAppServerDisconnected  = "DISCONNECTED"
	WhatsAppServerQRReady       = "QR_READY"
	WhatsAppServerAuthenticated = "AUTHENTICATED"
	WhatsAppServerActive        = "ACTIVE"
)

type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
