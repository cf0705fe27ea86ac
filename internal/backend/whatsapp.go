package backend

import (
	"context"
	"fmt"
	"net/http"

	"intsync/internal/models"
)

const (
	WhatsAppLogout  = "logout"
	WhatsAppRestart = "restart"
)

// WhatsAppStatus is bounded by its own 5s deadline on top of the caller's
// context; the integration service is known to hang while the session boots.
func (c *Client) WhatsAppStatus(ctx context.Context) (models.WhatsAppStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	var status models.WhatsAppStatus
	if err := c.do(ctx, http.MethodGet, "/whatsapp/status", nil, nil, &status); err != nil {
		return models.WhatsAppStatus{}, err
	}
	return status, nil
}

func (c *Client) WhatsAppAction(ctx context.Context, action string) (models.ActionResult, error) {
	if action != WhatsAppLogout && action != WhatsAppRestart {
		return models.ActionResult{}, fmt.Errorf("unsupported whatsapp action %q", action)
	}
	result := models.ActionResult{Success: true}
	if err := c.do(ctx, http.MethodPost, "/whatsapp/"+action, nil, nil, &result); err != nil {
		return models.ActionResult{}, err
	}
	if result.Message == "" {
		result.Message = "whatsapp " + action + " requested"
	}
	return result, nil
}

func (c *Client) WhatsAppLogout(ctx context.Context) error {
	_, err := c.WhatsAppAction(ctx, WhatsAppLogout)
	return err
}

func (c *Client) WhatsAppRestart(ctx context.Context) error {
	_, err := c.WhatsAppAction(ctx, WhatsAppRestart)
	return err
}
