package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"intsync/internal/models"
)

func (c *Client) ListTickets(ctx context.Context, filter models.TicketFilter) (models.TicketPage, error) {
	query := url.Values{}
	if filter.Page > 0 {
		query.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	setIf(query, "status", filter.Status)
	setIf(query, "customer_name", filter.CustomerName)
	setIf(query, "ticket_number", filter.TicketNumber)
	setIf(query, "current_step", filter.CurrentStep)
	setIf(query, "start_date", filter.StartDate)
	setIf(query, "end_date", filter.EndDate)

	var page models.TicketPage
	if err := c.do(ctx, http.MethodGet, "/tickets", query, nil, &page); err != nil {
		return models.TicketPage{}, err
	}
	for i := range page.Tickets {
		page.Tickets[i].Normalize()
	}
	if page.CurrentPage == 0 {
		page.CurrentPage = max(filter.Page, 1)
	}
	return page, nil
}

func (c *Client) GetTicket(ctx context.Context, id string) (models.Ticket, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/ticket/"+escape(id), nil, nil, &raw); err != nil {
		return models.Ticket{}, err
	}
	var ticket models.Ticket
	if err := unwrap(raw, &ticket, "ticket"); err != nil {
		return models.Ticket{}, err
	}
	ticket.Normalize()
	return ticket, nil
}

func (c *Client) CreateTicket(ctx context.Context, input models.CreateTicketInput) (models.Ticket, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/ticket", nil, input, &raw); err != nil {
		return models.Ticket{}, err
	}
	var ticket models.Ticket
	if err := unwrap(raw, &ticket, "ticket"); err != nil {
		return models.Ticket{}, err
	}
	ticket.Normalize()
	return ticket, nil
}

func (c *Client) DeleteTicket(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/ticket/"+escape(id), nil, nil, nil)
}

func (c *Client) UpdateNextStep(ctx context.Context, update models.StepUpdate) error {
	return c.do(ctx, http.MethodPut, "/ticket/update_next_step/", nil, update, nil)
}

func (c *Client) UpdateSpecificStep(ctx context.Context, update models.StepUpdate) error {
	return c.do(ctx, http.MethodPut, "/ticket/update_specific_step/", nil, update, nil)
}

func setIf(query url.Values, key, value string) {
	if value != "" {
		query.Set(key, value)
	}
}
