package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intsync/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := New(Options{BaseURL: server.URL + "/"})
	t.Cleanup(client.Close)
	return client
}

func TestListTicketsSendsFilter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tickets", r.URL.Path)
		query := r.URL.Query()
		assert.Equal(t, "2", query.Get("page"))
		assert.Equal(t, "10", query.Get("limit"))
		assert.Equal(t, "Acme", query.Get("customer_name"))
		assert.False(t, query.Has("status"))
		_, _ = io.WriteString(w, `{"tickets":[{"id":"t1","ticket_number":"TCK-1","current_step":"Step 2"}],"total_tickets":11,"current_page":2,"total_pages":2,"has_next":false}`)
	})

	page, err := client.ListTickets(context.Background(), models.TicketFilter{Page: 2, Limit: 10, CustomerName: "Acme"})
	require.NoError(t, err)
	require.Len(t, page.Tickets, 1)
	assert.Equal(t, models.TicketStatusOpen, page.Tickets[0].Status)
	assert.NotNil(t, page.Tickets[0].Steps)
	assert.Equal(t, 11, page.TotalTickets)
}

func TestGetTicketAcceptsEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ticket/t%201", r.URL.EscapedPath())
		_, _ = io.WriteString(w, `{"ticket":{"id":"t 1","status":"closed","steps":{"Step 1":{"text":"hello"}},"current_step":"Step 9"}}`)
	})

	ticket, err := client.GetTicket(context.Background(), "t 1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusClosed, ticket.Status)
	assert.Equal(t, "hello", ticket.Steps["Step 1"].Text())
}

func TestNotFoundIsTyped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such ticket", http.StatusNotFound)
	})

	_, err := client.GetTicket(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "no such ticket", statusErr.Body)
	assert.Equal(t, http.MethodGet, statusErr.Method)
}

func TestUpdateNextStepPayload(t *testing.T) {
	var got models.StepUpdate
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/ticket/update_next_step/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	err := client.UpdateNextStep(context.Background(), models.StepUpdate{
		TicketNumber: "TCK-9",
		StepInfo:     models.StepData{"list": []string{"v1", "v2"}},
		StepNumber:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, "TCK-9", got.TicketNumber)
	assert.Equal(t, 5, got.StepNumber)
	assert.Equal(t, []string{"v1", "v2"}, got.StepInfo.List())
}

func TestListUnwrapsCollections(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/vendors":
			_, _ = io.WriteString(w, `{"vendors":[{"id":"v1","name":"Weaver","product_types":["denim"]}]}`)
		case "/people":
			_, _ = io.WriteString(w, `[{"id":"p1","name":"Ana"}]`)
		case "/attributes":
			_, _ = io.WriteString(w, `null`)
		}
	})

	vendors, err := List[models.Vendor](context.Background(), client, Vendors)
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, []string{"denim"}, vendors[0].ProductTypes)

	people, err := List[models.Person](context.Background(), client, People)
	require.NoError(t, err)
	assert.Equal(t, "Ana", people[0].Name)

	attributes, err := List[models.Attribute](context.Background(), client, Attributes)
	require.NoError(t, err)
	assert.NotNil(t, attributes)
	assert.Empty(t, attributes)
}

func TestCreateFallsBackToSubmittedRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attributes", r.URL.Path)
		_, _ = io.WriteString(w, `"created"`)
	})

	created, err := Create(context.Background(), client, Attributes, models.Attribute{Key: "fiber", Values: []string{"silk"}})
	require.NoError(t, err)
	assert.Equal(t, "fiber", created.Key)
}

func TestWhatsAppEndpoints(t *testing.T) {
	var actions []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/whatsapp/status":
			_, _ = io.WriteString(w, `{"state":"QR_READY","qr":"data:image/png;base64,AAA"}`)
		case r.Method == http.MethodPost:
			actions = append(actions, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	})

	status, err := client.WhatsAppStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.WhatsAppServerQRReady, status.State)
	assert.NotEmpty(t, status.QR)

	result, err := client.WhatsAppAction(context.Background(), WhatsAppRestart)
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NoError(t, client.WhatsAppLogout(context.Background()))
	assert.Equal(t, []string{"/whatsapp/restart", "/whatsapp/logout"}, actions)

	_, err = client.WhatsAppAction(context.Background(), "reboot")
	assert.Error(t, err)
}

func TestUpstreamFailureOnAction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.WhatsAppAction(context.Background(), WhatsAppLogout)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.False(t, errors.Is(err, ErrNotFound))
}
