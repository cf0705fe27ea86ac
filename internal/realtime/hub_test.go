package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intsync/internal/models"
	"intsync/internal/notify"
	"intsync/internal/whatsapp"
)

func readMessage(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case raw := <-client.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	default:
		t.Fatalf("expected a message for client %s", client.ID)
		return Message{}
	}
}

func TestPublishReachesOnlySubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a := NewClient("a", "u1", models.RoleAdmin)
	b := NewClient("b", "u2", models.RoleStaff)
	hub.Register(a)
	hub.Register(b)

	require.True(t, hub.Subscribe(a, TopicWhatsApp))
	require.False(t, hub.Subscribe(a, TopicWhatsApp))
	require.True(t, hub.Subscribe(b, TicketTopic("t-1")))

	hub.Publish(TopicWhatsApp, "state", whatsapp.Snapshot{State: whatsapp.StateActive})

	msg := readMessage(t, a)
	assert.Equal(t, TopicWhatsApp, msg.Topic)
	assert.Equal(t, "state", msg.Type)
	assert.Empty(t, b.Send)
	assert.Equal(t, 1, hub.Subscribers(TopicWhatsApp))
}

func TestPublishDropsWhenClientIsSlow(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient("slow", "u1", models.RoleAdmin)
	hub.Register(client)
	hub.Subscribe(client, TopicTickets)

	for i := 0; i < cap(client.Send)+5; i++ {
		hub.Publish(TopicTickets, "ticket", i)
	}
	assert.Len(t, client.Send, cap(client.Send))
}

func TestTopicHooksTrackMembership(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	joins, leaves := 0, 0
	hub.OnTopic(TopicWhatsApp, TopicHooks{
		Join:  func(*Client) { joins++ },
		Leave: func(*Client) { leaves++ },
	})

	a := NewClient("a", "u1", models.RoleAdmin)
	b := NewClient("b", "u2", models.RoleManager)
	hub.Register(a)
	hub.Register(b)
	hub.Subscribe(a, TopicWhatsApp)
	hub.Subscribe(b, TopicWhatsApp)
	hub.Subscribe(b, TopicTickets)
	assert.Equal(t, 2, joins)

	hub.Unsubscribe(a, TopicWhatsApp)
	hub.Unsubscribe(a, TopicWhatsApp)
	assert.Equal(t, 1, leaves)

	hub.Unregister(b)
	hub.Unregister(b)
	assert.Equal(t, 2, leaves)
	assert.Equal(t, 0, hub.Subscribers(TopicWhatsApp))

	_, open := <-b.Send
	assert.False(t, open)
}

func TestSubscribeRacingUnregisterPairsHooks(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var joins, leaves atomic.Int64
	hub.OnTopic(TopicWhatsApp, TopicHooks{
		Join:  func(*Client) { joins.Add(1) },
		Leave: func(*Client) { leaves.Add(1) },
	})

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		client := NewClient(fmt.Sprintf("c%d", i), "u1", models.RoleAdmin)
		hub.Register(client)
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Subscribe(client, TopicWhatsApp)
		}()
		go func() {
			defer wg.Done()
			hub.Unregister(client)
		}()
	}
	wg.Wait()

	assert.Equal(t, joins.Load(), leaves.Load())
	assert.Equal(t, 0, hub.Subscribers(TopicWhatsApp))
}

func TestSubscribeAfterUnregisterRunsNoHook(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	joins := 0
	hub.OnTopic(TopicWhatsApp, TopicHooks{Join: func(*Client) { joins++ }})

	client := NewClient("a", "u1", models.RoleAdmin)
	hub.Register(client)
	hub.Unregister(client)
	assert.False(t, hub.Subscribe(client, TopicWhatsApp))
	assert.Equal(t, 0, joins)
}

func TestSubscribeRequiresRegistration(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient("ghost", "u1", models.RoleAdmin)
	assert.False(t, hub.Subscribe(client, TopicTickets))

	hub.SendTo(client, TopicTickets, "ticket", nil)
	assert.Empty(t, client.Send)
}

func TestAttachForwardsBusEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	bus := notify.NewBus(zerolog.Nop())
	hub.Attach(bus)

	watcherClient := NewClient("w", "u1", models.RoleAdmin)
	ticketClient := NewClient("t", "u2", models.RoleStaff)
	hub.Register(watcherClient)
	hub.Register(ticketClient)
	hub.Subscribe(watcherClient, TopicWhatsApp)
	hub.Subscribe(ticketClient, TicketTopic("t-7"))

	bus.Notice(whatsapp.Notice{Kind: whatsapp.NoticeConnected, Message: "connected"})
	bus.TicketChanged("advanced", models.Ticket{ID: "t-7", CurrentStep: "Step 3"})

	msg := readMessage(t, watcherClient)
	assert.Equal(t, "notice", msg.Type)
	msg = readMessage(t, ticketClient)
	assert.Equal(t, TicketTopic("t-7"), msg.Topic)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "advanced", data["action"])
}

func TestParseSubscribe(t *testing.T) {
	cases := []struct {
		raw   string
		valid bool
		topic string
	}{
		{`{"action":"subscribe","topic":"whatsapp"}`, true, TopicWhatsApp},
		{`{"action":"unsubscribe","topic":" tickets "}`, true, TopicTickets},
		{`{"action":"subscribe","topic":"ticket:42"}`, true, "ticket:42"},
		{`{"action":"subscribe","topic":"ticket:"}`, false, ""},
		{`{"action":"subscribe","topic":"admin"}`, false, ""},
		{`{"action":"publish","topic":"whatsapp"}`, false, ""},
		{`not json`, false, ""},
	}
	for _, tt := range cases {
		msg, ok := ParseSubscribe([]byte(tt.raw))
		if ok != tt.valid {
			t.Fatalf("ParseSubscribe(%s) ok=%v, want %v", tt.raw, ok, tt.valid)
		}
		if ok && msg.Topic != tt.topic {
			t.Fatalf("ParseSubscribe(%s) topic=%q, want %q", tt.raw, msg.Topic, tt.topic)
		}
	}
}
