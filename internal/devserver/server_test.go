package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketlink/internal/adapter/rest"
	"marketlink/internal/domain/entity"
	"marketlink/internal/infrastructure/channel"
	"marketlink/internal/usecase"
)

// engineFor wires a real sync engine (REST client + websocket channels)
// against a running devserver, the way cmd/chatsync does.
func engineFor(t *testing.T, server *httptest.Server, userID string) (*usecase.ThreadList, usecase.ChannelFactory, *rest.Client) {
	wsBase := "ws" + strings.TrimPrefix(server.URL, "http")

	backend := rest.NewClient(server.URL, userID, &http.Client{Timeout: 2 * time.Second})
	factory := func(scope string, onEvent func(entity.Event), onStatus func(channel.Status)) usecase.Channel {
		url := wsBase + "/v1/ws"
		if scope != "" {
			url = wsBase + "/v1/ws/threads/" + scope
		}
		return channel.New(channel.Config{
			URL:           url,
			Token:         userID,
			OnEvent:       onEvent,
			OnStatus:      onStatus,
			MinBackoff:    10 * time.Millisecond,
			MaxBackoff:    50 * time.Millisecond,
			BackoffFactor: 2,
		})
	}

	list := usecase.NewThreadList(backend, factory)
	t.Cleanup(list.Stop)
	return list, factory, backend
}

func TestRESTContract(t *testing.T) {
	store := NewStore()
	th := store.CreateThread("buyer-1", "supplier-1", "product-1")
	store.AppendMessage("supplier-1", th.ID, "welcome")

	server := httptest.NewServer(New(store).Handler())
	defer server.Close()

	backend := rest.NewClient(server.URL, "buyer-1", nil)
	ctx := context.Background()

	threads, err := backend.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, th.ID, threads[0].ID)
	assert.Equal(t, 1, threads[0].UnreadCount)

	total, err := backend.UnreadTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	msgs, hasMore, err := backend.ListMessages(ctx, th.ID, 1, 20)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.False(t, hasMore)
	assert.Equal(t, "welcome", msgs[0].Content)

	sent, err := backend.SendMessage(ctx, th.ID, "thanks!")
	require.NoError(t, err)
	assert.NotEmpty(t, sent.ID)

	require.NoError(t, backend.MarkThreadRead(ctx, th.ID))
	total, err = backend.UnreadTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestRESTRequiresAuth(t *testing.T) {
	server := httptest.NewServer(New(NewStore()).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/threads")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendMessageValidation(t *testing.T) {
	store := NewStore()
	th := store.CreateThread("buyer-1", "supplier-1", "")
	server := httptest.NewServer(New(store).Handler())
	defer server.Close()

	backend := rest.NewClient(server.URL, "buyer-1", nil)
	_, err := backend.SendMessage(context.Background(), th.ID, "")
	assert.Error(t, err)
}

func TestEngineEndToEnd(t *testing.T) {
	store := NewStore()
	th := store.CreateThread("buyer-1", "supplier-1", "product-1")
	store.AppendMessage("supplier-1", th.ID, "hello buyer")
	store.AppendMessage("supplier-1", th.ID, "still interested?")

	server := httptest.NewServer(New(store).Handler())
	defer server.Close()

	list, factory, backend := engineFor(t, server, "buyer-1")
	ctx := context.Background()

	list.Start()
	require.NoError(t, list.RefreshThreads(ctx))
	require.NoError(t, list.RefreshUnreadCount(ctx))
	assert.Equal(t, 2, list.UnreadTotal())

	require.Eventually(t, func() bool {
		return list.Status() == channel.StatusConnected
	}, 2*time.Second, 10*time.Millisecond)

	// Opening the conversation loads history and, once its channel comes up,
	// marks the thread read locally and on the server.
	session := usecase.NewSession(th.ID, backend, factory, list, 20)
	require.NoError(t, session.Open(ctx))
	defer session.Close()
	assert.Len(t, session.Messages(), 2)

	require.Eventually(t, func() bool {
		return session.Status() == channel.StatusConnected
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return list.UnreadTotal() == 0 && store.UnreadTotalFor("buyer-1") == 0
	}, 2*time.Second, 10*time.Millisecond)

	// The supplier replies over REST: the buyer's thread channel streams the
	// message into the session and the list channel bumps the unread total.
	supplier := rest.NewClient(server.URL, "supplier-1", nil)
	_, err := supplier.SendMessage(ctx, th.ID, "yes, shipping this week")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs := session.Messages()
		return len(msgs) == 3 && msgs[2].Content == "yes, shipping this week"
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return list.UnreadTotal() == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := list.Thread(th.ID)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "yes, shipping this week", got.LastMessage.Content)

	// The buyer answers over the live channel; the server-assigned message
	// comes back as an echo and lands in the window exactly once.
	require.NoError(t, session.SendMessage(ctx, "great, thank you"))
	require.Eventually(t, func() bool {
		msgs := session.Messages()
		return len(msgs) == 4 && msgs[3].Content == "great, thank you"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, store.UnreadTotalFor("supplier-1"))
}

func TestThreadChannelRejectsNonParticipant(t *testing.T) {
	store := NewStore()
	th := store.CreateThread("buyer-1", "supplier-1", "")
	server := httptest.NewServer(New(store).Handler())
	defer server.Close()

	url := server.URL + "/v1/ws/threads/" + th.ID + "?token=stranger"
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
