package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsHandler_StreamsFilteredEvents(t *testing.T) {
	api := setupAPI(t)
	srv := httptest.NewServer(api.echo)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events?types=signal.created"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return api.bus.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	api.bus.Emit(ctx, &models.Event{Type: models.EventMarketRefreshed, Refresh: &models.RefreshSummary{}})
	api.bus.Emit(ctx, &models.Event{Type: models.EventSignalCreated, Signal: &models.Signal{ID: "s1"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got models.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, models.EventSignalCreated, got.Type)
	require.NotNil(t, got.Signal)
	assert.Equal(t, "s1", got.Signal.ID)
	assert.NotEmpty(t, got.ID)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return api.bus.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
