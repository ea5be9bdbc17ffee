package api

import (
	"net/http"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/events"
	applogger "MarketPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	wsWriteWait  = 2 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsReadLimit  = 4 << 10
)

// EventsHandler streams bus events to websocket clients. Clients may narrow
// the stream with ?types=alert.triggered,signal.created.
type EventsHandler struct {
	bus      *events.Bus
	upgrader websocket.Upgrader
	logger   *applogger.Logger
}

func NewEventsHandler(bus *events.Bus, l *applogger.Logger) *EventsHandler {
	return &EventsHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: l.With(applogger.Component("ws")),
	}
}

func (h *EventsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/events", h.Stream)
}

func (h *EventsHandler) Stream(c echo.Context) error {
	types := parseTypes(c.QueryParam("types"))

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already wrote the error response
		h.logger.Debug("websocket upgrade failed", applogger.Error(err))
		return nil
	}

	ch, cancel := h.bus.Subscribe(types...)
	defer cancel()

	h.logger.Debug("websocket client connected", applogger.String("remote", c.RealIP()))
	closed := make(chan struct{})
	go h.readPump(conn, closed)
	h.writePump(conn, ch, closed)
	return nil
}

// readPump only watches for pongs and close frames.
func (h *EventsHandler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", applogger.Error(err))
			}
			return
		}
	}
}

func (h *EventsHandler) writePump(conn *websocket.Conn, ch <-chan models.Event, closed <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-closed:
			return
		case e, ok := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				h.logger.Debug("websocket write failed", applogger.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseTypes(raw string) []models.EventType {
	var out []models.EventType
	for _, p := range strings.Split(raw, ",") {
		switch t := models.EventType(strings.TrimSpace(p)); t {
		case models.EventAlertTriggered, models.EventSignalCreated, models.EventMarketRefreshed:
			out = append(out, t)
		}
	}
	return out
}
