package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/swarm"
)

// writeTimeout bounds each websocket write so one stalled client
// cannot wedge its feed goroutine.
const writeTimeout = 10 * time.Second

// EventsHandler streams bus traffic to websocket clients. Each client
// gets its own bus subscription, so a slow client drops its own
// messages without affecting anyone else.
type EventsHandler struct {
	bus    *swarm.Bus
	logger *zap.Logger
}

// NewEventsHandler creates the websocket feed handler.
func NewEventsHandler(bus *swarm.Bus, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{
		bus:    bus,
		logger: logger.With(zap.String("component", "events_handler")),
	}
}

// ServeHTTP upgrades to websocket and streams messages until the
// client disconnects or the bus closes.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "feed terminated")

	sub := h.bus.Subscribe()
	defer sub.Cancel()

	h.logger.Debug("events client connected", zap.String("remote", r.RemoteAddr))

	// Reads are discarded; their only purpose is surfacing client
	// disconnects through ctx cancellation.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "bus closed")
				return
			}
			if err := h.write(ctx, conn, msg); err != nil {
				h.logger.Debug("events client dropped",
					zap.String("remote", r.RemoteAddr),
					zap.Error(err),
				)
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client gone")
			return
		}
	}
}

func (h *EventsHandler) write(ctx context.Context, conn *websocket.Conn, msg swarm.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
