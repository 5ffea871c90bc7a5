package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/placipy/assessment-backend/internal/middleware"
	"github.com/placipy/assessment-backend/internal/service"
	ws "github.com/placipy/assessment-backend/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams catalog change events over WebSocket, fanned out from
// the Redis pub/sub channel the assessment service publishes to.
type WSHandler struct {
	rdb      *redis.Client
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:      rdb,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// CatalogStream godoc
// WS /ws/v1/catalog/stream?token=...
// Upgrades to WebSocket and relays catalog change events as they happen.
// The client may send a subscribe action to narrow the stream to one scope.
func (h *WSHandler) CatalogStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("email", claims.Email).Logger()
	wsLog.Info().Msg("Catalog stream opened")

	sub := h.rdb.Subscribe(c.Request.Context(), service.CatalogEventsChannel)
	defer sub.Close()

	// Both the read loop and the relay loop below write to the connection,
	// so every write goes through the serializing sender.
	sender := ws.NewSender(conn)

	// scopeFilter is written by the read loop and read by the relay loop.
	scopeFilter := make(chan string, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var env ws.RequestEnvelope
			raw, err := readMessage(conn)
			if err != nil {
				return
			}
			if err := json.Unmarshal(raw, &env); err != nil {
				sender.SendError("malformed message")
				continue
			}

			switch env.Action {
			case ws.ActionPing:
				sender.Send(ws.PongResponse{Event: ws.EventPong})
			case ws.ActionSubscribe:
				var req ws.SubscribeRequest
				if err := json.Unmarshal(raw, &req); err != nil {
					sender.SendError("malformed subscribe")
					continue
				}
				select {
				case scopeFilter <- req.Scope:
				default:
				}
				sender.Send(ws.SubscribedResponse{Event: ws.EventSubscribed, Scope: req.Scope})
			default:
				sender.SendError("unknown action")
			}
		}
	}()

	scope := ""
	events := sub.Channel()
	for {
		select {
		case <-done:
			wsLog.Info().Msg("Catalog stream closed")
			return
		case s := <-scopeFilter:
			scope = s
		case msg, ok := <-events:
			if !ok {
				return
			}
			var ev service.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				wsLog.Warn().Err(err).Msg("Undecodable catalog event")
				continue
			}
			if scope != "" && ev.Scope != scope {
				continue
			}
			if err := sender.Send(ws.ChangeNotification{
				Event:        ws.EventChange,
				Type:         ev.Type,
				AssessmentID: ev.AssessmentID,
				Scope:        ev.Scope,
				At:           ev.At,
			}); err != nil {
				wsLog.Info().Err(err).Msg("Catalog stream write failed, closing")
				return
			}
		}
	}
}

func readMessage(conn *websocket.Conn) ([]byte, error) {
	_, raw, err := conn.ReadMessage()
	return raw, err
}
