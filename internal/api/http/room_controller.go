package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"streamspace/internal/api/http/converter"
	"streamspace/internal/domain"
	"streamspace/internal/repository"
	"streamspace/internal/service"
	"streamspace/lib/logger/sl"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Large enough for any SDP blob.
	maxMessageSize = 64 * 1024
)

type RoomController struct {
	rooms       service.RoomInteractor
	stunServers []string
	log         *slog.Logger
	upgrader    websocket.Upgrader
}

func NewRoomController(rooms service.RoomInteractor, stunServers []string, log *slog.Logger) *RoomController {
	if log == nil {
		log = slog.Default()
	}
	return &RoomController{
		rooms:       rooms,
		stunServers: stunServers,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxMessageSize,
			WriteBufferSize: maxMessageSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeWS upgrades the connection and runs the signaling session: one read
// loop here, one write pump goroutine draining the connection's event queue.
func (c *RoomController) ServeWS(ctx *gin.Context) {
	email := ctx.Query("email")
	if email == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	ws, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Error("websocket upgrade failed", sl.Err(err))
		return
	}

	conn, err := c.rooms.Connect(context.Background(), email)
	if err != nil {
		_ = ws.WriteJSON(domain.SignalMessage{
			Type: domain.EventError,
			Data: map[string]any{"message": err.Error()},
		})
		ws.Close()
		return
	}

	go c.writePump(ws, conn)
	c.readPump(ws, conn)
}

func (c *RoomController) readPump(ws *websocket.Conn, conn *domain.Conn) {
	defer func() {
		c.rooms.Disconnect(context.Background(), conn)
		conn.Close()
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg domain.SignalMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket read error", slog.String("conn_id", conn.ID), sl.Err(err))
			}
			return
		}
		c.dispatch(conn, &msg)
	}
}

func (c *RoomController) dispatch(conn *domain.Conn, msg *domain.SignalMessage) {
	ctx := context.Background()

	switch msg.Type {
	case domain.SignalJoin:
		c.rooms.Join(ctx, conn, msg.Room, msg.Password)
	case domain.SignalLeaveRoom:
		c.rooms.Leave(ctx, conn, msg.Room)
	case domain.SignalKickUser:
		c.rooms.Kick(ctx, conn, msg.Room, msg.Target)
	case domain.SignalReady:
		c.rooms.Ready(conn, msg.Room)
	case domain.SignalOffer, domain.SignalAnswer, domain.SignalICECandidate:
		c.rooms.ForwardSignal(msg.Type, msg.Payload, conn, msg.Target)
	case domain.SignalStreamStopped:
		c.rooms.StreamStopped(conn, msg.Room)
	case domain.SignalSendMessage:
		c.rooms.SendMessage(ctx, conn, msg.Room, msg.Text, msg.Timestamp)
	case domain.SignalMessageHistory:
		c.rooms.MessageHistory(conn, msg.Room)
	default:
		c.log.Debug("unknown signal type", slog.String("type", msg.Type))
	}
}

func (c *RoomController) writePump(ws *websocket.Conn, conn *domain.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.Events():
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *RoomController) GetRoom(ctx *gin.Context) {
	name := ctx.Param("roomName")
	if name == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "room name is required"})
		return
	}

	record, snap, err := c.rooms.RoomDetails(ctx.Request.Context(), name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(record, snap)})
}

// ICEServers hands clients the STUN configuration they need to build their
// peer connections.
func (c *RoomController) ICEServers(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"ice_servers": []webrtc.ICEServer{
			{URLs: c.stunServers},
		},
	})
}
