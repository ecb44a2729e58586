package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PhilippeSteinbach/WatchParty/internal/errs"
	"github.com/PhilippeSteinbach/WatchParty/internal/hub"
	"github.com/PhilippeSteinbach/WatchParty/internal/middleware"
	"github.com/PhilippeSteinbach/WatchParty/internal/model"
	"github.com/PhilippeSteinbach/WatchParty/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Inbound message types.
const (
	msgRoomJoin        = "room.join"
	msgRoomLeave       = "room.leave"
	msgRoomPlayer      = "room.player"
	msgRoomSync        = "room.sync"
	msgPositionReport  = "room.position.report"
	msgChat            = "room.chat"
	msgChatReaction    = "room.chat.reaction"
	msgChatHistory     = "room.chat.history"
	msgPlaylistFetch   = "room.playlist"
	msgPlaylistAdd     = "room.playlist.add"
	msgPlaylistAddBulk = "room.playlist.add-bulk"
	msgPlaylistPlayNow = "room.playlist.playNow"
	msgPlaylistRemove  = "room.playlist.remove"
	msgPlaylistNext    = "room.playlist.next"
	msgPlaylistMode    = "room.playlist.mode"
	msgPlaylistReorder = "room.playlist.reorder"
	msgWebRTCOffer     = "room.webrtc.offer"
	msgWebRTCAnswer    = "room.webrtc.answer"
	msgWebRTCIce       = "room.webrtc.ice"
	msgCameraState     = "room.webrtc.camera-state"
)

type messageHandler func(ctx context.Context, connectionID string, userID *string, payload json.RawMessage) error

// WSHandler upgrades /ws connections and dispatches inbound frames to the
// room engine.
type WSHandler struct {
	hub      *hub.Hub
	engine   *service.RoomEngine
	relay    *service.WebRTCRelay
	upgrader websocket.Upgrader
	log      *zap.Logger
	maxMsg   int64

	dispatch map[string]messageHandler
}

// NewWSHandler builds the handler and its dispatch table.
func NewWSHandler(h *hub.Hub, engine *service.RoomEngine, relay *service.WebRTCRelay, readBuf, writeBuf int, maxMsg int64, log *zap.Logger) *WSHandler {
	ws := &WSHandler{
		hub:    h,
		engine: engine,
		relay:  relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			// Origin enforcement happens in the CORS middleware; the WS
			// endpoint accepts the upgrade from any origin the router let in.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:    log,
		maxMsg: maxMsg,
	}
	ws.dispatch = map[string]messageHandler{
		msgRoomJoin:        ws.handleJoin,
		msgRoomLeave:       ws.handleLeave,
		msgRoomPlayer:      ws.handlePlayer,
		msgRoomSync:        ws.handleSync,
		msgPositionReport:  ws.handlePositionReport,
		msgChat:            ws.handleChat,
		msgChatReaction:    ws.handleChatReaction,
		msgChatHistory:     ws.handleChatHistory,
		msgPlaylistFetch:   ws.handlePlaylistFetch,
		msgPlaylistAdd:     ws.handlePlaylistAdd,
		msgPlaylistAddBulk: ws.handlePlaylistAddBulk,
		msgPlaylistPlayNow: ws.handlePlayNow,
		msgPlaylistRemove:  ws.handlePlaylistRemove,
		msgPlaylistNext:    ws.handlePlaylistNext,
		msgPlaylistMode:    ws.handlePlaylistMode,
		msgPlaylistReorder: ws.handlePlaylistReorder,
		msgWebRTCOffer:     ws.handleWebRTCOffer,
		msgWebRTCAnswer:    ws.handleWebRTCAnswer,
		msgWebRTCIce:       ws.handleWebRTCIce,
		msgCameraState:     ws.handleCameraState,
	}
	return ws
}

// Handle upgrades the request and runs the connection until it closes.
func (ws *WSHandler) Handle(c *gin.Context) {
	userID := middleware.UserID(c)

	conn, err := ws.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		ws.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connectionID := uuid.NewString()
	client, cleanup := ws.hub.Register(connectionID, conn)

	var leaveOnce sync.Once
	leave := func() {
		leaveOnce.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ws.engine.Leave(ctx, connectionID); err != nil {
				ws.log.Warn("leave on disconnect failed",
					zap.String("connection_id", connectionID), zap.Error(err))
			}
		})
	}

	go ws.writePump(client)

	defer func() {
		leave()
		cleanup()
		conn.Close()
	}()

	conn.SetReadLimit(ws.maxMsg)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Warn("websocket read error",
					zap.String("connection_id", connectionID), zap.Error(err))
			}
			return
		}

		var frame model.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			ws.sendError(connectionID, "malformed message")
			continue
		}

		// An explicit room.leave keeps the socket open so the client can join
		// another room; Leave is idempotent either way.
		ws.handleFrame(c.Request.Context(), connectionID, userID, frame)
	}
}

// handleFrame dispatches one frame, recovering from handler panics so a
// single bad message cannot take the connection down with a stack trace.
func (ws *WSHandler) handleFrame(ctx context.Context, connectionID string, userID *string, frame model.InboundFrame) {
	defer func() {
		if r := recover(); r != nil {
			ws.log.Error("panic handling message",
				zap.String("connection_id", connectionID),
				zap.String("type", frame.Type),
				zap.Any("panic", r))
			ws.sendError(connectionID, "internal error")
		}
	}()

	fn, ok := ws.dispatch[frame.Type]
	if !ok {
		ws.sendError(connectionID, fmt.Sprintf("unknown message type %q", frame.Type))
		return
	}
	if err := fn(ctx, connectionID, userID, frame.Payload); err != nil {
		ws.sendError(connectionID, errorText(err))
	}
}

func (ws *WSHandler) writePump(client *hub.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := client.Conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ws *WSHandler) sendError(connectionID, message string) {
	ws.hub.SendToConnection(connectionID, hub.QueueErrors, model.ErrorMessage{Error: message})
}

// errorText maps engine errors to client-facing strings. Unexpected errors
// are not leaked verbatim.
func errorText(err error) string {
	switch {
	case errors.Is(err, errs.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, errs.ErrParticipantNotFound):
		return "You are not in a room"
	case errors.Is(err, errs.ErrMessageNotFound):
		return "Message not found"
	case errors.Is(err, errs.ErrPlaylistItemNotFound):
		return "Playlist item not found"
	case errors.Is(err, errs.ErrRateLimited):
		return "You are sending messages too quickly"
	case errors.Is(err, errs.ErrValidation):
		return err.Error()
	default:
		return "Internal error"
	}
}

func (ws *WSHandler) handleJoin(ctx context.Context, connectionID string, userID *string, payload json.RawMessage) error {
	var msg model.JoinRoomMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid join payload", errs.ErrValidation)
	}
	return ws.engine.Join(ctx, connectionID, userID, msg)
}

func (ws *WSHandler) handleLeave(ctx context.Context, connectionID string, _ *string, _ json.RawMessage) error {
	return ws.engine.Leave(ctx, connectionID)
}

func (ws *WSHandler) handlePlayer(ctx context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.PlayerStateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid player payload", errs.ErrValidation)
	}
	return ws.engine.PlayerAction(ctx, connectionID, msg)
}

func (ws *WSHandler) handleSync(ctx context.Context, connectionID string, _ *string, _ json.RawMessage) error {
	return ws.engine.SyncState(ctx, connectionID)
}

func (ws *WSHandler) handlePositionReport(ctx context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.PositionReportMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid position payload", errs.ErrValidation)
	}
	return ws.engine.ReportPosition(ctx, connectionID, msg)
}

func (ws *WSHandler) handleChat(ctx context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.ChatMessageRequest
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid chat payload", errs.ErrValidation)
	}
	return ws.engine.Chat(ctx, connectionID, msg)
}

func (ws *WSHandler) handleChatReaction(ctx context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.ChatReactionRequest
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid reaction payload", errs.ErrValidation)
	}
	return ws.engine.ChatReaction(ctx, connectionID, msg)
}

func (ws *WSHandler) handleChatHistory(ctx context.Context, connectionID string, _ *string, _ json.RawMessage) error {
	return ws.engine.ChatHistory(ctx, connectionID)
}

func (ws *WSHandler) handlePlaylistFetch(ctx context.Context, connectionID string, _ *string, _ json.RawMessage) error {
	return ws.engine.PlaylistFetch(ctx, connectionID)
}

func (ws *WSHandler) handlePlaylistAdd(ctx context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.AddPlaylistItemRequest
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid playlist payload", errs.ErrValidation)
	}
	return ws.engine.PlaylistAdd(ctx, connectionID, msg)
}

func (ws *WSHandler) handlePlaylistAddBulk(ctx context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.BulkAddPlaylistRequest
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid playlist payload", errs.ErrValidation)
	}
	return ws.engine.PlaylistAddBulk(ctx, connectionID, msg)
}

func (ws *WSHandler) handlePlayNow(ctx context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.AddPlaylistItemRequest
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid playlist payload", errs.ErrValidation)
	}
	return ws.engine.PlayNow(ctx, connectionID, msg)
}

func (ws *WSHandler) handlePlaylistRemove(ctx context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.RemovePlaylistItemRequest
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid playlist payload", errs.ErrValidation)
	}
	return ws.engine.PlaylistRemove(ctx, connectionID, msg)
}

func (ws *WSHandler) handlePlaylistNext(ctx context.Context, connectionID string, _ *string, _ json.RawMessage) error {
	return ws.engine.PlaylistNext(ctx, connectionID)
}

func (ws *WSHandler) handlePlaylistMode(ctx context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.PlaybackModeRequest
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid mode payload", errs.ErrValidation)
	}
	return ws.engine.PlaylistMode(ctx, connectionID, msg)
}

func (ws *WSHandler) handlePlaylistReorder(ctx context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.ReorderPlaylistRequest
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid reorder payload", errs.ErrValidation)
	}
	return ws.engine.PlaylistReorder(ctx, connectionID, msg)
}

func (ws *WSHandler) handleWebRTCOffer(_ context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.WebRTCOfferMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid offer payload", errs.ErrValidation)
	}
	ws.relay.Offer(connectionID, msg.TargetConnectionID, msg.SDP)
	return nil
}

func (ws *WSHandler) handleWebRTCAnswer(_ context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.WebRTCAnswerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid answer payload", errs.ErrValidation)
	}
	ws.relay.Answer(connectionID, msg.TargetConnectionID, msg.SDP)
	return nil
}

func (ws *WSHandler) handleWebRTCIce(_ context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.WebRTCIceCandidateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid ice payload", errs.ErrValidation)
	}
	ws.relay.IceCandidate(connectionID, msg.TargetConnectionID, msg.Candidate, msg.SdpMid, msg.SdpMLineIndex)
	return nil
}

func (ws *WSHandler) handleCameraState(ctx context.Context, connectionID string, _ *string, payload json.RawMessage) error {
	var msg model.CameraStateRequest
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: invalid camera payload", errs.ErrValidation)
	}
	return ws.engine.CameraState(ctx, connectionID, msg)
}
