package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
)

type resolver func(ctx context.Context, token string) (domain.Identity, error)

// WSHandler streams grading events of one assessment over a websocket.
type WSHandler struct {
	core     *app.Core
	resolve  resolver
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(core *app.Core, resolve resolver, log *zap.Logger) *WSHandler {
	return &WSHandler{
		core:    core,
		resolve: resolve,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type subscribedPayload struct {
	AssessmentID string `json:"assessmentId"`
	UserID       string `json:"userId"`
}

// ServeGrading authenticates with the token query parameter, since browsers
// cannot set headers on a websocket handshake. Students only receive events
// about their own submission.
func (h *WSHandler) ServeGrading(c *gin.Context) {
	assessmentID := c.Query("assessmentId")
	token := c.Query("token")
	if token == "" {
		token = bearer(c)
	}
	if assessmentID == "" || token == "" {
		c.JSON(http.StatusBadRequest, errorBody{Error: "missing assessmentId or token"})
		return
	}
	ctx := c.Request.Context()
	actor, err := h.resolve(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorBody{Error: err.Error(), Kind: "auth"})
		return
	}
	if _, err := h.core.Assessments.GetAssessment(ctx, actor, assessmentID); err != nil {
		status, kind := statusOf(err)
		c.JSON(status, errorBody{Error: err.Error(), Kind: kind})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.core.Feed.Subscribe(assessmentID)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write failed", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				if actor.Role == domain.RoleStudent && ev.UserID != actor.UserID {
					continue
				}
				select {
				case send <- outboundMessage[any]{Type: "grading", Payload: ev}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	select {
	case send <- outboundMessage[any]{Type: "subscribed", Payload: subscribedPayload{AssessmentID: assessmentID, UserID: actor.UserID}}:
		answerInbound(conn, send, writerDone)
	case <-writerDone:
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

type frameReader interface {
	ReadJSON(v any) error
}

// answerInbound replies to client frames until the read side fails or the
// writer has stopped.
func answerInbound(r frameReader, send chan<- outboundMessage[any], writerDone <-chan struct{}) {
	for {
		var inbound inboundMessage
		if err := r.ReadJSON(&inbound); err != nil {
			return
		}
		reply := outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		if inbound.Type == "ping" {
			reply = outboundMessage[any]{Type: "pong", Payload: struct{}{}}
		}
		select {
		case send <- reply:
		case <-writerDone:
			return
		}
	}
}
