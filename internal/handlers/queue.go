package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"queuemedix-server/internal/directory"
	"queuemedix-server/internal/queue"
	"queuemedix-server/internal/utils"
)

// QueueHandler serves a hospital's live queue over websocket and as a REST snapshot.
type QueueHandler struct {
	Hub          *queue.Hub
	Projector    queue.Projector
	Dir          *directory.Directory
	SendBuffer   int
	WriteTimeout time.Duration
	Upgrader     websocket.Upgrader
}

// NewQueueHandler creates a new QueueHandler. allowedOrigin is the browser origin permitted
// to open the websocket; "*" allows any.
func NewQueueHandler(hub *queue.Hub, projector queue.Projector, dir *directory.Directory, allowedOrigin string, sendBuffer int, writeTimeout time.Duration) *QueueHandler {
	return &QueueHandler{
		Hub:          hub,
		Projector:    projector,
		Dir:          dir,
		SendBuffer:   sendBuffer,
		WriteTimeout: writeTimeout,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
	}
}

// GetQueue returns the current snapshot of the hospital in the path.
func (h *QueueHandler) GetQueue(c *gin.Context) {
	ctx := c.Request.Context()
	hospitalID := c.Param("id")
	if _, err := h.Dir.GetHospital(ctx, hospitalID); err != nil {
		utils.RespondError(c, err)
		return
	}

	snapshot, err := h.Projector.Project(ctx, hospitalID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Queue fetched successfully", snapshot)
}

// ServeQueue upgrades to a websocket and streams the hospital's queue until the peer
// disconnects. The first frame is the current snapshot.
func (h *QueueHandler) ServeQueue(c *gin.Context) {
	hospitalID := c.Param("hospitalId")
	if _, err := h.Dir.GetHospital(c.Request.Context(), hospitalID); err != nil {
		utils.RespondError(c, err)
		return
	}

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Warn().Err(err).Str("hospital_id", hospitalID).Msg("websocket upgrade failed")
		return
	}

	logger := log.With().Str("hospital_id", hospitalID).Logger()
	ch := queue.NewWSChannel(conn, h.SendBuffer, h.WriteTimeout)
	if err := h.Hub.Subscribe(c.Request.Context(), hospitalID, ch); err != nil {
		logger.Error().Err(err).Msg("queue subscribe failed")
		conn.Close()
		return
	}
	logger.Info().Msg("queue subscriber connected")

	go func() {
		if err := ch.WritePump(); err != nil {
			logger.Debug().Err(err).Msg("queue write failed")
		}
		h.Hub.Drop(ch)
	}()

	if err := ch.ReadPump(); err != nil {
		logger.Debug().Err(err).Msg("queue connection closed unexpectedly")
	}
	h.Hub.Drop(ch)
	logger.Info().Msg("queue subscriber disconnected")
}
