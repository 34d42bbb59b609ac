package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/usecase"
)

const (
	streamPollInterval = 500 * time.Millisecond
	streamWriteTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams job snapshots until the job reaches a terminal state.
type WebSocketHandler struct {
	getJobUC *usecase.GetJobUsecase
	interval time.Duration
	logger   *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(getJobUC *usecase.GetJobUsecase, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		getJobUC: getJobUC,
		interval: streamPollInterval,
		logger:   logger,
	}
}

// Stream handles GET /api/v1/jobs/:id/stream (WebSocket upgrade). A snapshot is sent
// whenever status or progress changes.
func (h *WebSocketHandler) Stream(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	// Resolve the job before upgrading so an unknown id is a plain 404.
	job, err := h.getJobUC.Execute(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "Stream job", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.With(zap.String("job_id", id.String()))
	log.Debug("WebSocket connection opened")

	ctx := c.Request.Context()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last *domain.Job
	for {
		if last == nil || job.Status != last.Status || job.Progress != last.Progress {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(job); err != nil {
				log.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
				return
			}
			last = job
		}

		if job.Status.IsTerminal() {
			log.Debug("Job reached terminal state, closing WebSocket")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status)),
				time.Now().Add(time.Second))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		job, err = h.getJobUC.Execute(ctx, id)
		if err != nil {
			if !errors.Is(err, domain.ErrJobNotFound) {
				log.Warn("WebSocket poll failed", zap.Error(err))
			}
			_ = conn.WriteJSON(gin.H{"error": err.Error()})
			return
		}
	}
}
