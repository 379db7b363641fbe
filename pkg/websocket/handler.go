package websocket

import (
	"context"
	"net/http"
	"net/url"

	"ridematch/internal/config"
	"ridematch/internal/models"
	"ridematch/internal/utils"
	"ridematch/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	options  ClientOptions
	ctx      context.Context
	logger   *logger.Logger
}

// NewHandler upgrades authenticated requests onto hub. ctx bounds the
// lifetime of every connection's background work.
func NewHandler(ctx context.Context, hub *Hub, cfg *config.WebSocketConfig, log *logger.Logger) *Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}

	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowed, r.Header.Get("Origin"))
			},
		},
		options: ClientOptions{
			WriteWait:      cfg.WriteWait,
			PongWait:       cfg.PongTimeout,
			PingPeriod:     cfg.PingInterval,
			MaxMessageSize: cfg.MaxMessageSize,
			SendBuffer:     cfg.SendBufferSize,
		},
		ctx:    ctx,
		logger: log.WithComponent("websocket"),
	}
}

func originAllowed(allowed map[string]bool, origin string) bool {
	if origin == "" || allowed["*"] {
		return true
	}
	if allowed[origin] {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && allowed[u.Host]
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	value, exists := c.Get(utils.ContextPrincipal)
	if !exists {
		utils.UnauthorizedResponse(c)
		return
	}
	principal, ok := value.(models.Principal)
	if !ok || principal.ID == "" {
		utils.UnauthorizedResponse(c)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).WithUserID(principal.ID).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, principal, h.options)
	if !h.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h.ctx)
}

func (h *Handler) GetHub() *Hub {
	return h.hub
}
