package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway authenticates websocket attempts and hands the socket to a
// session. Rejection happens before the upgrade so clients get a plain 401.
type Gateway struct {
	baseCtx    context.Context
	auth       services.IAuthService
	chat       services.IChatService
	stats      *observability.ChatStats
	log        *slog.Logger
	sendBuffer int
}

// NewGateway binds the application context sessions run under. The request
// context cannot serve: it is canceled as soon as the handler returns, while
// the hijacked socket lives on.
func NewGateway(ctx context.Context, auth services.IAuthService, chat services.IChatService,
	stats *observability.ChatStats, log *slog.Logger, sendBuffer int) *Gateway {
	return &Gateway{
		baseCtx:    ctx,
		auth:       auth,
		chat:       chat,
		stats:      stats,
		log:        log,
		sendBuffer: sendBuffer,
	}
}

// Handle serves GET /ws. The token travels in the query string because
// browser websocket clients cannot set headers, but Authorization: Bearer
// works too for non-browser clients.
func (g *Gateway) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}

	claims, err := g.auth.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "authentication failed"})
		return
	}

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	conn := domain.NewConnection(claims.Username, claims.AvatarURL)
	wsc := newWSConn(socket, g.sendBuffer, g.log.With("connection", conn.ID))
	g.stats.IncrConnectionsOpened()
	g.log.Info("Connection opened", "connection", conn.ID, "username", conn.Username)

	session := NewSession(conn, wsc, g.chat, g.log, func() {
		g.stats.IncrConnectionsClosed()
		g.log.Info("Connection closed", "connection", conn.ID, "username", conn.Username)
	})

	go wsc.writePump()
	go session.readPump(g.baseCtx)
}
