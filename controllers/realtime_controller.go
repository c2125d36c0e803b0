package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/greenloop/ecotrack/services"
	"github.com/greenloop/ecotrack/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RealtimeController streams session snapshots to websocket clients.
type RealtimeController struct {
	manager *services.Manager
	hub     *services.Hub
}

// NewRealtimeController creates a RealtimeController.
func NewRealtimeController(manager *services.Manager, hub *services.Hub) *RealtimeController {
	return &RealtimeController{manager: manager, hub: hub}
}

// Stream upgrades the request to a websocket, sends the current snapshot,
// and keeps pushing a snapshot after every mutation until the client leaves.
// Browsers cannot set headers on websocket requests, so the JWT is accepted
// from the ?token query parameter as well as the Authorization header.
func (r *RealtimeController) Stream(ctx *gin.Context) {
	token := ctx.Query("token")
	if token == "" {
		header := ctx.GetHeader("Authorization")
		if parts := strings.SplitN(header, " ", 2); len(parts) == 2 {
			token = strings.TrimSpace(parts[1])
		}
	}
	if token == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40150, "missing token")
		return
	}
	if utils.IsTokenBlacklisted(token) {
		utils.Error(ctx, http.StatusUnauthorized, 40151, "token revoked")
		return
	}
	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40152, "invalid token")
		return
	}

	sess, err := r.manager.Attach(ctx.Request.Context(), claims.UserID)
	if err != nil {
		respondStoreError(ctx, 50050, err)
		return
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		utils.Sugar.Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := services.NewWSClient(claims.UserID, conn)
	r.hub.Register(client)
	defer r.hub.Unregister(client)
	go client.WritePump()

	client.Enqueue(sess.Snapshot())

	// Read loop: the stream is push-only, incoming frames are discarded.
	// Returning unregisters the client and closes the connection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
