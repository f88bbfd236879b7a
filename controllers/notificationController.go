package controllers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"civicreport-be/feed"
	"civicreport-be/logger"
	"civicreport-be/models"
	"civicreport-be/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	feedPongWait   = 60 * time.Second
	feedPingPeriod = 54 * time.Second
	feedWriteWait  = 10 * time.Second
)

type NotificationController struct {
	notifications *services.NotificationService
	upgrader      websocket.Upgrader
	connections   prometheus.Gauge
	log           *logger.Logger
}

// NewNotificationController accepts websocket origins from allowedOrigins; an
// empty list accepts any origin. connections may be nil.
func NewNotificationController(notifications *services.NotificationService, allowedOrigins []string, connections prometheus.Gauge, log *logger.Logger) *NotificationController {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &NotificationController{
		notifications: notifications,
		connections:   connections,
		log:           log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// List returns the caller's notifications newest first
func (nc *NotificationController) List(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	items, err := nc.notifications.List(ctx, actor.ID)
	if err != nil {
		respondError(c, nc.log, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (nc *NotificationController) MarkRead(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	n, err := nc.notifications.MarkRead(ctx, actor.ID, id)
	if err != nil {
		respondError(c, nc.log, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (nc *NotificationController) MarkAllRead(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	count, err := nc.notifications.MarkAllRead(ctx, actor.ID)
	if err != nil {
		respondError(c, nc.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": count})
}

// feedMessage is every frame the server sends on the feed socket.
type feedMessage struct {
	Type          string                `json:"type"`
	Notifications []models.Notification `json:"notifications,omitempty"`
	Notification  *models.Notification  `json:"notification,omitempty"`
	ID            string                `json:"id,omitempty"`
	Unread        int                   `json:"unread"`
	Error         string                `json:"error,omitempty"`
}

// feedCommand is what clients send: {"type":"mark_read","id":"..."}.
type feedCommand struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Feed upgrades to a websocket that streams the caller's notifications: a
// snapshot first, then insert and update events until the socket closes.
func (nc *NotificationController) Feed(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	f, events, err := nc.notifications.Open(ctx, actor.ID)
	if err != nil {
		respondError(c, nc.log, err)
		return
	}

	conn, err := nc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		nc.log.WithUserID(actor.ID.Hex()).WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if nc.connections != nil {
		nc.connections.Inc()
		defer nc.connections.Dec()
	}

	out := make(chan feedMessage, 16)
	send := func(m feedMessage) {
		select {
		case out <- m:
		case <-ctx.Done():
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		nc.writePump(ctx, cancel, conn, out)
	}()

	// The snapshot is queued before any live event so it is always the first frame.
	send(feedMessage{Type: "snapshot", Notifications: f.Items(), Unread: f.Unread()})
	go func() {
		defer wg.Done()
		f.Run(ctx, events, func(ev feed.Event) {
			n := ev.Notification
			send(feedMessage{Type: string(ev.Kind), Notification: &n, Unread: f.Unread()})
		})
	}()

	nc.readPump(ctx, conn, f, actor.ID, send)

	cancel()
	wg.Wait()
}

func (nc *NotificationController) readPump(ctx context.Context, conn *websocket.Conn, f *feed.Feed, userID primitive.ObjectID, send func(feedMessage)) {
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})

	for {
		var cmd feedCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				nc.log.WithUserID(userID.Hex()).WithError(err).Warn("feed socket error")
			}
			return
		}

		switch cmd.Type {
		case "mark_read":
			id, err := primitive.ObjectIDFromHex(cmd.ID)
			if err != nil {
				send(feedMessage{Type: "error", ID: cmd.ID, Error: "Invalid ID", Unread: f.Unread()})
				continue
			}
			opCtx, cancel := context.WithTimeout(ctx, requestTimeout)
			err = nc.notifications.MarkReadInFeed(opCtx, f, userID, id)
			cancel()
			if err != nil {
				nc.log.WithUserID(userID.Hex()).WithError(err).Warn("mark read failed")
				send(feedMessage{Type: "error", ID: cmd.ID, Error: "Could not mark notification as read", Unread: f.Unread()})
				continue
			}
			send(feedMessage{Type: "marked_read", ID: cmd.ID, Unread: f.Unread()})
		default:
			send(feedMessage{Type: "error", Error: "Unknown command", Unread: f.Unread()})
		}
	}
}

// writePump owns all writes to conn. A write failure cancels the connection.
func (nc *NotificationController) writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan feedMessage) {
	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case m := <-out:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteJSON(m); err != nil {
				cancel()
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cancel()
				conn.Close()
				return
			}
		}
	}
}
