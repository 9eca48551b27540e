package websocket

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	domainConnection "github.com/wafilter/wafilter/domains/connection"
	domainEvents "github.com/wafilter/wafilter/domains/events"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// writeWait bounds a single frame write; a client that cannot keep up is
// dropped instead of stalling the hub.
const writeWait = 5 * time.Second

type client struct{}

type BroadcastMessage struct {
	Code   string `json:"code"`
	Result any    `json:"result"`
}

var (
	Clients    = make(map[*websocket.Conn]client)
	Register   = make(chan *websocket.Conn)
	Broadcast  = make(chan BroadcastMessage, 256)
	Unregister = make(chan *websocket.Conn)
)

// Publisher feeds engine output into the hub. Sends never block: when the
// broadcast queue is saturated the frame is dropped, the live feed is a
// best-effort mirror of the recent-events ring.
type Publisher struct{}

func NewPublisher() Publisher {
	return Publisher{}
}

func (Publisher) PublishEvent(event domainEvents.StoredEvent) {
	push(BroadcastMessage{Code: "EVENT", Result: event})
}

func (Publisher) PublishState(status domainConnection.Status) {
	push(BroadcastMessage{Code: "CONNECTION", Result: status})
}

func push(message BroadcastMessage) {
	select {
	case Broadcast <- message:
	default:
		logrus.Debug("[WS] broadcast queue full, dropping frame")
	}
}

func handleRegister(conn *websocket.Conn) {
	Clients[conn] = client{}
	logrus.Debug("[WS] Connection registered")
}

func handleUnregister(conn *websocket.Conn) {
	delete(Clients, conn)
	logrus.Debug("[WS] Connection unregistered")
}

func broadcastToLocal(message BroadcastMessage) {
	marshalMessage, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}

	for conn := range Clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, marshalMessage); err != nil {
			logrus.Debugf("[WS] Write error, dropping client: %v", err)
			closeConnection(conn)
		}
	}
}

func closeConnection(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
	_ = conn.Close()
	delete(Clients, conn)
}

func RunHub() {
	for {
		select {
		case conn := <-Register:
			handleRegister(conn)

		case conn := <-Unregister:
			handleUnregister(conn)

		case message := <-Broadcast:
			broadcastToLocal(message)
		}
	}
}

// RegisterRoutes mounts the live event feed. The read side only serves to
// notice closes; inbound payloads are discarded.
func RegisterRoutes(app fiber.Router) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		defer func() {
			Unregister <- conn
			_ = conn.Close()
		}()

		Register <- conn

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Debugf("[WS] read error: %v", err)
				}
				return
			}
		}
	}))
}
