package handlers

import (
	"log"

	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/numanijaz119/Audio-to-text/internal/realtime"
	"github.com/numanijaz119/Audio-to-text/internal/utils"
)

type RealtimeHandler struct {
	Hub       *realtime.Hub
	JWTSecret string
}

func NewRealtimeHandler(hub *realtime.Hub, jwtSecret string) *RealtimeHandler {
	return &RealtimeHandler{Hub: hub, JWTSecret: jwtSecret}
}

// WebSocketHandler authenticates the session cookie and streams
// transcription status updates until the client disconnects.
func (h *RealtimeHandler) WebSocketHandler(c *websocket.Conn) {
	tokenStr := c.Cookies("as_token")
	if tokenStr == "" {
		log.Println("WebSocket: missing session cookie")
		c.Close()
		return
	}

	token, err := jwt.ParseWithClaims(tokenStr, &utils.Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(h.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		log.Println("WebSocket: invalid token:", err)
		c.Close()
		return
	}

	claims, ok := token.Claims.(*utils.Claims)
	if !ok {
		c.Close()
		return
	}

	userUUID, err := uuid.Parse(claims.UserID)
	if err != nil {
		log.Println("WebSocket: invalid user id in token:", err)
		c.Close()
		return
	}

	log.Printf("WebSocket: user %s connected\n", userUUID)

	client := &realtime.Client{
		ID:     uuid.New().String(),
		UserID: userUUID,
		Conn:   realtime.NewWebSocketConn(c),
		Send:   make(chan []byte, 256),
	}

	h.Hub.RegisterClient(client)
	defer func() {
		h.Hub.UnregisterClient(client)
		log.Printf("WebSocket: user %s disconnected\n", userUUID)
	}()

	go func() {
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Println("WebSocket write error:", err)
				return
			}
		}
	}()

	// read loop keeps the connection alive and drains client pings
	for {
		var payload map[string]interface{}
		if err := c.ReadJSON(&payload); err != nil {
			break
		}
		if msgType, ok := payload["type"].(string); ok && msgType == "pong" {
			continue
		}
	}
}
