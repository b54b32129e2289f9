package realtime

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/numanijaz119/Audio-to-text/internal/models"
)

const jobUpdateChannel = "transcription_updates"

// NewRedis creates a new Redis client
func NewRedis() *redis.Client {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	log.Printf("Redis client created (addr: %s)\n", redisAddr)
	return rdb
}

type jobUpdateEnvelope struct {
	UserID uuid.UUID             `json:"user_id"`
	Job    *models.Transcription `json:"job"`
}

// Broker fans job updates out through redis pub/sub so every API instance
// can push to the websocket clients it holds locally.
type Broker struct {
	Hub *Hub
	RDB *redis.Client
}

func NewBroker(hub *Hub, rdb *redis.Client) *Broker {
	return &Broker{Hub: hub, RDB: rdb}
}

// NotifyJobUpdate publishes the update; local delivery happens in Run.
func (b *Broker) NotifyJobUpdate(userID uuid.UUID, job *models.Transcription) {
	payload, err := json.Marshal(jobUpdateEnvelope{UserID: userID, Job: job})
	if err != nil {
		log.Printf("Error marshaling job update: %v", err)
		return
	}
	if err := b.RDB.Publish(context.Background(), jobUpdateChannel, payload).Err(); err != nil {
		log.Printf("Redis publish failed, delivering locally: %v", err)
		b.Hub.NotifyJobUpdate(userID, job)
	}
}

// Run subscribes to the update channel and forwards messages to the hub.
// Blocks until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) {
	sub := b.RDB.Subscribe(ctx, jobUpdateChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env jobUpdateEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("Error unmarshaling job update: %v", err)
				continue
			}
			b.Hub.NotifyJobUpdate(env.UserID, env.Job)
		}
	}
}
