// internal/database/redis.go
package database

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// InitRedis parses REDIS_URL and connects. Returns nil on failure; message
// fan-out then degrades to the in-process hub only.
func InitRedis(redisURL string) *redis.Client {
	if redisURL == "" {
		log.Println("REDIS_URL not set, using default: redis://localhost:6379/0")
		redisURL = "redis://localhost:6379/0"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("failed to parse REDIS_URL: %v", err)
		return nil
	}

	redisClient = redis.NewClient(opt)

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("failed to connect to Redis: %v", err)
		redisClient = nil
		return nil
	}

	return redisClient
}

// GetRedis returns the Redis client.
func GetRedis() *redis.Client {
	return redisClient
}

func conversationChannel(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

// PublishConversationEvent publishes an event to a conversation channel.
func PublishConversationEvent(ctx context.Context, conversationID string, payload []byte) error {
	if redisClient == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return redisClient.Publish(ctx, conversationChannel(conversationID), payload).Err()
}

// SubscribeConversationEvents subscribes to a conversation channel.
func SubscribeConversationEvents(ctx context.Context, conversationID string) *redis.PubSub {
	if redisClient == nil {
		return nil
	}
	return redisClient.Subscribe(ctx, conversationChannel(conversationID))
}
