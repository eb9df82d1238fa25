package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/emergency_clustering_system/internal/models"
)

const (
	webhookQueueKey = "incident_events"
)

// EventType - тип события инцидента
type EventType string

const (
	EventIncidentCreated EventType = "incident_created"
	EventReportAttached  EventType = "report_attached"
	EventStatusChanged   EventType = "incident_status_changed"
)

// WebhookEvent - структура для данных вебхука, которые получает внешний слой уведомлений
type WebhookEvent struct {
	Type        EventType             `json:"type"`
	IncidentID  uuid.UUID             `json:"incident_id"`
	Status      models.IncidentStatus `json:"status"`
	ReportCount int                   `json:"report_count"`
	Latitude    float64               `json:"latitude"`
	Longitude   float64               `json:"longitude"`
	Timestamp   time.Time             `json:"timestamp"`
}

// WebhookPublisher - интерфейс для публикации вебхуков
type WebhookPublisher interface {
	Publish(ctx context.Context, event WebhookEvent) error
}

// RedisWebhookPublisher - реализация WebhookPublisher, использующая Redis
type RedisWebhookPublisher struct {
	redisClient *redis.Client
}

// NewRedisWebhookPublisher создает новый RedisWebhookPublisher
func NewRedisWebhookPublisher(client *redis.Client) *RedisWebhookPublisher {
	return &RedisWebhookPublisher{
		redisClient: client,
	}
}

// Publish публикует событие вебхука в очередь Redis
func (p *RedisWebhookPublisher) Publish(ctx context.Context, event WebhookEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	// Используем LPUSH для добавления события в левую часть списка (очереди)
	if err := p.redisClient.LPush(ctx, webhookQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish webhook event to Redis: %w", err)
	}
	return nil
}
