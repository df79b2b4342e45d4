package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	EventOrderCreated   = "order.created"
	EventOrderUpdated   = "order.updated"
	EventOrderCancelled = "order.cancelled"

	OrderEventsAll = "orders:events:all"
)

type OrderEvent struct {
	EventType     string      `json:"eventType"`
	OrderID       int64       `json:"orderId"`
	OrderNumber   string      `json:"orderNumber"`
	Status        string      `json:"status"`
	PaymentStatus string      `json:"paymentStatus"`
	FinalAmount   string      `json:"finalAmount"`
	Timestamp     time.Time   `json:"timestamp"`
	OrderData     interface{} `json:"orderData,omitempty"`
}

func OrderEventChannel(eventType string) string {
	return fmt.Sprintf("orders:events:%s", eventType)
}

func PublishOrderEvent(ctx context.Context, rdb *redis.Client, event OrderEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := rdb.Publish(ctx, OrderEventChannel(event.EventType), eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if err := rdb.Publish(ctx, OrderEventsAll, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish to all channel: %w", err)
	}

	return nil
}
