package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"vehicle-orders/internal/app/payments"
	"vehicle-orders/internal/domain"
	kafka_infra "vehicle-orders/internal/infrastructure/kafka"
)

// WebhookMessageHandler settles payments from queued provider webhooks. A
// returned error leaves the offset uncommitted so the message is retried.
func WebhookMessageHandler(paymentService payments.PaymentService, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		logger.Debug("Received webhook message",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.String("key", string(msg.Key)),
		)

		var webhookEvent domain.WebhookReceivedEvent
		if err := json.Unmarshal(msg.Value, &webhookEvent); err != nil {
			logger.Error("Failed to unmarshal Kafka message value to WebhookReceivedEvent",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}
		if webhookEvent.EventID == "" || webhookEvent.Reference == "" {
			logger.Error("Dropping webhook message without event id or reference",
				zap.ByteString("value", msg.Value),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}

		if err := paymentService.ProcessWebhookEvent(ctx, webhookEvent); err != nil {
			logger.Error("Failed to process webhook event",
				zap.String("event_id", webhookEvent.EventID),
				zap.String("reference", webhookEvent.Reference),
				zap.Error(err),
			)
			return fmt.Errorf("failed to process webhook event %s: %w", webhookEvent.EventID, err)
		}
		return nil
	}
}
