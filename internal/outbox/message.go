package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/util"
)

// NewMessage encodes payload into a PENDING outbox row keyed by the aggregate id.
func NewMessage(aggregateType, aggregateID, messageType, topic string, payload any) (*domain.OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", messageType, err)
	}
	return &domain.OutboxMessage{
		ID:            util.GenerateUUID(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		MessageType:   messageType,
		Topic:         topic,
		Key:           aggregateID,
		Payload:       body,
		Status:        domain.OutboxStatusPending,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
