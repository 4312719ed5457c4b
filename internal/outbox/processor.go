package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vehicle-orders/internal/domain"
	kafkaInfra "vehicle-orders/internal/infrastructure/kafka"
	"vehicle-orders/internal/metrics"
	"vehicle-orders/internal/repository/outbox_repo"
)

type Processor struct {
	tx            domain.Transactor
	outboxRepo    outbox_repo.OutboxRepository
	kafkaProducer kafkaInfra.Producer
	pollInterval  time.Duration
	pollTimeout   time.Duration
	batchSize     int
	logger        *zap.Logger
}

func NewProcessor(
	tx domain.Transactor,
	outboxRepo outbox_repo.OutboxRepository,
	kafkaProducer kafkaInfra.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Processor {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Processor{
		tx:            tx,
		outboxRepo:    outboxRepo,
		kafkaProducer: kafkaProducer,
		pollInterval:  pollInterval,
		pollTimeout:   pollTimeout,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// Run polls until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("Starting outbox processor", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped")
			return nil
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch relays one batch of pending messages. Rows are locked for the
// duration so concurrent relays skip them; a failed produce leaves the row
// PENDING for the next poll.
func (p *Processor) ProcessBatch(ctx context.Context) int {
	p.logger.Debug("Polling for outbox messages...")

	pollCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	sent := 0
	err := p.tx.WithinTx(pollCtx, func(ctx context.Context, q domain.Querier) error {
		messages, err := p.outboxRepo.GetPendingMessagesTx(ctx, q, p.batchSize)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			p.logger.Debug("No pending outbox messages found.")
			return nil
		}
		p.logger.Info("Found pending outbox messages", zap.Int("count", len(messages)))

		for _, msg := range messages {
			if err := p.kafkaProducer.Produce(ctx, msg.Key, msg.Topic, msg.Payload); err != nil {
				metrics.OutboxPublished.WithLabelValues(msg.Topic, "error").Inc()
				p.logger.Error("Failed to send outbox message to Kafka",
					zap.String("message_id", msg.ID),
					zap.String("topic", msg.Topic),
					zap.Error(err))
				continue
			}
			if err := p.outboxRepo.MarkSentTx(ctx, q, msg.ID, time.Now().UTC()); err != nil {
				return err
			}
			metrics.OutboxPublished.WithLabelValues(msg.Topic, "sent").Inc()
			sent++
			p.logger.Debug("Outbox message sent",
				zap.String("message_id", msg.ID),
				zap.String("message_type", msg.MessageType),
				zap.String("topic", msg.Topic))
		}
		return nil
	})
	if err != nil {
		p.logger.Error("Failed to process outbox batch", zap.Error(err))
		return 0
	}
	return sent
}
