package domain

import (
	"errors"
	"time"
)

type InboxMessageStatus string

const (
	InboxStatusProcessing InboxMessageStatus = "PROCESSING"
	InboxStatusProcessed  InboxMessageStatus = "PROCESSED"
	InboxStatusFailed     InboxMessageStatus = "FAILED"
)

var (
	ErrMessageAlreadyProcessed = errors.New("inbox message already processed")
	ErrMessageAlreadyPending   = errors.New("inbox message already being processed")
)

// InboxMessage records a provider webhook event by its provider event id so
// redelivered events are applied once.
type InboxMessage struct {
	ID          string
	Provider    string
	Reference   string
	Payload     []byte
	Status      InboxMessageStatus
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}
