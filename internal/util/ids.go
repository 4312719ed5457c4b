package util

import (
	"crypto/rand"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const referencePrefix = "AFZ"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func GenerateUUID() string {
	newUUID, err := uuid.NewRandom()
	if err != nil {
		log.Fatalf("Failed to generate UUID: %v", err)
	}
	return newUUID.String()
}

// GenerateTransactionRef returns a payment reference of the form AFZ-<ULID>.
// The ULID's leading timestamp keeps references roughly time ordered.
func GenerateTransactionRef(now time.Time) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()
	return referencePrefix + "-" + id.String()
}

// ValidUUID reports whether id parses as a UUID. Every entity id column is
// a UUID, so anything else cannot name a stored row.
func ValidUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// FormatRequestNumber renders AFZ-YY-MM-###### from a database sequence value.
// The sequence is never truncated; past 999999 the number just grows wider.
func FormatRequestNumber(now time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%06d", referencePrefix, now.UTC().Format("06-01"), seq)
}
