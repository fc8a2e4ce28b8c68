package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message sources.
const (
	SourceWithdrawal = "withdrawal"
	SourceCommission = "commission"
	SourceSweep      = "sweep"
	SourceCLI        = "cli"
)

// ErrInvalidMessage is returned when a message cannot be handled at all.
var ErrInvalidMessage = errors.New("invalid upgrade check message")

// Message asks for one distributor to be checked.
type Message struct {
	ID            string    `json:"id"`
	DistributorID int64     `json:"distributor_id"`
	Source        string    `json:"source"`
	Reference     string    `json:"reference,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewMessage builds a message with a fresh ID. ref is the ledger entry
// that caused the check, if any.
func NewMessage(distributorID int64, source, ref string) Message {
	return Message{
		ID:            uuid.NewString(),
		DistributorID: distributorID,
		Source:        source,
		Reference:     ref,
		CreatedAt:     time.Now().UTC(),
	}
}

// Validate rejects messages without a distributor.
func (m Message) Validate() error {
	if m.DistributorID <= 0 {
		return fmt.Errorf("%w: distributor id must be positive, got %d", ErrInvalidMessage, m.DistributorID)
	}
	return nil
}

// Encode serializes the message for the wire.
func (m Message) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// DecodeMessage parses and validates a wire message.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
