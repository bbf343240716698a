package model

import (
	"time"

	"github.com/dashbridge/creditbridge/errors"
)

// CreditEvent is the payload published to Kafka when a watched deposit
// resolves. Downstream crediting consumes these; the txid/vout pair is the
// idempotency key.
type CreditEvent struct {
	SessionID  string    `json:"sessionId"`
	TxID       string    `json:"txid"`
	Vout       uint32    `json:"vout"`
	Satoshis   uint64    `json:"satoshis"`
	Address    string    `json:"address"`
	Height     uint32    `json:"height"`
	ObservedAt time.Time `json:"observedAt"`
}

// NewCreditEvent builds an event from a resolved deposit.
func NewCreditEvent(sessionID string, utxo *UTXO, address string, height uint32, observedAt time.Time) *CreditEvent {
	return &CreditEvent{
		SessionID:  sessionID,
		TxID:       utxo.TxID.String(),
		Vout:       utxo.Vout,
		Satoshis:   utxo.Satoshis,
		Address:    address,
		Height:     height,
		ObservedAt: observedAt,
	}
}

// Bytes serializes the event for the producer.
func (e *CreditEvent) Bytes() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.NewProcessingError("failed to marshal credit event", err)
	}

	return b, nil
}

// CreditEventFromBytes decodes a serialized event, used by consumers and
// tests.
func CreditEventFromBytes(b []byte) (*CreditEvent, error) {
	var e CreditEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.NewProcessingError("failed to unmarshal credit event", err)
	}

	return &e, nil
}
