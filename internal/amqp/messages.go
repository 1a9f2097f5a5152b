package amqp

import (
	"encoding/json"
	"time"
)

// LedgerEventMessage mirrors a ledger bus event. Only the id of the
// affected transaction travels; consumers read details from the ledger.
type LedgerEventMessage struct {
	Kind          string    `json:"kind"`
	Op            string    `json:"op"`
	Revision      uint64    `json:"revision"`
	TransactionID string    `json:"transactionId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(kind, op string, revision uint64, transactionID string) *LedgerEventMessage {
	return &LedgerEventMessage{
		Kind:          kind,
		Op:            op,
		Revision:      revision,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SnapshotMessage carries a full backup document. Payload is the backup
// JSON, or its base64 ciphertext when Encrypted is set.
type SnapshotMessage struct {
	Revision  uint64    `json:"revision"`
	Encrypted bool      `json:"encrypted"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSnapshotMessage(revision uint64, encrypted bool, payload []byte) *SnapshotMessage {
	return &SnapshotMessage{
		Revision:  revision,
		Encrypted: encrypted,
		Payload:   string(payload),
		Timestamp: time.Now(),
	}
}

func (m *SnapshotMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SnapshotMessageFromJSON(data []byte) (*SnapshotMessage, error) {
	var msg SnapshotMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
