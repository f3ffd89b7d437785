// Package vaultevents defines the vault's outbound event contract and a
// default logging implementation. The real event bus transport (Kafka,
// NATS, a webhook fan-out, whatever the embedding application uses) is
// external; Broadcaster is the seam it plugs into.
package vaultevents

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names emitted by the vault service. Payload shape is documented per
// call site in pkg/vault; broadcasters that care about schema should switch
// on Name.
const (
	CredentialCreated = "credential.created"
	CredentialUpdated = "credential.updated"
	CredentialDeleted = "credential.deleted"
	CredentialRotated = "credential.rotated"

	CredentialLeaseCreated = "credential.lease.created"
	CredentialLeaseRevoked = "credential.lease.revoked"

	CredentialGrantAdded   = "credential.grant.added"
	CredentialGrantRevoked = "credential.grant.revoked"

	AccountCreated = "account.created"
	AccountUpdated = "account.updated"
	AccountDeleted = "account.deleted"

	AgentProfileUpdated = "agent.profile.updated"
)

// Event is one emitted lifecycle notification.
type Event struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Broadcaster is the vault's injected event sink. Delivery is best-effort
// and at-most-once from the vault's perspective; a Broadcaster MAY drop
// events under backpressure. Publish MUST NOT block the caller's write
// lock — implementations that need to do real I/O should queue internally.
type Broadcaster interface {
	Publish(name string, payload interface{})
}

// LogBroadcaster renders every event as a single line of prefixed JSON,
// matching the teacher's audit-logging convention so events show up
// grep-able in the same process logs as everything else. Used by cmd/vaultd
// when no richer bus is wired, and by tests that just want to observe what
// was emitted.
type LogBroadcaster struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewLogBroadcaster writes to os.Stdout.
func NewLogBroadcaster() *LogBroadcaster {
	return NewLogBroadcasterWithWriter(os.Stdout)
}

// NewLogBroadcasterWithWriter writes to w, for test injection or a custom
// sink.
func NewLogBroadcasterWithWriter(w io.Writer) *LogBroadcaster {
	if w == nil {
		w = os.Stdout
	}
	return &LogBroadcaster{writer: w}
}

func (b *LogBroadcaster) Publish(name string, payload interface{}) {
	event := Event{
		ID:        uuid.New().String(),
		Name:      name,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.writer.Write(append([]byte("AUDIT: "), append(data, '\n')...))
}

// RecordingBroadcaster collects every published event in memory, for tests
// that assert on emitted events rather than just their log rendering.
type RecordingBroadcaster struct {
	mu     sync.Mutex
	Events []Event
}

func NewRecordingBroadcaster() *RecordingBroadcaster {
	return &RecordingBroadcaster{}
}

func (b *RecordingBroadcaster) Publish(name string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = append(b.Events, Event{ID: uuid.New().String(), Name: name, Timestamp: time.Now(), Payload: payload})
}

func (b *RecordingBroadcaster) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.Events))
	for i, e := range b.Events {
		names[i] = e.Name
	}
	return names
}
