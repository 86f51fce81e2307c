package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type EventType string

const (
	WorkflowStarted    EventType = "workflow_started"
	WorkflowFinished   EventType = "workflow_finished"
	AgentActivated     EventType = "agent_activated"
	BudgetExhausted    EventType = "budget_exhausted"
	CorrectionStarted  EventType = "correction_started"
	EscalationRequired EventType = "escalation_required"
	ReportIngested     EventType = "report_ingested"
)

type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	ProjectID string            `json:"project_id"`
	Payload   string            `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Bus) PublishNew(eventType EventType, projectID string, payload string, metadata map[string]string) {
	b.Publish(&Event{
		ID:        ulid.Make().String(),
		Type:      eventType,
		ProjectID: projectID,
		Payload:   payload,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	})
}
