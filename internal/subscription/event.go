package subscription

import (
	"sync"
	"time"

	"github.com/gopcua/opcua/ua"
)

// SimpleEvent is a minimal, concurrency-safe Event implementation for the
// demo server and for tests. Real servers may back Event with their own
// event-type hierarchy instead.
type SimpleEvent struct {
	mu sync.Mutex

	id          []byte
	eventType   *ua.NodeID
	sourceNode  *ua.NodeID
	sourceName  string
	message     string
	severity    uint16
	occurredAt  time.Time
	fields      map[string]*ua.Variant
}

// NewSimpleEvent builds an event with LocalTime, ReceiveTime and Time all
// set to occurredAt; a server forwarding events from elsewhere may want
// those to differ, which SimpleEvent does not support.
func NewSimpleEvent(eventType, sourceNode *ua.NodeID, sourceName, message string, severity uint16, occurredAt time.Time) *SimpleEvent {
	return &SimpleEvent{
		eventType:  eventType,
		sourceNode: sourceNode,
		sourceName: sourceName,
		message:    message,
		severity:   severity,
		occurredAt: occurredAt,
		fields:     make(map[string]*ua.Variant),
	}
}

// WithField attaches a value reachable by select clauses whose browse path
// is not one of the well-known BaseEventType fields.
func (e *SimpleEvent) WithField(name string, value interface{}) *SimpleEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fields[name] = ua.MustVariant(value)
	return e
}

func (e *SimpleEvent) EventID() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

func (e *SimpleEvent) SetEventID(id []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.id = id
}

func (e *SimpleEvent) EventType() *ua.NodeID   { return e.eventType }
func (e *SimpleEvent) SourceNode() *ua.NodeID  { return e.sourceNode }
func (e *SimpleEvent) SourceName() string      { return e.sourceName }
func (e *SimpleEvent) Message() string         { return e.message }
func (e *SimpleEvent) Severity() uint16        { return e.severity }
func (e *SimpleEvent) LocalTime() time.Time    { return e.occurredAt }
func (e *SimpleEvent) ReceiveTime() time.Time  { return e.occurredAt }
func (e *SimpleEvent) Time() time.Time         { return e.occurredAt }

func (e *SimpleEvent) AttributeValue(attribute ua.AttributeID) (*ua.Variant, bool) {
	if attribute == ua.AttributeIDEventNotifier {
		return ua.MustVariant(e.sourceName), true
	}
	return nil, false
}

func (e *SimpleEvent) Value(browsePath []*ua.QualifiedName) (*ua.Variant, bool) {
	if len(browsePath) == 0 {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.fields[browsePath[len(browsePath)-1].Name]
	return v, ok
}
