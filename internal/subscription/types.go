// Package subscription implements the subscription and monitored-item
// engine of an OPC UA server: the registry of client-requested live views
// over an address space, the per-subscription publish timer, and the
// notification replay cache.
package subscription

import (
	"time"

	"github.com/gopcua/opcua/ua"
)

// SubscriptionID uniquely identifies a subscription for the lifetime of
// the service that created it.
type SubscriptionID = uint32

// MonitoredItemID uniquely identifies a monitored item within its
// subscription.
type MonitoredItemID = uint32

// ClientHandle is the opaque identifier a client assigns to a monitored
// item and expects echoed back in every notification for that item.
type ClientHandle = uint32

// SubscriptionData is the immutable (after creation, aside from future
// revision support) identity and lifetime configuration of a subscription.
type SubscriptionData struct {
	SubscriptionID            SubscriptionID
	RevisedPublishingInterval time.Duration
	RevisedLifetimeCount      uint32
	RevisedMaxKeepAliveCount  uint32
	SessionToken              *ua.NodeID
}

// MonitoredItem is a client's subscription to one (node, attribute) pair.
type MonitoredItem struct {
	ID                  MonitoredItemID
	ClientHandle        ClientHandle
	Node                *ua.NodeID
	Attribute           ua.AttributeID
	Mode                ua.MonitoringMode
	AddressSpaceHandle  uint32
	Filter              *ua.EventFilter
}

// dataChangeEntry is one FIFO entry in a subscription's data-change queue.
type dataChangeEntry struct {
	ClientHandle ClientHandle
	Value        *ua.DataValue
}

// NotificationData is the tagged union over DataChangeNotification,
// EventNotificationList and (reserved, never emitted) StatusChangeNotification.
type NotificationData interface {
	isNotificationData()
}

// DataChangeNotificationData carries a data-change payload in a
// NotificationMessage.
type DataChangeNotificationData struct {
	*ua.DataChangeNotification
}

func (DataChangeNotificationData) isNotificationData() {}

// EventNotificationData carries an event payload in a NotificationMessage.
type EventNotificationData struct {
	*ua.EventNotificationList
}

func (EventNotificationData) isNotificationData() {}

// NotificationMessage is the per-publish aggregate of pending notification
// data, identified by a per-subscription monotonic sequence id.
type NotificationMessage struct {
	SequenceID  uint32
	PublishTime time.Time
	Data        []NotificationData
}

// PublishResult is what InternalSubscription hands to the user-supplied
// publish callback on each emission, including an empty keep-alive
// emission (Message.Data is nil in that case).
type PublishResult struct {
	SubscriptionID           SubscriptionID
	PublishTime              time.Time
	Message                  NotificationMessage
	Statuses                 []ua.StatusCode
	AvailableSequenceNumbers []uint32
}

// ResponseHeader mirrors the OPC UA service-result header this engine
// attaches to responses it assembles itself (Republish, unknown-subscription
// batch errors). The full wire ResponseHeader (timestamps, diagnostic
// arrays) is the codec's job and stays out of this engine's scope.
type ResponseHeader struct {
	ServiceResult ua.StatusCode
}

// RepublishResponse is the result of a republish request.
type RepublishResponse struct {
	Header              ResponseHeader
	NotificationMessage *NotificationMessage
}

// PublishCallback is invoked once per emission (including keep-alives), on
// an executor goroutine, outside any subscription lock. The engine does not
// assume it is non-blocking.
type PublishCallback func(PublishResult)

// DataChangeCallback is registered with the address space for a single
// (node, attribute) pair and may be invoked from any goroutine.
type DataChangeCallback func(node *ua.NodeID, attribute ua.AttributeID, value *ua.DataValue)

// AddressSpace is the external collaborator this engine consumes. Its wire
// codec, hierarchy, and storage are out of scope; only these three
// operations are.
type AddressSpace interface {
	// Read performs a synchronous attribute read.
	Read(node *ua.NodeID, attribute ua.AttributeID) (*ua.DataValue, error)
	// AddDataChangeCallback registers fn to be invoked on every change to
	// (node, attribute) and returns a non-zero handle, or 0 on failure.
	AddDataChangeCallback(node *ua.NodeID, attribute ua.AttributeID, fn DataChangeCallback) uint32
	// DeleteDataChangeCallback unregisters a previously added callback. It
	// is idempotent.
	DeleteDataChangeCallback(handle uint32)
}

// Event is the minimal surface the event-field projector (C1) and
// TriggerEvent (C4) need from an event instance. A concrete implementation
// is provided by SimpleEvent for tests and the demo server; real servers
// may supply their own.
type Event interface {
	EventID() []byte
	SetEventID(id []byte)
	EventType() *ua.NodeID
	SourceNode() *ua.NodeID
	SourceName() string
	Message() string
	Severity() uint16
	LocalTime() time.Time
	ReceiveTime() time.Time
	Time() time.Time
	// AttributeValue resolves a select clause with an empty browse path:
	// the event's own value for the given attribute.
	AttributeValue(attribute ua.AttributeID) (*ua.Variant, bool)
	// Value resolves a select clause whose browse path is not one of the
	// well-known built-in field names.
	Value(browsePath []*ua.QualifiedName) (*ua.Variant, bool)
}

func filterFromParameters(params *ua.MonitoringParameters) *ua.EventFilter {
	if params == nil || params.Filter == nil {
		return nil
	}
	if f, ok := params.Filter.Value.(*ua.EventFilter); ok {
		return f
	}
	return nil
}
