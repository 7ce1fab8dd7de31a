package subscription

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// InternalSubscription is the per-subscription state machine: the set of
// monitored items it owns, the pending data-change and event queues, the
// keep-alive/lifetime counters, and the not-acknowledged replay cache. Its
// periodic tick assembles and hands off a PublishResult whenever it has
// something to say and a publish request is available to carry it.
type InternalSubscription struct {
	data SubscriptionData

	mu                  sync.RWMutex
	monitoredItems      map[MonitoredItemID]*MonitoredItem
	eventSubscriptions  map[string]MonitoredItemID // node.String() -> monitored item id
	dataChangeQueue     []dataChangeEntry
	eventQueue          []*ua.EventFieldList
	notAcknowledged     []PublishResult
	notificationSeq     uint32
	keepAliveCount      uint32
	lastMonitoredItemID MonitoredItemID
	startup             bool
	timerStopped        bool

	addressSpace AddressSpace
	service      *SubscriptionService
	callback     PublishCallback
	breaker      *gobreaker.CircuitBreaker
	logger       zerolog.Logger
	metrics      metricsSink
	debug        bool

	timer *subscriptionTimer
}

// metricsSink is the narrow slice of internal/metrics.Registry this package
// depends on, kept local so subscription never imports the metrics package
// directly (it has no business knowing about Prometheus types).
type metricsSink interface {
	IncNotificationsEmitted(channel string)
	IncSubscriptionsExpired()
	ObserveTickDuration(seconds float64)
	IncPublishRequestsCredited()
	IncPublishRequestsConsumed()
	IncRepublishRequests(result string)
	SetActiveSubscriptions(n int)
	SetActiveMonitoredItems(n int)
}

func newInternalSubscription(
	data SubscriptionData,
	addressSpace AddressSpace,
	service *SubscriptionService,
	callback PublishCallback,
	logger zerolog.Logger,
	metrics metricsSink,
	debug bool,
) *InternalSubscription {
	sub := &InternalSubscription{
		data:               data,
		monitoredItems:     make(map[MonitoredItemID]*MonitoredItem),
		eventSubscriptions: make(map[string]MonitoredItemID),
		notificationSeq:    1,
		startup:            true,
		addressSpace:       addressSpace,
		service:            service,
		callback:           callback,
		logger:             logger.With().Uint32("subscription_id", data.SubscriptionID).Logger(),
		metrics:            metrics,
		debug:              debug,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "publish-callback",
			MaxRequests: 1,
			Interval:    0,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
	}
	return sub
}

// Start launches the tick loop. It must be called at most once.
func (s *InternalSubscription) Start() {
	s.timer = startTimer(s.data.RevisedPublishingInterval, s.runTick)
}

// Stop cancels the tick loop and waits for any in-flight tick to finish. It
// is idempotent and safe to call even if Start was never called.
func (s *InternalSubscription) Stop() {
	s.mu.Lock()
	s.timerStopped = true
	s.mu.Unlock()

	if s.timer != nil {
		s.timer.stop()
	}
}

// CreateMonitoredItem registers one monitored item and, for data-change
// items, performs the initial synchronous read so the first publish after
// creation already carries a value rather than waiting for the node to
// change.
func (s *InternalSubscription) CreateMonitoredItem(req *ua.MonitoredItemCreateRequest) *ua.MonitoredItemCreateResult {
	s.mu.Lock()
	s.lastMonitoredItemID++
	id := s.lastMonitoredItemID
	s.mu.Unlock()

	item := newMonitoredItem(id, req)

	if item.isEvent() {
		s.mu.Lock()
		s.monitoredItems[id] = item
		s.eventSubscriptions[item.Node.String()] = id
		s.mu.Unlock()
		return s.createResult(id, req)
	}

	handle := s.addressSpace.AddDataChangeCallback(item.Node, item.Attribute, func(node *ua.NodeID, attr ua.AttributeID, value *ua.DataValue) {
		s.onDataChange(id, item.ClientHandle, value)
	})
	if handle == 0 {
		s.mu.Lock()
		if s.lastMonitoredItemID == id {
			s.lastMonitoredItemID--
		}
		s.mu.Unlock()
		return &ua.MonitoredItemCreateResult{StatusCode: ua.StatusBadNodeAttributesInvalid}
	}
	item.AddressSpaceHandle = handle

	s.mu.Lock()
	s.monitoredItems[id] = item
	s.mu.Unlock()

	if value, err := s.addressSpace.Read(item.Node, item.Attribute); err == nil {
		s.onDataChange(id, item.ClientHandle, value)
	} else {
		s.logger.Warn().Err(err).Uint32("monitored_item_id", id).Msg("initial read failed for monitored item")
	}

	return s.createResult(id, req)
}

func (s *InternalSubscription) createResult(id MonitoredItemID, req *ua.MonitoredItemCreateRequest) *ua.MonitoredItemCreateResult {
	result := &ua.MonitoredItemCreateResult{
		StatusCode:              ua.StatusOK,
		MonitoredItemID:         id,
		RevisedSamplingInterval: float64(s.data.RevisedPublishingInterval / time.Millisecond),
	}
	if req.RequestedParameters != nil {
		result.RevisedQueueSize = req.RequestedParameters.QueueSize
	}
	return result
}

// DeleteMonitoredItemsIDs removes each named item, unregistering its
// address-space callback outside the subscription lock.
func (s *InternalSubscription) DeleteMonitoredItemsIDs(ids []MonitoredItemID) []ua.StatusCode {
	statuses := make([]ua.StatusCode, len(ids))
	for i, id := range ids {
		statuses[i] = s.deleteMonitoredItem(id)
	}
	return statuses
}

func (s *InternalSubscription) deleteMonitoredItem(id MonitoredItemID) ua.StatusCode {
	s.mu.Lock()
	for node, mid := range s.eventSubscriptions {
		if mid == id {
			delete(s.eventSubscriptions, node)
			break
		}
	}
	item, ok := s.monitoredItems[id]
	if ok {
		delete(s.monitoredItems, id)
	}
	s.mu.Unlock()

	if !ok {
		return ua.StatusBadMonitoredItemIDInvalid
	}
	if item.AddressSpaceHandle != 0 {
		s.addressSpace.DeleteDataChangeCallback(item.AddressSpaceHandle)
	}
	return ua.StatusOK
}

func (s *InternalSubscription) deleteAllMonitoredItems() {
	s.mu.Lock()
	ids := make([]MonitoredItemID, 0, len(s.monitoredItems))
	for id := range s.monitoredItems {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	s.DeleteMonitoredItemsIDs(ids)
}

func (s *InternalSubscription) monitoredItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.monitoredItems)
}

// onDataChange enqueues a changed value. It is registered with the address
// space and may run on any goroutine; it drops the value if the item was
// deleted concurrently or the subscription has already stopped.
func (s *InternalSubscription) onDataChange(id MonitoredItemID, clientHandle ClientHandle, value *ua.DataValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timerStopped {
		return
	}
	if _, ok := s.monitoredItems[id]; !ok {
		if s.debug {
			s.logger.Debug().Uint32("monitored_item_id", id).Msg("dropped data change for vanished monitored item")
		}
		return
	}
	s.dataChangeQueue = append(s.dataChangeQueue, dataChangeEntry{ClientHandle: clientHandle, Value: value})
}

// TriggerEvent enqueues event fields for this subscription's monitored item
// on node, if any is registered there. It is a no-op otherwise.
func (s *InternalSubscription) TriggerEvent(node *ua.NodeID, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timerStopped {
		return
	}
	id, ok := s.eventSubscriptions[node.String()]
	if !ok {
		return
	}
	item := s.monitoredItems[id]

	var selectClauses []*ua.SimpleAttributeOperand
	if item.Filter != nil {
		selectClauses = item.Filter.SelectClauses
	}
	fields := ProjectEventFields(selectClauses, event)
	s.eventQueue = append(s.eventQueue, &ua.EventFieldList{ClientHandle: item.ClientHandle, EventFields: fields})
}

// Acknowledge removes a notification message from the replay cache.
// Acknowledging a sequence number that is not present is a no-op.
func (s *InternalSubscription) Acknowledge(seq uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.notAcknowledged {
		if r.Message.SequenceID == seq {
			s.notAcknowledged = append(s.notAcknowledged[:i], s.notAcknowledged[i+1:]...)
			return
		}
	}
}

// Republish returns a previously emitted, not-yet-acknowledged notification
// message by sequence number, or StatusBadMessageNotAvailable.
func (s *InternalSubscription) Republish(seq uint32) (*NotificationMessage, ua.StatusCode) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.notAcknowledged {
		if r.Message.SequenceID == seq {
			msg := r.Message
			return &msg, ua.StatusOK
		}
	}
	return nil, ua.StatusBadMessageNotAvailable
}

// runTick is the periodic decision procedure. It must only be called from
// the timer goroutine. Returning false stops the timer permanently.
func (s *InternalSubscription) runTick() bool {
	start := time.Now()
	defer func() {
		s.metrics.ObserveTickDuration(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	if s.timerStopped {
		s.mu.Unlock()
		return false
	}

	if s.keepAliveCount > s.data.RevisedLifetimeCount {
		s.timerStopped = true
		s.mu.Unlock()
		s.metrics.IncSubscriptionsExpired()
		s.logger.Debug().Msg("subscription lifetime exceeded; stopping tick loop")
		return false
	}

	hasResult := s.startup || len(s.dataChangeQueue) > 0 || len(s.eventQueue) > 0
	if !hasResult && s.keepAliveCount > s.data.RevisedMaxKeepAliveCount {
		hasResult = true
	}

	if !hasResult {
		s.keepAliveCount++
		s.mu.Unlock()
		return true
	}

	// popPublishRequest takes the service lock, which is always acquired
	// before a subscription's lock, so the subscription lock is released
	// around the call.
	s.mu.Unlock()
	if !s.service.popPublishRequest(s.data.SessionToken) {
		// Had something to send but no publish request was available to
		// carry it. Counted against lifetime like any other empty tick,
		// preserving the source's credit-starvation behavior.
		s.mu.Lock()
		s.keepAliveCount++
		s.mu.Unlock()
		return true
	}

	s.mu.Lock()
	if s.timerStopped {
		s.mu.Unlock()
		return false
	}
	result := s.assembleLocked(time.Now())
	s.mu.Unlock()

	s.invokeCallback(result)
	return true
}

// assembleLocked drains the pending queues into a PublishResult, resets the
// keep-alive counter, and records the result in the not-acknowledged cache.
// Caller must hold s.mu.
func (s *InternalSubscription) assembleLocked(now time.Time) PublishResult {
	result := PublishResult{
		SubscriptionID: s.data.SubscriptionID,
		PublishTime:    now,
	}

	if len(s.dataChangeQueue) > 0 {
		items := make([]*ua.MonitoredItemNotification, len(s.dataChangeQueue))
		for i, e := range s.dataChangeQueue {
			items[i] = &ua.MonitoredItemNotification{ClientHandle: e.ClientHandle, Value: e.Value}
		}
		s.dataChangeQueue = nil
		result.Message.Data = append(result.Message.Data, DataChangeNotificationData{&ua.DataChangeNotification{MonitoredItems: items}})
		result.Statuses = append(result.Statuses, ua.StatusOK)
	}

	if len(s.eventQueue) > 0 {
		events := make([]*ua.EventFieldList, len(s.eventQueue))
		copy(events, s.eventQueue)
		s.eventQueue = nil
		result.Message.Data = append(result.Message.Data, EventNotificationData{&ua.EventNotificationList{Events: events}})
		result.Statuses = append(result.Statuses, ua.StatusOK)
	}

	s.keepAliveCount = 0
	s.startup = false

	result.AvailableSequenceNumbers = s.sequenceNumbersLocked()
	result.Message.SequenceID = s.notificationSeq
	result.Message.PublishTime = now
	s.notificationSeq++

	s.notAcknowledged = append(s.notAcknowledged, result)
	return result
}

func (s *InternalSubscription) sequenceNumbersLocked() []uint32 {
	nums := make([]uint32, len(s.notAcknowledged))
	for i, r := range s.notAcknowledged {
		nums[i] = r.Message.SequenceID
	}
	return nums
}

// invokeCallback runs the user-supplied publish callback through the
// circuit breaker. The callback has no error return, so a panic recovered
// into callErr is the only failure the breaker can see; without the
// recover, gobreaker.Execute re-panics after recording it and this tick's
// goroutine would die instead of the breaker ever tripping.
func (s *InternalSubscription) invokeCallback(result PublishResult) {
	_, err := s.breaker.Execute(func() (_ interface{}, callErr error) {
		defer func() {
			if r := recover(); r != nil {
				callErr = fmt.Errorf("publish callback panicked: %v", r)
			}
		}()
		s.callback(result)
		return nil, nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("publish callback unavailable")
		return
	}

	for _, entry := range result.Message.Data {
		switch entry.(type) {
		case DataChangeNotificationData:
			s.metrics.IncNotificationsEmitted("data_change")
		case EventNotificationData:
			s.metrics.IncNotificationsEmitted("event")
		}
	}
	if len(result.Message.Data) == 0 {
		s.metrics.IncNotificationsEmitted("keep_alive")
	}
}
