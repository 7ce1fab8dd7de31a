package subscription

import (
	"sync"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"
)

// maxPublishRequestCredits is the hard ceiling on outstanding Publish
// requests a session may bank, matching the server's own practical limit on
// how many it will hold open at once.
const maxPublishRequestCredits = 100

// ServiceConfig tunes the registry-wide knobs of a SubscriptionService.
type ServiceConfig struct {
	// MaxPublishRequestCredits caps the number of Publish requests a
	// session may have outstanding at once. Zero selects the default (100).
	MaxPublishRequestCredits uint32
	Debug                    bool
}

// SubscriptionService is the registry of all subscriptions for a server
// session layer: it owns subscription id allocation, the per-session
// publish-request credit ledger, and event fan-out to every subscription
// that has a monitored event notifier on the triggering node.
type SubscriptionService struct {
	mu                    sync.RWMutex
	subscriptions         map[SubscriptionID]*InternalSubscription
	lastSubscriptionID    SubscriptionID
	publishRequestCredits map[string]uint32

	config       ServiceConfig
	addressSpace AddressSpace
	eventIDs     *EventIDGenerator
	metrics      metricsSink
	logger       zerolog.Logger
}

// NewService constructs a registry backed by addressSpace. metrics and
// logger are attached to every subscription the service creates.
func NewService(cfg ServiceConfig, addressSpace AddressSpace, metrics metricsSink, logger zerolog.Logger) *SubscriptionService {
	if cfg.MaxPublishRequestCredits == 0 {
		cfg.MaxPublishRequestCredits = maxPublishRequestCredits
	}
	return &SubscriptionService{
		subscriptions:         make(map[SubscriptionID]*InternalSubscription),
		publishRequestCredits: make(map[string]uint32),
		config:                cfg,
		addressSpace:          addressSpace,
		eventIDs:              NewEventIDGenerator(time.Now().UnixNano()),
		metrics:               metrics,
		logger:                logger.With().Str("component", "subscription-service").Logger(),
	}
}

// CreateSubscription allocates and starts a new subscription. callback is
// invoked on every emission (data-change, event, or keep-alive).
func (svc *SubscriptionService) CreateSubscription(req *ua.CreateSubscriptionRequest, sessionToken *ua.NodeID, callback PublishCallback) SubscriptionData {
	svc.mu.Lock()
	svc.lastSubscriptionID++
	id := svc.lastSubscriptionID

	data := SubscriptionData{
		SubscriptionID:            id,
		RevisedPublishingInterval: time.Duration(req.RequestedPublishingInterval) * time.Millisecond,
		RevisedLifetimeCount:      req.RequestedLifetimeCount,
		RevisedMaxKeepAliveCount:  req.RequestedMaxKeepAliveCount,
		SessionToken:              sessionToken,
	}

	sub := newInternalSubscription(data, svc.addressSpace, svc, callback, svc.logger, svc.metrics, svc.config.Debug)
	svc.subscriptions[id] = sub
	svc.mu.Unlock()

	sub.Start()
	svc.metrics.SetActiveSubscriptions(svc.ActiveSubscriptions())
	return data
}

// DeleteSubscriptions stops and removes each named subscription, returning
// a per-id status in the same order as ids.
func (svc *SubscriptionService) DeleteSubscriptions(ids []SubscriptionID) []ua.StatusCode {
	statuses := make([]ua.StatusCode, len(ids))
	for i, id := range ids {
		statuses[i] = svc.deleteSubscription(id)
	}
	svc.metrics.SetActiveSubscriptions(svc.ActiveSubscriptions())
	return statuses
}

func (svc *SubscriptionService) deleteSubscription(id SubscriptionID) ua.StatusCode {
	svc.mu.Lock()
	sub, ok := svc.subscriptions[id]
	if ok {
		delete(svc.subscriptions, id)
	}
	svc.mu.Unlock()

	if !ok {
		return ua.StatusBadSubscriptionIDInvalid
	}

	sub.Stop()
	sub.deleteAllMonitoredItems()
	return ua.StatusOK
}

// DeleteAllSubscriptions tears down every subscription currently registered,
// across all sessions, e.g. on server shutdown.
func (svc *SubscriptionService) DeleteAllSubscriptions() []ua.StatusCode {
	svc.mu.RLock()
	ids := make([]SubscriptionID, 0, len(svc.subscriptions))
	for id := range svc.subscriptions {
		ids = append(ids, id)
	}
	svc.mu.RUnlock()
	return svc.DeleteSubscriptions(ids)
}

// CreateMonitoredItems registers items against subID, or returns
// StatusBadSubscriptionIDInvalid for every item if subID is unknown.
func (svc *SubscriptionService) CreateMonitoredItems(subID SubscriptionID, items []*ua.MonitoredItemCreateRequest) []*ua.MonitoredItemCreateResult {
	svc.mu.RLock()
	sub, ok := svc.subscriptions[subID]
	svc.mu.RUnlock()

	results := make([]*ua.MonitoredItemCreateResult, len(items))
	if !ok {
		for i := range results {
			results[i] = &ua.MonitoredItemCreateResult{StatusCode: ua.StatusBadSubscriptionIDInvalid}
		}
		return results
	}

	for i, item := range items {
		results[i] = sub.CreateMonitoredItem(item)
	}
	svc.metrics.SetActiveMonitoredItems(svc.ActiveMonitoredItems())
	return results
}

// DeleteMonitoredItems unregisters items from subID, or returns
// StatusBadSubscriptionIDInvalid for every id if subID is unknown.
func (svc *SubscriptionService) DeleteMonitoredItems(subID SubscriptionID, ids []MonitoredItemID) []ua.StatusCode {
	svc.mu.RLock()
	sub, ok := svc.subscriptions[subID]
	svc.mu.RUnlock()

	if !ok {
		statuses := make([]ua.StatusCode, len(ids))
		for i := range statuses {
			statuses[i] = ua.StatusBadSubscriptionIDInvalid
		}
		return statuses
	}
	statuses := sub.DeleteMonitoredItemsIDs(ids)
	svc.metrics.SetActiveMonitoredItems(svc.ActiveMonitoredItems())
	return statuses
}

// Publish credits sessionToken with one outstanding publish request (up to
// the configured cap, silently clamped beyond it) and processes any
// piggybacked acknowledgements.
func (svc *SubscriptionService) Publish(sessionToken *ua.NodeID, acks []*ua.SubscriptionAcknowledgement) {
	key := sessionToken.String()

	svc.mu.Lock()
	credits := svc.publishRequestCredits[key]
	if credits < svc.config.MaxPublishRequestCredits {
		svc.publishRequestCredits[key] = credits + 1
		svc.metrics.IncPublishRequestsCredited()
	} else {
		svc.logger.Debug().Str("session", key).Msg("publish request credit clamped at maximum")
	}
	svc.mu.Unlock()

	for _, ack := range acks {
		svc.mu.RLock()
		sub, ok := svc.subscriptions[ack.SubscriptionID]
		svc.mu.RUnlock()
		if ok {
			sub.Acknowledge(ack.SequenceNumber)
		}
	}
}

// popPublishRequest consumes one credited publish request for sessionToken.
// It returns false, logging a warning, if the session is unknown or out of
// credit.
func (svc *SubscriptionService) popPublishRequest(sessionToken *ua.NodeID) bool {
	key := sessionToken.String()

	svc.mu.Lock()
	defer svc.mu.Unlock()

	credits, ok := svc.publishRequestCredits[key]
	if !ok || credits == 0 {
		svc.logger.Warn().Str("session", key).Msg("no publish request credit available")
		return false
	}
	svc.publishRequestCredits[key] = credits - 1
	svc.metrics.IncPublishRequestsConsumed()
	return true
}

// Republish returns a cached notification message for subID by sequence
// number.
func (svc *SubscriptionService) Republish(subID SubscriptionID, retransmitSequenceNumber uint32) *RepublishResponse {
	svc.mu.RLock()
	sub, ok := svc.subscriptions[subID]
	svc.mu.RUnlock()

	if !ok {
		svc.metrics.IncRepublishRequests("not_available")
		return &RepublishResponse{Header: ResponseHeader{ServiceResult: ua.StatusBadSubscriptionIDInvalid}}
	}

	msg, status := sub.Republish(retransmitSequenceNumber)
	if status == ua.StatusOK {
		svc.metrics.IncRepublishRequests("ok")
	} else {
		svc.metrics.IncRepublishRequests("not_available")
	}
	return &RepublishResponse{Header: ResponseHeader{ServiceResult: status}, NotificationMessage: msg}
}

// TriggerEvent stamps event with a fresh id if it doesn't already have one,
// then fans it out to every subscription with a monitored event notifier on
// node.
func (svc *SubscriptionService) TriggerEvent(node *ua.NodeID, event Event) {
	if len(event.EventID()) == 0 {
		event.SetEventID(svc.eventIDs.Generate())
	}

	svc.mu.RLock()
	defer svc.mu.RUnlock()
	for _, sub := range svc.subscriptions {
		sub.TriggerEvent(node, event)
	}
}

// Healthy reports whether the registry lock is currently obtainable,
// letting a health check detect a wedged service without blocking on it.
func (svc *SubscriptionService) Healthy() bool {
	if !svc.mu.TryRLock() {
		return false
	}
	svc.mu.RUnlock()
	return true
}

// ActiveSubscriptions returns the number of subscriptions currently
// registered.
func (svc *SubscriptionService) ActiveSubscriptions() int {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return len(svc.subscriptions)
}

// ActiveMonitoredItems returns the number of monitored items across every
// registered subscription.
func (svc *SubscriptionService) ActiveMonitoredItems() int {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	total := 0
	for _, sub := range svc.subscriptions {
		total += sub.monitoredItemCount()
	}
	return total
}
