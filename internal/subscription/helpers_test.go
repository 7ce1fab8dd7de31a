package subscription

import (
	"fmt"
	"sync"

	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"
)

// fakeAddressSpace is a minimal in-memory AddressSpace for tests: a fixed
// set of (node, attribute) values with registrable data-change callbacks,
// driven explicitly by test code rather than a background writer.
type fakeAddressSpace struct {
	mu        sync.Mutex
	values    map[string]*ua.DataValue
	callbacks map[uint32]struct {
		node      *ua.NodeID
		attribute ua.AttributeID
		fn        DataChangeCallback
	}
	nextHandle  uint32
	failReads   bool
	failHandles bool
}

func newFakeAddressSpace() *fakeAddressSpace {
	return &fakeAddressSpace{
		values: make(map[string]*ua.DataValue),
		callbacks: make(map[uint32]struct {
			node      *ua.NodeID
			attribute ua.AttributeID
			fn        DataChangeCallback
		}),
	}
}

func (f *fakeAddressSpace) key(node *ua.NodeID, attribute ua.AttributeID) string {
	return fmt.Sprintf("%s|%d", node.String(), attribute)
}

func (f *fakeAddressSpace) seed(node *ua.NodeID, attribute ua.AttributeID, value interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[f.key(node, attribute)] = &ua.DataValue{Value: ua.MustVariant(value)}
}

func (f *fakeAddressSpace) Read(node *ua.NodeID, attribute ua.AttributeID) (*ua.DataValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, assertErr
	}
	dv, ok := f.values[f.key(node, attribute)]
	if !ok {
		return nil, assertErr
	}
	return dv, nil
}

func (f *fakeAddressSpace) AddDataChangeCallback(node *ua.NodeID, attribute ua.AttributeID, fn DataChangeCallback) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHandles {
		return 0
	}
	f.nextHandle++
	handle := f.nextHandle
	f.callbacks[handle] = struct {
		node      *ua.NodeID
		attribute ua.AttributeID
		fn        DataChangeCallback
	}{node, attribute, fn}
	return handle
}

func (f *fakeAddressSpace) DeleteDataChangeCallback(handle uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.callbacks, handle)
}

// write updates a node's value and invokes every registered callback for
// it, mirroring addressspace.InMemory.Write closely enough for tests.
func (f *fakeAddressSpace) write(node *ua.NodeID, attribute ua.AttributeID, value interface{}) {
	f.mu.Lock()
	dv := &ua.DataValue{Value: ua.MustVariant(value)}
	f.values[f.key(node, attribute)] = dv

	var toCall []DataChangeCallback
	for _, cb := range f.callbacks {
		if cb.node.String() == node.String() && cb.attribute == attribute {
			toCall = append(toCall, cb.fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range toCall {
		fn(node, attribute, dv)
	}
}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

var assertErr = &fakeErr{msg: "not found"}

// fakeMetrics is a no-op metricsSink that also counts calls, so tests can
// assert on emission counts without depending on Prometheus.
type fakeMetrics struct {
	mu                          sync.Mutex
	notificationsEmitted        map[string]int
	subscriptionsExpired        int
	publishRequestsCredited     int
	publishRequestsConsumed     int
	republishRequests           map[string]int
	activeSubscriptions         int
	activeMonitoredItems        int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		notificationsEmitted: make(map[string]int),
		republishRequests:    make(map[string]int),
	}
}

func (f *fakeMetrics) IncNotificationsEmitted(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notificationsEmitted[channel]++
}
func (f *fakeMetrics) IncSubscriptionsExpired() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptionsExpired++
}
func (f *fakeMetrics) ObserveTickDuration(seconds float64) {}
func (f *fakeMetrics) IncPublishRequestsCredited() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishRequestsCredited++
}
func (f *fakeMetrics) IncPublishRequestsConsumed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishRequestsConsumed++
}
func (f *fakeMetrics) IncRepublishRequests(result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.republishRequests[result]++
}
func (f *fakeMetrics) SetActiveSubscriptions(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeSubscriptions = n
}
func (f *fakeMetrics) SetActiveMonitoredItems(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeMonitoredItems = n
}

func (f *fakeMetrics) emittedCount(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notificationsEmitted[channel]
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
