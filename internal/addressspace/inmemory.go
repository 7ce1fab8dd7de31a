// Package addressspace provides a small in-memory OPC UA address space used
// by the demo server (cmd/subscriptiond): a fixed catalog of nodes, loaded
// from YAML, that can be read, written, and subscribed to for data changes.
// It exists to exercise internal/subscription end-to-end; it is not part of
// the engine itself and nothing under internal/subscription imports it.
package addressspace

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/opcua-subscription-engine/internal/subscription"
)

type nodeEntry struct {
	value     *ua.DataValue
	callbacks map[uint32]subscription.DataChangeCallback
}

// InMemory is a fixed-catalog, in-process address space.
type InMemory struct {
	mu         sync.RWMutex
	nodes      map[string]*nodeEntry
	lastHandle uint32
	logger     zerolog.Logger
}

// NewInMemory loads a node catalog from catalogPath and builds an address
// space seeded with each node's initial value.
func NewInMemory(catalogPath string, logger zerolog.Logger) (*InMemory, error) {
	catalog, err := LoadCatalog(catalogPath)
	if err != nil {
		return nil, err
	}

	im := &InMemory{
		nodes:  make(map[string]*nodeEntry),
		logger: logger.With().Str("component", "address-space").Logger(),
	}

	for _, n := range catalog.Nodes {
		nodeID, err := ua.ParseNodeID(n.NodeID)
		if err != nil {
			return nil, fmt.Errorf("parsing node id %q: %w", n.NodeID, err)
		}
		attr := attributeFromName(n.Attribute)
		im.nodes[nodeKey(nodeID, attr)] = &nodeEntry{
			value:     &ua.DataValue{Value: ua.MustVariant(n.InitialValue), SourceTimestamp: time.Now()},
			callbacks: make(map[uint32]subscription.DataChangeCallback),
		}
	}

	return im, nil
}

// Read implements subscription.AddressSpace.
func (im *InMemory) Read(node *ua.NodeID, attribute ua.AttributeID) (*ua.DataValue, error) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	entry, ok := im.nodes[nodeKey(node, attribute)]
	if !ok {
		return nil, fmt.Errorf("node %s attribute %d not found", node, attribute)
	}
	return entry.value, nil
}

// AddDataChangeCallback implements subscription.AddressSpace.
func (im *InMemory) AddDataChangeCallback(node *ua.NodeID, attribute ua.AttributeID, fn subscription.DataChangeCallback) uint32 {
	im.mu.Lock()
	defer im.mu.Unlock()

	entry, ok := im.nodes[nodeKey(node, attribute)]
	if !ok {
		return 0
	}

	im.lastHandle++
	handle := im.lastHandle
	entry.callbacks[handle] = fn
	return handle
}

// DeleteDataChangeCallback implements subscription.AddressSpace. It is
// idempotent: deleting an unknown or already-deleted handle is a no-op.
func (im *InMemory) DeleteDataChangeCallback(handle uint32) {
	im.mu.Lock()
	defer im.mu.Unlock()

	for _, entry := range im.nodes {
		delete(entry.callbacks, handle)
	}
}

// Write updates a node's value and synchronously invokes every registered
// data-change callback for it, outside the address space's own lock.
func (im *InMemory) Write(node *ua.NodeID, attribute ua.AttributeID, value interface{}) error {
	im.mu.Lock()
	entry, ok := im.nodes[nodeKey(node, attribute)]
	if !ok {
		im.mu.Unlock()
		return fmt.Errorf("node %s attribute %d not found", node, attribute)
	}

	dv := &ua.DataValue{Value: ua.MustVariant(value), SourceTimestamp: time.Now()}
	entry.value = dv

	callbacks := make([]subscription.DataChangeCallback, 0, len(entry.callbacks))
	for _, cb := range entry.callbacks {
		callbacks = append(callbacks, cb)
	}
	im.mu.Unlock()

	for _, cb := range callbacks {
		cb(node, attribute, dv)
	}
	return nil
}

// Ready reports whether the address space is usable. A fixed in-memory
// catalog is always ready once constructed.
func (im *InMemory) Ready() bool {
	return im != nil
}

func nodeKey(node *ua.NodeID, attribute ua.AttributeID) string {
	return fmt.Sprintf("%s|%d", node.String(), attribute)
}

func attributeFromName(name string) ua.AttributeID {
	switch name {
	case "EventNotifier":
		return ua.AttributeIDEventNotifier
	case "", "Value":
		return ua.AttributeIDValue
	default:
		return ua.AttributeIDValue
	}
}
