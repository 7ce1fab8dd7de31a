package subscription

import "github.com/gopcua/opcua/ua"

// newMonitoredItem builds a MonitoredItem from a create request. The event
// filter is captured only when req.ItemToMonitor.AttributeID is
// EventNotifier; the address-space callback handle is left zero for the
// caller to fill in.
func newMonitoredItem(id MonitoredItemID, req *ua.MonitoredItemCreateRequest) *MonitoredItem {
	var handle ClientHandle
	if req.RequestedParameters != nil {
		handle = req.RequestedParameters.ClientHandle
	}

	item := &MonitoredItem{
		ID:           id,
		ClientHandle: handle,
		Node:         req.ItemToMonitor.NodeID,
		Attribute:    req.ItemToMonitor.AttributeID,
		Mode:         req.MonitoringMode,
	}

	if item.Attribute == ua.AttributeIDEventNotifier {
		item.Filter = filterFromParameters(req.RequestedParameters)
	}

	return item
}

func (i *MonitoredItem) isEvent() bool {
	return i.Attribute == ua.AttributeIDEventNotifier
}
