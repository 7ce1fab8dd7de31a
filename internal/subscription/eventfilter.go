package subscription

import "github.com/gopcua/opcua/ua"

// Well-known event field names that short-circuit to a builtin getter
// instead of a generic Event.Value lookup, per Part 5's BaseEventType.
const (
	fieldEventID      = "EventId"
	fieldEventType    = "EventType"
	fieldSourceNode   = "SourceNode"
	fieldSourceName   = "SourceName"
	fieldMessage      = "Message"
	fieldSeverity     = "Severity"
	fieldLocalTime    = "LocalTime"
	fieldReceiveTime  = "ReceiveTime"
	fieldTime         = "Time"
)

// ProjectEventFields resolves an EventFilter's select clauses against a
// triggered event, in order, producing the EventFieldList payload. A clause
// that cannot be resolved contributes a nil entry rather than shortening the
// list, so client-side field indexing by position still lines up.
func ProjectEventFields(selectClauses []*ua.SimpleAttributeOperand, event Event) []*ua.Variant {
	fields := make([]*ua.Variant, len(selectClauses))
	for i, clause := range selectClauses {
		fields[i] = projectClause(clause, event)
	}
	return fields
}

func projectClause(clause *ua.SimpleAttributeOperand, event Event) *ua.Variant {
	if len(clause.BrowsePath) == 0 {
		if v, ok := event.AttributeValue(clause.AttributeID); ok {
			return v
		}
		return nil
	}

	if v, ok := builtinField(clause.BrowsePath[0].Name, event); ok {
		return v
	}

	if v, ok := event.Value(clause.BrowsePath); ok {
		return v
	}
	return nil
}

func builtinField(name string, event Event) (*ua.Variant, bool) {
	switch name {
	case fieldEventID:
		return ua.MustVariant(event.EventID()), true
	case fieldEventType:
		return ua.MustVariant(event.EventType()), true
	case fieldSourceNode:
		return ua.MustVariant(event.SourceNode()), true
	case fieldSourceName:
		return ua.MustVariant(event.SourceName()), true
	case fieldMessage:
		return ua.MustVariant(event.Message()), true
	case fieldSeverity:
		return ua.MustVariant(event.Severity()), true
	case fieldLocalTime:
		return ua.MustVariant(event.LocalTime()), true
	case fieldReceiveTime:
		return ua.MustVariant(event.ReceiveTime()), true
	case fieldTime:
		return ua.MustVariant(event.Time()), true
	default:
		return nil, false
	}
}
