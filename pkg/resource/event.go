package resource

// Operation is the kind of mutation that produced an event.
type Operation uint8

const (
	OpCreate Operation = iota
	OpUpdate
	OpDelete
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one resource change produced by the write path. Resource holds
// the post-mutation instance; for deletes it is the last known version and
// may be nil.
type Event struct {
	Kind       Kind
	ResourceID string
	Resource   *Resource
	Operation  Operation
}

// NewEvent creates an event for a mutation of r.
func NewEvent(op Operation, r *Resource) Event {
	return Event{
		Kind:       r.Kind,
		ResourceID: r.ID,
		Resource:   r,
		Operation:  op,
	}
}

// Reference returns the reference to the changed resource.
func (e Event) Reference() Reference {
	return Reference{Kind: e.Kind, ID: e.ResourceID}
}
