package settings

// GetResult classifies the outcome of Store.Get.
type GetResult int

const (
	// Success means a record was found at the requested priority (or,
	// for HighestPriority reads, at whichever priority currently wins).
	Success GetResult = iota
	// Default means no record exists at any priority but a schema
	// default applies.
	Default
	// NotSet means the name is known (bound in the schema, or at
	// least one record exists for it) but no value and no default
	// apply to the requested selector.
	NotSet
	// PriorityNotFound means the name has records, just not at the
	// requested priority.
	PriorityNotFound
	// Unknown means the name is not bound in the schema and has no
	// stored records at all.
	Unknown
	// Error means the request itself was malformed.
	Error
)

func (r GetResult) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case Default:
		return "DEFAULT"
	case NotSet:
		return "NOT_SET"
	case PriorityNotFound:
		return "PRIORITY_NOT_FOUND"
	case Unknown:
		return "UNKNOWN"
	case Error:
		return "ERROR"
	default:
		return "ERROR"
	}
}

// SetResult classifies the outcome of Store.Set.
type SetResult int

const (
	// New means the setting had no records at all before this write.
	New SetResult = iota
	// NewPriority means the setting existed but had no record at this
	// priority before this write.
	NewPriority
	// Changed means a record existed at this priority and its text
	// changed.
	Changed
	// Newer means a record existed at this priority with the same
	// text, and this write carries a newer timestamp (accepted but a
	// no-op from the value's point of view).
	Newer
	// Unchanged means a record existed at this priority with the same
	// or newer timestamp and the write was rejected as stale.
	Unchanged
	// SetUnknown means the name is not bound in the schema and schema
	// validation is enforced.
	SetUnknown
	// SetError means the request itself was malformed (bad priority,
	// bad timestamp, failed validator).
	SetError
)

func (r SetResult) String() string {
	switch r {
	case New:
		return "NEW"
	case NewPriority:
		return "NEW_PRIORITY"
	case Changed:
		return "CHANGED"
	case Newer:
		return "NEWER"
	case Unchanged:
		return "UNCHANGED"
	case SetUnknown:
		return "UNKNOWN"
	case SetError:
		return "ERROR"
	default:
		return "ERROR"
	}
}
