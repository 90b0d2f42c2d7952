package domain

// Job status constants. Transitions only move forward:
// pending -> running -> finished. failed is reserved.
const (
	JobStatusPending  = "pending"
	JobStatusRunning  = "running"
	JobStatusFinished = "finished"
	JobStatusFailed   = "failed"
)

// MaxItemsPerJob bounds the broker load a single request can create
const MaxItemsPerJob = 1000

// MaxKeyWidth is the widest CEP the schema stores
const MaxKeyWidth = 16

// Item result messages
const (
	MessageItemNotFound = "CEP not found"
	MessageFetchError   = "Error fetching CEP"
)

// statusRank orders statuses so a transition can be checked for regression
var statusRank = map[string]int{
	JobStatusPending:  0,
	JobStatusRunning:  1,
	JobStatusFinished: 2,
	JobStatusFailed:   2,
}

// IsTerminalStatus reports whether no further transition is allowed
func IsTerminalStatus(status string) bool {
	return status == JobStatusFinished || status == JobStatusFailed
}

// CanTransition reports whether moving from one status to another keeps the
// status sequence monotonic.
func CanTransition(from, to string) bool {
	if IsTerminalStatus(from) {
		return false
	}
	return statusRank[to] > statusRank[from]
}
