package models

type AgentStatus string

const (
	StatusPending    AgentStatus = "pending"
	StatusInProgress AgentStatus = "in_progress"
	StatusCompleted  AgentStatus = "completed"
	StatusError      AgentStatus = "error"
)

func (s AgentStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	}
	return -1
}

// Terminal reports whether no further transitions are allowed.
func (s AgentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether s may move to next.
func (s AgentStatus) CanTransition(next AgentStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusError {
		return true
	}
	nr := next.rank()
	return nr >= 0 && nr > s.rank()
}
