package filter

// State is the lifecycle position of a filter.
type State int32

const (
	Active State = iota
	Closed
	Deleting
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Closed:
		return "closed"
	case Deleting:
		return "deleting"
	}
	return "unknown"
}
