package campaign

var transitions = map[Status][]Status{
	StatusDraft:     {StatusActive, StatusCancelled},
	StatusActive:    {StatusPaused, StatusCompleted, StatusCancelled},
	StatusPaused:    {StatusActive, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// Statuses lists every campaign status.
func Statuses() []Status {
	return []Status{StatusDraft, StatusActive, StatusPaused, StatusCompleted, StatusCancelled}
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
