package constants

// ConnectionStatus is the canonical state of a user's calendar connection.
type ConnectionStatus string

// Stable values (store these exact strings in DB).
const (
	StatusDisconnected         ConnectionStatus = "disconnected"
	StatusPendingAuthorization ConnectionStatus = "pending_authorization"
	StatusConnected            ConnectionStatus = "connected"
)

// allowedTransitions lists every legal move of the connection state machine.
var allowedTransitions = map[ConnectionStatus][]ConnectionStatus{
	StatusDisconnected:         {StatusPendingAuthorization},
	StatusPendingAuthorization: {StatusPendingAuthorization, StatusConnected, StatusDisconnected},
	StatusConnected:            {StatusDisconnected},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to ConnectionStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known states.
func (s ConnectionStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// ProviderGoogle is the only calendar provider wired today.
const ProviderGoogle = "google"

// DateFieldKind names a date field of a syllabus that maps to a calendar event.
type DateFieldKind string

const (
	FieldFirstClass DateFieldKind = "first_class"
	FieldLastClass  DateFieldKind = "last_class"
	FieldMidterm    DateFieldKind = "midterm"
	FieldFinalExam  DateFieldKind = "final_exam"
)

// Label is the human readable name used in event titles.
func (k DateFieldKind) Label() string {
	switch k {
	case FieldFirstClass:
		return "First Class"
	case FieldLastClass:
		return "Last Class"
	case FieldMidterm:
		return "Midterm"
	case FieldFinalExam:
		return "Final Exam"
	}
	return string(k)
}
