package cart

type Status string

const (
	StatusActive    Status = "active"
	StatusFinalized Status = "finalized"
	// StatusAbandoned is terminal like finalized; nothing in this service sets it.
	StatusAbandoned Status = "abandoned"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusFinalized, StatusAbandoned:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusAbandoned
}

type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderCancelled ReminderStatus = "cancelled"
)

func (s ReminderStatus) Valid() bool {
	switch s {
	case ReminderPending, ReminderSent, ReminderCancelled:
		return true
	default:
		return false
	}
}
