package reminder

// Tone tells the notification renderer which wording a reminder ordinal gets.
type Tone string

const (
	ToneFirstNudge  Tone = "first_nudge"
	ToneMidReminder Tone = "mid_reminder"
	ToneLastChance  Tone = "last_chance"
	ToneGeneric     Tone = "generic"
)

func ToneFor(ordinal int) Tone {
	switch ordinal {
	case 1:
		return ToneFirstNudge
	case 2:
		return ToneMidReminder
	case 3:
		return ToneLastChance
	default:
		return ToneGeneric
	}
}

func (t Tone) Subject() string {
	switch t {
	case ToneFirstNudge:
		return "You left items in your cart!"
	case ToneMidReminder:
		return "Your cart is waiting for you"
	case ToneLastChance:
		return "Last chance - Complete your order"
	default:
		return "Cart Reminder"
	}
}
