package watcher

// State is a card watcher lifecycle state.
type State int

const (
	// StateNoCard waits for a card to be presented.
	StateNoCard State = iota
	// StateCardPresentUnprocessed holds a session to a card whose UID has not
	// been read yet.
	StateCardPresentUnprocessed
	// StateCardPresentProcessed waits for the processed card to leave the field.
	StateCardPresentProcessed
)

func (s State) String() string {
	switch s {
	case StateNoCard:
		return "no_card"
	case StateCardPresentUnprocessed:
		return "card_present_unprocessed"
	case StateCardPresentProcessed:
		return "card_present_processed"
	default:
		return "unknown"
	}
}
