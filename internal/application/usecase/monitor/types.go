package monitor

import "errors"

// ErrNoMarkets is returned by Run when no coin is configured.
var ErrNoMarkets = errors.New("no markets to monitor")

// Outcome classifies one sampling attempt.
type Outcome int

const (
	OutcomeStored Outcome = iota
	OutcomeDuplicate
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "failed"
	}
}
