package sequencer

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidTimeOrFrequency = errors.New("impossible value for a time or a frequency")
	ErrUnknownFrequencyID     = errors.New("unassigned frequency id")
	ErrUnknownInstrumentID    = errors.New("unassigned instrument id")
	ErrUnknownKeyID           = errors.New("no key generated for frequency id")
	ErrNoDefaultKey           = errors.New("no key generator and no default key to change the pitch of")
	ErrEmptyKey               = errors.New("key holds no audio")
	ErrChannelMismatch        = errors.New("channel count mismatch")
	ErrInvalidNote            = errors.New("malformed note")
	ErrInvalidLoop            = errors.New("malformed loop")
)

// smallestNormal is the smallest positive normal float64.
const smallestNormal = 0x1p-1022

// ValidTimeOrFrequency reports whether v is usable as a duration or a
// frequency: finite, normal and strictly positive.
func ValidTimeOrFrequency(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= smallestNormal
}

// CheckTimeOrFrequency returns ErrInvalidTimeOrFrequency wrapping v when v
// is not a usable time or frequency.
func CheckTimeOrFrequency(v float64) error {
	if !ValidTimeOrFrequency(v) {
		return fmt.Errorf("%w: %v", ErrInvalidTimeOrFrequency, v)
	}
	return nil
}
