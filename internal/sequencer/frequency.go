package sequencer

import (
	"fmt"
	"slices"
)

// FrequencyLookupTable maps frequency ids to Hertz. Values are checked on
// every read so a corrupted entry is caught where it is used.
type FrequencyLookupTable map[uint32]float64

// Get returns the frequency for id.
func (t FrequencyLookupTable) Get(id uint32) (float64, error) {
	hz, ok := t[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownFrequencyID, id)
	}
	if err := CheckTimeOrFrequency(hz); err != nil {
		return 0, fmt.Errorf("frequency id %d: %w", id, err)
	}
	return hz, nil
}

// Set stores hz under id after validating it.
func (t FrequencyLookupTable) Set(id uint32, hz float64) error {
	if err := CheckTimeOrFrequency(hz); err != nil {
		return err
	}
	t[id] = hz
	return nil
}

// IDs returns the stored ids in ascending order.
func (t FrequencyLookupTable) IDs() []uint32 {
	ids := make([]uint32, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
