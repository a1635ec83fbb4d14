package reminder

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Slot is one configured reminder: its ordinal and the delay after cart
// creation at which it fires.
type Slot struct {
	Ordinal int
	Offset  time.Duration
}

// Config is the immutable reminder configuration handed to the engine.
type Config struct {
	Enabled bool
	Slots   []Slot
}

// DefaultConfig mirrors the production defaults: 1h, 6h and 24h after creation.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Slots: []Slot{
			{Ordinal: 1, Offset: time.Hour},
			{Ordinal: 2, Offset: 6 * time.Hour},
			{Ordinal: 3, Offset: 24 * time.Hour},
		},
	}
}

// Validate checks that ordinals are positive and unique and offsets are
// positive, and sorts the slots by ordinal.
func (c *Config) Validate() error {
	if len(c.Slots) == 0 && c.Enabled {
		return errors.New("reminders enabled but no slots configured")
	}
	seen := make(map[int]bool, len(c.Slots))
	for _, s := range c.Slots {
		if s.Ordinal < 1 {
			return fmt.Errorf("reminder ordinal %d: must be positive", s.Ordinal)
		}
		if seen[s.Ordinal] {
			return fmt.Errorf("reminder ordinal %d: configured twice", s.Ordinal)
		}
		if s.Offset <= 0 {
			return fmt.Errorf("reminder ordinal %d: offset must be positive, got %s", s.Ordinal, s.Offset)
		}
		seen[s.Ordinal] = true
	}
	sort.Slice(c.Slots, func(i, j int) bool { return c.Slots[i].Ordinal < c.Slots[j].Ordinal })
	return nil
}
