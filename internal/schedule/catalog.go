package schedule

import (
	"fmt"
	"time"
)

// DefaultSlots is the club-wide catalog used when neither config nor field hours define one.
var DefaultSlots = []Slot{
	{Start: 16 * 60, End: 17 * 60},
	{Start: 18 * 60, End: 19 * 60},
	{Start: 20 * 60, End: 21 * 60},
	{Start: 21 * 60, End: 22 * 60},
}

// Rule is a weekly hours entry of a field. A nil Weekday applies to every day without its own rules.
type Rule struct {
	Weekday *time.Weekday
	Slot    Slot
}

// Catalog resolves the bookable slots of a field for a date.
type Catalog struct {
	defaults []Slot
}

func NewCatalog(defaults []Slot) (*Catalog, error) {
	if len(defaults) == 0 {
		defaults = DefaultSlots
	}
	out := make([]Slot, len(defaults))
	copy(out, defaults)
	for _, s := range out {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	SortSlots(out)
	return &Catalog{defaults: out}, nil
}

// Defaults returns a copy of the club-wide slots.
func (c *Catalog) Defaults() []Slot {
	out := make([]Slot, len(c.defaults))
	copy(out, c.defaults)
	return out
}

// SlotsFor picks weekday-specific rules first, then the field defaults, then the club-wide list.
func (c *Catalog) SlotsFor(rules []Rule, weekday time.Weekday) []Slot {
	var specific, generic []Slot
	for _, r := range rules {
		switch {
		case r.Weekday == nil:
			generic = append(generic, r.Slot)
		case *r.Weekday == weekday:
			specific = append(specific, r.Slot)
		}
	}

	var out []Slot
	switch {
	case len(specific) > 0:
		out = specific
	case len(generic) > 0:
		out = generic
	default:
		return c.Defaults()
	}
	SortSlots(out)
	return out
}
