package schedule

import (
	"fmt"
	"sort"
	"strings"
)

// Slot is a bookable half-open window [Start, End).
type Slot struct {
	Start TimeOfDay `json:"start" yaml:"start"`
	End   TimeOfDay `json:"end" yaml:"end"`
}

func NewSlot(start, end TimeOfDay) (Slot, error) {
	s := Slot{Start: start, End: end}
	if err := s.Validate(); err != nil {
		return Slot{}, err
	}
	return s, nil
}

// ParseSlot parses "HH:MM-HH:MM".
func ParseSlot(raw string) (Slot, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "-", 2)
	if len(parts) != 2 {
		return Slot{}, fmt.Errorf("invalid slot %q: expected HH:MM-HH:MM", raw)
	}
	start, err := ParseTimeOfDay(parts[0])
	if err != nil {
		return Slot{}, err
	}
	end, err := ParseTimeOfDay(parts[1])
	if err != nil {
		return Slot{}, err
	}
	return NewSlot(start, end)
}

func (s Slot) Validate() error {
	if s.Start < 0 || s.Start >= MinutesPerDay {
		return fmt.Errorf("slot start %s out of range", s.Start)
	}
	if s.End <= 0 || s.End > MinutesPerDay {
		return fmt.Errorf("slot end %s out of range", s.End)
	}
	if s.Start >= s.End {
		return fmt.Errorf("slot start %s must be before end %s", s.Start, s.End)
	}
	return nil
}

func (s Slot) String() string {
	return s.Start.String() + "-" + s.End.String()
}

func (s Slot) Duration() int {
	return int(s.End - s.Start)
}

// Overlaps reports whether two half-open intervals intersect. Touching endpoints do not.
func (s Slot) Overlaps(o Slot) bool {
	return s.Start < o.End && s.End > o.Start
}

// SortSlots orders slots by start, then end.
func SortSlots(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Start == slots[j].Start {
			return slots[i].End < slots[j].End
		}
		return slots[i].Start < slots[j].Start
	})
}

// Contains reports whether slots has an entry equal to target.
func Contains(slots []Slot, target Slot) bool {
	for _, s := range slots {
		if s == target {
			return true
		}
	}
	return false
}
