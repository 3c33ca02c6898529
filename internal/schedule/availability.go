package schedule

// Occupant is anything that holds a field interval, typically a stored reservation.
type Occupant interface {
	Interval() Slot
	IsBlocking() bool
}

// ComputeAvailability returns the catalog slots that overlap no blocking occupant, in catalog order.
// Non-blocking occupants are skipped here so callers can pass every reservation of the day.
func ComputeAvailability[O Occupant](slots []Slot, occupants []O) []Slot {
	blocking := make([]Slot, 0, len(occupants))
	for _, o := range occupants {
		if o.IsBlocking() {
			blocking = append(blocking, o.Interval())
		}
	}

	available := make([]Slot, 0, len(slots))
	for _, slot := range slots {
		free := true
		for _, b := range blocking {
			if slot.Overlaps(b) {
				free = false
				break
			}
		}
		if free {
			available = append(available, slot)
		}
	}
	return available
}

// FirstConflict returns the first blocking occupant overlapping target.
func FirstConflict[O Occupant](target Slot, occupants []O) (O, bool) {
	for _, o := range occupants {
		if o.IsBlocking() && target.Overlaps(o.Interval()) {
			return o, true
		}
	}
	var zero O
	return zero, false
}

// StartingFrom drops slots that start before minStart.
func StartingFrom(slots []Slot, minStart TimeOfDay) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.Start >= minStart {
			out = append(out, s)
		}
	}
	return out
}
