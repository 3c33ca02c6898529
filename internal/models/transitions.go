package models

// transitionRule lists who may move a reservation from one status to another.
type transitionRule struct {
	from, to string
	actors   []string
}

var transitions = []transitionRule{
	{from: StatusPending, to: StatusConfirmed, actors: []string{ActorStaff, ActorSystem}},
	{from: StatusPending, to: StatusRejected, actors: []string{ActorStaff}},
	{from: StatusPending, to: StatusCancelled, actors: []string{ActorStaff, ActorUser}},
	{from: StatusConfirmed, to: StatusCancelled, actors: []string{ActorStaff, ActorUser}},
	{from: StatusPending, to: StatusExpired, actors: []string{ActorSystem}},
	{from: StatusConfirmed, to: StatusExpired, actors: []string{ActorSystem}},
	{from: StatusCancelled, to: StatusPending, actors: []string{ActorStaff, ActorUser}},
	{from: StatusCancelled, to: StatusConfirmed, actors: []string{ActorStaff}},
}

// TransitionExists reports whether any actor may perform from -> to.
func TransitionExists(from, to string) bool {
	for _, t := range transitions {
		if t.from == from && t.to == to {
			return true
		}
	}
	return false
}

// ActorMayTransition reports whether actor may perform from -> to.
func ActorMayTransition(actor, from, to string) bool {
	for _, t := range transitions {
		if t.from != from || t.to != to {
			continue
		}
		for _, a := range t.actors {
			if a == actor {
				return true
			}
		}
	}
	return false
}
