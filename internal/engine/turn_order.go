package engine

// seat says which side of the pairing owns a step; it is resolved to a
// concrete TeamID when the order is planned.
type seat int

const (
	seatA seat = iota
	seatB
)

type slot struct {
	Seat   seat
	Action Action
}

var vetoTables = map[Format][]slot{
	FormatSingle: {
		{Seat: seatB, Action: ActionBan},
		{Seat: seatA, Action: ActionBan},
		{Seat: seatB, Action: ActionBan},
		{Seat: seatA, Action: ActionBan},
		{Seat: seatB, Action: ActionBan},
		{Seat: seatA, Action: ActionPick},
	},
	FormatBestOfThree: {
		{Seat: seatA, Action: ActionBan},
		{Seat: seatB, Action: ActionBan},
		{Seat: seatA, Action: ActionPick},
		{Seat: seatB, Action: ActionPick},
		{Seat: seatB, Action: ActionBan},
		{Seat: seatA, Action: ActionPick},
	},
	FormatBestOfFive: {
		{Seat: seatA, Action: ActionBan},
		{Seat: seatB, Action: ActionBan},
		{Seat: seatA, Action: ActionPick},
		{Seat: seatB, Action: ActionPick},
		{Seat: seatA, Action: ActionPick},
		{Seat: seatB, Action: ActionPick},
		{Seat: seatA, Action: ActionPick},
	},
}

// PlanVetoOrder returns the ban/pick sequence for format with every step
// still unresolved.
func PlanVetoOrder(format Format, teamA, teamB TeamID) ([]VetoStep, error) {
	table, ok := vetoTables[format]
	if !ok {
		return nil, ErrUnknownFormat
	}

	steps := make([]VetoStep, len(table))
	for i, sl := range table {
		team := teamA
		if sl.Seat == seatB {
			team = teamB
		}
		steps[i] = VetoStep{Team: team, Action: sl.Action}
	}
	return steps, nil
}

// MinPoolSize is the smallest map pool that lets every step of format
// resolve to a distinct map.
func MinPoolSize(format Format) int {
	return len(vetoTables[format])
}

// PickCount is the number of maps a format plays.
func PickCount(format Format) int {
	n := 0
	for _, sl := range vetoTables[format] {
		if sl.Action == ActionPick {
			n++
		}
	}
	return n
}
