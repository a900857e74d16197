package engine

import (
	"fmt"
	"slices"

	"github.com/mitchellh/copystructure"
)

// NewState prepares a setup waiting for team B to choose a server.
func NewState(m Match, pool []string, servers []MatchServer) (State, error) {
	order, err := PlanVetoOrder(m.Format, m.TeamA, m.TeamB)
	if err != nil {
		return State{}, err
	}
	if len(pool) < len(order) {
		return State{}, fmt.Errorf("%w: %s needs %d maps, pool has %d", ErrPoolTooSmall, m.Format, len(order), len(pool))
	}
	if len(servers) == 0 {
		return State{}, ErrNoServers
	}

	return State{
		MatchID:       m.ID,
		TeamA:         m.TeamA,
		TeamB:         m.TeamB,
		TeamAName:     m.TeamAName,
		TeamBName:     m.TeamBName,
		Format:        m.Format,
		Phase:         PhaseServerPick,
		Servers:       slices.Clone(servers),
		MapsRemaining: slices.Clone(pool),
		Maps:          []SeriesMap{},
		VetoOrder:     order,
	}, nil
}

// Clone returns a deep copy so the original can be kept when a command is
// rejected part way through.
func (s State) Clone() State {
	return copystructure.Must(copystructure.Copy(s)).(State)
}

func (s State) Other(team TeamID) TeamID {
	if team == s.TeamA {
		return s.TeamB
	}
	return s.TeamA
}

func (s State) NameOf(team TeamID) string {
	switch {
	case team == s.TeamA && s.TeamAName != "":
		return s.TeamAName
	case team == s.TeamB && s.TeamBName != "":
		return s.TeamBName
	default:
		return fmt.Sprintf("team %d", team)
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
