package engine

// Authorize resolves which of the two teams is acting and checks that it
// owns the current turn. It never modifies s.
func Authorize(s State, teams []TeamID) (TeamID, error) {
	team, ok := s.partyOf(teams)
	if !ok {
		return 0, ErrNotParticipant
	}

	switch s.Phase {
	case PhaseServerPick:
		// Team B always chooses the server.
		if team != s.TeamB {
			return 0, ErrWrongTurn
		}
	case PhaseMapVeto:
		if s.Cursor >= len(s.VetoOrder) || s.VetoOrder[s.Cursor].Team != team {
			return 0, ErrWrongTurn
		}
	case PhaseSidePick:
		if s.Cursor >= len(s.Maps) || s.Maps[s.Cursor].PickedBy == team {
			return 0, ErrWrongTurn
		}
	default:
		return 0, ErrSetupCompleted
	}
	return team, nil
}

// CurrentActor is the team whose input the setup is waiting for.
func CurrentActor(s State) (TeamID, bool) {
	switch s.Phase {
	case PhaseServerPick:
		return s.TeamB, true
	case PhaseMapVeto:
		if s.Cursor < len(s.VetoOrder) {
			return s.VetoOrder[s.Cursor].Team, true
		}
	case PhaseSidePick:
		if s.Cursor < len(s.Maps) {
			return s.Other(s.Maps[s.Cursor].PickedBy), true
		}
	}
	return 0, false
}

func (s State) partyOf(teams []TeamID) (TeamID, bool) {
	for _, want := range []TeamID{s.TeamA, s.TeamB} {
		for _, t := range teams {
			if t == want {
				return want, true
			}
		}
	}
	return 0, false
}
