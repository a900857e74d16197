package engine

import (
	"errors"
	"slices"
	"strings"
)

var ErrNotParticipant = errors.New("you are not part of either team currently running setup")
var ErrWrongTurn = errors.New("it is not your team's turn")
var ErrWrongPhase = errors.New("that selection is not available in the current phase")
var ErrIllegalMap = errors.New("map is not in the remaining pool")
var ErrIllegalServer = errors.New("unknown match server")
var ErrIllegalSide = errors.New("side must be CT or T")
var ErrSetupCompleted = errors.New("setup already completed")
var ErrUnknownFormat = errors.New("unknown series format")
var ErrPoolTooSmall = errors.New("map pool too small for series format")
var ErrNoServers = errors.New("no match servers configured")

type TeamID int64

type Format string

const (
	FormatSingle      Format = "bo1"
	FormatBestOfThree Format = "bo3"
	FormatBestOfFive  Format = "bo5"
)

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := vetoTables[f]; !ok {
		return "", ErrUnknownFormat
	}
	return f, nil
}

type Action string

const (
	ActionBan  Action = "ban"
	ActionPick Action = "pick"
)

type Phase string

const (
	PhaseServerPick Phase = "server_pick"
	PhaseMapVeto    Phase = "map_veto"
	PhaseSidePick   Phase = "side_pick"
	PhaseCompleted  Phase = "completed"
)

type Side string

const (
	SideCT Side = "ct"
	SideT  Side = "t"
)

func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideCT:
		return SideCT, true
	case SideT:
		return SideT, true
	default:
		return "", false
	}
}

type VetoStep struct {
	Team   TeamID `json:"team"`
	Action Action `json:"action"`
	Map    string `json:"map,omitempty"`
}

// SeriesMap is a map that will be played. Zero side fields mean the side
// pick for it has not happened yet.
type SeriesMap struct {
	Map          string `json:"map"`
	PickedBy     TeamID `json:"picked_by"`
	StartAttack  TeamID `json:"start_attack,omitempty"`
	StartDefense TeamID `json:"start_defense,omitempty"`
}

type MatchServer struct {
	Label    string `json:"label"`
	ServerID string `json:"server_id"`
}

// Match is the part of a match record a setup starts from.
type Match struct {
	ID        int
	TeamA     TeamID
	TeamAName string
	TeamB     TeamID
	TeamBName string
	Format    Format
}

type State struct {
	MatchID       int           `json:"match_id"`
	TeamA         TeamID        `json:"team_a"`
	TeamB         TeamID        `json:"team_b"`
	TeamAName     string        `json:"team_a_name"`
	TeamBName     string        `json:"team_b_name"`
	Format        Format        `json:"format"`
	Phase         Phase         `json:"phase"`
	Cursor        int           `json:"cursor"`
	ServerID      string        `json:"server_id,omitempty"`
	Servers       []MatchServer `json:"servers"`
	MapsRemaining []string      `json:"maps_remaining"`
	Maps          []SeriesMap   `json:"maps"`
	VetoOrder     []VetoStep    `json:"veto_order"`
}

type CommandType string

const (
	CmdPickServer CommandType = "PickServer"
	CmdSelectMap  CommandType = "SelectMap"
	CmdPickSide   CommandType = "PickSide"
)

/*
	CmdPickServer -> EvtServerPicked
	CmdSelectMap  -> EvtMapBanned | EvtMapPicked -> [EvtDeciderAssigned] -> [EvtVetoCompleted]
	CmdPickSide   -> EvtSidePicked -> [EvtSetupCompleted]

	A decider is assigned without a prompt when the next step is a pick and
	exactly one map is left in the pool.
*/

// Command is one selection made by a user. Teams holds every team the
// user belongs to; Authorize decides which of the two it acts for.
type Command struct {
	Type  CommandType
	Teams []TeamID
	Value string
}

type EventType string

const (
	EvtServerPicked    EventType = "ServerPicked"
	EvtMapBanned       EventType = "MapBanned"
	EvtMapPicked       EventType = "MapPicked"
	EvtDeciderAssigned EventType = "DeciderAssigned"
	EvtVetoCompleted   EventType = "VetoCompleted"
	EvtSidePicked      EventType = "SidePicked"
	EvtSetupCompleted  EventType = "SetupCompleted"
)

type Event struct {
	Type     EventType `json:"type"`
	Team     TeamID    `json:"team,omitempty"`
	Map      string    `json:"map,omitempty"`
	ServerID string    `json:"server_id,omitempty"`
	Side     Side      `json:"side,omitempty"`
}

// Apply validates cmd against s and returns the resulting events and state.
// On error the returned state is s, untouched.
func Apply(s State, cmd Command) ([]Event, State, error) {
	team, err := Authorize(s, cmd.Teams)
	if err != nil {
		return nil, s, err
	}

	next := s.Clone()
	var events []Event
	emit := func(e Event) {
		events = append(events, e)
		fold(&next, e)
	}

	switch s.Phase {
	case PhaseServerPick:
		if cmd.Type != CmdPickServer {
			return nil, s, ErrWrongPhase
		}
		if !hasServer(s, cmd.Value) {
			return nil, s, ErrIllegalServer
		}
		emit(Event{Type: EvtServerPicked, Team: team, ServerID: cmd.Value})

	case PhaseMapVeto:
		if cmd.Type != CmdSelectMap {
			return nil, s, ErrWrongPhase
		}
		m, ok := lookupMap(s.MapsRemaining, cmd.Value)
		if !ok {
			return nil, s, ErrIllegalMap
		}

		typ := EvtMapBanned
		if s.VetoOrder[s.Cursor].Action == ActionPick {
			typ = EvtMapPicked
		}
		emit(Event{Type: typ, Team: team, Map: m})

		// Forced decider
		for next.Cursor < len(next.VetoOrder) {
			step := next.VetoOrder[next.Cursor]
			if step.Action != ActionPick || len(next.MapsRemaining) != 1 {
				break
			}
			emit(Event{Type: EvtDeciderAssigned, Team: step.Team, Map: next.MapsRemaining[0]})
		}

		if next.Cursor == len(next.VetoOrder) {
			emit(Event{Type: EvtVetoCompleted})
		}

	case PhaseSidePick:
		if cmd.Type != CmdPickSide {
			return nil, s, ErrWrongPhase
		}
		side, ok := ParseSide(cmd.Value)
		if !ok {
			return nil, s, ErrIllegalSide
		}
		emit(Event{Type: EvtSidePicked, Team: team, Map: s.Maps[s.Cursor].Map, Side: side})

		if next.Cursor == len(next.Maps) {
			emit(Event{Type: EvtSetupCompleted})
		}

	default:
		return nil, s, ErrSetupCompleted
	}

	return events, next, nil
}

// Reduce replays events on top of initial without validating them.
func Reduce(initial State, events []Event) State {
	s := initial.Clone()
	for _, e := range events {
		fold(&s, e)
	}
	return s
}

func fold(s *State, e Event) {
	switch e.Type {
	case EvtServerPicked:
		s.ServerID = e.ServerID
		s.Phase = PhaseMapVeto
		s.Cursor = 0

	case EvtMapBanned:
		s.VetoOrder[s.Cursor].Map = e.Map
		s.MapsRemaining = removeMap(s.MapsRemaining, e.Map)
		s.Cursor++

	case EvtMapPicked, EvtDeciderAssigned:
		s.VetoOrder[s.Cursor].Map = e.Map
		s.Maps = append(s.Maps, SeriesMap{Map: e.Map, PickedBy: e.Team})
		s.MapsRemaining = removeMap(s.MapsRemaining, e.Map)
		s.Cursor++

	case EvtVetoCompleted:
		s.Phase = PhaseSidePick
		s.Cursor = 0

	case EvtSidePicked:
		m := &s.Maps[s.Cursor]
		if e.Side == SideCT {
			m.StartDefense = e.Team
			m.StartAttack = s.Other(e.Team)
		} else {
			m.StartAttack = e.Team
			m.StartDefense = s.Other(e.Team)
		}
		s.Cursor++

	case EvtSetupCompleted:
		s.Phase = PhaseCompleted
	}
}

func hasServer(s State, id string) bool {
	return slices.ContainsFunc(s.Servers, func(ms MatchServer) bool {
		return ms.ServerID == id
	})
}

// lookupMap matches case-insensitively and returns the pool's spelling.
func lookupMap(pool []string, name string) (string, bool) {
	for _, m := range pool {
		if strings.EqualFold(m, strings.TrimSpace(name)) {
			return m, true
		}
	}
	return "", false
}

func removeMap(pool []string, name string) []string {
	return slices.DeleteFunc(pool, func(m string) bool { return m == name })
}
