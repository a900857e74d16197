package engine

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNoVetoInfo = errors.New("this match has no veto info yet")

const (
	ServerSelectID = "server_select"
	MapSelectID    = "map_select"
	SidePickID     = "side_pick"
)

type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Prompt is what the messaging side renders after every accepted command:
// the narrative and the selectable choices for whoever acts next.
type Prompt struct {
	Text        string   `json:"text"`
	CustomID    string   `json:"custom_id,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Choices     []Choice `json:"choices,omitempty"`
}

var formatLabels = map[Format]string{
	FormatSingle:      "Best of 1",
	FormatBestOfThree: "Best of 3",
	FormatBestOfFive:  "Best of 5",
}

func PromptFor(s State) Prompt {
	switch s.Phase {
	case PhaseServerPick:
		choices := make([]Choice, len(s.Servers))
		for i, srv := range s.Servers {
			choices[i] = Choice{Label: srv.Label, Value: srv.ServerID}
		}
		return Prompt{
			Text:        fmt.Sprintf("%s selects server.", s.NameOf(s.TeamB)),
			CustomID:    ServerSelectID,
			Placeholder: "Select server",
			Choices:     choices,
		}

	case PhaseMapVeto:
		step := s.VetoOrder[s.Cursor]
		var text string
		if s.Cursor == 0 {
			text = fmt.Sprintf("%s option selected. Starting map veto. %s %ss first.\n",
				formatLabels[s.Format], s.NameOf(step.Team), step.Action)
		} else {
			prev := s.VetoOrder[s.Cursor-1]
			text = fmt.Sprintf("%s %s `%s`\nIt is %s's turn to %s",
				s.NameOf(prev.Team), pastTense(prev.Action), prev.Map, s.NameOf(step.Team), step.Action)
		}
		return Prompt{
			Text:        text,
			CustomID:    MapSelectID,
			Placeholder: fmt.Sprintf("Select map to %s", step.Action),
			Choices:     mapChoices(s.MapsRemaining),
		}

	case PhaseSidePick:
		cur := s.Maps[s.Cursor]
		chooser := s.Other(cur.PickedBy)
		var text string
		if s.Cursor == 0 {
			text = fmt.Sprintf("Map veto completed.\n`%s` was picked by %s. It is %s's turn to pick starting side for `%s`",
				cur.Map, s.NameOf(cur.PickedBy), s.NameOf(chooser), cur.Map)
		} else {
			prev := s.Maps[s.Cursor-1]
			prevChooser := s.Other(prev.PickedBy)
			side := "T"
			if prev.StartDefense == prevChooser {
				side = "CT"
			}
			text = fmt.Sprintf("%s picked to start %s on `%s`\nIt is %s's turn to pick starting side on `%s`",
				s.NameOf(prevChooser), side, prev.Map, s.NameOf(chooser), cur.Map)
		}
		return Prompt{
			Text:        text,
			CustomID:    SidePickID,
			Placeholder: "Select starting side",
			Choices:     []Choice{{Label: "CT", Value: string(SideCT)}, {Label: "T", Value: string(SideT)}},
		}

	default:
		return Prompt{Text: CompletionSummary(s)}
	}
}

// CompletionSummary lists every map with who picked it and who starts on
// which side.
func CompletionSummary(s State) string {
	var b strings.Builder
	b.WriteString("Setup is completed. GLHF!\n")
	for i, m := range s.Maps {
		fmt.Fprintf(&b, "\n**%d. %s** - picked by: %s\n    _CT start:_ %s\n    _T start:_ %s\n",
			i+1, strings.ToLower(m.Map), s.NameOf(m.PickedBy), s.NameOf(m.StartDefense), s.NameOf(m.StartAttack))
	}
	return b.String()
}

// VetoSummary renders persisted steps as a diff block: bans with "-",
// picks with "+". Steps without a map are skipped.
func VetoSummary(steps []VetoStep, name func(TeamID) string) (string, error) {
	if len(steps) == 0 {
		return "", ErrNoVetoInfo
	}

	var b strings.Builder
	b.WriteString("```diff\n")
	for _, st := range steps {
		if st.Map == "" {
			continue
		}
		if st.Action == ActionBan {
			fmt.Fprintf(&b, "- %s banned %s\n", name(st.Team), strings.ToLower(st.Map))
		} else {
			fmt.Fprintf(&b, "+ %s picked %s\n", name(st.Team), strings.ToLower(st.Map))
		}
	}
	b.WriteString("```")
	return b.String(), nil
}

func mapChoices(pool []string) []Choice {
	choices := make([]Choice, len(pool))
	for i, m := range pool {
		choices[i] = Choice{Label: m, Value: strings.ToLower(m)}
	}
	return choices
}

func pastTense(a Action) string {
	if a == ActionBan {
		return "banned"
	}
	return "picked"
}
