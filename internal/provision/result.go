package provision

import (
	"fmt"

	"github.com/DoyleJ11/match-setup-backend/internal/engine"
)

const ConnectInfoID = "connect_info"

// Result is where the provisioned match can be joined.
type Result struct {
	ServerID string
	IP       string
	GamePort int
	GOTVPort int
}

func (r Result) GameAddr() string { return fmt.Sprintf("%s:%d", r.IP, r.GamePort) }

func (r Result) GOTVAddr() string { return fmt.Sprintf("%s:%d", r.IP, r.GOTVPort) }

func (r Result) ConsoleText() string {
	return fmt.Sprintf("Console: ||`connect %s`||\nGOTV: ||`connect %s`||", r.GameAddr(), r.GOTVAddr())
}

func (r Result) Summary(s engine.State) string {
	return fmt.Sprintf("%s\nConnect: steam://connect/%s\nGOTV: steam://connect/%s",
		engine.CompletionSummary(s), r.GameAddr(), r.GOTVAddr())
}

// ConnectPrompt offers the console commands while the connect window is
// open.
func (r Result) ConnectPrompt(s engine.State) engine.Prompt {
	return engine.Prompt{
		Text:     r.Summary(s),
		CustomID: ConnectInfoID,
		Choices:  []engine.Choice{{Label: "Console Cmds", Value: "console"}},
	}
}
