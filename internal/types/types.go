// Package types holds the websocket wire messages.
//
// Client -> Server (websocket, /ws?match=<id>, X-User-ID header)
// select:
//   custom_id: "server_select" | "map_select" | "side_pick"
//   value: string // server id | map name | "ct" | "t"
//
// connect_info: {} // only answered during the connect window after setup
//
// Server -> Client
// Prompt (broadcast after every accepted selection):
//   version: number
//   prompt: { text, custom_id, placeholder, choices: [{ label, value }] }
//   state: {
//     match_id, team_a, team_b, team_a_name, team_b_name,
//     format: "bo1" | "bo3" | "bo5",
//     phase: "server_pick" | "map_veto" | "side_pick" | "completed",
//     cursor: number,
//     server_id: string,
//     servers: [{ label, server_id }],
//     maps_remaining: string[],
//     maps: [{ map, picked_by, start_attack, start_defense }],
//     veto_order: [{ team, action: "ban" | "pick", map }]
//   }
//
// Rejected (only to the sender):
//   error: string // not a participant | wrong turn | illegal selection
//
// ConnectInfo (only to the sender):
//   text: string // console connect commands
//
// Final (broadcast when the connect window closes, no further input):
//   text: string
package types

import "github.com/DoyleJ11/match-setup-backend/internal/engine"

type ClientMessage struct {
	Type     string `json:"type"` // "select" | "connect_info"
	CustomID string `json:"custom_id,omitempty"`
	Value    string `json:"value,omitempty"`
}

type ServerMessage struct {
	Type    string         `json:"type"` // "Prompt" | "Rejected" | "ConnectInfo" | "Final" | "Error"
	Version int            `json:"version,omitempty"`
	Prompt  *engine.Prompt `json:"prompt,omitempty"`
	State   *engine.State  `json:"state,omitempty"`
	Text    string         `json:"text,omitempty"`
	Error   string         `json:"error,omitempty"`
}
