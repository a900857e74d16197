package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/elliotchance/pie/v2"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/match-setup-backend/internal/engine"
	"github.com/DoyleJ11/match-setup-backend/internal/hub"
	"github.com/DoyleJ11/match-setup-backend/internal/steamid"
	"github.com/DoyleJ11/match-setup-backend/internal/store"
	"github.com/DoyleJ11/match-setup-backend/internal/ws"
)

const listLimit = 20

type Store interface {
	MapPool(ctx context.Context) ([]string, error)
	MatchServers(ctx context.Context) ([]engine.MatchServer, error)
	GetMatch(ctx context.Context, id int) (store.Match, error)
	ListMatches(ctx context.Context, completed bool, limit int) ([]store.Match, error)
	CreateMatch(ctx context.Context, m *store.Match) error
	DeleteMatch(ctx context.Context, id int) error
	NextTeamMatch(ctx context.Context, team engine.TeamID) (store.Match, error)
	ScheduleMatch(ctx context.Context, id int, when string) error
	TeamsForUser(ctx context.Context, userID int64) ([]engine.TeamID, error)
	UpsertUser(ctx context.Context, discordID int64, steamID string) error
	SetupSteps(ctx context.Context, matchID int) ([]engine.VetoStep, error)
}

type Deps struct {
	Hub       *hub.Hub
	Store     Store
	AdminRole engine.TeamID
	Logger    *zap.Logger
}

type caller struct {
	userID int64
	teams  []engine.TeamID // team roles, admin role excluded
	admin  bool
}

func resolveCaller(d Deps, r *http.Request) (caller, error) {
	id, ok := ws.UserID(r)
	if !ok {
		return caller{}, errUnauthenticated
	}
	roles, err := d.Store.TeamsForUser(r.Context(), id)
	if err != nil {
		return caller{}, err
	}
	isAdmin := d.AdminRole != 0 && pie.Contains(roles, d.AdminRole)
	teams := pie.Filter(roles, func(t engine.TeamID) bool { return t != d.AdminRole })
	return caller{userID: id, teams: teams, admin: isAdmin}, nil
}

var errUnauthenticated = errors.New("missing or invalid " + ws.UserHeader + " header")

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func ListMaps(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maps, err := d.Store.MapPool(r.Context())
		if err != nil {
			serverError(d, w, "listing maps", err)
			return
		}
		lines := pie.Map(maps, func(m string) string { return fmt.Sprintf("- `%s`\n", m) })
		writeJSON(w, http.StatusOK, struct {
			Maps []string `json:"maps"`
			Text string   `json:"text"`
		}{Maps: maps, Text: "Current map pool:\n" + strings.Join(lines, "")})
	}
}

func RegisterSteamID(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := resolveCaller(d, r)
		if err != nil {
			authError(d, w, err)
			return
		}
		var body struct {
			SteamID string `json:"steam_id"`
		}
		if err := decode(r, &body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		id64, err := steamid.Parse(strings.TrimSpace(body.SteamID))
		if err != nil {
			http.Error(w, "invalid Steam ID input format. Please follow this example: `STEAM_0:1:12345678`", http.StatusBadRequest)
			return
		}
		if err := d.Store.UpsertUser(r.Context(), c.userID, body.SteamID); err != nil {
			serverError(d, w, "saving steam id", err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			SteamID    string `json:"steam_id"`
			ProfileURL string `json:"profile_url"`
		}{SteamID: body.SteamID, ProfileURL: fmt.Sprintf("https://steamcommunity.com/profiles/%d", id64)})
	}
}

func CreateMatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(d, w, r) {
			return
		}
		var body struct {
			TeamOneID   int64  `json:"team_one_id"`
			TeamOneName string `json:"team_one_name"`
			TeamTwoID   int64  `json:"team_two_id"`
			TeamTwoName string `json:"team_two_name"`
			SeriesType  string `json:"series_type"`
			Note        string `json:"note"`
		}
		if err := decode(r, &body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		format, err := engine.ParseFormat(body.SeriesType)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body.TeamOneID == 0 || body.TeamTwoID == 0 || body.TeamOneID == body.TeamTwoID {
			http.Error(w, "two different teams are required", http.StatusBadRequest)
			return
		}

		m := &store.Match{
			TeamOneRoleID: body.TeamOneID,
			TeamOneName:   body.TeamOneName,
			TeamTwoRoleID: body.TeamTwoID,
			TeamTwoName:   body.TeamTwoName,
			SeriesType:    string(format),
			DateAdded:     time.Now(),
		}
		if body.Note != "" {
			m.Note = &body.Note
		}
		if err := d.Store.CreateMatch(r.Context(), m); err != nil {
			serverError(d, w, "creating match", err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func ListMatches(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		completed, _ := strconv.ParseBool(r.URL.Query().Get("completed"))
		showIDs, _ := strconv.ParseBool(r.URL.Query().Get("show_ids"))

		ms, err := d.Store.ListMatches(r.Context(), completed, listLimit)
		if err != nil {
			serverError(d, w, "listing matches", err)
			return
		}
		text := "No matches have been added"
		if len(ms) > 0 {
			text = strings.Join(pie.Map(ms, func(m store.Match) string { return matchLine(m, showIDs) }), "\n")
		}
		writeJSON(w, http.StatusOK, struct {
			Matches []store.Match `json:"matches"`
			Text    string        `json:"text"`
		}{Matches: ms, Text: text})
	}
}

func GetMatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "bad match id", http.StatusBadRequest)
			return
		}
		m, err := d.Store.GetMatch(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}
		if err != nil {
			serverError(d, w, "loading match", err)
			return
		}
		steps, err := d.Store.SetupSteps(r.Context(), id)
		if err != nil {
			serverError(d, w, "loading setup steps", err)
			return
		}
		veto, err := engine.VetoSummary(steps, func(t engine.TeamID) string {
			if int64(t) == m.TeamOneRoleID {
				return m.TeamOneName
			}
			return m.TeamTwoName
		})
		if errors.Is(err, engine.ErrNoVetoInfo) {
			veto = "_This match has no veto info yet_"
		}
		writeJSON(w, http.StatusOK, struct {
			Match store.Match `json:"match"`
			Text  string      `json:"text"`
		}{Match: m, Text: matchLine(m, false) + "\n" + veto})
	}
}

func DeleteMatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(d, w, r) {
			return
		}
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "Cannot parse match id input", http.StatusBadRequest)
			return
		}
		err = d.Store.DeleteMatch(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}
		if err != nil {
			serverError(d, w, "deleting match", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ScheduleMatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := resolveCaller(d, r)
		if err != nil {
			authError(d, w, err)
			return
		}
		var body struct {
			Time string `json:"time"`
		}
		if err := decode(r, &body); err != nil || body.Time == "" {
			http.Error(w, "expected {\"time\": \"...\"}", http.StatusBadRequest)
			return
		}
		if len(c.teams) == 0 {
			http.Error(w, "You are not part of any team", http.StatusForbidden)
			return
		}
		m, err := d.Store.NextTeamMatch(r.Context(), c.teams[0])
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Your team does not have any scheduled matches", http.StatusNotFound)
			return
		}
		if err != nil {
			serverError(d, w, "loading next match", err)
			return
		}
		if err := d.Store.ScheduleMatch(r.Context(), m.ID, body.Time); err != nil {
			serverError(d, w, "scheduling match", err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			MatchID int    `json:"match_id"`
			Text    string `json:"text"`
		}{MatchID: m.ID, Text: fmt.Sprintf("Your next match (%s vs %s) is scheduled for `%s`", m.TeamOneName, m.TeamTwoName, body.Time)})
	}
}

// StartSetup opens the negotiation for the caller's next match.
func StartSetup(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := resolveCaller(d, r)
		if err != nil {
			authError(d, w, err)
			return
		}

		var (
			m     store.Match
			found bool
		)
		for _, team := range c.teams {
			m, err = d.Store.NextTeamMatch(r.Context(), team)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				serverError(d, w, "loading next match", err)
				return
			}
			found = true
			break
		}
		if !found {
			http.Error(w, "Your team does not have any matches waiting for setup", http.StatusNotFound)
			return
		}

		format, err := engine.ParseFormat(m.SeriesType)
		if err != nil {
			serverError(d, w, "match has bad series type", err)
			return
		}
		pool, err := d.Store.MapPool(r.Context())
		if err != nil {
			serverError(d, w, "loading map pool", err)
			return
		}
		servers, err := d.Store.MatchServers(r.Context())
		if err != nil {
			serverError(d, w, "loading servers", err)
			return
		}

		state, err := engine.NewState(engine.Match{
			ID:        m.ID,
			TeamA:     engine.TeamID(m.TeamOneRoleID),
			TeamAName: m.TeamOneName,
			TeamB:     engine.TeamID(m.TeamTwoRoleID),
			TeamBName: m.TeamTwoName,
			Format:    format,
		}, pool, servers)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		if _, err := d.Hub.Start(r.Context(), state); err != nil {
			if errors.Is(err, hub.ErrSetupInProgress) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			serverError(d, w, "starting setup", err)
			return
		}

		writeJSON(w, http.StatusCreated, struct {
			MatchID int           `json:"match_id"`
			Prompt  engine.Prompt `json:"prompt"`
		}{MatchID: m.ID, Prompt: engine.PromptFor(state)})
	}
}

func requireAdmin(d Deps, w http.ResponseWriter, r *http.Request) bool {
	c, err := resolveCaller(d, r)
	if err != nil {
		authError(d, w, err)
		return false
	}
	if !c.admin {
		http.Error(w, "this command requires the admin role", http.StatusForbidden)
		return false
	}
	return true
}

func matchLine(m store.Match, showID bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s vs %s", m.TeamOneName, m.TeamTwoName)
	if m.ScheduledTimeStr != nil {
		fmt.Fprintf(&b, " > Scheduled: `%s`", *m.ScheduledTimeStr)
	}
	if m.Note != nil {
		fmt.Fprintf(&b, " `%s`", *m.Note)
	}
	if showID {
		fmt.Fprintf(&b, "\n    _Match ID:_ `%d`", m.ID)
	}
	return b.String()
}

func decode(r *http.Request, v any) error {
	return sonic.ConfigDefault.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(v)
}

func authError(d Deps, w http.ResponseWriter, err error) {
	if errors.Is(err, errUnauthenticated) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	serverError(d, w, "resolving caller", err)
}

func serverError(d Deps, w http.ResponseWriter, msg string, err error) {
	d.Logger.Error(msg, zap.Error(err))
	http.Error(w, msg+" failed", http.StatusInternalServerError)
}
