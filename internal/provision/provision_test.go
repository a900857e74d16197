package provision

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/match-setup-backend/internal/engine"
)

const (
	alpha engine.TeamID = 111
	bravo engine.TeamID = 222
)

func completed(format engine.Format, maps ...engine.SeriesMap) engine.State {
	return engine.State{
		MatchID:   7,
		TeamA:     alpha,
		TeamAName: "Alpha",
		TeamB:     bravo,
		TeamBName: "Bravo",
		Format:    format,
		Phase:     engine.PhaseCompleted,
		ServerID:  "srv-eu",
		Maps:      maps,
	}
}

type fakeHost struct {
	mu          sync.Mutex
	dupErr      error
	updateErr   error
	startErr    error
	updatedName string
	token       string
	match       *MatchRequest
	series      *SeriesRequest
}

func (f *fakeHost) DuplicateServer(_ context.Context, id string) (Server, error) {
	if f.dupErr != nil {
		return Server{}, f.dupErr
	}
	s := Server{ID: id + "-copy", IP: "10.0.0.5"}
	s.Ports.Game = 27015
	s.Ports.GOTV = 27020
	return s, nil
}

func (f *fakeHost) UpdateServer(_ context.Context, _, name, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedName, f.token = name, token
	return f.updateErr
}

func (f *fakeHost) StartMatch(_ context.Context, req MatchRequest) error {
	f.match = &req
	return f.startErr
}

func (f *fakeHost) StartSeries(_ context.Context, req SeriesRequest) error {
	f.series = &req
	return f.startErr
}

type fakeTokens struct {
	token    string
	err      error
	claimed  []string
	released []string
}

func (f *fakeTokens) ClaimToken(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.claimed = append(f.claimed, f.token)
	return f.token, nil
}

func (f *fakeTokens) ReleaseToken(_ context.Context, tok string) error {
	f.released = append(f.released, tok)
	return nil
}

type fakeRosters map[engine.TeamID][]string

func (f fakeRosters) Roster(_ context.Context, team engine.TeamID) ([]string, error) {
	r, ok := f[team]
	if !ok {
		return nil, errors.New("no roster")
	}
	return r, nil
}

var rosters = fakeRosters{alpha: {"STEAM_1:0:1"}, bravo: {"STEAM_1:1:2"}}

func TestProvision_SingleMapPutsTStarterFirst(t *testing.T) {
	host := &fakeHost{}
	tokens := &fakeTokens{token: "GSLT-1"}
	p := New(host, tokens, rosters, nil)

	s := completed(engine.FormatSingle, engine.SeriesMap{Map: "mirage", PickedBy: alpha, StartDefense: alpha, StartAttack: bravo})
	res, err := p.Provision(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, "srv-eu-copy", res.ServerID)
	assert.Equal(t, "10.0.0.5:27015", res.GameAddr())
	assert.Equal(t, "match-server-7", host.updatedName)
	assert.Equal(t, "GSLT-1", host.token)
	assert.Equal(t, []string{"GSLT-1"}, tokens.claimed)
	assert.Empty(t, tokens.released)

	require.NotNil(t, host.match)
	assert.Equal(t, "Bravo", host.match.Team1Name)
	assert.Equal(t, "Alpha", host.match.Team2Name)
	assert.Equal(t, []string{"STEAM_1:1:2"}, host.match.Team1SteamIDs)
	assert.Equal(t, "mirage", host.match.Map)
	assert.Nil(t, host.series)
}

func TestProvision_SeriesMapsStartCT(t *testing.T) {
	host := &fakeHost{}
	p := New(host, &fakeTokens{token: "GSLT-2"}, rosters, nil)

	s := completed(engine.FormatBestOfThree,
		engine.SeriesMap{Map: "mirage", PickedBy: alpha, StartDefense: bravo, StartAttack: alpha},
		engine.SeriesMap{Map: "nuke", PickedBy: bravo, StartDefense: alpha, StartAttack: bravo},
		engine.SeriesMap{Map: "ancient", PickedBy: alpha, StartDefense: alpha, StartAttack: bravo},
	)
	_, err := p.Provision(context.Background(), s)
	require.NoError(t, err)

	require.NotNil(t, host.series)
	assert.Equal(t, []SeriesMap{
		{Map: "mirage", StartCT: "team2"},
		{Map: "nuke", StartCT: "team1"},
		{Map: "ancient", StartCT: "team1"},
	}, host.series.Maps)
	assert.Equal(t, "Alpha", host.series.Team1Name)
}

func TestProvision_FailuresNameTheStep(t *testing.T) {
	s := completed(engine.FormatSingle, engine.SeriesMap{Map: "mirage", PickedBy: alpha, StartDefense: alpha, StartAttack: bravo})
	boom := errors.New("boom")

	cases := []struct {
		name    string
		host    *fakeHost
		tokens  *fakeTokens
		rosters RosterResolver
		step    string
	}{
		{"duplicate", &fakeHost{dupErr: boom}, &fakeTokens{token: "x"}, rosters, StepDuplicate},
		{"token", &fakeHost{}, &fakeTokens{err: boom}, rosters, StepToken},
		{"roster", &fakeHost{}, &fakeTokens{token: "x"}, fakeRosters{alpha: nil}, StepRoster},
		{"start", &fakeHost{startErr: boom}, &fakeTokens{token: "x"}, rosters, StepStart},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.host, tc.tokens, tc.rosters, nil).Provision(context.Background(), s)
			var perr *ProvisioningError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.step, perr.Step)
		})
	}
}

func TestProvision_TokenNotClaimedWhenDuplicateFails(t *testing.T) {
	tokens := &fakeTokens{token: "x"}
	s := completed(engine.FormatSingle, engine.SeriesMap{Map: "mirage", PickedBy: alpha, StartDefense: alpha, StartAttack: bravo})
	_, err := New(&fakeHost{dupErr: errors.New("down")}, tokens, rosters, nil).Provision(context.Background(), s)
	require.Error(t, err)
	assert.Empty(t, tokens.claimed)
}

func TestProvision_TokenReleasedWhenUpdateFails(t *testing.T) {
	tokens := &fakeTokens{token: "GSLT-3"}
	s := completed(engine.FormatSingle, engine.SeriesMap{Map: "mirage", PickedBy: alpha, StartDefense: alpha, StartAttack: bravo})
	_, err := New(&fakeHost{updateErr: errors.New("rejected")}, tokens, rosters, nil).Provision(context.Background(), s)

	var perr *ProvisioningError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StepToken, perr.Step)
	assert.Equal(t, []string{"GSLT-3"}, tokens.released)
}

func TestDathostClient_StopsWaitingOnCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := NewDathostClient(srv.URL, "u", "p").DuplicateServer(ctx, "srv-eu")
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDathostClient_Requests(t *testing.T) {
	type call struct {
		method, path, auth string
		form               url.Values
	}
	var (
		mu    sync.Mutex
		calls []call
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		mu.Lock()
		calls = append(calls, call{r.Method, r.URL.Path, r.Header.Get("Authorization"), form})
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/duplicate") {
			_, _ = w.Write([]byte(`{"id":"new-1","ip":"1.2.3.4","ports":{"game":27015,"gotv":27020}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewDathostClient(srv.URL, "user", "pass")
	ctx := context.Background()

	s, err := c.DuplicateServer(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, "new-1", s.ID)
	assert.Equal(t, 27020, s.Ports.GOTV)

	require.NoError(t, c.UpdateServer(ctx, "new-1", "match-server-3", "TOKEN"))
	require.NoError(t, c.StartSeries(ctx, SeriesRequest{
		ServerID: "new-1", Team1Name: "A", Team2Name: "B",
		Team1SteamIDs: []string{"STEAM_1:0:1", "STEAM_1:0:2"},
		Maps:          []SeriesMap{{"mirage", "team1"}, {"nuke", "team2"}, {"ancient", "team1"}},
	}))

	require.Len(t, calls, 3)
	assert.Equal(t, "/game-servers/srv-1/duplicate", calls[0].path)
	assert.Equal(t, "Basic dXNlcjpwYXNz", calls[0].auth)

	assert.Equal(t, http.MethodPut, calls[1].method)
	assert.Equal(t, "TOKEN", calls[1].form.Get("csgo_settings.steam_game_server_login_token"))
	assert.Equal(t, "match-server-3", calls[1].form.Get("name"))

	assert.Equal(t, "/match-series", calls[2].path)
	assert.Equal(t, "3", calls[2].form.Get("number_of_maps"))
	assert.Equal(t, "nuke", calls[2].form.Get("map2"))
	assert.Equal(t, "team2", calls[2].form.Get("map2_start_ct"))
	assert.Equal(t, "STEAM_1:0:1,STEAM_1:0:2", calls[2].form.Get("team1_steam_ids"))
	assert.Equal(t, "true", calls[2].form.Get("enable_tech_pause"))
}

func TestDathostClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewDathostClient(srv.URL, "u", "p").StartMatch(context.Background(), MatchRequest{ServerID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

type listerFunc func(context.Context, engine.TeamID) ([]uint64, error)

func (f listerFunc) TeamSteamIDs(ctx context.Context, team engine.TeamID) ([]uint64, error) {
	return f(ctx, team)
}

func TestStoreRoster_DedupesAndSkipsMissing(t *testing.T) {
	r := StoreRoster{Store: listerFunc(func(context.Context, engine.TeamID) ([]uint64, error) {
		return []uint64{76561197960265731, 0, 76561197960265730, 76561197960265731}, nil
	})}
	got, err := r.Roster(context.Background(), alpha)
	require.NoError(t, err)
	assert.Equal(t, []string{"STEAM_1:0:1", "STEAM_1:1:1"}, got)
}

func TestResultText(t *testing.T) {
	r := Result{IP: "1.2.3.4", GamePort: 27015, GOTVPort: 27020}
	assert.Equal(t, "Console: ||`connect 1.2.3.4:27015`||\nGOTV: ||`connect 1.2.3.4:27020`||", r.ConsoleText())

	s := completed(engine.FormatSingle, engine.SeriesMap{Map: "mirage", PickedBy: alpha, StartDefense: alpha, StartAttack: bravo})
	p := r.ConnectPrompt(s)
	assert.Equal(t, ConnectInfoID, p.CustomID)
	assert.Contains(t, p.Text, "steam://connect/1.2.3.4:27015")
	assert.Contains(t, p.Text, "Setup is completed. GLHF!")
}
