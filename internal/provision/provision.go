package provision

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/match-setup-backend/internal/engine"
)

// ProvisioningError reports which step of starting the match server failed.
// The setup itself is already persisted when this happens.
type ProvisioningError struct {
	Step string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s: %v", e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

const (
	StepDuplicate = "duplicate_server"
	StepToken     = "login_token"
	StepRoster    = "roster"
	StepStart     = "start_match"
)

type Server struct {
	ID    string `json:"id"`
	IP    string `json:"ip"`
	Ports struct {
		Game int `json:"game"`
		GOTV int `json:"gotv"`
	} `json:"ports"`
}

type MatchRequest struct {
	ServerID      string
	Map           string
	Team1Name     string // starts T
	Team2Name     string // starts CT
	Team1SteamIDs []string
	Team2SteamIDs []string
}

type SeriesMap struct {
	Map     string
	StartCT string // "team1" | "team2"
}

type SeriesRequest struct {
	ServerID      string
	Team1Name     string
	Team2Name     string
	Team1SteamIDs []string
	Team2SteamIDs []string
	Maps          []SeriesMap
}

type HostClient interface {
	DuplicateServer(ctx context.Context, serverID string) (Server, error)
	UpdateServer(ctx context.Context, serverID, name, loginToken string) error
	StartMatch(ctx context.Context, req MatchRequest) error
	StartSeries(ctx context.Context, req SeriesRequest) error
}

// TokenSource hands out login tokens. ClaimToken marks the token in use
// atomically, so two setups never get the same one.
type TokenSource interface {
	ClaimToken(ctx context.Context) (string, error)
	ReleaseToken(ctx context.Context, token string) error
}

type RosterResolver interface {
	Roster(ctx context.Context, team engine.TeamID) ([]string, error)
}

type Provisioner struct {
	host    HostClient
	tokens  TokenSource
	rosters RosterResolver
	log     *zap.Logger
}

func New(host HostClient, tokens TokenSource, rosters RosterResolver, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{host: host, tokens: tokens, rosters: rosters, log: logger}
}

// Provision duplicates the chosen server, gives the copy a fresh login
// token and starts the match or series on it.
func (p *Provisioner) Provision(ctx context.Context, s engine.State) (Result, error) {
	log := p.log.With(zap.Int("match_id", s.MatchID), zap.String("server_id", s.ServerID))

	log.Info("duplicating server")
	server, err := p.host.DuplicateServer(ctx, s.ServerID)
	if err != nil {
		return Result{}, &ProvisioningError{Step: StepDuplicate, Err: err}
	}

	token, err := p.tokens.ClaimToken(ctx)
	if err != nil {
		return Result{}, &ProvisioningError{Step: StepToken, Err: err}
	}

	log.Info("updating game server with name and login token", zap.String("new_server_id", server.ID))
	if err := p.host.UpdateServer(ctx, server.ID, fmt.Sprintf("match-server-%d", s.MatchID), token); err != nil {
		// The server never received the token, so it can go back to the pool.
		if rerr := p.tokens.ReleaseToken(context.WithoutCancel(ctx), token); rerr != nil {
			log.Warn("releasing login token", zap.Error(rerr))
		}
		return Result{}, &ProvisioningError{Step: StepToken, Err: err}
	}

	var teamA, teamB []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		teamA, err = p.rosters.Roster(gctx, s.TeamA)
		return err
	})
	g.Go(func() (err error) {
		teamB, err = p.rosters.Roster(gctx, s.TeamB)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, &ProvisioningError{Step: StepRoster, Err: err}
	}
	log.Info("starting match",
		zap.String("team1", strings.Join(teamA, ",")),
		zap.String("team2", strings.Join(teamB, ",")))

	if s.Format == engine.FormatSingle {
		err = p.host.StartMatch(ctx, singleMatch(s, server.ID, teamA, teamB))
	} else {
		err = p.host.StartSeries(ctx, series(s, server.ID, teamA, teamB))
	}
	if err != nil {
		return Result{}, &ProvisioningError{Step: StepStart, Err: err}
	}

	return Result{ServerID: server.ID, IP: server.IP, GamePort: server.Ports.Game, GOTVPort: server.Ports.GOTV}, nil
}

// singleMatch puts the T-starting team in slot one.
func singleMatch(s engine.State, serverID string, teamA, teamB []string) MatchRequest {
	req := MatchRequest{
		ServerID:      serverID,
		Map:           s.Maps[0].Map,
		Team1Name:     s.NameOf(s.TeamA),
		Team2Name:     s.NameOf(s.TeamB),
		Team1SteamIDs: teamA,
		Team2SteamIDs: teamB,
	}
	if s.Maps[0].StartDefense == s.TeamA {
		req.Team1Name, req.Team2Name = req.Team2Name, req.Team1Name
		req.Team1SteamIDs, req.Team2SteamIDs = req.Team2SteamIDs, req.Team1SteamIDs
	}
	return req
}

func series(s engine.State, serverID string, teamA, teamB []string) SeriesRequest {
	req := SeriesRequest{
		ServerID:      serverID,
		Team1Name:     s.NameOf(s.TeamA),
		Team2Name:     s.NameOf(s.TeamB),
		Team1SteamIDs: teamA,
		Team2SteamIDs: teamB,
		Maps:          make([]SeriesMap, len(s.Maps)),
	}
	for i, m := range s.Maps {
		startCT := "team2"
		if m.StartDefense == s.TeamA {
			startCT = "team1"
		}
		req.Maps[i] = SeriesMap{Map: m.Map, StartCT: startCT}
	}
	return req
}
