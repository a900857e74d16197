package provision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
)

const (
	DefaultBaseURL = "https://dathost.net/api/0.1"
	defaultTimeout = 30 * time.Second
)

// DathostClient talks to the game server host over its form based REST API.
type DathostClient struct {
	baseURL string
	auth    string
	client  *fasthttp.Client
}

func NewDathostClient(baseURL, user, password string) *DathostClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &DathostClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password)),
		client:  &fasthttp.Client{Name: "match-setup-backend"},
	}
}

func (c *DathostClient) DuplicateServer(ctx context.Context, serverID string) (Server, error) {
	body, err := c.do(ctx, fasthttp.MethodPost, "/game-servers/"+serverID+"/duplicate", nil)
	if err != nil {
		return Server{}, err
	}
	var s Server
	if err := sonic.Unmarshal(body, &s); err != nil {
		return Server{}, fmt.Errorf("decoding duplicated server: %w", err)
	}
	if s.ID == "" {
		return Server{}, fmt.Errorf("duplicated server has no id")
	}
	return s, nil
}

func (c *DathostClient) UpdateServer(ctx context.Context, serverID, name, loginToken string) error {
	_, err := c.do(ctx, fasthttp.MethodPut, "/game-servers/"+serverID, func(a *fasthttp.Args) {
		a.Set("name", name)
		a.Set("csgo_settings.steam_game_server_login_token", loginToken)
	})
	return err
}

func (c *DathostClient) StartMatch(ctx context.Context, req MatchRequest) error {
	_, err := c.do(ctx, fasthttp.MethodPost, "/matches", func(a *fasthttp.Args) {
		a.Set("game_server_id", req.ServerID)
		a.Set("map", req.Map)
		a.Set("team1_name", req.Team1Name)
		a.Set("team2_name", req.Team2Name)
		a.Set("team1_steam_ids", strings.Join(req.Team1SteamIDs, ","))
		a.Set("team2_steam_ids", strings.Join(req.Team2SteamIDs, ","))
		a.Set("enable_pause", "true")
		a.Set("enable_tech_pause", "true")
	})
	return err
}

func (c *DathostClient) StartSeries(ctx context.Context, req SeriesRequest) error {
	_, err := c.do(ctx, fasthttp.MethodPost, "/match-series", func(a *fasthttp.Args) {
		a.Set("game_server_id", req.ServerID)
		a.Set("enable_pause", "true")
		a.Set("enable_tech_pause", "true")
		a.Set("team1_name", req.Team1Name)
		a.Set("team2_name", req.Team2Name)
		a.Set("team1_steam_ids", strings.Join(req.Team1SteamIDs, ","))
		a.Set("team2_steam_ids", strings.Join(req.Team2SteamIDs, ","))
		a.Set("number_of_maps", strconv.Itoa(len(req.Maps)))
		for i, m := range req.Maps {
			n := strconv.Itoa(i + 1)
			a.Set("map"+n, m.Map)
			a.Set("map"+n+"_start_ct", m.StartCT)
		}
	})
	return err
}

type response struct {
	code int
	body []byte
	err  error
}

// do performs the request and returns the body of a 2xx response. It stops
// waiting as soon as ctx is done.
func (c *DathostClient) do(ctx context.Context, method, path string, form func(*fasthttp.Args)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := fasthttp.AcquireRequest()
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", c.auth)
	if form != nil {
		args := fasthttp.AcquireArgs()
		form(args)
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBody(args.QueryString())
		fasthttp.ReleaseArgs(args)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTimeout)
	}

	// The goroutine owns req and resp, since it may outlive this call.
	respC := make(chan response, 1)
	go func() {
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)
		err := c.client.DoDeadline(req, resp, deadline)
		respC <- response{code: resp.StatusCode(), body: append([]byte(nil), resp.Body()...), err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-respC:
		if r.err != nil {
			return nil, fmt.Errorf("performing %s %s: %w", method, path, r.err)
		}
		if r.code < 200 || r.code >= 300 {
			return nil, fmt.Errorf("%s %s: unexpected status code: %d, body: %s", method, path, r.code, string(r.body))
		}
		return r.body, nil
	}
}
