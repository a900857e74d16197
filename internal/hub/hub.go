package hub

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/DoyleJ11/match-setup-backend/internal/engine"
	"github.com/DoyleJ11/match-setup-backend/internal/lobby"
	"github.com/DoyleJ11/match-setup-backend/internal/metrics"
)

var (
	ErrSetupInProgress = errors.New("a setup for this match is already running")
	ErrHubClosed       = errors.New("hub is shut down")
)

const lockTimeout = 5 * time.Second

type HubMsg interface{ isHubMsg() }

// StartSetup creates the lobby for a match unless one is already running.
type StartSetup struct {
	State engine.State
	Reply chan StartResult
}

type StartResult struct {
	Lobby *lobby.Lobby
	Err   error
}

type GetLobby struct {
	MatchID int
	Reply   chan *lobby.Lobby
}

// RemoveLobby drops the entry for MatchID if it still points at Lobby.
type RemoveLobby struct {
	MatchID int
	Lobby   *lobby.Lobby
}

type CountLobbies struct {
	Reply chan int
}

type ShutdownHub struct{}

func (StartSetup) isHubMsg()   {}
func (GetLobby) isHubMsg()     {}
func (RemoveLobby) isHubMsg()  {}
func (CountLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[int]*lobby.Lobby
	deps    lobby.Deps
	locker  Locker
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewHub starts the registry. locker may be nil when a single process
// serves all setups.
func NewHub(parent context.Context, deps lobby.Deps, locker Locker) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[int]*lobby.Lobby),
		deps:    deps,
		locker:  locker,
		log:     deps.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) Start(ctx context.Context, s engine.State) (*lobby.Lobby, error) {
	reply := make(chan StartResult, 1)
	if err := h.send(ctx, StartSetup{State: s, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.Lobby, res.Err
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the running lobby for a match, or nil.
func (h *Hub) Get(ctx context.Context, matchID int) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(ctx, GetLobby{MatchID: matchID, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-h.ctx.Done():
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	if h.ctx.Err() != nil {
		return ErrHubClosed
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case StartSetup:
				lb, err := h.start(msg.State)
				msg.Reply <- StartResult{Lobby: lb, Err: err}

			case GetLobby:
				msg.Reply <- h.lobbies[msg.MatchID] // May be nil

			case RemoveLobby:
				if h.lobbies[msg.MatchID] == msg.Lobby {
					delete(h.lobbies, msg.MatchID)
				}

			case CountLobbies:
				msg.Reply <- len(h.lobbies)

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) start(s engine.State) (*lobby.Lobby, error) {
	if _, ok := h.lobbies[s.MatchID]; ok {
		return nil, ErrSetupInProgress
	}

	var lease Lease
	if h.locker != nil {
		ctx, cancel := context.WithTimeout(h.ctx, lockTimeout)
		l, err := h.locker.Acquire(ctx, s.MatchID)
		cancel()
		if errors.Is(err, ErrLockHeld) {
			return nil, ErrSetupInProgress
		}
		if err != nil {
			return nil, err
		}
		lease = l
	}

	lb := lobby.NewLobby(h.ctx, s, h.deps)
	h.lobbies[s.MatchID] = lb
	h.deps.Metrics.SetupStarted(string(s.Format))
	h.log.Info("setup started", zap.Int("match_id", s.MatchID), zap.String("format", string(s.Format)))

	go h.watch(s.MatchID, lb, lease)
	return lb, nil
}

// watch cleans up after a lobby once it stops for any reason.
func (h *Hub) watch(matchID int, lb *lobby.Lobby, lease Lease) {
	<-lb.Done()
	if lease != nil {
		ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
		if err := lease.Release(ctx); err != nil {
			h.log.Warn("releasing setup lock failed", zap.Int("match_id", matchID), zap.Error(err))
		}
		cancel()
	}
	select {
	case h.inbox <- RemoveLobby{MatchID: matchID, Lobby: lb}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		_ = lb.Send(lobby.Shutdown{})
	}
	clear(h.lobbies)
}
