package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/DoyleJ11/match-setup-backend/internal/engine"
	"github.com/DoyleJ11/match-setup-backend/internal/metrics"
	"github.com/DoyleJ11/match-setup-backend/internal/provision"
)

const DefaultConnectWindow = 5 * time.Minute

type Msg interface{ isLobbyMsg() }

type FromClient struct {
	ClientID string
	Cmd      engine.Command
}

func (FromClient) isLobbyMsg() {}

// RequestConnectInfo asks for the console connect commands; it is only
// answered while the connect window is open.
type RequestConnectInfo struct {
	ClientID string
}

func (RequestConnectInfo) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Update // where this client wants to receive updates
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type UpdateKind string

const (
	UpdatePrompt      UpdateKind = "Prompt"
	UpdateRejected    UpdateKind = "Rejected"
	UpdateConnectInfo UpdateKind = "ConnectInfo"
	UpdateFinal       UpdateKind = "Final"
	UpdateError       UpdateKind = "Error"
)

// Update is sent to clients. Rejected and ConnectInfo updates only go to
// the client that asked.
type Update struct {
	Kind    UpdateKind
	Version int
	State   engine.State
	Prompt  engine.Prompt
	Text    string
	Err     error
}

type Stage string

const (
	StageNegotiating Stage = "negotiating"
	StageConnect     Stage = "connect"
	StageClosed      Stage = "closed"
)

type View struct {
	Version    int
	NumClients int
	Stage      Stage
	State      engine.State
	Events     []engine.Event
}

type Finalizer interface {
	Finalize(ctx context.Context, s engine.State) error
}

type Provisioner interface {
	Provision(ctx context.Context, s engine.State) (provision.Result, error)
}

type Deps struct {
	Finalizer     Finalizer
	Provisioner   Provisioner
	Metrics       metrics.SetupMetrics
	Logger        *zap.Logger
	ConnectWindow time.Duration
}

type Lobby struct {
	inbox   chan Msg
	state   engine.State
	version int
	events  []engine.Event
	stage   Stage
	clients map[string]chan Update

	finalizer     Finalizer
	provisioner   Provisioner
	metrics       metrics.SetupMetrics
	log           *zap.Logger
	connectWindow time.Duration
	connect       provision.Result
	windowC       <-chan time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, initial engine.State, deps Deps) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if deps.ConnectWindow <= 0 {
		deps.ConnectWindow = DefaultConnectWindow
	}

	l := &Lobby{
		inbox:         make(chan Msg, 64), // Small buffer
		state:         initial,
		stage:         StageNegotiating,
		clients:       make(map[string]chan Update),
		finalizer:     deps.Finalizer,
		provisioner:   deps.Provisioner,
		metrics:       deps.Metrics,
		log:           deps.Logger.With(zap.Int("match_id", initial.MatchID)),
		connectWindow: deps.ConnectWindow,
		ctx:           ctx,
		cancel:        cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case <-l.windowC:
			l.broadcast(Update{Kind: UpdateFinal, Version: l.version, State: l.state, Text: l.connect.Summary(l.state)})
			l.log.Info("connect window closed")
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.clients[msg.ClientID] = msg.Outbox
				if l.stage == StageConnect {
					msg.Outbox <- Update{Kind: UpdatePrompt, Version: l.version, State: l.state,
						Prompt: l.connect.ConnectPrompt(l.state), Text: l.connect.Summary(l.state)}
				} else {
					msg.Outbox <- l.current()
				}

			case Leave:
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}

			case FromClient:
				if !l.handle(msg) {
					l.shutdown()
					return
				}

			case RequestConnectInfo:
				if l.stage != StageConnect {
					l.reply(msg.ClientID, Update{Kind: UpdateRejected, Version: l.version, Err: engine.ErrWrongPhase})
					break
				}
				l.reply(msg.ClientID, Update{Kind: UpdateConnectInfo, Version: l.version, Text: l.connect.ConsoleText()})

			case GetState:
				// test-only: reflect internal state without data races
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					Stage:      l.stage,
					State:      l.state,
					Events:     append([]engine.Event(nil), l.events...),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

// handle applies one selection. It returns false when the lobby is done.
func (l *Lobby) handle(msg FromClient) bool {
	prev := l.state
	events, next, err := engine.Apply(l.state, msg.Cmd)
	if err != nil {
		l.metrics.CommandRejected(rejectReason(err))
		l.reply(msg.ClientID, Update{Kind: UpdateRejected, Version: l.version, Err: err})
		return true
	}

	l.state = next
	l.events = append(l.events, events...)
	l.version++

	if !engine.ContainsEvent(events, engine.EvtSetupCompleted) {
		l.broadcast(l.current())
		return true
	}

	start := time.Now()
	err = l.finalize()
	l.metrics.FinalizeElapsed(time.Since(start))
	if err != nil {
		// Nothing was written; roll back to the last applied step so the
		// final side pick can be submitted again.
		l.log.Error("setup could not be saved", zap.Error(err))
		l.state = prev
		l.events = l.events[:len(l.events)-len(events)]
		l.version++
		l.broadcast(Update{Kind: UpdateError, Version: l.version, State: l.state, Prompt: engine.PromptFor(l.state),
			Text: "Match setup could not be saved, an admin has been notified.", Err: err})
		return true
	}
	l.metrics.SetupCompleted(string(l.state.Format))
	l.log.Info("setup completed", zap.String("server_id", l.state.ServerID))

	l.broadcast(Update{Kind: UpdatePrompt, Version: l.version, State: l.state, Prompt: engine.PromptFor(l.state),
		Text: "Match setup completed, starting server..."})

	if l.provisioner == nil {
		return false
	}
	result, err := l.provisioner.Provision(l.ctx, l.state)
	if err != nil {
		l.metrics.ProvisioningFailed(provisionStep(err))
		l.log.Error("server provisioning failed", zap.Error(err))
		l.version++
		l.broadcast(Update{Kind: UpdateFinal, Version: l.version, State: l.state,
			Text: engine.CompletionSummary(l.state) + "\nThe match server could not be started, an admin has been notified.", Err: err})
		return false
	}

	l.connect = result
	l.stage = StageConnect
	l.version++
	l.broadcast(Update{Kind: UpdatePrompt, Version: l.version, State: l.state,
		Prompt: result.ConnectPrompt(l.state), Text: result.Summary(l.state)})
	l.windowC = time.After(l.connectWindow)
	return true
}

func (l *Lobby) finalize() error {
	if l.finalizer == nil {
		return nil
	}
	return l.finalizer.Finalize(l.ctx, l.state)
}

func (l *Lobby) current() Update {
	return Update{Kind: UpdatePrompt, Version: l.version, State: l.state, Prompt: engine.PromptFor(l.state)}
}

func (l *Lobby) shutdown() {
	l.stage = StageClosed
	for id, ch := range l.clients {
		close(ch) // Tell client no more updates
		delete(l.clients, id)
	}
	l.cancel()

	// Joins that were queued before the cancel still get their outbox closed.
	for {
		select {
		case m := <-l.inbox:
			if j, ok := m.(Join); ok {
				close(j.Outbox)
			}
		default:
			return
		}
	}
}

func (l *Lobby) broadcast(u Update) {
	for id, ch := range l.clients {
		select {
		case ch <- u:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(l.clients, id)
		}
	}
}

func (l *Lobby) reply(clientID string, u Update) {
	ch, ok := l.clients[clientID]
	if !ok {
		return
	}
	select {
	case ch <- u:
	default:
		close(ch)
		delete(l.clients, clientID)
	}
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby has stopped, for whatever reason.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

// Send delivers m unless the lobby has already stopped.
func (l *Lobby) Send(m Msg) error {
	if l.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case l.inbox <- m:
		return nil
	case <-l.ctx.Done():
		return ErrClosed
	}
}

var ErrClosed = errors.New("setup is no longer running")

func rejectReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotParticipant):
		return "not_participant"
	case errors.Is(err, engine.ErrWrongTurn):
		return "wrong_turn"
	case errors.Is(err, engine.ErrWrongPhase):
		return "wrong_phase"
	case errors.Is(err, engine.ErrSetupCompleted):
		return "completed"
	default:
		return "illegal_selection"
	}
}

func provisionStep(err error) string {
	var perr *provision.ProvisioningError
	if errors.As(err, &perr) {
		return perr.Step
	}
	return "unknown"
}
