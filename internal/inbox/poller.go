package inbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/pagechat/internal/logging"
)

// Poller errors.
var (
	ErrPollerAlreadyRunning = errors.New("poller already running")
	ErrPollerNotRunning     = errors.New("poller not running")
)

// PollerState is the scheduler state.
type PollerState string

const (
	PollerStopped   PollerState = "stopped"
	PollerIdle      PollerState = "idle"
	PollerPolling   PollerState = "polling"
	PollerSwitching PollerState = "switching"
)

// activeLoop is the loop polling the selected conversation.
type activeLoop struct {
	conversationID string
	cancel         context.CancelFunc
	done           chan struct{}
}

// Poller drives a Session: a coarse conversation-list loop while running,
// and at most one fine loop for the selected conversation.
type Poller struct {
	session *Session
	logger  zerolog.Logger

	// selectMu serializes selection changes.
	selectMu sync.Mutex

	mu      sync.RWMutex
	state   PollerState
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	active  *activeLoop
}

// NewPoller creates a Poller for session.
func NewPoller(session *Session) *Poller {
	return &Poller{
		session: session,
		logger:  logging.Component("inbox-poller"),
		state:   PollerStopped,
	}
}

// Start begins the conversation loop: an immediate fetch, then one every
// conversation interval. A conversation already selected on the session
// gets its loop too.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrPollerAlreadyRunning
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	p.state = PollerIdle

	cfg := p.session.Config()
	p.logger.Info().
		Dur("conversation_interval", cfg.ConversationInterval).
		Dur("message_interval", cfg.MessageInterval).
		Int("staleness_page_size", cfg.StalenessPageSize).
		Msg("inbox poller starting")

	p.wg.Add(1)
	go p.conversationLoop(p.ctx)
	p.mu.Unlock()

	if selected := p.session.Selected(); selected != "" {
		return p.Select(selected)
	}
	return nil
}

// Stop cancels every loop and waits for them to exit.
func (p *Poller) Stop() error {
	p.selectMu.Lock()
	defer p.selectMu.Unlock()

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrPollerNotRunning
	}

	p.logger.Info().Msg("inbox poller stopping")
	p.cancel()
	p.running = false
	active := p.active
	p.active = nil
	p.state = PollerStopped
	p.mu.Unlock()

	if active != nil {
		<-active.done
	}
	p.wg.Wait()
	p.logger.Info().Msg("inbox poller stopped")
	return nil
}

// IsRunning returns true if the poller is running.
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// State returns the scheduler state.
func (p *Poller) State() PollerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// ActiveConversation returns the conversation the fine loop polls.
func (p *Poller) ActiveConversation() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.active == nil {
		return ""
	}
	return p.active.conversationID
}

// Select switches the selected conversation. The previous loop is cancelled
// and has exited before the session changes; a new loop fetches the thread
// immediately and then checks for news every message interval. Selecting ""
// leaves the poller idle.
func (p *Poller) Select(conversationID string) error {
	p.selectMu.Lock()
	defer p.selectMu.Unlock()

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrPollerNotRunning
	}
	p.state = PollerSwitching
	old := p.active
	p.active = nil
	parent := p.ctx
	p.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
	}

	p.session.Select(parent, conversationID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if conversationID == "" {
		p.state = PollerIdle
		return nil
	}

	loopCtx, cancel := context.WithCancel(parent)
	loop := &activeLoop{
		conversationID: conversationID,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	p.active = loop
	p.state = PollerPolling
	go p.messageLoop(loopCtx, loop)
	return nil
}

// Refresh runs a manual refresh.
func (p *Poller) Refresh(ctx context.Context) error {
	return p.session.Refresh(ctx)
}

func (p *Poller) conversationLoop(ctx context.Context) {
	defer p.wg.Done()

	p.conversationTick(ctx)

	ticker := time.NewTicker(p.session.Config().ConversationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.conversationTick(ctx)
		}
	}
}

func (p *Poller) conversationTick(ctx context.Context) {
	if err := p.session.acquireCycle(ctx); err != nil {
		return
	}
	defer p.session.releaseCycle()

	if _, err := p.session.FetchConversations(ctx); err != nil && isCancellation(err) {
		return
	}
	p.session.syncViews(ctx)
	p.session.markRefreshed()
}

func (p *Poller) messageLoop(ctx context.Context, loop *activeLoop) {
	defer close(loop.done)
	logger := p.logger.With().Str("conversation_id", loop.conversationID).Logger()
	logger.Debug().Msg("conversation loop started")
	defer logger.Debug().Msg("conversation loop stopped")

	if err := p.session.acquireCycle(ctx); err != nil {
		return
	}
	_, _ = p.session.FetchMessages(ctx, loop.conversationID)
	p.session.releaseCycle()

	ticker := time.NewTicker(p.session.Config().MessageInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.session.acquireCycle(ctx); err != nil {
				return
			}
			_, _ = p.session.CheckForNewMessages(ctx, loop.conversationID)
			p.session.releaseCycle()
		}
	}
}
