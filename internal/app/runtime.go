package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/config"
	"github.com/matheus3301/pchat/internal/feed"
	"github.com/matheus3301/pchat/internal/lock"
	"github.com/matheus3301/pchat/internal/media"
	"github.com/matheus3301/pchat/internal/outbox"
	"github.com/matheus3301/pchat/internal/relay"
	"github.com/matheus3301/pchat/internal/session"
	"github.com/matheus3301/pchat/internal/status"
	"github.com/matheus3301/pchat/internal/store"
	"github.com/matheus3301/pchat/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrSignedOut is returned by operations that need a local user.
var ErrSignedOut = errors.New("no user signed in")

// Media groups the attachment collaborators shared by every feed.
type Media struct {
	Loaders  map[string]feed.MediaLoader
	Avatars  *media.Avatars
	Exporter *media.Exporter
	Player   *media.Player
}

// Runtime is what a running session exposes to the terminal UI. Everything
// the feed needs is reachable from here; sign-in turns on the parts that
// depend on knowing the local user.
type Runtime struct {
	Session string
	Config  *config.Session
	DB      *store.DB
	Bus     *bus.Bus
	Machine *status.Machine
	Media   *Media
	Logger  *zap.Logger

	lock     *lock.Lock
	origin   string
	producer *transport.Producer
	consumer *transport.Consumer
	sender   *outbox.Sender
	redis    *redis.Client

	mu           sync.RWMutex
	consumerDone chan struct{}
	ctx         context.Context
	me          *store.Person
	composer    *outbox.Composer
	relay       *relay.Relay
	relayCancel context.CancelFunc
	relayDone   chan struct{}
}

// UserID returns the signed-in user, or "".
func (r *Runtime) UserID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.me == nil {
		return ""
	}
	return r.me.ObjectID
}

// Me returns the signed-in user's record, or nil.
func (r *Runtime) Me() *store.Person {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.me
}

// Composer returns the sender of the signed-in user, or nil before sign-in.
func (r *Runtime) Composer() *outbox.Composer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.composer
}

// start runs the parts that do not depend on a user and resumes the
// previous sign-in if the session config names one.
func (r *Runtime) start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	if r.sender != nil {
		r.sender.Start(ctx)
	}

	if r.Config.UserID == "" {
		r.Logger.Info("no user signed in")
		_ = r.Machine.Transition(status.SignedOut)
		return
	}
	me, err := r.DB.GetPerson(r.Config.UserID)
	if err != nil || me == nil {
		r.Logger.Warn("signed-in user missing from store", zap.String("user_id", r.Config.UserID), zap.Error(err))
		_ = r.Machine.Transition(status.SignedOut)
		return
	}
	r.activate(me)
}

// SignIn makes p the local user of the session and persists the choice.
func (r *Runtime) SignIn(p *store.Person) error {
	if p == nil || p.ObjectID == "" {
		return fmt.Errorf("sign in: %w", ErrSignedOut)
	}
	r.Config.UserID = p.ObjectID
	r.Config.Phone = p.Phone
	r.Config.Country = p.Country
	if err := config.SaveSession(session.SessionConfigPath(r.Session), r.Config); err != nil {
		return fmt.Errorf("save session config: %w", err)
	}
	if err := r.lock.Record(p.ObjectID); err != nil {
		r.Logger.Warn("failed to record lock holder", zap.Error(err))
	}
	r.activate(p)
	return nil
}

// UpdateProfile stores a changed record of the local user and shares it.
func (r *Runtime) UpdateProfile(p *store.Person) error {
	if err := r.DB.UpsertPerson(p); err != nil {
		return err
	}
	r.mu.Lock()
	r.me = p
	r.composer = outbox.NewComposer(r.DB, p, r.sender, r.Logger)
	r.mu.Unlock()
	r.announce(p)
	return nil
}

func (r *Runtime) activate(me *store.Person) {
	_ = r.Machine.Transition(status.Connecting)

	r.mu.Lock()
	r.me = me
	r.composer = outbox.NewComposer(r.DB, me, r.sender, r.Logger)
	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// Records are only read once the user is known, so chats addressed
	// to them are never skipped and committed.
	if r.consumer != nil && r.consumerDone == nil && r.ctx != nil {
		r.consumerDone = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			r.consumer.Run(ctx)
		}(r.consumerDone)
	}
	if r.redis != nil && r.relay == nil {
		r.relay = relay.New(r.redis, r.Config.Redis.Prefix, r.origin, me.ObjectID, r.DB, r.Bus, r.Logger)
		var relayCtx context.Context
		relayCtx, r.relayCancel = context.WithCancel(ctx)
		r.relayDone = make(chan struct{})
		go func(rl *relay.Relay, done chan struct{}) {
			defer close(done)
			rl.Run(relayCtx)
		}(r.relay, r.relayDone)
	}
	r.mu.Unlock()

	r.Logger.Info("user active", zap.String("user_id", me.ObjectID))
	r.announce(me)
	_ = r.Machine.Transition(r.connectivity())
}

// announce shares the local user's profile so other devices can show it.
func (r *Runtime) announce(p *store.Person) {
	if r.producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.context(), 5*time.Second)
	defer cancel()
	env := &transport.Envelope{Kind: transport.KindPerson, Person: transport.FromPerson(p)}
	if err := r.producer.Publish(ctx, env); err != nil {
		r.Logger.Warn("failed to announce profile", zap.Error(err))
	}
}

// connectivity maps the configured network services to a signed-in state.
func (r *Runtime) connectivity() status.State {
	switch {
	case r.producer == nil:
		return status.Offline
	case r.redis == nil:
		return status.Degraded
	}
	return status.Ready
}

// WatchPresence keeps userID's presence timestamps fresh in the store
// until ctx is cancelled. Without a relay it returns immediately.
func (r *Runtime) WatchPresence(ctx context.Context, userID string) {
	r.mu.RLock()
	rl := r.relay
	r.mu.RUnlock()
	if rl == nil {
		return
	}
	rl.WatchPresence(ctx, userID, r.DB)
}

// RetryMedia puts a failed outgoing attachment back on the sync queue.
func (r *Runtime) RetryMedia(id string) error {
	if err := r.DB.MarkMediaQueued(id); err != nil {
		return err
	}
	if r.sender != nil {
		r.sender.Poke()
	}
	return nil
}

func (r *Runtime) context() context.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

func (r *Runtime) stop() {
	if r.sender != nil {
		r.sender.Stop()
	}
	r.mu.Lock()
	cancel, done, consumerDone := r.relayCancel, r.relayDone, r.consumerDone
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	// The consumer runs on the session context, cancelled before stop.
	if consumerDone != nil {
		<-consumerDone
	}
}

func (r *Runtime) close() error {
	var errs []error
	if r.producer != nil {
		errs = append(errs, r.producer.Close())
	}
	if r.redis != nil {
		errs = append(errs, r.redis.Close())
	}
	errs = append(errs, r.DB.Close(), r.lock.Release())
	return errors.Join(errs...)
}
