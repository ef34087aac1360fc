// Package reconciler keeps the client's view of who is signed in consistent
// with the identity provider and the backend.
//
// Three sources drive it concurrently: identity provider notifications,
// explicit calls (Logout, EnableAuth, sign-in) and the post-authentication
// tier pull. Ordering between them is enforced by an epoch that every
// superseding transition bumps; work started under an older epoch is dropped
// when it completes.
package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-signup-session/internal/domain"
)

type State string

const (
	StateLoading         State = "loading"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
	StateDisabled        State = "disabled"
)

const (
	DefaultSettleDelay = 2 * time.Second
	DefaultLockTTL     = 120 * time.Second
	DefaultOpTimeout   = 15 * time.Second
)

// Identity is an identity provider notification payload. A nil *Identity
// means the provider has no signed-in user.
type Identity struct {
	UID      string
	Email    string
	Token    string
	Provider string
}

// IdentityProvider is the external IdP. Subscribe must deliver the current
// identity to fn immediately and then on every change until unsubscribed.
type IdentityProvider interface {
	Subscribe(fn func(*Identity)) (unsubscribe func())
	SignOut(ctx context.Context) error
	SignInWithPassword(ctx context.Context, email, password string) error
	SignInWithCustomToken(ctx context.Context, token string) error
}

// Backend is the session API of the server.
type Backend interface {
	Exchange(ctx context.Context, idToken, provider, promotionCode string) (*domain.UserSnapshot, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*domain.UserSnapshot, error)
	Refresh(ctx context.Context) (*domain.UserSnapshot, error)
	// ClearCredentials drops every locally cached session artifact.
	ClearCredentials()
}

// LockStore persists the logout lock across restarts.
type LockStore interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Scheduler runs f once after d. stop cancels it if it has not started.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// Listener observes (state, user). user is a copy and nil unless authenticated.
type Listener func(state State, user *domain.UserSnapshot)

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type Option func(*Reconciler)

// WithClock injects the wall clock used for the logout lock.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithScheduler injects the timer used for the settle delay.
func WithScheduler(s Scheduler) Option {
	return func(r *Reconciler) {
		if s != nil {
			r.sched = s
		}
	}
}

func WithSettleDelay(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.settle = d
		}
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.lockTTL = d
		}
	}
}

// WithOpTimeout bounds each provider and backend call the reconciler starts itself.
func WithOpTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.opTimeout = d
		}
	}
}

// WithReloader sets the action that finishes a logout, typically restarting the client.
func WithReloader(fn func()) Option {
	return func(r *Reconciler) {
		if fn != nil {
			r.reload = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

type emission struct {
	state  State
	user   *domain.UserSnapshot
	target int // listener id for a replay, 0 for everyone
}

// Reconciler owns the client's authentication session. Create one per client
// with New and call Start once.
type Reconciler struct {
	idp       IdentityProvider
	backend   Backend
	locks     LockStore
	sched     Scheduler
	now       func() time.Time
	reload    func()
	log       *slog.Logger
	settle    time.Duration
	lockTTL   time.Duration
	opTimeout time.Duration

	mu          sync.Mutex
	state       State
	user        *domain.UserSnapshot
	promo       string
	epoch       uint64
	subGen      uint64
	unsubscribe func()
	stopPull    func() bool
	started     bool
	closed      bool

	listeners    map[int]Listener
	nextListener int
	last         emission
	queue        []emission
	draining     bool
}

func New(idp IdentityProvider, backend Backend, locks LockStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		idp:       idp,
		backend:   backend,
		locks:     locks,
		sched:     timeScheduler{},
		now:       time.Now,
		reload:    func() {},
		log:       slog.Default(),
		settle:    DefaultSettleDelay,
		lockTTL:   DefaultLockTTL,
		opTimeout: DefaultOpTimeout,
		state:     StateLoading,
		listeners: map[int]Listener{},
		last:      emission{state: StateLoading},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start reads the logout lock and, unless it is active, subscribes to the
// identity provider. Later calls are no-ops.
func (r *Reconciler) Start() {
	r.mu.Lock()
	if r.started || r.closed {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	if r.lockActive() {
		r.mu.Lock()
		r.setLocked(StateDisabled, nil)
		r.mu.Unlock()
		r.log.Info("logout lock active, authentication disabled")
		r.notify()
		return
	}
	r.subscribe()
}

// State returns the current state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// User returns a copy of the current user, or nil.
func (r *Reconciler) User() *domain.UserSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneUser(r.user)
}

// Subscribe registers l and replays the current state to it. The returned
// func removes it.
func (r *Reconciler) Subscribe(l Listener) (unsubscribe func()) {
	r.mu.Lock()
	r.nextListener++
	id := r.nextListener
	r.listeners[id] = l
	r.queue = append(r.queue, emission{state: r.state, user: cloneUser(r.user), target: id})
	r.drainLocked()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// SetPendingPromotionCode attaches code to the next sign-in exchange only.
func (r *Reconciler) SetPendingPromotionCode(code string) {
	r.mu.Lock()
	r.promo = code
	r.mu.Unlock()
}

// SignInWithPassword re-enables authentication if needed and signs in with
// the identity provider. The outcome arrives as a state change; the returned
// error only reports that the provider rejected the credentials.
func (r *Reconciler) SignInWithPassword(ctx context.Context, email, password string) error {
	r.enableIfDisabled()
	return r.idp.SignInWithPassword(ctx, email, password)
}

// SignInWithCustomToken is SignInWithPassword for a server-minted token.
func (r *Reconciler) SignInWithCustomToken(ctx context.Context, token string) error {
	r.enableIfDisabled()
	return r.idp.SignInWithCustomToken(ctx, token)
}

func (r *Reconciler) enableIfDisabled() {
	if r.State() == StateDisabled {
		r.EnableAuth()
	}
}

// EnableAuth clears the logout lock and restarts from loading with a fresh
// provider subscription. Any previous subscription is dropped first.
func (r *Reconciler) EnableAuth() {
	if err := r.locks.Delete(lockKey); err != nil {
		r.log.Warn("failed to clear logout lock", "err", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.started = true
	old := r.unsubscribe
	r.unsubscribe = nil
	r.subGen++
	r.epoch++
	r.setLocked(StateLoading, nil)
	r.mu.Unlock()

	if old != nil {
		old()
	}
	r.notify()
	r.subscribe()
}

// Logout disables authentication and persists the logout lock before any
// network call, then tears the session down. ctx bounds the teardown only.
func (r *Reconciler) Logout(ctx context.Context) {
	r.mu.Lock()
	r.epoch++
	old := r.unsubscribe
	r.unsubscribe = nil
	r.promo = ""
	r.setLocked(StateDisabled, nil)
	r.mu.Unlock()

	r.writeLock()
	r.notify()

	if old != nil {
		old()
	}
	if err := r.idp.SignOut(ctx); err != nil {
		r.log.Warn("identity provider sign-out failed", "err", err)
	}
	if err := r.backend.Logout(ctx); err != nil {
		r.log.Warn("backend logout failed", "err", err)
	}
	r.backend.ClearCredentials()
	r.reload()
}

// Refresh rotates the backend session and takes the returned tier fields.
func (r *Reconciler) Refresh(ctx context.Context) {
	r.mu.Lock()
	if r.state != StateAuthenticated {
		r.mu.Unlock()
		return
	}
	ep, uid := r.epoch, r.user.ID
	r.mu.Unlock()

	fresh, err := r.backend.Refresh(ctx)
	if err != nil {
		r.log.Warn("session refresh failed", "err", err)
		return
	}
	r.applyPulled(ep, uid, fresh)
}

// Close drops the provider subscription and any pending tier pull.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.closed = true
	r.subGen++
	old := r.unsubscribe
	r.unsubscribe = nil
	r.cancelPullLocked()
	r.mu.Unlock()
	if old != nil {
		old()
	}
}

func (r *Reconciler) subscribe() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.subGen++
	gen := r.subGen
	r.mu.Unlock()

	unsub := r.idp.Subscribe(func(id *Identity) { r.onIdentity(gen, id) })

	r.mu.Lock()
	if gen != r.subGen {
		// Superseded while subscribing.
		r.mu.Unlock()
		unsub()
		return
	}
	r.unsubscribe = unsub
	r.mu.Unlock()
}

func (r *Reconciler) onIdentity(gen uint64, id *Identity) {
	if id == nil {
		r.mu.Lock()
		if gen != r.subGen || r.state == StateDisabled {
			r.mu.Unlock()
			return
		}
		r.epoch++
		r.setLocked(StateUnauthenticated, nil)
		r.mu.Unlock()
		r.notify()
		return
	}

	locked := r.lockActive()
	r.mu.Lock()
	if gen != r.subGen {
		r.mu.Unlock()
		return
	}
	if locked || r.state == StateDisabled {
		r.epoch++
		r.setLocked(StateDisabled, nil)
		r.mu.Unlock()
		r.log.Info("rejected identity notification while logged out", "uid", id.UID)
		r.notify()
		r.forceSignOut()
		return
	}
	r.epoch++
	ep := r.epoch
	promo := r.promo
	r.promo = ""
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	user, err := r.backend.Exchange(ctx, id.Token, id.Provider, promo)
	cancel()

	r.mu.Lock()
	if ep != r.epoch {
		disabled := r.state == StateDisabled
		r.mu.Unlock()
		r.log.Debug("discarding superseded session exchange", "uid", id.UID)
		if disabled && err == nil {
			r.backend.ClearCredentials()
		}
		return
	}
	if err != nil {
		r.setLocked(StateUnauthenticated, nil)
		r.mu.Unlock()
		r.log.Warn("session exchange failed", "uid", id.UID, "err", err)
		r.notify()
		return
	}
	r.setLocked(StateAuthenticated, cloneUser(user))
	r.schedulePullLocked(ep, user.ID)
	r.mu.Unlock()
	r.notify()
}

// setLocked changes state and user together and cancels a pending pull when
// leaving authenticated. Callers hold r.mu.
func (r *Reconciler) setLocked(s State, u *domain.UserSnapshot) {
	if s != StateAuthenticated {
		r.cancelPullLocked()
		u = nil
	}
	r.state = s
	r.user = u
}

func (r *Reconciler) forceSignOut() {
	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()
	if err := r.idp.SignOut(ctx); err != nil {
		r.log.Warn("identity provider sign-out failed", "err", err)
	}
}

// notify emits the current (state, user) unless it equals the last emission.
func (r *Reconciler) notify() {
	r.mu.Lock()
	e := emission{state: r.state, user: cloneUser(r.user)}
	if sameEmission(e, r.last) {
		r.mu.Unlock()
		return
	}
	r.last = e
	r.queue = append(r.queue, e)
	r.drainLocked()
}

// drainLocked delivers queued emissions in order. Exactly one goroutine
// drains at a time; emissions queued by others, or by listeners re-entering
// the reconciler, are delivered by that goroutine. Called with r.mu held;
// returns with it released.
func (r *Reconciler) drainLocked() {
	if r.draining {
		r.mu.Unlock()
		return
	}
	r.draining = true
	for len(r.queue) > 0 {
		e := r.queue[0]
		r.queue = r.queue[1:]
		var targets []Listener
		if e.target != 0 {
			if l, ok := r.listeners[e.target]; ok {
				targets = append(targets, l)
			}
		} else {
			for _, l := range r.listeners {
				targets = append(targets, l)
			}
		}
		r.mu.Unlock()
		for _, l := range targets {
			r.deliver(l, e)
		}
		r.mu.Lock()
	}
	r.draining = false
	r.mu.Unlock()
}

func (r *Reconciler) deliver(l Listener, e emission) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("session listener panicked", "panic", p, "state", e.state)
		}
	}()
	l(e.state, cloneUser(e.user))
}

func cloneUser(u *domain.UserSnapshot) *domain.UserSnapshot {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func sameEmission(a, b emission) bool {
	if a.state != b.state {
		return false
	}
	if a.user == nil || b.user == nil {
		return a.user == nil && b.user == nil
	}
	return *a.user == *b.user
}
