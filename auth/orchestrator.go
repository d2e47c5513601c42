package auth

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-miniapp-session/apiclient"
	"github.com/jrsteele09/go-miniapp-session/internal/config"
	"github.com/jrsteele09/go-miniapp-session/internal/errors"
	"github.com/jrsteele09/go-miniapp-session/internal/metrics"
	"github.com/jrsteele09/go-miniapp-session/platform"
	"github.com/jrsteele09/go-miniapp-session/storage"
	"github.com/jrsteele09/go-miniapp-session/token"
)

// PlatformSource answers "which platform is this". *platform.Detector is one.
type PlatformSource interface {
	Detect() platform.Platform
}

// Deps are the collaborators an orchestrator drives.
type Deps struct {
	Detector  PlatformSource
	Client    *apiclient.Client
	Tokens    *token.Store
	Storage   *storage.Store
	Flags     platform.SessionFlags
	Navigator Navigator
	Config    config.AuthConfig
}

// Result is how a mount ended.
type Result struct {
	Platform platform.Platform
	State    State
	User     *apiclient.User
	// Soft marks a failure the user is not told about.
	Soft bool
	Err  error
}

// Orchestrator runs the automatic login for one platform. Every continuation after a
// suspension point re-checks that the mount is still live and the platform unchanged
// before it touches state, tokens or navigation.
type Orchestrator struct {
	strategy Strategy
	deps     Deps
	log      zerolog.Logger
	metrics  *metrics.Collectors

	mu        sync.Mutex
	state     State
	result    Result
	mounted   bool
	gen       uint64
	attempted bool
	cancel    context.CancelFunc
	done      chan struct{}
}

type OrchestratorOption func(*Orchestrator)

func WithLogger(log zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.log = log
	}
}

func WithMetrics(m *metrics.Collectors) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func NewOrchestrator(strategy Strategy, deps Deps, options ...OrchestratorOption) *Orchestrator {
	if deps.Flags == nil {
		deps.Flags = platform.NewMemoryFlags()
	}
	o := &Orchestrator{
		strategy: strategy,
		deps:     deps,
		log:      zerolog.Nop(),
		done:     closedChan(),
	}
	for _, opt := range options {
		opt(o)
	}
	o.log = o.log.With().Str("orchestrator", strategy.Platform().String()).Logger()
	o.result = Result{Platform: strategy.Platform(), State: StateIdle}
	return o
}

func (o *Orchestrator) Platform() platform.Platform {
	return o.strategy.Platform()
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Result() Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Done closes when the current mount has finished or was unmounted.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// Mount starts a mount in the background. Mounting an already mounted orchestrator is a
// no-op. Each mount allows at most one automatic login attempt.
func (o *Orchestrator) Mount(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mounted {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	o.mounted = true
	o.gen++
	o.attempted = false
	o.cancel = cancel
	o.done = make(chan struct{})
	o.state = StateIdle
	o.result = Result{Platform: o.strategy.Platform(), State: StateIdle}

	go o.run(ctx, o.gen, o.done)
}

// Unmount stops the current mount. Nothing it has in flight will change state or
// navigate afterwards.
func (o *Orchestrator) Unmount() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.mounted {
		return
	}
	o.mounted = false
	if o.cancel != nil {
		o.cancel()
	}
}

// Wait blocks until the mount finishes or ctx ends, and returns the latest result.
func (o *Orchestrator) Wait(ctx context.Context) Result {
	select {
	case <-o.Done():
	case <-ctx.Done():
	}
	return o.Result()
}

// skip ends a mount as Skipped without running it. Used by the coordinator for
// orchestrators of other platforms.
func (o *Orchestrator) skip() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateSkipped
	o.result = Result{Platform: o.strategy.Platform(), State: StateSkipped}
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Msg("login orchestrator panicked")
			o.finish(gen, Result{State: StateFailed, Soft: true, Err: errors.ErrInternal})
		}
	}()

	o.finish(gen, o.login(ctx, gen))
}

func (o *Orchestrator) login(ctx context.Context, gen uint64) Result {
	// entry guard
	if !o.current(gen) {
		return Result{State: StateSkipped}
	}
	o.mu.Lock()
	if o.attempted {
		o.mu.Unlock()
		return Result{State: StateSkipped}
	}
	o.mu.Unlock()
	if !o.transition(gen, StateChecking) {
		return Result{State: StateSkipped}
	}

	currentToken, pendingBound, user, valid := o.checkStoredToken(ctx, gen)
	if !o.current(gen) {
		return Result{State: StateSkipped}
	}
	if valid {
		o.log.Debug().Msg("stored token is valid for this platform user")
		return Result{State: StateSkipped, User: user}
	}
	if o.strategy.Platform() == platform.Web {
		return Result{State: StateSkipped}
	}

	if !o.transition(gen, StateAwaitingCredential) {
		return Result{State: StateSkipped}
	}
	credential, err := o.strategy.Credential(ctx, func() bool { return o.current(gen) })
	switch {
	case err == nil:
	case errors.Is(err, ErrPlatformChanged), errors.Is(err, ErrNoAutoLogin), ctx.Err() != nil:
		return Result{State: StateSkipped, User: user}
	case errors.Is(err, errors.ErrCredentialAbsent):
		o.log.Info().Err(err).Msg("credential material did not appear")
		o.count("credential_absent")
		return Result{State: StateFailed, Soft: true, Err: err}
	default:
		return Result{State: StateFailed, Soft: true, Err: err}
	}
	if !o.current(gen) {
		return Result{State: StateSkipped}
	}

	// The stored token's user could not be compared before the credential existed.
	if pendingBound != "" {
		switch current := o.strategy.CurrentUserID(); {
		case current == pendingBound:
			return Result{State: StateSkipped, User: user}
		case current != "":
			o.identityMismatch(ctx, pendingBound, current)
			currentToken = ""
		}
	}

	o.mu.Lock()
	o.attempted = true
	o.mu.Unlock()
	if !o.transition(gen, StateExchanging) {
		return Result{State: StateSkipped}
	}

	resp, err := o.strategy.Exchange(ctx, credential, currentToken)
	if !o.alive(gen) {
		return Result{State: StateSkipped}
	}
	if err != nil {
		return o.fail(gen, err)
	}

	if err := o.deps.Tokens.SetTokenDurable(ctx, resp.Pair(), o.deps.Config.GetDurableWriteWait()); err != nil {
		o.log.Warn().Err(err).Msg("login tokens not yet durable")
	}
	if id := o.strategy.BoundID(resp.User); id != "" && o.deps.Storage != nil {
		o.deps.Storage.SetAsync(storage.KeyPlatformUserID, id)
	}
	if !o.alive(gen) {
		return Result{State: StateSkipped}
	}

	o.deps.Flags.Set(platform.FlagJustLoggedIn, "true")
	if nav := o.deps.Navigator; nav != nil && o.onAuthPage(nav.CurrentPath()) {
		nav.Navigate(o.deps.Config.GetHomePath())
	}
	o.count("success")
	o.log.Info().Msg("platform login succeeded")
	return Result{State: StateSuccess, User: resp.User}
}

// checkStoredToken validates a stored token against /auth/me. valid means the token
// belongs to the current platform user and no login is needed. currentToken is the
// token to forward for account linking. pendingBound is set when the bound id could
// not be compared yet.
func (o *Orchestrator) checkStoredToken(ctx context.Context, gen uint64) (currentToken, pendingBound string, user *apiclient.User, valid bool) {
	at := o.deps.Tokens.GetValidToken(ctx)
	if at == "" && o.deps.Tokens.RefreshToken() == "" {
		return "", "", nil, false
	}

	user, err := o.deps.Client.Me(ctx)
	if !o.current(gen) {
		return "", "", nil, false
	}
	if err != nil {
		if errors.Is(err, errors.ErrAuthInvalid) {
			o.log.Info().Msg("stored token rejected, login required")
			return "", "", nil, false
		}
		o.log.Warn().Err(err).Msg("cannot validate stored token")
		return o.deps.Tokens.AccessToken(), "", nil, false
	}

	if o.strategy.Platform() == platform.Web {
		return o.deps.Tokens.AccessToken(), "", user, true
	}

	bound := o.strategy.BoundID(user)
	current := o.strategy.CurrentUserID()
	switch {
	case bound == "":
		// unlinked account: log in with the platform and link it
		return o.deps.Tokens.AccessToken(), "", user, false
	case current == "":
		return o.deps.Tokens.AccessToken(), bound, user, false
	case bound == current:
		return o.deps.Tokens.AccessToken(), "", user, true
	default:
		o.identityMismatch(ctx, bound, current)
		return "", "", nil, false
	}
}

func (o *Orchestrator) identityMismatch(ctx context.Context, bound, current string) {
	o.log.Info().Str("bound_id", bound).Str("current_id", current).Msg("stored token belongs to another platform user")
	o.count("identity_mismatch")
	o.deps.Tokens.Clear(ctx)
	if o.deps.Storage != nil {
		o.deps.Storage.RemoveAsync(storage.KeyPlatformUserID)
	}
}

func (o *Orchestrator) fail(gen uint64, err error) Result {
	if errors.Is(err, errors.ErrCredentialAbsent) {
		o.count("credential_absent")
		return Result{State: StateFailed, Soft: true, Err: err}
	}

	o.count("failure")
	o.log.Warn().Err(err).Msg("platform login failed")
	if nav := o.deps.Navigator; nav != nil && o.alive(gen) && !o.onAuthPage(nav.CurrentPath()) {
		nav.Navigate(o.deps.Config.GetLoginPath())
	}
	return Result{State: StateFailed, Err: err}
}

func (o *Orchestrator) onAuthPage(path string) bool {
	return path == o.deps.Config.GetLoginPath() || path == o.deps.Config.GetRegisterPath()
}

// alive reports whether the mount identified by gen is still the live one.
func (o *Orchestrator) alive(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mounted && o.gen == gen
}

// current is alive plus "the detected platform is still mine".
func (o *Orchestrator) current(gen uint64) bool {
	return o.alive(gen) && o.deps.Detector.Detect() == o.strategy.Platform()
}

func (o *Orchestrator) transition(gen uint64, s State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.mounted || o.gen != gen {
		return false
	}
	o.state = s
	o.result.State = s
	return true
}

func (o *Orchestrator) finish(gen uint64, r Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.mounted || o.gen != gen {
		return
	}
	r.Platform = o.strategy.Platform()
	o.state = r.State
	o.result = r
}

func (o *Orchestrator) count(outcome string) {
	if o.metrics != nil {
		o.metrics.LoginAttempts.WithLabelValues(o.strategy.Platform().String(), outcome).Inc()
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
