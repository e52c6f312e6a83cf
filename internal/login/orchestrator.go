package login

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/victorxys/dify-0.15.3/internal/auth"
	"github.com/victorxys/dify-0.15.3/internal/auth/exchanger"
	"github.com/victorxys/dify-0.15.3/internal/auth/provisioner"
	"github.com/victorxys/dify-0.15.3/internal/auth/resolver"
	"github.com/victorxys/dify-0.15.3/internal/logger"
	"github.com/victorxys/dify-0.15.3/internal/metrics"
	"github.com/victorxys/dify-0.15.3/internal/session"
)

type State string

const (
	StateIdle         State = "idle"
	StateSubmitting   State = "submitting"
	StateExchanging   State = "exchanging"
	StateProvisioning State = "provisioning"
	StatePersisting   State = "persisting"
	StateRedirecting  State = "redirecting"
	StateError        State = "error"
)

// Busy reports whether a submit is in flight in state s.
func (s State) Busy() bool {
	switch s {
	case StateSubmitting, StateExchanging, StateProvisioning, StatePersisting:
		return true
	}
	return false
}

// ErrSubmitInProgress rejects a submit while the same client already has
// one in flight.
var ErrSubmitInProgress = errors.New("login: submit already in progress")

// TokenStore persists the internal session token. *session.Synchronizer
// implements it.
type TokenStore interface {
	Persist(ctx context.Context, token string) (session.Persisted, error)
}

// Form is one submit of the login form.
type Form struct {
	Identifier string
	Secret     string
	Redirect   string
}

type Result struct {
	Redirect  string
	Persisted session.Persisted
}

type Config struct {
	Exchanger   exchanger.Exchanger
	Provisioner provisioner.Provisioner
	Resolver    resolver.Resolver // optional
	Metrics     *metrics.Metrics  // optional
	EmailDomain string
	Landing     string

	// OnTransition, when set, is called on every state change.
	OnTransition func(key string, from, to State)
}

// Orchestrator drives the login state machine. Attempts are tracked per
// client key; only in-flight attempts are kept.
type Orchestrator struct {
	cfg Config

	mu       sync.Mutex
	attempts map[string]State
}

func New(cfg Config) *Orchestrator {
	if cfg.Resolver == nil {
		cfg.Resolver = resolver.Nop{}
	}
	if cfg.Landing == "" {
		cfg.Landing = DefaultLanding
	}
	return &Orchestrator{
		cfg:      cfg,
		attempts: make(map[string]State),
	}
}

// State returns the current state of key's attempt.
func (o *Orchestrator) State(key string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.attempts[key]; ok {
		return s
	}
	return StateIdle
}

func (o *Orchestrator) begin(key string) bool {
	o.mu.Lock()
	from, ok := o.attempts[key]
	if ok && from.Busy() {
		o.mu.Unlock()
		return false
	}
	if !ok {
		from = StateIdle
	}
	o.attempts[key] = StateSubmitting
	o.mu.Unlock()

	o.notify(key, from, StateSubmitting)
	return true
}

func (o *Orchestrator) move(key string, to State) {
	o.mu.Lock()
	from := o.attempts[key]
	o.attempts[key] = to
	o.mu.Unlock()

	o.notify(key, from, to)
}

// finish moves key to a terminal state and forgets the attempt.
func (o *Orchestrator) finish(key string, to State) {
	o.mu.Lock()
	from := o.attempts[key]
	delete(o.attempts, key)
	o.mu.Unlock()

	o.notify(key, from, to)
}

func (o *Orchestrator) notify(key string, from, to State) {
	if o.cfg.OnTransition != nil {
		o.cfg.OnTransition(key, from, to)
	}
}

// Submit runs one login attempt for the client identified by key and
// persists the resulting internal token through store. Exchange honors ctx;
// once provisioning has started the attempt runs to completion even if ctx
// is cancelled.
func (o *Orchestrator) Submit(ctx context.Context, key string, form Form, store TokenStore) (*Result, error) {
	creds := auth.Credentials{
		Identifier: strings.TrimSpace(form.Identifier),
		Secret:     form.Secret,
	}
	if !creds.Valid() {
		o.cfg.Metrics.LoginOutcome(string(auth.KindValidation))
		return nil, &auth.Error{Op: "submit", Kind: auth.ErrValidation}
	}

	if !o.begin(key) {
		return nil, ErrSubmitInProgress
	}

	target := SafeRedirect(form.Redirect, o.cfg.Landing)
	creds.ContextID = ContextID(target)

	res, err := o.run(ctx, key, creds, target, store)
	if err != nil {
		o.finish(key, StateError)
		o.fail(err, creds.Identifier)
		return nil, err
	}

	o.finish(key, StateRedirecting)
	o.cfg.Metrics.LoginOutcome("success")
	logger.Info("login succeeded", map[string]any{
		"identifier": creds.Identifier,
		"redirect":   res.Redirect,
		"degraded":   res.Persisted.Degraded(),
	})
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, key string, creds auth.Credentials, target string, store TokenStore) (*Result, error) {
	o.move(key, StateExchanging)

	start := time.Now()
	identity, err := o.cfg.Exchanger.Exchange(ctx, creds)
	o.cfg.Metrics.ObserveStep("exchange", time.Since(start))
	if err != nil {
		return nil, err
	}
	defer identity.Discard()

	o.move(key, StateProvisioning)

	// The account may be created server-side from here on.
	ctx = context.WithoutCancel(ctx)

	start = time.Now()
	grant, err := o.cfg.Provisioner.Provision(ctx, identity)
	o.cfg.Metrics.ObserveStep("provision", time.Since(start))
	if err != nil {
		return nil, err
	}
	if grant.AccessToken == identity.AccessToken {
		return nil, &auth.Error{
			Op:      "provision",
			Kind:    auth.ErrProvisionRejected,
			Message: "internal token equals external token",
		}
	}
	identity.Discard()

	o.record(ctx, identity)

	o.move(key, StatePersisting)

	persisted, err := store.Persist(ctx, grant.AccessToken)
	if err != nil {
		return nil, err
	}
	if persisted.Degraded() {
		o.cfg.Metrics.DegradedPersist()
	}

	return &Result{Redirect: target, Persisted: persisted}, nil
}

func (o *Orchestrator) record(ctx context.Context, identity *auth.ExternalIdentity) {
	email := provisioner.Email(identity.Identifier, o.cfg.EmailDomain)
	linkID, err := o.cfg.Resolver.Resolve(ctx, identity, email)
	if err != nil {
		logger.Warn("account link not recorded", map[string]any{
			"provider":   identity.Provider,
			"identifier": identity.Identifier,
			"error":      err.Error(),
		})
		return
	}
	if linkID != "" {
		logger.Debug("account link recorded", map[string]any{"link_id": linkID})
	}
}

func (o *Orchestrator) fail(err error, identifier string) {
	kind := auth.KindOf(err)
	o.cfg.Metrics.LoginOutcome(string(kind))

	if kind == auth.KindMissingConfiguration {
		o.cfg.Metrics.MissingConfiguration()
		logger.Error("login blocked by missing configuration", map[string]any{
			"error":                    err.Error(),
			"operator_action_required": true,
		})
		return
	}
	logger.Warn("login failed", map[string]any{
		"identifier": identifier,
		"kind":       string(kind),
		"error":      err.Error(),
	})
}
