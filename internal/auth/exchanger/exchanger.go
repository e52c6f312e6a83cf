package exchanger

import (
	"context"
	"fmt"
	"sort"

	"github.com/victorxys/dify-0.15.3/internal/auth"
)

// Exchanger trades user-supplied credentials for an external identity.
// Implementations only talk to the external system: they must not write
// any session storage or create internal accounts.
type Exchanger interface {
	// Name returns the variant identifier (e.g. "http", "mock").
	Name() string

	// Exchange validates the credentials against the external system and
	// returns the normalized identity.
	Exchange(ctx context.Context, creds auth.Credentials) (*auth.ExternalIdentity, error)
}

// Registry holds the configured exchanger variants. Exactly one of them is
// selected at process start; nothing switches variants at runtime.
type Registry struct {
	exchangers map[string]Exchanger
}

// NewRegistry registers the given exchangers by name. Names must be unique.
func NewRegistry(list ...Exchanger) *Registry {
	m := make(map[string]Exchanger)
	for _, e := range list {
		m[e.Name()] = e
	}
	return &Registry{exchangers: m}
}

// Get returns the exchanger by name or an error if it is not registered.
func (r *Registry) Get(name string) (Exchanger, error) {
	e, ok := r.exchangers[name]
	if !ok {
		return nil, fmt.Errorf("unknown exchanger %q (registered: %v)", name, r.names())
	}
	return e, nil
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.exchangers))
	for n := range r.exchangers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func validate(op string, creds auth.Credentials) error {
	if !creds.Valid() {
		return &auth.Error{Op: op, Kind: auth.ErrValidation}
	}
	return nil
}
