// Package catalog defines the building blocks of a weighted scenario
// catalog: actions, per-user sessions, acceptance rules and best-effort
// response extraction.
package catalog

import (
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sort"
)

var (
	// ErrNoActions is returned when a catalog is built without actions.
	ErrNoActions = errors.New("catalog: at least one action is required")

	// ErrInvalidAction is returned when an action definition is incomplete.
	ErrInvalidAction = errors.New("catalog: invalid action")
)

// Request is one concrete instance of an action's request template.
type Request struct {
	// Method is the HTTP method (GET, POST, ...)
	Method string

	// Path is appended to the target host
	Path string

	// Query is encoded onto the URL when non-empty
	Query url.Values

	// JSON, when non-nil, is marshaled as the request body
	JSON interface{}
}

// Action is one named, weighted user behavior.
//
// Actions are immutable once placed in a Catalog and are shared by every
// simulated user; all per-user state lives in the Session passed to Build
// and OnSuccess.
type Action struct {
	// Name is the report label. Parameterized paths use a placeholder
	// (e.g. "GET /api/products/:id") so metrics aggregate per action.
	Name string

	// Weight is the relative selection probability (must be > 0).
	Weight int

	// RequiresAuth gates the action on the session holding a token.
	RequiresAuth bool

	// Build produces the request for this invocation.
	Build func(s *Session, rng *rand.Rand) Request

	// Accept classifies the response.
	Accept Rule

	// OnSuccess runs after a successful classification. It must not fail.
	OnSuccess func(s *Session, resp *Response)
}

// Eligible reports whether the action may issue a request for s.
func (a *Action) Eligible(s *Session) bool {
	return !a.RequiresAuth || s.Authenticated()
}

func (a *Action) validate() error {
	switch {
	case a == nil:
		return fmt.Errorf("%w: nil action", ErrInvalidAction)
	case a.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidAction)
	case a.Build == nil:
		return fmt.Errorf("%w: %s has no request builder", ErrInvalidAction, a.Name)
	case a.Accept == nil:
		return fmt.Errorf("%w: %s has no acceptance rule", ErrInvalidAction, a.Name)
	}
	return nil
}

// Bootstrap is run once when a simulated user starts, with the given
// probability.
type Bootstrap struct {
	Probability float64
	Action      *Action
}

// Catalog is an immutable set of weighted actions.
type Catalog struct {
	actions    []*Action
	cumulative []int
	total      int
	byName     map[string]*Action
	bootstrap  *Bootstrap
}

// New builds a catalog. bootstrap may be nil.
func New(bootstrap *Bootstrap, actions ...*Action) (*Catalog, error) {
	if len(actions) == 0 {
		return nil, ErrNoActions
	}

	c := &Catalog{
		actions:    make([]*Action, 0, len(actions)),
		cumulative: make([]int, 0, len(actions)),
		byName:     make(map[string]*Action, len(actions)),
	}

	for _, a := range actions {
		if err := a.validate(); err != nil {
			return nil, err
		}
		if a.Weight <= 0 {
			return nil, fmt.Errorf("%w: %s weight must be > 0, got %d", ErrInvalidAction, a.Name, a.Weight)
		}
		if _, dup := c.byName[a.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidAction, a.Name)
		}

		c.total += a.Weight
		c.actions = append(c.actions, a)
		c.cumulative = append(c.cumulative, c.total)
		c.byName[a.Name] = a
	}

	if bootstrap != nil {
		if bootstrap.Probability < 0 || bootstrap.Probability > 1 {
			return nil, fmt.Errorf("%w: bootstrap probability must be within [0, 1], got %v",
				ErrInvalidAction, bootstrap.Probability)
		}
		if err := bootstrap.Action.validate(); err != nil {
			return nil, err
		}
		c.bootstrap = bootstrap
	}

	return c, nil
}

// Pick selects an action with probability weight / TotalWeight.
func (c *Catalog) Pick(rng *rand.Rand) *Action {
	n := rng.Intn(c.total) + 1
	return c.actions[sort.SearchInts(c.cumulative, n)]
}

// Actions returns the actions in definition order.
func (c *Catalog) Actions() []*Action {
	out := make([]*Action, len(c.actions))
	copy(out, c.actions)
	return out
}

// Lookup returns the action with the given label.
func (c *Catalog) Lookup(name string) (*Action, bool) {
	a, ok := c.byName[name]
	return a, ok
}

// TotalWeight is the sum of all action weights.
func (c *Catalog) TotalWeight() int {
	return c.total
}

// Probability returns the selection probability of a.
func (c *Catalog) Probability(a *Action) float64 {
	return float64(a.Weight) / float64(c.total)
}

// Bootstrap returns the session start hook, or nil.
func (c *Catalog) Bootstrap() *Bootstrap {
	return c.bootstrap
}
