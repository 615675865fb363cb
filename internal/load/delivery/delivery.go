// Package delivery defines the fixed scenario catalog for the delivery
// API: ten weighted browse/search/account actions plus a login bootstrap.
package delivery

import (
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"

	"github.com/wesleyorama2/courier/internal/load/catalog"
)

// Credential is one entry of the fixed login pool.
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Fixed data tables used to synthesize request parameters.
var (
	Credentials = []Credential{
		{Email: "test1@example.com", Password: "password123"},
		{Email: "test2@example.com", Password: "password123"},
		{Email: "test3@example.com", Password: "password123"},
	}

	SearchTerms = []string{
		"milk", "bread", "eggs", "chicken", "rice", "pasta",
		"vegetables", "fruits", "cheese", "yogurt", "juice",
	}

	CategoryIDs = []string{"1", "2", "3", "4", "5"}
)

const (
	// DefaultPrefix is prepended to every API path.
	DefaultPrefix = "/api"

	// DefaultAuthProbability is the chance a new user logs in.
	DefaultAuthProbability = 0.3

	signupPassword = "password123"
	alphanumeric   = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Token and product id extraction strategies.
var (
	TokenExtractor     = catalog.FirstOf(catalog.Field("data.token"), catalog.Field("token"))
	ProductIDExtractor = catalog.Field("data.0.id")
)

// Options tune the catalog without changing its action set.
type Options struct {
	// Prefix is the API path prefix (default "/api").
	Prefix string

	// AuthProbability is the bootstrap login probability (default 0.3).
	// Nil means the default; zero disables the bootstrap login.
	AuthProbability *float64
}

// New builds the delivery-API catalog.
func New(opts Options) (*catalog.Catalog, error) {
	prefix := normalizePrefix(opts.Prefix)

	prob := DefaultAuthProbability
	if opts.AuthProbability != nil {
		prob = *opts.AuthProbability
	}

	p := func(path string) string { return prefix + path }

	actions := []*catalog.Action{
		{
			Name:   "GET " + p("/categories"),
			Weight: 10,
			Build:  get(p("/categories"), nil),
			Accept: catalog.AcceptSchema(catalog.CollectionSchema),
		},
		{
			Name:   "GET " + p("/products"),
			Weight: 8,
			Build: func(_ *catalog.Session, rng *rand.Rand) catalog.Request {
				req := catalog.Request{Method: http.MethodGet, Path: p("/products")}
				if rng.Float64() < 0.5 {
					req.Query = url.Values{"category_id": {choice(rng, CategoryIDs)}}
				}
				return req
			},
			Accept:    catalog.AcceptSchema(catalog.CollectionSchema),
			OnSuccess: captureProductID,
		},
		{
			Name:   "GET " + p("/products/:id"),
			Weight: 6,
			Build: func(s *catalog.Session, rng *rand.Rand) catalog.Request {
				id, ok := s.LastProductID()
				if !ok {
					id = fmt.Sprintf("product_%d", rng.Intn(100)+1)
				}
				return catalog.Request{Method: http.MethodGet, Path: p("/products/" + url.PathEscape(id))}
			},
			Accept: catalog.AcceptStatus(http.StatusOK, http.StatusNotFound),
		},
		{
			Name:   "GET " + p("/search"),
			Weight: 7,
			Build: func(_ *catalog.Session, rng *rand.Rand) catalog.Request {
				return catalog.Request{
					Method: http.MethodGet,
					Path:   p("/search"),
					Query:  url.Values{"q": {choice(rng, SearchTerms)}},
				}
			},
			Accept: catalog.AcceptSchema(catalog.EnvelopeOrListSchema),
		},
		{
			Name:      "GET " + p("/products?best_seller=true"),
			Weight:    5,
			Build:     get(p("/products"), url.Values{"best_seller": {"true"}}),
			Accept:    catalog.AcceptSchema(catalog.CollectionSchema),
			OnSuccess: captureProductID,
		},
		{
			Name:         "GET " + p("/cart"),
			Weight:       3,
			RequiresAuth: true,
			Build:        get(p("/cart"), nil),
			Accept:       catalog.AcceptStatus(http.StatusOK, http.StatusNotFound),
		},
		{
			Name:         "GET " + p("/orders"),
			Weight:       2,
			RequiresAuth: true,
			Build:        get(p("/orders"), nil),
			Accept:       catalog.AcceptJSON(),
		},
		{
			Name:         "GET " + p("/addresses"),
			Weight:       2,
			RequiresAuth: true,
			Build:        get(p("/addresses"), nil),
			Accept:       catalog.AcceptStatus(http.StatusOK, http.StatusNotFound),
		},
		{
			Name:   "POST " + p("/auth/signup"),
			Weight: 1,
			Build: func(_ *catalog.Session, rng *rand.Rand) catalog.Request {
				return catalog.Request{
					Method: http.MethodPost,
					Path:   p("/auth/signup"),
					JSON:   NewSignup(rng),
				}
			},
			Accept: catalog.AcceptSuccessful(http.StatusConflict),
		},
		{
			Name:   "GET " + p("/delivery/tracking/:id"),
			Weight: 1,
			Build: func(_ *catalog.Session, rng *rand.Rand) catalog.Request {
				id := fmt.Sprintf("order_%d", rng.Intn(1000)+1)
				return catalog.Request{Method: http.MethodGet, Path: p("/delivery/tracking/" + id)}
			},
			Accept: catalog.AcceptStatus(http.StatusOK, http.StatusNotFound),
		},
	}

	var bootstrap *catalog.Bootstrap
	if prob > 0 {
		bootstrap = &catalog.Bootstrap{
			Probability: prob,
			Action: &catalog.Action{
				Name:   "POST " + p("/auth/login"),
				Weight: 1,
				Build: func(_ *catalog.Session, rng *rand.Rand) catalog.Request {
					return catalog.Request{
						Method: http.MethodPost,
						Path:   p("/auth/login"),
						JSON:   Credentials[rng.Intn(len(Credentials))],
					}
				},
				Accept:    catalog.AcceptSuccessful(),
				OnSuccess: captureToken,
			},
		}
	}

	return catalog.New(bootstrap, actions...)
}

// Signup is the request body for a new account.
type Signup struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// NewSignup synthesizes a fresh signup body.
func NewSignup(rng *rand.Rand) Signup {
	return Signup{
		Name:     "Test User " + randomString(rng, 5),
		Email:    "test_" + randomString(rng, 8) + "@example.com",
		Password: signupPassword,
		Phone:    fmt.Sprintf("+1234567890%d", rng.Intn(900)+100),
	}
}

func get(path string, query url.Values) func(*catalog.Session, *rand.Rand) catalog.Request {
	return func(*catalog.Session, *rand.Rand) catalog.Request {
		return catalog.Request{Method: http.MethodGet, Path: path, Query: query}
	}
}

func captureProductID(s *catalog.Session, resp *catalog.Response) {
	if id, ok := ProductIDExtractor(resp.Body); ok {
		s.SetLastProductID(id)
	}
}

func captureToken(s *catalog.Session, resp *catalog.Response) {
	if token, ok := TokenExtractor(resp.Body); ok {
		s.SetToken(token)
	}
}

func choice(rng *rand.Rand, items []string) string {
	return items[rng.Intn(len(items))]
}

func randomString(rng *rand.Rand, n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphanumeric[rng.Intn(len(alphanumeric))])
	}
	return b.String()
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		return DefaultPrefix
	}
	if prefix == "/" {
		return ""
	}
	prefix = strings.TrimRight(prefix, "/")
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}
