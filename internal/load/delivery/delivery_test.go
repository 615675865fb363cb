package delivery_test

import (
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/courier/internal/load/catalog"
	"github.com/wesleyorama2/courier/internal/load/delivery"
)

func mustCatalog(t *testing.T, opts delivery.Options) *catalog.Catalog {
	t.Helper()
	c, err := delivery.New(opts)
	require.NoError(t, err)
	return c
}

func TestNew_Weights(t *testing.T) {
	c := mustCatalog(t, delivery.Options{})

	want := map[string]int{
		"GET /api/categories":                10,
		"GET /api/products":                  8,
		"GET /api/products/:id":              6,
		"GET /api/search":                    7,
		"GET /api/products?best_seller=true": 5,
		"GET /api/cart":                      3,
		"GET /api/orders":                    2,
		"GET /api/addresses":                 2,
		"POST /api/auth/signup":              1,
		"GET /api/delivery/tracking/:id":     1,
	}

	assert.Len(t, c.Actions(), len(want))
	assert.Equal(t, 45, c.TotalWeight())
	for name, weight := range want {
		a, ok := c.Lookup(name)
		require.True(t, ok, "missing action %s", name)
		assert.Equal(t, weight, a.Weight, name)
	}

	for _, name := range []string{"GET /api/cart", "GET /api/orders", "GET /api/addresses"} {
		a, _ := c.Lookup(name)
		assert.True(t, a.RequiresAuth, "%s should require auth", name)
	}

	b := c.Bootstrap()
	require.NotNil(t, b)
	assert.Equal(t, 0.3, b.Probability)
	assert.Equal(t, "POST /api/auth/login", b.Action.Name)
}

func TestNew_Options(t *testing.T) {
	zero := 0.0
	c := mustCatalog(t, delivery.Options{Prefix: "v2/", AuthProbability: &zero})
	assert.Nil(t, c.Bootstrap(), "zero probability disables the bootstrap")

	_, ok := c.Lookup("GET /v2/categories")
	assert.True(t, ok)

	bare := mustCatalog(t, delivery.Options{Prefix: "/"})
	_, ok = bare.Lookup("GET /categories")
	assert.True(t, ok)
}

func TestRequests(t *testing.T) {
	c := mustCatalog(t, delivery.Options{})
	rng := rand.New(rand.NewSource(3))
	s := catalog.NewSession()

	products, _ := c.Lookup("GET /api/products")
	sawCategory, sawPlain := false, false
	for i := 0; i < 200; i++ {
		req := products.Build(s, rng)
		assert.Equal(t, "/api/products", req.Path)
		if cat := req.Query.Get("category_id"); cat != "" {
			assert.Contains(t, delivery.CategoryIDs, cat)
			sawCategory = true
		} else {
			sawPlain = true
		}
	}
	assert.True(t, sawCategory && sawPlain, "category filter should be applied about half the time")

	search, _ := c.Lookup("GET /api/search")
	req := search.Build(s, rng)
	assert.Contains(t, delivery.SearchTerms, req.Query.Get("q"))

	best, _ := c.Lookup("GET /api/products?best_seller=true")
	req = best.Build(s, rng)
	assert.Equal(t, "/api/products", req.Path)
	assert.Equal(t, "true", req.Query.Get("best_seller"))

	detail, _ := c.Lookup("GET /api/products/:id")
	req = detail.Build(s, rng)
	assert.Regexp(t, regexp.MustCompile(`^/api/products/product_([1-9][0-9]?|100)$`), req.Path)

	s.SetLastProductID("p-77")
	req = detail.Build(s, rng)
	assert.Equal(t, "/api/products/p-77", req.Path)

	tracking, _ := c.Lookup("GET /api/delivery/tracking/:id")
	for i := 0; i < 50; i++ {
		req = tracking.Build(s, rng)
		assert.Regexp(t, regexp.MustCompile(`^/api/delivery/tracking/order_\d{1,4}$`), req.Path)
	}

	login := c.Bootstrap().Action
	req = login.Build(s, rng)
	assert.Equal(t, http.MethodPost, req.Method)
	cred, ok := req.JSON.(delivery.Credential)
	require.True(t, ok)
	assert.Contains(t, delivery.Credentials, cred)
}

func TestNewSignup(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		body := delivery.NewSignup(rng)
		assert.Regexp(t, `^test_[a-z0-9]{8}@example\.com$`, body.Email)
		assert.Regexp(t, `^Test User [a-z0-9]{5}$`, body.Name)
		assert.Regexp(t, `^\+1234567890[1-9]\d\d$`, body.Phone)
		assert.Equal(t, "password123", body.Password)
		seen[body.Email] = true
	}
	assert.Greater(t, len(seen), 95, "emails should be fresh")
}

func TestClassification(t *testing.T) {
	c := mustCatalog(t, delivery.Options{})

	tests := []struct {
		action string
		status int
		body   string
		want   catalog.Outcome
	}{
		{"GET /api/categories", 200, `{"data":[]}`, catalog.Pass()},
		{"GET /api/categories", 200, `{"items":[]}`, catalog.Fail("Invalid response format")},
		{"GET /api/categories", 200, `oops`, catalog.Fail("Failed to parse response")},
		{"GET /api/categories", 500, ``, catalog.Fail("Status code: 500")},
		{"GET /api/products/:id", 404, ``, catalog.Pass()},
		{"GET /api/products/:id", 500, ``, catalog.Fail("Status code: 500")},
		{"GET /api/search", 200, `[]`, catalog.Pass()},
		{"GET /api/search", 200, `{"results":[]}`, catalog.Fail("Invalid response format")},
		{"GET /api/cart", 404, ``, catalog.Pass()},
		{"GET /api/orders", 200, `{"data":[]}`, catalog.Pass()},
		{"GET /api/orders", 200, `<html>`, catalog.Fail("Failed to parse response")},
		{"GET /api/addresses", 401, ``, catalog.Fail("Status code: 401")},
		{"POST /api/auth/signup", 200, ``, catalog.Pass()},
		{"POST /api/auth/signup", 201, ``, catalog.Pass()},
		{"POST /api/auth/signup", 409, ``, catalog.Pass()},
		{"POST /api/auth/signup", 400, ``, catalog.Fail("Status code: 400")},
		{"POST /api/auth/signup", 500, ``, catalog.Fail("Status code: 500")},
		{"GET /api/delivery/tracking/:id", 200, ``, catalog.Pass()},
	}

	for _, tt := range tests {
		name := strings.ReplaceAll(tt.action, "/", "_") + "_" + http.StatusText(tt.status)
		t.Run(name, func(t *testing.T) {
			a, ok := c.Lookup(tt.action)
			require.True(t, ok)
			resp := &catalog.Response{StatusCode: tt.status, Body: []byte(tt.body)}
			got := a.Accept(resp)
			assert.Equal(t, tt.want, got)
			// classification is a pure function of the response
			assert.Equal(t, got, a.Accept(resp))
		})
	}
}

func TestCaptures(t *testing.T) {
	c := mustCatalog(t, delivery.Options{})

	products, _ := c.Lookup("GET /api/products")
	s := catalog.NewSession()
	products.OnSuccess(s, &catalog.Response{StatusCode: 200, Body: []byte(`{"data":[{"id":"p1"},{"id":"p2"}]}`)})
	id, ok := s.LastProductID()
	assert.True(t, ok)
	assert.Equal(t, "p1", id)

	// an empty listing leaves the previous id in place
	products.OnSuccess(s, &catalog.Response{StatusCode: 200, Body: []byte(`{"data":[]}`)})
	id, _ = s.LastProductID()
	assert.Equal(t, "p1", id)

	login := c.Bootstrap().Action
	tokenCases := []struct {
		body  string
		token string
	}{
		{`{"data":{"token":"abc"}}`, "abc"},
		{`{"token":"xyz"}`, "xyz"},
		{`{"data":{"token":""},"token":"fallback"}`, "fallback"},
		{`{"ok":true}`, ""},
		{`not json`, ""},
	}
	for _, tc := range tokenCases {
		s := catalog.NewSession()
		login.OnSuccess(s, &catalog.Response{StatusCode: 200, Body: []byte(tc.body)})
		got, _ := s.Token()
		assert.Equal(t, tc.token, got, tc.body)
	}
}
