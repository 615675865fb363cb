// Package deliverytest provides an in-memory delivery API that answers every
// endpoint of the delivery catalog, for tests and local smoke runs.
package deliverytest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/wesleyorama2/courier/internal/load/delivery"
)

type product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
	BestSeller bool   `json:"best_seller"`
}

type envelope struct {
	Data interface{} `json:"data"`
}

// API is an http.Handler serving the delivery endpoints under a prefix.
//
// Known products are product_1 through product_100; tracking ids above
// order_500 are unknown. Logins accept the delivery credential pool, and
// signups conflict on a repeated email.
type API struct {
	prefix   string
	products []product
	failWith atomic.Int32

	mu     sync.Mutex
	tokens map[string]bool
	emails map[string]bool
	hits   map[string]int
}

// NewAPI returns an API mounted under prefix ("" or "/" for none).
func NewAPI(prefix string) *API {
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		prefix = ""
	}

	products := make([]product, 0, 100)
	for i := 1; i <= 100; i++ {
		products = append(products, product{
			ID:         "product_" + strconv.Itoa(i),
			Name:       "Product " + strconv.Itoa(i),
			CategoryID: delivery.CategoryIDs[i%len(delivery.CategoryIDs)],
			BestSeller: i%7 == 0,
		})
	}

	return &API{
		prefix:   prefix,
		products: products,
		tokens:   map[string]bool{},
		emails:   map[string]bool{},
		hits:     map[string]int{},
	}
}

// FailWith makes every response use status code; 0 restores normal
// behavior.
func (a *API) FailWith(code int) {
	a.failWith.Store(int32(code))
}

// Hits returns how many requests reached path (without the prefix).
func (a *API) Hits(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[path]
}

// TotalHits returns the number of requests served.
func (a *API) TotalHits() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, n := range a.hits {
		total += n
	}
	return total
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path, ok := strings.CutPrefix(r.URL.Path, a.prefix)
	if !ok {
		http.NotFound(w, r)
		return
	}

	a.mu.Lock()
	a.hits[path]++
	a.mu.Unlock()

	if code := a.failWith.Load(); code != 0 {
		w.WriteHeader(int(code))
		return
	}

	switch {
	case path == "/auth/login" && r.Method == http.MethodPost:
		a.login(w, r)
	case path == "/auth/signup" && r.Method == http.MethodPost:
		a.signup(w, r)
	case path == "/categories":
		a.categories(w)
	case path == "/products":
		a.listProducts(w, r)
	case strings.HasPrefix(path, "/products/"):
		a.getProduct(w, strings.TrimPrefix(path, "/products/"))
	case path == "/search":
		a.search(w, r)
	case path == "/cart", path == "/orders", path == "/addresses":
		a.account(w, r, path)
	case strings.HasPrefix(path, "/delivery/tracking/"):
		a.tracking(w, strings.TrimPrefix(path, "/delivery/tracking/"))
	default:
		http.NotFound(w, r)
	}
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var cred delivery.Credential
	if err := json.NewDecoder(r.Body).Decode(&cred); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	for _, known := range delivery.Credentials {
		if cred == known {
			token := uuid.NewString()
			a.mu.Lock()
			a.tokens[token] = true
			a.mu.Unlock()
			writeJSON(w, http.StatusOK, envelope{Data: map[string]string{"token": token}})
			return
		}
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
}

func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	var body delivery.Signup
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	a.mu.Lock()
	exists := a.emails[body.Email]
	a.emails[body.Email] = true
	a.mu.Unlock()

	if exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "email already registered"})
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Data: map[string]string{"id": uuid.NewString(), "email": body.Email}})
}

func (a *API) categories(w http.ResponseWriter) {
	cats := make([]map[string]string, 0, len(delivery.CategoryIDs))
	for _, id := range delivery.CategoryIDs {
		cats = append(cats, map[string]string{"id": id, "name": "Category " + id})
	}
	writeJSON(w, http.StatusOK, envelope{Data: cats})
}

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category_id")
	bestSeller := r.URL.Query().Get("best_seller") == "true"

	out := []product{}
	for _, p := range a.products {
		if category != "" && p.CategoryID != category {
			continue
		}
		if bestSeller && !p.BestSeller {
			continue
		}
		out = append(out, p)
		if len(out) == 20 {
			break
		}
	}
	writeJSON(w, http.StatusOK, envelope{Data: out})
}

func (a *API) getProduct(w http.ResponseWriter, id string) {
	for _, p := range a.products {
		if p.ID == id {
			writeJSON(w, http.StatusOK, envelope{Data: p})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("q"))

	out := []product{}
	for i, p := range a.products {
		if q != "" && i%len(q) != 0 {
			continue
		}
		out = append(out, p)
		if len(out) == 10 {
			break
		}
	}
	writeJSON(w, http.StatusOK, envelope{Data: out})
}

func (a *API) account(w http.ResponseWriter, r *http.Request, path string) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	a.mu.Lock()
	valid := ok && a.tokens[token]
	a.mu.Unlock()

	if !valid {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	switch path {
	case "/cart":
		writeJSON(w, http.StatusOK, envelope{Data: map[string]interface{}{"items": []string{}, "total": 0}})
	default:
		writeJSON(w, http.StatusOK, envelope{Data: []string{}})
	}
}

func (a *API) tracking(w http.ResponseWriter, id string) {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "order_"))
	if err != nil || n < 1 || n > 500 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]string{"order_id": id, "status": "in_transit"}})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
