// Package fixturetest runs an in-memory stand-in for the REST API, enough
// to exercise the fixture client's create, list, pagination and delete
// paths.
package fixturetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Token is the bearer token the server accepts.
const Token = "fixturetest-token"

// Collections served, keyed by path.
var collections = []string{
	"/linode/instances",
	"/volumes",
	"/domains",
	"/nodebalancers",
	"/account/users",
	"/profile/tokens",
	"/profile/sshkeys",
}

// Call is one request the server received.
type Call struct {
	Method string
	Path   string
	At     time.Time
}

type failure struct {
	status int
	times  int // remaining; negative means forever
}

// Server is a fake API. Create it with NewServer.
type Server struct {
	URL string

	mu       sync.Mutex
	nextID   int
	objects  map[string]map[string]map[string]interface{}
	order    map[string][]string
	calls    []Call
	failures map[string]*failure
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		nextID:   100,
		objects:  make(map[string]map[string]map[string]interface{}),
		order:    make(map[string][]string),
		failures: make(map[string]*failure),
	}
	for _, c := range collections {
		s.objects[c] = make(map[string]map[string]interface{})
	}
	srv := httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(srv.Close)
	s.URL = srv.URL
	return s
}

// Fail makes the next times requests with method to path answer status.
// A negative times fails forever.
func (s *Server) Fail(method, path string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = &failure{status: status, times: times}
}

// Seed stores obj in collection as if it had been created earlier and
// returns its key.
func (s *Server) Seed(collection string, obj map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(collection, obj)
}

// Objects returns the current contents of collection in creation order.
func (s *Server) Objects(collection string) []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]interface{}
	for _, k := range s.order[collection] {
		if obj, ok := s.objects[collection][k]; ok {
			out = append(out, obj)
		}
	}
	return out
}

// Calls returns every request received so far, optionally filtered by method.
func (s *Server) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, At: time.Now()})

	if r.Header.Get("Authorization") != "Bearer "+Token {
		writeError(w, http.StatusUnauthorized, "", "Invalid Token")
		return
	}
	if f, ok := s.failures[r.Method+" "+r.URL.Path]; ok && f.times != 0 {
		if f.times > 0 {
			f.times--
		}
		writeError(w, f.status, "", "injected failure")
		return
	}

	collection, key := s.route(r.URL.Path)
	if collection == "" {
		writeError(w, http.StatusNotFound, "", "Not found")
		return
	}

	switch {
	case r.Method == http.MethodGet && key == "":
		s.list(w, r, collection)
	case r.Method == http.MethodGet:
		obj, ok := s.objects[collection][key]
		if !ok {
			writeError(w, http.StatusNotFound, "", "Not found")
			return
		}
		writeJSON(w, http.StatusOK, obj)
	case r.Method == http.MethodPost && key == "":
		var obj map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
			writeError(w, http.StatusBadRequest, "", err.Error())
			return
		}
		s.store(collection, obj)
		writeJSON(w, http.StatusOK, obj)
	case r.Method == http.MethodDelete && key != "":
		if _, ok := s.objects[collection][key]; !ok {
			writeError(w, http.StatusNotFound, "", "Not found")
			return
		}
		delete(s.objects[collection], key)
		writeJSON(w, http.StatusOK, map[string]interface{}{})
	default:
		writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
	}
}

func (s *Server) route(path string) (collection, key string) {
	for _, c := range collections {
		if path == c {
			return c, ""
		}
		if strings.HasPrefix(path, c+"/") {
			return c, strings.TrimPrefix(path, c+"/")
		}
	}
	return "", ""
}

func (s *Server) store(collection string, obj map[string]interface{}) string {
	var key string
	if collection == "/account/users" {
		key = fmt.Sprint(obj["username"])
	} else {
		if id, ok := obj["id"]; ok {
			key = fmt.Sprint(id)
		} else {
			s.nextID++
			obj["id"] = s.nextID
			key = strconv.Itoa(s.nextID)
		}
	}
	switch collection {
	case "/linode/instances":
		delete(obj, "root_pass")
		if _, ok := obj["status"]; !ok {
			obj["status"] = "running"
		}
	case "/volumes":
		if _, ok := obj["status"]; !ok {
			obj["status"] = "active"
		}
	case "/profile/tokens":
		obj["token"] = "secret-" + key
	}
	if _, exists := s.objects[collection][key]; !exists {
		s.order[collection] = append(s.order[collection], key)
	}
	s.objects[collection][key] = obj
	return key
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, collection string) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if size < 1 {
		size = 100
	}

	all := []map[string]interface{}{}
	for _, k := range s.order[collection] {
		if obj, ok := s.objects[collection][k]; ok {
			all = append(all, obj)
		}
	}
	pages := (len(all) + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	start := (page - 1) * size
	end := start + size
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":    all[start:end],
		"page":    page,
		"pages":   pages,
		"results": len(all),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, field, reason string) {
	e := map[string]string{"reason": reason}
	if field != "" {
		e["field"] = field
	}
	writeJSON(w, status, map[string]interface{}{"errors": []map[string]string{e}})
}
