package simulate

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/okian/livedraft/internal/adapters/source"
	"github.com/okian/livedraft/internal/domain/model"
)

// ResultsPath is the provider endpoint the server imitates.
const ResultsPath = "/getDraftResults"

// ServerOption applies a configuration option to the Server.
type ServerOption func(*Server)

// WithAPIKey requires a bearer token on every request.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKey = key }
}

// WithLeague restricts answers to one league id.
func WithLeague(id string) ServerOption {
	return func(s *Server) { s.leagueID = id }
}

// WithFlakyEvery fails every n-th request with 503 so clients exercise their
// retry path; n <= 0 disables it.
func WithFlakyEvery(n int) ServerOption {
	return func(s *Server) { s.flakyEvery = n }
}

// WithRevealed sets how many picks are visible initially.
func WithRevealed(n int) ServerOption {
	return func(s *Server) { s.revealed = n }
}

// Server serves a draft's results document, revealing picks progressively.
type Server struct {
	mu         sync.Mutex
	events     []model.DraftEvent
	revealed   int
	requests   int
	apiKey     string
	leagueID   string
	flakyEvery int
}

// NewServer creates a server over events with none revealed.
func NewServer(events []model.DraftEvent, opts ...ServerOption) *Server {
	s := &Server{events: events}
	for _, opt := range opts {
		opt(s)
	}
	s.revealed = min(max(s.revealed, 0), len(events))
	return s
}

// Step reveals one more pick and reports whether any remain hidden.
func (s *Server) Step() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revealed < len(s.events) {
		s.revealed++
	}
	return s.revealed < len(s.events)
}

// Reveal sets the number of visible picks.
func (s *Server) Reveal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revealed = min(max(n, 0), len(s.events))
}

// Revealed returns the number of visible picks.
func (s *Server) Revealed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealed
}

// Requests returns how many requests were served.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != ResultsPath {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+s.apiKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if s.leagueID != "" && r.URL.Query().Get("leagueId") != s.leagueID {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	s.requests++
	flaky := s.flakyEvery > 0 && s.requests%s.flakyEvery == 0
	visible := s.events[:s.revealed]
	s.mu.Unlock()

	if flaky {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(source.FromEvents(visible))
}
