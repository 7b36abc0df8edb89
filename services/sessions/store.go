package sessions

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cineverse/models"
)

var ErrSessionNotFound = errors.New("session not found")

// ViewState is what a browser session remembers between requests.
type ViewState struct {
	HomeQuery  string
	WatchQuery string

	// Watch selection. TV is only set when Selected is a series.
	Selected *models.Title
	TV       *models.TVDetails
	Season   int
	Episode  int
	Played   bool

	UpdatedAt time.Time
}

// Select replaces the Watch selection. Anything chosen for the previous
// selection (played flag, season, episode) is discarded.
func (v *ViewState) Select(query string, title *models.Title, tv *models.TVDetails) {
	v.WatchQuery = query
	v.Selected = title
	v.TV = nil
	v.Season = 0
	v.Episode = 0
	v.Played = false
	if title != nil && title.IsTV() {
		v.TV = tv
		v.Season = 1
		v.Episode = 1
	}
}

// ClearSelection forgets the Watch selection, e.g. after a failed search.
func (v *ViewState) ClearSelection(query string) {
	v.Select(query, nil, nil)
}

type entry struct {
	state   ViewState
	expires time.Time
}

// Store keeps ViewStates in memory keyed by an opaque session id. Entries
// expire after ttl without use.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*entry
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Store{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Create starts an empty session and returns its id.
func (s *Store) Create() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.cleanupLocked(now)

	id := uuid.NewString()
	s.sessions[id] = &entry{
		state:   ViewState{UpdatedAt: now},
		expires: now.Add(s.ttl),
	}
	return id
}

// Get returns a copy of the session state and refreshes its expiry.
func (s *Store) Get(id string) (ViewState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveLocked(id)
	if !ok {
		return ViewState{}, false
	}
	e.expires = s.now().Add(s.ttl)
	return e.state, true
}

// Update applies fn to the session state under the store lock.
func (s *Store) Update(id string, fn func(*ViewState)) (ViewState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.liveLocked(id)
	if !ok {
		return ViewState{}, ErrSessionNotFound
	}
	fn(&e.state)
	now := s.now()
	e.state.UpdatedAt = now
	e.expires = now.Add(s.ttl)
	return e.state, nil
}

// Len counts live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(s.now())
	return len(s.sessions)
}

// Prune drops expired sessions and returns how many were removed.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.sessions)
	s.cleanupLocked(s.now())
	return before - len(s.sessions)
}

func (s *Store) liveLocked(id string) (*entry, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false
	}
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if !e.expires.After(s.now()) {
		delete(s.sessions, id)
		return nil, false
	}
	return e, true
}

func (s *Store) cleanupLocked(now time.Time) {
	for id, e := range s.sessions {
		if !e.expires.After(now) {
			delete(s.sessions, id)
		}
	}
}
