// Package womtest provides an in-process fake of the roster service API.
package womtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Member is one roster entry served by the fake
type Member struct {
	ID   int64
	Name string
	Role string
	Exp  *int64
}

// Snapshot is a player snapshot served by the fake
type Snapshot struct {
	CreatedAt time.Time
	XP        int64
	Level     int
	EHP       float64
	EHB       float64
}

// Rename is a name change served by the fake
type Rename struct {
	OldName   string
	NewName   string
	Status    string
	CreatedAt time.Time
}

// Server is a fake roster service. Zero values serve an empty group.
type Server struct {
	*httptest.Server

	GroupID string
	APIKey  string

	mu          sync.Mutex
	members     []Member
	latest      map[string]*Snapshot
	history     map[string][]Snapshot
	renames     []Rename
	failRoster  bool
	failPlayers map[string]int
	requests    map[string]int
}

// NewServer starts a fake server; callers must Close it
func NewServer(groupID, apiKey string) *Server {
	s := &Server{
		GroupID:     groupID,
		APIKey:      apiKey,
		latest:      make(map[string]*Snapshot),
		history:     make(map[string][]Snapshot),
		failPlayers: make(map[string]int),
		requests:    make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SetMembers replaces the roster
func (s *Server) SetMembers(members ...Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = append([]Member(nil), members...)
}

// SetLatestSnapshot sets the snapshot returned for a player; nil clears it
func (s *Server) SetLatestSnapshot(name string, snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[strings.ToLower(name)] = snap
}

// SetHistory sets the historical snapshots for a player
func (s *Server) SetHistory(name string, snaps ...Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[strings.ToLower(name)] = append([]Snapshot(nil), snaps...)
}

// SetRenames replaces the name change feed
func (s *Server) SetRenames(renames ...Rename) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renames = append([]Rename(nil), renames...)
}

// FailRoster makes the group endpoint return 503
func (s *Server) FailRoster(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRoster = fail
}

// FailPlayer makes the player endpoint return the given status for a player
func (s *Server) FailPlayer(name string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPlayers[strings.ToLower(name)] = status
}

// Requests returns how many requests hit paths with the given prefix
func (s *Server) Requests(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for path, n := range s.requests {
		if strings.HasPrefix(path, prefix) {
			total += n
		}
	}
	return total
}

// TotalRequests returns the number of requests served
func (s *Server) TotalRequests() int {
	return s.Requests("/")
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.URL.Path]++

	if s.APIKey != "" && r.Header.Get("x-api-key") != s.APIKey {
		http.Error(w, `{"message":"bad api key"}`, http.StatusUnauthorized)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "groups" && parts[1] == s.GroupID:
		if s.failRoster {
			http.Error(w, `{"message":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		s.writeGroup(w)
	case len(parts) == 3 && parts[0] == "groups" && parts[1] == s.GroupID && parts[2] == "name-changes":
		s.writeRenames(w)
	case len(parts) == 2 && parts[0] == "players":
		s.writePlayer(w, parts[1])
	case len(parts) == 3 && parts[0] == "players" && parts[2] == "snapshots":
		s.writeHistory(w, r, parts[1])
	default:
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
	}
}

func (s *Server) writeGroup(w http.ResponseWriter) {
	memberships := make([]map[string]any, 0, len(s.members))
	for _, m := range s.members {
		p := map[string]any{
			"id":          m.ID,
			"username":    strings.ToLower(m.Name),
			"displayName": m.Name,
		}
		if m.Exp != nil {
			p["exp"] = *m.Exp
		}
		memberships = append(memberships, map[string]any{"role": m.Role, "player": p})
	}
	writeJSON(w, map[string]any{"id": 1, "name": "Test Clan", "memberships": memberships})
}

func (s *Server) writeRenames(w http.ResponseWriter) {
	changes := make([]map[string]any, 0, len(s.renames))
	for i := len(s.renames) - 1; i >= 0; i-- {
		rn := s.renames[i]
		status := rn.Status
		if status == "" {
			status = "approved"
		}
		changes = append(changes, map[string]any{
			"id":        i + 1,
			"oldName":   rn.OldName,
			"newName":   rn.NewName,
			"status":    status,
			"createdAt": rn.CreatedAt,
		})
	}
	writeJSON(w, changes)
}

func (s *Server) writePlayer(w http.ResponseWriter, name string) {
	key := strings.ToLower(name)
	if status, ok := s.failPlayers[key]; ok {
		http.Error(w, `{"message":"failure"}`, status)
		return
	}
	var latest any
	if snap := s.latest[key]; snap != nil {
		latest = snapshotJSON(*snap)
	}
	writeJSON(w, map[string]any{"id": 1, "username": key, "latestSnapshot": latest})
}

func (s *Server) writeHistory(w http.ResponseWriter, r *http.Request, name string) {
	snaps := append([]Snapshot(nil), s.history[strings.ToLower(name)]...)
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.After(snaps[j].CreatedAt) })

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}
	if offset > len(snaps) {
		offset = len(snaps)
	}
	end := offset + limit
	if end > len(snaps) {
		end = len(snaps)
	}

	page := make([]map[string]any, 0, end-offset)
	for _, snap := range snaps[offset:end] {
		page = append(page, snapshotJSON(snap))
	}
	writeJSON(w, page)
}

func snapshotJSON(s Snapshot) map[string]any {
	return map[string]any{
		"id":        s.CreatedAt.Unix(),
		"playerId":  1,
		"createdAt": s.CreatedAt,
		"data": map[string]any{
			"skills": map[string]any{
				"overall": map[string]any{"experience": s.XP, "level": s.Level},
			},
			"computed": map[string]any{
				"ehp": map[string]any{"value": s.EHP},
				"ehb": map[string]any{"value": s.EHB},
			},
		},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf(`{"message":%q}`, err.Error()), http.StatusInternalServerError)
	}
}

// Int64 returns a pointer to v
func Int64(v int64) *int64 {
	return &v
}
