package clansync

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/mcoot/clanadmin/internal/model"
)

// fakeSource is an in-memory RosterSource that counts every call
type fakeSource struct {
	mu sync.Mutex

	roster    model.Roster
	changes   []model.NameChange
	snapshots map[string]*model.PlayerSnapshot
	failures  map[string]error

	rosterErr  error
	changesErr error

	rosterCalls   int
	changesCalls  int
	snapshotCalls []string
}

func newFakeSource(entries ...model.RosterEntry) *fakeSource {
	return &fakeSource{
		roster:    rosterOf(entries...),
		snapshots: make(map[string]*model.PlayerSnapshot),
		failures:  make(map[string]error),
	}
}

func (f *fakeSource) FetchRoster(ctx context.Context) (model.Roster, json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rosterCalls++
	if f.rosterErr != nil {
		return nil, nil, f.rosterErr
	}
	copied := make(model.Roster, len(f.roster))
	names := make([]string, 0, len(f.roster))
	for k, v := range f.roster {
		copied[k] = v
		names = append(names, v.DisplayName)
	}
	sort.Strings(names)
	payload, err := json.Marshal(map[string]any{"name": "Test Clan", "members": names})
	if err != nil {
		return nil, nil, err
	}
	return copied, payload, nil
}

func (f *fakeSource) FetchNameChanges(ctx context.Context) ([]model.NameChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changesCalls++
	if f.changesErr != nil {
		return nil, f.changesErr
	}
	return append([]model.NameChange(nil), f.changes...), nil
}

func (f *fakeSource) FetchPlayerSnapshot(ctx context.Context, displayName string) (*model.PlayerSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotCalls = append(f.snapshotCalls, displayName)
	if err, ok := f.failures[displayName]; ok {
		return nil, err
	}
	return f.snapshots[displayName], nil
}

func (f *fakeSource) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rosterCalls + f.changesCalls + len(f.snapshotCalls)
}

func (f *fakeSource) setRoster(entries ...model.RosterEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roster = rosterOf(entries...)
}
