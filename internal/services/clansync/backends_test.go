package clansync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mcoot/clanadmin/internal/dependencies/mocks"
	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/storage"
	"github.com/mcoot/clanadmin/internal/storage/memory"
	"github.com/mcoot/clanadmin/internal/storage/postgres"
	"github.com/mcoot/clanadmin/internal/storage/redis"
	"github.com/mcoot/clanadmin/internal/testutil"
)

// backends builds a fresh store per backend. Row order from ListAliases
// differs between them, which is what these tests rely on.
var backends = map[string]func(t *testing.T) storage.Storage{
	"memory": func(t *testing.T) storage.Storage {
		return memory.New()
	},
	"redis": func(t *testing.T) storage.Storage {
		mini := miniredis.RunT(t)
		store := redis.NewWithClient(goredis.NewClient(&goredis.Options{Addr: mini.Addr()}), redis.DefaultConfig())
		t.Cleanup(func() { _ = store.Close() })
		return store
	},
	"postgres": func(t *testing.T) storage.Storage {
		db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "clan.db")), &gorm.Config{
			TranslateError: true,
			Logger:         postgres.GormLogger(testutil.NopLogger()),
		})
		require.NoError(t, err)
		require.NoError(t, postgres.Migrate(db))
		store := postgres.New(db)
		t.Cleanup(func() { _ = store.Close() })
		return store
	},
}

func seedRanks(t *testing.T, store storage.Storage) {
	t.Helper()
	for _, r := range testRanks {
		require.NoError(t, store.CreateRank(context.Background(), &model.Rank{Name: r.Name, Type: r.Type}))
	}
}

func TestRenameOntoHeldNameIsStableAcrossRuns(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			seedRanks(t, store)

			// The previous holder sorts last by member id and was registered long ago
			for _, m := range []struct {
				id, rsn string
				age     int
			}{
				{"z-bob-old", "Bob", 2},
				{"a-alice", "Alice", 1},
			} {
				require.NoError(t, store.SaveMember(ctx, &model.Member{
					ID: model.MemberID(m.id), RankID: 1, Status: model.StatusActive, DateJoined: runTime.AddDate(-m.age, 0, 0),
				}))
				require.NoError(t, store.SaveAlias(ctx, model.Alias{
					RSN: m.rsn, MemberID: model.MemberID(m.id), IsPrimary: true, CreatedAt: runTime.AddDate(-m.age, 0, 0),
				}))
			}

			source := newFakeSource(entry("Bob", "sapphire"))
			source.changes = []model.NameChange{rename("Alice", "Bob")}
			clk := mocks.NewMockClock(runTime)
			service := NewService(store, source, clk, mocks.NewMockIDs(), testutil.NopLogger(), DefaultConfig())

			first, err := service.Run(ctx, Options{})
			require.NoError(t, err)
			require.Equal(t, OutcomeCompleted, first.Outcome, first.Report)
			assert.Equal(t, 1, first.Counts.Departed)
			assert.Zero(t, first.StepErrors, first.Report)

			clk.Advance(12 * time.Hour)
			second, err := service.Run(ctx, Options{})
			require.NoError(t, err)
			assert.Equal(t, Counts{Unchanged: 1}, second.Counts, second.Report)

			alice, err := store.GetMember(ctx, "a-alice")
			require.NoError(t, err)
			assert.Equal(t, model.StatusActive, alice.Status)
			previous, err := store.GetMember(ctx, "z-bob-old")
			require.NoError(t, err)
			assert.Equal(t, model.StatusInactive, previous.Status)

			for _, id := range []model.MemberID{"a-alice", "z-bob-old"} {
				history, err := store.ListRankHistory(ctx, id, 0)
				require.NoError(t, err)
				assert.Empty(t, history, "member %s", id)
			}

			aliases, err := store.ListAliases(ctx)
			require.NoError(t, err)
			var bobPrimaries []model.MemberID
			for _, a := range aliases {
				if a.Normalized() == "bob" && a.IsPrimary {
					bobPrimaries = append(bobPrimaries, a.MemberID)
				}
			}
			assert.Equal(t, []model.MemberID{"a-alice"}, bobPrimaries)
		})
	}
}
