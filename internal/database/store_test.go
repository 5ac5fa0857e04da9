package database_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cvperfect/SessionService/internal/database"
	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(t *testing.T) database.Store {
	t.Helper()
	return map[string]func(t *testing.T) database.Store{
		"file": func(t *testing.T) database.Store {
			store, _ := testutil.NewTestFileStore(t)
			return store
		},
		"sqlite": func(t *testing.T) database.Store {
			return testutil.NewTestSQLiteDB(t)
		},
		"redis": func(t *testing.T) database.Store {
			mr, cleanup := testutil.SetupMiniRedis(t)
			t.Cleanup(cleanup)
			return testutil.NewTestRedisDB(t, mr)
		},
		"instrumented": func(t *testing.T) database.Store {
			store, _ := testutil.NewTestFileStore(t)
			return database.NewInstrumentedStore(store, "file")
		},
	}
}

func TestStoreSessions(t *testing.T) {
	ctx := context.Background()

	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("save then get returns identical record", func(t *testing.T) {
				store := newStore(t)

				session := testutil.TestSession("sess_rt")
				session.CVData = testutil.LargeCV(50000)
				session.CreatedAt = time.Date(2025, 1, 15, 10, 30, 0, 123456789, time.UTC)
				session.UpdatedAt = session.CreatedAt.Add(time.Minute)

				require.NoError(t, store.SaveSession(ctx, session))

				got, err := store.GetSession(ctx, "sess_rt")
				require.NoError(t, err)
				assert.Equal(t, session.CVData, got.CVData)
				assert.Equal(t, session.Photo, got.Photo)
				assert.Equal(t, session.JobPosting, got.JobPosting)
				assert.Equal(t, session.Plan, got.Plan)
				assert.Equal(t, session.Metadata, got.Metadata)
				assert.True(t, session.CreatedAt.Equal(got.CreatedAt))
				assert.True(t, session.UpdatedAt.Equal(got.UpdatedAt))
			})

			t.Run("save replaces the whole record", func(t *testing.T) {
				store := newStore(t)

				require.NoError(t, store.SaveSession(ctx, testutil.TestSession("sess_rep")))
				replacement := &models.Session{SessionID: "sess_rep", CVData: "v2", Plan: models.PlanBasic}
				require.NoError(t, store.SaveSession(ctx, replacement))

				got, err := store.GetSession(ctx, "sess_rep")
				require.NoError(t, err)
				assert.Equal(t, "v2", got.CVData)
				assert.Empty(t, got.Photo)
				assert.Empty(t, got.Email)
			})

			t.Run("missing session is ErrNotFound", func(t *testing.T) {
				store := newStore(t)

				_, err := store.GetSession(ctx, "sess_none")
				assert.True(t, errors.Is(err, database.ErrNotFound))
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				store := newStore(t)

				require.NoError(t, store.SaveSession(ctx, testutil.TestSession("sess_del")))
				require.NoError(t, store.DeleteSession(ctx, "sess_del"))
				require.NoError(t, store.DeleteSession(ctx, "sess_del"))

				_, err := store.GetSession(ctx, "sess_del")
				assert.True(t, errors.Is(err, database.ErrNotFound))
			})

			t.Run("list returns every session", func(t *testing.T) {
				store := newStore(t)

				sessions, err := store.ListSessions(ctx)
				require.NoError(t, err)
				assert.Empty(t, sessions)

				for _, id := range []string{"sess_a", "sess_b", "sess_c"} {
					require.NoError(t, store.SaveSession(ctx, testutil.TestSession(id)))
				}

				sessions, err = store.ListSessions(ctx)
				require.NoError(t, err)
				var ids []string
				for _, s := range sessions {
					ids = append(ids, s.SessionID)
				}
				assert.ElementsMatch(t, []string{"sess_a", "sess_b", "sess_c"}, ids)
			})

			t.Run("ping", func(t *testing.T) {
				assert.NoError(t, newStore(t).Ping(ctx))
			})
		})
	}
}

func TestStoreEmailIndex(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("set get and overwrite", func(t *testing.T) {
				store := newStore(t)

				entry := &models.EmailIndexEntry{EmailHash: "5d41402abc4b2a76", SessionID: "sess_1", Plan: models.PlanGold, CreatedAt: created}
				require.NoError(t, store.SetEmailIndex(ctx, entry))

				got, err := store.GetEmailIndex(ctx, "5d41402abc4b2a76")
				require.NoError(t, err)
				assert.Equal(t, "sess_1", got.SessionID)
				assert.Equal(t, models.PlanGold, got.Plan)
				assert.True(t, created.Equal(got.CreatedAt))

				entry.SessionID = "sess_2"
				require.NoError(t, store.SetEmailIndex(ctx, entry))
				got, err = store.GetEmailIndex(ctx, "5d41402abc4b2a76")
				require.NoError(t, err)
				assert.Equal(t, "sess_2", got.SessionID)
			})

			t.Run("missing entry is ErrNotFound", func(t *testing.T) {
				store := newStore(t)

				_, err := store.GetEmailIndex(ctx, "0000000000000000")
				assert.True(t, errors.Is(err, database.ErrNotFound))
			})

			t.Run("delete and list", func(t *testing.T) {
				store := newStore(t)

				for _, hash := range []string{"aaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbb"} {
					require.NoError(t, store.SetEmailIndex(ctx, &models.EmailIndexEntry{EmailHash: hash, SessionID: "sess_" + hash[:1], Plan: models.PlanBasic, CreatedAt: created}))
				}

				entries, err := store.ListEmailIndexes(ctx)
				require.NoError(t, err)
				assert.Len(t, entries, 2)

				require.NoError(t, store.DeleteEmailIndex(ctx, "aaaaaaaaaaaaaaaa"))
				require.NoError(t, store.DeleteEmailIndex(ctx, "aaaaaaaaaaaaaaaa"))

				entries, err = store.ListEmailIndexes(ctx)
				require.NoError(t, err)
				require.Len(t, entries, 1)
				assert.Equal(t, "bbbbbbbbbbbbbbbb", entries[0].EmailHash)
			})

			t.Run("sessions and index entries do not mix in listings", func(t *testing.T) {
				store := newStore(t)

				require.NoError(t, store.SaveSession(ctx, testutil.TestSession("sess_1")))
				require.NoError(t, store.SetEmailIndex(ctx, &models.EmailIndexEntry{EmailHash: "cccccccccccccccc", SessionID: "sess_1", Plan: models.PlanBasic, CreatedAt: created}))

				sessions, err := store.ListSessions(ctx)
				require.NoError(t, err)
				assert.Len(t, sessions, 1)

				entries, err := store.ListEmailIndexes(ctx)
				require.NoError(t, err)
				assert.Len(t, entries, 1)
			})
		})
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects keys that escape the root", func(t *testing.T) {
		store, _ := testutil.NewTestFileStore(t)

		for _, id := range []string{"../escape", "a/b", "", ".."} {
			session := testutil.TestSession(id)
			assert.Error(t, store.SaveSession(ctx, session), id)
		}
	})

	t.Run("writes one file per session", func(t *testing.T) {
		store, dir := testutil.NewTestFileStore(t)

		require.NoError(t, store.SaveSession(ctx, testutil.TestSession("sess_file")))

		_, err := os.Stat(filepath.Join(dir, "sess_file.json"))
		assert.NoError(t, err)
		assert.Equal(t, dir, store.Root())
	})

	t.Run("skips corrupted session files", func(t *testing.T) {
		store, dir := testutil.NewTestFileStore(t)

		require.NoError(t, store.SaveSession(ctx, testutil.TestSession("sess_ok")))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "sess_bad.json"), []byte("{not json"), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

		sessions, err := store.ListSessions(ctx)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "sess_ok", sessions[0].SessionID)
	})

	t.Run("returns corrupted index files as bare hashes", func(t *testing.T) {
		store, dir := testutil.NewTestFileStore(t)

		require.NoError(t, os.MkdirAll(filepath.Join(dir, "email-index"), 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "email-index", "dddddddddddddddd.json"), []byte("garbage"), 0o600))

		entries, err := store.ListEmailIndexes(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "dddddddddddddddd", entries[0].EmailHash)
		assert.Empty(t, entries[0].SessionID)
	})

	t.Run("ping on a fresh root", func(t *testing.T) {
		store, _ := testutil.NewTestFileStore(t)
		assert.NoError(t, store.Ping(ctx))
	})
}
