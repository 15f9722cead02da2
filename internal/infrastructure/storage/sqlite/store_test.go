package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formpilot/internal/application/port/output"
	"formpilot/internal/domain/entity"
	"formpilot/internal/infrastructure/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "test.db"), filepath.Join(dir, "test.key"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCredentialRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddCredential(ctx, "example.com", "alice", "s3cret-value", "staging"))

	cred, err := store.LookupCredential(ctx, "example.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "example.com", cred.Site)
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, "s3cret-value", cred.Secret)
	assert.Equal(t, "staging", cred.Notes)
	assert.NotNil(t, cred.LastUsed)
}

func TestCredentialStoredEncrypted(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	store, err := NewStore(dbPath, filepath.Join(dir, "test.key"), logger.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	secret := "plaintext-must-not-leak"
	require.NoError(t, store.AddCredential(ctx, "example.com", "alice", secret, ""))
	require.NoError(t, store.Close())

	raw, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), secret, "secret must not appear in the database file")
}

type warnRecorder struct {
	warnings []string
}

func (w *warnRecorder) Debug(msg string, args ...any) {}
func (w *warnRecorder) Info(msg string, args ...any)  {}
func (w *warnRecorder) Warn(msg string, args ...any)  { w.warnings = append(w.warnings, msg) }
func (w *warnRecorder) Error(msg string, args ...any) {}

func (w *warnRecorder) WithField(key string, value any) output.LoggerPort { return w }
func (w *warnRecorder) Close() error                                      { return nil }

func TestLookupCredential_TouchFailureIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	rec := &warnRecorder{}
	store, err := NewStore(filepath.Join(dir, "test.db"), filepath.Join(dir, "test.key"), rec)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	require.NoError(t, store.AddCredential(ctx, "example.com", "alice", "s3cret", ""))

	// Break only the last_used touch; the row itself stays readable.
	require.NoError(t, store.db.Exec("ALTER TABLE credentials DROP COLUMN last_used").Error)

	cred, err := store.LookupCredential(ctx, "example.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cred.Secret)
	assert.NotEmpty(t, rec.warnings, "failed touch must be logged")
}

func TestLookupCredential_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LookupCredential(context.Background(), "example.com", "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCredentials_OmitsSecrets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddCredential(ctx, "example.com", "alice", "one", ""))
	require.NoError(t, store.AddCredential(ctx, "example.com", "bob", "two", ""))
	require.NoError(t, store.AddCredential(ctx, "other.com", "carol", "three", ""))

	creds, err := store.ListCredentials(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, creds, 2)
	for _, c := range creds {
		assert.Empty(t, c.Secret)
	}
}

func TestDeleteCredential(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddCredential(ctx, "example.com", "alice", "one", ""))
	require.NoError(t, store.DeleteCredential(ctx, "example.com", "alice"))

	_, err := store.LookupCredential(ctx, "example.com", "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.DeleteCredential(ctx, "example.com", "alice"), ErrNotFound)
}

func TestKeyFilePersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	keyPath := filepath.Join(dir, "test.key")
	ctx := context.Background()

	store, err := NewStore(dbPath, keyPath, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, store.AddCredential(ctx, "example.com", "alice", "persisted", ""))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dbPath, keyPath, logger.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	cred, err := reopened.LookupCredential(ctx, "example.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "persisted", cred.Secret)
}

func TestAuditEntries_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, action := range []string{"first", "second", "third"} {
		require.NoError(t, store.AppendAudit(ctx, "example.com", action, entity.AuditSuccess, ""))
		time.Sleep(2 * time.Millisecond)
	}

	entries, err := store.AuditEntries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "third", entries[0].Action)
	assert.Equal(t, "first", entries[2].Action)
}

func TestAuditEntries_Limit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendAudit(ctx, "example.com", "run", entity.AuditError, "boom"))
	}

	entries, err := store.AuditEntries(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestTemplateSaveAndOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTemplate(ctx, "example.com", "signup", map[string]string{"email": "a@b.c"}))
	require.NoError(t, store.SaveTemplate(ctx, "example.com", "signup", map[string]string{"email": "x@y.z", "plan": "pro"}))

	tpl, err := store.Template(ctx, "example.com", "signup")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"email": "x@y.z", "plan": "pro"}, tpl.Values)

	_, err = store.Template(ctx, "example.com", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
