package jobstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/logger"
)

func TestCreateAndLookup(t *testing.T) {
	store := New(t.TempDir())

	p, err := store.Create()
	require.NoError(t, err)
	assert.True(t, ValidID(p.JobID))
	assert.DirExists(t, p.PreviewsDir)
	assert.Equal(t, filepath.Join(p.JobDir, "original.pdf"), p.OriginalPDF)

	// Nothing uploaded yet.
	_, err = store.Lookup(p.JobID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, store.Exists(p.JobID))

	require.NoError(t, os.WriteFile(p.OriginalPDF, []byte("%PDF-1.4"), 0o644))
	got, err := store.Lookup(p.JobID)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.True(t, store.Exists(p.JobID))
	assert.False(t, store.HasEdited(p.JobID))

	require.NoError(t, store.Remove(p.JobID))
	assert.NoDirExists(t, p.JobDir)
}

func TestPathsRejectsBadIDs(t *testing.T) {
	store := New(t.TempDir())
	bad := []string{
		"",
		"../../etc/passwd",
		"0123456789ABCDEF0123456789ABCDEF",
		"0123456789abcdef0123456789abcde",
		"0123456789abcdef0123456789abcdef0",
		"0123456789abcdef-123456789abcdef",
	}
	for _, id := range bad {
		_, err := store.Paths(id)
		assert.ErrorIs(t, err, ErrInvalidID, "id %q", id)
	}

	_, err := store.Paths("0123456789abcdef0123456789abcdef")
	assert.NoError(t, err)
}

func TestPreviewNames(t *testing.T) {
	assert.Equal(t, "page_0001.png", PreviewName(0))
	assert.Equal(t, "page_0012.png", PreviewName(11))
	assert.Equal(t, "jobs/abc/previews/page_0001.png", PreviewRel("abc", PreviewName(0)))
}

func TestMemoryLocker(t *testing.T) {
	locks := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := locks.Lock(ctx, "a")
	require.NoError(t, err)

	_, err = locks.Lock(ctx, "a")
	assert.ErrorIs(t, err, ErrLocked)

	other, err := locks.Lock(ctx, "b")
	require.NoError(t, err)
	other()

	unlock()
	unlock() // idempotent

	again, err := locks.Lock(ctx, "a")
	require.NoError(t, err)
	again()
}

func TestRedisLocker(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	locks, err := NewRedisLocker(url, 5*time.Second, nil)
	require.NoError(t, err)
	defer locks.Close()

	ctx := context.Background()
	id := NewJobID()

	unlock, err := locks.Lock(ctx, id)
	require.NoError(t, err)
	_, err = locks.Lock(ctx, id)
	assert.ErrorIs(t, err, ErrLocked)

	unlock()
	again, err := locks.Lock(ctx, id)
	require.NoError(t, err)
	again()
}

func TestRedisLockerLogsFailedRelease(t *testing.T) {
	// Nothing listens on port 1, so the release script fails.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Output: &buf, ServiceName: "test"})
	locks := newRedisLocker(client, time.Minute, log)

	unlock := locks.unlocker("job1", locks.prefix+"job1", "token")
	unlock()
	unlock()

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "failed to release job lock"))
	assert.Contains(t, out, `"job_id":"job1"`)
	assert.Contains(t, out, `"error":`)
}
