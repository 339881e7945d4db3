package seed

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func xzCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func tarXZ(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "chroma_db/",
		Typeflag: tar.TypeDir,
		Mode:     0o755,
	}))
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     "chroma_db/" + name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return xzCompress(t, tarBuf.Bytes())
}

func serveBytes(t *testing.T, payload []byte, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEnsureSeededXZFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte("sqlite-payload")
	srv := serveBytes(t, xzCompress(t, body), nil)

	dest := filepath.Join(dir, "discord_analytics.db")
	err := NewLoader().EnsureSeeded(context.Background(), []Artifact{
		{Name: "analytics-db", LocalPath: dest, URL: srv.URL, Kind: KindXZ},
	})
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	// No leftover temp files.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestEnsureSeededPlainFile(t *testing.T) {
	dir := t.TempDir()
	srv := serveBytes(t, []byte("plain-db"), nil)
	dest := filepath.Join(dir, "moderation.db")
	err := NewLoader().EnsureSeeded(context.Background(), []Artifact{
		{Name: "moderation-db", LocalPath: dest, URL: srv.URL, Kind: KindPlain},
	})
	require.NoError(t, err)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("plain-db"), got)
}

func TestEnsureSeededTarXZDirectory(t *testing.T) {
	dir := t.TempDir()
	srv := serveBytes(t, tarXZ(t, map[string]string{
		"index.bin":          "vectors",
		"segments/seg0.data": "chunk",
	}), nil)

	dest := filepath.Join(dir, "chroma_db")
	err := NewLoader().EnsureSeeded(context.Background(), []Artifact{
		{Name: "vector-store", LocalPath: dest, URL: srv.URL, Kind: KindTarXZ},
	})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dest, "index.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("vectors"), got)
	got, err = os.ReadFile(filepath.Join(dest, "segments", "seg0.data"))
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk"), got)
}

func TestEnsureSeededIdempotent(t *testing.T) {
	dir := t.TempDir()
	var hits atomic.Int64
	srv := serveBytes(t, xzCompress(t, []byte("payload")), &hits)

	arts := []Artifact{{Name: "db", LocalPath: filepath.Join(dir, "a.db"), URL: srv.URL, Kind: KindXZ}}
	loader := NewLoader()
	require.NoError(t, loader.EnsureSeeded(context.Background(), arts))
	require.NoError(t, loader.EnsureSeeded(context.Background(), arts))
	assert.Equal(t, int64(1), hits.Load(), "present artifact must not be re-fetched")
}

func TestEnsureSeededNoURL(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "a.db")
	require.NoError(t, NewLoader().EnsureSeeded(context.Background(), []Artifact{
		{Name: "db", LocalPath: dest, Kind: KindXZ},
	}))
	_, err := os.Stat(dest)
	assert.True(t, os.IsNotExist(err), "no URL means start empty")
}

func TestEnsureSeededCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	srv := serveBytes(t, []byte("this is not xz"), nil)
	dest := filepath.Join(dir, "a.db")
	err := NewLoader().EnsureSeeded(context.Background(), []Artifact{
		{Name: "db", LocalPath: dest, URL: srv.URL, Kind: KindXZ},
	})
	require.ErrorIs(t, err, ErrSeedCorrupt)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "corrupt artifact must not land at the canonical path")
}

func TestEnsureSeededUnreachable(t *testing.T) {
	dir := t.TempDir()
	err := NewLoader().EnsureSeeded(context.Background(), []Artifact{
		{Name: "db", LocalPath: filepath.Join(dir, "a.db"), URL: "http://127.0.0.1:1/nope", Kind: KindXZ},
	})
	require.ErrorIs(t, err, ErrSeedFetchFailed)
}

func TestEnsureSeededEmptyBody(t *testing.T) {
	dir := t.TempDir()
	srv := serveBytes(t, nil, nil)
	err := NewLoader().EnsureSeeded(context.Background(), []Artifact{
		{Name: "db", LocalPath: filepath.Join(dir, "a.db"), URL: srv.URL, Kind: KindPlain},
	})
	require.ErrorIs(t, err, ErrSeedFetchFailed)
}

func TestEnsureSeededConcurrentRace(t *testing.T) {
	dir := t.TempDir()
	srv := serveBytes(t, tarXZ(t, map[string]string{"index.bin": "v"}), nil)
	dest := filepath.Join(dir, "chroma_db")
	art := []Artifact{{Name: "vector-store", LocalPath: dest, URL: srv.URL, Kind: KindTarXZ}}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = NewLoader().EnsureSeeded(context.Background(), art)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "index.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestDefaultArtifacts(t *testing.T) {
	getenv := func(k string) string {
		return map[string]string{
			"DB_SEED_URL":     "https://seeds.example/analytics.db.xz",
			"CHROMA_SEED_URL": "https://seeds.example/chroma.tar.xz",
		}[k]
	}
	arts := DefaultArtifacts("/data", getenv)
	require.Len(t, arts, 3)
	assert.Equal(t, "/data/discord_analytics.db", arts[0].LocalPath)
	assert.Equal(t, KindXZ, arts[0].Kind)
	assert.Equal(t, "https://seeds.example/analytics.db.xz", arts[0].URL)
	assert.Equal(t, "/data/moderation.db", arts[1].LocalPath)
	assert.Equal(t, KindPlain, arts[1].Kind)
	assert.Empty(t, arts[1].URL)
	assert.Equal(t, "/data/chroma_db", arts[2].LocalPath)
	assert.Equal(t, KindTarXZ, arts[2].Kind)
}
