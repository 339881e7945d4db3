package seed

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

var (
	// ErrSeedFetchFailed marks an unreachable or failed download. Non-fatal:
	// the process continues with an empty store.
	ErrSeedFetchFailed = errors.New("seed fetch failed")
	// ErrSeedCorrupt marks a download that could not be verified or
	// decompressed. Also non-fatal.
	ErrSeedCorrupt = errors.New("seed artifact corrupt")
)

// xzMagic is the fixed six-byte header of every xz stream.
var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// Kind describes how a downloaded artifact is materialized.
type Kind int

const (
	KindPlain Kind = iota // raw file, used as downloaded
	KindXZ                // single xz-compressed file
	KindTarXZ             // xz-compressed tarball extracted to a directory
)

// Artifact is one pre-populated data file (or directory) fetched exactly
// once to initialize a fresh volume. Presence at LocalPath is the sole
// idempotency signal: if it exists it is never re-fetched, on this run or
// any future restart.
type Artifact struct {
	Name      string
	LocalPath string // canonical path; a directory for KindTarXZ
	URL       string // empty means no seeding, start empty
	Kind      Kind
}

// DefaultArtifacts builds the standard artifact set for a data directory.
// Each remote URL comes from one environment variable; getenv is injectable
// for tests.
func DefaultArtifacts(dataDir string, getenv func(string) string) []Artifact {
	return []Artifact{
		{Name: "analytics-db", LocalPath: filepath.Join(dataDir, "discord_analytics.db"), URL: getenv("DB_SEED_URL"), Kind: KindXZ},
		{Name: "moderation-db", LocalPath: filepath.Join(dataDir, "moderation.db"), URL: getenv("MODERATION_DB_SEED_URL"), Kind: KindPlain},
		{Name: "vector-store", LocalPath: filepath.Join(dataDir, "chroma_db"), URL: getenv("CHROMA_SEED_URL"), Kind: KindTarXZ},
	}
}

// Loader downloads and materializes seed artifacts.
type Loader struct {
	Client *http.Client
}

func NewLoader() *Loader {
	return &Loader{Client: &http.Client{Timeout: 10 * time.Minute}}
}

// EnsureSeeded checks every artifact and fetches the absent ones. Failures
// are logged and collected, never fatal; the caller proceeds so a fresh or
// partially seeded volume stays usable. Racing calls from multiple processes
// are safe: materialization ends in an atomic rename, so at most one fully
// formed artifact ever appears at the canonical path and a losing racer
// simply finds it already present.
func (l *Loader) EnsureSeeded(ctx context.Context, artifacts []Artifact) error {
	var errs []error
	for _, a := range artifacts {
		if err := l.ensure(ctx, a); err != nil {
			slog.Warn("seeding failed, continuing with empty store", "artifact", a.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", a.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (l *Loader) ensure(ctx context.Context, a Artifact) error {
	if _, err := os.Stat(a.LocalPath); err == nil {
		return nil // present: seeded now and for all future restarts
	}
	if strings.TrimSpace(a.URL) == "" {
		slog.Info("no seed URL configured, starting empty", "artifact", a.Name)
		return nil
	}

	dir := filepath.Dir(a.LocalPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: %v", ErrSeedFetchFailed, err)
	}

	slog.Info("downloading seed artifact", "artifact", a.Name, "url", a.URL)
	download, size, err := l.download(ctx, a.URL, dir)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(download) }()
	slog.Info("seed artifact downloaded", "artifact", a.Name, "bytes", size)

	if a.Kind != KindPlain {
		if err := verifyXZHeader(download); err != nil {
			return err
		}
	}

	switch a.Kind {
	case KindPlain:
		// The download itself is the artifact; rename claims the canonical
		// path in one step.
		if err := os.Rename(download, a.LocalPath); err != nil {
			return fmt.Errorf("%w: %v", ErrSeedFetchFailed, err)
		}
	case KindXZ:
		if err := decompressTo(download, a.LocalPath); err != nil {
			return err
		}
	case KindTarXZ:
		if err := extractTo(download, a.LocalPath); err != nil {
			return err
		}
	}
	slog.Info("seed artifact ready", "artifact", a.Name, "path", a.LocalPath)
	return nil
}

// download streams the URL into a hidden temp file next to the destination
// and verifies a non-empty body.
func (l *Loader) download(ctx context.Context, url, dir string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrSeedFetchFailed, err)
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrSeedFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("%w: status %d", ErrSeedFetchFailed, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, ".seed-*.download")
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrSeedFetchFailed, err)
	}
	n, err := io.Copy(tmp, resp.Body)
	cerr := tmp.Close()
	if err != nil || cerr != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("%w: %v", ErrSeedFetchFailed, errors.Join(err, cerr))
	}
	if n == 0 {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("%w: empty download", ErrSeedFetchFailed)
	}
	return tmp.Name(), n, nil
}

func verifyXZHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}
	defer func() { _ = f.Close() }()
	header := make([]byte, len(xzMagic))
	if _, err := io.ReadFull(f, header); err != nil || !bytes.Equal(header, xzMagic) {
		return fmt.Errorf("%w: not an xz stream", ErrSeedCorrupt)
	}
	return nil
}

// decompressTo streams the xz file into a temp name and renames it into
// place, so a partially written artifact is never visible at dest.
func decompressTo(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}
	defer func() { _ = in.Close() }()
	xr, err := xz.NewReader(in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}

	out, err := os.CreateTemp(filepath.Dir(dest), ".seed-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}
	if _, err := io.Copy(out, xr); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}
	if err := os.Rename(out.Name(), dest); err != nil {
		_ = os.Remove(out.Name())
		return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}
	return nil
}

// extractTo unpacks an xz tarball into a temp directory and renames the
// extracted tree onto dest. Losing the rename race to another process means
// the artifact is already in place, which counts as success.
func extractTo(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}
	defer func() { _ = in.Close() }()
	xr, err := xz.NewReader(in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}

	parent := filepath.Dir(dest)
	tmpDir, err := os.MkdirTemp(parent, ".seed-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	if err := untar(tar.NewReader(xr), tmpDir); err != nil {
		return err
	}

	// Archives commonly wrap everything in a single top-level directory
	// (chroma_db/...). Promote it so dest is the tree itself.
	renameSrc := tmpDir
	if entries, err := os.ReadDir(tmpDir); err == nil && len(entries) == 1 && entries[0].IsDir() {
		renameSrc = filepath.Join(tmpDir, entries[0].Name())
	}
	if err := os.Rename(renameSrc, dest); err != nil {
		if _, statErr := os.Stat(dest); statErr == nil {
			return nil // a concurrent racer finished first
		}
		return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}
	return nil
}

func untar(tr *tar.Reader, destDir string) error {
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
		}
		name := filepath.Clean(header.Name)
		if name == "." || strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			continue
		}
		target := filepath.Join(destDir, name)
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
			}
			// #nosec G110 -- seeds come from the operator's own bucket
			if _, err := io.Copy(f, tr); err != nil {
				_ = f.Close()
				return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
			}
		default:
			// symlinks and specials are not expected in seed tarballs
		}
	}
}
