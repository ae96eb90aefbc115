// Package archive stores completed sessions as zstd-compressed JSON blobs on
// the local filesystem, one file per session under a per-player directory.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/playperu/stampquest/internal/stampquest"
)

const ext = ".json.zst"

// FileStore implements stampquest.Archiver.
type FileStore struct {
	dir string
}

var _ stampquest.Archiver = (*FileStore)(nil)

// New returns a FileStore rooted at dir, creating it if needed.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Archive writes s atomically. Archiving the same session twice overwrites
// the earlier blob.
func (a *FileStore) Archive(ctx context.Context, s *stampquest.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validName(s.PlayerID) || !validName(s.ID) {
		return fmt.Errorf("archiving session %q: invalid identifier", s.ID)
	}

	playerDir := filepath.Join(a.dir, s.PlayerID)
	if err := os.MkdirAll(playerDir, 0o755); err != nil {
		return fmt.Errorf("creating player dir: %w", err)
	}

	tmp, err := os.CreateTemp(playerDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeBlob(tmp, s); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session %s: %w", s.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, filepath.Join(playerDir, s.ID+ext)); err != nil {
		return fmt.Errorf("publishing session %s: %w", s.ID, err)
	}
	return nil
}

func writeBlob(f *os.File, s *stampquest.Session) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)
	if err := json.NewEncoder(bw).Encode(s); err != nil {
		enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// List returns the player's archived sessions, newest first. A player with
// nothing archived gets an empty slice.
func (a *FileStore) List(ctx context.Context, playerID string) ([]stampquest.ArchiveEntry, error) {
	if !validName(playerID) {
		return []stampquest.ArchiveEntry{}, nil
	}

	dirEntries, err := os.ReadDir(filepath.Join(a.dir, playerID))
	if errors.Is(err, fs.ErrNotExist) {
		return []stampquest.ArchiveEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}

	type dated struct {
		entry stampquest.ArchiveEntry
		mod   time.Time
	}
	var found []dated
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		found = append(found, dated{
			entry: stampquest.ArchiveEntry{
				SessionID:  strings.TrimSuffix(name, ext),
				ArchivedAt: info.ModTime().UTC().Format(time.RFC3339),
				SizeBytes:  info.Size(),
			},
			mod: info.ModTime(),
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].mod.Equal(found[j].mod) {
			return found[i].entry.SessionID < found[j].entry.SessionID
		}
		return found[i].mod.After(found[j].mod)
	})

	out := make([]stampquest.ArchiveEntry, len(found))
	for i, d := range found {
		out[i] = d.entry
	}
	return out, nil
}

// Load reads one archived session. Unknown ids return stampquest.ErrNotFound.
func (a *FileStore) Load(ctx context.Context, playerID, sessionID string) (*stampquest.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validName(playerID) || !validName(sessionID) {
		return nil, stampquest.ErrNotFound
	}

	f, err := os.Open(filepath.Join(a.dir, playerID, sessionID+ext))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, stampquest.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening archived session: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var s stampquest.Session
	if err := json.NewDecoder(bufio.NewReader(dec)).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding archived session %s: %w", sessionID, err)
	}
	return &s, nil
}

// validName rejects anything that could escape the archive directory.
func validName(s string) bool {
	if s == "" || s == "." || s == ".." || strings.HasPrefix(s, ".") {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}
