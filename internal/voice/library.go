// Package voice manages the on-disk audio library behind voice IDs.
//
// Imported files are stored content-addressed (SHA-256 of the bytes) under
// the media directory and registered in the store. The resolution engine
// only ever sees the opaque voice ID; playback is the invoker's problem.
package voice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"belltower/internal/storage"
	logx "belltower/pkg/logx"
)

type Library struct {
	dir   string
	store storage.Store
	log   logx.Logger
}

func NewLibrary(dir string, store storage.Store, log logx.Logger) *Library {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Library{dir: dir, store: store, log: log}
}

// Import copies the file at src into the media directory under its
// content hash and registers it. Importing identical bytes twice yields
// the already-registered voice instead of a duplicate.
func (l *Library) Import(ctx context.Context, name, src string) (storage.Voice, error) {
	if strings.TrimSpace(name) == "" {
		name = strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	}

	f, err := os.Open(src)
	if err != nil {
		return storage.Voice{}, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return storage.Voice{}, fmt.Errorf("create media dir: %w", err)
	}

	// Stream into a temp file while hashing, then rename into place under
	// the hash so a crash never leaves a half-written asset at its final name.
	tmp, err := os.CreateTemp(l.dir, ".import-*")
	if err != nil {
		return storage.Voice{}, fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), f)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return storage.Voice{}, fmt.Errorf("copy source: %w", err)
	}

	sum := hex.EncodeToString(h.Sum(nil))
	dst := filepath.Join(l.dir, sum+strings.ToLower(filepath.Ext(src)))

	if existing, ok, err := l.findByHash(ctx, sum); err != nil {
		return storage.Voice{}, err
	} else if ok {
		l.log.Debug("voice already imported",
			logx.String("name", name),
			logx.String("sha256", sum),
			logx.String("voice_id", existing.ID),
		)
		return existing, nil
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return storage.Voice{}, fmt.Errorf("place asset: %w", err)
	}

	v, err := l.store.CreateVoice(ctx, storage.Voice{
		Name:   name,
		Path:   dst,
		SHA256: sum,
		Size:   size,
	})
	if err != nil {
		// Keep the directory consistent with the registry.
		_ = os.Remove(dst)
		return storage.Voice{}, err
	}
	l.log.Info("voice imported",
		logx.String("name", v.Name),
		logx.String("voice_id", v.ID),
		logx.String("sha256", sum),
		logx.Int64("size", size),
	)
	return v, nil
}

// Resolve returns the on-disk path behind a voice ID, verifying the
// asset still exists.
func (l *Library) Resolve(ctx context.Context, id string) (string, error) {
	v, err := l.store.GetVoice(ctx, id)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(v.Path); err != nil {
		return "", fmt.Errorf("voice %s asset missing: %w", id, err)
	}
	return v.Path, nil
}

// Remove unregisters a voice and deletes its asset when no other
// registered voice shares the same content.
func (l *Library) Remove(ctx context.Context, id string) error {
	v, err := l.store.GetVoice(ctx, id)
	if err != nil {
		return err
	}
	if err := l.store.DeleteVoice(ctx, id); err != nil {
		return err
	}
	if _, shared, err := l.findByHash(ctx, v.SHA256); err != nil {
		return err
	} else if shared {
		return nil
	}
	if err := os.Remove(v.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove asset: %w", err)
	}
	l.log.Info("voice removed", logx.String("voice_id", id))
	return nil
}

func (l *Library) findByHash(ctx context.Context, sum string) (storage.Voice, bool, error) {
	voices, err := l.store.ListVoices(ctx)
	if err != nil {
		return storage.Voice{}, false, err
	}
	for _, v := range voices {
		if v.SHA256 == sum {
			return v, true, nil
		}
	}
	return storage.Voice{}, false, nil
}
