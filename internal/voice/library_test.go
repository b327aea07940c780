package voice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"belltower/internal/storage"
	logx "belltower/pkg/logx"
)

func openTestStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "belltower.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func writeSource(t *testing.T, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestImportRegistersContentAddressedAsset(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	dir := t.TempDir()
	lib := NewLibrary(dir, st, logx.Nop())

	src := writeSource(t, "adhan.mp3", []byte("not really audio"))
	v, err := lib.Import(context.Background(), "adhan", src)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if v.ID == "" || v.Name != "adhan" || v.SHA256 == "" {
		t.Fatalf("voice not populated: %+v", v)
	}
	if filepath.Dir(v.Path) != dir || filepath.Base(v.Path) != v.SHA256+".mp3" {
		t.Fatalf("asset path not content-addressed: %q", v.Path)
	}
	if _, err := os.Stat(v.Path); err != nil {
		t.Fatalf("asset missing on disk: %v", err)
	}

	path, err := lib.Resolve(context.Background(), v.ID)
	if err != nil || path != v.Path {
		t.Fatalf("Resolve = (%q, %v), want %q", path, err, v.Path)
	}
}

func TestImportIdenticalBytesDedups(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	lib := NewLibrary(t.TempDir(), st, logx.Nop())

	a := writeSource(t, "one.mp3", []byte("same bytes"))
	b := writeSource(t, "two.mp3", []byte("same bytes"))

	first, err := lib.Import(context.Background(), "first", a)
	if err != nil {
		t.Fatalf("first Import: %v", err)
	}
	second, err := lib.Import(context.Background(), "second", b)
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate content re-registered: %s vs %s", second.ID, first.ID)
	}

	voices, err := st.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 {
		t.Fatalf("voices = %d, want 1", len(voices))
	}
}

func TestRemoveDeletesAssetAndRegistration(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	lib := NewLibrary(t.TempDir(), st, logx.Nop())

	src := writeSource(t, "bell.wav", []byte("ding"))
	v, err := lib.Import(context.Background(), "bell", src)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if err := lib.Remove(context.Background(), v.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(v.Path); !os.IsNotExist(err) {
		t.Fatalf("asset still on disk after Remove: %v", err)
	}
	if _, err := st.GetVoice(context.Background(), v.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetVoice err = %v, want ErrNotFound", err)
	}
}
