package uploads

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSave_WritesFileUnderKindDir(t *testing.T) {
	dir := t.TempDir()
	st := NewStorage(dir)

	res, err := st.Save(KindProof, time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC), "收据.PNG", strings.NewReader("image-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(res.RelPath, "proofs/20260304/") {
		t.Fatalf("rel path = %q; want proofs/20260304/ prefix", res.RelPath)
	}
	if !strings.HasSuffix(res.RelPath, ".png") {
		t.Fatalf("rel path = %q; want .png suffix", res.RelPath)
	}
	if res.SizeBytes != int64(len("image-bytes")) {
		t.Fatalf("size = %d", res.SizeBytes)
	}

	full, err := st.Resolve(res.RelPath)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Fatalf("content = %q", data)
	}
	// 不应残留临时文件。
	entries, _ := os.ReadDir(filepath.Dir(full))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("tmp file left behind: %s", e.Name())
		}
	}
}

func TestSave_UnknownExtBecomesBin(t *testing.T) {
	st := NewStorage(t.TempDir())
	res, err := st.Save(KindTicket, time.Now(), "evil.exe", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(res.RelPath, ".bin") {
		t.Fatalf("rel path = %q; want .bin suffix", res.RelPath)
	}
}

func TestSave_RejectsUnknownKind(t *testing.T) {
	st := NewStorage(t.TempDir())
	if _, err := st.Save("banners", time.Now(), "a.png", strings.NewReader("x")); err == nil {
		t.Fatal("unknown kind should be rejected")
	}
}

func TestResolve_RejectsTraversal(t *testing.T) {
	st := NewStorage(t.TempDir())
	for _, rel := range []string{"", "..", "../etc/passwd", "/abs/path", "a\\b", "a\x00b"} {
		if _, err := st.Resolve(rel); err == nil {
			t.Fatalf("Resolve(%q) should fail", rel)
		}
	}
	if _, err := st.Resolve("proofs/20260101/ok.png"); err != nil {
		t.Fatalf("Resolve(valid): %v", err)
	}
}
