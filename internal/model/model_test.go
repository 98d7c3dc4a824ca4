package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVariantFiles(t *testing.T) {
	for _, variant := range []string{"fp32", "q8", "q4", "q4f16"} {
		files, err := VariantFiles(variant)
		if err != nil {
			t.Fatalf("VariantFiles(%s): %v", variant, err)
		}
		// Four graphs plus tokenizer.json.
		if len(files) != 5 {
			t.Fatalf("%s file count = %d; want 5", variant, len(files))
		}
		for _, f := range files[:4] {
			if !strings.HasPrefix(f.Filename, "onnx/") || !strings.HasSuffix(f.Filename, ".onnx") {
				t.Errorf("unexpected graph filename %q", f.Filename)
			}
			if f.Revision != pinnedRevision {
				t.Errorf("%s revision = %q; want %q", f.Filename, f.Revision, pinnedRevision)
			}
		}
		if files[4].Filename != "tokenizer.json" {
			t.Errorf("last file = %q; want tokenizer.json", files[4].Filename)
		}
	}

	if _, err := VariantFiles("int8"); err == nil {
		t.Error("unknown variant accepted")
	}
}

func TestVariantFilesMatchEngineFilenames(t *testing.T) {
	// The download set carries the exact filenames LoadModels resolves.
	cases := []struct {
		variant string
		first   string
		third   string
	}{
		{"fp32", "onnx/speech_encoder.onnx", "onnx/language_model.onnx"},
		{"q8", "onnx/speech_encoder_quantized.onnx", "onnx/language_model_quantized.onnx"},
		{"q4", "onnx/speech_encoder_q4.onnx", "onnx/language_model_q4.onnx"},
		{"q4f16", "onnx/speech_encoder_q4f16.onnx", "onnx/language_model_q4f16.onnx"},
	}

	for _, tc := range cases {
		files, err := VariantFiles(tc.variant)
		if err != nil {
			t.Fatal(err)
		}
		if files[0].Filename != tc.first {
			t.Errorf("%s graph[0] = %q; want %q", tc.variant, files[0].Filename, tc.first)
		}
		if files[2].Filename != tc.third {
			t.Errorf("%s graph[2] = %q; want %q", tc.variant, files[2].Filename, tc.third)
		}
	}
}

func TestTrimETag(t *testing.T) {
	got := trimETag(`W/"58aa704a88faad35f22c34ea1cb55c4c5629de8b8e035c6e4936e2673dc07617"`)
	want := "58aa704a88faad35f22c34ea1cb55c4c5629de8b8e035c6e4936e2673dc07617"
	if got != want {
		t.Fatalf("trimETag = %q; want %q", got, want)
	}
	if !looksLikeSHA256(got) {
		t.Fatal("trimmed etag rejected as sha256")
	}
	if looksLikeSHA256("nope") {
		t.Fatal("accepted invalid sha256")
	}
}

func TestLocalFileMatches(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "x.bin")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ok, err := localFileMatches(p, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	if err != nil {
		t.Fatalf("localFileMatches error: %v", err)
	}
	if !ok {
		t.Fatal("expected checksum match")
	}

	ok, err = localFileMatches(p, strings.Repeat("0", 64))
	if err != nil {
		t.Fatalf("localFileMatches error: %v", err)
	}
	if ok {
		t.Fatal("wrong checksum matched")
	}

	ok, err = localFileMatches(filepath.Join(tmp, "absent"), strings.Repeat("0", 64))
	if err != nil || ok {
		t.Fatalf("absent file: ok=%v err=%v; want false, nil", ok, err)
	}

	if _, err := localFileMatches(tmp, strings.Repeat("0", 64)); err == nil {
		t.Fatal("directory accepted as file")
	}
}

func TestLockRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), lockFileName)

	lock := lockFile{
		Repo:      Repo,
		Generated: "2026-01-01T00:00:00Z",
		Files: map[string]lockEntry{
			"onnx/speech_encoder_q4.onnx": {Revision: pinnedRevision, SHA256: strings.Repeat("a", 64)},
		},
	}
	if err := saveLock(p, lock); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := loadLock(p)
	if got.Repo != lock.Repo {
		t.Errorf("repo = %q; want %q", got.Repo, lock.Repo)
	}
	entry, ok := got.Files["onnx/speech_encoder_q4.onnx"]
	if !ok || entry.SHA256 != strings.Repeat("a", 64) {
		t.Errorf("entry = %+v", entry)
	}

	// Absent or corrupt lock files yield an empty manifest, not an error.
	empty := loadLock(filepath.Join(t.TempDir(), "missing.json"))
	if len(empty.Files) != 0 {
		t.Error("missing lock produced entries")
	}
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()

	content := []byte("model bytes")
	if err := os.MkdirAll(filepath.Join(dir, "onnx"), 0o755); err != nil {
		t.Fatal(err)
	}
	local := filepath.Join(dir, "onnx", "embed_tokens_q4.onnx")
	if err := os.WriteFile(local, content, 0o644); err != nil {
		t.Fatal(err)
	}
	sum, err := sha256OfFile(local)
	if err != nil {
		t.Fatal(err)
	}

	lock := lockFile{
		Repo: Repo,
		Files: map[string]lockEntry{
			"onnx/embed_tokens_q4.onnx": {Revision: pinnedRevision, SHA256: sum},
			"onnx/missing.onnx":         {Revision: pinnedRevision, SHA256: strings.Repeat("b", 64)},
		},
	}
	if err := saveLock(filepath.Join(dir, lockFileName), lock); err != nil {
		t.Fatal(err)
	}

	results, err := Verify(dir, nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d; want 2", len(results))
	}
	if AllOK(results) {
		t.Error("verification passed despite missing file")
	}

	okCount := 0
	for _, r := range results {
		if r.OK {
			okCount++
			if r.Filename != "onnx/embed_tokens_q4.onnx" {
				t.Errorf("unexpected OK file %q", r.Filename)
			}
		}
	}
	if okCount != 1 {
		t.Errorf("ok count = %d; want 1", okCount)
	}
}

func TestVerifyRequiresLock(t *testing.T) {
	if _, err := Verify(t.TempDir(), nil); err == nil {
		t.Fatal("verify without lock manifest succeeded")
	}
}
