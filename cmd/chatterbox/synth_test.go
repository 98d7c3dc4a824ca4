package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/langfod/chatterbox-onnx/internal/audio"
)

func TestReadSynthText(t *testing.T) {
	got, err := readSynthText("hello", nil)
	if err != nil || got != "hello" {
		t.Fatalf("readSynthText flag: %q, %v", got, err)
	}

	got, err = readSynthText("", strings.NewReader("  piped text \n"))
	if err != nil || got != "piped text" {
		t.Fatalf("readSynthText stdin: %q, %v", got, err)
	}

	if _, err := readSynthText("", strings.NewReader("   ")); err == nil {
		t.Fatal("empty stdin accepted")
	}
}

func TestReadTokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.tokens")
	content := "# pre-tokenized input\n15496, 11 995\n50256 50256\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := readTokenFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []int64{15496, 11, 995, 50256, 50256}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokens = %v; want %v", got, want)
		}
	}
}

func TestReadTokenFileRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.tokens")
	if err := os.WriteFile(empty, []byte("# nothing\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readTokenFile(empty); err == nil {
		t.Error("empty token file accepted")
	}

	bad := filepath.Join(dir, "bad.tokens")
	if err := os.WriteFile(bad, []byte("12 abc 34"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readTokenFile(bad); err == nil {
		t.Error("non-numeric token accepted")
	}

	if _, err := readTokenFile(filepath.Join(dir, "missing.tokens")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestWriteSynthOutput(t *testing.T) {
	samples := make([]float32, 2400)

	path := filepath.Join(t.TempDir(), "out.wav")
	if err := writeSynthOutput(path, samples, nil); err != nil {
		t.Fatalf("write file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if decoded, rate, err := audio.DecodeWAV(data); err != nil || rate != audio.OutputSampleRate || len(decoded) != len(samples) {
		t.Fatalf("output not a valid 24 kHz WAV: rate=%d len=%d err=%v", rate, len(decoded), err)
	}

	var buf bytes.Buffer
	if err := writeSynthOutput("-", samples, &buf); err != nil {
		t.Fatalf("write stdout: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("stdout output empty")
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, s := range []string{"debug", "info", "warn", "error", ""} {
		if _, err := parseLogLevel(s); err != nil {
			t.Errorf("parseLogLevel(%q) error: %v", s, err)
		}
	}
	if _, err := parseLogLevel("loud"); err == nil {
		t.Error("unknown level accepted")
	}
}

func TestSynthCmdChunkFlags(t *testing.T) {
	cmd := newSynthCmd()

	if cmd.Flags().Lookup("chunk") == nil {
		t.Error("--chunk flag not registered")
	}
	f := cmd.Flags().Lookup("max-chunk-chars")
	if f == nil {
		t.Fatal("--max-chunk-chars flag not registered")
	}
	if f.DefValue != "220" {
		t.Errorf("--max-chunk-chars default = %s; want 220", f.DefValue)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := map[string]bool{"synth": false, "voice": false, "model": false, "bench": false, "doctor": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	if root.PersistentFlags().Lookup("runtime-quant") == nil {
		t.Error("config flags not registered on root")
	}
}
