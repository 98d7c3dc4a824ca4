// Package model acquires and verifies the Chatterbox Turbo ONNX artifacts
// from HuggingFace. The download set is derived from the quant variant: the
// four graphs the engine loads, under onnx/ with the variant's filename
// suffix, plus tokenizer.json.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/langfod/chatterbox-onnx/internal/chatterbox"
)

// Repo is the HuggingFace repository the ONNX exports live in.
const Repo = "ResembleAI/chatterbox-turbo-ONNX"

// pinnedRevision is the snapshot every file is fetched from.
const pinnedRevision = "main"

// lockFileName records resolved checksums next to the downloaded files.
const lockFileName = "download-manifest.lock.json"

// ErrAccessDenied marks a 401/403 from the hub (gated repo, missing token).
var ErrAccessDenied = errors.New("access denied")

// ModelFile is one artifact of a variant's download set.
type ModelFile struct {
	Filename string `json:"filename"`
	Revision string `json:"revision"`
	// SHA256 may be empty; the checksum is then resolved from hub metadata
	// at download time and persisted into the local lock manifest.
	SHA256 string `json:"sha256"`
}

// VariantFiles returns the download set for a quant variant. The graph list
// and filename suffixes are the same ones the engine uses to load the
// bundle, so the set a variant downloads is exactly the set LoadModels will
// look for.
func VariantFiles(variant string) ([]ModelFile, error) {
	v, err := chatterbox.ParseQuantVariant(variant)
	if err != nil {
		return nil, err
	}

	files := make([]ModelFile, 0, len(chatterbox.ModelNames)+1)
	for _, name := range chatterbox.ModelNames {
		files = append(files, ModelFile{
			Filename: path.Join("onnx", v.ModelFilename(name)),
			Revision: pinnedRevision,
		})
	}
	files = append(files, ModelFile{Filename: "tokenizer.json", Revision: pinnedRevision})

	return files, nil
}

type DownloadOptions struct {
	Variant string
	OutDir  string
	HFToken string
	Stdout  io.Writer
	Stderr  io.Writer
}

type lockFile struct {
	Repo      string               `json:"repo"`
	Generated string               `json:"generated"`
	Files     map[string]lockEntry `json:"files"`
}

type lockEntry struct {
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
}

// Download fetches the variant's files into OutDir, verifying each against
// its SHA-256 (pinned, locked, or resolved from hub metadata). Files whose
// local copy already matches are skipped, so an interrupted download resumes
// where it stopped.
func Download(opts DownloadOptions) error {
	if opts.OutDir == "" {
		return fmt.Errorf("out dir is required")
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	files, err := VariantFiles(opts.Variant)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, lockFileName)
	lock := loadLock(lockPath)
	lock.Repo = Repo
	lock.Generated = time.Now().UTC().Format(time.RFC3339)

	f := &fetcher{client: &http.Client{}, repo: Repo, token: opts.HFToken}

	for _, mf := range files {
		want := strings.ToLower(mf.SHA256)
		if want == "" {
			if entry, ok := lock.Files[mf.Filename]; ok && entry.Revision == mf.Revision && looksLikeSHA256(entry.SHA256) {
				want = strings.ToLower(entry.SHA256)
			} else if want, err = f.remoteChecksum(mf); err != nil {
				return err
			}
		}

		dest := filepath.Join(opts.OutDir, filepath.FromSlash(mf.Filename))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create subdir for %s: %w", mf.Filename, err)
		}

		ok, err := localFileMatches(dest, want)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", mf.Filename)
			lock.Files[mf.Filename] = lockEntry{Revision: mf.Revision, SHA256: want}
			continue
		}

		fmt.Fprintf(opts.Stdout, "fetch %s@%s\n", mf.Filename, mf.Revision)
		got, err := f.fetch(mf, dest, opts.Stdout)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("%s: checksum mismatch: want %s, got %s", mf.Filename, want, got)
		}
		fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s)\n", mf.Filename, got)
		lock.Files[mf.Filename] = lockEntry{Revision: mf.Revision, SHA256: want}
	}

	if err := saveLock(lockPath, lock); err != nil {
		return err
	}
	fmt.Fprintf(opts.Stdout, "wrote lock manifest: %s\n", lockPath)

	return nil
}

// fetcher issues authenticated requests against one hub repository.
type fetcher struct {
	client *http.Client
	repo   string
	token  string
}

func (f *fetcher) url(mf ModelFile) string {
	return fmt.Sprintf("https://huggingface.co/%s/resolve/%s/%s", f.repo, mf.Revision, mf.Filename)
}

func (f *fetcher) do(method string, mf ModelFile) (*http.Response, error) {
	req, err := http.NewRequest(method, f.url(mf), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request for %s: %w", method, mf.Filename, err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, mf.Filename, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, fmt.Errorf("%w for %s; provide HF_TOKEN or --hf-token", ErrAccessDenied, f.repo)
	}

	return resp, nil
}

// remoteChecksum resolves a file's SHA-256 from the hub's HEAD metadata. For
// LFS-backed files the linked etag carries the content hash.
func (f *fetcher) remoteChecksum(mf ModelFile) (string, error) {
	resp, err := f.do(http.MethodHead, mf)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return "", fmt.Errorf("metadata request for %s: %s", mf.Filename, resp.Status)
	}

	for _, header := range []string{"X-Linked-Etag", "X-Repo-Commit", "Etag"} {
		if v := trimETag(resp.Header.Get(header)); looksLikeSHA256(v) {
			return strings.ToLower(v), nil
		}
	}

	return "", fmt.Errorf("no sha256 metadata for %s; pin the checksum instead", mf.Filename)
}

// fetch streams one file to dest via a temp file, hashing as it goes, and
// returns the SHA-256 of what was written.
func (f *fetcher) fetch(mf ModelFile, dest string, stdout io.Writer) (string, error) {
	resp, err := f.do(http.MethodGet, mf)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download of %s: %s", mf.Filename, resp.Status)
	}

	tmp := dest + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", tmp, err)
	}
	cleanup := func() {
		_ = out.Close()
		_ = os.Remove(tmp)
	}

	h := sha256.New()
	pw := &progressWriter{name: mf.Filename, total: resp.ContentLength, out: stdout}
	if _, err := io.Copy(io.MultiWriter(out, h, pw), resp.Body); err != nil {
		cleanup()
		return "", fmt.Errorf("stream %s: %w", mf.Filename, err)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move %s into place: %w", mf.Filename, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// progressWriter prints a byte counter at most every 700 ms.
type progressWriter struct {
	name    string
	total   int64
	written int64
	last    time.Time
	out     io.Writer
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if time.Since(p.last) > 700*time.Millisecond {
		if p.total > 0 {
			fmt.Fprintf(p.out, "  %s: %.1f%% (%d/%d bytes)\n", p.name, float64(p.written)*100/float64(p.total), p.written, p.total)
		} else {
			fmt.Fprintf(p.out, "  %s: %d bytes\n", p.name, p.written)
		}
		p.last = time.Now()
	}
	return len(b), nil
}

var sha256HexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

func looksLikeSHA256(v string) bool {
	return sha256HexPattern.MatchString(v)
}

// trimETag strips quotes and the weak-validator prefix from an ETag value.
func trimETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, `"`)
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}

// localFileMatches reports whether dest exists with the expected SHA-256.
func localFileMatches(dest, want string) (bool, error) {
	fi, err := os.Stat(dest)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", dest, err)
	}
	if fi.IsDir() {
		return false, fmt.Errorf("%s is a directory, expected a file", dest)
	}

	got, err := sha256OfFile(dest)
	if err != nil {
		return false, err
	}

	return got == want, nil
}

func sha256OfFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", p, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// loadLock reads the lock manifest, returning an empty one when the file is
// absent or unreadable.
func loadLock(p string) lockFile {
	lock := lockFile{Files: map[string]lockEntry{}}

	b, err := os.ReadFile(p)
	if err != nil {
		return lock
	}
	var parsed lockFile
	if err := json.Unmarshal(b, &parsed); err != nil {
		return lock
	}
	if parsed.Files == nil {
		parsed.Files = map[string]lockEntry{}
	}

	return parsed
}

func saveLock(p string, lock lockFile) error {
	b, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock manifest: %w", err)
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return fmt.Errorf("write lock manifest: %w", err)
	}

	return nil
}
