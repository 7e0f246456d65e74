package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/phrazzld/imagebatch/internal/session"
	"github.com/phrazzld/imagebatch/internal/task"
)

// ManifestName is the archive entry listing the exported prompts.
const ManifestName = "prompts.txt"

// slugLength bounds how many runes of a prompt appear in a file name.
const slugLength = 30

// ErrNoResults is returned when a session has no successful images to export.
var ErrNoResults = errors.New("no images found")

// Loader reads stored image bytes. imagestore.Store satisfies it.
type Loader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Export writes the session's image set to w as a zip archive: one PNG entry
// per successful prompt in prompt order, then the manifest. Every image is
// loaded before anything is written, so a failure leaves w untouched.
func Export(ctx context.Context, w io.Writer, snap session.Snapshot, images Loader) error {
	set := snap.ImageSet()
	if len(set) == 0 {
		return ErrNoResults
	}

	payloads := make([][]byte, len(set))
	for i, r := range set {
		data, err := images.Get(ctx, r.Image.Key)
		if err != nil {
			return fmt.Errorf("failed to load image for prompt %d: %w", r.PromptIndex, err)
		}
		payloads[i] = data
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for i, r := range set {
		f, err := zw.Create(FileName(i+1, r.Prompt))
		if err != nil {
			return fmt.Errorf("failed to add image entry: %w", err)
		}
		if _, err := f.Write(payloads[i]); err != nil {
			return fmt.Errorf("failed to write image entry: %w", err)
		}
	}

	f, err := zw.Create(ManifestName)
	if err != nil {
		return fmt.Errorf("failed to add manifest: %w", err)
	}
	if _, err := io.WriteString(f, Manifest(set)); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

// FileName returns the archive name of the k-th exported image (1-based).
func FileName(k int, prompt string) string {
	return fmt.Sprintf("%03d_%s.png", k, Slug(prompt))
}

// Slug keeps the first 30 runes of prompt, replacing everything outside
// [A-Za-z0-9] with an underscore.
func Slug(prompt string) string {
	var b strings.Builder
	n := 0
	for _, r := range prompt {
		if n == slugLength {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		n++
	}
	return b.String()
}

// Manifest numbers the prompts of set from 1, one per line, without a
// trailing newline.
func Manifest(set []task.Result) string {
	lines := make([]string, len(set))
	for i, r := range set {
		lines[i] = fmt.Sprintf("%d. %s", i+1, r.Prompt)
	}
	return strings.Join(lines, "\n")
}
