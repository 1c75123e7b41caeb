package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ArtifactWriter persists the accumulated result list of a completed run as
// one text file per run, named by base name and timestamp. Writing is
// best-effort: a persistence failure never fails the job.
type ArtifactWriter struct {
	dir    string
	logger *zap.Logger
}

// NewArtifactWriter creates a writer rooted at dir.
func NewArtifactWriter(dir string, logger *zap.Logger) *ArtifactWriter {
	return &ArtifactWriter{dir: dir, logger: logger}
}

// Write saves the created links and returns the file path.
func (w *ArtifactWriter) Write(baseName string, results []GroupResult) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create links directory: %w", err)
	}

	now := time.Now()
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(now.UTC().Format("2006-01-02T15:04:05.000Z"))
	name := fmt.Sprintf("%s_%s.txt", strings.ReplaceAll(baseName, " ", "_"), stamp)
	path := filepath.Join(w.dir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "Group Links - %s\n", baseName)
	fmt.Fprintf(&b, "Created: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total Groups: %d\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.GroupName)
		fmt.Fprintf(&b, "   %s\n\n", r.Link)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write links file: %w", err)
	}

	w.logger.Info("links saved",
		zap.String("file", name),
		zap.Int("groups", len(results)))
	return path, nil
}
