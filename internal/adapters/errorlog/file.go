// Package errorlog écrit l'artefact opérateur des échecs d'un run (error_world.txt).
package errorlog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
)

// File ajoute, pour chaque run en échec partiel, un en-tête "# ..." puis une ligne "<url> - <reason>" par échec.
type File struct {
	path string
}

func New(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string { return f.path }

func (f *File) Append(ctx context.Context, report domain.BatchReport) error {
	if len(report.Failures) == 0 {
		return nil
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(fh)
	fmt.Fprintf(w, "# %s - %d failed of %d%s\n", report.StartedAt.UTC().Format(time.RFC3339), report.Failed, report.Total, suffix(report))
	for _, fe := range report.Failures {
		fmt.Fprintf(w, "%s - %s\n", fe.URL, oneLine(fe.Reason))
	}
	if err := w.Flush(); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}

func suffix(r domain.BatchReport) string {
	switch {
	case r.Aborted:
		return " (aborted)"
	case r.Canceled:
		return " (canceled)"
	default:
		return ""
	}
}

// oneLine garantit une entrée par ligne.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
