// Package marktool launches the external annotation program over feedback
// files. Submissions are processed strictly in team-key order, one blocking
// process at a time, so an interrupted run resumes deterministically.
package marktool

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/config"
)

// Tool expands the configured command template and runs it.
type Tool struct {
	command     []string
	placeholder string
}

func New(cfg *config.Individual) (*Tool, error) {
	ph, err := cfg.MarkingPlaceholder()
	if err != nil {
		return nil, err
	}
	return &Tool{command: cfg.Marking.Command, placeholder: ph}, nil
}

// Suffix returns the feedback file suffix the tool operates on.
func (t *Tool) Suffix() string {
	if t.placeholder == config.PlaceholderXopp {
		return ".xopp"
	}
	return ".pdf"
}

// BatchesAllFiles reports whether the template takes every pdf in one
// invocation instead of one process per file.
func (t *Tool) BatchesAllFiles() bool {
	return t.placeholder == config.PlaceholderAllPDFs
}

// Args expands the template for the given files. {xopp_file} and {pdf_file}
// expect exactly one file; {all_pdf_files} splices the whole list in place
// of its argument.
func (t *Tool) Args(files []string) ([]string, error) {
	if !t.BatchesAllFiles() && len(files) != 1 {
		return nil, fmt.Errorf("marking command %v takes one file per run, got %d", t.command, len(files))
	}
	var args []string
	for _, arg := range t.command {
		switch {
		case arg == config.PlaceholderAllPDFs:
			args = append(args, files...)
		case strings.Contains(arg, t.placeholder):
			args = append(args, strings.ReplaceAll(arg, t.placeholder, files[0]))
		default:
			args = append(args, arg)
		}
	}
	return args, nil
}

// Run launches the expanded command and blocks until it exits.
func (t *Tool) Run(files []string) error {
	args, err := t.Args(files)
	if err != nil {
		return err
	}
	logger.Info.Printf("Running %v", args)
	cmd := exec.Command(args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			logger.Error.Printf("Marking command output:\n%s", string(out))
		}
		return fmt.Errorf("marking command %v failed: %w", args, err)
	}
	return nil
}

// FilesToMark globs the feedback directory for files with the tool's suffix.
func (t *Tool) FilesToMark(feedbackDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(feedbackDir, "*"+t.Suffix()))
	if err != nil {
		return nil, err
	}
	return matches, nil
}
