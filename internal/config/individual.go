package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Placeholders the marking command template may carry. Exactly one of them
// must appear across the whole template.
const (
	PlaceholderXopp    = "{xopp_file}"
	PlaceholderPDF     = "{pdf_file}"
	PlaceholderAllPDFs = "{all_pdf_files}"
)

// Individual is the per-tutor config, never shared. TOML, strict fields.
type Individual struct {
	TutorName      string `toml:"tutor_name" validate:"required"`
	TutorEmail     string `toml:"tutor_email" validate:"required,email"`
	EmailSignature string `toml:"email_signature"`

	// Suffixes of feedback files that are working artifacts and must not be
	// collected into the archive sent to students.
	IgnoreFeedbackSuffix []string `toml:"ignore_feedback_suffix"`

	// UseXopp enables the Xournal++ scaffolding: init generates .xopp files
	// over single-pdf submissions and collect exports them back to pdf.
	UseXopp bool `toml:"use_xopp"`

	SMTP struct {
		Host string `toml:"host"`
		Port int    `toml:"port"`
		User string `toml:"user"`
	} `toml:"smtp"`

	Marking struct {
		// Command template, e.g. ["xournalpp", "{xopp_file}"].
		Command []string `toml:"command"`
	} `toml:"marking"`
}

// LoadIndividual reads and validates the tutor config.
func LoadIndividual(path string) (*Individual, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ValidationError{Path: path, Err: err}
	}
	var cfg Individual
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, &ValidationError{Path: path, Err: err}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ValidationError{Path: path, Err: err}
	}
	if len(cfg.Marking.Command) == 0 {
		cfg.Marking.Command = []string{"xournalpp", PlaceholderXopp}
	}
	if _, err := cfg.MarkingPlaceholder(); err != nil {
		return nil, &ValidationError{Path: path, Err: err}
	}
	return &cfg, nil
}

// MarkingPlaceholder returns the single placeholder used by the marking
// command template.
func (c *Individual) MarkingPlaceholder() (string, error) {
	joined := strings.Join(c.Marking.Command, " ")
	var found []string
	for _, ph := range []string{PlaceholderXopp, PlaceholderPDF, PlaceholderAllPDFs} {
		if strings.Contains(joined, ph) {
			found = append(found, ph)
		}
	}
	if len(found) != 1 {
		return "", fmt.Errorf("marking command must contain exactly one of %s, %s or %s",
			PlaceholderXopp, PlaceholderPDF, PlaceholderAllPDFs)
	}
	return found[0], nil
}
