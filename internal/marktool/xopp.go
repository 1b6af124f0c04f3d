package marktool

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"
)

// A4 in PDF points. The scaffold only needs a canvas over the background
// pdf; Xournal++ sizes pages from the pdf itself once opened.
const (
	defaultPageWidth  = 595.28
	defaultPageHeight = 841.89
)

// GenerateScaffold writes a .xopp file over the single pdf of a submission,
// replacing the .pdf.todo placeholder in the feedback directory. Skipped
// when the submission has no or multiple pdfs, or when a scaffold exists.
func GenerateScaffold(submissionDir, feedbackDir string) error {
	pdfs, err := filepath.Glob(filepath.Join(submissionDir, "*.pdf"))
	if err != nil {
		return err
	}
	if len(pdfs) != 1 {
		logger.Info.Printf("Skipping xopp scaffold for %s: no or multiple pdf files", filepath.Base(submissionDir))
		return nil
	}
	todos, err := filepath.Glob(filepath.Join(feedbackDir, "*.pdf.todo"))
	if err != nil {
		return err
	}
	if len(todos) != 1 {
		return fmt.Errorf("feedback dir %q: expected exactly one .pdf.todo placeholder, found %d", feedbackDir, len(todos))
	}
	xoppPath := strings.TrimSuffix(todos[0], ".pdf.todo") + ".xopp"
	if _, err := os.Stat(xoppPath); err == nil {
		logger.Info.Printf("Skipping xopp scaffold for %s: scaffold exists", filepath.Base(submissionDir))
		return nil
	}

	pdfPath, err := filepath.Abs(pdfs[0])
	if err != nil {
		return err
	}
	pages, err := countPDFPages(pdfPath)
	if err != nil || pages < 1 {
		pages = 1
	}

	var buf bytes.Buffer
	buf.WriteString("<?xml version=\"1.0\" standalone=\"no\"?>\n")
	buf.WriteString("<xournal creator=\"semla\" fileversion=\"4\">\n")
	buf.WriteString("<title>Xournal++ document</title>\n")
	for i := 1; i <= pages; i++ {
		fmt.Fprintf(&buf, "<page width=\"%.2f\" height=\"%.2f\">\n", defaultPageWidth, defaultPageHeight)
		if i == 1 {
			fmt.Fprintf(&buf, "<background type=\"pdf\" domain=\"absolute\" filename=\"%s\" pageno=\"%d\"/>\n", pdfPath, i)
		} else {
			fmt.Fprintf(&buf, "<background type=\"pdf\" pageno=\"%d\"/>\n", i)
		}
		buf.WriteString("<layer/>\n</page>\n")
	}
	buf.WriteString("</xournal>\n")

	if err := os.WriteFile(xoppPath, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Remove(todos[0])
}

// ExportScaffolds renders every .xopp file in the feedback directory back to
// pdf via xournalpp, so collect picks up the annotated version.
func ExportScaffolds(feedbackDir string) error {
	xopps, err := filepath.Glob(filepath.Join(feedbackDir, "*.xopp"))
	if err != nil {
		return err
	}
	for _, xopp := range xopps {
		dest := strings.TrimSuffix(xopp, ".xopp") + ".pdf"
		cmd := exec.Command("xournalpp", "-p", dest, xopp)
		if out, err := cmd.CombinedOutput(); err != nil {
			if len(out) > 0 {
				logger.Error.Printf("xournalpp output:\n%s", string(out))
			}
			return fmt.Errorf("exporting %q to pdf: %w", xopp, err)
		}
	}
	return nil
}

// countPDFPages scans for page objects. Good enough for scaffolding; on
// exotic pdfs the scaffold just starts with fewer pages.
func countPDFPages(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	count := bytes.Count(data, []byte("/Type /Page")) - bytes.Count(data, []byte("/Type /Pages"))
	if count < 1 {
		count = bytes.Count(data, []byte("/Type/Page")) - bytes.Count(data, []byte("/Type/Pages"))
	}
	return count, nil
}
