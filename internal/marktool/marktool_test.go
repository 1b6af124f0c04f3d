package marktool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/semla/internal/config"
)

func toolWithCommand(t *testing.T, command []string) *Tool {
	t.Helper()
	cfg := &config.Individual{}
	cfg.Marking.Command = command
	tool, err := New(cfg)
	require.NoError(t, err)
	return tool
}

func TestArgsSingleFilePlaceholder(t *testing.T) {
	tool := toolWithCommand(t, []string{"xournalpp", config.PlaceholderXopp})

	args, err := tool.Args([]string{"feedback/sheet_1.xopp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"xournalpp", "feedback/sheet_1.xopp"}, args)

	_, err = tool.Args([]string{"a.xopp", "b.xopp"})
	assert.ErrorContains(t, err, "one file per run")
}

func TestArgsPlaceholderInsideArgument(t *testing.T) {
	tool := toolWithCommand(t, []string{"annotate", "--input=" + config.PlaceholderPDF, "--fullscreen"})

	args, err := tool.Args([]string{"x.pdf"})
	require.NoError(t, err)
	assert.Equal(t, []string{"annotate", "--input=x.pdf", "--fullscreen"}, args)
}

func TestArgsSplicesAllPDFs(t *testing.T) {
	tool := toolWithCommand(t, []string{"code", "-n", config.PlaceholderAllPDFs})
	assert.True(t, tool.BatchesAllFiles())

	args, err := tool.Args([]string{"a.pdf", "b.pdf"})
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "-n", "a.pdf", "b.pdf"}, args)
}

func TestSuffixFollowsPlaceholder(t *testing.T) {
	assert.Equal(t, ".xopp", toolWithCommand(t, []string{"xournalpp", config.PlaceholderXopp}).Suffix())
	assert.Equal(t, ".pdf", toolWithCommand(t, []string{"view", config.PlaceholderPDF}).Suffix())
	assert.Equal(t, ".pdf", toolWithCommand(t, []string{"view", config.PlaceholderAllPDFs}).Suffix())
}

func TestGenerateScaffold(t *testing.T) {
	subDir := t.TempDir()
	feedbackDir := filepath.Join(subDir, "feedback")
	require.NoError(t, os.MkdirAll(feedbackDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "solution.pdf"), []byte("%PDF-1.4\n/Type /Page\n"), 0o644))
	todo := filepath.Join(feedbackDir, "feedback_sheet_1.pdf.todo")
	require.NoError(t, os.WriteFile(todo, nil, 0o644))

	require.NoError(t, GenerateScaffold(subDir, feedbackDir))

	xopp := filepath.Join(feedbackDir, "feedback_sheet_1.xopp")
	assert.FileExists(t, xopp)
	assert.NoFileExists(t, todo)

	data, err := os.ReadFile(xopp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `background type="pdf"`)
	assert.Contains(t, string(data), filepath.Join(subDir, "solution.pdf"))
}

func TestGenerateScaffoldSkipsMultiplePDFs(t *testing.T) {
	subDir := t.TempDir()
	feedbackDir := filepath.Join(subDir, "feedback")
	require.NoError(t, os.MkdirAll(feedbackDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "a.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "b.pdf"), []byte("%PDF"), 0o644))
	todo := filepath.Join(feedbackDir, "feedback_sheet_1.pdf.todo")
	require.NoError(t, os.WriteFile(todo, nil, 0o644))

	require.NoError(t, GenerateScaffold(subDir, feedbackDir))
	assert.FileExists(t, todo)
}

func TestFilesToMark(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sheet_1.pdf", "sheet_1.xopp", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	tool := toolWithCommand(t, []string{"view", config.PlaceholderPDF})
	files, err := tool.FilesToMark(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "sheet_1.pdf")}, files)
}
