// Package archive wraps the zip plumbing the commands share: filtered
// extraction of LMS exports and deterministic creation of feedback archives.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IsJunkPath reports paths that must never travel with feedback, like the
// helper entries macOS sneaks into zips.
func IsJunkPath(path string) bool {
	return strings.Contains(path, "__MACOSX") || strings.Contains(path, ".DS_Store")
}

// IsHiddenName reports dotfiles that are probably not meant as feedback.
func IsHiddenName(name string) bool {
	return strings.HasPrefix(name, ".") || IsJunkPath(name)
}

// Extract unpacks a zip file into dest, skipping junk entries. Entry paths
// are sanitized against directory traversal.
func Extract(zipPath, dest string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening archive %q: %w", zipPath, err)
	}
	defer reader.Close()
	for _, file := range reader.File {
		if IsJunkPath(file.Name) {
			continue
		}
		if err := extractEntry(file, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(file *zip.File, dest string) error {
	target := filepath.Join(dest, filepath.Clean(file.Name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("archive entry %q escapes the destination directory", file.Name)
	}
	if file.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// ZipDir archives every file under dir, arc names relative to dir. Entries
// are written in sorted order with zeroed metadata, so archiving the same
// tree twice yields byte-identical output.
func ZipDir(dir, outPath string) error {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)

	pairs := make([][2]string, len(files))
	for i, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		pairs[i] = [2]string{filepath.ToSlash(rel), path}
	}
	return writeZip(outPath, pairs)
}

// ZipRelative archives the given files with arc names relative to baseDir,
// in sorted order.
func ZipRelative(outPath, baseDir string, files []string) error {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	pairs := make([][2]string, len(sorted))
	for i, path := range sorted {
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		pairs[i] = [2]string{filepath.ToSlash(rel), path}
	}
	return writeZip(outPath, pairs)
}

// ZipFiles archives the given files under their base names, sorted.
func ZipFiles(outPath string, files []string) error {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	pairs := make([][2]string, len(sorted))
	for i, path := range sorted {
		pairs[i] = [2]string{filepath.Base(path), path}
	}
	return writeZip(outPath, pairs)
}

func writeZip(outPath string, pairs [][2]string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	writer := zip.NewWriter(out)
	for _, pair := range pairs {
		// zero-time header keeps re-runs byte-identical
		entry, err := writer.CreateHeader(&zip.FileHeader{Name: pair[0], Method: zip.Deflate})
		if err != nil {
			out.Close()
			return err
		}
		src, err := os.Open(pair[1])
		if err != nil {
			out.Close()
			return err
		}
		if _, err := io.Copy(entry, src); err != nil {
			src.Close()
			out.Close()
			return err
		}
		src.Close()
	}
	if err := writer.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// MoveContents moves everything inside src into dst, then removes src.
func MoveContents(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())
		if err := os.Rename(from, to); err != nil {
			return err
		}
	}
	return os.Remove(src)
}
