package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// MaxFileSize bounds the size of any archive or member this tool will touch.
const MaxFileSize = 100 * 1024 * 1024

// EnforceMaxFileSize returns an error when the file at path exceeds the
// configured size limit.
func EnforceMaxFileSize(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.Size() > MaxFileSize {
		return fmt.Errorf("%s (%.1fMB) exceeds %dMB limit",
			filepath.Base(path), float64(info.Size())/(1024*1024), MaxFileSize/(1024*1024))
	}

	return nil
}

// ExtractZip extracts zipPath into destDir, rejecting any member whose
// resolved path would escape destDir (zip-slip). All members are checked
// before anything is written - extraction is all-or-nothing.
func ExtractZip(zipPath string, destDir string) error {
	if err := EnforceMaxFileSize(zipPath); err != nil {
		return err
	}

	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", zipPath, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	destRoot, err := filepath.Abs(destDir)
	if err != nil {
		return err
	}

	for _, member := range reader.File {
		if err := checkMemberPath(member.Name, destRoot); err != nil {
			return err
		}
	}

	extracted := 0
	for _, member := range reader.File {
		if err := extractMember(member, destRoot, MaxFileSize); err != nil {
			return err
		}
		if !member.FileInfo().IsDir() {
			extracted++
		}
	}

	log.Info().Str("archive", filepath.Base(zipPath)).Int("files", extracted).Msg("Extracted archive")

	return nil
}

func checkMemberPath(name string, destRoot string) error {
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return fmt.Errorf("unsafe path in archive: %s", name)
	}

	resolved := filepath.Join(destRoot, filepath.FromSlash(name))
	if resolved != destRoot && !strings.HasPrefix(resolved, destRoot+string(os.PathSeparator)) {
		return fmt.Errorf("path escapes extraction directory: %s", name)
	}

	return nil
}

func extractMember(member *zip.File, destRoot string, maxSize int64) error {
	target := filepath.Join(destRoot, filepath.FromSlash(member.Name))

	if member.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	// The header's declared size can lie, so the copy below is capped too
	if member.UncompressedSize64 > uint64(maxSize) {
		return fmt.Errorf("%s (%.1fMB uncompressed) exceeds %dMB limit",
			member.Name, float64(member.UncompressedSize64)/(1024*1024), maxSize/(1024*1024))
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	source, err := member.Open()
	if err != nil {
		return fmt.Errorf("open member %s: %w", member.Name, err)
	}
	defer source.Close()

	dest, err := os.Create(target)
	if err != nil {
		return err
	}

	written, err := io.Copy(dest, io.LimitReader(source, maxSize+1))
	if err != nil {
		dest.Close()
		return fmt.Errorf("extract %s: %w", member.Name, err)
	}
	if written > maxSize {
		dest.Close()
		os.Remove(target)
		return fmt.Errorf("%s exceeds %dMB limit while decompressing", member.Name, maxSize/(1024*1024))
	}

	return dest.Close()
}
