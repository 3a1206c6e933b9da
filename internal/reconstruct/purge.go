package reconstruct

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"

	"github.com/par2kit/par2kit/internal/codec"
	"github.com/par2kit/par2kit/internal/sliceset"
	"github.com/spf13/afero"
)

// numberedFilePattern matches a trailing numeric backup extension such as
// "foo.bin.1", adapted from the teacher's backup-purging convention.
var numberedFilePattern = regexp.MustCompile(`\.\d+$`)

// purge removes the index file, every sibling .par2 volume, and any
// numbered backup files left behind for files that now have a valid
// restored original, once the whole recovery set has repaired
// successfully (spec §4.5 "post-repair purge").
func (s *Service) purge(dir string, set *sliceset.RecoverySet, indexPath string) error {
	volumes, err := codec.Discover(s.fsys, indexPath)
	if err != nil {
		return fmt.Errorf("discover volumes for purge: %w", err)
	}

	for _, v := range volumes {
		if err := s.fsys.Remove(v); err != nil {
			s.log.Warn("failed to purge recovery volume (needs manual removal)", "path", v, "error", err)

			continue
		}

		s.log.Debug("purged recovery volume", "path", v)
	}

	backups, err := findNumberedBackups(s.fsys, dir)
	if err != nil {
		return fmt.Errorf("scan backups for purge: %w", err)
	}

	for _, b := range backups {
		valid, err := hasValidOriginal(s.fsys, b)
		if err != nil {
			s.log.Warn("failed to check for original file (not purging backup)", "path", b, "error", err)

			continue
		}

		if !valid {
			continue
		}

		if err := s.fsys.Remove(b); err != nil {
			s.log.Warn("failed to purge backup file (needs manual removal)", "path", b, "error", err)

			continue
		}

		s.log.Debug("purged backup file", "path", b)
	}

	return nil
}

func findNumberedBackups(fsys afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var backups []string

	for _, entry := range entries {
		if !entry.IsDir() && numberedFilePattern.MatchString(entry.Name()) {
			backups = append(backups, filepath.Join(dir, entry.Name()))
		}
	}

	return backups, nil
}

func hasValidOriginal(fsys afero.Fs, backupPath string) (bool, error) {
	originalPath := numberedFilePattern.ReplaceAllString(backupPath, "")
	if originalPath == backupPath {
		return false, nil
	}

	info, err := fsys.Stat(originalPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("stat: %w", err)
	}

	return info.Size() > 0, nil
}
