package reconstruct

import (
	"crypto/md5" //nolint:gosec
	"errors"
	"fmt"
	"path/filepath"

	"github.com/par2kit/par2kit/internal/sliceset"
	"github.com/spf13/afero"
)

var errVerificationMismatch = errors.New("reconstruct: full MD5 mismatch after repair")

// commitFile writes a repaired copy of f under dir: missing local slices
// come from reconstructed, every other slice is read from the existing
// file on disk by slice offset (ReadAt), not sequentially, since missing
// slices interleaved among present ones would otherwise desync a
// sequential reader. The new content is MD5-checked against f.FullMD5
// before the atomic temp-file-plus-rename commit; on mismatch the temp
// file is discarded and the original is left untouched (spec §4.5
// rewriting policy and failure semantics).
func (s *Service) commitFile(
	dir string,
	f *sliceset.FileEntry,
	sliceSize uint64,
	localMissing []sliceset.LocalSliceIndex,
	reconstructed *reconstructedData,
) error {
	missingSet := make(map[sliceset.LocalSliceIndex]struct{}, len(localMissing))
	for _, l := range localMissing {
		missingSet[l] = struct{}{}
	}

	path := filepath.Join(dir, f.Name)

	var original afero.File

	if exists, _ := afero.Exists(s.fsys, path); exists {
		o, err := s.fsys.Open(path)
		if err != nil {
			return fmt.Errorf("open original %s: %w", path, err)
		}
		defer o.Close()

		original = o
	}

	tmp, err := afero.TempFile(s.fsys, dir, ".par2kit-repair-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	hasher := md5.New() //nolint:gosec

	for i := range f.SliceCount {
		local := sliceset.LocalSliceIndex(i)
		actual := f.ActualSize(local, sliceSize)

		var chunk []byte

		if _, missing := missingSet[local]; missing {
			full := reconstructed.Get(f.LocalToGlobal(local))
			if full == nil {
				_ = tmp.Close()
				_ = s.fsys.Remove(tmpName)

				return fmt.Errorf("no reconstructed data for %s slice %d", f.Name, i)
			}

			chunk = full[:actual]
		} else {
			if original == nil {
				_ = tmp.Close()
				_ = s.fsys.Remove(tmpName)

				return fmt.Errorf("missing source for present slice %d of %s", i, f.Name)
			}

			buf := make([]byte, actual)
			if _, err := original.ReadAt(buf, int64(i)*int64(sliceSize)); err != nil {
				_ = tmp.Close()
				_ = s.fsys.Remove(tmpName)

				return fmt.Errorf("read present slice %d of %s: %w", i, f.Name, err)
			}

			chunk = buf
		}

		if _, err := tmp.Write(chunk); err != nil {
			_ = tmp.Close()
			_ = s.fsys.Remove(tmpName)

			return fmt.Errorf("write slice %d of %s: %w", i, f.Name, err)
		}

		hasher.Write(chunk)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = s.fsys.Remove(tmpName)

		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = s.fsys.Remove(tmpName)

		return fmt.Errorf("close temp file: %w", err)
	}

	var gotMD5 sliceset.MD5Digest
	hasher.Sum(gotMD5[:0])

	if gotMD5 != f.FullMD5 {
		_ = s.fsys.Remove(tmpName)

		return errVerificationMismatch
	}

	if err := s.fsys.Rename(tmpName, path); err != nil {
		_ = s.fsys.Remove(tmpName)

		return fmt.Errorf("rename %s into place: %w", path, err)
	}

	s.log.Info("repaired file", "op", "reconstruct", "file", f.Name)

	return nil
}
