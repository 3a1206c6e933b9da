package verifier

import (
	"bufio"
	"context"
	"crypto/md5" //nolint:gosec
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"path/filepath"

	"github.com/par2kit/par2kit/internal/logging"
	"github.com/par2kit/par2kit/internal/schema"
	"github.com/par2kit/par2kit/internal/sliceset"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	// minBufferSize is the smallest streaming read buffer used regardless
	// of slice size, per spec §4.4 ("at least 1 MiB").
	minBufferSize = 1 << 20

	// maxBufferSize caps the streaming read buffer for very large slices.
	maxBufferSize = 128 << 20

	head16kSize = 16384
)

// Options configures a verification pass.
type Options struct {
	// ProbeRenames enables the head-16k MD5 rename-detection probe for
	// files not found under their expected name.
	ProbeRenames bool

	// Workers caps the number of files verified concurrently. Zero or less
	// means no limit: every file is verified in its own goroutine.
	Workers int
}

// Service verifies a RecoverySet's target files against a directory.
type Service struct {
	fsys afero.Fs
	log  *logging.Logger
}

func NewService(fsys afero.Fs, log *logging.Logger) *Service {
	return &Service{fsys: fsys, log: log}
}

// Verify validates every file in set that is expected to live under dir,
// dispatching one worker per file (bounded by opts.Workers).
func (s *Service) Verify(ctx context.Context, dir string, set *sliceset.RecoverySet, opts Options) (*Report, error) {
	report := &Report{Files: make(map[sliceset.FileID]*FileResult, len(set.Files))}

	results := make([]*FileResult, len(set.Files))

	group, groupCtx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		group.SetLimit(opts.Workers)
	}

	for i, f := range set.Files {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return fmt.Errorf("context error: %w", err)
			}

			results[i] = s.verifyFile(dir, f, set.SliceSize, opts.ProbeRenames)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	for i, f := range set.Files {
		report.Files[f.FileID] = results[i]
	}

	report.RepairPossible = report.TotalMissingSlices(set) <= len(set.RecoverySlices)

	s.log.Debug("verification pass complete",
		"op", "verify", "files", len(set.Files), "repairPossible", report.RepairPossible)

	return report, nil
}

func (s *Service) verifyFile(
	dir string,
	f *sliceset.FileEntry,
	sliceSize uint64,
	probeRenames bool,
) *FileResult {
	result := &FileResult{FileID: f.FileID}

	path := filepath.Join(dir, f.Name)

	exists, err := afero.Exists(s.fsys, path)
	if err != nil {
		result.Status = Missing
		result.Err = fmt.Errorf("%w: %w", schema.ErrFileIO, err)

		return result
	}

	if exists {
		if err := s.validateAgainst(path, f, sliceSize, result); err != nil {
			result.Err = fmt.Errorf("%w: %w", schema.ErrFileIO, err)

			return result
		}

		if result.Status == Present {
			return result
		}
	}

	if probeRenames {
		if found := s.probeRename(dir, f, sliceSize); found != nil {
			return found
		}
	}

	if !exists {
		result.Status = Missing

		return result
	}

	return result
}

// probeRename scans dir for a file whose head-16k MD5 matches f, confirming
// with the full MD5 before accepting it as a rename (spec §4.4).
func (s *Service) probeRename(dir string, f *sliceset.FileEntry, sliceSize uint64) *FileResult {
	entries, err := afero.ReadDir(s.fsys, dir)
	if err != nil {
		return nil
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == f.Name {
			continue
		}

		candidate := filepath.Join(dir, entry.Name())

		headOK, fullMD5, err := matchesHead16k(s.fsys, candidate, f.Head16kMD5)
		if err != nil || !headOK {
			continue
		}

		if fullMD5 != f.FullMD5 {
			continue
		}

		result := &FileResult{FileID: f.FileID, FoundAt: candidate}
		if err := s.validateAgainst(candidate, f, sliceSize, result); err != nil {
			continue
		}

		result.Status = Renamed

		return result
	}

	return nil
}

func matchesHead16k(fsys afero.Fs, path string, want sliceset.MD5Digest) (bool, sliceset.MD5Digest, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return false, sliceset.MD5Digest{}, fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	head := make([]byte, head16kSize)

	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, sliceset.MD5Digest{}, fmt.Errorf("read head: %w", err)
	}

	headSum := sliceset.MD5Digest(md5.Sum(head[:n])) //nolint:gosec
	if headSum != want {
		return false, sliceset.MD5Digest{}, nil
	}

	fullHasher := md5.New() //nolint:gosec
	fullHasher.Write(head[:n])

	if _, err := io.Copy(fullHasher, file); err != nil {
		return false, sliceset.MD5Digest{}, fmt.Errorf("read rest: %w", err)
	}

	var fullSum sliceset.MD5Digest
	fullHasher.Sum(fullSum[:0])

	return true, fullSum, nil
}

// validateAgainst streams path and checks every slice plus the whole-file
// and head-16k MD5s, per spec §4.4's two-checksum policy.
func (s *Service) validateAgainst(path string, f *sliceset.FileEntry, sliceSize uint64, result *FileResult) error {
	file, err := s.fsys.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	bufSize := streamBufferSize(sliceSize)
	reader := bufio.NewReaderSize(file, bufSize)

	fullHasher := md5.New() //nolint:gosec

	valid := make([]bool, f.SliceCount)
	slice := make([]byte, sliceSize)

	var headSum sliceset.MD5Digest
	var headCaptured bool
	var headBuf []byte

	for i := range f.SliceCount {
		actual := f.ActualSize(sliceset.LocalSliceIndex(i), sliceSize)

		clear(slice)

		n, err := io.ReadFull(reader, slice[:actual])
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read slice %d: %w", i, err)
		}

		fullHasher.Write(slice[:n])

		if !headCaptured {
			headBuf = append(headBuf, slice[:n]...)
			if uint64(len(headBuf)) >= head16kSize || i == f.SliceCount-1 {
				limit := min(len(headBuf), head16kSize)
				headSum = sliceset.MD5Digest(md5.Sum(headBuf[:limit])) //nolint:gosec
				headCaptured = true
			}
		}

		if uint64(n) != actual {
			continue // short read: slice cannot be valid, leave false
		}

		if uint64(len(f.SliceChecksums)) <= i {
			continue // no checksum recorded for this slice, cannot validate
		}

		want := f.SliceChecksums[i]
		if sliceset.CRC32(crc32.ChecksumIEEE(slice)) != want.CRC32 {
			continue
		}

		if sliceset.MD5Digest(md5.Sum(slice)) != want.MD5 { //nolint:gosec
			continue
		}

		valid[i] = true
	}

	var fullSum sliceset.MD5Digest
	fullHasher.Sum(fullSum[:0])

	result.ValidSlices = valid

	switch {
	case fullSum != f.FullMD5:
		result.Status = Corrupted
	case headCaptured && headSum != f.Head16kMD5:
		result.Status = Corrupted
	default:
		allValid := true
		for _, ok := range valid {
			if !ok {
				allValid = false

				break
			}
		}

		if allValid {
			result.Status = Present
		} else {
			result.Status = Corrupted
		}
	}

	return nil
}

func streamBufferSize(sliceSize uint64) int {
	size := sliceSize * 64 //nolint:mnd
	if size < minBufferSize {
		return minBufferSize
	}
	if size > maxBufferSize {
		return maxBufferSize
	}

	return int(size)
}
