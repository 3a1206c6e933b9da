package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/par2kit/par2kit/internal/gf16"
	"github.com/par2kit/par2kit/internal/logging"
	"github.com/par2kit/par2kit/internal/schema"
	"github.com/par2kit/par2kit/internal/sliceset"
	"github.com/par2kit/par2kit/internal/verifier"
	"github.com/spf13/afero"
)

var errInsufficientRecovery = errors.New("reconstruct: insufficient recovery slices")

// defaultChunkSize is the 64 KiB default chunk width for streaming
// reconstruction passes.
const defaultChunkSize = 64 * 1024

// Options configures a Reconstruct call.
type Options struct {
	// ChunkSize overrides the streaming chunk width. Zero selects the
	// default. Must be even (GF16 words are two bytes).
	ChunkSize int

	// Workers bounds how many chosen recovery rows are processed
	// concurrently within a chunk. Zero or less means no limit: every
	// chosen row gets its own goroutine.
	Workers int

	// Purge removes the index, sibling volumes, and stale numbered
	// backups once the whole set repairs successfully.
	Purge bool
}

// Service reconstructs missing data slices from recovery slices and
// commits repaired files.
type Service struct {
	fsys   afero.Fs
	log    *logging.Logger
	engine *gf16.Engine
}

func NewService(fsys afero.Fs, log *logging.Logger) *Service {
	return &Service{fsys: fsys, log: log, engine: gf16.DetectEngine()}
}

// Reconstruct repairs every missing or corrupted slice reported in report,
// using recovery slices in set, and commits repaired files under dir.
// indexPath is the named index file passed by the caller, used only to
// locate sibling volumes for a post-repair purge.
func (s *Service) Reconstruct(
	ctx context.Context,
	dir string,
	indexPath string,
	set *sliceset.RecoverySet,
	report *verifier.Report,
	opts Options,
) (*Result, error) {
	if report.Intact() {
		return &Result{Outcome: NoRepairNeeded}, nil
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	missingByFile, missingGlobal := collectMissing(set, report)
	if len(missingGlobal) == 0 {
		return &Result{Outcome: NoRepairNeeded}, nil
	}

	distinctAvailable := len(dedupeByExponent(set.RecoverySlices))

	p, err := buildPlan(missingGlobal, set.RecoverySlices)
	if err != nil {
		switch {
		case errors.Is(err, errInsufficientRecovery):
			return &Result{
				Outcome:                 InsufficientRecovery,
				MissingSlices:           len(missingGlobal),
				AvailableRecoverySlices: distinctAvailable,
			}, nil
		case errors.Is(err, errSingular):
			return &Result{
				Outcome:                 SingularMatrix,
				MissingSlices:           len(missingGlobal),
				AvailableRecoverySlices: distinctAvailable,
			}, nil
		default:
			return nil, fmt.Errorf("build recovery plan: %w", err)
		}
	}

	reconstructed, err := s.runChunkedPass(ctx, dir, set, p, opts.Workers, chunkSize)
	if err != nil {
		return nil, err
	}

	var repairedFiles []sliceset.FileID

	// Files are committed in index-packet order, matching the spec's
	// ordering guarantee that the global slice-index space is immutable.
	for _, f := range set.Files {
		localMissing, ok := missingByFile[f.FileID]
		if !ok {
			continue
		}

		if err := s.commitFile(dir, f, set.SliceSize, localMissing, reconstructed); err != nil {
			if errors.Is(err, errVerificationMismatch) {
				return &Result{
					Outcome:       VerificationFailed,
					FailedFile:    f.FileID,
					MissingSlices: len(missingGlobal),
				}, nil
			}

			return nil, fmt.Errorf("%w: commit %s: %w", schema.ErrFileIO, f.Name, err)
		}

		repairedFiles = append(repairedFiles, f.FileID)
	}

	if opts.Purge {
		if err := s.purge(dir, set, indexPath); err != nil {
			s.log.Warn("post-repair purge incomplete", "error", err)
		}
	}

	s.log.Debug("reconstruction complete",
		"op", "reconstruct", "filesRepaired", len(repairedFiles), "missingSlices", len(missingGlobal))

	return &Result{
		Outcome:                 Repaired,
		RepairedFiles:           repairedFiles,
		MissingSlices:           len(missingGlobal),
		AvailableRecoverySlices: distinctAvailable,
	}, nil
}

// collectMissing derives the set of missing global slice indices from a
// verification report, grouped by owning file for commit purposes.
func collectMissing(
	set *sliceset.RecoverySet,
	report *verifier.Report,
) (map[sliceset.FileID][]sliceset.LocalSliceIndex, []sliceset.GlobalSliceIndex) {
	byFile := make(map[sliceset.FileID][]sliceset.LocalSliceIndex)

	var global []sliceset.GlobalSliceIndex

	for _, f := range set.Files {
		res, ok := report.Files[f.FileID]
		if !ok {
			continue
		}

		var locals []sliceset.LocalSliceIndex

		if res.Status == verifier.Missing {
			for i := range f.SliceCount {
				locals = append(locals, sliceset.LocalSliceIndex(i))
			}
		} else {
			locals = res.MissingSlices()
		}

		if len(locals) == 0 {
			continue
		}

		byFile[f.FileID] = locals
		for _, l := range locals {
			global = append(global, f.LocalToGlobal(l))
		}
	}

	return byFile, global
}

// reconstructedData holds, for every missing global slice, its fully
// reconstructed SliceSize bytes, assembled chunk by chunk.
type reconstructedData struct {
	missing []sliceset.GlobalSliceIndex
	// buffers[i] holds the full reconstructed SliceSize bytes for
	// missing[i].
	buffers [][]byte
	index   map[sliceset.GlobalSliceIndex][]byte
}

// Get returns the reconstructed bytes for global slice g, or nil if g was
// not among the missing slices this pass reconstructed.
func (r *reconstructedData) Get(g sliceset.GlobalSliceIndex) []byte {
	return r.index[g]
}

// runChunkedPass performs the full streaming reconstruction described in
// SPEC_FULL.md §4.5: for every chunk offset within a slice, compute each
// chosen recovery row's partial (recovery XOR weighted present data), then
// left-multiply by M⁻¹ to yield every missing column's chunk.
func (s *Service) runChunkedPass(
	ctx context.Context,
	dir string,
	set *sliceset.RecoverySet,
	p *plan,
	workers int,
	chunkSize int,
) (*reconstructedData, error) {
	present, err := s.openPresentSources(dir, set, p.missing)
	if err != nil {
		return nil, err
	}
	defer present.closeAll()

	out := &reconstructedData{missing: p.missing}
	out.buffers = make([][]byte, len(p.missing))
	out.index = make(map[sliceset.GlobalSliceIndex][]byte, len(p.missing))

	for i := range out.buffers {
		out.buffers[i] = make([]byte, set.SliceSize)
		out.index[p.missing[i]] = out.buffers[i]
	}

	for offset := uint64(0); offset < set.SliceSize; offset += uint64(chunkSize) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context error: %w", err)
		}

		width := int(min(uint64(chunkSize), set.SliceSize-offset))

		presentChunks := make([][]byte, len(present.slices))
		for i, ps := range present.slices {
			presentChunks[i] = ps.chunkAt(int64(offset), width)
		}

		partials, err := s.computePartials(present, presentChunks, p, int64(offset), width, workers)
		if err != nil {
			return nil, err
		}

		for col := range p.missing {
			dst := out.buffers[col][offset : offset+uint64(width)]

			for row := range p.chosen {
				coeff := p.inverse[col][row]
				if coeff == 0 {
					continue
				}

				s.engine.MulAdd(dst, partials[row], coeff)
			}
		}
	}

	return out, nil
}

// computePartials computes, for one chunk offset, partial_k for every
// chosen recovery row k, in parallel via sync.WaitGroup since every
// row's output is combined rather than erroring independently.
func (s *Service) computePartials(
	present *presentSet,
	presentChunks [][]byte,
	p *plan,
	offset int64,
	width int,
	workers int,
) ([][]byte, error) {
	partials := make([][]byte, len(p.chosen))

	errs := make([]error, len(p.chosen))

	limit := workers
	if limit <= 0 {
		limit = len(p.chosen)
	}

	sem := make(chan struct{}, max(limit, 1))

	var wg sync.WaitGroup

	for row, locator := range p.chosen {
		wg.Add(1)
		sem <- struct{}{}

		go func(row int, locator sliceset.RecoverySliceLocator) {
			defer wg.Done()
			defer func() { <-sem }()

			buf := make([]byte, width)

			if err := s.readRecoveryChunk(locator, offset, buf); err != nil {
				errs[row] = err

				return
			}

			for i, ps := range present.slices {
				coeff := gf16.Pow(ps.alpha, locator.Exponent)
				if coeff == 0 {
					continue
				}

				s.engine.MulAdd(buf, presentChunks[i], coeff)
			}

			partials[row] = buf
		}(row, locator)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return partials, nil
}

func (s *Service) readRecoveryChunk(locator sliceset.RecoverySliceLocator, offset int64, buf []byte) error {
	clear(buf)

	if offset >= locator.Length {
		return nil
	}

	n := len(buf)
	if offset+int64(n) > locator.Length {
		n = int(locator.Length - offset)
	}

	file, err := s.fsys.Open(locator.Path)
	if err != nil {
		return fmt.Errorf("open recovery volume %s: %w", locator.Path, err)
	}
	defer file.Close()

	if _, err := file.ReadAt(buf[:n], locator.Offset+offset); err != nil {
		return fmt.Errorf("read recovery slice at %s: %w", locator.Path, err)
	}

	return nil
}

// presentSlice is one present (verified-valid) global data slice, ready to
// be read chunk by chunk during reconstruction.
type presentSlice struct {
	global sliceset.GlobalSliceIndex
	alpha  uint16

	source     presentSource
	fileOffset int64
}

func (ps *presentSlice) chunkAt(offset int64, width int) []byte {
	buf := make([]byte, width)
	_ = ps.source.ReadSlice(ps.fileOffset+offset, buf)

	return buf
}

type presentSet struct {
	slices  []*presentSlice
	sources map[sliceset.FileID]presentSource
}

func (p *presentSet) closeAll() {
	for _, src := range p.sources {
		_ = src.Close()
	}
}

// openPresentSources opens one source per file owning at least one present
// slice, and builds the presentSlice list excluding every missing index.
func (s *Service) openPresentSources(
	dir string,
	set *sliceset.RecoverySet,
	missing []sliceset.GlobalSliceIndex,
) (*presentSet, error) {
	missingSet := make(map[sliceset.GlobalSliceIndex]struct{}, len(missing))
	for _, g := range missing {
		missingSet[g] = struct{}{}
	}

	result := &presentSet{sources: make(map[sliceset.FileID]presentSource)}

	for _, f := range set.Files {
		var anyPresent bool

		for i := range f.SliceCount {
			g := f.LocalToGlobal(sliceset.LocalSliceIndex(i))
			if _, missingHere := missingSet[g]; !missingHere {
				anyPresent = true

				break
			}
		}

		if !anyPresent {
			continue
		}

		path := filepath.Join(dir, f.Name)

		src, err := openSource(s.fsys, path)
		if err != nil {
			// A file with nothing present readable contributes zero partials;
			// it is skipped rather than failing the whole reconstruction.
			continue
		}

		result.sources[f.FileID] = src

		for i := range f.SliceCount {
			g := f.LocalToGlobal(sliceset.LocalSliceIndex(i))
			if _, missingHere := missingSet[g]; missingHere {
				continue
			}

			result.slices = append(result.slices, &presentSlice{
				global:     g,
				alpha:      gf16.Base(uint32(g)),
				source:     src,
				fileOffset: int64(uint64(i) * set.SliceSize),
			})
		}
	}

	return result, nil
}
