// Package verifier streams target files against the Sliceset's checksum
// tables, producing per-file, per-slice validity reports for both the
// verify subcommand and the Reconstructor's present-slice discovery.
package verifier

import "github.com/par2kit/par2kit/internal/sliceset"

// Status is the outcome of validating one FileEntry against disk.
type Status int

const (
	// Present means the file exists under its expected name and every
	// slice, the head-16k MD5, and the full MD5 all matched.
	Present Status = iota

	// Corrupted means the file exists under its expected name but at
	// least one slice or whole-file checksum did not match.
	Corrupted

	// Missing means no file (expected name or rename candidate) was found.
	Missing

	// Renamed means a file with a different name was matched to this
	// entry via a head-16k MD5 probe, and its full MD5 confirmed it.
	Renamed
)

func (s Status) String() string {
	switch s {
	case Present:
		return "present"
	case Corrupted:
		return "corrupted"
	case Missing:
		return "missing"
	case Renamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileResult is the Verifier's output for one FileEntry.
type FileResult struct {
	FileID sliceset.FileID
	Status Status

	// FoundAt is the path the file was actually read from; it differs
	// from the entry's expected name only when Status is Renamed.
	FoundAt string

	// ValidSlices marks which local slice indices matched their expected
	// checksums. Absent entirely when Status is Missing.
	ValidSlices []bool

	Err error
}

// MissingSlices returns the local slice indices that did not verify.
func (r *FileResult) MissingSlices() []sliceset.LocalSliceIndex {
	if r.Status == Missing {
		return nil
	}

	var missing []sliceset.LocalSliceIndex
	for i, ok := range r.ValidSlices {
		if !ok {
			missing = append(missing, sliceset.LocalSliceIndex(i))
		}
	}

	return missing
}

// Report is the Verifier's output for an entire RecoverySet.
type Report struct {
	Files map[sliceset.FileID]*FileResult

	// RepairPossible is a coarse flag: whether the number of missing data
	// slices across the whole set does not exceed the number of recovery
	// slices on disk. The Reconstructor still may fail for other reasons
	// (singular matrix, unreadable recovery slices).
	RepairPossible bool
}

// Intact reports whether every file in the set verified with its recovered
// content fully present, either under its original name or a confirmed
// rename: a Renamed file's bytes already matched FullMD5, so it carries no
// missing slices and needs no repair.
func (r *Report) Intact() bool {
	for _, res := range r.Files {
		if res.Status != Present && res.Status != Renamed {
			return false
		}
	}

	return true
}

// TotalMissingSlices sums MissingSlices() across every file, counting a
// wholly Missing file as its full SliceCount.
func (r *Report) TotalMissingSlices(set *sliceset.RecoverySet) int {
	var total int

	for _, f := range set.Files {
		res, ok := r.Files[f.FileID]
		if !ok || res.Status == Missing {
			total += int(f.SliceCount)

			continue
		}

		total += len(res.MissingSlices())
	}

	return total
}
