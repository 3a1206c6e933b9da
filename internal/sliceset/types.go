// Package sliceset holds the in-memory model of a PAR2 recovery set
// assembled by the codec package: files, slices, and checksum tables.
// Once built, a RecoverySet is read-only and safe to share across workers.
package sliceset

import "fmt"

// FileID is the PAR2 file identifier, distinct from RecoverySetID and
// MD5Digest so the two cannot be confused at compile time even though both
// are 16-byte MD5-shaped values.
type FileID [16]byte

func (id FileID) String() string { return fmt.Sprintf("%x", [16]byte(id)) }

// RecoverySetID identifies a recovery set; every packet in the set carries
// it. The codec rejects volumes whose main packets disagree on it, and
// Build ignores other packets that carry a different id.
type RecoverySetID [16]byte

func (id RecoverySetID) String() string { return fmt.Sprintf("%x", [16]byte(id)) }

// MD5Digest is an MD5 hash used as a slice, file, or head-16k checksum.
type MD5Digest [16]byte

func (d MD5Digest) String() string { return fmt.Sprintf("%x", [16]byte(d)) }

// CRC32 is the cheap first-pass slice checksum.
type CRC32 uint32

// GlobalSliceIndex is a slice index across the whole recovery set's
// exponent-space, distinct from LocalSliceIndex to prevent the two from
// being confused.
type GlobalSliceIndex uint64

// LocalSliceIndex is a slice index within a single file.
type LocalSliceIndex uint64

// SliceChecksum is the (MD5, CRC32) pair recorded for one slice, computed
// over the slice zero-padded to SliceSize.
type SliceChecksum struct {
	MD5   MD5Digest
	CRC32 CRC32
}

// FileEntry represents one target file protected by the recovery set.
type FileEntry struct {
	FileID     FileID
	Name       string
	Length     uint64
	FullMD5    MD5Digest
	Head16kMD5 MD5Digest

	// SliceCount is ceil(Length / SliceSize).
	SliceCount uint64

	// GlobalSliceOffset is the cumulative sum of slice counts of every
	// FileEntry preceding this one in RecoverySet.Files.
	GlobalSliceOffset GlobalSliceIndex

	// SliceChecksums has one entry per local slice index.
	SliceChecksums []SliceChecksum
}

// LocalToGlobal converts a local slice index of this file into the
// recovery set's global slice-index space.
func (f *FileEntry) LocalToGlobal(local LocalSliceIndex) GlobalSliceIndex {
	return f.GlobalSliceOffset + GlobalSliceIndex(local)
}

// ActualSize returns the number of real (non-padding) bytes in local slice
// index i, given the recovery set's uniform SliceSize.
func (f *FileEntry) ActualSize(i LocalSliceIndex, sliceSize uint64) uint64 {
	if uint64(i) != f.SliceCount-1 {
		return sliceSize
	}

	rem := f.Length - uint64(i)*sliceSize
	if rem == 0 {
		return sliceSize
	}

	return rem
}

// RecoverySliceLocator is a lazy pointer to recovery bytes: the codec never
// buffers the payload, only records where to find it.
type RecoverySliceLocator struct {
	Path     string
	Offset   int64
	Length   int64
	Exponent uint32
}

// RecoverySet is the top-level, read-only aggregate built once by Build and
// shared freely across workers thereafter.
type RecoverySet struct {
	SetID     RecoverySetID
	SliceSize uint64

	// Files is ordered exactly as the index packet's file_ids list; this
	// order fixes the global slice-index space and is never changed.
	Files []*FileEntry

	RecoverySlices []RecoverySliceLocator

	byID    map[FileID]*FileEntry
	byIndex []*FileEntry // same order as Files, kept for clarity at call sites
}

// FileByID looks up a file by its FileID.
func (s *RecoverySet) FileByID(id FileID) (*FileEntry, bool) {
	f, ok := s.byID[id]

	return f, ok
}

// FileByIndex returns the i-th file in index-packet order.
func (s *RecoverySet) FileByIndex(i int) (*FileEntry, bool) {
	if i < 0 || i >= len(s.byIndex) {
		return nil, false
	}

	return s.byIndex[i], true
}

// TotalSlices returns the total number of data slices across all files.
func (s *RecoverySet) TotalSlices() uint64 {
	var total uint64
	for _, f := range s.Files {
		total += f.SliceCount
	}

	return total
}

// TotalBytes returns the sum of every file's Length.
func (s *RecoverySet) TotalBytes() uint64 {
	var total uint64
	for _, f := range s.Files {
		total += f.Length
	}

	return total
}

// GlobalToLocal finds the FileEntry and local slice index owning a global
// slice index, by binary search over GlobalSliceOffset.
func (s *RecoverySet) GlobalToLocal(g GlobalSliceIndex) (*FileEntry, LocalSliceIndex, bool) {
	lo, hi := 0, len(s.Files)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		f := s.Files[mid]

		if g < f.GlobalSliceOffset {
			hi = mid - 1

			continue
		}

		if g >= f.GlobalSliceOffset+GlobalSliceIndex(f.SliceCount) {
			lo = mid + 1

			continue
		}

		return f, LocalSliceIndex(g - f.GlobalSliceOffset), true
	}

	return nil, 0, false
}
