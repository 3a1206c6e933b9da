package sliceset

import (
	"errors"
	"fmt"

	"github.com/par2kit/par2kit/internal/codec"
	"github.com/par2kit/par2kit/internal/schema"
)

// Build assembles a parsed PAR2 packet set into a read-only RecoverySet.
// File order follows the Main packet's RecoveryIDs list exactly (spec §3,
// §4.3). Non-recovery file ids are treated as metadata only and do not
// contribute FileEntry values, per this implementation's resolution of
// the spec's open question on that point.
func Build(res *codec.ParseResult) (*RecoverySet, error) {
	if res.Main == nil {
		return nil, fmt.Errorf("%w: no main packet found", schema.ErrMissingMainPacket)
	}

	set := &RecoverySet{
		SetID:     RecoverySetID(res.Main.SetID),
		SliceSize: res.Main.SliceSize,
		byID:      make(map[FileID]*FileEntry),
	}

	var offset GlobalSliceIndex

	for _, rawID := range res.Main.RecoveryIDs {
		id := FileID(rawID)

		fd, ok := res.FileDescs[codec.Hash(id)]
		if !ok || fd.SetID != res.Main.SetID {
			return nil, fmt.Errorf("%w: file id %x has no file description packet",
				schema.ErrMissingMainPacket, id)
		}

		entry := &FileEntry{
			FileID:     id,
			Name:       fd.Name,
			Length:     fd.Length,
			FullMD5:    MD5Digest(fd.FullMD5),
			Head16kMD5: MD5Digest(fd.Head16k),

			SliceCount:        sliceCount(fd.Length, set.SliceSize),
			GlobalSliceOffset: offset,
		}

		if ifsc, ok := res.IFSCs[codec.Hash(id)]; ok && ifsc.SetID == res.Main.SetID {
			entry.SliceChecksums = make([]SliceChecksum, len(ifsc.Checksums))
			for i, c := range ifsc.Checksums {
				entry.SliceChecksums[i] = SliceChecksum{MD5: MD5Digest(c.MD5), CRC32: CRC32(c.CRC32)}
			}
		}

		offset += GlobalSliceIndex(entry.SliceCount)

		set.Files = append(set.Files, entry)
		set.byIndex = append(set.byIndex, entry)
		set.byID[id] = entry
	}

	for _, loc := range res.RecoverySlices {
		if loc.SetID != res.Main.SetID {
			continue
		}

		set.RecoverySlices = append(set.RecoverySlices, RecoverySliceLocator{
			Path:     loc.Path,
			Offset:   loc.Offset,
			Length:   loc.Length,
			Exponent: loc.Exponent,
		})
	}

	if err := validate(set); err != nil {
		return nil, err
	}

	return set, nil
}

func sliceCount(length, sliceSize uint64) uint64 {
	if sliceSize == 0 {
		return 0
	}

	return (length + sliceSize - 1) / sliceSize
}

var errInvalidOffsets = errors.New("sliceset: global slice offsets are not monotonic")

// validate checks the invariant that GlobalSliceOffset values are
// monotonic and non-overlapping and that their total equals the sum of
// slice counts (spec §3, §8 "Slice indexing").
func validate(set *RecoverySet) error {
	var expected GlobalSliceIndex

	for _, f := range set.Files {
		if f.GlobalSliceOffset != expected {
			return fmt.Errorf("%w: file %x expected offset %d, got %d",
				errInvalidOffsets, f.FileID, expected, f.GlobalSliceOffset)
		}

		expected += GlobalSliceIndex(f.SliceCount)
	}

	return nil
}
