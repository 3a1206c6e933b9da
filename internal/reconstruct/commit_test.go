package reconstruct

import (
	"crypto/md5" //nolint:gosec
	"errors"
	"testing"

	"github.com/par2kit/par2kit/internal/logging"
	"github.com/par2kit/par2kit/internal/sliceset"
	"github.com/par2kit/par2kit/internal/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newCommitTestLogger() *logging.Logger {
	opts := logging.Options{Logout: &testutil.SafeBuffer{}}
	_ = opts.LogLevel.Set("error")

	return logging.NewLogger(opts)
}

func buildCommitFixture(t *testing.T, fsys afero.Fs, dir string) (*sliceset.FileEntry, *reconstructedData) {
	t.Helper()

	present := []byte("AAAABBBB")
	recovered := []byte("CCCCDDDD")
	full := append(append([]byte{}, present...), recovered...)
	sum := md5.Sum(full) //nolint:gosec

	entry := &sliceset.FileEntry{
		FileID:            sliceset.FileID{0x09},
		Name:              "restored.bin",
		Length:            uint64(len(full)),
		FullMD5:           sliceset.MD5Digest(sum),
		SliceCount:        2,
		GlobalSliceOffset: 0,
	}

	require.NoError(t, afero.WriteFile(fsys, dir+"/restored.bin", present, 0o644))

	data := &reconstructedData{
		missing: []sliceset.GlobalSliceIndex{1},
		index:   map[sliceset.GlobalSliceIndex][]byte{1: recovered},
	}

	return entry, data
}

// A rename failure after a successful MD5 match must not corrupt the
// original file: the temp file is removed and the original path is left
// exactly as it was before the repair attempt.
func TestCommitFileRenameFailureLeavesOriginalIntact(t *testing.T) {
	dir := "/data"
	base := afero.NewMemMapFs()

	entry, data := buildCommitFixture(t, base, dir)

	originalBefore, err := afero.ReadFile(base, dir+"/restored.bin")
	require.NoError(t, err)

	failing := &testutil.FailingRenameFs{Fs: base, FailPattern: "restored.bin"}

	svc := &Service{fsys: failing, log: newCommitTestLogger()}

	err = svc.commitFile(dir, entry, 8, []sliceset.LocalSliceIndex{1}, data)
	require.Error(t, err)
	require.False(t, errors.Is(err, errVerificationMismatch))

	originalAfter, err := afero.ReadFile(base, dir+"/restored.bin")
	require.NoError(t, err)
	require.Equal(t, originalBefore, originalAfter)
}

// A full-MD5 mismatch after writing must revert: the original file is
// untouched and no temp file is left behind in dir.
func TestCommitFileMD5MismatchReverts(t *testing.T) {
	dir := "/data"
	fsys := afero.NewMemMapFs()

	entry, data := buildCommitFixture(t, fsys, dir)
	entry.FullMD5[0] ^= 0xFF // corrupt the expected checksum

	err := (&Service{fsys: fsys, log: newCommitTestLogger()}).commitFile(dir, entry, 8, []sliceset.LocalSliceIndex{1}, data)
	require.ErrorIs(t, err, errVerificationMismatch)

	entries, err := afero.ReadDir(fsys, dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp file should remain in dir")
	require.Equal(t, "restored.bin", entries[0].Name())
}
