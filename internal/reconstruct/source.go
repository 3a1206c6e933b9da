package reconstruct

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"golang.org/x/exp/mmap"
)

// presentSource reads zero-padded slice bytes for a present (verified-valid)
// global slice index, backed either by mmap (real OS files) or ReadAt
// (any other afero.Fs), per the present-data-reads requirement.
type presentSource interface {
	ReadSlice(offset int64, buf []byte) error
	Close() error
}

// mmapSource backs a present file with golang.org/x/exp/mmap, avoiding a
// read syscall per chunk for the common case of a real on-disk file.
type mmapSource struct {
	r    *mmap.ReaderAt
	size int64
}

func newMmapSource(path string) (*mmapSource, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap open: %w", err)
	}

	return &mmapSource{r: r, size: int64(r.Len())}, nil
}

func (m *mmapSource) ReadSlice(offset int64, buf []byte) error {
	clear(buf)

	if offset >= m.size {
		return nil
	}

	n := len(buf)
	if offset+int64(n) > m.size {
		n = int(m.size - offset)
	}

	if _, err := m.r.ReadAt(buf[:n], offset); err != nil && err != io.EOF {
		return fmt.Errorf("mmap read: %w", err)
	}

	return nil
}

func (m *mmapSource) Close() error {
	if err := m.r.Close(); err != nil {
		return fmt.Errorf("mmap close: %w", err)
	}

	return nil
}

// aferoSource backs a present file with plain ReadAt, for afero backings
// that are not real OS files (in-memory filesystems, tests).
type aferoSource struct {
	f afero.File
}

func newAferoSource(fsys afero.Fs, path string) (*aferoSource, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	return &aferoSource{f: f}, nil
}

func (a *aferoSource) ReadSlice(offset int64, buf []byte) error {
	clear(buf)

	if _, err := a.f.ReadAt(buf, offset); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("readat: %w", err)
	}

	return nil
}

func (a *aferoSource) Close() error {
	if err := a.f.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	return nil
}

// openSource picks mmap for a genuine afero.OsFs and plain ReadAt otherwise.
func openSource(fsys afero.Fs, path string) (presentSource, error) {
	if _, ok := fsys.(*afero.OsFs); ok {
		if src, err := newMmapSource(path); err == nil {
			return src, nil
		}
	}

	return newAferoSource(fsys, path)
}
