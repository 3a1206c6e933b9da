package codec_test

import (
	"testing"

	"github.com/par2kit/par2kit/internal/codec"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverFindsSiblingVolumes(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	for _, name := range []string{
		"/set/movie.par2",
		"/set/movie.vol000+010.par2",
		"/set/movie.vol010+020.par2",
		"/set/unrelated.par2",
		"/set/movie.txt",
	} {
		require.NoError(t, afero.WriteFile(fsys, name, []byte("x"), 0o644))
	}

	paths, err := codec.Discover(fsys, "/set/movie.par2")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"/set/movie.par2",
		"/set/movie.vol000+010.par2",
		"/set/movie.vol010+020.par2",
	}, paths)
}
