package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Expectation: Important constants should not have changed.
func Test_Constants_Success(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, ExitCodeSuccess)
	require.Equal(t, 1, ExitCodeRepairNeededOrFailed)
	require.Equal(t, 2, ExitCodeUnrepairable)
	require.Equal(t, 2, ExitCodeUsage)
}
