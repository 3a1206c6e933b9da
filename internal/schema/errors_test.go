package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// Expectation: The correct exit code should be returned.
func Test_ExitCodeFor_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "nil error returns success",
			err:      nil,
			expected: ExitCodeSuccess,
		},
		{
			name:     "ErrUsage returns usage code",
			err:      ErrUsage,
			expected: ExitCodeUsage,
		},
		{
			name:     "ErrMissingMainPacket returns unrepairable code",
			err:      ErrMissingMainPacket,
			expected: ExitCodeUnrepairable,
		},
		{
			name:     "ErrInsufficientRecovery returns unrepairable code",
			err:      ErrInsufficientRecovery,
			expected: ExitCodeUnrepairable,
		},
		{
			name:     "ErrSingularMatrix returns unrepairable code",
			err:      ErrSingularMatrix,
			expected: ExitCodeUnrepairable,
		},
		{
			name:     "ErrVerificationFailedPostRepair returns repair-needed-or-failed code",
			err:      ErrVerificationFailedPostRepair,
			expected: ExitCodeRepairNeededOrFailed,
		},
		{
			name:     "ErrFileIO returns repair-needed-or-failed code",
			err:      ErrFileIO,
			expected: ExitCodeRepairNeededOrFailed,
		},
		{
			name:     "ErrMalformedPacket returns repair-needed-or-failed code",
			err:      ErrMalformedPacket,
			expected: ExitCodeRepairNeededOrFailed,
		},
		{
			name:     "wrapped error matches the highest-priority sentinel it contains",
			err:      fmt.Errorf("wrapped: %w: %w", ErrFileIO, ErrUsage),
			expected: ExitCodeUsage,
		},
		{
			name:     "unknown error falls back to repair-needed-or-failed",
			err:      errors.New("some random error"),
			expected: ExitCodeRepairNeededOrFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := ExitCodeFor(tt.err)
			require.Equal(t, tt.expected, result)
		})
	}
}
