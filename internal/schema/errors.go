package schema

import "errors"

// Sentinel error kinds, per spec §7 "Error Handling Design". Call sites
// wrap the concrete cause with one of these via %w so that both
// errors.Is/As and ExitCodeFor can classify it at the CLI boundary.
var (
	// ErrMalformedPacket classifies a single bad packet (length, type, or
	// self-MD5). The codec reports such packets with its own
	// codec.ErrMalformedPacket internally, drops the packet and continues,
	// so this sentinel does not reach the CLI from parsing.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrMissingMainPacket means no usable index packet was found, or a
	// file id the index references has no matching file description.
	// This is fatal: nothing else can proceed without it.
	ErrMissingMainPacket = errors.New("missing or incomplete main packet")

	// ErrFileIO is a per-file fatal I/O error (Verifier/Reconstructor);
	// other files continue being processed.
	ErrFileIO = errors.New("file i/o error")

	// ErrInsufficientRecovery means fewer usable recovery slices exist
	// than missing data slices; repair terminates for the affected files.
	ErrInsufficientRecovery = errors.New("insufficient recovery data")

	// ErrSingularMatrix means the chosen recovery subset produced a
	// non-invertible matrix; the Reconstructor retries with a different
	// subset before giving up.
	ErrSingularMatrix = errors.New("singular recovery matrix")

	// ErrVerificationFailedPostRepair means bytes were written during
	// repair but the resulting file's full MD5 did not match; the file is
	// reverted and reported as a per-file failure.
	ErrVerificationFailedPostRepair = errors.New("verification failed after repair")

	// ErrUsage is a CLI usage error, fatal before the core runs.
	ErrUsage = errors.New("usage error")
)

// exitErrorsByPriority lists sentinel kinds in descending exit-code
// priority; ExitCodeFor returns the first one a wrapped error chain
// matches, so the most severe classification wins when several apply.
var exitErrorsByPriority = []struct {
	err  error
	code int
}{
	{ErrUsage, ExitCodeUsage},
	{ErrMissingMainPacket, ExitCodeUnrepairable},
	{ErrInsufficientRecovery, ExitCodeUnrepairable},
	{ErrSingularMatrix, ExitCodeUnrepairable},
	{ErrVerificationFailedPostRepair, ExitCodeRepairNeededOrFailed},
	{ErrFileIO, ExitCodeRepairNeededOrFailed},
	{ErrMalformedPacket, ExitCodeRepairNeededOrFailed},
}

// ExitCodeFor maps err onto one of this program's exit codes by checking
// errors.Is against each known sentinel kind, in priority order.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	for _, entry := range exitErrorsByPriority {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}

	return ExitCodeRepairNeededOrFailed
}
