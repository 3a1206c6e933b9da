// Package reconstruct implements the Reed-Solomon repair core: given a
// RecoverySet, a verification report, and the recovery slices found on
// disk, it reconstructs missing data slices and commits repaired files.
package reconstruct

import "github.com/par2kit/par2kit/internal/sliceset"

// Outcome classifies how a Reconstruct call concluded.
type Outcome int

const (
	// NoRepairNeeded means the verifier found no missing or corrupted slices.
	NoRepairNeeded Outcome = iota

	// Repaired means every missing slice was reconstructed and every
	// affected file was rewritten and re-verified successfully.
	Repaired

	// InsufficientRecovery means fewer usable recovery slices exist than
	// missing data slices; no reconstruction was attempted.
	InsufficientRecovery

	// SingularMatrix means every distinct-exponent recovery subset tried
	// produced a non-invertible matrix.
	SingularMatrix

	// VerificationFailed means bytes were written but the affected file's
	// full MD5 did not match after repair; the original was left in place.
	VerificationFailed
)

func (o Outcome) String() string {
	switch o {
	case NoRepairNeeded:
		return "no repair needed"
	case Repaired:
		return "repaired"
	case InsufficientRecovery:
		return "insufficient recovery data"
	case SingularMatrix:
		return "singular recovery matrix"
	case VerificationFailed:
		return "verification failed after repair"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Reconstruct call.
type Result struct {
	Outcome Outcome

	// RepairedFiles lists the files that were rewritten, in set order.
	RepairedFiles []sliceset.FileID

	// FailedFile is set when Outcome is VerificationFailed.
	FailedFile sliceset.FileID

	// MissingSlices is the total count of missing data slices considered.
	MissingSlices int

	// AvailableRecoverySlices is the count of recovery slices with
	// distinct exponents that were available to draw from.
	AvailableRecoverySlices int
}
