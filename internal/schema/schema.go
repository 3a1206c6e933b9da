// Package schema holds the cross-package sentinel errors, exit codes, and
// program version shared by the verify/repair CLI.
package schema

// ProgramVersion is the program version, filled in by the build process.
var ProgramVersion = "devel"

const (
	// ExitCodeSuccess covers both "all files intact" and "nothing to repair".
	ExitCodeSuccess int = 0

	// ExitCodeRepairNeededOrFailed covers "damage found and repairable" for
	// verify, and "repair failed or was incomplete" for repair.
	ExitCodeRepairNeededOrFailed int = 1

	// ExitCodeUnrepairable is returned by verify when damage exists and
	// repair is provably impossible with the available recovery data, and
	// by either command when the main packet is missing or incomplete.
	ExitCodeUnrepairable int = 2

	// ExitCodeUsage is returned for usage errors, before the core runs.
	ExitCodeUsage int = 2
)
