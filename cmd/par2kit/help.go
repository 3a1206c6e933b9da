package main

const rootUsage = "par2kit"

const rootHelpShort = "PAR2 verification and repair engine"

const rootHelpLong = `par2kit - PAR2 verification and repair engine

Reads a PAR2 index file and its sibling recovery volumes, verifies the
target files they protect, and reconstructs missing or corrupted data
using the recovery slices found on disk. Self-contained: no external
"par2" binary is invoked.

See 'par2kit <command> --help' for command-specific information.`

const verifyUsage = "verify <index.par2> [dir]"

const verifyHelpShort = "Verifies target files against a PAR2 recovery set"

const verifyHelpLong = `Parses the named index file and its sibling recovery volumes,
then streams every target file against the recorded checksums.

Target files are located relative to the index file's directory,
unless a different directory is given as the second argument.

Reports, per file, whether it is present, corrupted, missing, or
renamed, and whether enough recovery data exists to repair it.`

const verifyHelpExample = `
Verify a set next to its index file:
  par2kit verify /media/archive/set.par2

Verify target files living in a different directory:
  par2kit verify /media/archive/set.par2 /mnt/restore`

const repairUsage = "repair <index.par2> [dir]"

const repairHelpShort = "Repairs a PAR2 recovery set using its recovery slices"

const repairHelpLong = `Verifies the recovery set, then reconstructs any missing or
corrupted data slices from the available recovery slices.

Repaired files replace the originals atomically (temp file,
fsync, rename). If a repair would fail, the original file is
left untouched.`

const repairHelpExample = `
Repair a set next to its index file:
  par2kit repair /media/archive/set.par2

Repair and remove the recovery set once everything is fixed:
  par2kit repair --purge /media/archive/set.par2`
