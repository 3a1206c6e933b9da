package reconstruct

import (
	"errors"
	"fmt"

	"github.com/par2kit/par2kit/internal/gf16"
	"github.com/par2kit/par2kit/internal/sliceset"
)

var errSingular = errors.New("reconstruct: singular recovery matrix")

// plan is a fully resolved recovery configuration: which recovery slices
// were chosen, which global slice indices are missing, and the inverted
// generator submatrix relating the two.
type plan struct {
	missing []sliceset.GlobalSliceIndex

	chosen []sliceset.RecoverySliceLocator

	// inverse[row][col] is M⁻¹, |missing| x |missing|.
	inverse [][]uint16
}

// buildPlan picks the first len(missing) recovery slices with distinct
// exponents from candidates, builds the generator submatrix for the
// missing columns, and inverts it. On a singular matrix it slides the
// chosen window forward by one distinct-exponent candidate (dropping the
// window's earliest slice, admitting the next unused one) and retries,
// per this implementation's resolution of the subset-retry open question.
func buildPlan(missing []sliceset.GlobalSliceIndex, candidates []sliceset.RecoverySliceLocator) (*plan, error) {
	if len(missing) == 0 {
		return &plan{}, nil
	}

	distinct := dedupeByExponent(candidates)
	if len(distinct) < len(missing) {
		return nil, fmt.Errorf("%w: need %d, have %d", errInsufficientRecovery, len(missing), len(distinct))
	}

	alphas := make([]uint16, len(missing))
	for i, g := range missing {
		alphas[i] = gf16.Base(uint32(g))
	}

	chosenCount := len(missing)

	for start := 0; start+chosenCount <= len(distinct); start++ {
		chosen := distinct[start : start+chosenCount]

		matrix := buildMatrix(alphas, chosen)

		inverse, err := invert(matrix)
		if err != nil {
			continue
		}

		return &plan{
			missing: missing,
			chosen:  chosen,
			inverse: inverse,
		}, nil
	}

	return nil, errSingular
}

// dedupeByExponent keeps the first locator seen for each distinct exponent,
// in input order, matching "first N recovery slices whose exponents are
// distinct" from the spec.
func dedupeByExponent(locators []sliceset.RecoverySliceLocator) []sliceset.RecoverySliceLocator {
	seen := make(map[uint32]struct{}, len(locators))
	out := make([]sliceset.RecoverySliceLocator, 0, len(locators))

	for _, l := range locators {
		if _, ok := seen[l.Exponent]; ok {
			continue
		}
		seen[l.Exponent] = struct{}{}
		out = append(out, l)
	}

	return out
}

// buildMatrix builds M where M[row][col] = alphas[col] ^ chosen[row].Exponent,
// the generator-matrix coefficient relating missing data column col to
// recovery row's packet-level exponent (spec §4.5).
func buildMatrix(alphas []uint16, chosen []sliceset.RecoverySliceLocator) [][]uint16 {
	m := make([][]uint16, len(chosen))
	for row := range m {
		m[row] = make([]uint16, len(alphas))
		for col, alpha := range alphas {
			m[row][col] = gf16.Pow(alpha, chosen[row].Exponent)
		}
	}

	return m
}

// invert performs Gauss-Jordan elimination over GF(2^16), returning the
// matrix inverse or errSingular if no nonzero pivot exists in some column.
func invert(m [][]uint16) ([][]uint16, error) {
	n := len(m)

	work := make([][]uint16, n)
	inv := make([][]uint16, n)

	for i := range n {
		work[i] = append([]uint16(nil), m[i]...)
		inv[i] = make([]uint16, n)
		inv[i][i] = 1
	}

	for col := range n {
		pivot := -1
		for row := col; row < n; row++ {
			if work[row][col] != 0 {
				pivot = row

				break
			}
		}

		if pivot == -1 {
			return nil, errSingular
		}

		work[col], work[pivot] = work[pivot], work[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		scale := gf16.Inverse(work[col][col])
		scaleRow(work[col], scale)
		scaleRow(inv[col], scale)

		for row := range n {
			if row == col {
				continue
			}

			factor := work[row][col]
			if factor == 0 {
				continue
			}

			eliminateRow(work[row], work[col], factor)
			eliminateRow(inv[row], inv[col], factor)
		}
	}

	return inv, nil
}

func scaleRow(row []uint16, scale uint16) {
	for i, v := range row {
		row[i] = gf16.Multiply(v, scale)
	}
}

func eliminateRow(target, pivotRow []uint16, factor uint16) {
	for i, v := range pivotRow {
		target[i] = gf16.Add(target[i], gf16.Multiply(v, factor))
	}
}
