package gf16

import "github.com/klauspost/cpuid/v2"

// Capability names the multiply-add implementation selected for a run.
type Capability string

const (
	CapabilityScalar Capability = "scalar"
	CapabilityVector Capability = "vector"
)

// Engine bundles a dispatched multiply-add implementation with the
// capability it was selected for. It is built once at startup (per
// spec §9's "dynamic dispatch" design note: select once, pass as a value,
// never dispatch per call) and handed to the Reconstructor.
type Engine struct {
	Capability Capability
	MulAdd     MulAddFunc
}

// DetectEngine selects a multiply-add implementation based on detected CPU
// capability. SSE2/NEON-class hardware (anything with a wide general-purpose
// vector unit) gets the portable nibble-vectorized path; anything else falls
// back to the scalar split-table path. Both are byte-for-byte equivalent;
// the choice affects only throughput.
func DetectEngine() *Engine {
	if cpuid.CPU.Supports(cpuid.SSE2) || cpuid.CPU.Supports(cpuid.ASIMD) {
		return &Engine{Capability: CapabilityVector, MulAdd: MulAddVector}
	}

	return &Engine{Capability: CapabilityScalar, MulAdd: MulAddScalar}
}

// NewScalarEngine forces the scalar implementation, used by tests that
// require bit-for-bit comparison against the vectorized path.
func NewScalarEngine() *Engine {
	return &Engine{Capability: CapabilityScalar, MulAdd: MulAddScalar}
}

// NewVectorEngine forces the vectorized implementation.
func NewVectorEngine() *Engine {
	return &Engine{Capability: CapabilityVector, MulAdd: MulAddVector}
}
