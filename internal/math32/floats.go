// Package math32 provides float32 vector kernels used by the distance and
// ivfpq packages. This is an internal package - external users should go
// through the distance package.
package math32

// Kernel function pointers, set once before first use. Generic
// implementations are the default; an accelerated build can override them
// from its own init(). The generic versions are the semantic reference.
var (
	kernelDot            = dotGeneric
	kernelSquaredL2      = squaredL2Generic
	kernelScale          = scaleGeneric
	kernelPqAdc          = pqAdcLookupGeneric
	kernelSquaredL2Batch = squaredL2BatchGeneric
)

// Dot calculates the dot product of two vectors.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func Dot(a, b []float32) float32 {
	return kernelDot(a, b)
}

// SquaredL2 calculates the squared L2 distance.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func SquaredL2(a, b []float32) float32 {
	return kernelSquaredL2(a, b)
}

// ScaleInPlace multiplies all elements of a by scalar.
//
// This is primarily used by distance normalization.
func ScaleInPlace(a []float32, scalar float32) {
	kernelScale(a, scalar)
}

// PqAdcLookup computes the sum of distances from a precomputed table.
// table: m x ksub floats (flattened, ksub = len(table)/m)
// codes: m bytes
// m: number of subvectors
func PqAdcLookup(table []float32, codes []byte, m int) float32 {
	return kernelPqAdc(table, codes, m)
}

// SquaredL2Batch computes squared L2 distances from q to n contiguous
// dim-sized vectors in targets, writing results into out.
func SquaredL2Batch(q []float32, targets []float32, dim int, out []float32) {
	kernelSquaredL2Batch(q, targets, dim, out)
}

func dotGeneric(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

func squaredL2Generic(a, b []float32) float32 {
	var distance float32
	for i := range a {
		distance += (a[i] - b[i]) * (a[i] - b[i])
	}

	return distance
}

func scaleGeneric(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

func pqAdcLookupGeneric(table []float32, codes []byte, m int) float32 {
	ksub := len(table) / m

	var sum float32
	for i := 0; i < m; i++ {
		sum += table[i*ksub+int(codes[i])]
	}

	return sum
}

func squaredL2BatchGeneric(q []float32, targets []float32, dim int, out []float32) {
	n := len(targets) / dim
	if n > len(out) {
		n = len(out)
	}

	for i := 0; i < n; i++ {
		offset := i * dim
		out[i] = squaredL2Generic(q, targets[offset:offset+dim])
	}
}
