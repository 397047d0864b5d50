package ivfpq

// InvertedLists stores the (id, code) pairs of each coarse cell in append
// order. Once the owning index is sealed the lists are never mutated again.
type InvertedLists struct {
	codeSize int
	ids      [][]int64
	codes    [][]byte // codes[cell] is len(ids[cell]) * codeSize bytes
}

// NewInvertedLists creates empty lists for nlist cells.
func NewInvertedLists(nlist, codeSize int) *InvertedLists {
	return &InvertedLists{
		codeSize: codeSize,
		ids:      make([][]int64, nlist),
		codes:    make([][]byte, nlist),
	}
}

// NList returns the number of cells.
func (il *InvertedLists) NList() int { return len(il.ids) }

// CodeSize returns the per-vector code size in bytes.
func (il *InvertedLists) CodeSize() int { return il.codeSize }

// Append adds one (id, code) pair to cell.
func (il *InvertedLists) Append(cell int, id int64, code []byte) {
	il.ids[cell] = append(il.ids[cell], id)
	il.codes[cell] = append(il.codes[cell], code...)
}

// Cell returns the ids and packed codes of cell. The returned slices alias
// internal storage and must not be modified.
func (il *InvertedLists) Cell(cell int) ([]int64, []byte) {
	return il.ids[cell], il.codes[cell]
}

// Len returns the number of entries in cell.
func (il *InvertedLists) Len(cell int) int {
	return len(il.ids[cell])
}
