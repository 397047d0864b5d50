package ivfpq

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vecshard/vecshard/persistence"
)

// Artifact format, little-endian throughout:
//
//	magic        [4]byte "VSI1"
//	version      uint8
//	compression  uint8  (persistence.Compression)
//	reserved     uint16
//	checksum     uint32 (CRC32 of the stored payload)
//	payloadLen   uint64 (stored, possibly compressed, length)
//	payload:
//	  dimension uint32, nlist uint32, m uint32, nbits uint32, count uint64
//	  coarse centroids  nlist*d float32
//	  sub-codebooks     m * 2^nbits * d/m float32
//	  per cell: n uint32, ids n*int64, codes n*m bytes
//
// The artifact is self-describing: reading it back reconstructs a Populated
// index with no external schema.

var artifactMagic = [4]byte{'V', 'S', 'I', '1'}

// FormatVersion is the artifact format version. Artifacts with any other
// version are rejected; there is no migration path across versions.
const FormatVersion uint8 = 1

// maxPayloadLen bounds the stored payload length accepted from an artifact
// header. A corrupt length field must fail the read, not drive allocation.
const maxPayloadLen = 1 << 40

var (
	// ErrInvalidMagic is returned when a blob is not an index artifact.
	ErrInvalidMagic = errors.New("invalid artifact magic")
	// ErrInvalidVersion is returned for an unsupported artifact version.
	ErrInvalidVersion = errors.New("unsupported artifact version")
)

type artifactHeader struct {
	Magic       [4]byte
	Version     uint8
	Compression uint8
	Reserved    uint16
	Checksum    uint32
	PayloadLen  uint64
}

// WriteTo writes the index as a zstd-compressed artifact. It implements
// io.WriterTo. The index must be sealed.
func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	return idx.Write(w, persistence.CompressionZstd)
}

// Write writes the index as an artifact with the given compression.
func (idx *Index) Write(w io.Writer, c persistence.Compression) (int64, error) {
	if err := sealedIndexGuard(idx); err != nil {
		return 0, fmt.Errorf("write artifact: %w", err)
	}
	if !c.Valid() {
		return 0, fmt.Errorf("write artifact: unknown compression %d", uint8(c))
	}

	payload, err := idx.encodePayload()
	if err != nil {
		return 0, err
	}

	stored, err := persistence.Compress(payload, c)
	if err != nil {
		return 0, fmt.Errorf("compress artifact: %w", err)
	}

	header := artifactHeader{
		Magic:       artifactMagic,
		Version:     FormatVersion,
		Compression: uint8(c),
		Checksum:    persistence.ComputeChecksum(stored),
		PayloadLen:  uint64(len(stored)),
	}

	var n int64
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, &header); err != nil {
		return 0, err
	}
	hn, err := w.Write(buf.Bytes())
	n += int64(hn)
	if err != nil {
		return n, err
	}
	pn, err := w.Write(stored)
	n += int64(pn)
	return n, err
}

func (idx *Index) encodePayload() ([]byte, error) {
	p := idx.params
	buf := new(bytes.Buffer)

	for _, v := range []uint32{uint32(p.Dimension), uint32(p.NList), uint32(p.M), uint32(p.NBits)} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(buf, binary.LittleEndian, uint64(idx.count)); err != nil {
		return nil, err
	}

	if err := binary.Write(buf, binary.LittleEndian, idx.coarse.centroids); err != nil {
		return nil, err
	}
	for _, cb := range idx.pq.codebooks {
		if err := binary.Write(buf, binary.LittleEndian, cb); err != nil {
			return nil, err
		}
	}

	for cell := 0; cell < p.NList; cell++ {
		ids, codes := idx.lists.Cell(cell)
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(ids))); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, binary.LittleEndian, ids); err != nil {
			return nil, err
		}
		if _, err := buf.Write(codes); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// ReadIndex reads an artifact and reconstructs a Populated index.
func ReadIndex(r io.Reader) (*Index, error) {
	var header artifactHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read artifact header: %w", err)
	}
	if header.Magic != artifactMagic {
		return nil, ErrInvalidMagic
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, header.Version)
	}
	c := persistence.Compression(header.Compression)
	if !c.Valid() {
		return nil, fmt.Errorf("unknown artifact compression %d", header.Compression)
	}

	if header.PayloadLen > maxPayloadLen {
		return nil, fmt.Errorf("corrupt artifact: payload length %d exceeds %d", header.PayloadLen, uint64(maxPayloadLen))
	}

	cr := persistence.NewChecksumReader(io.LimitReader(r, int64(header.PayloadLen)))
	var stored bytes.Buffer
	n, err := stored.ReadFrom(cr)
	if err != nil {
		return nil, fmt.Errorf("read artifact payload: %w", err)
	}
	if uint64(n) != header.PayloadLen {
		return nil, fmt.Errorf("read artifact payload: %w", io.ErrUnexpectedEOF)
	}
	if err := cr.Verify(header.Checksum); err != nil {
		return nil, err
	}

	payload, err := persistence.Decompress(stored.Bytes(), c)
	if err != nil {
		return nil, fmt.Errorf("decompress artifact: %w", err)
	}

	return decodePayload(bytes.NewReader(payload))
}

func decodePayload(r *bytes.Reader) (*Index, error) {
	var dim, nlist, m, nbits uint32
	for _, v := range []*uint32{&dim, &nlist, &m, &nbits} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	p := Params{Dimension: int(dim), NList: int(nlist), M: int(m), NBits: int(nbits)}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt artifact params: %w", err)
	}

	// Division keeps the size arithmetic overflow-free; every count field
	// must fit the bytes actually present.
	if uint64(p.NList) > uint64(r.Len())/4/uint64(p.Dimension) {
		return nil, errors.New("corrupt artifact: centroid block exceeds payload")
	}

	centroids := make([]float32, p.NList*p.Dimension)
	if err := binary.Read(r, binary.LittleEndian, centroids); err != nil {
		return nil, err
	}
	coarse := &CoarseQuantizer{dim: p.Dimension, nlist: p.NList, centroids: centroids}

	pq := &ProductQuantizer{
		dim:       p.Dimension,
		m:         p.M,
		nbits:     p.NBits,
		subDim:    p.SubDim(),
		ksub:      p.KSub(),
		codebooks: make([][]float32, p.M),
	}
	if uint64(p.KSub()) > uint64(r.Len())/4/uint64(p.Dimension) {
		return nil, errors.New("corrupt artifact: codebook block exceeds payload")
	}
	for s := range pq.codebooks {
		cb := make([]float32, pq.ksub*pq.subDim)
		if err := binary.Read(r, binary.LittleEndian, cb); err != nil {
			return nil, err
		}
		pq.codebooks[s] = cb
	}

	lists := NewInvertedLists(p.NList, pq.CodeSize())
	var total uint64
	for cell := 0; cell < p.NList; cell++ {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		if uint64(n) > uint64(r.Len())/uint64(8+pq.CodeSize()) {
			return nil, fmt.Errorf("corrupt artifact: cell %d exceeds payload", cell)
		}
		ids := make([]int64, n)
		if err := binary.Read(r, binary.LittleEndian, ids); err != nil {
			return nil, err
		}
		codes := make([]byte, int(n)*pq.CodeSize())
		if _, err := io.ReadFull(r, codes); err != nil {
			return nil, err
		}
		lists.ids[cell] = ids
		lists.codes[cell] = codes
		total += uint64(n)
	}

	if total != count {
		return nil, fmt.Errorf("corrupt artifact: header count %d, lists hold %d", count, total)
	}

	return &Index{
		params: p,
		coarse: coarse,
		pq:     pq,
		lists:  lists,
		count:  int(count),
		state:  StatePopulated,
	}, nil
}
