package starfocus

import (
	"fmt"
	"math/bits"
)

const wordBits = 32

// BitMatrix is a dense d0 x d1 boolean matrix with the bits of each row
// packed into 32-bit words along dimension 1. It is not safe for concurrent
// mutation.
type BitMatrix struct {
	d0, d1   int
	rowWords int
	words    []uint32
}

// NewBitMatrix allocates a cleared d0 x d1 matrix.
func NewBitMatrix(d0, d1 int) *BitMatrix {
	if d0 < 0 || d1 < 0 {
		panic(fmt.Sprintf("bitmatrix: negative dimensions %dx%d", d0, d1))
	}
	rowWords := (d1 + wordBits - 1) / wordBits
	return &BitMatrix{
		d0:       d0,
		d1:       d1,
		rowWords: rowWords,
		words:    make([]uint32, d0*rowWords),
	}
}

// Dims returns the matrix dimensions.
func (m *BitMatrix) Dims() (int, int) { return m.d0, m.d1 }

func (m *BitMatrix) checkIndex(i, j int) {
	if i < 0 || i >= m.d0 || j < 0 || j >= m.d1 {
		panic(fmt.Sprintf("bitmatrix: index (%d,%d) out of range %dx%d", i, j, m.d0, m.d1))
	}
}

func (m *BitMatrix) checkRange(i, start, end int) {
	if i < 0 || i >= m.d0 || start < 0 || end > m.d1 || start > end {
		panic(fmt.Sprintf("bitmatrix: range %d[%d:%d] out of range %dx%d", i, start, end, m.d0, m.d1))
	}
}

// Get reports whether bit (i, j) is set.
func (m *BitMatrix) Get(i, j int) bool {
	m.checkIndex(i, j)
	w := m.words[i*m.rowWords+j/wordBits]
	return w&(1<<uint(j%wordBits)) != 0
}

// Set sets bit (i, j) to v.
func (m *BitMatrix) Set(i, j int, v bool) {
	m.checkIndex(i, j)
	idx := i*m.rowWords + j/wordBits
	mask := uint32(1) << uint(j%wordBits)
	if v {
		m.words[idx] |= mask
	} else {
		m.words[idx] &^= mask
	}
}

// rangeMask returns the mask of bits [lo, hi) within a single word, 0 <= lo < hi <= 32.
func rangeMask(lo, hi int) uint32 {
	var upper uint32 = 0xFFFFFFFF
	if hi < wordBits {
		upper = (uint32(1) << uint(hi)) - 1
	}
	return upper &^ ((uint32(1) << uint(lo)) - 1)
}

// SetRange sets bits [start, end) of row i to v.
func (m *BitMatrix) SetRange(i, start, end int, v bool) {
	m.checkRange(i, start, end)
	if start == end {
		return
	}
	row := m.words[i*m.rowWords : (i+1)*m.rowWords]
	first, last := start/wordBits, (end-1)/wordBits
	for w := first; w <= last; w++ {
		lo, hi := 0, wordBits
		if w == first {
			lo = start % wordBits
		}
		if w == last {
			hi = (end-1)%wordBits + 1
		}
		mask := rangeMask(lo, hi)
		if v {
			row[w] |= mask
		} else {
			row[w] &^= mask
		}
	}
}

// GetRange reports whether every bit in [start, end) of row i is set.
// An empty range is vacuously set.
func (m *BitMatrix) GetRange(i, start, end int) bool {
	m.checkRange(i, start, end)
	if start == end {
		return true
	}
	row := m.words[i*m.rowWords : (i+1)*m.rowWords]
	first, last := start/wordBits, (end-1)/wordBits
	for w := first; w <= last; w++ {
		lo, hi := 0, wordBits
		if w == first {
			lo = start % wordBits
		}
		if w == last {
			hi = (end-1)%wordBits + 1
		}
		mask := rangeMask(lo, hi)
		if row[w]&mask != mask {
			return false
		}
	}
	return true
}

// CountRange returns the number of set bits in [start, end) of row i.
func (m *BitMatrix) CountRange(i, start, end int) int {
	m.checkRange(i, start, end)
	if start == end {
		return 0
	}
	row := m.words[i*m.rowWords : (i+1)*m.rowWords]
	first, last := start/wordBits, (end-1)/wordBits
	n := 0
	for w := first; w <= last; w++ {
		lo, hi := 0, wordBits
		if w == first {
			lo = start % wordBits
		}
		if w == last {
			hi = (end-1)%wordBits + 1
		}
		n += bits.OnesCount32(row[w] & rangeMask(lo, hi))
	}
	return n
}

// ClearAll resets every bit.
func (m *BitMatrix) ClearAll() {
	clear(m.words)
}

// SetAll sets every bit. Padding bits past d1 in the last word of each row
// stay clear so CountRange and GetRange never observe them.
func (m *BitMatrix) SetAll() {
	for i := 0; i < m.d0; i++ {
		m.SetRange(i, 0, m.d1, true)
	}
}

// markDisk sets every bit within radius r of (cx, cy), clipped to the
// matrix. Rows are indexed by y (dimension 0) and columns by x.
func (m *BitMatrix) markDisk(cx, cy, r int) {
	r2 := r * r
	for dy := -r; dy <= r; dy++ {
		y := cy + dy
		if y < 0 || y >= m.d0 {
			continue
		}
		// widest dx with dx*dx + dy*dy <= r*r
		half := 0
		for (half+1)*(half+1)+dy*dy <= r2 {
			half++
		}
		lo, hi := cx-half, cx+half+1
		if lo < 0 {
			lo = 0
		}
		if hi > m.d1 {
			hi = m.d1
		}
		if lo < hi {
			m.SetRange(y, lo, hi, true)
		}
	}
}
