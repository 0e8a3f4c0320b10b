package ir

import "fmt"

// MemoryLocation is a bit-addressed slice of some domain: an architectural
// register, the shared machine-memory domain, or a synthetic temporary.
// Domain 0 is reserved for machine memory (see arch.MemoryDomain); every
// register and temporary gets its own domain so that two locations overlap
// only when they really alias.
type MemoryLocation struct {
	Domain    int32
	OffsetBits int64
	SizeBits   int64
}

// NewMemoryLocation builds a location, panicking if sizeBits is not
// positive — a non-positive size is a data-model invariant violation,
// not a recoverable condition.
func NewMemoryLocation(domain int32, offsetBits, sizeBits int64) MemoryLocation {
	if sizeBits <= 0 {
		panic(fmt.Sprintf("ir: non-positive size in memory location (domain=%d offset=%d size=%d)", domain, offsetBits, sizeBits))
	}
	return MemoryLocation{Domain: domain, OffsetBits: offsetBits, SizeBits: sizeBits}
}

// IsValid reports whether the location was ever constructed (as opposed to
// the zero value used for "no location").
func (m MemoryLocation) IsValid() bool { return m.SizeBits > 0 }

// End returns the bit offset one past the end of the location.
func (m MemoryLocation) End() int64 { return m.OffsetBits + m.SizeBits }

// Overlaps reports whether m and other share any bits. Locations in
// different domains never overlap.
func (m MemoryLocation) Overlaps(other MemoryLocation) bool {
	if m.Domain != other.Domain {
		return false
	}
	return m.OffsetBits < other.End() && other.OffsetBits < m.End()
}

// Contains reports whether other's bit interval is contained in m's.
func (m MemoryLocation) Contains(other MemoryLocation) bool {
	if m.Domain != other.Domain {
		return false
	}
	return m.OffsetBits <= other.OffsetBits && other.End() <= m.End()
}

// Equals reports whether m and other describe the same bits.
func (m MemoryLocation) Equals(other MemoryLocation) bool {
	return m.Domain == other.Domain && m.OffsetBits == other.OffsetBits && m.SizeBits == other.SizeBits
}

// ErrCrossDomainMerge is the CoreFatal condition raised when Merge is asked
// to combine locations in different domains. The original C++ implementation
// silently returned an invalid location here; this port instead treats it
// as the invariant violation it actually is.
type ErrCrossDomainMerge struct {
	A, B MemoryLocation
}

func (e *ErrCrossDomainMerge) Error() string {
	return fmt.Sprintf("ir: cannot merge memory locations in different domains (%d, %d)", e.A.Domain, e.B.Domain)
}

// Merge returns the smallest location covering both m and other. Merging
// across domains is a CoreFatal invariant violation; see ErrCrossDomainMerge.
func Merge(m, other MemoryLocation) (MemoryLocation, error) {
	if m.Domain != other.Domain {
		return MemoryLocation{}, &ErrCrossDomainMerge{A: m, B: other}
	}
	lo := m.OffsetBits
	if other.OffsetBits < lo {
		lo = other.OffsetBits
	}
	hi := m.End()
	if other.End() > hi {
		hi = other.End()
	}
	return MemoryLocation{Domain: m.Domain, OffsetBits: lo, SizeBits: hi - lo}, nil
}

// String renders the location as domain:offset:size for diagnostics.
func (m MemoryLocation) String() string {
	return fmt.Sprintf("d%d+%d:%d", m.Domain, m.OffsetBits, m.SizeBits)
}
