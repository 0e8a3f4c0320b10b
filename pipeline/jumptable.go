package pipeline

import "github.com/Urethramancer/ncdec/image"

// ImageJumpTableResolver reads switch jump tables directly out of the
// byte image, implementing cflow.SwitchResolver by enumerating cases from
// the table's entries via the section interface.
type ImageJumpTableResolver struct {
	Image        *image.Image
	EntryWidth   int // bytes per table entry: 4 or 8
	RelativeBase uint64 // 0 for absolute tables, image base for PC-relative ones
}

// ReadJumpTable reads count consecutive entries starting at tableAddr,
// returning the resolved absolute target addresses.
func (r *ImageJumpTableResolver) ReadJumpTable(tableAddr uint64, count int) ([]uint64, bool) {
	if r.Image == nil || count <= 0 {
		return nil, false
	}
	out := make([]uint64, 0, count)
	for i := 0; i < count; i++ {
		addr := image.Address(tableAddr + uint64(i*r.EntryWidth))
		var raw uint64
		var err error
		switch r.EntryWidth {
		case 4:
			var v uint32
			v, err = r.Image.ReadU32(addr)
			raw = uint64(v)
		case 8:
			raw, err = r.Image.ReadU64(addr)
		default:
			return nil, false
		}
		if err != nil {
			return nil, false
		}
		out = append(out, r.RelativeBase+raw)
	}
	return out, true
}
