// Package escpos builds raw command buffers for thermal line printers.
// Commands accumulate as ordered fragments and are flattened once by
// Serialize, so a receipt can be composed incrementally and shipped to a
// printer bridge (or base64-encoded over HTTP) as a single byte sequence.
package escpos

import "strings"

const (
	esc = 0x1b
	gs  = 0x1d
)

type Alignment byte

const (
	AlignLeft   Alignment = 0x00
	AlignCenter Alignment = 0x01
	AlignRight  Alignment = 0x02
)

type Symbology int

const (
	SymbologyUPCA Symbology = iota
	SymbologyUPCE
	SymbologyEAN13
	SymbologyEAN8
	SymbologyCode39
	SymbologyITF
	SymbologyCodabar
	SymbologyCode93
	SymbologyCode128
)

// barcodeType maps a symbology onto the GS k "function B" type code.
// Anything unrecognized prints as CODE128, the densest default.
func barcodeType(sym Symbology) byte {
	switch sym {
	case SymbologyUPCA:
		return 65
	case SymbologyUPCE:
		return 66
	case SymbologyEAN13:
		return 67
	case SymbologyEAN8:
		return 68
	case SymbologyCode39:
		return 69
	case SymbologyITF:
		return 70
	case SymbologyCodabar:
		return 71
	case SymbologyCode93:
		return 72
	default:
		return 73
	}
}

type Builder struct {
	frags [][]byte
}

func NewBuilder() *Builder {
	return &Builder{frags: make([][]byte, 0, 32)}
}

func (b *Builder) push(frag []byte) *Builder {
	b.frags = append(b.frags, frag)
	return b
}

// Init resets the printer state (ESC @).
func (b *Builder) Init() *Builder {
	return b.push([]byte{esc, 0x40})
}

// Size sets the character size multiplier. Each axis is clamped to 1..8 and
// both are packed into a single byte as (width<<4)|height.
func (b *Builder) Size(width int, height int) *Builder {
	return b.push([]byte{gs, 0x21, byte(clampAxis(width)<<4 | clampAxis(height))})
}

func (b *Builder) Align(a Alignment) *Builder {
	return b.push([]byte{esc, 0x61, byte(a)})
}

func (b *Builder) Bold(on bool) *Builder {
	v := byte(0x00)
	if on {
		v = 0x01
	}
	return b.push([]byte{esc, 0x45, v})
}

// Text appends the literal string followed by a line feed.
func (b *Builder) Text(s string) *Builder {
	return b.push(append([]byte(s), '\n'))
}

func (b *Builder) Feed(lines int) *Builder {
	if lines < 1 {
		lines = 1
	}
	frag := make([]byte, lines)
	for i := range frag {
		frag[i] = '\n'
	}
	return b.push(frag)
}

func (b *Builder) Separator(ch byte, width int) *Builder {
	if width < 1 {
		width = 32
	}
	frag := make([]byte, width+1)
	for i := 0; i < width; i++ {
		frag[i] = ch
	}
	frag[width] = '\n'
	return b.push(frag)
}

// Barcode appends a GS k function B barcode with a one-byte length prefix.
func (b *Builder) Barcode(sym Symbology, data string) *Builder {
	payload := []byte(data)
	frag := make([]byte, 0, len(payload)+4)
	frag = append(frag, gs, 0x6b, barcodeType(sym), byte(len(payload)))
	frag = append(frag, payload...)
	return b.push(frag)
}

// QR appends the GS ( k command triple for a model-2 QR code: store the
// payload, set the module size, trigger the print. The store command's
// length field covers the payload plus the three header bytes (cn fn m),
// split into low and high bytes.
func (b *Builder) QR(payload string) *Builder {
	data := []byte(payload)
	storeLen := len(data) + 3
	pL := byte(storeLen & 0xff)
	pH := byte(storeLen >> 8)

	storeCmd := make([]byte, 0, len(data)+8)
	storeCmd = append(storeCmd, gs, 0x28, 0x6b, pL, pH, 0x31, 0x50, 0x30)
	storeCmd = append(storeCmd, data...)
	b.push(storeCmd)
	b.push([]byte{gs, 0x28, 0x6b, 0x03, 0x00, 0x31, 0x43, 0x06})
	return b.push([]byte{gs, 0x28, 0x6b, 0x03, 0x00, 0x31, 0x51, 0x30})
}

func (b *Builder) PartialCut() *Builder {
	return b.push([]byte{gs, 0x56, 0x42, 0x00})
}

func (b *Builder) FullCut() *Builder {
	return b.push([]byte{gs, 0x56, 0x41, 0x10})
}

// Serialize flattens every appended fragment into one buffer. The builder
// keeps its fragments, so Serialize can be called more than once.
func (b *Builder) Serialize() []byte {
	size := 0
	for _, frag := range b.frags {
		size += len(frag)
	}
	out := make([]byte, 0, size)
	for _, frag := range b.frags {
		out = append(out, frag...)
	}
	return out
}

func (b *Builder) Reset() *Builder {
	b.frags = b.frags[:0]
	return b
}

func clampAxis(v int) int {
	if v < 1 {
		return 1
	}
	if v > 8 {
		return 8
	}
	return v
}

// PadLine left-aligns a label and right-aligns a value within the given
// width, the usual two-column receipt layout.
func PadLine(label string, value string, width int) string {
	gap := width - len(label) - len(value)
	if gap < 1 {
		gap = 1
	}
	return label + strings.Repeat(" ", gap) + value
}
