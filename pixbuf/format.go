// Package pixbuf holds the pixel side of the texture bridge: the committed
// RGBA8 frame shared with the compositor, and the conversion from the web
// engine's native snapshot formats.
//
// Every committed Frame is immutable. Readers get the backing slice without a
// copy; writers build a new Frame and swap it in.
package pixbuf

import "encoding/binary"

// Format is the pixel layout of an engine snapshot.
type Format uint8

const (
	// FormatARGB32 is a premultiplied 32-bit pixel stored as a host-endian
	// uint32 (0xAARRGGBB). Little-endian hosts store it as B,G,R,A.
	FormatARGB32 Format = iota

	// FormatBGRAPremul is premultiplied B,G,R,A bytes regardless of host.
	FormatBGRAPremul

	// FormatRGBAPremul is premultiplied R,G,B,A bytes, the output layout.
	FormatRGBAPremul

	formatCount
)

// BytesPerPixel is the size of one pixel in every supported format.
const BytesPerPixel = 4

// swizzle maps destination channel i (R,G,B,A) to a source byte offset.
type swizzle [4]int

var (
	swizzleBGRA = swizzle{2, 1, 0, 3}
	swizzleARGB = swizzle{1, 2, 3, 0}
	swizzleRGBA = swizzle{0, 1, 2, 3}
)

// hostLittleEndian reports the byte order FormatARGB32 is stored in.
var hostLittleEndian = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// IsValid returns true if the format is known.
func (f Format) IsValid() bool {
	return f < formatCount
}

// String returns a string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatARGB32:
		return "ARGB32"
	case FormatBGRAPremul:
		return "BGRAPremul"
	case FormatRGBAPremul:
		return "RGBAPremul"
	default:
		return "Unknown"
	}
}

// RowBytes returns the tightly packed row size for width pixels.
func (f Format) RowBytes(width int) int {
	return width * BytesPerPixel
}

// channelOrder resolves the byte mapping for f on this host.
func (f Format) channelOrder() swizzle {
	switch f {
	case FormatARGB32:
		if hostLittleEndian {
			return swizzleBGRA
		}
		return swizzleARGB
	case FormatBGRAPremul:
		return swizzleBGRA
	default:
		return swizzleRGBA
	}
}
