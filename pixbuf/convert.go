package pixbuf

import (
	"image"

	"golang.org/x/image/draw"
)

// Snapshot is a point-in-time capture of a rendering surface in the
// engine's native layout. Stride may exceed Width*4 when rows are padded.
type Snapshot struct {
	Data   []byte
	Width  int32
	Height int32
	Stride int
	Format Format
}

// Convert produces a new RGBA8 frame from s. Channels are reordered only;
// premultiplied alpha is passed through untouched. The result never aliases
// s.Data.
func Convert(s Snapshot) (Frame, error) {
	if s.Width < 1 || s.Height < 1 {
		return Frame{}, ErrInvalidDimensions
	}
	if !s.Format.IsValid() {
		return Frame{}, ErrInvalidFormat
	}
	width, height := int(s.Width), int(s.Height)
	rowBytes := s.Format.RowBytes(width)
	stride := s.Stride
	if stride == 0 {
		stride = rowBytes
	}
	if stride < rowBytes {
		return Frame{}, ErrInvalidStride
	}
	if len(s.Data) < stride*(height-1)+rowBytes {
		return Frame{}, ErrDataTooSmall
	}

	out := make([]byte, rowBytes*height)
	order := s.Format.channelOrder()

	for y := 0; y < height; y++ {
		src := s.Data[y*stride : y*stride+rowBytes]
		dst := out[y*rowBytes : (y+1)*rowBytes]
		if order == swizzleRGBA {
			copy(dst, src)
			continue
		}
		for i := 0; i < rowBytes; i += BytesPerPixel {
			dst[i] = src[i+order[0]]
			dst[i+1] = src[i+order[1]]
			dst[i+2] = src[i+order[2]]
			dst[i+3] = src[i+order[3]]
		}
	}

	return Frame{Pix: out, Width: s.Width, Height: s.Height}, nil
}

// FromImage renders img into a premultiplied RGBA snapshot of width×height,
// scaling when the image size differs (e.g. a device pixel ratio above 1).
func FromImage(img image.Image, width, height int32) (Snapshot, error) {
	if width < 1 || height < 1 {
		return Snapshot{}, ErrInvalidDimensions
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	if img.Bounds().Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	return Snapshot{
		Data:   dst.Pix,
		Width:  width,
		Height: height,
		Stride: dst.Stride,
		Format: FormatRGBAPremul,
	}, nil
}

// Image wraps a frame as an *image.RGBA sharing its pixels.
func (f Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: int(f.Width) * BytesPerPixel,
		Rect:   image.Rect(0, 0, int(f.Width), int(f.Height)),
	}
}
