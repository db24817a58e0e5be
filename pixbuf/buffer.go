package pixbuf

import (
	"errors"
	"image/color"
	"sync"
)

// Common errors for buffer and conversion operations.
var (
	// ErrInvalidDimensions is returned when width or height is below 1.
	ErrInvalidDimensions = errors.New("pixbuf: invalid dimensions")

	// ErrInvalidFormat is returned when the snapshot format is not recognized.
	ErrInvalidFormat = errors.New("pixbuf: invalid format")

	// ErrInvalidStride is returned when stride is less than width*4.
	ErrInvalidStride = errors.New("pixbuf: stride too small for width")

	// ErrDataTooSmall is returned when snapshot data is shorter than stride*height.
	ErrDataTooSmall = errors.New("pixbuf: data buffer too small")
)

// Frame is an immutable RGBA8 image: len(Pix) == Width*Height*4.
type Frame struct {
	Pix    []byte
	Width  int32
	Height int32
}

// Valid reports whether the frame satisfies the length invariant.
func (f Frame) Valid() bool {
	return f.Width >= 1 && f.Height >= 1 && len(f.Pix) == int(f.Width)*int(f.Height)*BytesPerPixel
}

// fallback is served when no frame is stored: one opaque black pixel.
var fallback = Frame{Pix: []byte{0, 0, 0, 255}, Width: 1, Height: 1}

// Fallback returns the built-in 1×1 frame.
func Fallback() Frame {
	return fallback
}

// Allocate returns a zero-filled frame of width×height.
func Allocate(width, height int32) (Frame, error) {
	if width < 1 || height < 1 {
		return Frame{}, ErrInvalidDimensions
	}
	return Frame{
		Pix:    make([]byte, int(width)*int(height)*BytesPerPixel),
		Width:  width,
		Height: height,
	}, nil
}

// Fill returns a frame of width×height painted with c.
func Fill(width, height int32, c color.RGBA) (Frame, error) {
	f, err := Allocate(width, height)
	if err != nil {
		return Frame{}, err
	}
	for i := 0; i < len(f.Pix); i += BytesPerPixel {
		f.Pix[i] = c.R
		f.Pix[i+1] = c.G
		f.Pix[i+2] = c.B
		f.Pix[i+3] = c.A
	}
	return f, nil
}

// Buffer is the owned store for the current frame. View may be called from
// any goroutine concurrently with Replace and Release.
type Buffer struct {
	mu    sync.RWMutex
	frame Frame
	set   bool
}

// NewBuffer creates a buffer holding f.
func NewBuffer(f Frame) *Buffer {
	b := &Buffer{}
	b.Replace(f)
	return b
}

// Replace swaps the stored frame and its dimensions in one step. The old
// frame is dropped, not overwritten, so earlier views stay intact.
func (b *Buffer) Replace(f Frame) {
	b.mu.Lock()
	b.frame = f
	b.set = true
	b.mu.Unlock()
}

// View returns the stored frame without copying. A released or empty buffer
// yields the 1×1 fallback, never an empty frame.
func (b *Buffer) View() Frame {
	if b == nil {
		return fallback
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.set {
		return fallback
	}
	return b.frame
}

// Size returns the stored dimensions, or 0,0 if nothing is stored.
func (b *Buffer) Size() (width, height int32) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.set {
		return 0, 0
	}
	return b.frame.Width, b.frame.Height
}

// Release drops the stored frame. Safe to call more than once.
func (b *Buffer) Release() {
	b.mu.Lock()
	b.frame = Frame{}
	b.set = false
	b.mu.Unlock()
}
