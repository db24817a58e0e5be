package texture

import "errors"

// ErrClosed is returned by Register after Close.
var ErrClosed = errors.New("texture: registry closed")
