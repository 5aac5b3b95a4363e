// Package gauge implements the client side of the gauge head's binary
// protocol: framing, measurement extraction, completion-edge detection, and
// the connection lifecycle.
package gauge

import (
	"encoding/binary"

	"github.com/boxboy523/inzi/internal/log"
	"github.com/boxboy523/inzi/pkg/config"
)

const (
	// headerSize is the fixed response header length. The payload length
	// rides in the last two header bytes.
	headerSize   = 9
	lengthOffset = 7
)

// FrameLayout pins the byte positions of the fields we decode from a
// response payload. Offsets are from the start of the frame.
type FrameLayout struct {
	MachineIDOffset int
	StatusOffset    int
	EndCodeOffset   int
	CompleteCode    uint16
	ValueOffsets    []int
}

// DefaultLayout matches the register block of the deployed gauge model:
// machine id at D6000, completion flag at D6001, two measurement slots.
func DefaultLayout() FrameLayout {
	return FrameLayout{
		MachineIDOffset: 11,
		StatusOffset:    13,
		EndCodeOffset:   9,
		CompleteCode:    1,
		ValueOffsets:    []int{31, 35},
	}
}

// LayoutFromConfig builds a FrameLayout from configuration, falling back to
// the defaults for any position left unset.
func LayoutFromConfig(c config.FrameLayoutData) FrameLayout {
	layout := DefaultLayout()
	if c.MachineIDOffset != 0 {
		layout.MachineIDOffset = c.MachineIDOffset
	}
	if c.StatusOffset != 0 {
		layout.StatusOffset = c.StatusOffset
	}
	if c.EndCodeOffset != 0 {
		layout.EndCodeOffset = c.EndCodeOffset
	}
	if c.CompleteCode != 0 {
		layout.CompleteCode = uint16(c.CompleteCode)
	}
	if len(c.ValueOffsets) > 0 {
		layout.ValueOffsets = append([]int(nil), c.ValueOffsets...)
	}
	return layout
}

// minFrameSize is the smallest frame that contains every configured field.
func (l FrameLayout) minFrameSize() int {
	size := l.MachineIDOffset + 2
	if n := l.StatusOffset + 2; n > size {
		size = n
	}
	if n := l.EndCodeOffset + 2; n > size {
		size = n
	}
	for _, off := range l.ValueOffsets {
		if n := off + 4; n > size {
			size = n
		}
	}
	return size
}

// Frame is one decoded gauge response.
type Frame struct {
	MachineID uint16
	Status    uint16
	Complete  bool
	Values    []int32 // one per value slot, fixed-point OffsetScale units
}

// Codec splits an accumulating byte stream into frames and decodes them.
// One codec serves exactly one connection; reconnects start a fresh codec so
// no partial-frame state survives.
type Codec struct {
	layout FrameLayout
	buf    []byte
}

// NewCodec returns a codec for one connection.
func NewCodec(layout FrameLayout) *Codec {
	return &Codec{layout: layout}
}

// Feed appends received bytes and returns every complete, well-formed frame
// now available. Malformed and error frames are dropped, not returned.
func (c *Codec) Feed(p []byte) []Frame {
	c.buf = append(c.buf, p...)

	var frames []Frame
	for {
		if len(c.buf) < headerSize {
			return frames
		}
		length := int(binary.LittleEndian.Uint16(c.buf[lengthOffset : lengthOffset+2]))
		total := headerSize + length
		if len(c.buf) < total {
			return frames
		}
		raw := c.buf[:total]
		c.buf = c.buf[total:]

		if frame, ok := c.decode(raw); ok {
			frames = append(frames, frame)
		}
	}
}

// decode extracts one frame's fields. Frames shorter than the layout's
// minimum or carrying a non-zero end code are not protocol errors; they are
// dropped with a diagnostic so a glitching gauge cannot kill the connection.
func (c *Codec) decode(raw []byte) (Frame, bool) {
	if len(raw) < c.layout.minFrameSize() {
		log.Debugf("dropping short gauge frame: %d bytes, need %d", len(raw), c.layout.minFrameSize())
		return Frame{}, false
	}

	if endCode := binary.LittleEndian.Uint16(raw[c.layout.EndCodeOffset:]); endCode != 0 {
		log.Debugf("dropping gauge frame with end code 0x%04x", endCode)
		return Frame{}, false
	}

	frame := Frame{
		MachineID: binary.LittleEndian.Uint16(raw[c.layout.MachineIDOffset:]),
		Status:    binary.LittleEndian.Uint16(raw[c.layout.StatusOffset:]),
		Values:    make([]int32, 0, len(c.layout.ValueOffsets)),
	}
	frame.Complete = frame.Status == c.layout.CompleteCode

	for _, off := range c.layout.ValueOffsets {
		integer := int16(binary.LittleEndian.Uint16(raw[off:]))
		fractional := int16(binary.LittleEndian.Uint16(raw[off+2:]))
		frame.Values = append(frame.Values, int32(integer)*10000+int32(fractional))
	}

	return frame, true
}
