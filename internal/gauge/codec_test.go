package gauge

import (
	"encoding/binary"
	"testing"

	"github.com/boxboy523/inzi/internal/log"
)

func init() {
	log.Init(true)
}

// buildFrame assembles one response frame for the default layout.
func buildFrame(machineID, status, endCode uint16, values [][2]int16) []byte {
	layout := DefaultLayout()
	payload := layout.minFrameSize() - headerSize
	frame := make([]byte, headerSize+payload)
	binary.LittleEndian.PutUint16(frame[lengthOffset:], uint16(payload))
	binary.LittleEndian.PutUint16(frame[layout.EndCodeOffset:], endCode)
	binary.LittleEndian.PutUint16(frame[layout.MachineIDOffset:], machineID)
	binary.LittleEndian.PutUint16(frame[layout.StatusOffset:], status)
	for i, v := range values {
		off := layout.ValueOffsets[i]
		binary.LittleEndian.PutUint16(frame[off:], uint16(v[0]))
		binary.LittleEndian.PutUint16(frame[off+2:], uint16(v[1]))
	}
	return frame
}

func TestCodecDecodesFrame(t *testing.T) {
	codec := NewCodec(DefaultLayout())

	frames := codec.Feed(buildFrame(3, 1, 0, [][2]int16{{48, 15}, {47, 9985}}))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}

	frame := frames[0]
	if frame.MachineID != 3 {
		t.Errorf("machine ID: got %d, want 3", frame.MachineID)
	}
	if !frame.Complete {
		t.Error("expected completion flag set for status 1")
	}
	if len(frame.Values) != 2 {
		t.Fatalf("expected 2 values, got %d", len(frame.Values))
	}
	if frame.Values[0] != 480015 {
		t.Errorf("value 0: got %d, want 480015", frame.Values[0])
	}
	if frame.Values[1] != 479985 {
		t.Errorf("value 1: got %d, want 479985", frame.Values[1])
	}
}

func TestCodecNegativeValue(t *testing.T) {
	codec := NewCodec(DefaultLayout())

	frames := codec.Feed(buildFrame(1, 0, 0, [][2]int16{{-1, -2500}, {0, 0}}))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Complete {
		t.Error("status 0 must not read as complete")
	}
	if frames[0].Values[0] != -12500 {
		t.Errorf("value 0: got %d, want -12500", frames[0].Values[0])
	}
}

func TestCodecSplitDelivery(t *testing.T) {
	codec := NewCodec(DefaultLayout())
	frame := buildFrame(2, 1, 0, [][2]int16{{48, 0}, {48, 0}})

	// Byte-at-a-time delivery must produce exactly one frame at the end.
	var got []Frame
	for _, b := range frame {
		got = append(got, codec.Feed([]byte{b})...)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 frame after full delivery, got %d", len(got))
	}
	if got[0].MachineID != 2 {
		t.Errorf("machine ID: got %d, want 2", got[0].MachineID)
	}
}

func TestCodecMultipleFramesOneRead(t *testing.T) {
	codec := NewCodec(DefaultLayout())
	buf := append(buildFrame(1, 0, 0, [][2]int16{{10, 0}, {20, 0}}),
		buildFrame(1, 1, 0, [][2]int16{{30, 0}, {40, 0}})...)

	frames := codec.Feed(buf)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Complete || !frames[1].Complete {
		t.Errorf("completion flags: got %v/%v, want false/true", frames[0].Complete, frames[1].Complete)
	}
}

func TestCodecDropsErrorFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{
			name:  "non-zero end code",
			frame: buildFrame(1, 1, 0xC051, [][2]int16{{48, 0}, {48, 0}}),
		},
		{
			name: "payload shorter than layout",
			frame: func() []byte {
				short := make([]byte, headerSize+10)
				binary.LittleEndian.PutUint16(short[lengthOffset:], 10)
				return short
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec := NewCodec(DefaultLayout())
			if frames := codec.Feed(tt.frame); len(frames) != 0 {
				t.Fatalf("expected frame to be dropped, got %d frame(s)", len(frames))
			}

			// The stream must stay in sync: a good frame after the bad
			// one still decodes.
			frames := codec.Feed(buildFrame(7, 1, 0, [][2]int16{{48, 0}, {48, 0}}))
			if len(frames) != 1 || frames[0].MachineID != 7 {
				t.Fatalf("stream desynchronized after dropped frame: %+v", frames)
			}
		})
	}
}
