package modfile

import (
	"testing"
)

func TestDecodeNote(t *testing.T) {
	tests := []struct {
		cell [NoteSize]byte
		want Note
	}{
		{
			cell: [NoteSize]byte{0xA1, 0x23, 0x45, 0x67},
			want: Note{Instrument: 0xA4, Period: 0x123, Effect: Effect{Command: 0x5, Data: 0x67}},
		},
		{
			cell: [NoteSize]byte{0x11, 0xAC, 0xFC, 0x40},
			want: Note{Instrument: 0x1F, Period: 0x1AC, Effect: Effect{Command: 0xC, Data: 0x40}},
		},
		{
			cell: [NoteSize]byte{0x00, 0x00, 0x00, 0x00},
			want: Note{},
		},
		{
			cell: [NoteSize]byte{0x0F, 0xFF, 0x10, 0x00},
			want: Note{Instrument: 1, Period: 0xFFF},
		},
	}

	for _, test := range tests {
		have := DecodeNote(test.cell)
		if have != test.want {
			t.Errorf("DecodeNote(% x):\nhave: %+v\nwant: %+v", test.cell, have, test.want)
		}
		if cell := have.Encode(); cell != test.cell {
			t.Errorf("Encode(%+v) = % x, want % x", have, cell, test.cell)
		}
	}
}

func TestNoteEncodeRoundTrip(t *testing.T) {
	periods := []uint16{0, 1, 113, 428, 856, 0x800, 0xFFF}
	for inst := 0; inst <= 31; inst++ {
		for _, period := range periods {
			for cmd := 0; cmd <= 0xF; cmd++ {
				n := Note{
					Instrument: uint8(inst),
					Period:     period,
					Effect:     Effect{Command: uint8(cmd), Data: uint8(inst*7 + cmd)},
				}
				if have := DecodeNote(n.Encode()); have != n {
					t.Fatalf("round trip of %+v gives %+v", n, have)
				}
			}
		}
	}
}
