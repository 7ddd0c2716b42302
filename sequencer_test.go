package modmix

import (
	"fmt"
	"strings"
	"testing"

	"github.com/quasilyte/modmix/modfile"
)

type rowInfo struct {
	order int
	row   int
	ticks int
}

func (r rowInfo) String() string { return fmt.Sprintf("%d:%d/%d", r.order, r.row, r.ticks) }

// playRows runs the sequencer and returns at most maxRows played rows.
func playRows(s *sequencer, maxRows int) []rowInfo {
	var rows []rowInfo
	for {
		pos, ok := s.nextTick()
		if !ok {
			return rows
		}
		if pos.tick == 0 {
			if len(rows) == maxRows {
				return rows
			}
			rows = append(rows, rowInfo{order: pos.order, row: pos.row})
		}
		rows[len(rows)-1].ticks++
	}
}

func formatRows(rows []rowInfo) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = r.String()
	}
	return strings.Join(parts, " ")
}

func effectNote(command, data uint8) modfile.Note {
	return modfile.Note{Effect: modfile.Effect{Command: command, Data: data}}
}

func TestSequencerPlain(t *testing.T) {
	m := newTestModule(2)
	var s sequencer
	s.reset(m, defaultSpeed, defaultBPM)

	rows := playRows(&s, 1000)
	if len(rows) != 2*modfile.NumDivisions {
		t.Fatalf("played %d rows, want %d", len(rows), 2*modfile.NumDivisions)
	}
	for i, r := range rows {
		want := rowInfo{order: i / modfile.NumDivisions, row: i % modfile.NumDivisions, ticks: defaultSpeed}
		if r != want {
			t.Fatalf("row %d: got %s, want %s", i, r, want)
		}
	}
	if _, ok := s.nextTick(); ok {
		t.Fatal("the sequencer continues after the song end")
	}
}

func TestSequencerEmptySong(t *testing.T) {
	m := newTestModule(1)
	m.SongLength = 0
	var s sequencer
	s.loop = true
	s.reset(m, defaultSpeed, defaultBPM)
	if _, ok := s.nextTick(); ok {
		t.Fatal("an empty song produced a tick")
	}
}

func TestSequencerEffects(t *testing.T) {
	type cell struct {
		pattern int
		row     int
		ch      int
		note    modfile.Note
	}

	tests := []struct {
		name     string
		patterns int
		cells    []cell
		loop     bool
		maxRows  int
		want     string
	}{
		{
			name:     "pattern break",
			patterns: 2,
			cells:    []cell{{0, 1, 2, effectNote(0xD, 0x10)}},
			maxRows:  4,
			want:     "0:0/6 0:1/6 1:10/6 1:11/6",
		},
		{
			name:     "pattern break out of range",
			patterns: 2,
			cells:    []cell{{0, 0, 0, effectNote(0xD, 0x64)}},
			maxRows:  2,
			want:     "0:0/6 1:0/6",
		},
		{
			name:     "position jump",
			patterns: 3,
			cells:    []cell{{0, 0, 1, effectNote(0xB, 2)}},
			maxRows:  2,
			want:     "0:0/6 2:0/6",
		},
		{
			name:     "position jump with break",
			patterns: 3,
			cells: []cell{
				{0, 0, 0, effectNote(0xB, 2)},
				{0, 0, 1, effectNote(0xD, 0x05)},
			},
			maxRows: 2,
			want:    "0:0/6 2:5/6",
		},
		{
			name:     "backward jump with looping",
			patterns: 2,
			cells:    []cell{{0, 2, 0, effectNote(0xB, 0)}},
			loop:     true,
			maxRows:  5,
			want:     "0:0/6 0:1/6 0:2/6 0:0/6 0:1/6",
		},
		{
			name:     "set speed",
			patterns: 1,
			cells: []cell{
				{0, 0, 0, effectNote(0xF, 3)},
				{0, 2, 0, effectNote(0xF, 0)},
			},
			maxRows: 3,
			want:    "0:0/3 0:1/3 0:2/3",
		},
		{
			name:     "pattern loop",
			patterns: 1,
			cells: []cell{
				{0, 1, 0, effectNote(0xE, 0x60)},
				{0, 2, 0, effectNote(0xE, 0x62)},
			},
			maxRows: 8,
			want:    "0:0/6 0:1/6 0:2/6 0:1/6 0:2/6 0:1/6 0:2/6 0:3/6",
		},
		{
			name:     "pattern delay",
			patterns: 1,
			cells: []cell{
				{0, 0, 0, effectNote(0xF, 2)},
				{0, 0, 1, effectNote(0xE, 0xE2)},
				{0, 0, 2, effectNote(0xE, 0xE5)},
			},
			maxRows: 2,
			want:    "0:0/6 0:1/2",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := newTestModule(test.patterns)
			for _, c := range test.cells {
				setNote(m, c.pattern, c.row, c.ch, c.note)
			}
			var s sequencer
			s.loop = test.loop
			s.reset(m, defaultSpeed, defaultBPM)
			rows := playRows(&s, test.maxRows)
			if have := formatRows(rows); have != test.want {
				t.Fatalf("rows mismatch:\nhave: %s\nwant: %s", have, test.want)
			}
		})
	}
}

func TestSequencerBackwardJump(t *testing.T) {
	m := newTestModule(2)
	setNote(m, 1, 1, 0, effectNote(0xB, 0))

	var s sequencer
	s.reset(m, 1, defaultBPM)
	rows := playRows(&s, 1000)

	// The whole first pattern and two rows of the second one.
	if len(rows) != modfile.NumDivisions+2 {
		t.Fatalf("played %d rows, want %d", len(rows), modfile.NumDivisions+2)
	}
	if last := rows[len(rows)-1]; last != (rowInfo{order: 1, row: 1, ticks: 1}) {
		t.Fatalf("last row is %s", last)
	}
}

func TestSequencerTempo(t *testing.T) {
	m := newTestModule(1)
	setNote(m, 0, 1, 0, effectNote(0xF, 0x80))
	setNote(m, 0, 2, 0, effectNote(0xF, 0xFF))

	var s sequencer
	s.reset(m, defaultSpeed, defaultBPM)
	wantBPM := []int{defaultBPM, 0x80, 0xFF}
	for row, want := range wantBPM {
		for tick := 0; tick < defaultSpeed; tick++ {
			pos, ok := s.nextTick()
			if !ok {
				t.Fatal("unexpected song end")
			}
			if pos.row != row {
				t.Fatalf("row=%d, want %d", pos.row, row)
			}
		}
		if s.bpm != want {
			t.Fatalf("row %d: bpm=%d, want %d", row, s.bpm, want)
		}
	}
}

func TestSequencerRestartPoint(t *testing.T) {
	m := newTestModule(2)
	m.RestartPoint = 1
	setNote(m, 1, 1, 0, effectNote(0xD, 0))

	var s sequencer
	s.loop = true
	s.reset(m, 1, defaultBPM)
	rows := playRows(&s, modfile.NumDivisions+4)

	have := formatRows(rows[modfile.NumDivisions:])
	want := "1:0/1 1:1/1 1:0/1 1:1/1"
	if have != want {
		t.Fatalf("rows mismatch:\nhave: %s\nwant: %s", have, want)
	}
}

func TestSequencerRowLimit(t *testing.T) {
	m := newTestModule(1)
	var s sequencer
	s.rowLimit = 1
	s.reset(m, 10, defaultBPM)

	rows := playRows(&s, 1000)
	if have, want := formatRows(rows), "0:0/10"; have != want {
		t.Fatalf("rows mismatch:\nhave: %s\nwant: %s", have, want)
	}
}

func TestSequencerLongSong(t *testing.T) {
	data := make([]byte, modfile.HeaderSize+modfile.NumDivisions*modfile.DefaultChannels*modfile.NoteSize)
	data[950] = 200
	m, err := modfile.NewParser(modfile.ParserConfig{}).ParseFromBytes(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	tests := []struct {
		name    string
		jump    uint8
		loop    bool
		maxRows int
		want    string
	}{
		{name: "jump past the order table", jump: 0x82, want: "0:0/1"},
		{name: "jump to the order table end", jump: modfile.OrderTableSize, want: "0:0/1"},
		{name: "jump past the order table with looping", jump: 0x82, loop: true, maxRows: 3, want: "0:0/1 0:0/1 0:0/1"},
		{name: "jump to the last order", jump: modfile.OrderTableSize - 1, maxRows: 2, want: "0:0/1 127:0/1"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m.Patterns[0].Divisions[0].Notes[0] = effectNote(0xB, test.jump)
			var s sequencer
			s.loop = test.loop
			s.reset(m, 1, defaultBPM)
			maxRows := test.maxRows
			if maxRows == 0 {
				maxRows = 1000
			}
			rows := playRows(&s, maxRows)
			if have := formatRows(rows); have != test.want {
				t.Fatalf("rows mismatch:\nhave: %s\nwant: %s", have, test.want)
			}
		})
	}
}

func TestSequencerLongSongEnd(t *testing.T) {
	data := make([]byte, modfile.HeaderSize+modfile.NumDivisions*modfile.DefaultChannels*modfile.NoteSize)
	data[950] = 255
	data[951] = 200
	m, err := modfile.NewParser(modfile.ParserConfig{}).ParseFromBytes(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	// Every order position plays the same empty pattern;
	// the song stops at the order table end.
	var s sequencer
	s.reset(m, 1, defaultBPM)
	rows := playRows(&s, 1<<20)
	if want := modfile.OrderTableSize * modfile.NumDivisions; len(rows) != want {
		t.Fatalf("played %d rows, want %d", len(rows), want)
	}

	// An out of range restart point falls back to the song start.
	s = sequencer{loop: true}
	s.reset(m, 1, defaultBPM)
	rows = playRows(&s, modfile.OrderTableSize*modfile.NumDivisions+1)
	if last := rows[len(rows)-1]; last.order != 0 || last.row != 0 {
		t.Fatalf("the song restarted at %s", last)
	}
}
