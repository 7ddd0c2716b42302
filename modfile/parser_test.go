package modfile

import (
	"bytes"
	"errors"
	"testing"
)

func newTestModule() *Module {
	m := &Module{
		Name:        "test song",
		Tag:         "M.K.",
		SongLength:  2,
		NumChannels: DefaultChannels,
	}
	m.PatternOrder[0] = 0
	m.PatternOrder[1] = 1
	m.Patterns = []Pattern{NewPattern(DefaultChannels), NewPattern(DefaultChannels)}
	m.Samples[0] = SampleInfo{
		Name:       "square",
		Length:     4,
		FineTune:   0x0F,
		Volume:     64,
		LoopStart:  0,
		LoopLength: 4,
		Data:       []int8{127, 127, -128, -128},
	}
	m.Samples[2] = SampleInfo{
		Name:   "ramp",
		Length: 6,
		Volume: 32,
		Data:   []int8{0, 1, 2, 3, 4, 5},
	}
	m.Patterns[1].Divisions[2].Notes[3] = Note{
		Instrument: 3,
		Period:     428,
		Effect:     Effect{Command: 0xC, Data: 0x20},
	}
	return m
}

func mustMarshal(t *testing.T, m *Module) []byte {
	t.Helper()
	data, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestParseZeroModule(t *testing.T) {
	data := make([]byte, HeaderSize+NumDivisions*DefaultChannels*NoteSize)
	m, err := NewParser(ParserConfig{}).ParseFromBytes(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Name != "" {
		t.Errorf("name = %q, want empty", m.Name)
	}
	if m.SongLength != 0 {
		t.Errorf("song length = %d, want 0", m.SongLength)
	}
	if len(m.Patterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(m.Patterns))
	}
	for i, s := range m.Samples {
		if s.Length != 0 || s.Volume != 0 || s.LoopStart != 0 || s.LoopLength != 0 || len(s.Data) != 0 {
			t.Errorf("sample[%d] = %+v, want zero", i, s)
		}
	}
	for i, d := range m.Patterns[0].Divisions {
		if len(d.Notes) != DefaultChannels {
			t.Fatalf("division[%d] has %d notes", i, len(d.Notes))
		}
		for j, n := range d.Notes {
			if !n.IsEmpty() {
				t.Errorf("division[%d].notes[%d] = %+v, want empty", i, j, n)
			}
		}
	}
}

func TestParseErrors(t *testing.T) {
	withOrder := func(id byte) []byte {
		data := make([]byte, HeaderSize+NumDivisions*DefaultChannels*NoteSize)
		data[952+5] = id
		return data
	}
	withSample := func() []byte {
		data := make([]byte, HeaderSize+NumDivisions*DefaultChannels*NoteSize+10)
		data[20+22] = 0
		data[20+23] = 6 // 12 bytes, only 10 present
		return data
	}

	tests := []struct {
		name   string
		data   []byte
		want   error
		offset int
	}{
		{"empty", nil, ErrTruncatedInput, 0},
		{"short header", make([]byte, HeaderSize-1), ErrTruncatedInput, 0},
		{"no patterns", make([]byte, HeaderSize), ErrCorruptHeader, HeaderSize},
		{"missing pattern", withOrder(3), ErrCorruptHeader, HeaderSize},
		{"missing sample data", withSample(), ErrCorruptHeader, HeaderSize + 1024},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m, err := NewParser(ParserConfig{}).ParseFromBytes(test.data)
			if m != nil {
				t.Fatalf("expected no module on error")
			}
			if !errors.Is(err, test.want) {
				t.Fatalf("error = %v, want %v", err, test.want)
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("error %T is not a *ParseError", err)
			}
			if parseErr.Offset != test.offset {
				t.Errorf("offset = %d, want %d", parseErr.Offset, test.offset)
			}
		})
	}
}

func TestParseTruncatedSamplesAllowed(t *testing.T) {
	data := make([]byte, HeaderSize+NumDivisions*DefaultChannels*NoteSize+10)
	data[20+23] = 6
	for i := HeaderSize + 1024; i < len(data); i++ {
		data[i] = 0xFF
	}

	m, err := NewParser(ParserConfig{AllowTruncatedSamples: true}).ParseFromBytes(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s := m.Samples[0]
	if s.Length != 10 || len(s.Data) != 10 {
		t.Fatalf("sample length = %d (%d data bytes), want 10", s.Length, len(s.Data))
	}
	if s.Data[9] != -1 {
		t.Errorf("data[9] = %d, want -1", s.Data[9])
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := newTestModule()
	data := mustMarshal(t, orig)

	m, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Name != orig.Name || m.Tag != "M.K." || m.SongLength != 2 {
		t.Fatalf("header mismatch: %q %q %d", m.Name, m.Tag, m.SongLength)
	}
	if len(m.Patterns) != 2 {
		t.Fatalf("patterns = %d, want 2", len(m.Patterns))
	}
	got := m.Patterns[1].Divisions[2].Notes[3]
	if got != orig.Patterns[1].Divisions[2].Notes[3] {
		t.Errorf("note = %+v, want %+v", got, orig.Patterns[1].Divisions[2].Notes[3])
	}
	square := m.Samples[0]
	if square.FineTune != 0x0F || square.SignedFineTune() != -1 {
		t.Errorf("finetune = %d (%d)", square.FineTune, square.SignedFineTune())
	}
	if !square.HasLoop() || square.LoopLength != 4 {
		t.Errorf("loop = %d+%d", square.LoopStart, square.LoopLength)
	}
	ramp := m.Samples[2]
	if ramp.Length != 6 || ramp.Data[5] != 5 || ramp.HasLoop() {
		t.Errorf("ramp = %+v", ramp)
	}

	again := mustMarshal(t, m)
	if !bytes.Equal(data, again) {
		t.Errorf("re-encoded module differs from the original")
	}
}

func TestPatternCountUsesWholeOrderTable(t *testing.T) {
	m := newTestModule()
	m.SongLength = 1
	m.PatternOrder[100] = 2
	m.Patterns = append(m.Patterns, NewPattern(DefaultChannels))
	m.Patterns[2].Divisions[63].Notes[0].Effect = Effect{Command: 0xF, Data: 3}

	parsed, err := NewParser(ParserConfig{}).ParseFromBytes(mustMarshal(t, m))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed.Patterns) != 3 {
		t.Fatalf("patterns = %d, want 3", len(parsed.Patterns))
	}
	if got := parsed.Patterns[2].Divisions[63].Notes[0].Effect; got.Command != 0xF || got.Data != 3 {
		t.Errorf("last note effect = %+v", got)
	}
	if parsed.Samples[2].Data[0] != 0 || parsed.Samples[2].Data[5] != 5 {
		t.Errorf("sample data is misplaced")
	}
	if parsed.OrderPattern(0) != &parsed.Patterns[0] {
		t.Errorf("order 0 should point to pattern 0")
	}
	if parsed.OrderPattern(1) != nil {
		t.Errorf("order 1 is beyond the song length")
	}
}

func TestParseNames(t *testing.T) {
	data := make([]byte, HeaderSize+NumDivisions*DefaultChannels*NoteSize)
	copy(data, "\x00AB\x00\x00C")
	copy(data[20:], "x\x00y")
	data[20+24] = 0xF7 // finetune, only the low nibble is used
	data[20+25] = 0xFF // volume is kept raw

	m, err := NewParser(ParserConfig{}).ParseFromBytes(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Name != "ABC" {
		t.Errorf("name = %q, want %q", m.Name, "ABC")
	}
	if m.Samples[0].Name != "xy" {
		t.Errorf("sample name = %q, want %q", m.Samples[0].Name, "xy")
	}
	if m.Samples[0].FineTune != 7 {
		t.Errorf("finetune = %d, want 7", m.Samples[0].FineTune)
	}
	if m.Samples[0].Volume != 0xFF {
		t.Errorf("volume = %d, want 255", m.Samples[0].Volume)
	}
}

func TestParseLoopBeyondSample(t *testing.T) {
	m := newTestModule()
	m.Samples[2].LoopStart = 4
	m.Samples[2].LoopLength = 100

	parsed, err := NewParser(ParserConfig{}).ParseFromBytes(mustMarshal(t, m))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s := parsed.Samples[2]; s.LoopStart+s.LoopLength <= s.Length {
		t.Errorf("loop fields were altered: %+v", s)
	}
}

func TestParserReuse(t *testing.T) {
	p := NewParser(ParserConfig{})
	first, err := p.ParseFromBytes(mustMarshal(t, newTestModule()))
	if err != nil {
		t.Fatal(err)
	}
	note := first.Patterns[1].Divisions[2].Notes[3]

	if _, err := p.ParseFromBytes(make([]byte, HeaderSize+1024)); err != nil {
		t.Fatal(err)
	}
	if first.Patterns[1].Divisions[2].Notes[3] != note {
		t.Errorf("second parse has overwritten the first module")
	}
}

func TestOrderPatternLongSong(t *testing.T) {
	// The song length byte can exceed the order table size.
	data := make([]byte, HeaderSize+NumDivisions*DefaultChannels*NoteSize)
	data[950] = 200
	m, err := NewParser(ParserConfig{}).ParseFromBytes(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.SongLength != 200 {
		t.Fatalf("song length = %d, want 200", m.SongLength)
	}

	tests := []struct {
		order int
		want  *Pattern
	}{
		{0, &m.Patterns[0]},
		{OrderTableSize - 1, &m.Patterns[0]},
		{OrderTableSize, nil},
		{130, nil},
		{199, nil},
		{-1, nil},
	}
	for _, test := range tests {
		if got := m.OrderPattern(test.order); got != test.want {
			t.Errorf("OrderPattern(%d) = %p, want %p", test.order, got, test.want)
		}
	}
}
