package modfile

import (
	"encoding/binary"
	"fmt"
	"strings"
)

type ParserConfig struct {
	// AllowTruncatedSamples makes the parser accept files where
	// the last samples are shorter than their headers claim.
	// Such samples are clamped to the bytes that are present.
	//
	// A zero value means "strict": a missing sample byte is an ErrCorruptHeader.
	AllowTruncatedSamples bool
}

// Parser decodes module files.
// A single parser can be used to decode several modules.
type Parser struct {
	p parser
}

func NewParser(config ParserConfig) *Parser {
	return &Parser{
		p: parser{config: config},
	}
}

// ParseFromBytes decodes a module stored in data.
//
// The data is not retained: the returned module owns all of its memory.
func (p *Parser) ParseFromBytes(data []byte) (*Module, error) {
	return p.p.Parse(data)
}

type parser struct {
	// Data holds the input data bytes.
	data []byte

	// Offset is our current position inside the data.
	offset int

	// Module holds the results of parsing.
	module *Module

	notePool objectPool[Note]

	config ParserConfig

	// These fields below are needed for better error reporting.
	stage         string
	stageIndex    int
	subStage      string
	subStageIndex int
}

func (p *parser) Parse(data []byte) (*Module, error) {
	p.data = data
	p.offset = 0
	p.module = &Module{NumChannels: DefaultChannels}
	initObjectPool(&p.notePool, NumDivisions*DefaultChannels*8)
	defer func() {
		// Don't keep the caller's bytes alive.
		p.data = nil
		p.module = nil
	}()

	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.module, nil
}

func (p *parser) startStage(name string) {
	p.stage = name
	p.stageIndex = -1
	p.subStage = ""
	p.subStageIndex = -1
}

func (p *parser) startSubStage(name string) {
	p.subStage = name
	p.subStageIndex = -1
}

func (p *parser) formatStage() string {
	var b strings.Builder
	b.Grow(len(p.stage) + len(p.subStage) + 16)
	b.WriteString(p.stage)
	if p.stageIndex >= 0 {
		fmt.Fprintf(&b, "[%d]", p.stageIndex)
	}
	if p.subStage != "" {
		b.WriteByte('.')
		b.WriteString(p.subStage)
		if p.subStageIndex >= 0 {
			fmt.Fprintf(&b, "[%d]", p.subStageIndex)
		}
	}
	return b.String()
}

func (p *parser) errorf(kind error, format string, args ...any) *ParseError {
	text := fmt.Sprintf(format, args...)
	tag := p.formatStage()
	if tag != "" {
		text = tag + ": " + text
	}
	return &ParseError{
		Message: kind.Error() + ": " + text,
		Offset:  p.offset,
		Err:     kind,
	}
}

func (p *parser) dataBytesRemaining() int {
	return len(p.data) - p.offset
}

func (p *parser) sliceData(l int) []byte {
	return p.data[p.offset : p.offset+l]
}

func (p *parser) read(l int, what string) []byte {
	if p.dataBytesRemaining() < l {
		panic(p.errorf(ErrTruncatedInput, "unexpected EOF while reading %s", what))
	}
	b := p.sliceData(l)
	p.offset += l
	return b
}

func (p *parser) readName(l int, what string) string {
	return convertName(p.read(l, what))
}

func (p *parser) readWord(what string) uint16 {
	if p.dataBytesRemaining() < 2 {
		panic(p.errorf(ErrTruncatedInput, "unexpected EOF while reading %s", what))
	}
	v := binary.BigEndian.Uint16(p.sliceData(2))
	p.offset += 2
	return v
}

func (p *parser) readByte(what string) uint8 {
	if p.dataBytesRemaining() < 1 {
		panic(p.errorf(ErrTruncatedInput, "unexpected EOF while reading %s", what))
	}
	b := p.data[p.offset]
	p.offset++
	return b
}

func (p *parser) parse() (err error) {
	defer func() {
		rv := recover()
		if rv != nil {
			if panicErr, ok := rv.(*ParseError); ok {
				err = panicErr
			} else {
				panic(rv)
			}
		}
	}()

	p.parseModule()

	return err // See the deferred call above
}

func (p *parser) parseModule() {
	p.startStage("header")
	if len(p.data) < HeaderSize {
		panic(p.errorf(ErrTruncatedInput, "expected at least %d bytes, found %d", HeaderSize, len(p.data)))
	}
	p.module.Name = p.readName(20, "module name")

	p.startStage("sample")
	for i := range p.module.Samples {
		p.stageIndex = i
		p.parseSampleInfo(&p.module.Samples[i])
	}

	p.startStage("header")
	p.module.SongLength = int(p.readByte("song length"))
	p.module.RestartPoint = int(p.readByte("restart point"))

	// The pattern data is stored for every slot referenced by the table,
	// not only for the first SongLength entries.
	order := p.read(OrderTableSize, "pattern order table")
	copy(p.module.PatternOrder[:], order)
	maxPattern := 0
	for _, id := range order {
		if int(id) > maxPattern {
			maxPattern = int(id)
		}
	}

	p.module.Tag = string(p.read(4, "format tag"))

	numPatterns := maxPattern + 1
	patternSize := p.module.NumChannels * NumDivisions * NoteSize
	if need := numPatterns * patternSize; p.dataBytesRemaining() < need {
		panic(p.errorf(ErrCorruptHeader, "%d patterns need %d bytes, %d available",
			numPatterns, need, p.dataBytesRemaining()))
	}

	p.startStage("pattern")
	p.module.Patterns = make([]Pattern, numPatterns)
	for i := range p.module.Patterns {
		p.stageIndex = i
		p.parsePattern(&p.module.Patterns[i])
	}

	p.startStage("sampledata")
	for i := range p.module.Samples {
		p.stageIndex = i
		p.parseSampleData(&p.module.Samples[i])
	}
}

func (p *parser) parseSampleInfo(s *SampleInfo) {
	s.Name = p.readName(22, "sample name")
	s.Length = int(p.readWord("sample length")) * 2
	s.FineTune = p.readByte("sample finetune") & 0x0F
	s.Volume = p.readByte("sample volume")
	s.LoopStart = int(p.readWord("sample loop start")) * 2
	s.LoopLength = int(p.readWord("sample loop length")) * 2
}

func (p *parser) parsePattern(pat *Pattern) {
	p.startSubStage("division")
	for i := range pat.Divisions {
		p.subStageIndex = i
		notes := p.notePool.MakeSlice(p.module.NumChannels)
		for j := range notes {
			var cell [NoteSize]byte
			copy(cell[:], p.read(NoteSize, "pattern note"))
			notes[j] = DecodeNote(cell)
		}
		pat.Divisions[i].Notes = notes
	}
}

func (p *parser) parseSampleData(s *SampleInfo) {
	n := s.Length
	if n == 0 {
		return
	}
	if p.dataBytesRemaining() < n {
		if !p.config.AllowTruncatedSamples {
			panic(p.errorf(ErrCorruptHeader, "sample data needs %d bytes, %d available",
				n, p.dataBytesRemaining()))
		}
		n = p.dataBytesRemaining()
		s.Length = n
	}
	raw := p.read(n, "sample data")
	s.Data = make([]int8, n)
	for i, b := range raw {
		s.Data[i] = int8(b)
	}
}
