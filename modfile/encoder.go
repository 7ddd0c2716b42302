package modfile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MarshalBinary encodes the module back into its file form.
//
// The module must be self-consistent: exactly max(PatternOrder)+1 patterns,
// even sample lengths that fit a 16-bit word count and
// len(Data)==Length for every sample.
// Names are written as is and zero-padded.
func (m *Module) MarshalBinary() ([]byte, error) {
	if m.NumChannels != DefaultChannels {
		return nil, fmt.Errorf("unsupported number of channels: %d", m.NumChannels)
	}
	maxPattern := 0
	for _, id := range m.PatternOrder {
		maxPattern = max(maxPattern, int(id))
	}
	if len(m.Patterns) != maxPattern+1 {
		return nil, fmt.Errorf("expected %d patterns, found %d", maxPattern+1, len(m.Patterns))
	}

	size := HeaderSize + len(m.Patterns)*NumDivisions*m.NumChannels*NoteSize
	for i := range m.Samples {
		size += m.Samples[i].Length
	}
	data := make([]byte, 0, size)

	data = appendName(data, m.Name, 20)
	for i := range m.Samples {
		s := &m.Samples[i]
		if s.Length%2 != 0 || s.Length > 0xFFFF*2 || len(s.Data) != s.Length {
			return nil, fmt.Errorf("sample[%d]: invalid length %d (%d data bytes)", i, s.Length, len(s.Data))
		}
		data = appendName(data, s.Name, 22)
		data = binary.BigEndian.AppendUint16(data, uint16(s.Length/2))
		data = append(data, s.FineTune&0x0F, s.Volume)
		data = binary.BigEndian.AppendUint16(data, uint16(s.LoopStart/2))
		data = binary.BigEndian.AppendUint16(data, uint16(s.LoopLength/2))
	}

	data = append(data, uint8(m.SongLength), uint8(m.RestartPoint))
	data = append(data, m.PatternOrder[:]...)
	tag := m.Tag
	if tag == "" {
		tag = "M.K."
	}
	if len(tag) != 4 {
		return nil, errors.New("format tag must be 4 bytes long")
	}
	data = append(data, tag...)

	for i := range m.Patterns {
		for j, d := range m.Patterns[i].Divisions {
			if len(d.Notes) != m.NumChannels {
				return nil, fmt.Errorf("pattern[%d].division[%d]: expected %d notes, found %d",
					i, j, m.NumChannels, len(d.Notes))
			}
			for _, n := range d.Notes {
				cell := n.Encode()
				data = append(data, cell[:]...)
			}
		}
	}

	for i := range m.Samples {
		for _, v := range m.Samples[i].Data {
			data = append(data, byte(v))
		}
	}

	return data, nil
}

func appendName(dst []byte, name string, size int) []byte {
	n := min(len(name), size)
	dst = append(dst, name[:n]...)
	for i := n; i < size; i++ {
		dst = append(dst, 0)
	}
	return dst
}
