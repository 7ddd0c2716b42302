package modmix

import (
	"github.com/quasilyte/modmix/internal/moddb"
	"github.com/quasilyte/modmix/modfile"
)

const (
	defaultSpeed = 6
	defaultBPM   = 125

	// Fxx values below this one set the speed.
	minBPM = 32
	maxBPM = 255
)

type songPosition struct {
	order   int
	row     int
	tick    int
	pattern *modfile.Pattern
}

// sequencer walks the song: order positions, rows and ticks.
// It also handles the song-level effects (Bxx, Dxx, Fxx, E6x, EEx);
// channel effects are evaluated by the kernel.
type sequencer struct {
	module *modfile.Module

	// loop makes the song restart from its restart point instead of ending.
	loop bool

	// rowLimit stops the playback after the specified number of rows.
	// A zero value means "no limit".
	rowLimit int

	pos        songPosition
	started    bool
	ended      bool
	rowsPlayed int

	speed    int
	bpm      int
	rowTicks int

	jump      jumpKind
	jumpOrder int
	jumpRow   int

	loopRow   int
	loopCount int
}

type jumpKind uint8

const (
	jumpNone jumpKind = iota
	jumpForward
	jumpPatternLoop
	// jumpSongLoop is a position jump to an earlier point of the song.
	jumpSongLoop
)

func (s *sequencer) reset(m *modfile.Module, speed, bpm int) {
	*s = sequencer{
		module:   m,
		loop:     s.loop,
		rowLimit: s.rowLimit,
		speed:    speed,
		bpm:      bpm,
	}
}

// nextTick advances the song by one tick.
// It returns false when the song is over.
func (s *sequencer) nextTick() (songPosition, bool) {
	if s.ended || s.module == nil {
		return songPosition{}, false
	}

	switch {
	case !s.started:
		s.started = true
		if !s.enterRow(0, 0) {
			return songPosition{}, false
		}
	case s.pos.tick+1 < s.rowTicks:
		s.pos.tick++
	default:
		if !s.advanceRow() {
			return songPosition{}, false
		}
	}

	return s.pos, true
}

func (s *sequencer) advanceRow() bool {
	if s.rowLimit > 0 && s.rowsPlayed >= s.rowLimit {
		s.ended = true
		return false
	}

	order, row := s.pos.order, s.pos.row+1
	switch s.jump {
	case jumpNone:
		if row >= modfile.NumDivisions {
			order++
			row = 0
		}
	case jumpSongLoop:
		if !s.loop {
			s.ended = true
			return false
		}
		fallthrough
	default:
		order, row = s.jumpOrder, s.jumpRow
	}
	s.jump = jumpNone

	return s.enterRow(order, row)
}

func (s *sequencer) enterRow(order, row int) bool {
	m := s.module
	// The song length is a raw byte, it can exceed the order table.
	songEnd := min(m.SongLength, modfile.OrderTableSize)
	if order >= songEnd {
		if !s.loop || songEnd == 0 {
			s.ended = true
			return false
		}
		order = m.RestartPoint
		if order >= songEnd {
			order = 0
		}
		row = 0
	}

	p := m.OrderPattern(order)
	if p == nil {
		s.ended = true
		return false
	}
	if s.rowsPlayed == 0 || order != s.pos.order {
		s.loopRow = 0
		s.loopCount = 0
	}

	s.pos = songPosition{
		order:   order,
		row:     row,
		pattern: p,
	}
	s.rowsPlayed++
	s.applyRowEffects()
	return true
}

func (s *sequencer) applyRowEffects() {
	order, row := s.pos.order, s.pos.row

	delay := 0
	breakRow := -1
	jumpOrder := -1
	loopJump := false
	for _, n := range s.pos.pattern.Divisions[row].Notes {
		e := moddb.ConvertEffect(n.Effect)
		switch e.Op {
		case moddb.EffectSetSpeed:
			// F00 is ignored.
			if e.Arg != 0 {
				s.speed = int(e.Arg)
			}
		case moddb.EffectSetTempo:
			s.bpm = int(e.Arg)
		case moddb.EffectPositionJump:
			jumpOrder = int(e.Arg)
		case moddb.EffectPatternBreak:
			breakRow = moddb.PatternBreakRow(e.Arg)
		case moddb.EffectPatternLoop:
			if e.Arg == 0 {
				s.loopRow = row
				break
			}
			if s.loopCount == 0 {
				s.loopCount = int(e.Arg)
			} else {
				s.loopCount--
			}
			if s.loopCount > 0 {
				loopJump = true
			}
		case moddb.EffectPatternDelay:
			if delay == 0 {
				delay = int(e.Arg)
			}
		}
	}

	switch {
	case loopJump:
		s.jump = jumpPatternLoop
		s.jumpOrder = order
		s.jumpRow = s.loopRow
	case jumpOrder >= 0 || breakRow >= 0:
		target := order + 1
		if jumpOrder >= 0 {
			target = jumpOrder
		}
		targetRow := max(breakRow, 0)
		s.jump = jumpForward
		if target < order || (target == order && targetRow <= row) {
			s.jump = jumpSongLoop
		}
		s.jumpOrder = target
		s.jumpRow = targetRow
	}

	s.rowTicks = s.speed * (1 + delay)
}
