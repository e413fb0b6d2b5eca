package timeline

import (
	"fmt"

	"github.com/ivlev/vodscrub/internal/temporal"
)

// Store хранит все матчи одной записи.
// Рассчитан на одного писателя, доступ сериализует вызывающий код.
type Store struct {
	matches *temporal.Timeline[*Match]
	updated bool
}

// NewStore возвращает пустое хранилище. Первый вызов Updated вернет true,
// чтобы состояние отрисовалось сразу.
func NewStore() *Store {
	return &Store{matches: newMatchTimeline(), updated: true}
}

// Updated сообщает, менялось ли хранилище с прошлого вызова, и сбрасывает флаг.
func (s *Store) Updated() bool {
	if s.updated {
		s.updated = false
		return true
	}
	return false
}

// MarkUpdated поднимает флаг изменений.
func (s *Store) MarkUpdated() {
	s.updated = true
}

// Matches возвращает матчи по времени начала.
func (s *Store) Matches() []*Match {
	return s.matches.Items()
}

// Match возвращает матч, идущий в момент t.
func (s *Store) Match(t float64) (*Match, error) {
	m, ok := s.matches.Current(t)
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrNoCurrentMatch, FormatTime(t))
	}
	return m, nil
}

// PrevMatch возвращает последний матч, закончившийся до t.
func (s *Store) PrevMatch(t float64) (*Match, bool) {
	return s.matches.Prev(t)
}

// NextMatch возвращает первый матч, начинающийся после t.
func (s *Store) NextMatch(t float64) (*Match, bool) {
	return s.matches.Next(t)
}

// AddMatch создает матч на отрезке [start, end]. Имена слотов переносятся
// из предыдущего матча, номера матчей пересчитываются по времени начала.
func (s *Store) AddMatch(start, end float64, mapName, mode string) (*Match, error) {
	if end < start {
		return nil, fmt.Errorf("%w: match ends (%s) before it starts (%s)",
			ErrInvalidSelection, FormatTime(end), FormatTime(start))
	}
	if err := s.checkFree(nil, start, end); err != nil {
		return nil, err
	}

	m := newMatch(start, end, mapName, mode)
	if prev, ok := s.matches.Prev(start); ok {
		for i := range m.Players {
			m.Players[i].Name = prev.Players[i].Name
		}
	}

	s.matches.Insert(m)
	s.renumber()
	s.MarkUpdated()
	return m, nil
}

// RemoveMatch удаляет матч, идущий в момент t.
func (s *Store) RemoveMatch(t float64) error {
	if _, err := s.matches.RemoveAt(t); err != nil {
		return fmt.Errorf("remove match at %s: %w: %w", FormatTime(t), ErrNoCurrentMatch, err)
	}
	s.renumber()
	s.MarkUpdated()
	return nil
}

// UpdateMatchStart переносит начало матча в момент t (или следующего матча,
// если t между матчами) на newTime.
func (s *Store) UpdateMatchStart(t, newTime float64) error {
	m, ok := s.matches.Current(t)
	if !ok {
		m, ok = s.matches.Next(t)
	}
	if !ok {
		return fmt.Errorf("update match start: %w (%s)", ErrNoCurrentMatch, FormatTime(t))
	}
	if newTime > m.EndTime {
		return fmt.Errorf("%w: start %s is after the match end", ErrInvalidSelection, FormatTime(newTime))
	}
	if err := s.checkFree(m, newTime, m.EndTime); err != nil {
		return err
	}

	m.StartTime = newTime
	s.matches.Sort()
	s.renumber()
	s.MarkUpdated()
	return nil
}

// UpdateMatchEnd переносит конец матча в момент t (или предыдущего матча,
// если t между матчами) на newTime.
func (s *Store) UpdateMatchEnd(t, newTime float64) error {
	m, ok := s.matches.Current(t)
	if !ok {
		m, ok = s.matches.Prev(t)
	}
	if !ok {
		return fmt.Errorf("update match end: %w (%s)", ErrNoCurrentMatch, FormatTime(t))
	}
	if newTime < m.StartTime {
		return fmt.Errorf("%w: end %s is before the match start", ErrInvalidSelection, FormatTime(newTime))
	}
	if err := s.checkFree(m, m.StartTime, newTime); err != nil {
		return err
	}

	m.EndTime = newTime
	s.MarkUpdated()
	return nil
}

// SuggestMatchEnd предлагает конец матча, начатого в t: за один шаг кадра
// до следующего матча или конец видео.
func (s *Store) SuggestMatchEnd(t, videoEnd, step float64) float64 {
	if next, ok := s.matches.Next(t); ok {
		return next.StartTime - step
	}
	return videoEnd
}

// checkFree возвращает ErrOverlap, если [start, end] пересекает другой матч.
func (s *Store) checkFree(self *Match, start, end float64) error {
	for _, m := range s.matches.All() {
		if m == self {
			continue
		}
		if m.StartTime <= end && start <= m.EndTime {
			return fmt.Errorf("%w: [%s, %s] collides with %s [%s, %s]", ErrOverlap,
				FormatTime(start), FormatTime(end), m.Name, FormatTime(m.StartTime), FormatTime(m.EndTime))
		}
	}
	return nil
}

func (s *Store) renumber() {
	for i, m := range s.matches.All() {
		m.Name = fmt.Sprintf("Match %d", i+1)
	}
}
