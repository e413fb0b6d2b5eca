package timeline

import "fmt"

// Player находит слот матча, идущего в момент t.
func (s *Store) Player(t float64, sel Selector) (*PlayerSlot, error) {
	m, err := s.Match(t)
	if err != nil {
		return nil, err
	}
	return m.Player(sel)
}

// UpdatePlayerName переименовывает слот матча в момент t. Все убийства
// этого матча со старым именем получают новое, независимо от времени.
// Если у слота не было имени, убийства не трогаются: пустое имя носят
// и другие безымянные слоты.
func (s *Store) UpdatePlayerName(t float64, sel Selector, name string) error {
	m, err := s.Match(t)
	if err != nil {
		return err
	}
	p, err := m.Player(sel)
	if err != nil {
		return err
	}

	if old := p.Name; old != "" {
		for _, k := range m.Kills.All() {
			k.Actors(func(a *KillActor) {
				if a.PlayerName == old {
					a.PlayerName = name
				}
			})
		}
	}
	p.Name = name
	s.MarkUpdated()
	return nil
}

// UpdatePlayerHero назначает слоту героя начиная с t. Соседние назначения
// с одинаковым героем склеиваются, убийства от t до следующего назначения
// получают нового героя.
func (s *Store) UpdatePlayerHero(t float64, sel Selector, hero string) error {
	if hero == "" {
		return fmt.Errorf("%w: empty hero", ErrInvalidSelection)
	}
	m, err := s.Match(t)
	if err != nil {
		return err
	}
	p, err := m.Player(sel)
	if err != nil {
		return err
	}

	heroes := p.Heroes
	prev, hasPrev := heroes.Prev(t)
	cur, hasCur := heroes.Current(t)
	next, hasNext := heroes.Next(t)

	switch {
	case hasCur && cur.StartTime == t:
		if hasPrev && prev.Name == hero {
			// Тот же герой, что и в предыдущем отрезке: склеиваем.
			if _, err := heroes.RemoveAt(t); err != nil {
				return err
			}
		} else {
			cur.Name = hero
		}
	case !hasCur || cur.Name != hero:
		heroes.Insert(&HeroAssignment{StartTime: t, Name: hero})
	}

	if hasNext && next.Name == hero {
		if _, err := heroes.RemoveAt(next.StartTime); err != nil {
			return err
		}
	}

	next, hasNext = heroes.Next(t)
	for _, k := range m.Kills.All() {
		if hasNext && k.StartTime >= next.StartTime {
			break
		}
		if k.StartTime < t {
			continue
		}
		k.Actors(func(a *KillActor) {
			if a.PlayerName == p.Name {
				a.HeroName = hero
			}
		})
	}

	s.MarkUpdated()
	return nil
}

// RemovePlayerHero удаляет назначение героя, действующее в момент t.
// Если соседние отрезки с одним героем, они склеиваются в ранний.
func (s *Store) RemovePlayerHero(t float64, sel Selector) error {
	p, err := s.Player(t, sel)
	if err != nil {
		return err
	}

	heroes := p.Heroes
	cur, ok := heroes.Current(t)
	if !ok {
		return fmt.Errorf("remove hero of slot %d at %s: %w", p.Index, FormatTime(t), ErrNotFound)
	}
	prev, hasPrev := heroes.Prev(t)
	next, hasNext := heroes.Next(t)

	if _, err := heroes.RemoveAt(cur.StartTime); err != nil {
		return err
	}
	if hasPrev && hasNext && prev.Name == next.Name {
		if _, err := heroes.RemoveAt(next.StartTime); err != nil {
			return err
		}
	}
	s.MarkUpdated()
	return nil
}
