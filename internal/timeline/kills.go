package timeline

import "fmt"

// ActorRef указывает на участника убийства: слот, который разрешается
// в момент убийства, или пара имя/герой, которая сохраняется как есть.
type ActorRef struct {
	Player Selector
	Hero   string
}

// SlotActor ссылается на слот и берет его героя в момент убийства.
func SlotActor(sel Selector) ActorRef {
	return ActorRef{Player: sel}
}

// NamedActor сохраняет имя и героя без изменений.
func NamedActor(name, hero string) ActorRef {
	return ActorRef{Player: SlotName(name), Hero: hero}
}

// KillSpec описывает новое убийство или замену существующего.
type KillSpec struct {
	Killee   ActorRef
	Killer   *ActorRef
	Assists  []ActorRef
	Ability  string
	Critical bool
}

// Kills возвращает ленту убийств матча в момент t.
func (s *Store) Kills(t float64) ([]*Kill, error) {
	m, err := s.Match(t)
	if err != nil {
		return nil, err
	}
	return m.Kills.Items(), nil
}

// AddKill записывает убийство в момент t в текущий матч.
func (s *Store) AddKill(t float64, spec KillSpec) (*Kill, error) {
	m, err := s.Match(t)
	if err != nil {
		return nil, err
	}
	k := &Kill{StartTime: t}
	if err := fillKill(k, m, t, spec); err != nil {
		return nil, err
	}
	m.Kills.Insert(k)
	s.MarkUpdated()
	return k, nil
}

// UpdateKill заменяет все, кроме времени, у index-го убийства матча в момент t.
func (s *Store) UpdateKill(t float64, index int, spec KillSpec) error {
	m, err := s.Match(t)
	if err != nil {
		return err
	}
	if index < 0 || index >= m.Kills.Len() {
		return fmt.Errorf("%w: kill %d out of range", ErrInvalidSelection, index)
	}

	var k Kill
	if err := fillKill(&k, m, t, spec); err != nil {
		return err
	}
	target := m.Kills.At(index)
	k.StartTime = target.StartTime
	*target = k
	s.MarkUpdated()
	return nil
}

// RemoveKill удаляет index-е убийство матча в момент t.
func (s *Store) RemoveKill(t float64, index int) error {
	m, err := s.Match(t)
	if err != nil {
		return err
	}
	if _, err := m.Kills.RemoveIndex(index); err != nil {
		return fmt.Errorf("%w: kill %d out of range", ErrInvalidSelection, index)
	}
	s.MarkUpdated()
	return nil
}

// fillKill сначала разрешает всех участников, при ошибке k не меняется.
func fillKill(k *Kill, m *Match, t float64, spec KillSpec) error {
	killee, err := resolveActor(m, t, spec.Killee)
	if err != nil {
		return fmt.Errorf("killee: %w", err)
	}

	var killer *KillActor
	if spec.Killer != nil {
		a, err := resolveActor(m, t, *spec.Killer)
		if err != nil {
			return fmt.Errorf("killer: %w", err)
		}
		killer = &a
	}

	assists := make([]KillActor, 0, len(spec.Assists))
	for i, ref := range spec.Assists {
		a, err := resolveActor(m, t, ref)
		if err != nil {
			return fmt.Errorf("assist %d: %w", i+1, err)
		}
		assists = append(assists, a)
	}

	var ability *string
	if spec.Ability != "" {
		ability = &spec.Ability
	}

	k.Killee = killee
	k.Killer = killer
	k.Assists = assists
	k.Ability = ability
	k.Critical = spec.Critical
	return nil
}

func resolveActor(m *Match, t float64, ref ActorRef) (KillActor, error) {
	if !ref.Player.set || (ref.Player.byName && ref.Player.name == "") {
		return KillActor{}, fmt.Errorf("%w: empty player", ErrInvalidSelection)
	}
	if ref.Hero != "" && ref.Player.byName {
		return KillActor{PlayerName: ref.Player.name, HeroName: ref.Hero}, nil
	}

	p, err := m.Player(ref.Player)
	if err != nil {
		return KillActor{}, err
	}
	hero := ref.Hero
	if hero == "" {
		hero = p.HeroAt(t)
	}
	if hero == "" {
		return KillActor{}, fmt.Errorf("%w: player %s has no hero at %s", ErrInvalidSelection, ref.Player, FormatTime(t))
	}
	return KillActor{PlayerName: p.Name, HeroName: hero}, nil
}
