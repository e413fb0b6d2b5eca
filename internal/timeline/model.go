// Package timeline описывает разметку записи: матчи, двенадцать слотов
// игроков в каждом матче с историей героев и ленту убийств. Все правки идут
// через Store, чтобы копии имен и героев в записях убийств не расходились
// с составом.
package timeline

import (
	"errors"
	"fmt"

	"github.com/ivlev/vodscrub/internal/temporal"
)

// SlotCount - число слотов игроков в каждом матче.
const SlotCount = 12

var (
	// ErrOverlap возвращается, если отрезок матча пересекает другой матч.
	ErrOverlap = errors.New("matches may not overlap")
	// ErrNoCurrentMatch возвращается, если в указанный момент нет матча.
	ErrNoCurrentMatch = errors.New("there is no match at the current time")
	// ErrNotFound возвращается, если в указанный момент нечего удалять.
	ErrNotFound = temporal.ErrNotFound
	// ErrInvalidSelection возвращается, если игрок, герой или убийство не найдены.
	ErrInvalidSelection = errors.New("invalid selection")
)

// Match - одна игра внутри записи.
type Match struct {
	Name      string
	Map       string
	GameMode  string
	StartTime float64
	EndTime   float64
	Players   [SlotCount]PlayerSlot
	Kills     *temporal.Timeline[*Kill]
}

// PlayerSlot - место игрока в матче.
type PlayerSlot struct {
	Index  int
	Name   string
	Heroes *temporal.Timeline[*HeroAssignment]
}

// HeroAssignment: слот играет героем с StartTime до следующего назначения.
type HeroAssignment struct {
	StartTime float64
	Name      string
}

// Kill - запись ленты убийств.
type Kill struct {
	StartTime float64
	Killer    *KillActor
	Assists   []KillActor
	Killee    KillActor
	Ability   *string
	Critical  bool
}

// KillActor - имя и герой игрока на момент убийства.
type KillActor struct {
	PlayerName string
	HeroName   string
}

func (a KillActor) String() string {
	return a.PlayerName + ":" + a.HeroName
}

func matchStart(m *Match) float64         { return m.StartTime }
func matchEnd(m *Match) float64           { return m.EndTime }
func killTime(k *Kill) float64            { return k.StartTime }
func heroStart(h *HeroAssignment) float64 { return h.StartTime }

func newMatchTimeline(matches ...*Match) *temporal.Timeline[*Match] {
	return temporal.NewInterval(matchStart, matchEnd, matches...)
}

func newKillTimeline(kills ...*Kill) *temporal.Timeline[*Kill] {
	return temporal.NewPoint(killTime, kills...)
}

func newHeroTimeline(heroes ...*HeroAssignment) *temporal.Timeline[*HeroAssignment] {
	return temporal.NewStateSpan(heroStart, heroes...)
}

func newMatch(start, end float64, mapName, mode string) *Match {
	m := &Match{
		Map:       mapName,
		GameMode:  mode,
		StartTime: start,
		EndTime:   end,
		Kills:     newKillTimeline(),
	}
	for i := range m.Players {
		m.Players[i] = PlayerSlot{Index: i, Heroes: newHeroTimeline()}
	}
	return m
}

// Selector выбирает слот по номеру или по текущему имени.
type Selector struct {
	index  int
	name   string
	byName bool
	set    bool
}

// SlotIndex выбирает слот с номером i (0-11).
func SlotIndex(i int) Selector {
	return Selector{index: i, set: true}
}

// SlotName выбирает первый слот с именем name.
func SlotName(name string) Selector {
	return Selector{name: name, byName: true, set: true}
}

func (s Selector) String() string {
	switch {
	case !s.set:
		return "<none>"
	case s.byName:
		return fmt.Sprintf("%q", s.name)
	default:
		return fmt.Sprintf("#%d", s.index)
	}
}

// Player находит слот матча по селектору.
// По имени возвращается первый подходящий слот.
func (m *Match) Player(sel Selector) (*PlayerSlot, error) {
	if !sel.set {
		return nil, fmt.Errorf("%w: no player given", ErrInvalidSelection)
	}
	if !sel.byName {
		if sel.index < 0 || sel.index >= SlotCount {
			return nil, fmt.Errorf("%w: slot %d out of range", ErrInvalidSelection, sel.index)
		}
		return &m.Players[sel.index], nil
	}
	for i := range m.Players {
		if m.Players[i].Name == sel.name {
			return &m.Players[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no player named %q", ErrInvalidSelection, sel.name)
}

// HeroAt возвращает героя слота в момент t или "".
func (p *PlayerSlot) HeroAt(t float64) string {
	if h, ok := p.Heroes.Current(t); ok {
		return h.Name
	}
	return ""
}

// Actors вызывает fn для убийцы, каждого ассиста и жертвы.
func (k *Kill) Actors(fn func(a *KillActor)) {
	if k.Killer != nil {
		fn(k.Killer)
	}
	for i := range k.Assists {
		fn(&k.Assists[i])
	}
	fn(&k.Killee)
}
