// Package ops превращает запросы на правку из командной строки и HTTP API
// в операции над хранилищем разметки.
package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ivlev/vodscrub/internal/extract"
	"github.com/ivlev/vodscrub/internal/heroes"
	"github.com/ivlev/vodscrub/internal/timeline"
)

var (
	ErrUnknownOp       = errors.New("unknown operation")
	ErrMissingArgument = errors.New("missing argument")
	ErrUnknownAbility  = errors.New("unknown ability")
)

const (
	AddMatch         = "add_match"
	RemoveMatch      = "remove_match"
	SetMatchStart    = "set_match_start"
	SetMatchEnd      = "set_match_end"
	SetPlayerName    = "set_player_name"
	SetPlayerHero    = "set_player_hero"
	RemovePlayerHero = "remove_player_hero"
	AddKill          = "add_kill"
	UpdateKill       = "update_kill"
	RemoveKill       = "remove_kill"
)

// Actor - участник убийства: слот или имя игрока, с героем или без.
// Без героя берется герой слота в момент убийства.
type Actor struct {
	Slot *int   `json:"slot,omitempty"`
	Name string `json:"name,omitempty"`
	Hero string `json:"hero,omitempty"`
}

// Op - одна правка. T - момент воспроизведения, к которому она относится.
type Op struct {
	Op       string   `json:"op"`
	T        float64  `json:"t"`
	End      *float64 `json:"end,omitempty"`
	To       *float64 `json:"to,omitempty"`
	Map      string   `json:"map,omitempty"`
	GameMode string   `json:"game_mode,omitempty"`
	Slot     *int     `json:"slot,omitempty"`
	Player   string   `json:"player,omitempty"`
	Name     string   `json:"name,omitempty"`
	Hero     string   `json:"hero,omitempty"`
	Index    int      `json:"index,omitempty"`
	Killee   *Actor   `json:"killee,omitempty"`
	Killer   *Actor   `json:"killer,omitempty"`
	Assists  []Actor  `json:"assists,omitempty"`
	Ability  string   `json:"ability,omitempty"`
	Critical bool     `json:"critical,omitempty"`
}

// to - новая граница матча, по умолчанию граница переносится в T.
func (op Op) to() float64 {
	if op.To != nil {
		return *op.To
	}
	return op.T
}

func (op Op) selector() timeline.Selector {
	switch {
	case op.Slot != nil:
		return timeline.SlotIndex(*op.Slot)
	case op.Player != "":
		return timeline.SlotName(op.Player)
	}
	return timeline.Selector{}
}

// Applier применяет операции к хранилищу. Catalog, если задан, приводит
// имена героев к каноническим и проверяет способности. Metadata, если задан,
// дает конец нового матча по умолчанию.
type Applier struct {
	Catalog  *heroes.Catalog
	Metadata *extract.Metadata
}

// Apply проверяет op и выполняет ее над s.
func (a Applier) Apply(s *timeline.Store, op Op) error {
	switch op.Op {
	case AddMatch:
		end, err := a.matchEnd(s, op)
		if err != nil {
			return err
		}
		_, err = s.AddMatch(op.T, end, op.Map, op.GameMode)
		return err

	case RemoveMatch:
		return s.RemoveMatch(op.T)

	case SetMatchStart:
		return s.UpdateMatchStart(op.T, op.to())

	case SetMatchEnd:
		return s.UpdateMatchEnd(op.T, op.to())

	case SetPlayerName:
		return s.UpdatePlayerName(op.T, op.selector(), op.Name)

	case SetPlayerHero:
		hero, err := a.hero(op.Hero)
		if err != nil {
			return err
		}
		return s.UpdatePlayerHero(op.T, op.selector(), hero)

	case RemovePlayerHero:
		return s.RemovePlayerHero(op.T, op.selector())

	case AddKill:
		spec, err := a.killSpec(s, op)
		if err != nil {
			return err
		}
		_, err = s.AddKill(op.T, spec)
		return err

	case UpdateKill:
		spec, err := a.killSpec(s, op)
		if err != nil {
			return err
		}
		return s.UpdateKill(op.T, op.Index, spec)

	case RemoveKill:
		return s.RemoveKill(op.T, op.Index)
	}
	return fmt.Errorf("%w: %q", ErrUnknownOp, op.Op)
}

// ApplyAll применяет операции по порядку и останавливается на первой ошибке.
func (a Applier) ApplyAll(s *timeline.Store, ops []Op) error {
	for i, op := range ops {
		if err := a.Apply(s, op); err != nil {
			return fmt.Errorf("op %d (%s): %w", i+1, op.Op, err)
		}
	}
	return nil
}

func (a Applier) matchEnd(s *timeline.Store, op Op) (float64, error) {
	if op.End != nil {
		return *op.End, nil
	}
	if a.Metadata == nil {
		return 0, fmt.Errorf("%w: end", ErrMissingArgument)
	}
	return s.SuggestMatchEnd(op.T, a.Metadata.Duration(), a.Metadata.Step()), nil
}

func (a Applier) hero(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	return a.Catalog.Canonical(name)
}

func (a Applier) actor(in Actor) (timeline.ActorRef, error) {
	hero, err := a.hero(in.Hero)
	if err != nil {
		return timeline.ActorRef{}, err
	}
	switch {
	case in.Slot != nil:
		return timeline.ActorRef{Player: timeline.SlotIndex(*in.Slot), Hero: hero}, nil
	case in.Name != "":
		return timeline.ActorRef{Player: timeline.SlotName(in.Name), Hero: hero}, nil
	}
	return timeline.ActorRef{}, fmt.Errorf("%w: actor needs a slot or a name", timeline.ErrInvalidSelection)
}

func (a Applier) killSpec(s *timeline.Store, op Op) (timeline.KillSpec, error) {
	if op.Killee == nil {
		return timeline.KillSpec{}, fmt.Errorf("%w: killee", ErrMissingArgument)
	}

	spec := timeline.KillSpec{Critical: op.Critical}
	var err error
	if spec.Killee, err = a.actor(*op.Killee); err != nil {
		return timeline.KillSpec{}, err
	}
	if op.Killer != nil {
		ref, err := a.actor(*op.Killer)
		if err != nil {
			return timeline.KillSpec{}, err
		}
		spec.Killer = &ref
	}
	for _, as := range op.Assists {
		ref, err := a.actor(as)
		if err != nil {
			return timeline.KillSpec{}, err
		}
		spec.Assists = append(spec.Assists, ref)
	}

	spec.Ability = op.Ability
	if op.Ability != "" && spec.Killer != nil {
		if spec.Ability, err = a.ability(s, op.T, *spec.Killer, op.Ability); err != nil {
			return timeline.KillSpec{}, err
		}
	}
	return spec, nil
}

// ability проверяет способность по герою убийцы, если каталог его знает.
func (a Applier) ability(s *timeline.Store, t float64, killer timeline.ActorRef, name string) (string, error) {
	if a.Catalog == nil {
		return name, nil
	}

	heroName := killer.Hero
	if heroName == "" {
		p, err := s.Player(t, killer.Player)
		if err != nil {
			return "", err
		}
		heroName = p.HeroAt(t)
	}

	h, ok := a.Catalog.Lookup(heroName)
	if !ok {
		return name, nil
	}
	ab, ok := h.Ability(name)
	if !ok {
		return "", fmt.Errorf("%w: %s has no %q", ErrUnknownAbility, h.Name, name)
	}
	return ab.Name, nil
}

// Decode читает операции как JSON-массив или как поток JSON-объектов.
func Decode(r io.Reader) ([]Op, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var ops []Op
		if err := json.Unmarshal(data, &ops); err != nil {
			return nil, fmt.Errorf("parse ops: %w", err)
		}
		return ops, nil
	}

	var ops []Op
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var op Op
		err := dec.Decode(&op)
		if errors.Is(err, io.EOF) {
			return ops, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse op %d: %w", len(ops)+1, err)
		}
		ops = append(ops, op)
	}
}
