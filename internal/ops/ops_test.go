package ops

import (
	"errors"
	"strings"
	"testing"

	"github.com/ivlev/vodscrub/internal/extract"
	"github.com/ivlev/vodscrub/internal/heroes"
	"github.com/ivlev/vodscrub/internal/timeline"
)

func ptr[T any](v T) *T {
	return &v
}

func catalog(t *testing.T) *heroes.Catalog {
	t.Helper()
	c, err := heroes.Parse([]byte(`
heroes:
  - name: Genji
    abilities:
      - name: Swift Strike
      - name: Dragonblade
        ultimate: true
  - name: Mercy
    abilities:
      - name: Resurrect
  - name: Ana
    abilities: []
`))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func prepared(t *testing.T, a Applier) *timeline.Store {
	t.Helper()
	s := timeline.NewStore()
	setup := []Op{
		{Op: AddMatch, T: 0, End: ptr(100.0), Map: "Ilios", GameMode: "Control"},
		{Op: SetPlayerName, T: 0, Slot: ptr(0), Name: "Fate"},
		{Op: SetPlayerName, T: 0, Slot: ptr(6), Name: "Super"},
		{Op: SetPlayerHero, T: 0, Slot: ptr(0), Hero: "genji"},
		{Op: SetPlayerHero, T: 0, Player: "Super", Hero: "MERCY"},
	}
	if err := a.ApplyAll(s, setup); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return s
}

func TestApplyNormalisesHeroes(t *testing.T) {
	a := Applier{Catalog: catalog(t)}
	s := prepared(t, a)

	labels := s.LabelsAt(10)
	if labels.PlayerHeroes[0] != "Genji" || labels.PlayerHeroes[6] != "Mercy" {
		t.Errorf("heroes = %v", labels.PlayerHeroes)
	}

	err := a.Apply(s, Op{Op: SetPlayerHero, T: 5, Slot: ptr(1), Hero: "Doomfist"})
	if !errors.Is(err, heroes.ErrUnknownHero) {
		t.Errorf("expected ErrUnknownHero, got %v", err)
	}
}

func TestApplyKills(t *testing.T) {
	a := Applier{Catalog: catalog(t)}
	s := prepared(t, a)

	add := Op{
		Op:      AddKill,
		T:       12,
		Killer:  &Actor{Slot: ptr(0)},
		Killee:  &Actor{Name: "Super"},
		Ability: "dragonblade",
	}
	if err := a.Apply(s, add); err != nil {
		t.Fatalf("add kill: %v", err)
	}
	kills, _ := s.Kills(12)
	if len(kills) != 1 || kills[0].Ability == nil || *kills[0].Ability != "Dragonblade" {
		t.Fatalf("kills = %+v", kills)
	}

	bad := add
	bad.Ability = "Resurrect"
	if err := a.Apply(s, bad); !errors.Is(err, ErrUnknownAbility) {
		t.Errorf("expected ErrUnknownAbility, got %v", err)
	}

	update := Op{Op: UpdateKill, T: 12, Index: 0, Killee: &Actor{Slot: ptr(0)}, Critical: true}
	if err := a.Apply(s, update); err != nil {
		t.Fatalf("update kill: %v", err)
	}
	if got := s.LabelsAt(12).Kills; len(got) != 1 || got[0] != "*-> Fate:Genji" {
		t.Errorf("feed = %q", got)
	}

	if err := a.Apply(s, Op{Op: AddKill, T: 13}); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument, got %v", err)
	}
	if err := a.Apply(s, Op{Op: AddKill, T: 13, Killee: &Actor{}}); !errors.Is(err, timeline.ErrInvalidSelection) {
		t.Errorf("expected ErrInvalidSelection, got %v", err)
	}

	if err := a.Apply(s, Op{Op: RemoveKill, T: 12, Index: 0}); err != nil {
		t.Fatalf("remove kill: %v", err)
	}
	if kills, _ := s.Kills(12); len(kills) != 0 {
		t.Errorf("kills left: %d", len(kills))
	}
}

func TestApplyMatchEndDefaults(t *testing.T) {
	meta := extract.Metadata{FrameRate: 10, FrameCount: 3000, FrameInterval: 1}
	a := Applier{Metadata: &meta}
	s := timeline.NewStore()

	if err := a.Apply(s, Op{Op: AddMatch, T: 200, End: ptr(250.0)}); err != nil {
		t.Fatal(err)
	}
	if err := a.Apply(s, Op{Op: AddMatch, T: 10}); err != nil {
		t.Fatal(err)
	}
	if err := a.Apply(s, Op{Op: AddMatch, T: 260}); err != nil {
		t.Fatal(err)
	}

	ms := s.Matches()
	if len(ms) != 3 {
		t.Fatalf("matches = %d", len(ms))
	}
	if ms[0].EndTime != 199.9 {
		t.Errorf("first match should end one frame before the next, got %v", ms[0].EndTime)
	}
	if ms[2].EndTime != 300 {
		t.Errorf("last match should end with the video, got %v", ms[2].EndTime)
	}

	if err := (Applier{}).Apply(s, Op{Op: AddMatch, T: 400}); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument without metadata, got %v", err)
	}
}

func TestApplyMatchEdits(t *testing.T) {
	a := Applier{}
	s := timeline.NewStore()
	if err := a.ApplyAll(s, []Op{
		{Op: AddMatch, T: 0, End: ptr(50.0)},
		{Op: SetMatchStart, T: 5},
		{Op: SetMatchEnd, T: 40},
		{Op: SetMatchEnd, T: 20, To: ptr(45.0)},
	}); err != nil {
		t.Fatal(err)
	}
	m, err := s.Match(20)
	if err != nil || m.StartTime != 5 || m.EndTime != 45 {
		t.Fatalf("match = %+v, %v", m, err)
	}

	if err := a.Apply(s, Op{Op: RemoveMatch, T: 20}); err != nil {
		t.Fatal(err)
	}
	if err := a.Apply(s, Op{Op: RemoveMatch, T: 20}); !errors.Is(err, timeline.ErrNoCurrentMatch) {
		t.Errorf("expected ErrNoCurrentMatch, got %v", err)
	}
}

func TestApplyUnknownOp(t *testing.T) {
	err := (Applier{}).ApplyAll(timeline.NewStore(), []Op{{Op: "rewind"}})
	if !errors.Is(err, ErrUnknownOp) {
		t.Errorf("expected ErrUnknownOp, got %v", err)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   int
		hasErr bool
	}{
		{"array", `[{"op":"add_match","t":1,"end":2},{"op":"remove_match","t":1}]`, 2, false},
		{"stream", "{\"op\":\"add_match\",\"t\":1}\n{\"op\":\"set_player_name\",\"t\":1,\"slot\":0,\"name\":\"x\"}\n", 2, false},
		{"empty", "  \n", 0, false},
		{"broken", `{"op":`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(strings.NewReader(tt.in))
			if (err != nil) != tt.hasErr {
				t.Fatalf("err = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d ops", len(got))
			}
		})
	}
}
