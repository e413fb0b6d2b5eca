package timeline

import (
	"errors"
	"testing"
)


// lineup создает матч на [0, 600] с именами и героями всех слотов с момента 0.
func lineup(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	mustAddMatch(t, s, 0, 600)
	names := []string{"Fate", "Mano", "Carpe", "Fury", "Bani", "Kellan", "Pine", "Sinatraa", "Super", "Sleepy", "Moth", "Rascal"}
	heroes := []string{"Winston", "Reinhardt", "Tracer", "D.Va", "Ana", "Mercy", "Widowmaker", "Zarya", "Genji", "Zenyatta", "Lucio", "Pharah"}
	for i := range names {
		if err := s.UpdatePlayerName(0, SlotIndex(i), names[i]); err != nil {
			t.Fatal(err)
		}
		setHero(t, s, 0, i, heroes[i])
	}
	return s
}

func TestAddKillResolvesActors(t *testing.T) {
	s := lineup(t)

	k, err := s.AddKill(12.5, KillSpec{
		Killer:   ptr(SlotActor(SlotIndex(2))),
		Assists:  []ActorRef{SlotActor(SlotName("Fate")), NamedActor("Ghost", "Sombra")},
		Killee:   SlotActor(SlotIndex(6)),
		Ability:  "Pulse Bomb",
		Critical: true,
	})
	if err != nil {
		t.Fatalf("AddKill: %v", err)
	}

	if *k.Killer != (KillActor{"Carpe", "Tracer"}) {
		t.Errorf("killer = %+v", *k.Killer)
	}
	if k.Assists[0] != (KillActor{"Fate", "Winston"}) || k.Assists[1] != (KillActor{"Ghost", "Sombra"}) {
		t.Errorf("assists = %+v", k.Assists)
	}
	if k.Killee != (KillActor{"Pine", "Widowmaker"}) {
		t.Errorf("killee = %+v", k.Killee)
	}
	if k.Ability == nil || *k.Ability != "Pulse Bomb" {
		t.Errorf("ability = %v", k.Ability)
	}

	// Слот с явно заданным героем сохраняет имя слота.
	k, err = s.AddKill(13, KillSpec{Killee: ActorRef{Player: SlotIndex(0), Hero: "Ball"}})
	if err != nil {
		t.Fatal(err)
	}
	if k.Killee != (KillActor{"Fate", "Ball"}) || k.Killer != nil || k.Ability != nil {
		t.Errorf("unexpected kill %+v", k)
	}
}

func TestKillValidationLeavesStateUntouched(t *testing.T) {
	s := lineup(t)
	if _, err := s.AddKill(20, KillSpec{Killee: SlotActor(SlotIndex(1))}); err != nil {
		t.Fatal(err)
	}
	s.Updated()

	tests := []struct {
		name string
		spec KillSpec
	}{
		{"empty killee", KillSpec{}},
		{"empty killee name", KillSpec{Killee: NamedActor("", "Ana")}},
		{"unknown killee", KillSpec{Killee: SlotActor(SlotName("Nobody"))}},
		{"bad assist", KillSpec{Killee: SlotActor(SlotIndex(1)), Assists: []ActorRef{SlotActor(SlotIndex(40))}}},
		{"bad killer", KillSpec{Killee: SlotActor(SlotIndex(1)), Killer: ptr(SlotActor(SlotName("x")))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.AddKill(30, tt.spec); !errors.Is(err, ErrInvalidSelection) {
				t.Errorf("AddKill: expected ErrInvalidSelection, got %v", err)
			}
			if err := s.UpdateKill(20, 0, tt.spec); !errors.Is(err, ErrInvalidSelection) {
				t.Errorf("UpdateKill: expected ErrInvalidSelection, got %v", err)
			}
		})
	}

	kills, _ := s.Kills(0)
	if len(kills) != 1 || kills[0].Killee != (KillActor{"Mano", "Reinhardt"}) {
		t.Errorf("kills changed: %+v", kills)
	}
	if s.Updated() {
		t.Error("failed edits must not mark the store dirty")
	}
}

func TestKillWithoutHeroFails(t *testing.T) {
	s := NewStore()
	mustAddMatch(t, s, 0, 100)
	if _, err := s.AddKill(10, KillSpec{Killee: SlotActor(SlotIndex(0))}); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("expected ErrInvalidSelection, got %v", err)
	}
	if _, err := s.AddKill(200, KillSpec{Killee: NamedActor("a", "b")}); !errors.Is(err, ErrNoCurrentMatch) {
		t.Errorf("expected ErrNoCurrentMatch, got %v", err)
	}
}

func TestUpdateAndRemoveKill(t *testing.T) {
	s := lineup(t)
	for _, at := range []float64{30, 10, 20} {
		if _, err := s.AddKill(at, KillSpec{Killee: SlotActor(SlotIndex(6))}); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.UpdateKill(100, 1, KillSpec{Killer: ptr(SlotActor(SlotIndex(6))), Killee: SlotActor(SlotIndex(0))}); err != nil {
		t.Fatal(err)
	}
	kills, _ := s.Kills(0)
	if kills[1].StartTime != 20 {
		t.Errorf("UpdateKill must keep the time, got %v", kills[1].StartTime)
	}
	if kills[1].Killee.PlayerName != "Fate" || kills[1].Killer.PlayerName != "Pine" {
		t.Errorf("kill not replaced: %+v", kills[1])
	}

	if err := s.UpdateKill(100, 3, KillSpec{Killee: SlotActor(SlotIndex(0))}); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("expected ErrInvalidSelection, got %v", err)
	}

	if err := s.RemoveKill(100, 0); err != nil {
		t.Fatal(err)
	}
	kills, _ = s.Kills(0)
	if len(kills) != 2 || kills[0].StartTime != 20 || kills[1].StartTime != 30 {
		t.Errorf("unexpected kills after removal: %d", len(kills))
	}
	if err := s.RemoveKill(100, 5); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("expected ErrInvalidSelection, got %v", err)
	}
}
