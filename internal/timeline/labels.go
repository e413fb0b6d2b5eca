package timeline

import (
	"fmt"
	"math"
	"strings"
)

// KillFeedSize - сколько убийств возвращает LabelsAt.
const KillFeedSize = 6

// Labels - все, что оверлей показывает в один момент.
type Labels struct {
	Match        string            `json:"match"`
	PlayerNames  [SlotCount]string `json:"player_names"`
	PlayerHeroes [SlotCount]string `json:"player_heroes"`
	Kills        []string          `json:"kills"`
}

// LabelsAt переводит матч в момент t в строки для показа.
// Лента содержит последние убийства не позже t, свежие первыми.
func (s *Store) LabelsAt(t float64) Labels {
	labels := Labels{Kills: []string{}}
	m, ok := s.matches.Current(t)
	if !ok {
		return labels
	}

	labels.Match = m.Name
	for i := range m.Players {
		labels.PlayerNames[i] = m.Players[i].Name
		labels.PlayerHeroes[i] = m.Players[i].HeroAt(t)
	}
	recent := m.Kills.PrevN(t, KillFeedSize)
	for i := len(recent) - 1; i >= 0; i-- {
		labels.Kills = append(labels.Kills, FormatKill(recent[i]))
	}
	return labels
}

// FormatKill выводит убийство как "Killer:Hero & Assist:Hero *-[Ability]-> Killee:Hero".
// Звездочка отмечает критическое убийство, ассисты выводятся только при убийце.
func FormatKill(k *Kill) string {
	var b strings.Builder
	if k.Killer != nil {
		b.WriteString(k.Killer.String())
		b.WriteString(" ")
		for _, a := range k.Assists {
			b.WriteString("& ")
			b.WriteString(a.String())
			b.WriteString(" ")
		}
	}
	if k.Critical {
		b.WriteString("*")
	}
	if k.Ability != nil {
		b.WriteString("-[")
		b.WriteString(*k.Ability)
		b.WriteString("]")
	}
	b.WriteString("-> ")
	b.WriteString(k.Killee.String())
	return b.String()
}

// FormatTime выводит секунды как MM:SS:mmm или HH:MM:SS:mmm после часа.
func FormatTime(seconds float64) string {
	if seconds < 0 {
		return "-" + FormatTime(-seconds)
	}
	s := math.Floor(seconds)
	ms := int(math.Floor((seconds - s) * 1000))
	total := int(s)
	h := total / 3600
	m := total / 60 % 60
	sec := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d:%03d", h, m, sec, ms)
	}
	return fmt.Sprintf("%02d:%02d:%03d", m, sec, ms)
}
