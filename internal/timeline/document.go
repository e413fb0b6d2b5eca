package timeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// Формат файла описания на диске. Имена полей менять нельзя.
type document struct {
	Matches []matchDoc `json:"matches"`
}

type matchDoc struct {
	Map       string      `json:"map"`
	GameMode  string      `json:"game_mode"`
	Name      string      `json:"name"`
	StartTime float64     `json:"start_time"`
	EndTime   float64     `json:"end_time"`
	Players   []playerDoc `json:"players"`
	Kills     []killDoc   `json:"kills"`
}

type playerDoc struct {
	Name   string    `json:"name"`
	Heroes []heroDoc `json:"heroes"`
}

type heroDoc struct {
	Name      string  `json:"name"`
	StartTime float64 `json:"start_time"`
}

type killDoc struct {
	StartTime float64    `json:"start_time"`
	Killer    *actorDoc  `json:"killer"`
	Assists   []actorDoc `json:"assists"`
	Killee    actorDoc   `json:"killee"`
	Ability   *string    `json:"ability"`
	Critical  bool       `json:"critical"`
}

type actorDoc struct {
	Name string `json:"name"`
	Hero string `json:"hero"`
}

// DescriptionPath возвращает путь к файлу описания по умолчанию для видео.
func DescriptionPath(video string) string {
	return video[:len(video)-len(filepath.Ext(video))] + ".description.json"
}

// Load читает файл описания. Отсутствующий, пустой или битый файл дает
// пустое хранилище, ошибкой считается только сбой чтения.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read description: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return NewStore(), nil
	}

	s, err := Decode(bytes.NewReader(data))
	if err != nil {
		log.WithField("path", path).Warnf("[!] Файл описания поврежден, разметка начата с нуля: %v", err)
		return NewStore(), nil
	}
	return s, nil
}

// Save атомарно записывает хранилище в path в компактном виде.
func (s *Store) Save(path string) error {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure description directory: %w", err)
		}
	}
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, bytes.TrimRight(buf.Bytes(), "\n"), 0o644); err != nil {
		return fmt.Errorf("write temp description: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace description file: %w", err)
	}
	return nil
}

// Decode разбирает документ описания. Отсутствующие коллекции становятся пустыми.
func Decode(r io.Reader) (*Store, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse description: %w", err)
	}

	matches := make([]*Match, 0, len(doc.Matches))
	for _, md := range doc.Matches {
		m := newMatch(md.StartTime, md.EndTime, md.Map, md.GameMode)
		m.Name = md.Name
		for i, pd := range md.Players {
			if i >= SlotCount {
				break
			}
			heroes := make([]*HeroAssignment, 0, len(pd.Heroes))
			for _, hd := range pd.Heroes {
				heroes = append(heroes, &HeroAssignment{StartTime: hd.StartTime, Name: hd.Name})
			}
			m.Players[i].Name = pd.Name
			m.Players[i].Heroes = newHeroTimeline(heroes...)
		}

		kills := make([]*Kill, 0, len(md.Kills))
		for _, kd := range md.Kills {
			k := &Kill{
				StartTime: kd.StartTime,
				Killee:    KillActor{PlayerName: kd.Killee.Name, HeroName: kd.Killee.Hero},
				Assists:   make([]KillActor, 0, len(kd.Assists)),
				Ability:   kd.Ability,
				Critical:  kd.Critical,
			}
			if kd.Killer != nil {
				k.Killer = &KillActor{PlayerName: kd.Killer.Name, HeroName: kd.Killer.Hero}
			}
			for _, ad := range kd.Assists {
				k.Assists = append(k.Assists, KillActor{PlayerName: ad.Name, HeroName: ad.Hero})
			}
			kills = append(kills, k)
		}
		m.Kills = newKillTimeline(kills...)
		matches = append(matches, m)
	}

	return &Store{matches: newMatchTimeline(matches...), updated: true}, nil
}

// Encode пишет хранилище компактным документом описания.
func (s *Store) Encode(w io.Writer) error {
	doc := document{Matches: make([]matchDoc, 0, s.matches.Len())}
	for _, m := range s.matches.All() {
		md := matchDoc{
			Map:       m.Map,
			GameMode:  m.GameMode,
			Name:      m.Name,
			StartTime: m.StartTime,
			EndTime:   m.EndTime,
			Players:   make([]playerDoc, 0, SlotCount),
			Kills:     make([]killDoc, 0, m.Kills.Len()),
		}
		for _, p := range m.Players {
			pd := playerDoc{Name: p.Name, Heroes: make([]heroDoc, 0, p.Heroes.Len())}
			for _, h := range p.Heroes.All() {
				pd.Heroes = append(pd.Heroes, heroDoc{Name: h.Name, StartTime: h.StartTime})
			}
			md.Players = append(md.Players, pd)
		}
		for _, k := range m.Kills.All() {
			kd := killDoc{
				StartTime: k.StartTime,
				Killee:    actorDoc{Name: k.Killee.PlayerName, Hero: k.Killee.HeroName},
				Assists:   make([]actorDoc, 0, len(k.Assists)),
				Ability:   k.Ability,
				Critical:  k.Critical,
			}
			if k.Killer != nil {
				kd.Killer = &actorDoc{Name: k.Killer.PlayerName, Hero: k.Killer.HeroName}
			}
			for _, a := range k.Assists {
				kd.Assists = append(kd.Assists, actorDoc{Name: a.PlayerName, Hero: a.HeroName})
			}
			md.Kills = append(md.Kills, kd)
		}
		doc.Matches = append(doc.Matches, md)
	}

	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("encode description: %w", err)
	}
	return nil
}
