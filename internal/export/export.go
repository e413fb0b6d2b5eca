// Package export выгружает разметку в SQL-базу для анализа.
// Поддерживаются файлы SQLite и серверы PostgreSQL.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ivlev/vodscrub/internal/timeline"
	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS export_runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		run_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		name TEXT NOT NULL,
		map TEXT NOT NULL,
		game_mode TEXT NOT NULL,
		start_time DOUBLE PRECISION NOT NULL,
		end_time DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, idx)
	)`,
	`CREATE TABLE IF NOT EXISTS hero_spans (
		run_id TEXT NOT NULL,
		match_idx INTEGER NOT NULL,
		slot INTEGER NOT NULL,
		player TEXT NOT NULL,
		hero TEXT NOT NULL,
		start_time DOUBLE PRECISION NOT NULL,
		end_time DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS kills (
		run_id TEXT NOT NULL,
		match_idx INTEGER NOT NULL,
		idx INTEGER NOT NULL,
		time DOUBLE PRECISION NOT NULL,
		killer_name TEXT,
		killer_hero TEXT,
		assists TEXT NOT NULL,
		killee_name TEXT NOT NULL,
		killee_hero TEXT NOT NULL,
		ability TEXT,
		critical BOOLEAN NOT NULL
	)`,
}

// Exporter пишет разметку в одну базу.
type Exporter struct {
	db       *sql.DB
	postgres bool
}

// Summary описывает один запуск выгрузки.
type Summary struct {
	RunID   string
	Matches int
	Heroes  int
	Kills   int
}

// Open подключается к dsn. Адреса postgres:// и postgresql:// идут через pgx,
// все остальное считается путем к файлу SQLite.
func Open(ctx context.Context, dsn string) (*Exporter, error) {
	driver, source, postgres := "sqlite", strings.TrimPrefix(dsn, "sqlite://"), false
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, source, postgres = "pgx", dsn, true
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	e := &Exporter{db: db, postgres: postgres}
	if err := e.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// Close закрывает соединение с базой.
func (e *Exporter) Close() error {
	return e.db.Close()
}

// DB возвращает соединение для произвольных запросов.
func (e *Exporter) DB() *sql.DB {
	return e.db
}

func (e *Exporter) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// rebind заменяет плейсхолдеры ? на $1, $2... для PostgreSQL.
func (e *Exporter) rebind(query string) string {
	if !e.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Export пишет все матчи s под новым run id в одной транзакции.
func (e *Exporter) Export(ctx context.Context, source string, s *timeline.Store) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	exec := func(query string, args ...any) error {
		_, err := tx.ExecContext(ctx, e.rebind(query), args...)
		return err
	}

	if err := exec(`INSERT INTO export_runs (id, source, created_at) VALUES (?, ?, ?)`,
		sum.RunID, source, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return Summary{}, fmt.Errorf("insert run: %w", err)
	}

	for mi, m := range s.Matches() {
		if err := exec(`INSERT INTO matches (run_id, idx, name, map, game_mode, start_time, end_time) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sum.RunID, mi, m.Name, m.Map, m.GameMode, m.StartTime, m.EndTime); err != nil {
			return Summary{}, fmt.Errorf("insert match %d: %w", mi, err)
		}
		sum.Matches++

		for slot := range m.Players {
			p := &m.Players[slot]
			spans := p.Heroes.Items()
			for i, h := range spans {
				end := m.EndTime
				if i+1 < len(spans) {
					end = spans[i+1].StartTime
				}
				if err := exec(`INSERT INTO hero_spans (run_id, match_idx, slot, player, hero, start_time, end_time) VALUES (?, ?, ?, ?, ?, ?, ?)`,
					sum.RunID, mi, slot, p.Name, h.Name, h.StartTime, end); err != nil {
					return Summary{}, fmt.Errorf("insert hero span: %w", err)
				}
				sum.Heroes++
			}
		}

		for ki, k := range m.Kills.All() {
			var killerName, killerHero, ability sql.NullString
			if k.Killer != nil {
				killerName = sql.NullString{String: k.Killer.PlayerName, Valid: true}
				killerHero = sql.NullString{String: k.Killer.HeroName, Valid: true}
			}
			if k.Ability != nil {
				ability = sql.NullString{String: *k.Ability, Valid: true}
			}
			assists := make([]string, 0, len(k.Assists))
			for _, a := range k.Assists {
				assists = append(assists, a.String())
			}
			if err := exec(`INSERT INTO kills (run_id, match_idx, idx, time, killer_name, killer_hero, assists, killee_name, killee_hero, ability, critical) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				sum.RunID, mi, ki, k.StartTime, killerName, killerHero, strings.Join(assists, " & "),
				k.Killee.PlayerName, k.Killee.HeroName, ability, k.Critical); err != nil {
				return Summary{}, fmt.Errorf("insert kill: %w", err)
			}
			sum.Kills++
		}
	}

	if err := tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("failed to commit: %w", err)
	}

	log.WithFields(log.Fields{
		"run":     sum.RunID,
		"matches": sum.Matches,
		"heroes":  sum.Heroes,
		"kills":   sum.Kills,
	}).Info("[+++] Экспорт завершен")
	return sum, nil
}
