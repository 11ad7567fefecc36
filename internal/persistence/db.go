// Package persistence stores runs on disk: a SQLite journal of every
// flushed update plus entity snapshots, and a compressed JSONL stream of
// the same batches.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/twinsim/internal/engine"
	"github.com/talgya/twinsim/internal/entities"
)

// Meta keys.
const (
	MetaResonance = "resonance"
	MetaLastTick  = "last_tick"
	MetaRunID     = "run_id"
)

// DB wraps a SQLite connection for journal and snapshot storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite takes one writer at a time.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		pos_x REAL NOT NULL,
		pos_y REAL NOT NULL,
		mood TEXT NOT NULL,
		activity TEXT NOT NULL,
		state TEXT NOT NULL,
		is_dead INTEGER NOT NULL,
		last_state_change TEXT NOT NULL,
		last_activity_change TEXT NOT NULL,
		color_hue REAL NOT NULL,
		stats_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS updates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		at TEXT NOT NULL,
		entity TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_updates_run_seq ON updates(run_id, seq);
	CREATE INDEX IF NOT EXISTS idx_updates_entity ON updates(entity);
	CREATE INDEX IF NOT EXISTS idx_updates_kind ON updates(kind);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Apply journals every update of a flushed batch in one transaction.
func (db *DB) Apply(ctx context.Context, b engine.Batch) error {
	if len(b.Updates) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO updates
		(run_id, seq, tick, at, entity, kind, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range b.Updates {
		payload, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode %s update: %w", u.Kind, err)
		}
		_, err = stmt.ExecContext(ctx,
			b.RunID, b.Seq, u.Tick, u.At.UTC().Format(time.RFC3339Nano),
			string(u.Entity), u.Kind.String(), string(payload),
		)
		if err != nil {
			return fmt.Errorf("insert update %d/%s: %w", b.Seq, u.Kind, err)
		}
	}

	return tx.Commit()
}

type entityRow struct {
	ID                 string  `db:"id"`
	PosX               float64 `db:"pos_x"`
	PosY               float64 `db:"pos_y"`
	Mood               string  `db:"mood"`
	Activity           string  `db:"activity"`
	State              string  `db:"state"`
	IsDead             int     `db:"is_dead"`
	LastStateChange    string  `db:"last_state_change"`
	LastActivityChange string  `db:"last_activity_change"`
	ColorHue           float64 `db:"color_hue"`
	StatsJSON          string  `db:"stats_json"`
}

// SaveEntities writes all entities to the database (full replace).
func (db *DB) SaveEntities(ctx context.Context, list []entities.Entity) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entities"); err != nil {
		return err
	}

	for _, e := range list {
		statsJSON, err := json.Marshal(e.Stats)
		if err != nil {
			return fmt.Errorf("encode stats of %s: %w", e.ID, err)
		}
		dead := 0
		if e.IsDead {
			dead = 1
		}
		_, err = tx.NamedExecContext(ctx, `INSERT INTO entities
			(id, pos_x, pos_y, mood, activity, state, is_dead,
			 last_state_change, last_activity_change, color_hue, stats_json)
			VALUES (:id, :pos_x, :pos_y, :mood, :activity, :state, :is_dead,
			 :last_state_change, :last_activity_change, :color_hue, :stats_json)`,
			entityRow{
				ID:                 string(e.ID),
				PosX:               e.Position.X,
				PosY:               e.Position.Y,
				Mood:               e.Mood.String(),
				Activity:           e.Activity.String(),
				State:              e.State.String(),
				IsDead:             dead,
				LastStateChange:    e.LastStateChange.UTC().Format(time.RFC3339Nano),
				LastActivityChange: e.LastActivityChange.UTC().Format(time.RFC3339Nano),
				ColorHue:           e.ColorHue,
				StatsJSON:          string(statsJSON),
			})
		if err != nil {
			return fmt.Errorf("insert entity %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// LoadEntities reads the last snapshot. Rows with unknown ids or enum
// names are rejected.
func (db *DB) LoadEntities(ctx context.Context) ([]entities.Entity, error) {
	var rows []entityRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT * FROM entities ORDER BY id"); err != nil {
		return nil, err
	}

	out := make([]entities.Entity, 0, len(rows))
	for _, r := range rows {
		e, err := r.entity()
		if err != nil {
			return nil, fmt.Errorf("entity row %q: %w", r.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r entityRow) entity() (entities.Entity, error) {
	var e entities.Entity
	var err error
	if e.ID, err = entities.ParseID(r.ID); err != nil {
		return e, err
	}
	if e.Mood, err = entities.ParseMood(r.Mood); err != nil {
		return e, err
	}
	if e.Activity, err = entities.ParseActivity(r.Activity); err != nil {
		return e, err
	}
	if e.State, err = entities.ParseState(r.State); err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(r.StatsJSON), &e.Stats); err != nil {
		return e, fmt.Errorf("stats: %w", err)
	}
	e.Stats = e.Stats.Sanitize(entities.DefaultStats())
	e.Position = entities.Position{X: r.PosX, Y: r.PosY}
	e.IsDead = r.IsDead != 0
	e.ColorHue = r.ColorHue
	e.LastStateChange, _ = time.Parse(time.RFC3339Nano, r.LastStateChange)
	e.LastActivityChange, _ = time.Parse(time.RFC3339Nano, r.LastActivityChange)
	return e, nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// Snapshot is the state written by SaveSnapshot.
type Snapshot struct {
	RunID     string
	Tick      uint64
	Resonance float64
	Entities  []entities.Entity
}

// SaveSnapshot performs a full save of the entity table and run metadata.
func (db *DB) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	slog.Debug("saving snapshot", "tick", snap.Tick, "entities", len(snap.Entities))

	if err := db.SaveEntities(ctx, snap.Entities); err != nil {
		return fmt.Errorf("save entities: %w", err)
	}
	for k, v := range map[string]string{
		MetaRunID:     snap.RunID,
		MetaLastTick:  strconv.FormatUint(snap.Tick, 10),
		MetaResonance: strconv.FormatFloat(snap.Resonance, 'g', -1, 64),
	} {
		if err := db.SaveMeta(k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}
	return nil
}

// LoadResonance returns the persisted resonance. ok is false when no
// snapshot was ever saved.
func (db *DB) LoadResonance() (r float64, ok bool, err error) {
	v, err := db.GetMeta(MetaResonance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	r, err = strconv.ParseFloat(v, 64)
	if err != nil || !entities.Finite(r) {
		return 0, false, fmt.Errorf("resonance meta %q: invalid", v)
	}
	return r, true, nil
}

// JournalEntry is one row of the update journal.
type JournalEntry struct {
	ID      int64           `db:"id" json:"id"`
	RunID   string          `db:"run_id" json:"run_id"`
	Seq     uint64          `db:"seq" json:"seq"`
	Tick    uint64          `db:"tick" json:"tick"`
	At      string          `db:"at" json:"at"`
	Entity  string          `db:"entity" json:"entity,omitempty"`
	Kind    string          `db:"kind" json:"kind"`
	Payload json.RawMessage `db:"-" json:"payload"`
	Raw     string          `db:"payload_json" json:"-"`
}

// RecentUpdates returns the most recent journal rows, newest first. A
// non-empty kind filters by update kind.
func (db *DB) RecentUpdates(ctx context.Context, kind string, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []JournalEntry
	var err error
	if kind == "" {
		err = db.conn.SelectContext(ctx, &rows,
			"SELECT id, run_id, seq, tick, at, entity, kind, payload_json FROM updates ORDER BY id DESC LIMIT ?",
			limit)
	} else {
		if _, perr := engine.ParseKind(kind); perr != nil {
			return nil, perr
		}
		err = db.conn.SelectContext(ctx, &rows,
			"SELECT id, run_id, seq, tick, at, entity, kind, payload_json FROM updates WHERE kind = ? ORDER BY id DESC LIMIT ?",
			kind, limit)
	}
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Payload = json.RawMessage(rows[i].Raw)
	}
	return rows, nil
}

// CountUpdates returns the number of journal rows per kind.
func (db *DB) CountUpdates(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Kind  string `db:"kind"`
		Count int64  `db:"n"`
	}
	if err := db.conn.SelectContext(ctx, &rows, "SELECT kind, COUNT(*) AS n FROM updates GROUP BY kind"); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Kind] = r.Count
	}
	return out, nil
}
