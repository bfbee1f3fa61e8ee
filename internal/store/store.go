package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/belief"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS twins (
	subject_id  TEXT PRIMARY KEY,
	version     INTEGER NOT NULL,
	version_id  TEXT NOT NULL,
	state_json  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	subject_id  TEXT NOT NULL,
	version     INTEGER NOT NULL,
	version_id  TEXT NOT NULL,
	state_json  TEXT NOT NULL,
	value_blob  BLOB NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_subject ON snapshots(subject_id, id);

CREATE TABLE IF NOT EXISTS profiles (
	subject_id   TEXT PRIMARY KEY,
	profile_json TEXT NOT NULL,
	learned_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS belief_states (
	subject_id  TEXT PRIMARY KEY,
	belief_json TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS estimation_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	subject_id  TEXT NOT NULL,
	version_id  TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	source      TEXT,
	decision    TEXT NOT NULL,
	reason      TEXT,
	detail_json TEXT,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_estlog_subject ON estimation_log(subject_id, id);
`

// #endregion schema

// #region store-struct
// Store persists twin state, bounded snapshot history, personalization
// profiles, belief states and the estimation log in SQLite. It implements
// service.Repository.
type Store struct {
	db         *sql.DB
	historyCap int
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string, historyCap int) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if historyCap <= 0 {
		historyCap = 500
	}
	return &Store{db: db, historyCap: historyCap}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region twins
// GetTwin reads the current twin for a subject.
func (s *Store) GetTwin(subjectID string) (*twin.TwinState, bool, error) {
	var stateJSON string
	err := s.db.QueryRow(
		`SELECT state_json FROM twins WHERE subject_id = ?`, subjectID,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get twin %s: %w", subjectID, err)
	}
	var t twin.TwinState
	if err := json.Unmarshal([]byte(stateJSON), &t); err != nil {
		return nil, false, fmt.Errorf("unmarshal twin %s: %w", subjectID, err)
	}
	return &t, true, nil
}

// PutTwin upserts the current twin.
func (s *Store) PutTwin(t *twin.TwinState) error {
	stateJSON, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal twin: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO twins (subject_id, version, version_id, state_json, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(subject_id) DO UPDATE SET
		   version = excluded.version,
		   version_id = excluded.version_id,
		   state_json = excluded.state_json,
		   updated_at = excluded.updated_at`,
		t.SubjectID, t.Version, t.VersionID, string(stateJSON),
		t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put twin: %w", err)
	}
	return nil
}

// #endregion twins

// #region snapshots
// AppendSnapshot appends a history row and evicts beyond the cap,
// atomically.
func (s *Store) AppendSnapshot(t *twin.TwinState) error {
	stateJSON, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO snapshots (subject_id, version, version_id, state_json, value_blob, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.SubjectID, t.Version, t.VersionID, string(stateJSON),
		encodeValues(t), t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = tx.Exec(
		`DELETE FROM snapshots WHERE subject_id = ? AND id NOT IN (
		   SELECT id FROM snapshots WHERE subject_id = ? ORDER BY id DESC LIMIT ?
		 )`,
		t.SubjectID, t.SubjectID, s.historyCap,
	)
	if err != nil {
		return fmt.Errorf("evict snapshots: %w", err)
	}

	return tx.Commit()
}

// History returns retained snapshots oldest first. A positive window keeps
// only rows within that duration of the newest retained snapshot.
func (s *Store) History(subjectID string, window time.Duration) ([]*twin.TwinState, error) {
	rows, err := s.db.Query(
		`SELECT state_json, updated_at FROM snapshots WHERE subject_id = ? ORDER BY id ASC`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*twin.TwinState
	var stamps []time.Time
	for rows.Next() {
		var stateJSON, updatedStr string
		if err := rows.Scan(&stateJSON, &updatedStr); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var t twin.TwinState
		if err := json.Unmarshal([]byte(stateJSON), &t); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, updatedStr)
		out = append(out, &t)
		stamps = append(stamps, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if window <= 0 || len(out) == 0 {
		return out, nil
	}

	cutoff := stamps[len(stamps)-1].Add(-window)
	start := 0
	for start < len(out) && stamps[start].Before(cutoff) {
		start++
	}
	return out[start:], nil
}

// #endregion snapshots

// #region profiles
// GetProfile reads a subject's personalization profile.
func (s *Store) GetProfile(subjectID string) (twin.Personalization, bool, error) {
	var profileJSON string
	err := s.db.QueryRow(
		`SELECT profile_json FROM profiles WHERE subject_id = ?`, subjectID,
	).Scan(&profileJSON)
	if err == sql.ErrNoRows {
		return twin.Personalization{}, false, nil
	}
	if err != nil {
		return twin.Personalization{}, false, fmt.Errorf("get profile %s: %w", subjectID, err)
	}
	var p twin.Personalization
	if err := json.Unmarshal([]byte(profileJSON), &p); err != nil {
		return twin.Personalization{}, false, fmt.Errorf("unmarshal profile %s: %w", subjectID, err)
	}
	return p, true, nil
}

// PutProfile upserts a personalization profile.
func (s *Store) PutProfile(p twin.Personalization) error {
	profileJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO profiles (subject_id, profile_json, learned_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(subject_id) DO UPDATE SET
		   profile_json = excluded.profile_json,
		   learned_at = excluded.learned_at`,
		p.SubjectID, string(profileJSON), p.LearnedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

// #endregion profiles

// #region beliefs
// GetBeliefs reads a subject's dimension-level belief state.
func (s *Store) GetBeliefs(subjectID string) (*belief.BeliefState, bool, error) {
	var beliefJSON string
	err := s.db.QueryRow(
		`SELECT belief_json FROM belief_states WHERE subject_id = ?`, subjectID,
	).Scan(&beliefJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get beliefs %s: %w", subjectID, err)
	}
	var b belief.BeliefState
	if err := json.Unmarshal([]byte(beliefJSON), &b); err != nil {
		return nil, false, fmt.Errorf("unmarshal beliefs %s: %w", subjectID, err)
	}
	return &b, true, nil
}

// PutBeliefs upserts a subject's belief state.
func (s *Store) PutBeliefs(b *belief.BeliefState) error {
	beliefJSON, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal beliefs: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO belief_states (subject_id, belief_json, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(subject_id) DO UPDATE SET
		   belief_json = excluded.belief_json,
		   updated_at = excluded.updated_at`,
		b.SubjectID, string(beliefJSON), b.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put beliefs: %w", err)
	}
	return nil
}

// #endregion beliefs

// #region subjects
// ListSubjects returns all subject ids with a current twin.
func (s *Store) ListSubjects() ([]string, error) {
	rows, err := s.db.Query(`SELECT subject_id FROM twins ORDER BY subject_id`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// #endregion subjects

// #region series
// VariableSeries reads one variable's value trace from the compact
// snapshot blobs, oldest first, without unmarshalling full states.
func (s *Store) VariableSeries(subjectID, variableID string) ([]float64, error) {
	idx := -1
	for i, id := range twin.VariableIDs() {
		if id == variableID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("unknown variable %q", variableID)
	}

	rows, err := s.db.Query(
		`SELECT value_blob FROM snapshots WHERE subject_id = ? ORDER BY id ASC`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan blob: %w", err)
		}
		if idx*4+4 <= len(blob) {
			out = append(out, float64(math.Float32frombits(binary.LittleEndian.Uint32(blob[idx*4:]))))
		}
	}
	return out, rows.Err()
}

// encodeValues packs the variable values in canonical order into a compact
// little-endian float32 blob.
func encodeValues(t *twin.TwinState) []byte {
	ids := twin.VariableIDs()
	buf := make([]byte, len(ids)*4)
	for i, id := range ids {
		var val float64
		if v, ok := t.Variables[id]; ok {
			val = v.Value
		}
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(val)))
	}
	return buf
}

// #endregion series
