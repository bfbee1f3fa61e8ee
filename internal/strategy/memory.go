package strategy

// #region imports
import (
	"database/sql"
	"math"
	"time"
)

// #endregion

// #region schema

const methodOutcomesSchema = `
CREATE TABLE IF NOT EXISTS method_outcomes (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    subject_id  TEXT NOT NULL,
    density     TEXT NOT NULL,
    volatility  TEXT NOT NULL,
    regularity  TEXT NOT NULL,
    method      TEXT NOT NULL,
    quality     REAL NOT NULL,
    accepted    INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL
);
`

const methodOutcomesIndex = `
CREATE INDEX IF NOT EXISTS idx_method_outcomes_lookup
ON method_outcomes(density, volatility, regularity, method);
`

// #endregion

// #region memory-struct

// Memory persists estimation outcomes in SQLite and queries decay-weighted
// results per data regime.
type Memory struct {
	db *sql.DB
}

// NewMemory initializes the method_outcomes table and returns a Memory.
func NewMemory(db *sql.DB) (*Memory, error) {
	if _, err := db.Exec(methodOutcomesSchema); err != nil {
		return nil, err
	}
	if _, err := db.Exec(methodOutcomesIndex); err != nil {
		return nil, err
	}
	return &Memory{db: db}, nil
}

// #endregion

// #region record-outcome

// RecordOutcome persists a single estimation outcome row.
func (m *Memory) RecordOutcome(rec OutcomeRecord) error {
	accepted := 0
	if rec.Accepted {
		accepted = 1
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := m.db.Exec(`
		INSERT INTO method_outcomes
		(subject_id, density, volatility, regularity, method, quality, accepted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SubjectID,
		string(rec.Class.Density),
		string(rec.Class.Volatility),
		string(rec.Class.Regularity),
		rec.Method,
		rec.Quality,
		accepted,
		rec.CreatedAt.Format(time.RFC3339),
	)
	return err
}

// #endregion

// #region best-method

// minLearnedSamples is how many accepted outcomes a method needs in a
// regime before the memory is trusted over the static mapping.
const minLearnedSamples = 3

// BestMethod returns the method with the highest decay-weighted quality
// for the given regime. Returns ("", 0, nil) when no method has enough
// samples.
func (m *Memory) BestMethod(class DataClass) (string, float64, error) {
	rows, err := m.db.Query(`
		SELECT method, quality, created_at
		FROM method_outcomes
		WHERE density = ? AND volatility = ? AND regularity = ? AND accepted = 1`,
		string(class.Density), string(class.Volatility), string(class.Regularity),
	)
	if err != nil {
		return "", 0, err
	}
	defer rows.Close()

	type accum struct {
		weightedSum float64
		totalWeight float64
		count       int
	}

	now := time.Now()
	halfLife := 7.0 * 24.0 // 7 days in hours
	byMethod := make(map[string]*accum)

	for rows.Next() {
		var method string
		var quality float64
		var createdStr string
		if err := rows.Scan(&method, &quality, &createdStr); err != nil {
			return "", 0, err
		}
		createdAt, err := time.Parse(time.RFC3339, createdStr)
		if err != nil {
			continue
		}
		ageHours := now.Sub(createdAt).Hours()
		weight := math.Exp(-ageHours / halfLife)

		a, ok := byMethod[method]
		if !ok {
			a = &accum{}
			byMethod[method] = a
		}
		a.weightedSum += quality * weight
		a.totalWeight += weight
		a.count++
	}
	if err := rows.Err(); err != nil {
		return "", 0, err
	}

	best := ""
	bestScore := -1.0
	for method, a := range byMethod {
		if a.count < minLearnedSamples {
			continue
		}
		avg := a.weightedSum / a.totalWeight
		if avg > bestScore {
			bestScore = avg
			best = method
		}
	}
	return best, bestScore, nil
}

// #endregion
