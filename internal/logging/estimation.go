package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-estimation
// LogEstimation writes an entry to the estimation_log table.
func LogEstimation(db *sql.DB, entry EstimationEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO estimation_log (subject_id, version_id, trigger_type, source, decision, reason, detail_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SubjectID,
		entry.VersionID,
		entry.Trigger,
		nullIfEmpty(entry.Source),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.DetailJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log estimation: %w", err)
	}
	return nil
}

// #endregion log-estimation

// #region list-recent
// ListRecent reads the newest entries for a subject, newest first. A
// non-positive limit returns all entries.
func ListRecent(db *sql.DB, subjectID string, limit int) ([]EstimationEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(
		`SELECT subject_id, version_id, trigger_type, source, decision, reason, detail_json, created_at
		 FROM estimation_log WHERE subject_id = ? ORDER BY id DESC LIMIT ?`,
		subjectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list estimation log: %w", err)
	}
	defer rows.Close()

	var out []EstimationEntry
	for rows.Next() {
		var e EstimationEntry
		var source, reason, detail sql.NullString
		var createdStr string
		if err := rows.Scan(&e.SubjectID, &e.VersionID, &e.Trigger, &source, &e.Decision, &reason, &detail, &createdStr); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Source = source.String
		e.Reason = reason.String
		e.DetailJSON = detail.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-recent

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
