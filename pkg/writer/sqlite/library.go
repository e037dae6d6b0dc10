package sqlite

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
	"github.com/RuotoloLab/CIUSuite2/pkg/snapshot"
)

// Entry summarises one stored analysis.
type Entry struct {
	ID          string
	Name        string
	SourceFile  string
	Replicates  int
	DT          []float64
	CV          []float64
	Centroids   []float64 // nil when the analysis was stored without a fit
	Transitions int
	Created     string
}

// List returns every analysis stored in the library at path, ordered by name.
func List(path string) ([]Entry, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT a.AnalysisId, a.Name, a.SourceFile, a.Replicates, a.blobDT, a.blobCV, a.blobCentroids,
			a.CreationDate, (SELECT COUNT(*) FROM TransitionTable t WHERE t.AnalysisId = a.AnalysisId)
		FROM AnalysisTable a
		ORDER BY a.Name, a.CreationDate
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var dt, cv, centroids []byte
		if err := rows.Scan(&e.ID, &e.Name, &e.SourceFile, &e.Replicates, &dt, &cv, &centroids, &e.Created, &e.Transitions); err != nil {
			return nil, fmt.Errorf("failed to read analysis: %w", err)
		}
		if e.DT, err = decodeFloat64(dt); err != nil {
			return nil, fmt.Errorf("analysis %s: %w", e.ID, err)
		}
		if e.CV, err = decodeFloat64(cv); err != nil {
			return nil, fmt.Errorf("analysis %s: %w", e.ID, err)
		}
		if centroids != nil {
			if e.Centroids, err = decodeFloat64(centroids); err != nil {
				return nil, fmt.Errorf("analysis %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Load restores the analysis with the given ID from its stored snapshot.
func Load(path, id string) (*core.AnalysisObject, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	var blob []byte
	err = db.QueryRow(`SELECT Snapshot FROM AnalysisTable WHERE AnalysisId = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s not found in %s", id, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis: %w", err)
	}
	return snapshot.Decode(bytes.NewReader(blob))
}
