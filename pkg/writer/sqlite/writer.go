// Package sqlite provides SQLite storage for libraries of analysed CIU fingerprints
package sqlite

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/RuotoloLab/CIUSuite2/pkg/core"
	"github.com/RuotoloLab/CIUSuite2/pkg/snapshot"
)

const (
	// Date format for HeaderTable (ISO 8601)
	headerDateFormat = "2006-01-02"
	// Date format for AnalysisTable and MaintenanceTable
	timestampFormat = "2006-01-02 15:04:05"
	// libraryVersion is written to HeaderTable.version
	libraryVersion = 1
)

// Writer handles writing analyses to SQLite database files. It is safe for concurrent use.
type Writer struct {
	mu             sync.Mutex
	db             *sql.DB
	outputPath     string
	analysisStmt   *sql.Stmt
	fitStmt        *sql.Stmt
	transitionStmt *sql.Stmt
	written        int
}

// NewWriter creates a new SQLite writer. An existing library is appended to.
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS AnalysisTable (
		AnalysisId TEXT PRIMARY KEY,
		Name TEXT,
		SourceFile TEXT,
		Replicates INTEGER,
		NumDT INTEGER,
		NumCV INTEGER,
		blobDT BLOB,
		blobCV BLOB,
		blobCentroids BLOB,
		Snapshot BLOB,
		SnapshotVersion INTEGER,
		CreationDate TEXT
	);

	CREATE TABLE IF NOT EXISTS FitTable (
		FitId INTEGER PRIMARY KEY,
		AnalysisId TEXT REFERENCES AnalysisTable(AnalysisId),
		ColumnIndex INTEGER,
		CV DOUBLE,
		Component INTEGER,
		Baseline DOUBLE,
		Amplitude DOUBLE,
		Centroid DOUBLE,
		Width DOUBLE,
		FWHM DOUBLE,
		Resolution DOUBLE,
		RSquared DOUBLE,
		AdjRSquared DOUBLE,
		Status TEXT
	);

	CREATE TABLE IF NOT EXISTS TransitionTable (
		TransitionId INTEGER PRIMARY KEY,
		AnalysisId TEXT REFERENCES AnalysisTable(AnalysisId),
		Midpoint DOUBLE,
		LowCentroid DOUBLE,
		HighCentroid DOUBLE,
		LowStartCV DOUBLE,
		HighEndCV DOUBLE,
		Logistic BOOL
	);

	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		LastModifiedDate TEXT,
		Description TEXT
	);

	CREATE TABLE IF NOT EXISTS MaintenanceTable (
		CreationDate TEXT,
		NoofAnalysesModified INTEGER,
		Description TEXT
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.analysisStmt, err = w.db.Prepare(`
		INSERT OR REPLACE INTO AnalysisTable (
			AnalysisId, Name, SourceFile, Replicates, NumDT, NumCV,
			blobDT, blobCV, blobCentroids, Snapshot, SnapshotVersion, CreationDate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare analysis statement: %w", err)
	}

	w.fitStmt, err = w.db.Prepare(`
		INSERT INTO FitTable (
			AnalysisId, ColumnIndex, CV, Component, Baseline, Amplitude,
			Centroid, Width, FWHM, Resolution, RSquared, AdjRSquared, Status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare fit statement: %w", err)
	}

	w.transitionStmt, err = w.db.Prepare(`
		INSERT INTO TransitionTable (
			AnalysisId, Midpoint, LowCentroid, HighCentroid, LowStartCV, HighEndCV, Logistic
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare transition statement: %w", err)
	}

	return nil
}

// WriteAnalysis stores one analysis with its fit and features. An ID is assigned when the
// object has none; an analysis already stored under the same ID is replaced. All rows of one
// analysis are written in a single transaction.
func (w *Writer) WriteAnalysis(obj *core.AnalysisObject) error {
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}

	var snap bytes.Buffer
	if err := snapshot.Encode(&snap, obj); err != nil {
		return err
	}

	axes := obj.Axes()
	rows, cols := obj.Data().Dims()

	// Centroids of the first component, NaN for failed columns
	var centroids interface{}
	if obj.Fit != nil {
		vals, _ := obj.Fit.Centroids()
		centroids = encodeFloat64(vals)
	}

	replicates := len(obj.Sources)
	if replicates == 0 {
		replicates = 1
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"FitTable", "TransitionTable"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE AnalysisId = ?", obj.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	_, err = tx.Stmt(w.analysisStmt).Exec(
		obj.ID,                             // AnalysisId
		obj.BaseName(),                     // Name
		obj.Raw.Filepath,                   // SourceFile
		replicates,                         // Replicates
		rows,                               // NumDT
		cols,                               // NumCV
		encodeFloat64(axes.DT),             // blobDT
		encodeFloat64(axes.CV),             // blobCV
		centroids,                          // blobCentroids
		snap.Bytes(),                       // Snapshot
		snapshot.CurrentVersion,            // SnapshotVersion
		time.Now().Format(timestampFormat), // CreationDate
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	if obj.Fit != nil {
		fitStmt := tx.Stmt(w.fitStmt)
		for _, col := range obj.Fit.Columns {
			if !col.OK() {
				_, err = fitStmt.Exec(obj.ID, col.Index, col.CV, nil, nil, nil, nil, nil, nil, nil, nil, nil, col.Err.Error())
				if err != nil {
					return fmt.Errorf("failed to insert fit: %w", err)
				}
				continue
			}
			for k, c := range col.Components {
				_, err = fitStmt.Exec(
					obj.ID, col.Index, col.CV, k,
					c.Baseline, c.Amplitude, c.Centroid, c.Width, c.FWHM, c.Resolution,
					col.RSquared, col.AdjRSquared, "ok",
				)
				if err != nil {
					return fmt.Errorf("failed to insert fit: %w", err)
				}
			}
		}
	}

	if obj.Features != nil {
		transitionStmt := tx.Stmt(w.transitionStmt)
		for i, t := range obj.Features.Transitions {
			low, high := obj.Features.Flanks(i)
			_, err = transitionStmt.Exec(
				obj.ID, t.Midpoint, low.MeanCentroid, high.MeanCentroid, low.StartCV, high.EndCV, t.Logistic,
			)
			if err != nil {
				return fmt.Errorf("failed to insert transition: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analysis: %w", err)
	}
	w.written++
	return nil
}

// encodeFloat64 encodes values as a little-endian float64 blob
func encodeFloat64(values []float64) []byte {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeFloat64 is the inverse of encodeFloat64
func decodeFloat64(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 8", len(buf))
	}
	values := make([]float64, len(buf)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return values, nil
}

// Finalize writes the header and maintenance tables and closes the database
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()

	// Write HeaderTable
	_, err := w.db.Exec(`
		INSERT INTO HeaderTable (version, CreationDate, LastModifiedDate, Description)
		VALUES (?, ?, ?, ?)
	`, libraryVersion, now.Format(headerDateFormat), now.Format(headerDateFormat), "CIU analysis library")
	if err != nil {
		return fmt.Errorf("failed to insert header: %w", err)
	}

	// Write MaintenanceTable
	_, err = w.db.Exec(`
		INSERT INTO MaintenanceTable (CreationDate, NoofAnalysesModified, Description)
		VALUES (?, ?, ?)
	`, now.Format(timestampFormat), w.written, "")
	if err != nil {
		return fmt.Errorf("failed to insert maintenance: %w", err)
	}

	// Close prepared statements
	if w.analysisStmt != nil {
		w.analysisStmt.Close()
	}
	if w.fitStmt != nil {
		w.fitStmt.Close()
	}
	if w.transitionStmt != nil {
		w.transitionStmt.Close()
	}

	// Close database
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Close closes the database connection (alias for Finalize)
func (w *Writer) Close() error {
	return w.Finalize()
}
