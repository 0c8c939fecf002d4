package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raine/yandex-direct/internal/direct"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// StoredReport is a finished report payload kept for later use.
type StoredReport struct {
	ID            string
	ReportType    string
	DateRangeType string
	DateFrom      string
	DateTo        string
	FieldNames    []string
	Body          string
	Rounds        int
	FetchedAt     time.Time
}

// SQLiteStore archives report payloads in SQLite. It stores finished reports
// only; nothing about in-flight jobs is persisted.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the archive at dbPath. Use ":memory:" for
// a throwaway archive.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every new connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	if dbPath != ":memory:" {
		if err := os.Chmod(dbPath, 0600); err != nil {
			log.Warn().Err(err).Str("path", dbPath).Msg("failed to restrict archive permissions")
		}
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		report_type TEXT NOT NULL,
		date_range_type TEXT NOT NULL,
		date_from TEXT,
		date_to TEXT,
		field_names TEXT NOT NULL,
		body TEXT NOT NULL,
		rounds INTEGER NOT NULL,
		fetched_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}

	indexQuery := `CREATE INDEX IF NOT EXISTS reports_type_fetched ON reports (report_type, fetched_at)`
	if _, err := s.db.Exec(indexQuery); err != nil {
		return fmt.Errorf("failed to create reports index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save archives report, fetched for req.
func (s *SQLiteStore) Save(req direct.ReportRequest, report *direct.Report) (*StoredReport, error) {
	stored := &StoredReport{
		ID:            uuid.NewString(),
		ReportType:    req.ReportType,
		DateRangeType: string(req.DateRangeType),
		FieldNames:    req.FieldNames,
		Body:          report.Body,
		Rounds:        report.Rounds,
		FetchedAt:     time.Now().UTC(),
	}
	if req.DateRangeType == direct.DateRangeCustom {
		stored.DateFrom = req.DateFrom
		stored.DateTo = req.DateTo
	}

	fieldsJSON, err := json.Marshal(stored.FieldNames)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal field names: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO reports (id, report_type, date_range_type, date_from, date_to, field_names, body, rounds, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stored.ID, stored.ReportType, stored.DateRangeType, stored.DateFrom, stored.DateTo,
		string(fieldsJSON), stored.Body, stored.Rounds, stored.FetchedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	return stored, nil
}

// Get retrieves an archived report by ID.
// Returns nil, nil if it doesn't exist.
func (s *SQLiteStore) Get(id string) (*StoredReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, report_type, date_range_type, date_from, date_to, field_names, body, rounds, fetched_at
		FROM reports WHERE id = ?
	`, id)
	return scanReport(row)
}

// Latest retrieves the most recently fetched report of reportType.
// Returns nil, nil if there is none.
func (s *SQLiteStore) Latest(reportType string) (*StoredReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, report_type, date_range_type, date_from, date_to, field_names, body, rounds, fetched_at
		FROM reports WHERE report_type = ?
		ORDER BY fetched_at DESC, rowid DESC LIMIT 1
	`, reportType)
	return scanReport(row)
}

// List returns up to limit archived reports, newest first, without bodies.
func (s *SQLiteStore) List(limit int) ([]StoredReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, report_type, date_range_type, date_from, date_to, field_names, '', rounds, fetched_at
		FROM reports ORDER BY fetched_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []StoredReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}

	return reports, nil
}

// Prune deletes reports fetched before olderThan and returns how many were
// removed.
func (s *SQLiteStore) Prune(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM reports WHERE fetched_at < ?", olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune reports: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*StoredReport, error) {
	var (
		report     StoredReport
		dateFrom   sql.NullString
		dateTo     sql.NullString
		fieldsJSON string
	)
	err := row.Scan(&report.ID, &report.ReportType, &report.DateRangeType, &dateFrom, &dateTo,
		&fieldsJSON, &report.Body, &report.Rounds, &report.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan report: %w", err)
	}

	report.DateFrom = dateFrom.String
	report.DateTo = dateTo.String
	if err := json.Unmarshal([]byte(fieldsJSON), &report.FieldNames); err != nil {
		return nil, fmt.Errorf("failed to unmarshal field names: %w", err)
	}

	return &report, nil
}
