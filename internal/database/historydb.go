package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/crypto/sha3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/pagefetch/internal/log"
	"github.com/nao1215/pagefetch/internal/model"
)

// DBFileName is the name of the history database inside the DB directory.
const DBFileName = "pagefetch.db"

// languageSampleWords bounds the text handed to language detection.
const languageSampleWords = 100

// HistoryDB provides SQLite-based storage for run history.
// Every run gets one row in runs, and every URL outcome of that run one
// row in outcomes. Page bodies are not stored, only their hash.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist,
// an error wrapping ErrNoHistory is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNoHistory, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Outcomes arrive from many workers at once; SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (hdb *HistoryDB) Path() string {
	return hdb.dbPath
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (hdb *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		url_file TEXT,
		proxy_file TEXT,
		url_count INTEGER NOT NULL DEFAULT 0,
		proxy_count INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		url TEXT NOT NULL,
		proxy TEXT NOT NULL,
		reason TEXT NOT NULL,
		status_code INTEGER,
		duration_ms INTEGER,
		content_hash TEXT,
		language TEXT,
		text_length INTEGER,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_url ON outcomes(url);
	CREATE INDEX IF NOT EXISTS idx_outcomes_reason ON outcomes(reason);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunInfo describes a run when it begins.
type RunInfo struct {
	StartedAt  time.Time
	URLFile    string
	ProxyFile  string
	URLCount   int
	ProxyCount int
}

// RunRecord represents a stored run.
type RunRecord struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	URLFile    string
	ProxyFile  string
	URLCount   int
	ProxyCount int
	Total      int
	Succeeded  int
	Failed     int
}

// Finished reports whether the run was closed with FinishRun.
func (r RunRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// OutcomeRecord represents a stored URL outcome.
type OutcomeRecord struct {
	ID          int64
	RunID       int64
	URL         string
	Proxy       string
	Reason      model.Reason
	StatusCode  int
	Duration    time.Duration
	ContentHash string
	Language    string
	TextLength  int
	Timestamp   time.Time
}

// NewOutcomeRecord derives the stored form of an outcome. Successful
// outcomes get a SHA3-256 hash of their HTML and the ISO 639-1 code of
// the detected text language. Proxy credentials are not stored.
func NewOutcomeRecord(o model.Outcome) OutcomeRecord {
	rec := OutcomeRecord{
		URL:        o.URL,
		Proxy:      log.RedactCredentials(o.Proxy),
		Reason:     o.Reason,
		StatusCode: o.StatusCode,
		Duration:   o.Duration,
		TextLength: len(o.Text),
	}
	if o.OK() {
		rec.ContentHash = ContentHash(o.HTML)
		rec.Language = DetectLanguage(o.Text)
	}
	return rec
}

// ContentHash returns the hex SHA3-256 digest of html.
func ContentHash(html string) string {
	sum := sha3.Sum256([]byte(html))
	return hex.EncodeToString(sum[:])
}

// DetectLanguage returns the ISO 639-1 code of the language of text,
// judged from its first words. Blank text yields "".
func DetectLanguage(text string) string {
	words := strings.Fields(text)
	if len(words) > languageSampleWords {
		words = words[:languageSampleWords]
	}
	sample := strings.Join(words, " ")
	if sample == "" {
		return ""
	}

	return whatlanggo.Detect(sample).Lang.Iso6391()
}

// BeginRun inserts a new run and returns its ID.
func (hdb *HistoryDB) BeginRun(ctx context.Context, info RunInfo) (int64, error) {
	startedAt := info.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	query := `
	INSERT INTO runs (started_at, url_file, proxy_file, url_count, proxy_count)
	VALUES (?, ?, ?, ?, ?)
	`

	result, err := hdb.db.ExecContext(ctx, query,
		formatTimestamp(startedAt),
		info.URLFile,
		info.ProxyFile,
		info.URLCount,
		info.ProxyCount,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to begin run: %w", err)
	}

	return result.LastInsertId()
}

// RecordOutcome stores one outcome of the given run.
func (hdb *HistoryDB) RecordOutcome(ctx context.Context, runID int64, rec OutcomeRecord) error {
	query := `
	INSERT INTO outcomes (run_id, url, proxy, reason, status_code, duration_ms, content_hash, language, text_length)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := hdb.db.ExecContext(ctx, query,
		runID,
		rec.URL,
		rec.Proxy,
		rec.Reason.Label(),
		rec.StatusCode,
		rec.Duration.Milliseconds(),
		rec.ContentHash,
		rec.Language,
		rec.TextLength,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	return nil
}

// FinishRun closes a run with the totals of its summary.
func (hdb *HistoryDB) FinishRun(ctx context.Context, runID int64, summary *model.RunSummary) error {
	finishedAt := summary.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	query := `
	UPDATE runs SET finished_at = ?, total = ?, succeeded = ?, failed = ?
	WHERE id = ?
	`

	result, err := hdb.db.ExecContext(ctx, query,
		formatTimestamp(finishedAt),
		summary.Total(),
		summary.Succeeded(),
		summary.Failed(),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}

	return nil
}

const runColumns = `id, started_at, finished_at, url_file, proxy_file, url_count, proxy_count, total, succeeded, failed`

// ListRuns returns the most recent runs, newest first.
// A limit of zero or less returns every run.
func (hdb *HistoryDB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY id DESC`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRun retrieves a run by ID. It returns ErrRunNotFound if the run
// does not exist.
func (hdb *HistoryDB) GetRun(ctx context.Context, runID int64) (*RunRecord, error) {
	row := hdb.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListOutcomes returns every outcome of a run in recording order.
func (hdb *HistoryDB) ListOutcomes(ctx context.Context, runID int64) ([]OutcomeRecord, error) {
	return hdb.queryOutcomes(ctx, `WHERE run_id = ?`, runID)
}

// ListFailures returns the failed outcomes of a run in recording order.
func (hdb *HistoryDB) ListFailures(ctx context.Context, runID int64) ([]OutcomeRecord, error) {
	return hdb.queryOutcomes(ctx, `WHERE run_id = ? AND reason <> ?`, runID, model.ReasonNone.Label())
}

// CountByReason returns the number of outcomes per reason for a run.
func (hdb *HistoryDB) CountByReason(ctx context.Context, runID int64) (map[model.Reason]int, error) {
	query := `SELECT reason, COUNT(*) FROM outcomes WHERE run_id = ? GROUP BY reason`

	rows, err := hdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Reason]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[model.ReasonFromLabel(label)] += n
	}

	return counts, rows.Err()
}

func (hdb *HistoryDB) queryOutcomes(ctx context.Context, where string, args ...any) ([]OutcomeRecord, error) {
	query := `
	SELECT id, run_id, url, proxy, reason, status_code, duration_ms, content_hash, language, text_length, timestamp
	FROM outcomes
	` + where + `
	ORDER BY id
	`

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var results []OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		var reason, timestamp string
		var durationMS int64

		err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.URL,
			&rec.Proxy,
			&reason,
			&rec.StatusCode,
			&durationMS,
			&rec.ContentHash,
			&rec.Language,
			&rec.TextLength,
			&timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}

		rec.Reason = model.ReasonFromLabel(reason)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.Timestamp = parseTimestamp(timestamp)
		results = append(results, rec)
	}

	return results, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var run RunRecord
	var startedAt string
	var finishedAt, urlFile, proxyFile sql.NullString

	err := row.Scan(
		&run.ID,
		&startedAt,
		&finishedAt,
		&urlFile,
		&proxyFile,
		&run.URLCount,
		&run.ProxyCount,
		&run.Total,
		&run.Succeeded,
		&run.Failed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return run, err
	}
	if err != nil {
		return run, fmt.Errorf("failed to scan run: %w", err)
	}

	run.StartedAt = parseTimestamp(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTimestamp(finishedAt.String)
	}
	run.URLFile = urlFile.String
	run.ProxyFile = proxyFile.String

	return run, nil
}

// storedTimestampFormat is the layout used for timestamps written by this package.
const storedTimestampFormat = "2006-01-02 15:04:05.000"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimestampFormat)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
