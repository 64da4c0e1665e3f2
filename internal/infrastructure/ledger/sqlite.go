package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

// SQLiteArchive persists terminal ledger entries across sessions in a
// SQLite database. A broken archive degrades the history command, never
// the live session, so open failures are reported but non-fatal upstream.
type SQLiteArchive struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewSQLiteArchive creates (or opens) the archive database at path. An
// empty path defaults to ~/.shellpilot/ledger.db.
func NewSQLiteArchive(path string) (*SQLiteArchive, error) {
	if path == "" {
		path = filepath.Join(userHome(), ".shellpilot", "ledger.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	archive := &SQLiteArchive{db: db, path: path}
	if err := archive.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	return archive, nil
}

func (a *SQLiteArchive) init() error {
	_, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recorded_at TEXT,
		command_id TEXT,
		raw_text TEXT,
		intent TEXT,
		risk_tier TEXT,
		status TEXT,
		status_reason TEXT,
		exit_code INTEGER,
		truncated INTEGER,
		duration_ms INTEGER
	);`)
	return err
}

// Record inserts one terminal entry.
func (a *SQLiteArchive) Record(entry domain.LedgerEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cmd := entry.Command
	_, err := a.db.Exec(`INSERT INTO commands
		(recorded_at, command_id, raw_text, intent, risk_tier, status, status_reason, exit_code, truncated, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RecordedAt.Format(time.RFC3339),
		cmd.ID,
		cmd.RawText,
		cmd.IntentSummary,
		string(cmd.RiskTier),
		string(cmd.Status),
		cmd.StatusReason,
		cmd.ExitCode,
		boolToInt(cmd.OutputTruncated),
		cmd.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerWrite, err)
	}
	return nil
}

// Records returns archived entries, newest first. limit of 0 means no
// limit; search filters on raw text and intent.
func (a *SQLiteArchive) Records(limit int, search string) ([]domain.LedgerEntry, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT recorded_at, command_id, raw_text, intent, risk_tier, status, status_reason, exit_code, truncated, duration_ms FROM commands")
	var args []interface{}
	if search != "" {
		builder.WriteString(" WHERE raw_text LIKE ? OR intent LIKE ?")
		args = append(args, "%"+search+"%", "%"+search+"%")
	}
	builder.WriteString(" ORDER BY id DESC")
	if limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := a.db.Query(builder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		var ts, tier, status string
		var truncated int
		var durationMS int64
		if err := rows.Scan(&ts, &entry.Command.ID, &entry.Command.RawText, &entry.Command.IntentSummary,
			&tier, &status, &entry.Command.StatusReason, &entry.Command.ExitCode, &truncated, &durationMS); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.RecordedAt = t
		}
		entry.Command.RiskTier = domain.RiskTier(tier)
		entry.Command.Status = domain.Status(status)
		entry.Command.OutputTruncated = truncated == 1
		entry.Command.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Path returns the database path.
func (a *SQLiteArchive) Path() string {
	return a.path
}

// Close releases the database handle.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ports.Archive = (*SQLiteArchive)(nil)
