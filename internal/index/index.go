// Package index maintains a SQLite mirror of the append-only JSON/
// JSONL logs internal/world.Store writes (space messages, stdout
// entries, execution records), purely to make cross-entity search fast
// for the "o inspect" CLI subcommand. The JSON/JSONL files remain the
// single source of truth: Rebuild re-derives the index from them at
// startup, and losing the index file is never a data-loss event.
package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Index is a read-only-from-the-core-runtime's-perspective SQLite
// mirror of the on-disk logs. All public methods are safe for
// concurrent use (SQLite serializes writes).
type Index struct {
	db *sql.DB
}

// Open creates or opens the index database at path and ensures its
// schema exists.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("index: open database: %w", err)
	}
	ix := &Index{db: db}
	if err := ix.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: migrate: %w", err)
	}
	return ix, nil
}

// Close closes the underlying database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}

func (ix *Index) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS space_messages (
		space     TEXT NOT NULL,
		tick      INTEGER NOT NULL,
		sender    TEXT NOT NULL,
		content   TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_space_messages_space ON space_messages(space);

	CREATE TABLE IF NOT EXISTS stdout_entries (
		entity    TEXT NOT NULL,
		tick      INTEGER NOT NULL,
		content   TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_stdout_entries_entity ON stdout_entries(entity);

	CREATE TABLE IF NOT EXISTS execution_records (
		tick       INTEGER NOT NULL,
		executor   TEXT NOT NULL,
		command    TEXT NOT NULL,
		output     TEXT NOT NULL,
		request_id TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_execution_records_executor ON execution_records(executor);
	`
	_, err := ix.db.Exec(schema)
	return err
}

// wire shapes mirroring internal/world.Store's on-disk line formats —
// duplicated rather than imported so the index can be rebuilt from raw
// files without depending on internal/world (it is a pure read-side
// tool over the same files, not a World collaborator).
type spaceLogLine struct {
	Tick      int    `json:"tick"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type stdoutLogLine struct {
	Tick      int    `json:"tick"`
	Entity    string `json:"entity"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type tickLogEntry struct {
	Executor  string `json:"executor"`
	Command   string `json:"command"`
	Output    string `json:"output"`
	RequestID string `json:"request_id,omitempty"`
}

type tickLogFile struct {
	Version    string         `json:"version"`
	Tick       int            `json:"tick"`
	Executions []tickLogEntry `json:"executions"`
}

// Rebuild clears the index and re-derives it from stateDir/logs and
// memoryDir/spaces, memoryDir/stdout. It tolerates missing directories
// (a fresh run with nothing persisted yet) and malformed individual
// lines, the same way internal/world.Store's readers do.
func (ix *Index) Rebuild(stateDir, memoryDir string) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("index: begin rebuild: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"space_messages", "stdout_entries", "execution_records"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("index: clearing %s: %w", table, err)
		}
	}

	if err := rebuildSpaces(tx, memoryDir); err != nil {
		return err
	}
	if err := rebuildStdout(tx, memoryDir); err != nil {
		return err
	}
	if err := rebuildExecutions(tx, stateDir); err != nil {
		return err
	}

	return tx.Commit()
}

func rebuildSpaces(tx *sql.Tx, memoryDir string) error {
	dir := filepath.Join(memoryDir, "spaces")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("index: reading %s: %w", dir, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO space_messages (space, tick, sender, content, timestamp) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		spaceID := strings.TrimSuffix(e.Name(), ".jsonl")
		lines, err := readJSONLines(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		for _, raw := range lines {
			var line spaceLogLine
			if err := json.Unmarshal(raw, &line); err != nil {
				continue
			}
			if _, err := stmt.Exec(spaceID, line.Tick, line.Sender, line.Content, line.Timestamp); err != nil {
				return fmt.Errorf("index: inserting space message: %w", err)
			}
		}
	}
	return nil
}

func rebuildStdout(tx *sql.Tx, memoryDir string) error {
	dir := filepath.Join(memoryDir, "stdout")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("index: reading %s: %w", dir, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO stdout_entries (entity, tick, content, timestamp) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		lines, err := readJSONLines(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		for _, raw := range lines {
			var line stdoutLogLine
			if err := json.Unmarshal(raw, &line); err != nil {
				continue
			}
			if _, err := stmt.Exec(line.Entity, line.Tick, line.Content, line.Timestamp); err != nil {
				return fmt.Errorf("index: inserting stdout entry: %w", err)
			}
		}
	}
	return nil
}

func rebuildExecutions(tx *sql.Tx, stateDir string) error {
	dir := filepath.Join(stateDir, "logs")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("index: reading %s: %w", dir, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO execution_records (tick, executor, command, output, request_id) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("index: reading %s: %w", e.Name(), err)
		}
		var file tickLogFile
		if err := json.Unmarshal(data, &file); err != nil {
			continue
		}
		for _, rec := range file.Executions {
			if _, err := stmt.Exec(file.Tick, rec.Executor, rec.Command, rec.Output, rec.RequestID); err != nil {
				return fmt.Errorf("index: inserting execution record: %w", err)
			}
		}
	}
	return nil
}

func readJSONLines(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: reading %s: %w", path, err)
	}
	var out []json.RawMessage
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if line == "" {
			continue
		}
		out = append(out, json.RawMessage(line))
	}
	return out, nil
}

// SpaceMessageHit is one row returned by QuerySpaceMessages.
type SpaceMessageHit struct {
	Space     string
	Tick      int
	Sender    string
	Content   string
	Timestamp string
}

// QuerySpaceMessages returns every space message whose content
// contains substr (case-insensitive), most recent first.
func (ix *Index) QuerySpaceMessages(substr string) ([]SpaceMessageHit, error) {
	rows, err := ix.db.Query(
		`SELECT space, tick, sender, content, timestamp FROM space_messages
		 WHERE content LIKE '%' || ? || '%' COLLATE NOCASE
		 ORDER BY tick DESC`,
		substr,
	)
	if err != nil {
		return nil, fmt.Errorf("index: query space messages: %w", err)
	}
	defer rows.Close()

	var out []SpaceMessageHit
	for rows.Next() {
		var h SpaceMessageHit
		if err := rows.Scan(&h.Space, &h.Tick, &h.Sender, &h.Content, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("index: scan space message: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// StdoutHit is one row returned by QueryStdout.
type StdoutHit struct {
	Entity    string
	Tick      int
	Content   string
	Timestamp string
}

// QueryStdout returns every stdout entry, across all entities, whose
// content contains substr (case-insensitive), most recent first.
func (ix *Index) QueryStdout(substr string) ([]StdoutHit, error) {
	rows, err := ix.db.Query(
		`SELECT entity, tick, content, timestamp FROM stdout_entries
		 WHERE content LIKE '%' || ? || '%' COLLATE NOCASE
		 ORDER BY tick DESC`,
		substr,
	)
	if err != nil {
		return nil, fmt.Errorf("index: query stdout: %w", err)
	}
	defer rows.Close()

	var out []StdoutHit
	for rows.Next() {
		var h StdoutHit
		if err := rows.Scan(&h.Entity, &h.Tick, &h.Content, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("index: scan stdout entry: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ExecutionHit is one row returned by QueryExecutions.
type ExecutionHit struct {
	Tick      int
	Executor  string
	Command   string
	Output    string
	RequestID string
}

// QueryExecutions returns every execution record whose command or
// output contains substr (case-insensitive), most recent first.
func (ix *Index) QueryExecutions(substr string) ([]ExecutionHit, error) {
	rows, err := ix.db.Query(
		`SELECT tick, executor, command, output, request_id FROM execution_records
		 WHERE command LIKE '%' || ? || '%' COLLATE NOCASE
		    OR output LIKE '%' || ? || '%' COLLATE NOCASE
		 ORDER BY tick DESC`,
		substr, substr,
	)
	if err != nil {
		return nil, fmt.Errorf("index: query executions: %w", err)
	}
	defer rows.Close()

	var out []ExecutionHit
	for rows.Next() {
		var h ExecutionHit
		if err := rows.Scan(&h.Tick, &h.Executor, &h.Command, &h.Output, &h.RequestID); err != nil {
			return nil, fmt.Errorf("index: scan execution record: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
