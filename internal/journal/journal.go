// Package journal records relocation requests in a SQLite database under
// the workspace state directory, together with the host files captured
// before each request first mutated the tree.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"solmove/internal/errors"
	"solmove/internal/host"
	"solmove/internal/logging"
	"solmove/internal/paths"
	"solmove/internal/relocate"
)

// schemaVersion is bumped whenever the schema changes.
const schemaVersion = 1

// timeFormat sorts lexically in chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Status summarizes how a request ended.
type Status string

const (
	// StatusRunning marks a request that has not finished, or whose process died
	StatusRunning Status = "running"
	// StatusOK marks a request that moved the project and rebound every holder
	StatusOK Status = "ok"
	// StatusPartial marks a moved project with at least one rebind failure
	StatusPartial Status = "partial"
	// StatusAborted marks a failed move; the tree needs a manual check
	StatusAborted Status = "aborted"
	// StatusFailed marks a request rejected before the move
	StatusFailed Status = "failed"
)

// Entry is one recorded request.
type Entry struct {
	ID         string            `json:"id" yaml:"id"`
	Target     string            `json:"target" yaml:"target"`
	Container  string            `json:"container" yaml:"container"`
	Host       string            `json:"host" yaml:"host"`
	State      relocate.State    `json:"state" yaml:"state"`
	Status     Status            `json:"status" yaml:"status"`
	ErrorCode  errors.ErrorCode  `json:"errorCode,omitempty" yaml:"errorCode,omitempty"`
	Error      string            `json:"error,omitempty" yaml:"error,omitempty"`
	Result     *relocate.Result  `json:"result,omitempty" yaml:"result,omitempty"`
	StartedAt  time.Time         `json:"startedAt" yaml:"startedAt"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
	Steps      []Step            `json:"steps,omitempty" yaml:"steps,omitempty"`
	Files      []SnapshotSummary `json:"files,omitempty" yaml:"files,omitempty"`
}

// Step is one recorded state transition.
type Step struct {
	From relocate.State `json:"from" yaml:"from"`
	To   relocate.State `json:"to" yaml:"to"`
	At   time.Time      `json:"at" yaml:"at"`
}

// SnapshotSummary describes a stored file without its content.
type SnapshotSummary struct {
	Path           string `json:"path" yaml:"path"`
	Size           int    `json:"size" yaml:"size"`
	CompressedSize int    `json:"compressedSize" yaml:"compressedSize"`
}

// Journal is the request history. It is safe for concurrent use.
type Journal struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string

	enc *zstd.Encoder
	dec *zstd.Decoder
}

var _ relocate.Recorder = (*Journal)(nil)

// Open opens or creates the journal at <root>/.solmove/journal.db.
func Open(root string, logger *logging.Logger) (*Journal, error) {
	if _, err := paths.EnsureStateDir(root); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return OpenPath(paths.GetJournalPath(root), logger)
}

// OpenPath opens or creates a journal database at dbPath.
func OpenPath(dbPath string, logger *logging.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	dbExists := fileExists(dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}

	j := &Journal{conn: conn, logger: logger, dbPath: dbPath, enc: enc, dec: dec}

	if !dbExists {
		logger.Info("Creating journal", map[string]interface{}{
			"path": dbPath,
		})
	}
	if err := j.initializeSchema(); err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return j, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (j *Journal) initializeSchema() error {
	var version int
	err := j.conn.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err == nil && version >= schemaVersion {
		return nil
	}

	schema := `
		CREATE TABLE IF NOT EXISTS requests (
			id TEXT PRIMARY KEY,
			target TEXT NOT NULL,
			container TEXT NOT NULL,
			host TEXT,
			state TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'running',
			error_code TEXT,
			error TEXT,
			result TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_requests_started_at ON requests(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_requests_target ON requests(target);

		CREATE TABLE IF NOT EXISTS transitions (
			request_id TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			at TEXT NOT NULL,
			PRIMARY KEY (request_id, seq)
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			request_id TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			size INTEGER NOT NULL,
			content BLOB NOT NULL,
			PRIMARY KEY (request_id, path)
		);

		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);
		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`
	_, err = j.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.dec != nil {
		j.dec.Close()
	}
	if j.enc != nil {
		_ = j.enc.Close()
	}
	if j.conn != nil {
		return j.conn.Close()
	}
	return nil
}

// Path returns the database file.
func (j *Journal) Path() string {
	return j.dbPath
}

// Begin implements relocate.Recorder.
func (j *Journal) Begin(ctx context.Context, req relocate.Request) (string, error) {
	id := uuid.New().String()
	_, err := j.conn.ExecContext(ctx, `
		INSERT INTO requests (id, target, container, host, state, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		req.Target.String(),
		req.Container,
		nullString(req.Host),
		string(relocate.Idle),
		StatusRunning,
		req.StartedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record request: %w", err)
	}

	j.logger.Debug("Recorded request", map[string]interface{}{
		"requestId": id,
		"target":    req.Target.String(),
	})
	return id, nil
}

// Snapshot implements relocate.Recorder.
func (j *Journal) Snapshot(ctx context.Context, id string, files []host.FileSnapshot) error {
	tx, err := j.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM requests WHERE id = ?`, id).Scan(&exists); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}

	for _, f := range files {
		compressed := j.enc.EncodeAll(f.Content, nil)
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO snapshots (request_id, path, size, content)
			VALUES (?, ?, ?, ?)
		`, id, f.Path, len(f.Content), compressed); err != nil {
			return fmt.Errorf("failed to store snapshot of %s: %w", f.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshots: %w", err)
	}
	return nil
}

// Transition implements relocate.Recorder.
func (j *Journal) Transition(ctx context.Context, id string, from, to relocate.State, at time.Time) error {
	return j.withTx(ctx, func(tx *sql.Tx) error {
		// The request row must exist before the transitions foreign key is checked.
		res, err := tx.ExecContext(ctx, `UPDATE requests SET state = ? WHERE id = ?`, string(to), id)
		if err != nil {
			return err
		}
		if err := requireRow(res, id); err != nil {
			return err
		}

		var seq int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM transitions WHERE request_id = ?`, id,
		).Scan(&seq); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transitions (request_id, seq, from_state, to_state, at)
			VALUES (?, ?, ?, ?, ?)
		`, id, seq+1, string(from), string(to), at.UTC().Format(timeFormat))
		return err
	})
}

// Finish implements relocate.Recorder.
func (j *Journal) Finish(ctx context.Context, id string, res *relocate.Result, reqErr error) error {
	status := statusOf(res, reqErr)

	var resultJSON sql.NullString
	state := relocate.Idle
	finishedAt := time.Now()
	if res != nil {
		data, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
		state = res.State
		if !res.FinishedAt.IsZero() {
			finishedAt = res.FinishedAt
		}
	}
	var code, message sql.NullString
	if reqErr != nil {
		message = sql.NullString{String: reqErr.Error(), Valid: true}
		var re *errors.RelocationError
		if stderrors.As(reqErr, &re) {
			code = sql.NullString{String: string(re.Code), Valid: true}
		}
	}

	r, err := j.conn.ExecContext(ctx, `
		UPDATE requests
		SET state = ?, status = ?, error_code = ?, error = ?, result = ?, finished_at = ?
		WHERE id = ?
	`, string(state), status, code, message, resultJSON, finishedAt.UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	if err := requireRow(r, id); err != nil {
		return err
	}

	j.logger.Debug("Recorded result", map[string]interface{}{
		"requestId": id,
		"status":    string(status),
	})
	return nil
}

func statusOf(res *relocate.Result, err error) Status {
	switch {
	case errors.IsPostMove(err):
		return StatusAborted
	case err != nil:
		return StatusFailed
	case res != nil && !res.OK():
		return StatusPartial
	default:
		return StatusOK
	}
}

// List returns the most recent requests first, without steps or files.
// A limit of zero or less returns everything.
func (j *Journal) List(ctx context.Context, limit int) ([]*Entry, error) {
	query := `
		SELECT id, target, container, host, state, status, error_code, error, result, started_at, finished_at
		FROM requests
		ORDER BY started_at DESC, rowid DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ErrNotFound is returned when no request has the given id.
var ErrNotFound = stderrors.New("request not found")

// Get returns one request with its steps and snapshot summaries. A unique
// id prefix is accepted.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	full, err := j.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	row := j.conn.QueryRowContext(ctx, `
		SELECT id, target, container, host, state, status, error_code, error, result, started_at, finished_at
		FROM requests WHERE id = ?
	`, full)
	e, err := scanEntry(row)
	if err != nil {
		return nil, err
	}

	steps, err := j.conn.QueryContext(ctx, `
		SELECT from_state, to_state, at FROM transitions WHERE request_id = ? ORDER BY seq
	`, full)
	if err != nil {
		return nil, fmt.Errorf("failed to read transitions: %w", err)
	}
	defer steps.Close()
	for steps.Next() {
		var from, to, at string
		if err := steps.Scan(&from, &to, &at); err != nil {
			return nil, err
		}
		s := Step{From: relocate.State(from), To: relocate.State(to)}
		s.At, _ = time.Parse(timeFormat, at)
		e.Steps = append(e.Steps, s)
	}
	if err := steps.Err(); err != nil {
		return nil, err
	}

	files, err := j.conn.QueryContext(ctx, `
		SELECT path, size, length(content) FROM snapshots WHERE request_id = ? ORDER BY path
	`, full)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	defer files.Close()
	for files.Next() {
		var s SnapshotSummary
		if err := files.Scan(&s.Path, &s.Size, &s.CompressedSize); err != nil {
			return nil, err
		}
		e.Files = append(e.Files, s)
	}
	return e, files.Err()
}

// Snapshots returns the decompressed files stored for a request.
func (j *Journal) Snapshots(ctx context.Context, id string) ([]host.FileSnapshot, error) {
	full, err := j.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := j.conn.QueryContext(ctx, `
		SELECT path, size, content FROM snapshots WHERE request_id = ? ORDER BY path
	`, full)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	defer rows.Close()

	var out []host.FileSnapshot
	for rows.Next() {
		var (
			path    string
			size    int
			content []byte
		)
		if err := rows.Scan(&path, &size, &content); err != nil {
			return nil, err
		}
		data, err := j.dec.DecodeAll(content, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("snapshot of %s is corrupt: %w", path, err)
		}
		out = append(out, host.FileSnapshot{Path: path, Content: data})
	}
	return out, rows.Err()
}

// Restore writes the files stored for a request back to disk. Relative
// snapshot paths are resolved against root. It returns the paths written.
func (j *Journal) Restore(ctx context.Context, id, root string) ([]string, error) {
	files, err := j.Snapshots(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("request %s has no snapshots", id)
	}

	var written []string
	for _, f := range files {
		target := f.Path
		if !filepath.IsAbs(target) {
			target = paths.JoinRootPath(root, target)
		}
		perm := os.FileMode(0644)
		if info, err := os.Stat(target); err == nil {
			perm = info.Mode().Perm()
		} else if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return written, fmt.Errorf("failed to restore %s: %w", target, err)
		}
		if err := paths.WriteFileAtomic(target, f.Content, perm); err != nil {
			return written, fmt.Errorf("failed to restore %s: %w", target, err)
		}
		written = append(written, target)
	}

	j.logger.Info("Restored snapshot", map[string]interface{}{
		"requestId": id,
		"files":     len(written),
	})
	return written, nil
}

func (j *Journal) resolveID(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", ErrNotFound
	}
	rows, err := j.conn.QueryContext(ctx, `SELECT id FROM requests WHERE id LIKE ? || '%' LIMIT 2`, id)
	if err != nil {
		return "", fmt.Errorf("failed to look up request: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var full string
		if err := rows.Scan(&full); err != nil {
			return "", err
		}
		ids = append(ids, full)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("request id %q is ambiguous", id)
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e                           Entry
		hostName, code, msg, result sql.NullString
		state, status, started      string
		finished                    sql.NullString
	)
	err := s.Scan(&e.ID, &e.Target, &e.Container, &hostName, &state, &status, &code, &msg, &result, &started, &finished)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}

	e.Host = hostName.String
	e.State = relocate.State(state)
	e.Status = Status(status)
	e.ErrorCode = errors.ErrorCode(code.String)
	e.Error = msg.String
	e.StartedAt, _ = time.Parse(timeFormat, started)
	if finished.Valid {
		t, _ := time.Parse(timeFormat, finished.String)
		e.FinishedAt = &t
	}
	if result.Valid {
		var r relocate.Result
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("failed to decode result of %s: %w", e.ID, err)
		}
		e.Result = &r
	}
	return &e, nil
}

func (j *Journal) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := j.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			j.logger.Error("failed to rollback transaction", map[string]interface{}{
				"error":          err.Error(),
				"rollback_error": rbErr.Error(),
			})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
