// Package store is the relational persistence layer for scripts, builds,
// runs and schedules. It speaks both sqlite (local development) and
// postgres through database/sql.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // also registers the postgres driver
	_ "modernc.org/sqlite"

	"github.com/villagehq/village/engine"
	"github.com/villagehq/village/params"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type BuildStatus string

const (
	BuildPending  BuildStatus = "pending"
	BuildBuilding BuildStatus = "building"
	BuildSuccess  BuildStatus = "success"
	BuildFailure  BuildStatus = "failure"
)

type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
)

type Script struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Engine        engine.Engine `json:"engine"`
	EngineVersion string        `json:"engine_version"`
	WorkspaceID   string        `json:"workspace_id"`
	CreatorID     string        `json:"creator_id"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type Build struct {
	ID           string        `json:"id"`
	ScriptID     string        `json:"script_id"`
	Status       BuildStatus   `json:"status"`
	Output       string        `json:"output"`
	BuildCommand string        `json:"build_command"`
	ImageURI     string        `json:"image_uri"`
	Params       []params.Spec `json:"params"`
	CreatorID    string        `json:"creator_id"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at"`
}

type Run struct {
	ID          string     `json:"id"`
	ScriptID    string     `json:"script_id"`
	BuildID     string     `json:"build_id"`
	Status      RunStatus  `json:"status"`
	Output      string     `json:"output"`
	ScheduleID  string     `json:"schedule_id,omitempty"`
	CreatorID   string     `json:"creator_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

type Schedule struct {
	ID          string            `json:"id"`
	ScriptID    string            `json:"script_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Minute      string            `json:"minute"`
	Hour        string            `json:"hour"`
	DayOfMonth  string            `json:"day_of_month"`
	MonthOfYear string            `json:"month_of_year"`
	DayOfWeek   string            `json:"day_of_week"`
	Params      map[string]string `json:"params"`
	TokenHash   string            `json:"-"`
	CreatorID   string            `json:"creator_id"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// CronExpr joins the five stored fields in canonical cron order.
func (s *Schedule) CronExpr() string {
	return strings.Join([]string{s.Minute, s.Hour, s.DayOfMonth, s.MonthOfYear, s.DayOfWeek}, " ")
}

// CronJob is a durable registration record owned by the local scheduler.
// It plays the role of the external scheduler's own storage, so the
// payload it carries is opaque to the rest of the system.
type CronJob struct {
	JobID    string
	CronSpec string
	Payload  string
}

type DBDriver string

const (
	SQLite     DBDriver = "sqlite"
	PostgreSQL DBDriver = "postgres"
)

type Store struct {
	db     *sql.DB
	driver string
}

func OpenStore(driver, dsn string) (*Store, error) {
	if driver == string(SQLite) && !strings.Contains(dsn, "_pragma=") {
		// pragmas are per-connection, so they must ride in the DSN to
		// apply to every conn the pool opens
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == string(SQLite) {
		// modernc sqlite serializes writes; a single conn avoids
		// table-lock errors under concurrent runs
		db.SetMaxOpenConns(1)
	}
	if driver == string(PostgreSQL) {
		db.SetConnMaxIdleTime(15 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(100)
		db.SetConnMaxLifetime(1 * time.Hour)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) IsSQLite() bool   { return DBDriver(s.driver) == SQLite }
func (s *Store) IsPostgres() bool { return DBDriver(s.driver) == PostgreSQL }

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scripts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			engine TEXT NOT NULL,
			engine_version TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			creator_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS builds (
			id TEXT PRIMARY KEY,
			script_id TEXT NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			output TEXT NOT NULL DEFAULT '',
			build_command TEXT NOT NULL DEFAULT '',
			image_uri TEXT NOT NULL DEFAULT '',
			creator_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS build_params (
			build_id TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			key TEXT NOT NULL,
			type TEXT NOT NULL,
			default_value TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			required INTEGER NOT NULL DEFAULT 1,
			options TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (build_id, key)
		)`,
		// runs reference their build by value, not by key: a run is
		// immutable history and survives deletion of its build
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			script_id TEXT NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
			build_id TEXT NOT NULL,
			status TEXT NOT NULL,
			output TEXT NOT NULL DEFAULT '',
			schedule_id TEXT,
			creator_id TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			script_id TEXT NOT NULL REFERENCES scripts(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			minute TEXT NOT NULL,
			hour TEXT NOT NULL,
			day_of_month TEXT NOT NULL,
			month_of_year TEXT NOT NULL,
			day_of_week TEXT NOT NULL,
			params TEXT NOT NULL DEFAULT '{}',
			token_hash TEXT NOT NULL,
			creator_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cron_jobs (
			job_id TEXT PRIMARY KEY,
			cron_spec TEXT NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_builds_script_updated ON builds(script_id, status, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_script_updated ON runs(script_id, updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_script ON schedules(script_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// q rewrites ? placeholders to $n for postgres.
func (s *Store) q(query string) string {
	if !s.IsPostgres() {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func now() int64 { return time.Now().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromNanos(v.Int64)
	return &t
}

// ---- scripts ----

func (s *Store) CreateScript(ctx context.Context, sc *Script) error {
	ts := now()
	sc.CreatedAt, sc.UpdatedAt = fromNanos(ts), fromNanos(ts)
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO scripts
		(id, name, description, engine, engine_version, workspace_id, creator_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sc.ID, sc.Name, sc.Description, string(sc.Engine), sc.EngineVersion, sc.WorkspaceID, sc.CreatorID, ts, ts)
	if isConflict(err) {
		return fmt.Errorf("script %q: %w", sc.ID, ErrConflict)
	}
	return err
}

func (s *Store) GetScript(ctx context.Context, id string) (*Script, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, name, description, engine, engine_version,
		workspace_id, creator_id, created_at, updated_at FROM scripts WHERE id = ?`), id)
	var sc Script
	var eng string
	var created, updated int64
	err := row.Scan(&sc.ID, &sc.Name, &sc.Description, &eng, &sc.EngineVersion,
		&sc.WorkspaceID, &sc.CreatorID, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("script %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	sc.Engine = engine.Engine(eng)
	sc.CreatedAt, sc.UpdatedAt = fromNanos(created), fromNanos(updated)
	return &sc, nil
}

func (s *Store) UpdateScriptMeta(ctx context.Context, id, name, description string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE scripts SET name = ?, description = ?, updated_at = ? WHERE id = ?`),
		name, description, now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("script %q: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteScript cascades to builds, params, runs and schedules.
func (s *Store) DeleteScript(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM scripts WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("script %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) ListScripts(ctx context.Context, workspaceID string) ([]Script, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, name, description, engine, engine_version,
		workspace_id, creator_id, created_at, updated_at FROM scripts
		WHERE workspace_id = ? ORDER BY created_at DESC`), workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Script
	for rows.Next() {
		var sc Script
		var eng string
		var created, updated int64
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Description, &eng, &sc.EngineVersion,
			&sc.WorkspaceID, &sc.CreatorID, &created, &updated); err != nil {
			return nil, err
		}
		sc.Engine = engine.Engine(eng)
		sc.CreatedAt, sc.UpdatedAt = fromNanos(created), fromNanos(updated)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ---- builds ----

// CreateBuild inserts the build record and its frozen parameter specs in
// one transaction. The record is created already past pending, matching
// the state machine's pending→building transition at creation time.
func (s *Store) CreateBuild(ctx context.Context, b *Build) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = BuildBuilding
	}
	ts := now()
	b.CreatedAt, b.UpdatedAt = fromNanos(ts), fromNanos(ts)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO builds
		(id, script_id, status, output, build_command, image_uri, creator_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		b.ID, b.ScriptID, string(b.Status), b.Output, b.BuildCommand, b.ImageURI, b.CreatorID, ts, ts)
	if err != nil {
		return err
	}
	for i, p := range b.Params {
		opts, err := json.Marshal(p.Options)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.q(`INSERT INTO build_params
			(build_id, position, key, type, default_value, description, required, options)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			b.ID, i, p.Key, string(p.Type), p.Default, p.Description, boolToInt(p.Required), string(opts))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// FinishBuild writes the terminal state. completed_at is stamped only on
// success so a failed build stays distinguishable from a finished one.
func (s *Store) FinishBuild(ctx context.Context, id string, status BuildStatus, output string) error {
	ts := now()
	var completed any
	if status == BuildSuccess {
		completed = ts
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE builds
		SET status = ?, output = ?, completed_at = ?, updated_at = ? WHERE id = ?`),
		string(status), output, completed, ts, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("build %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) SetBuildImage(ctx context.Context, id, imageURI string) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE builds SET image_uri = ?, updated_at = ? WHERE id = ?`),
		imageURI, now(), id)
	return err
}

const buildColumns = `id, script_id, status, output, build_command, image_uri, creator_id, created_at, updated_at, completed_at`

func (s *Store) scanBuild(row interface{ Scan(...any) error }) (*Build, error) {
	var b Build
	var status string
	var created, updated int64
	var completed sql.NullInt64
	err := row.Scan(&b.ID, &b.ScriptID, &status, &b.Output, &b.BuildCommand, &b.ImageURI,
		&b.CreatorID, &created, &updated, &completed)
	if err != nil {
		return nil, err
	}
	b.Status = BuildStatus(status)
	b.CreatedAt, b.UpdatedAt = fromNanos(created), fromNanos(updated)
	b.CompletedAt = nullableTime(completed)
	return &b, nil
}

func (s *Store) buildParams(ctx context.Context, buildID string) ([]params.Spec, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT key, type, default_value, description, required, options
		FROM build_params WHERE build_id = ? ORDER BY position`), buildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var specs []params.Spec
	for rows.Next() {
		var p params.Spec
		var typ, opts string
		var required int
		if err := rows.Scan(&p.Key, &typ, &p.Default, &p.Description, &required, &opts); err != nil {
			return nil, err
		}
		p.Type = params.Type(typ)
		p.Required = required != 0
		if err := json.Unmarshal([]byte(opts), &p.Options); err != nil {
			return nil, err
		}
		specs = append(specs, p)
	}
	return specs, rows.Err()
}

func (s *Store) GetBuild(ctx context.Context, id string) (*Build, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+buildColumns+` FROM builds WHERE id = ?`), id)
	b, err := s.scanBuild(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("build %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	b.Params, err = s.buildParams(ctx, id)
	return b, err
}

// LatestSuccessfulBuild implements the latest-success selection rule:
// order by update time descending and take the first succeeded build.
func (s *Store) LatestSuccessfulBuild(ctx context.Context, scriptID string) (*Build, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+buildColumns+` FROM builds
		WHERE script_id = ? AND status = ? ORDER BY updated_at DESC LIMIT 1`),
		scriptID, string(BuildSuccess))
	b, err := s.scanBuild(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no successful build for script %q: %w", scriptID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	b.Params, err = s.buildParams(ctx, b.ID)
	return b, err
}

func (s *Store) ListBuilds(ctx context.Context, scriptID string) ([]Build, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+buildColumns+` FROM builds
		WHERE script_id = ? ORDER BY updated_at DESC`), scriptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Build
	for rows.Next() {
		b, err := s.scanBuild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Store) DeleteBuild(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM builds WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("build %q: %w", id, ErrNotFound)
	}
	return nil
}

// ---- runs ----

func (s *Store) CreateRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = RunPending
	}
	ts := now()
	r.CreatedAt, r.UpdatedAt = fromNanos(ts), fromNanos(ts)
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO runs
		(id, script_id, build_id, status, output, schedule_id, creator_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.ScriptID, r.BuildID, string(r.Status), r.Output,
		nullString(r.ScheduleID), nullString(r.CreatorID), ts, ts)
	return err
}

// CompleteRun writes a terminal state, but only if the run is still
// active. The first terminal writer wins; a poll match that lands after a
// timeout already failed the run is dropped. Returns whether the write
// took effect.
func (s *Store) CompleteRun(ctx context.Context, id string, status RunStatus, output string) (bool, error) {
	ts := now()
	var completed any
	if status == RunSuccess {
		completed = ts
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE runs
		SET status = ?, output = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`),
		string(status), output, completed, ts, id, string(RunPending), string(RunRunning))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, script_id, build_id, status, output,
		schedule_id, creator_id, created_at, updated_at, completed_at FROM runs WHERE id = ?`), id)
	var r Run
	var status string
	var schedID, creatorID sql.NullString
	var created, updated int64
	var completed sql.NullInt64
	err := row.Scan(&r.ID, &r.ScriptID, &r.BuildID, &status, &r.Output,
		&schedID, &creatorID, &created, &updated, &completed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	r.ScheduleID, r.CreatorID = schedID.String, creatorID.String
	r.CreatedAt, r.UpdatedAt = fromNanos(created), fromNanos(updated)
	r.CompletedAt = nullableTime(completed)
	return &r, nil
}

func (s *Store) ListRuns(ctx context.Context, scriptID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id FROM runs
		WHERE script_id = ? ORDER BY updated_at DESC`), scriptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// ---- schedules ----

func (s *Store) CreateSchedule(ctx context.Context, sch *Schedule) error {
	if sch.ID == "" {
		sch.ID = uuid.NewString()
	}
	if sch.Params == nil {
		sch.Params = map[string]string{}
	}
	raw, err := json.Marshal(sch.Params)
	if err != nil {
		return err
	}
	ts := now()
	sch.CreatedAt, sch.UpdatedAt = fromNanos(ts), fromNanos(ts)
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO schedules
		(id, script_id, name, description, minute, hour, day_of_month, month_of_year, day_of_week,
		 params, token_hash, creator_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		sch.ID, sch.ScriptID, sch.Name, sch.Description, sch.Minute, sch.Hour, sch.DayOfMonth,
		sch.MonthOfYear, sch.DayOfWeek, string(raw), sch.TokenHash, sch.CreatorID, ts, ts)
	return err
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, script_id, name, description, minute, hour,
		day_of_month, month_of_year, day_of_week, params, token_hash, creator_id, created_at, updated_at
		FROM schedules WHERE id = ?`), id)
	var sch Schedule
	var rawParams string
	var created, updated int64
	err := row.Scan(&sch.ID, &sch.ScriptID, &sch.Name, &sch.Description, &sch.Minute, &sch.Hour,
		&sch.DayOfMonth, &sch.MonthOfYear, &sch.DayOfWeek, &rawParams, &sch.TokenHash,
		&sch.CreatorID, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("schedule %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rawParams), &sch.Params); err != nil {
		return nil, err
	}
	sch.CreatedAt, sch.UpdatedAt = fromNanos(created), fromNanos(updated)
	return &sch, nil
}

// UpdateSchedule rewrites the mutable fields, including a fresh token
// hash: the trigger secret rotates on every update so the durable
// registration can be re-issued without ever persisting a plaintext.
func (s *Store) UpdateSchedule(ctx context.Context, sch *Schedule) error {
	raw, err := json.Marshal(sch.Params)
	if err != nil {
		return err
	}
	ts := now()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE schedules SET name = ?, description = ?,
		minute = ?, hour = ?, day_of_month = ?, month_of_year = ?, day_of_week = ?,
		params = ?, token_hash = ?, updated_at = ? WHERE id = ?`),
		sch.Name, sch.Description, sch.Minute, sch.Hour, sch.DayOfMonth, sch.MonthOfYear,
		sch.DayOfWeek, string(raw), sch.TokenHash, ts, sch.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %q: %w", sch.ID, ErrNotFound)
	}
	sch.UpdatedAt = fromNanos(ts)
	return nil
}

func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM schedules WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) ListSchedules(ctx context.Context, scriptID string) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id FROM schedules
		WHERE script_id = ? ORDER BY updated_at DESC`), scriptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Schedule, 0, len(ids))
	for _, id := range ids {
		sch, err := s.GetSchedule(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *sch)
	}
	return out, nil
}

// ---- cron registrations (local scheduler's durable registry) ----

func (s *Store) UpsertCronJob(ctx context.Context, j CronJob) error {
	query := `INSERT INTO cron_jobs (job_id, cron_spec, payload) VALUES (?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET cron_spec = EXCLUDED.cron_spec, payload = EXCLUDED.payload`
	if s.IsSQLite() {
		query = `INSERT OR REPLACE INTO cron_jobs (job_id, cron_spec, payload) VALUES (?, ?, ?)`
	}
	_, err := s.db.ExecContext(ctx, s.q(query), j.JobID, j.CronSpec, j.Payload)
	return err
}

func (s *Store) DeleteCronJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM cron_jobs WHERE job_id = ?`), jobID)
	return err
}

func (s *Store) ListCronJobs(ctx context.Context) ([]CronJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT job_id, cron_spec, payload FROM cron_jobs ORDER BY job_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CronJob
	for rows.Next() {
		var j CronJob
		if err := rows.Scan(&j.JobID, &j.CronSpec, &j.Payload); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
