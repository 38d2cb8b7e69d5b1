package sessions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus-gateway/pkg/models"
	_ "github.com/lib/pq"
)

// CockroachStore implements Store using CockroachDB/Postgres over lib/pq.
type CockroachStore struct {
	db *sql.DB

	stmtCreateSession     *sql.Stmt
	stmtGetSession        *sql.Stmt
	stmtUpdateStatus      *sql.Stmt
	stmtInsertLog         *sql.Stmt
	stmtGetLogs           *sql.Stmt
	stmtLatestPending     *sql.Stmt
	stmtLatestByStep      *sql.Stmt
}

// DB exposes the underlying connection, e.g. for the doctor package's
// diagnostics commands.
func (s *CockroachStore) DB() *sql.DB {
	return s.db
}

// CockroachConfig holds connection settings for CockroachDB/Postgres.
type CockroachConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultCockroachConfig returns sane local-dev defaults.
func DefaultCockroachConfig() *CockroachConfig {
	return &CockroachConfig{
		Host:            "localhost",
		Port:            26257,
		User:            "root",
		Database:        "gateway",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NewCockroachStore opens a connection pool from discrete config fields.
func NewCockroachStore(config *CockroachConfig) (*CockroachStore, error) {
	if config == nil {
		config = DefaultCockroachConfig()
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		config.Host, config.Port, config.User, config.Password,
		config.Database, config.SSLMode, int(config.ConnectTimeout.Seconds()),
	)
	return newCockroachStoreWithDSN(dsn, config)
}

// NewCockroachStoreFromDSN opens a connection pool from a raw DATABASE_URL.
func NewCockroachStoreFromDSN(dsn string, config *CockroachConfig) (*CockroachStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}
	return newCockroachStoreWithDSN(dsn, config)
}

func newCockroachStoreWithDSN(dsn string, config *CockroachConfig) (*CockroachStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &CockroachStore{db: db}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return store, nil
}

func (s *CockroachStore) prepareStatements() error {
	var err error

	s.stmtCreateSession, err = s.db.Prepare(`
		INSERT INTO sessions (session_id, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("prepare create session: %w", err)
	}

	s.stmtGetSession, err = s.db.Prepare(`
		SELECT session_id, user_id, status, created_at, updated_at
		FROM sessions WHERE session_id = $1
	`)
	if err != nil {
		return fmt.Errorf("prepare get session: %w", err)
	}

	s.stmtUpdateStatus, err = s.db.Prepare(`
		UPDATE sessions SET status = $1, updated_at = $2 WHERE session_id = $3
	`)
	if err != nil {
		return fmt.Errorf("prepare update status: %w", err)
	}

	s.stmtInsertLog, err = s.db.Prepare(`
		INSERT INTO logs (session_id, step, status, message, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("prepare insert log: %w", err)
	}

	s.stmtGetLogs, err = s.db.Prepare(`
		SELECT id, session_id, step, status, message, timestamp
		FROM logs WHERE session_id = $1
		ORDER BY timestamp ASC, id ASC
	`)
	if err != nil {
		return fmt.Errorf("prepare get logs: %w", err)
	}

	s.stmtLatestPending, err = s.db.Prepare(`
		SELECT id, session_id, step, status, message, timestamp
		FROM logs WHERE session_id = $1 AND step = 'pending_tools' AND status = 'waiting'
		ORDER BY timestamp DESC, id DESC LIMIT 1
	`)
	if err != nil {
		return fmt.Errorf("prepare latest pending: %w", err)
	}

	s.stmtLatestByStep, err = s.db.Prepare(`
		SELECT id, session_id, step, status, message, timestamp
		FROM logs WHERE session_id = $1 AND step = $2
		ORDER BY timestamp DESC, id DESC LIMIT 1
	`)
	if err != nil {
		return fmt.Errorf("prepare latest by step: %w", err)
	}

	return nil
}

// Close releases the connection pool and prepared statements.
func (s *CockroachStore) Close() error {
	stmts := []*sql.Stmt{
		s.stmtCreateSession, s.stmtGetSession, s.stmtUpdateStatus,
		s.stmtInsertLog, s.stmtGetLogs, s.stmtLatestPending, s.stmtLatestByStep,
	}
	var errs []error
	for _, stmt := range stmts {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing store: %v", errs)
	}
	return nil
}

func (s *CockroachStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = session.CreatedAt

	_, err := s.stmtCreateSession.ExecContext(ctx,
		session.ID, session.UserID, session.Status, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *CockroachStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session := &models.Session{}
	err := s.stmtGetSession.QueryRowContext(ctx, id).Scan(
		&session.ID, &session.UserID, &session.Status, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// Transition writes the new status and its LogEntry inside one transaction,
// so a reader never observes one without the other.
func (s *CockroachStore) Transition(ctx context.Context, sessionID string, status models.SessionStatus, entry *models.LogEntry) error {
	current, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return ErrTerminalSession
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	if _, err := tx.StmtContext(ctx, s.stmtUpdateStatus).ExecContext(ctx, status, now, sessionID); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	if entry != nil {
		ts := entry.Timestamp
		if ts.IsZero() {
			ts = now
		}
		if _, err := tx.StmtContext(ctx, s.stmtInsertLog).ExecContext(ctx,
			sessionID, entry.Step, entry.Status, entry.Message, ts); err != nil {
			return fmt.Errorf("insert log: %w", err)
		}
	}

	return tx.Commit()
}

func (s *CockroachStore) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	if entry == nil {
		return nil
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if err := s.stmtInsertLog.QueryRowContext(ctx,
		entry.SessionID, entry.Step, entry.Status, entry.Message, ts).Scan(&entry.ID); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (s *CockroachStore) Logs(ctx context.Context, sessionID string) ([]*models.LogEntry, error) {
	rows, err := s.stmtGetLogs.QueryContext(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}
	defer rows.Close()
	return scanLogRows(rows)
}

func (s *CockroachStore) LatestPendingTools(ctx context.Context, sessionID string) (*models.LogEntry, error) {
	return s.scanOneLog(s.stmtLatestPending.QueryRowContext(ctx, sessionID))
}

func (s *CockroachStore) LatestByStep(ctx context.Context, sessionID string, step string) (*models.LogEntry, error) {
	return s.scanOneLog(s.stmtLatestByStep.QueryRowContext(ctx, sessionID, step))
}

func (s *CockroachStore) scanOneLog(row *sql.Row) (*models.LogEntry, error) {
	entry := &models.LogEntry{}
	err := row.Scan(&entry.ID, &entry.SessionID, &entry.Step, &entry.Status, &entry.Message, &entry.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan log: %w", err)
	}
	return entry, nil
}

func scanLogRows(rows *sql.Rows) ([]*models.LogEntry, error) {
	var out []*models.LogEntry
	for rows.Next() {
		entry := &models.LogEntry{}
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Step, &entry.Status, &entry.Message, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return out, nil
}
