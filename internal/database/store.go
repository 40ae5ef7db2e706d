package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrStoreUnavailable indicates that the durable medium could not be reached
// or written for reasons unrelated to duplication. It is safe to retry.
var ErrStoreUnavailable = errors.New("store unavailable")

// InsertOutcome reports the effect of an InsertMessage call.
type InsertOutcome int

const (
	// Inserted means the message was stored for the first time.
	Inserted InsertOutcome = iota
	// DuplicateIgnored means a record with the same message_id already
	// existed; the stored record is unchanged (first write wins).
	DuplicateIgnored
)

// String returns the observability label for the outcome.
func (o InsertOutcome) String() string {
	if o == DuplicateIgnored {
		return "duplicate"
	}
	return "created"
}

// Store defines the interface for message persistence and querying.
// Methods accept context.Context for cancellation; each call is additionally
// bounded by the store's operation timeout.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// InsertMessage stores the message if no record with the same
	// message_id exists. The insert is a single atomic conditional
	// statement: under concurrent attempts on the same id exactly one
	// caller observes Inserted and all others observe DuplicateIgnored.
	InsertMessage(ctx context.Context, message *Message) (InsertOutcome, error)

	// ListMessages returns the filtered page of messages ordered by
	// (timestamp ASC, message_id ASC) together with the total number of
	// matches, which is independent of Limit and Offset.
	ListMessages(ctx context.Context, filter MessageFilter) ([]Message, int64, error)

	// Stats aggregates the entire stored corpus.
	Stats(ctx context.Context) (*StatsSnapshot, error)

	// RunMaintenance performs database maintenance tasks like VACUUM.
	RunMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db        *sqlx.DB
	logger    *slog.Logger
	opTimeout time.Duration
}

const defaultOpTimeout = 5 * time.Second

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger. opTimeout bounds
// every storage call; zero selects a default.
func NewStore(db *sqlx.DB, logger *slog.Logger, opTimeout time.Duration) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &sqlxStore{
		db:        db,
		logger:    logger.With("component", "store"),
		opTimeout: opTimeout,
	}
}

func (s *sqlxStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// unavailable wraps err so callers can match ErrStoreUnavailable while the
// underlying cause stays in the message.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// InsertMessage stores the message with insert-if-absent semantics.
// Uniqueness is enforced by the message_id primary key; ON CONFLICT DO
// NOTHING makes the duplicate check and the insert one atomic statement.
func (s *sqlxStore) InsertMessage(ctx context.Context, message *Message) (InsertOutcome, error) {
	if message == nil {
		return DuplicateIgnored, errors.New("cannot insert nil message")
	}
	if message.MessageID == "" {
		return DuplicateIgnored, errors.New("message must have a non-empty message_id")
	}
	if message.Timestamp.IsZero() {
		return DuplicateIgnored, errors.New("message must have a non-zero timestamp")
	}

	if message.ReceivedAt.IsZero() {
		message.ReceivedAt = time.Now().UTC()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
        INSERT INTO messages (message_id, sender, text, ts, received_at)
        VALUES (:message_id, :sender, :text, :ts, :received_at)
        ON CONFLICT(message_id) DO NOTHING;
    `

	result, err := s.db.NamedExecContext(ctx, query, toRow(message))
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Context timeout or cancellation while inserting message",
			"message_id", message.MessageID, "error", err)
		return DuplicateIgnored, unavailable("insert message", err)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error inserting message",
			"message_id", message.MessageID, "error", err)
		return DuplicateIgnored, unavailable("insert message", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.ErrorContext(ctx, "Could not retrieve affected row count after insert",
			"message_id", message.MessageID, "error", err)
		return DuplicateIgnored, unavailable("insert message", err)
	}

	if affected == 0 {
		s.logger.DebugContext(ctx, "Duplicate message ignored", "message_id", message.MessageID)
		return DuplicateIgnored, nil
	}

	s.logger.DebugContext(ctx, "Message stored", "message_id", message.MessageID)
	return Inserted, nil
}

// buildFilter translates the active filters into a WHERE clause and its
// arguments. The same clause serves both the count and the page query so the
// reported total can never drift from the data.
func buildFilter(filter MessageFilter) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if filter.Sender != "" {
		clauses = append(clauses, "sender = ?")
		args = append(args, filter.Sender)
	}
	if filter.Since != nil {
		clauses = append(clauses, "ts >= ?")
		args = append(args, filter.Since.UTC().UnixNano())
	}
	if filter.Query != "" {
		clauses = append(clauses, "instr(lower(text), lower(?)) > 0")
		args = append(args, filter.Query)
	}

	if len(clauses) == 0 {
		return "1=1", args
	}
	return strings.Join(clauses, " AND "), args
}

// ListMessages returns the filtered, ordered page plus the total match count.
func (s *sqlxStore) ListMessages(ctx context.Context, filter MessageFilter) ([]Message, int64, error) {
	filter.Normalize()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where, args := buildFilter(filter)

	var total int64
	countQuery := "SELECT COUNT(*) FROM messages WHERE " + where
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		s.logger.ErrorContext(ctx, "Error counting messages", "error", err)
		return nil, 0, unavailable("count messages", err)
	}

	dataQuery := `
        SELECT message_id, sender, text, ts, received_at
        FROM messages
        WHERE ` + where + `
        ORDER BY ts ASC, message_id ASC
        LIMIT ? OFFSET ?;
    `

	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, dataQuery, append(args, filter.Limit, filter.Offset)...)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Context timeout or cancellation while listing messages", "error", err)
		return nil, 0, unavailable("list messages", err)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing messages", "error", err)
		return nil, 0, unavailable("list messages", err)
	}

	messages := make([]Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, r.toMessage())
	}

	s.logger.DebugContext(ctx, "Fetched messages",
		"count", len(messages), "total", total,
		"limit", filter.Limit, "offset", filter.Offset)
	return messages, total, nil
}

// Stats aggregates the entire stored corpus.
func (s *sqlxStore) Stats(ctx context.Context) (*StatsSnapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	snapshot := &StatsSnapshot{MessagesPerSender: []SenderCount{}}

	if err := s.db.GetContext(ctx, &snapshot.TotalMessages,
		"SELECT COUNT(*) FROM messages"); err != nil {
		s.logger.ErrorContext(ctx, "Error counting messages for stats", "error", err)
		return nil, unavailable("count messages", err)
	}

	if err := s.db.GetContext(ctx, &snapshot.SendersCount,
		"SELECT COUNT(DISTINCT sender) FROM messages"); err != nil {
		s.logger.ErrorContext(ctx, "Error counting senders", "error", err)
		return nil, unavailable("count senders", err)
	}

	// Top 10 senders by message count; ties break on sender ascending so
	// the ranking is deterministic.
	topQuery := `
        SELECT sender, COUNT(*) AS count
        FROM messages
        GROUP BY sender
        ORDER BY count DESC, sender ASC
        LIMIT 10;
    `
	if err := s.db.SelectContext(ctx, &snapshot.MessagesPerSender, topQuery); err != nil {
		s.logger.ErrorContext(ctx, "Error ranking senders", "error", err)
		return nil, unavailable("rank senders", err)
	}

	var bounds struct {
		First sql.NullInt64 `db:"first_ts"`
		Last  sql.NullInt64 `db:"last_ts"`
	}
	if err := s.db.GetContext(ctx, &bounds,
		"SELECT MIN(ts) AS first_ts, MAX(ts) AS last_ts FROM messages"); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching timestamp bounds", "error", err)
		return nil, unavailable("timestamp bounds", err)
	}
	if bounds.First.Valid {
		first := time.Unix(0, bounds.First.Int64).UTC()
		snapshot.FirstMessageTS = &first
	}
	if bounds.Last.Valid {
		last := time.Unix(0, bounds.Last.Int64).UTC()
		snapshot.LastMessageTS = &last
	}

	s.logger.DebugContext(ctx, "Computed stats snapshot",
		"total_messages", snapshot.TotalMessages,
		"senders_count", snapshot.SendersCount)
	return snapshot, nil
}

// RunMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}
