package database

import "time"

// Message represents a single ingested webhook message. Records are
// immutable once stored: there is no update or delete path.
type Message struct {
	MessageID  string    `db:"message_id" json:"message_id"`
	Sender     string    `db:"sender"     json:"sender"`
	Text       string    `db:"text"       json:"text"`
	Timestamp  time.Time `db:"-"          json:"timestamp"`
	ReceivedAt time.Time `db:"-"          json:"-"`
}

// messageRow is the SQL representation of a Message. Timestamps are stored
// as unix nanoseconds so that ordering and range filters compare numerically.
type messageRow struct {
	MessageID  string `db:"message_id"`
	Sender     string `db:"sender"`
	Text       string `db:"text"`
	TS         int64  `db:"ts"`
	ReceivedAt int64  `db:"received_at"`
}

func (r messageRow) toMessage() Message {
	return Message{
		MessageID:  r.MessageID,
		Sender:     r.Sender,
		Text:       r.Text,
		Timestamp:  time.Unix(0, r.TS).UTC(),
		ReceivedAt: time.Unix(0, r.ReceivedAt).UTC(),
	}
}

func toRow(m *Message) messageRow {
	return messageRow{
		MessageID:  m.MessageID,
		Sender:     m.Sender,
		Text:       m.Text,
		TS:         m.Timestamp.UTC().UnixNano(),
		ReceivedAt: m.ReceivedAt.UTC().UnixNano(),
	}
}

// MessageFilter restricts the result set of ListMessages. All active filters
// combine with logical AND.
type MessageFilter struct {
	Sender string     // exact, case-sensitive match
	Since  *time.Time // timestamp >= Since
	Query  string     // case-insensitive substring match on text
	Limit  int
	Offset int
}

const (
	// DefaultLimit is used when the caller does not specify a page size.
	DefaultLimit = 50
	// MaxLimit caps the page size; larger values are clamped, not rejected.
	MaxLimit = 100
)

// Normalize clamps Limit to [1, MaxLimit] (defaulting to DefaultLimit when
// unset) and Offset to >= 0. Out-of-range values are adjusted, never rejected.
func (f *MessageFilter) Normalize() {
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit < 1 {
		f.Limit = 1
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// SenderCount is one entry of the per-sender message ranking.
type SenderCount struct {
	Sender string `db:"sender" json:"sender"`
	Count  int64  `db:"count"  json:"count"`
}

// StatsSnapshot aggregates the entire stored corpus. On an empty store all
// counts are zero and both timestamps are nil.
type StatsSnapshot struct {
	TotalMessages     int64         `json:"total_messages"`
	SendersCount      int64         `json:"senders_count"`
	MessagesPerSender []SenderCount `json:"messages_per_sender"`
	FirstMessageTS    *time.Time    `json:"first_message_ts"`
	LastMessageTS     *time.Time    `json:"last_message_ts"`
}
