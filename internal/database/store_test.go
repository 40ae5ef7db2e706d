package database_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgard/webhookd/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return database.NewStore(db, logger, 5*time.Second)
}

func newMessage(id, sender, text string, ts time.Time) *database.Message {
	return &database.Message{
		MessageID: id,
		Sender:    sender,
		Text:      text,
		Timestamp: ts,
	}
}

func TestInsertMessageIdempotent(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	ctx := context.Background()

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	outcome, err := store.InsertMessage(ctx, newMessage("m1", "alice", "hi", ts))
	req.NoError(err)
	req.Equal(database.Inserted, outcome)

	// Identical retry is acknowledged but stores nothing.
	outcome, err = store.InsertMessage(ctx, newMessage("m1", "alice", "hi", ts))
	req.NoError(err)
	req.Equal(database.DuplicateIgnored, outcome)

	// Same id with different fields: first write wins.
	outcome, err = store.InsertMessage(ctx, newMessage("m1", "mallory", "changed", ts.Add(time.Hour)))
	req.NoError(err)
	req.Equal(database.DuplicateIgnored, outcome)

	messages, total, err := store.ListMessages(ctx, database.MessageFilter{})
	req.NoError(err)
	req.EqualValues(1, total)
	req.Len(messages, 1)
	req.Equal("alice", messages[0].Sender)
	req.Equal("hi", messages[0].Text)
	req.True(messages[0].Timestamp.Equal(ts))
	req.False(messages[0].ReceivedAt.IsZero())
}

func TestInsertMessageConcurrentSameID(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	ctx := context.Background()

	const attempts = 16
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	outcomes := make([]database.InsertOutcome, attempts)
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = store.InsertMessage(ctx, newMessage("race", "bob", fmt.Sprintf("attempt-%d", i), ts))
		}(i)
	}
	wg.Wait()

	inserted := 0
	for i := 0; i < attempts; i++ {
		req.NoError(errs[i])
		if outcomes[i] == database.Inserted {
			inserted++
		}
	}
	req.Equal(1, inserted, "exactly one concurrent insert must win")

	_, total, err := store.ListMessages(ctx, database.MessageFilter{})
	req.NoError(err)
	req.EqualValues(1, total)
}

func TestInsertMessageValidation(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertMessage(ctx, nil)
	req.Error(err)

	_, err = store.InsertMessage(ctx, newMessage("", "alice", "hi", time.Now()))
	req.Error(err)

	_, err = store.InsertMessage(ctx, newMessage("m1", "alice", "hi", time.Time{}))
	req.Error(err)
}

func seedMessages(t *testing.T, store database.Store) time.Time {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	seed := []*database.Message{
		newMessage("m3", "alice", "Hello world", base.Add(2*time.Hour)),
		newMessage("m1", "alice", "first message", base),
		newMessage("m2", "bob", "HELLO again", base.Add(time.Hour)),
		newMessage("m5", "carol", "unrelated", base.Add(4*time.Hour)),
		// Same timestamp as m5: ordering must fall back to message_id.
		newMessage("m4", "bob", "tied timestamp", base.Add(4*time.Hour)),
	}
	for _, m := range seed {
		_, err := store.InsertMessage(ctx, m)
		require.NoError(t, err)
	}
	return base
}

func TestListMessagesOrderingAndPagination(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	ctx := context.Background()
	seedMessages(t, store)

	messages, total, err := store.ListMessages(ctx, database.MessageFilter{})
	req.NoError(err)
	req.EqualValues(5, total)
	req.Len(messages, 5)

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.MessageID)
	}
	req.Equal([]string{"m1", "m2", "m3", "m4", "m5"}, ids)

	for i := 1; i < len(messages); i++ {
		prev, cur := messages[i-1], messages[i]
		req.False(cur.Timestamp.Before(prev.Timestamp))
		if cur.Timestamp.Equal(prev.Timestamp) {
			req.Less(prev.MessageID, cur.MessageID)
		}
	}

	// total is invariant under limit/offset changes.
	page, total, err := store.ListMessages(ctx, database.MessageFilter{Limit: 2, Offset: 1})
	req.NoError(err)
	req.EqualValues(5, total)
	req.Len(page, 2)
	req.Equal("m2", page[0].MessageID)
	req.Equal("m3", page[1].MessageID)

	// Offset beyond the result size yields empty data with the right total.
	page, total, err = store.ListMessages(ctx, database.MessageFilter{Limit: 10, Offset: 100})
	req.NoError(err)
	req.EqualValues(5, total)
	req.Empty(page)
}

func TestListMessagesFilters(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	ctx := context.Background()
	base := seedMessages(t, store)

	// Exact, case-sensitive sender match.
	messages, total, err := store.ListMessages(ctx, database.MessageFilter{Sender: "alice"})
	req.NoError(err)
	req.EqualValues(2, total)
	req.Len(messages, 2)

	_, total, err = store.ListMessages(ctx, database.MessageFilter{Sender: "Alice"})
	req.NoError(err)
	req.Zero(total)

	// since matches timestamp >= bound.
	since := base.Add(time.Hour)
	messages, total, err = store.ListMessages(ctx, database.MessageFilter{Since: &since})
	req.NoError(err)
	req.EqualValues(4, total)
	req.Equal("m2", messages[0].MessageID)

	// Case-insensitive substring match on text.
	_, total, err = store.ListMessages(ctx, database.MessageFilter{Query: "hello"})
	req.NoError(err)
	req.EqualValues(2, total)

	// Filters combine with AND.
	messages, total, err = store.ListMessages(ctx, database.MessageFilter{
		Sender: "alice",
		Since:  &since,
		Query:  "WORLD",
	})
	req.NoError(err)
	req.EqualValues(1, total)
	req.Equal("m3", messages[0].MessageID)
}

func TestStatsEmptyStore(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)

	snapshot, err := store.Stats(context.Background())
	req.NoError(err)
	req.Zero(snapshot.TotalMessages)
	req.Zero(snapshot.SendersCount)
	req.Empty(snapshot.MessagesPerSender)
	req.Nil(snapshot.FirstMessageTS)
	req.Nil(snapshot.LastMessageTS)
}

func TestStatsTopSenders(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	// 11 distinct senders with one message each, plus 5 more from alice.
	for i := 0; i < 11; i++ {
		sender := fmt.Sprintf("sender-%02d", i)
		_, err := store.InsertMessage(ctx, newMessage(fmt.Sprintf("s%02d", i), sender, "hi", base.Add(time.Duration(i)*time.Minute)))
		req.NoError(err)
	}
	for i := 0; i < 5; i++ {
		_, err := store.InsertMessage(ctx, newMessage(fmt.Sprintf("a%d", i), "alice", "hi", base.Add(time.Duration(i)*time.Second)))
		req.NoError(err)
	}

	snapshot, err := store.Stats(ctx)
	req.NoError(err)
	req.EqualValues(16, snapshot.TotalMessages)
	req.EqualValues(12, snapshot.SendersCount)

	req.Len(snapshot.MessagesPerSender, 10)
	req.Equal("alice", snapshot.MessagesPerSender[0].Sender)
	req.EqualValues(5, snapshot.MessagesPerSender[0].Count)

	// Ties break on sender ascending.
	for i := 1; i < len(snapshot.MessagesPerSender); i++ {
		entry := snapshot.MessagesPerSender[i]
		req.EqualValues(1, entry.Count)
		req.Equal(fmt.Sprintf("sender-%02d", i-1), entry.Sender)
	}

	req.NotNil(snapshot.FirstMessageTS)
	req.NotNil(snapshot.LastMessageTS)
	req.True(snapshot.FirstMessageTS.Equal(base))
	req.True(snapshot.LastMessageTS.Equal(base.Add(10 * time.Minute)))
}

func TestRunMaintenance(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t)
	req.NoError(store.RunMaintenance(context.Background()))
}

func TestMessageFilterNormalize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		limit, offset int
		wantLimit     int
		wantOffset    int
	}{
		{name: "defaults", limit: 0, offset: 0, wantLimit: 50, wantOffset: 0},
		{name: "below range", limit: -3, offset: -10, wantLimit: 1, wantOffset: 0},
		{name: "above range", limit: 1000, offset: 7, wantLimit: 100, wantOffset: 7},
		{name: "in range", limit: 25, offset: 5, wantLimit: 25, wantOffset: 5},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := database.MessageFilter{Limit: tc.limit, Offset: tc.offset}
			f.Normalize()
			require.Equal(t, tc.wantLimit, f.Limit)
			require.Equal(t, tc.wantOffset, f.Offset)
		})
	}
}
