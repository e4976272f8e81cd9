package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/backdrop/ledger"
	bboltstorage "github.com/jmcleod/backdrop/storage/bbolt"
)

func testUsers() []ledger.UserUsage {
	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return []ledger.UserUsage{
		{UserID: "alice", UsageRecord: ledger.UsageRecord{
			TotalProcessed: 3,
			FirstUse:       first,
			History: []ledger.Event{
				{Timestamp: first, Type: ledger.EventPhotoProcessed},
				{Timestamp: first.Add(48 * time.Hour), Type: ledger.EventPhotoProcessed},
			},
		}},
		{UserID: "bob", UsageRecord: ledger.UsageRecord{
			TotalProcessed: 1,
			FirstUse:       first,
		}},
	}
}

func TestPrintHumanUsers(t *testing.T) {
	var buf bytes.Buffer
	printHumanUsers(&buf, testUsers())
	out := buf.String()

	assert.Contains(t, out, "RANK")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "2026-03-03 09:00:00")
	assert.Contains(t, out, "bob")
}

func TestPrintHumanUsers_Empty(t *testing.T) {
	var buf bytes.Buffer
	printHumanUsers(&buf, nil)
	assert.Equal(t, "No usage recorded.\n", buf.String())
}

func TestPrintHumanSummary(t *testing.T) {
	var buf bytes.Buffer
	printHumanSummary(&buf, ledger.Summary{TotalUsers: 2, TotalProcessed: 4, ActiveToday: 1, WeeklyProcessed: 3})
	assert.Contains(t, buf.String(), "Total users:      2")
	assert.Contains(t, buf.String(), "Weekly processed: 3")
}

func TestPrintHumanStats(t *testing.T) {
	var buf bytes.Buffer
	printHumanStats(&buf, "bob", ledger.Stats{TotalProcessed: 1, DaysUsed: 1, FirstUse: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})
	assert.Contains(t, buf.String(), "User:            bob")
	assert.Contains(t, buf.String(), "First use:       2026-03-01")
	assert.NotContains(t, buf.String(), "Last activity")
}

func TestToUserRows(t *testing.T) {
	rows := toUserRows(testUsers())
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].LastActivity)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), *rows[0].LastActivity)
	assert.Nil(t, rows[1].LastActivity)
}

func TestLedgerTopCommand(t *testing.T) {
	dir := t.TempDir()
	repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(dir, ledgerFile), nil)
	require.NoError(t, err)
	store := ledger.NewStore(repo)
	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "alice", "carol", "alice", "bob"} {
		require.NoError(t, store.RecordEvent(ctx, id))
	}
	require.NoError(t, repo.Close())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"ledger", "top", "--json", "--n", "2", "--data-dir", dir})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		ledgerJSONOutput = false
		ledgerTopN = 10
	})
	require.NoError(t, rootCmd.Execute())

	var rows []userRow
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].UserID)
	assert.Equal(t, int64(3), rows[0].TotalProcessed)
	assert.Equal(t, "bob", rows[1].UserID)
	assert.Equal(t, int64(2), rows[1].TotalProcessed)
}
