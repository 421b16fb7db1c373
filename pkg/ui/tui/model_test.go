package tui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citystories/pkg/ingest"
	"citystories/pkg/models"
)

var (
	istanbul = models.TrackedAccount{Key: "istanbul", Handle: "istanbulanlik"}
	ankara   = models.TrackedAccount{Key: "ankara", Handle: "ankaraanlikcom"}
)

func send(m *Model, events ...ingest.Event) {
	for _, e := range events {
		m.Update(EventMsg{Event: e})
	}
}

func TestModelTracksAccounts(t *testing.T) {
	m := NewModel([]models.TrackedAccount{istanbul, ankara})
	m.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	send(m,
		ingest.Event{Stage: ingest.StageRunStarted, RunID: "run-1", Count: 2},
		ingest.Event{Stage: ingest.StageFetchStarted, Account: istanbul},
		ingest.Event{Stage: ingest.StageFetchCompleted, Account: istanbul, Count: 3},
		ingest.Event{Stage: ingest.StageItemDownloaded, Account: istanbul, Post: "A1", Role: models.AssetRolePrimary, Bytes: 2048},
		ingest.Event{Stage: ingest.StageItemDownloaded, Account: istanbul, Post: "V1", Role: models.AssetRolePrimary, Bytes: 4096},
		ingest.Event{Stage: ingest.StageItemDownloaded, Account: istanbul, Post: "V1", Role: models.AssetRoleThumbnail, Bytes: 1024},
		ingest.Event{Stage: ingest.StageItemFailed, Account: istanbul, Post: "C3", Reason: "HTTP 404"},
	)

	row := m.rows[0]
	assert.Equal(t, StateDownloading, row.State)
	assert.Equal(t, 3, row.Posts)
	assert.Equal(t, 2, row.Stored)
	assert.Equal(t, 1, row.Failed)
	assert.Equal(t, int64(7168), row.Bytes)
	assert.Equal(t, "run-1", m.runID)

	send(m,
		ingest.Event{Stage: ingest.StageAccountCompleted, Account: istanbul, Count: 2, Failed: 1},
		ingest.Event{Stage: ingest.StageFetchStarted, Account: ankara},
		ingest.Event{Stage: ingest.StageFetchFailed, Account: ankara, Err: errors.New("auth error: login required")},
		ingest.Event{Stage: ingest.StageAccountCompleted, Account: ankara},
	)

	assert.Equal(t, StateDone, m.rows[0].State)
	assert.Equal(t, StateFailed, m.rows[1].State)
	assert.Equal(t, 2, m.stories)
	assert.Equal(t, 1.0, m.percent())

	view := m.View()
	assert.Contains(t, view, "istanbul")
	assert.Contains(t, view, "2/3 stored, 1 failed")
	assert.Contains(t, view, "login required")
	assert.Contains(t, view, "7.2 kB")
}

func TestModelSkippedAndUnknownAccounts(t *testing.T) {
	m := NewModel([]models.TrackedAccount{istanbul})
	extra := models.TrackedAccount{Key: "trabzon", Handle: "trabzonanliktr"}

	send(m, ingest.Event{Stage: ingest.StageAccountSkipped, Account: extra, Reason: "run cancelled"})

	require.Len(t, m.rows, 2)
	assert.Equal(t, StateSkipped, m.rows[1].State)
	assert.Equal(t, 0.5, m.percent())
}

func TestModelLogIsBounded(t *testing.T) {
	m := NewModel(nil)
	for i := 0; i < 20; i++ {
		m.addLog("INFO", "line")
	}
	assert.Len(t, m.logMessages, m.maxLogMessages)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.logMessages)
}

func TestModelQuitInterrupts(t *testing.T) {
	m := NewModel([]models.TrackedAccount{istanbul})
	called := false
	m.onInterrupt = func() { called = true }

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, called)
	assert.True(t, m.interrupted)
}

func TestModelDoneQuits(t *testing.T) {
	m := NewModel([]models.TrackedAccount{istanbul})
	called := false
	m.onInterrupt = func() { called = true }

	_, cmd := m.Update(DoneMsg{Err: errors.New("failed to persist manifest")})
	require.NotNil(t, cmd)
	assert.True(t, m.finished)
	assert.Contains(t, m.View(), "failed")

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.False(t, called)
	assert.False(t, m.interrupted)
}

func TestTUIRunsUntilDone(t *testing.T) {
	var out bytes.Buffer
	ui := New([]models.TrackedAccount{istanbul}, nil, WithOutput(&out), WithInput(nil))

	go func() {
		ui.Observe(ingest.Event{Stage: ingest.StageFetchStarted, Account: istanbul})
		ui.Observe(ingest.Event{Stage: ingest.StageAccountCompleted, Account: istanbul})
		ui.Done(nil)
	}()

	interrupted, err := ui.Run()
	require.NoError(t, err)
	assert.False(t, interrupted)
	assert.Equal(t, StateDone, ui.model.rows[0].State)
}
