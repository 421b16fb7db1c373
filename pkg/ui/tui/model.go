package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"citystories/pkg/ingest"
	"citystories/pkg/models"
)

// AccountState is the dashboard's view of one account
type AccountState int

const (
	StatePending AccountState = iota
	StateFetching
	StateDownloading
	StateDone
	StateFailed
	StateSkipped
)

func (s AccountState) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateDownloading:
		return "downloading"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return "pending"
	}
}

// accountRow is one line of the accounts panel
type accountRow struct {
	Account models.TrackedAccount
	State   AccountState
	Posts   int
	Stored  int
	Failed  int
	Bytes   int64
	Err     string
}

// LogMessage is one entry of the activity panel
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the bubbletea model of the run dashboard. It is only mutated
// from Update.
type Model struct {
	spinner spinner.Model
	bar     progress.Model

	rows  []*accountRow
	index map[string]int

	runID        string
	started      time.Time
	stories      int
	bytes        int64
	manifestPath string
	finished     bool
	runErr       error
	interrupted  bool

	logMessages    []LogMessage
	maxLogMessages int

	width  int
	height int
	now    func() time.Time
	// onInterrupt is called when the user quits before the run ends
	onInterrupt func()
}

// NewModel creates the dashboard model for the given accounts
func NewModel(accounts []models.TrackedAccount) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	m := &Model{
		spinner:        s,
		bar:            progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		index:          make(map[string]int, len(accounts)),
		maxLogMessages: 8,
		now:            time.Now,
	}
	for i, acc := range accounts {
		m.rows = append(m.rows, &accountRow{Account: acc})
		m.index[acc.Key] = i
	}
	m.started = m.now()
	return m
}

func (m *Model) row(acc models.TrackedAccount) *accountRow {
	if i, ok := m.index[acc.Key]; ok {
		return m.rows[i]
	}
	r := &accountRow{Account: acc}
	m.index[acc.Key] = len(m.rows)
	m.rows = append(m.rows, r)
	return r
}

// apply folds one pipeline event into the model
func (m *Model) apply(e ingest.Event) {
	switch e.Stage {
	case ingest.StageRunStarted:
		m.runID = e.RunID
		m.started = e.Time
	case ingest.StageFetchStarted:
		m.row(e.Account).State = StateFetching
	case ingest.StageFetchCompleted:
		r := m.row(e.Account)
		r.State = StateDownloading
		r.Posts = e.Count
	case ingest.StageFetchFailed:
		r := m.row(e.Account)
		r.State = StateFailed
		r.Err = errText(e.Err)
		m.addLog("ERROR", "@"+e.Account.Handle+": "+r.Err)
	case ingest.StageAccountSkipped:
		r := m.row(e.Account)
		r.State = StateSkipped
		r.Err = e.Reason
		m.addLog("WARN", "@"+e.Account.Handle+" skipped: "+e.Reason)
	case ingest.StageItemDownloaded:
		r := m.row(e.Account)
		if e.Role == models.AssetRolePrimary {
			r.Stored++
		}
		r.Bytes += e.Bytes
		m.bytes += e.Bytes
	case ingest.StageItemFailed:
		r := m.row(e.Account)
		r.Failed++
		m.addLog("WARN", e.Post+": "+e.Reason)
	case ingest.StageThumbnailFailed:
		m.addLog("WARN", e.Post+" thumbnail: "+e.Reason)
	case ingest.StageAccountCompleted:
		r := m.row(e.Account)
		if r.State != StateFailed {
			r.State = StateDone
			m.addLog("SUCCESS", "@"+e.Account.Handle+" done")
		}
		m.stories += e.Count
	case ingest.StageManifestWritten:
		m.manifestPath = e.Path
		m.addLog("SUCCESS", "manifest written to "+e.Path)
	case ingest.StageRunCompleted:
		m.finished = true
	}
}

// finishedAccounts counts accounts that reached a terminal state
func (m *Model) finishedAccounts() int {
	n := 0
	for _, r := range m.rows {
		switch r.State {
		case StateDone, StateFailed, StateSkipped:
			n++
		}
	}
	return n
}

func (m *Model) percent() float64 {
	if len(m.rows) == 0 {
		return 0
	}
	return float64(m.finishedAccounts()) / float64(len(m.rows))
}

func (m *Model) addLog(level, message string) {
	m.logMessages = append(m.logMessages, LogMessage{
		Time:    m.now(),
		Level:   level,
		Message: message,
		Color:   levelColor(level),
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
