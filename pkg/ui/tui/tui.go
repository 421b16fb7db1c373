package tui

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"citystories/pkg/ingest"
	"citystories/pkg/models"
)

// TUI is a live dashboard for one pipeline run. It implements
// ingest.Observer so it can be handed to the ingestor directly.
type TUI struct {
	program *tea.Program
	model   *Model
}

// Option configures the program
type Option func(*[]tea.ProgramOption)

// WithOutput renders to w instead of the terminal
func WithOutput(w io.Writer) Option {
	return func(o *[]tea.ProgramOption) { *o = append(*o, tea.WithOutput(w)) }
}

// WithInput reads keys from r; nil disables input
func WithInput(r io.Reader) Option {
	return func(o *[]tea.ProgramOption) { *o = append(*o, tea.WithInput(r)) }
}

// New creates a dashboard. onInterrupt is called if the user quits while
// the run is still going; callers usually pass a context cancel func.
func New(accounts []models.TrackedAccount, onInterrupt func(), opts ...Option) *TUI {
	model := NewModel(accounts)
	model.onInterrupt = onInterrupt

	var popts []tea.ProgramOption
	for _, o := range opts {
		o(&popts)
	}
	return &TUI{program: tea.NewProgram(model, popts...), model: model}
}

// Observe forwards a pipeline event to the dashboard. It is safe to call
// from any goroutine and returns immediately once the program has exited.
func (t *TUI) Observe(e ingest.Event) {
	t.program.Send(EventMsg{Event: e})
}

// Done tells the dashboard the run has returned; the program then exits
func (t *TUI) Done(err error) {
	t.program.Send(DoneMsg{Err: err})
}

// Run blocks until the program exits. It reports whether the user quit
// before the run finished.
func (t *TUI) Run() (interrupted bool, err error) {
	final, err := t.program.Run()
	if m, ok := final.(*Model); ok {
		return m.interrupted, err
	}
	return false, err
}
