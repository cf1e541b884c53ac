package console

import (
	"context"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// Options configure Run.
type Options struct {
	ListenAddr string
	OutputPath string
	// Input and Output default to the process terminal.
	Input  io.Reader
	Output io.Writer
}

// Run shows the console until the user quits, done closes, or ctx ends.
// It returns nil on a user quit; the caller then stops the pipeline.
func Run(ctx context.Context, source StatsSource, done <-chan struct{}, opts Options) error {
	progOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}

	p := tea.NewProgram(NewModel(source, done, opts.ListenAddr, opts.OutputPath), progOpts...)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
