package viewer

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/dlttap/internal/format"
)

// Feed produces records for the viewer until ctx is done. handle blocks
// while the viewer is behind; status replaces the status line.
type Feed func(ctx context.Context, handle func(*format.Record) error, status func(string)) error

// Run shows the full-screen live viewer fed by feed. It returns when the
// user quits; the feed's context is cancelled at that point. A feed error
// stays on screen until the user quits and is then returned.
func Run(ctx context.Context, title string, feed Feed) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records := make(chan *format.Record, maxPerRefresh)
	p := tea.NewProgram(NewModel(title, records), tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		handle := func(r *format.Record) error {
			select {
			case records <- r:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		status := func(s string) { p.Send(statusMsg(s)) }
		err := feed(ctx, handle, status)
		if ctx.Err() == nil {
			p.Send(doneMsg{err: err})
		}
	}()

	final, err := p.Run()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("viewer failed: %w", err)
	}
	if m, ok := final.(Model); ok && m.Err != nil {
		return m.Err
	}
	return nil
}
