package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// RunnerConfig holds configuration for a multi-step command
type RunnerConfig struct {
	Title           string            // e.g., "Synthetic Capture"
	Command         string            // e.g., "dlttap emit out.dlt"
	Params          map[string]string // Shown in the header
	StepNames       []string          // One entry per step
	Troubleshooting []string          // Tips shown when the operation fails
	Output          io.Writer         // Default: os.Stdout
}

// Runner drives the header, step list and result box of a one-shot
// command and hands the operation a callback for reporting progress.
type Runner struct {
	config   RunnerConfig
	header   *Header
	progress *Progress
	output   io.Writer
	width    int
}

// NewRunner creates a new runner
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	width := GetTerminalWidth()

	r := &Runner{
		config: config,
		header: NewHeader(config.Title, config.Command, config.Params).SetWidth(width),
		output: config.Output,
		width:  width,
	}
	if len(config.StepNames) > 0 {
		r.progress = NewProgress("", len(config.StepNames)).SetWidth(width).SetStepNames(config.StepNames)
	}
	return r
}

// Operation is the work performed by a Runner. It returns the details to
// show in the success box.
type Operation func(ctx context.Context, onStep StepCallback) (map[string]string, error)

// Run prints the header, executes the operation and prints the result.
// The operation's error is returned unchanged.
func (r *Runner) Run(ctx context.Context, op Operation) error {
	start := time.Now()

	_, _ = fmt.Fprintln(r.output, r.header.Render())
	_, _ = fmt.Fprintln(r.output)

	details, err := op(ctx, r.stepCallback())
	duration := time.Since(start).Round(time.Millisecond)

	_, _ = fmt.Fprintln(r.output)
	if err != nil {
		result := NewFailureResult(r.config.Title+" failed", err, r.config.Troubleshooting)
		_, _ = fmt.Fprintln(r.output, result.SetWidth(r.width).Render())
		return err
	}

	if details == nil {
		details = make(map[string]string)
	}
	details["Duration"] = duration.String()
	result := NewSuccessResult(r.config.Title+" complete", details)
	_, _ = fmt.Fprintln(r.output, result.SetWidth(r.width).Render())
	return nil
}

func (r *Runner) stepCallback() StepCallback {
	return func(stepNumber int, name string, status StepStatus, message string) {
		if r.progress == nil || stepNumber < 1 || stepNumber > len(r.progress.Steps) {
			return
		}
		if name != "" {
			r.progress.Steps[stepNumber-1].Name = name
		}
		r.progress.UpdateStep(stepNumber, status, message)

		line := r.progress.renderStepLine(r.progress.Steps[stepNumber-1])
		if status == StepRunning {
			// Overwritten once the step finishes
			_, _ = fmt.Fprint(r.output, line+"\r")
			return
		}
		_, _ = fmt.Fprintln(r.output, line)
	}
}
