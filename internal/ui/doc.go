// Package ui provides terminal styling and the one-shot output components
// used by the dlttap commands.
//
// Components follow a "run once and exit" pattern: they render output but
// never wait for user interaction (the live viewer lives in package viewer).
//
//   - Header: command banner showing operation name and parameters
//   - Progress: step list with a progress bar, ByteProgress for input sizes
//   - Result: success/failure/warning boxes with troubleshooting tips
//   - Runner: header → steps → result flow for multi-step commands
//   - Confirm: yes/no prompt used before overwriting files
//
// # Colour
//
// SetColorMode implements --color auto|always|never. In auto mode colour
// is enabled only when the destination is a terminal and NO_COLOR is unset.
// LevelStyle maps DLT log levels to the palette and is shared by the text
// record formatter and the viewer.
//
// # Logging Integration
//
// Logging is controlled via DLTTAP_LOG_LEVEL. When unset, zap logging is
// silent so the curated UI output stays clean. All components write to the
// writer they are given; commands send them to stderr whenever stdout
// carries decoded records.
//
// Example:
//
//	runner := ui.NewRunner(ui.RunnerConfig{
//	    Title:     "Synthetic Capture",
//	    Command:   "dlttap emit out.dlt",
//	    StepNames: []string{"Build frames", "Encode", "Write file", "Verify"},
//	})
//	err := runner.Run(ctx, func(ctx context.Context, onStep ui.StepCallback) (map[string]string, error) {
//	    onStep(1, "", ui.StepRunning, "")
//	    // ... do work ...
//	    onStep(1, "", ui.StepComplete, "100 frames")
//	    return map[string]string{"Frames": "100"}, nil
//	})
package ui
