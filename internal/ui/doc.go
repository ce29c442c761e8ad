// Package ui provides terminal UI components for the pbctl CLI.
//
// This package uses Bubble Tea and Lipgloss. One-shot commands print styled
// headers, result boxes and tables through a Printer and exit. The watch
// command runs a WatchModel, which polls the client on a timer from inside
// the Bubble Tea event loop and renders the controller's pushed telemetry,
// the running pattern and the live preview strip.
//
// # Usage Pattern
//
//	state := ui.NewWatchState()
//	c := client.New(ws, st, state, cfg)
//	model := ui.NewWatchModel("desk", c, state, 20*time.Millisecond)
//	final, err := tea.NewProgram(model).Run()
//
// # Logging Integration
//
// This package expects logging to be controlled via the PIXELBLAZE_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, allowing
// the curated UI output to be displayed cleanly.
package ui
