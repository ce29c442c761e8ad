// Package emulator serves a simulated Pixelblaze controller over websocket.
//
// The emulator answers the firmware's text commands (ping, listPrograms,
// getConfig, getPlaylist, getControls, getPreviewImg, getPeers), applies
// state changes (brightness, nextProgram, playlist position, controls,
// sequencer settings) and pushes telemetry once per StatsEvery. Binary
// replies are split across frames no larger than the controller's frame
// size, so multi-frame reassembly can be exercised against a real socket.
//
// # Usage Example
//
//	ctrl, _ := emulator.NewController("desk", emulator.DemoPatterns())
//	srv := emulator.New(&emulator.Config{Port: emulator.DefaultPort}, ctrl)
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until SIGINT or SIGTERM. Tests call Listen, run Serve in a
// goroutine and stop with Shutdown.
//
// Binary uploads are accepted and discarded.
package emulator
