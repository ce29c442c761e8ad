// Package logging provides structured logging for the Pixelblaze client.
//
// This package wraps a global zap logger with convenience functions. The
// logger is silent unless a level is given explicitly or through the
// PIXELBLAZE_LOG_LEVEL environment variable, so library users never see
// output they did not ask for.
//
// # Log Levels
//
//   - Debug: frame dumps, queue movement, unsolicited traffic
//   - Info: connection events, reconnects
//   - Warn: protocol anomalies (bad frame flags, undecodable text)
//   - Error: store failures, programming errors such as dequeuing an empty queue
//
// # Configuration
//
//	if err := logging.InitializeWithOptions(logging.Options{
//	    Level: "debug",
//	    File:  "/var/log/pbctl.log",
//	}); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// When File is set the output is JSON lines rotated by size.
package logging
