// Package logger provides the structured logging interface used across
// citystories.
//
// It wraps zerolog. Console output is colourised for humans; setting
// logging.format to "json" emits one JSON object per line, and
// logging.file additionally appends JSON lines to a file.
//
//	err := logger.Initialize(&cfg.Logging)
//	log := logger.ForRun(logger.GetLogger(), logger.NewRunID())
//	log.WithField("account", "istanbul").Info("Fetching timeline")
//
// Tests use NewNopLogger or NewTestLogger, which records messages for
// assertions.
package logger
