// Package log provides a simple, leveled logging interface for medrag
// components.
//
// Retrieval and verification components log recoverable external-call
// failures (timeouts, malformed LLM output, store errors) through this
// package before degrading to their neutral defaults, so operators can see
// degradation without queries failing.
//
// # Log Levels
//
// The package supports five log levels, in order of increasing severity:
//
//   - LogLevelDebug: Detailed debugging information for development
//   - LogLevelInfo: General informational messages about normal operation
//   - LogLevelWarn: Warning messages for potentially problematic situations
//   - LogLevelError: Error messages for failures that need attention
//   - LogLevelNone: Disables all logging output
//
// # Example Usage
//
//	// Create a logger with INFO level
//	logger := log.NewDefaultLogger(log.LogLevelInfo)
//
//	logger.Info("verification complete: %d/%d claims verified", verified, total)
//	logger.Warn("claim extraction failed, returning empty claim set: %v", err)
//
// ## Custom Output
//
//	file, err := os.OpenFile("medrag.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer file.Close()
//
//	logger := log.NewCustomLogger(file, log.LogLevelDebug)
//
// ## Golog Backend
//
// For production deployments, GologLogger adapts a kataras/golog logger to
// the Logger interface:
//
//	glogger := golog.New()
//	logger := log.NewGologLogger(glogger)
//	logger.SetLevel(log.LogLevelWarn)
//
// # Package-Level Logger
//
// Components that are not handed an explicit Logger use the package-level
// default, which can be swapped globally:
//
//	log.SetDefaultLogger(log.NewGologLogger(golog.New()))
//	log.SetLogLevel(log.LogLevelDebug)
package log
