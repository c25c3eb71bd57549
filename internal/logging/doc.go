// Package logging provides structured logging for insightverse.
//
// Logger wraps Zap and adds correlation fields from the context on every
// call: the OpenTelemetry trace and span, the job being processed and the
// inbound request id.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithJobID(ctx, jobID)
//	logger.Info(ctx, "chunks indexed", zap.Int("chunks", n))
//
// Stdout output passes through a redacting encoder so credentials that slip
// into fields never reach the log stream. Tests use NewTestLogger to observe
// entries in memory.
package logging
