// Package logging provides structured logging with OpenTelemetry integration.
//
// Logger wraps Zap with:
//   - Custom Trace level (-2, below Debug) for raw git output
//   - Dual output (stdout + OpenTelemetry via the otelzap bridge)
//   - Automatic context fields (trace_id, cycle.id, cycle.trigger, project.name)
//   - Redaction of credentials embedded in git remote URLs
//   - Per-level sampling (errors never sampled)
//
// # Usage
//
//	cfg, err := logging.FromAppConfig(appCfg.Log)
//	logger, err := logging.NewLogger(cfg, nil)
//	defer logger.Sync()
//
//	ctx = logging.WithCycle(ctx, cycleID, "interval")
//	ctx = logging.WithProject(ctx, "design-notes")
//	logger.Info(ctx, "pulled updates", zap.Int("files", n))
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//
// Logger is safe for concurrent use. Child loggers (With, Named) do not
// affect parent or siblings.
package logging
