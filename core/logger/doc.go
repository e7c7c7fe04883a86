// Package logger provides slog attribute helpers shared by the channel layer
// and the delay dispatcher.
//
// Helpers use the empty Attr pattern for nil safety, so call sites never need
// explicit nil checks:
//
//	log.Error("send failed",
//	    logger.Channel(name),
//	    logger.Error(err),
//	)
//
// An empty slog.Attr is silently skipped by slog handlers.
package logger
