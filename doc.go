// Package channelkit provides an in-process channel layer: named FIFO
// channels with bounded capacity and per-message expiry, group fan-out, and a
// persistence-backed delay server for deferred redelivery.
//
// The root package only documents the module. Functionality lives in the
// subpackages:
//
//   - core/channel: the channel layer itself. Layer is the facade: Send,
//     Receive, NewChannel, GroupAdd, GroupDiscard, GroupSend, Flush, plus a
//     background sweeper started through the usual Start/Stop/Run lifecycle.
//   - core/delay: the delay server. A Dispatcher reads delay requests from an
//     intake channel, persists them in a Storage (memory, Postgres, or
//     Redis), and redelivers each message to its target channel when due.
//   - core/config: environment-backed configuration loading shared by the
//     packages above.
//   - core/logger: slog attribute helpers used across the module.
//   - integration/database/pg, integration/database/redis: connection
//     helpers, retries, and healthchecks for the delay storage backends.
//
// # Quick Start
//
//	layer, err := channel.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = layer.Send(ctx, "orders", channel.Message{"type": "order.created"})
//	msg, ok, err := layer.Receive(ctx, "orders", 5*time.Second)
//
// Messages are JSON-serialized on Send and decoded on Receive, so anything a
// channel carries survives a round trip through an external store unchanged.
//
// All blocking operations accept a context and every channel is safe for
// concurrent producers and consumers.
package channelkit
