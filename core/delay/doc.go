// Package delay implements a durable timer queue on top of the channel
// layer: the delay server. Producers send a delay request to a well-known
// intake channel; the dispatcher persists it and redelivers the wrapped
// content to its target channel once due.
//
// A request names the target channel, carries the content to redeliver, and
// sets a one-shot delay and/or a repeat interval in seconds:
//
//	msg := delay.NewRequestMessage("emails", channel.Message{
//	    "template": "reminder",
//	}, 30*time.Second, 0)
//	err := layer.Send(ctx, delay.DefaultIntakeChannel, msg)
//
// One-shot messages are deleted after firing. Interval messages are
// rescheduled to the last send time plus the interval, firing until deleted
// from storage.
//
// # Running the Dispatcher
//
//	storage := delay.NewMemoryStorage()
//	dispatcher, err := delay.NewDispatcher(layer, storage,
//	    delay.WithPollInterval(time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := context.Background()
//	go dispatcher.Start(ctx)
//	defer dispatcher.Stop()
//
// # Storage Backends
//
// MemoryStorage suits tests and single-process setups. PostgresStorage and
// RedisStorage persist messages across restarts; apply the embedded
// Migrations before using PostgresStorage. The dispatcher assumes it is the
// only claimer against a given storage.
//
// # Delivery Semantics
//
// Redelivery goes through the layer's ordinary Send, so it is subject to the
// target channel's capacity. A full target does not lose the message: it is
// rescheduled one poll interval later. Delivery is therefore at-least-once
// relative to storage, with no exactly-once guarantee across dispatcher
// crashes mid-fire.
package delay
