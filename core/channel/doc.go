// Package channel provides an in-process, capacity-bounded, expiry-aware
// channel layer: a publish/receive message bus that decouples
// connection-handling front ends from backend workers, with named groups for
// one-to-many fan-out.
//
// # Concepts
//
// A channel is a named, ordered, capacity-bounded mailbox. Channels are
// created lazily on first use and decay when empty and idle past the
// retention window; they are never explicitly destroyed. Two kinds exist:
// named channels with fixed application-defined names, and process-specific
// channels whose names carry a random unguessable suffix (see NewChannel),
// used for reply-to addressing.
//
// A group is a named, dynamic set of channels. Group memberships auto-expire
// unless refreshed by re-adding, and a full member never blocks a broadcast
// to the rest of the group.
//
// # Basic Usage
//
//	layer, err := channel.New(
//	    channel.WithCapacity(100),
//	    channel.WithExpiry(time.Minute),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Optional: run the background sweeper for bounded memory.
//	ctx := context.Background()
//	go layer.Start(ctx)
//	defer layer.Stop()
//
//	err = layer.Send(ctx, "thumbnails-generate", channel.Message{
//	    "image_id": 42,
//	})
//	if errors.Is(err, channel.ErrChannelFull) {
//	    // Backpressure: the consumer is behind. Retry policy belongs to
//	    // the producer, not the layer.
//	}
//
//	msg, ok, err := layer.Receive(ctx, "thumbnails-generate", 5*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !ok {
//	    // Nothing arrived within the timeout. Not an error.
//	}
//
// # Groups
//
//	reply, _ := layer.NewChannel("reply")
//	_ = layer.GroupAdd("room-42", reply)
//
//	report, err := layer.GroupSend(ctx, "room-42", channel.Message{"text": "hi"})
//	// report.Sent members received the message; report.Failed were at capacity.
//
// # Ordering and Delivery
//
// Delivery is FIFO among live (non-expired) entries of a single channel.
// There is no ordering across channels, across group members, or between
// concurrent senders racing to the same channel. An expired entry is never
// delivered; it is dropped lazily at the next access and by the periodic
// sweep.
//
// # Serializability
//
// Messages are serialized on Send and deserialized on Receive even though the
// layer is in-process. This keeps payloads portable to out-of-process
// backends implementing the same operations and surfaces non-serializable
// payloads immediately at the producer.
package channel
