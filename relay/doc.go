// Package relay carries diagnostic text from producers (image builds,
// container runs) to a single consumer.
//
// A [Relay] is a bounded FIFO queue. Producers hold [Sender] handles; a full
// queue suspends Send until the consumer catches up, nothing is dropped. The
// queue is Open while at least one Sender is open and becomes Closed when the
// last one is closed. The consumer loop, [Relay.Drain], keeps reading until
// the queue is both Closed and empty.
//
// # Example
//
//	r, tx := relay.New(relay.DefaultCapacity)
//
//	done := make(chan error, 1)
//	go func() { done <- r.Drain(ctx, relay.NewWriterHandler(os.Stdout)) }()
//
//	_ = tx.Send(ctx, "hello")
//	tx.Close()
//	<-done
package relay
