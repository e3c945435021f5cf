package stream

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// PendingClaimMinIdle is the default idle threshold before an
// unacknowledged message is eligible for reclaim by a fresh consumer,
// matching the original system's PENDING_CLAIM_MIN_IDLE_MS.
const PendingClaimMinIdle = 30 * time.Second

// Handler processes one decoded stream message. An error is logged but
// the message is still acknowledged — per the error-handling policy, a
// single bad record never blocks or redelivers indefinitely.
type Handler func(ctx context.Context, msg Message) error

// Consumer reads and processes messages for a single named consumer
// within the shared group.
type Consumer struct {
	store        *Store
	name         string
	batchSize    int64
	blockMS      int
	minIdleClaim time.Duration

	processed int64
	errors    int64
}

// NewConsumer constructs a single stream consumer.
func NewConsumer(store *Store, name string, batchSize int64, blockMS int) *Consumer {
	return &Consumer{
		store:        store,
		name:         name,
		batchSize:    batchSize,
		blockMS:      blockMS,
		minIdleClaim: PendingClaimMinIdle,
	}
}

// Run claims any stale pending messages from a previous run, then
// loops reading and processing batches until ctx is canceled.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	if err := c.claimPending(ctx, handler); err != nil {
		log.Printf("stream consumer %s: claim-pending error: %v", c.name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := c.store.ReadBatch(ctx, c.name, c.batchSize, c.blockMS)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("stream consumer %s: read error: %v", c.name, err)
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		ackIDs := make([]string, 0, len(msgs))
		for _, msg := range msgs {
			if err := handler(ctx, msg); err != nil {
				c.errors++
				log.Printf("stream consumer %s: handler error for %s: %v", c.name, msg.ID, err)
			} else {
				c.processed++
			}
			// Ack regardless of handler error: avoids infinite
			// redelivery of a message that can never succeed.
			ackIDs = append(ackIDs, msg.ID)
		}
		if err := c.store.Ack(ctx, ackIDs...); err != nil {
			log.Printf("stream consumer %s: ack error: %v", c.name, err)
		}
	}
}

func (c *Consumer) claimPending(ctx context.Context, handler Handler) error {
	msgs, err := c.store.ClaimStale(ctx, c.name, c.minIdleClaim)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	log.Printf("stream consumer %s: claimed %d stale pending messages", c.name, len(msgs))

	ackIDs := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if err := handler(ctx, msg); err != nil {
			c.errors++
			log.Printf("stream consumer %s: pending handler error for %s: %v", c.name, msg.ID, err)
		} else {
			c.processed++
		}
		ackIDs = append(ackIDs, msg.ID)
	}
	return c.store.Ack(ctx, ackIDs...)
}

// Stats returns the consumer's running counters.
func (c *Consumer) Stats() (processed, errors int64) {
	return c.processed, c.errors
}

// Pool runs a configurable number of named consumers in the same
// group, matching the original system's MultiConsumer.
type Pool struct {
	store     *Store
	count     int
	batchSize int64
	blockMS   int

	consumers []*Consumer
}

// NewPool constructs a consumer pool.
func NewPool(store *Store, count int, batchSize int64, blockMS int) *Pool {
	if count < 1 {
		count = 1
	}
	consumers := make([]*Consumer, count)
	for i := 0; i < count; i++ {
		consumers[i] = NewConsumer(store, fmt.Sprintf("parser-%d", i+1), batchSize, blockMS)
	}
	return &Pool{store: store, count: count, batchSize: batchSize, blockMS: blockMS, consumers: consumers}
}

// Run starts every consumer in the pool and blocks until ctx is
// canceled or one consumer returns a non-nil error.
func (p *Pool) Run(ctx context.Context, handler Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range p.consumers {
		c := c
		g.Go(func() error {
			return c.Run(gctx, handler)
		})
	}
	return g.Wait()
}

// Stats aggregates processed/error counts across the pool.
func (p *Pool) Stats() (processed, errors int64) {
	for _, c := range p.consumers {
		pc, ec := c.Stats()
		processed += pc
		errors += ec
	}
	return
}
