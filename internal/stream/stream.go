// Package stream implements the durable ingest buffer: a Redis Streams
// consumer-group backed queue with crash-safe pending-message reclaim,
// and a pool of consumer workers.
package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// TxStream is the Redis stream key transactions are pushed onto.
	TxStream = "stream:tx"
	// ConsumerGroup is the shared consumer-group name every worker
	// joins, matching the original system exactly.
	ConsumerGroup = "parsers"
	// dataField is the single field name each stream entry carries.
	dataField = "data"
)

// Store wraps a Redis client with the durable-stream operations.
type Store struct {
	rdb    *redis.Client
	maxLen int64
}

// NewStore constructs a Store and ensures the consumer group exists,
// tolerating the case where it was already created by a previous run
// (BUSYGROUP).
func NewStore(ctx context.Context, rdb *redis.Client, maxLen int64) (*Store, error) {
	s := &Store{rdb: rdb, maxLen: maxLen}
	err := rdb.XGroupCreateMkStream(ctx, TxStream, ConsumerGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return s, nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// Push appends a raw transaction payload to the stream, capping its
// approximate length at maxLen.
func (s *Store) Push(ctx context.Context, raw []byte) error {
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: TxStream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{dataField: raw},
	}).Err()
}

// Len returns the approximate current stream length, used by the
// backpressure controller.
func (s *Store) Len(ctx context.Context) (int64, error) {
	return s.rdb.XLen(ctx, TxStream).Result()
}

// Message is a single decoded stream entry.
type Message struct {
	ID  string
	Raw []byte
}

// ReadBatch performs a blocking XREADGROUP read for consumerName.
func (s *Store) ReadBatch(ctx context.Context, consumerName string, count int64, blockMS int) ([]Message, error) {
	res, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: consumerName,
		Streams:  []string{TxStream, ">"},
		Count:    count,
		Block:    time.Duration(blockMS) * time.Millisecond,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return flatten(res), nil
}

func flatten(res []redis.XStream) []Message {
	var out []Message
	for _, stream := range res {
		for _, entry := range stream.Messages {
			raw, ok := entry.Values[dataField]
			if !ok {
				continue
			}
			var b []byte
			switch v := raw.(type) {
			case string:
				b = []byte(v)
			case []byte:
				b = v
			default:
				continue
			}
			out = append(out, Message{ID: entry.ID, Raw: b})
		}
	}
	return out
}

// Ack acknowledges a batch of processed message IDs.
func (s *Store) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.rdb.XAck(ctx, TxStream, ConsumerGroup, ids...).Err()
}

// ClaimStale reclaims messages assigned to consumerName that have sat
// unacknowledged for longer than minIdle, for processing after a
// restart.
func (s *Store) ClaimStale(ctx context.Context, consumerName string, minIdle time.Duration) ([]Message, error) {
	pending, err := s.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   TxStream,
		Group:    ConsumerGroup,
		Start:    "-",
		End:      "+",
		Count:    1000,
		Consumer: consumerName,
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	var idleIDs []string
	for _, p := range pending {
		if p.Idle >= minIdle {
			idleIDs = append(idleIDs, p.ID)
		}
	}
	if len(idleIDs) == 0 {
		return nil, nil
	}

	claimed, err := s.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   TxStream,
		Group:    ConsumerGroup,
		Consumer: consumerName,
		MinIdle:  minIdle,
		Messages: idleIDs,
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []Message
	for _, entry := range claimed {
		raw, ok := entry.Values[dataField]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		out = append(out, Message{ID: entry.ID, Raw: []byte(s)})
	}
	return out, nil
}
