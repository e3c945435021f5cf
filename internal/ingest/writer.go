package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/rawblock/sentinel/internal/delta"
)

// StreamPusher is the narrow durable-stream dependency the Writer
// needs, implemented by stream.Store.
type StreamPusher interface {
	Push(ctx context.Context, raw []byte) error
}

// Writer serializes each inbound transaction update and appends it to
// the durable stream, capped at the stream's configured length.
type Writer struct {
	stream StreamPusher

	accepted int64
	rejected int64
}

// NewWriter constructs an ingest Writer over stream.
func NewWriter(stream StreamPusher) *Writer {
	return &Writer{stream: stream}
}

// Write encodes update and pushes it onto the durable stream.
func (w *Writer) Write(ctx context.Context, update TransactionUpdate) error {
	raw, err := json.Marshal(update.ToRawTransaction())
	if err != nil {
		w.rejected++
		return fmt.Errorf("encode transaction update: %w", err)
	}
	if err := w.stream.Push(ctx, raw); err != nil {
		w.rejected++
		return fmt.Errorf("push to durable stream: %w", err)
	}
	w.accepted++
	return nil
}

// Run subscribes to adapter and writes every update to the durable
// stream until ctx is canceled. A per-update write failure is logged
// and counted but never stops the subscription.
func (w *Writer) Run(ctx context.Context, adapter Adapter) error {
	return adapter.Subscribe(ctx, func(update TransactionUpdate) {
		if err := w.Write(ctx, update); err != nil {
			log.Printf("ingest writer: %v", err)
		}
	})
}

// Stats returns the accepted/rejected write counters.
func (w *Writer) Stats() (accepted, rejected int64) {
	return w.accepted, w.rejected
}

// DecodeRawTransaction parses a stream message payload back into the
// Delta Builder's input shape.
func DecodeRawTransaction(raw []byte) (delta.RawTransaction, error) {
	var tx delta.RawTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return tx, fmt.Errorf("decode raw transaction: %w", err)
	}
	return tx, nil
}
