// Package ingest wires the chain-subscription adapter, the durable
// ingest writer, and the per-transaction processing pipeline (delta
// extraction, swap inference, counters, logs, triggers, state
// transitions, and HOT-promotion alerting) into one cohesive unit.
package ingest

import (
	"context"

	"github.com/rawblock/sentinel/internal/delta"
)

// TransactionUpdate is the normalized shape the chain-subscription
// adapter produces from a raw gateway message. It carries exactly the
// fields the Delta Builder needs; everything else in the wire protocol
// (compute units, loaded address-lookup-table metadata, vote/failed
// filtering) is the adapter's concern, not the pipeline's.
type TransactionUpdate struct {
	Signature       string
	Slot            uint64
	BlockTime       int64
	FeePayer        string
	Fee             int64
	Balances        []delta.BalanceSnapshot
	InnerProgramIDs []string
	ProgramIDs      []string
}

// ToRawTransaction converts a TransactionUpdate into the Delta
// Builder's input shape.
func (u TransactionUpdate) ToRawTransaction() delta.RawTransaction {
	return delta.RawTransaction{
		Signature:       u.Signature,
		Slot:            u.Slot,
		BlockTime:       u.BlockTime,
		FeePayer:        u.FeePayer,
		Fee:             u.Fee,
		Balances:        u.Balances,
		InnerProgramIDs: u.InnerProgramIDs,
		ProgramIDs:      u.ProgramIDs,
	}
}

// Adapter is the narrow interface to the inbound chain-subscription
// transport: a bidirectional streaming RPC to a chain-gateway service.
// Its concrete implementation (connection management, base58 decoding,
// subscription filters, ping keepalive, reconnect-with-backoff) is
// explicitly out of core scope; the pipeline only ever depends on this
// interface.
type Adapter interface {
	// Subscribe opens the update stream and invokes handler for every
	// decoded TransactionUpdate until ctx is canceled or the stream
	// ends with an error.
	Subscribe(ctx context.Context, handler func(TransactionUpdate)) error
}
