package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rawblock/sentinel/internal/delta"
)

type fakeStreamPusher struct {
	pushed  [][]byte
	failNext bool
}

func (f *fakeStreamPusher) Push(ctx context.Context, raw []byte) error {
	if f.failNext {
		f.failNext = false
		return errors.New("push failed")
	}
	f.pushed = append(f.pushed, raw)
	return nil
}

func TestWrite_AcceptsAndCountsSuccessfulPush(t *testing.T) {
	fake := &fakeStreamPusher{}
	w := NewWriter(fake)
	update := TransactionUpdate{Signature: "sig1", Slot: 10}
	if err := w.Write(context.Background(), update); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	accepted, rejected := w.Stats()
	if accepted != 1 || rejected != 0 {
		t.Errorf("expected accepted=1 rejected=0, got accepted=%d rejected=%d", accepted, rejected)
	}
	if len(fake.pushed) != 1 {
		t.Fatalf("expected one pushed message, got %d", len(fake.pushed))
	}
}

func TestWrite_CountsRejectedOnPushFailure(t *testing.T) {
	fake := &fakeStreamPusher{failNext: true}
	w := NewWriter(fake)
	update := TransactionUpdate{Signature: "sig2"}
	if err := w.Write(context.Background(), update); err == nil {
		t.Fatal("expected an error when the stream push fails")
	}
	accepted, rejected := w.Stats()
	if accepted != 0 || rejected != 1 {
		t.Errorf("expected accepted=0 rejected=1, got accepted=%d rejected=%d", accepted, rejected)
	}
}

func TestToRawTransaction_CarriesAllDeltaBuilderFields(t *testing.T) {
	update := TransactionUpdate{
		Signature:       "sig3",
		Slot:            99,
		BlockTime:       1700000000,
		FeePayer:        "payer",
		Fee:             5000,
		Balances:        []delta.BalanceSnapshot{{Owner: "alice", Mint: "TOKENX", PostAmount: 100}},
		InnerProgramIDs: []string{"inner1"},
		ProgramIDs:      []string{"outer1"},
	}
	tx := update.ToRawTransaction()
	if tx.Signature != update.Signature || tx.Slot != update.Slot || tx.FeePayer != update.FeePayer {
		t.Errorf("expected core fields carried over unchanged, got %+v", tx)
	}
	if len(tx.Balances) != 1 || len(tx.InnerProgramIDs) != 1 || len(tx.ProgramIDs) != 1 {
		t.Errorf("expected all slice fields carried over, got %+v", tx)
	}
}

func TestDecodeRawTransaction_RoundTripsThroughJSON(t *testing.T) {
	update := TransactionUpdate{Signature: "sig4", Slot: 1, FeePayer: "payer"}
	raw, err := json.Marshal(update.ToRawTransaction())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	decoded, err := DecodeRawTransaction(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Signature != "sig4" || decoded.Slot != 1 || decoded.FeePayer != "payer" {
		t.Errorf("unexpected decoded transaction: %+v", decoded)
	}
}

func TestDecodeRawTransaction_InvalidJSONErrors(t *testing.T) {
	if _, err := DecodeRawTransaction([]byte("not json")); err == nil {
		t.Error("expected an error decoding invalid JSON")
	}
}
