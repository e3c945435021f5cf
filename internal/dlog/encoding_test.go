package dlog

import (
	"reflect"
	"testing"

	"github.com/rawblock/sentinel/pkg/models"
)

func TestDeltaRecordRoundTrip(t *testing.T) {
	rec := models.TxDeltaRecord{
		Signature:       "sig123",
		Slot:            555,
		BlockTime:       1700000000,
		FeePayer:        "payer",
		ProgramsInvoked: []string{"progA", "progB"},
		TokenDeltas: []models.TokenDelta{
			{Owner: "alice", Mint: "TOKENX", Delta: 1000},
			{Owner: "bob", Mint: "TOKENX", Delta: -1000},
		},
		SolDeltas: []models.SolDelta{
			{Owner: "alice", Delta: -2_000_000},
		},
		MintsTouched:    []string{"TOKENX"},
		TxFee:           5000,
		AccountsCreated: 1,
	}

	encoded := EncodeDeltaRecord(rec)
	decoded, err := DecodeDeltaRecord(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(rec, decoded) {
		t.Errorf("round trip mismatch:\n  want %+v\n  got  %+v", rec, decoded)
	}
}

func TestDeltaRecordRoundTrip_EmptySlices(t *testing.T) {
	rec := models.TxDeltaRecord{Signature: "sig", Slot: 1}
	decoded, err := DecodeDeltaRecord(EncodeDeltaRecord(rec))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Signature != "sig" || decoded.Slot != 1 {
		t.Errorf("unexpected decode of a record with no deltas: %+v", decoded)
	}
}

func TestTouchEventRoundTrip(t *testing.T) {
	ev := models.MintTouchedEvent{
		Signature:       "sig456",
		Slot:            10,
		BlockTime:       1700000001,
		FeePayer:        "payer2",
		MintsTouched:    []string{"M1", "M2"},
		ProgramsInvoked: []string{"progC"},
	}
	decoded, err := DecodeTouchEvent(EncodeTouchEvent(ev))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(ev, decoded) {
		t.Errorf("round trip mismatch:\n  want %+v\n  got  %+v", ev, decoded)
	}
}

func TestDecodeDeltaRecord_TruncatedTailErrors(t *testing.T) {
	encoded := EncodeDeltaRecord(models.TxDeltaRecord{Signature: "sig"})
	truncated := encoded[:len(encoded)-3]
	if _, err := DecodeDeltaRecord(truncated); err == nil {
		t.Error("expected an error decoding a truncated record")
	}
}
