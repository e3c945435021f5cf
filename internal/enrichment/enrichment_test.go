package enrichment

import "testing"

func TestCreditBudget_CanSpendWithinLimit(t *testing.T) {
	b := NewCreditBudget(100)
	if !b.CanSpend(50) {
		t.Error("expected CanSpend(50) within a 100 credit budget")
	}
	if !b.Spend(50) {
		t.Fatal("expected Spend(50) to succeed")
	}
	if b.Remaining() != 50 {
		t.Errorf("expected 50 credits remaining, got %d", b.Remaining())
	}
}

func TestCreditBudget_SpendRejectedOverLimit(t *testing.T) {
	b := NewCreditBudget(100)
	b.Spend(90)
	if b.Spend(20) {
		t.Error("expected Spend(20) to be rejected when it would exceed the daily limit")
	}
	if b.Remaining() != 10 {
		t.Errorf("expected the rejected spend to leave the counter unchanged, got %d remaining", b.Remaining())
	}
}

func TestCreditBudget_IsDegradedAboveEightyPercent(t *testing.T) {
	b := NewCreditBudget(100)
	b.Spend(79)
	if b.IsDegraded() {
		t.Error("expected not degraded at 79%")
	}
	b.Spend(2)
	if !b.IsDegraded() {
		t.Error("expected degraded once usage crosses 80%")
	}
}

func TestExtractFunder_FindsAccountWithDecreasedBalance(t *testing.T) {
	txRaw := []byte(`{
		"meta": {
			"preBalances": [1000000000, 2000000000],
			"postBalances": [1500000000, 1500000000]
		},
		"transaction": {
			"message": {
				"accountKeys": ["recipient", "funder"]
			}
		}
	}`)
	funder := extractFunder(txRaw, "recipient")
	if funder != "funder" {
		t.Errorf("expected funder to be identified, got %q", funder)
	}
}

func TestExtractFunder_NoMatchReturnsEmpty(t *testing.T) {
	txRaw := []byte(`{
		"meta": {"preBalances": [1000], "postBalances": [1000]},
		"transaction": {"message": {"accountKeys": ["alice"]}}
	}`)
	if funder := extractFunder(txRaw, "alice"); funder != "" {
		t.Errorf("expected empty funder when no balance increased, got %q", funder)
	}
}

func TestExtractFunder_ObjectShapedAccountKeys(t *testing.T) {
	txRaw := []byte(`{
		"meta": {
			"preBalances": [1000000000, 2000000000],
			"postBalances": [1500000000, 1500000000]
		},
		"transaction": {
			"message": {
				"accountKeys": [{"pubkey": "recipient"}, {"pubkey": "funder"}]
			}
		}
	}`)
	funder := extractFunder(txRaw, "recipient")
	if funder != "funder" {
		t.Errorf("expected funder identified from object-shaped account keys, got %q", funder)
	}
}
