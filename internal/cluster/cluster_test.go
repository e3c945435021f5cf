package cluster

import "testing"

func TestMergeFromEdges_DirectFundingAlwaysMerges(t *testing.T) {
	e := NewEngine()
	merged := e.MergeFromEdges([]FundingEdge{
		{Funder: "A", Funded: "B", Type: LinkDirectFunding, Confidence: 0.0},
	})

	if merged != 1 {
		t.Fatalf("expected 1 merge, got %d", merged)
	}
	if e.Find("A") != e.Find("B") {
		t.Error("A and B should be in the same cluster after direct funding")
	}
}

func TestMergeFromEdges_IndirectFundingGatedByConfidence(t *testing.T) {
	e := NewEngine()
	merged := e.MergeFromEdges([]FundingEdge{
		{Funder: "A", Funded: "B", Type: LinkIndirectFunding, Confidence: 0.5},
	})
	if merged != 0 {
		t.Fatalf("expected 0 merges below confidence threshold, got %d", merged)
	}

	merged = e.MergeFromEdges([]FundingEdge{
		{Funder: "A", Funded: "B", Type: LinkIndirectFunding, Confidence: 0.6},
	})
	if merged != 1 {
		t.Fatalf("expected 1 merge at threshold confidence, got %d", merged)
	}
}

func TestMergeFromEdges_SuspectedDecoyNeverMerges(t *testing.T) {
	e := NewEngine()
	merged := e.MergeFromEdges([]FundingEdge{
		{Funder: "A", Funded: "B", Type: LinkSuspectedDecoy, Confidence: 1.0},
	})
	if merged != 0 {
		t.Fatalf("expected 0 merges for a suspected decoy edge, got %d", merged)
	}
	if e.Find("A") == e.Find("B") {
		t.Error("A and B must not be clustered via a suspected decoy edge")
	}
}

func TestAddWallet_AccumulatesAdditively(t *testing.T) {
	e := NewEngine()
	e.AddWallet("A", 2.0, 1)
	e.AddWallet("A", 3.0, 2)

	c := e.GetCluster("A")
	if c == nil {
		t.Fatal("expected a cluster for A")
	}
	if c.TotalVolume != 5.0 {
		t.Errorf("expected accumulated volume 5.0, got %f", c.TotalVolume)
	}
	if c.TotalBuys != 3 {
		t.Errorf("expected accumulated buys 3, got %d", c.TotalBuys)
	}
}

func TestMembership_OnlyCountsMultiMemberClusters(t *testing.T) {
	e := NewEngine()
	e.AddWallet("solo", 1.0, 1)
	e.MergeFromEdges([]FundingEdge{
		{Funder: "A", Funded: "B", Type: LinkDirectFunding},
		{Funder: "B", Funded: "C", Type: LinkDirectFunding},
	})
	e.AddWallet("A", 1.0, 1)
	e.AddWallet("B", 1.0, 1)
	e.AddWallet("C", 1.0, 1)

	inMulti, largest := e.Membership([]string{"solo", "A", "B", "C"})
	if inMulti != 3 {
		t.Errorf("expected 3 wallets in multi-member clusters, got %d", inMulti)
	}
	if largest != 3 {
		t.Errorf("expected largest cluster size 3, got %d", largest)
	}
}

func TestGetCluster_UnseenAddressReturnsNil(t *testing.T) {
	e := NewEngine()
	if c := e.GetCluster("never-seen"); c != nil {
		t.Error("expected nil cluster for an address that was never recorded")
	}
}

func TestUnion_ReturnsFalseWhenAlreadyMerged(t *testing.T) {
	e := NewEngine()
	if !e.Union("A", "B") {
		t.Fatal("expected first union to report a merge")
	}
	if e.Union("A", "B") {
		t.Error("expected second union of already-merged wallets to report no merge")
	}
}
