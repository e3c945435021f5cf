// Package cluster implements weighted union-find clustering of wallet
// addresses by funding relationship, grouping Solana-style wallet
// funding links rather than Bitcoin transaction inputs.
package cluster

import (
	"fmt"
	"sort"
)

// LinkType gates whether a funding edge is strong enough to merge two
// wallets into the same cluster.
type LinkType int

const (
	// LinkDirectFunding is a direct wallet-funds-wallet transfer,
	// merged unconditionally (the Solana analog of CIOH).
	LinkDirectFunding LinkType = iota
	// LinkIndirectFunding is a multi-hop funding relationship,
	// requiring a minimum confidence before merging.
	LinkIndirectFunding
	// LinkSuspectedDecoy is a weak signal that must never merge
	// (e.g. an exchange hot wallet observed funding many unrelated
	// addresses).
	LinkSuspectedDecoy
)

const indirectFundingMinConfidence = 0.6

// Engine is a weighted union-find over wallet addresses with
// union-by-rank and path compression, plus additive per-member
// aggregate tracking.
type Engine struct {
	parent map[string]string
	rank   map[string]int
	size   map[string]int

	volume map[string]float64
	buys   map[string]int64
}

// NewEngine constructs an empty clustering Engine.
func NewEngine() *Engine {
	return &Engine{
		parent: make(map[string]string),
		rank:   make(map[string]int),
		size:   make(map[string]int),
		volume: make(map[string]float64),
		buys:   make(map[string]int64),
	}
}

// Find returns the root of addr's cluster, lazily initializing unseen
// addresses and compressing the path on the way up.
func (e *Engine) Find(addr string) string {
	if _, ok := e.parent[addr]; !ok {
		e.parent[addr] = addr
		e.rank[addr] = 0
		e.size[addr] = 1
		return addr
	}
	if e.parent[addr] != addr {
		e.parent[addr] = e.Find(e.parent[addr])
	}
	return e.parent[addr]
}

// Union merges the clusters containing a and b by rank, returning
// whether an actual merge occurred (false if they were already in the
// same cluster).
func (e *Engine) Union(a, b string) bool {
	rootA, rootB := e.Find(a), e.Find(b)
	if rootA == rootB {
		return false
	}

	if e.rank[rootA] < e.rank[rootB] {
		rootA, rootB = rootB, rootA
	}
	e.parent[rootB] = rootA
	e.size[rootA] += e.size[rootB]
	if e.rank[rootA] == e.rank[rootB] {
		e.rank[rootA]++
	}
	return true
}

// FundingEdge is a candidate funding relationship between two
// wallets.
type FundingEdge struct {
	Funder     string
	Funded     string
	Type       LinkType
	Confidence float64
}

// MergeFromEdges applies each edge's link-type gate and merges where
// warranted, returning the count of edges that actually caused a
// merge.
func (e *Engine) MergeFromEdges(edges []FundingEdge) int {
	merged := 0
	for _, edge := range edges {
		switch edge.Type {
		case LinkDirectFunding:
			// unconditional merge
		case LinkIndirectFunding:
			if edge.Confidence < indirectFundingMinConfidence {
				continue
			}
		case LinkSuspectedDecoy:
			continue
		default:
			continue
		}
		if e.Union(edge.Funder, edge.Funded) {
			merged++
		}
	}
	return merged
}

// AddWallet records a wallet's activity additively — repeated calls
// accumulate volume/buy counts rather than overwriting them, matching
// the original clusterer's accumulation semantics.
func (e *Engine) AddWallet(addr string, volumeSOL float64, buys int64) {
	e.Find(addr) // ensure initialized
	e.volume[addr] += volumeSOL
	e.buys[addr] += buys
}

// LinkFunding records both wallets' activity (via AddWallet with zero
// deltas if unseen) and unions them under a direct funding edge.
func (e *Engine) LinkFunding(wallet, funder string) bool {
	e.AddWallet(wallet, 0, 0)
	e.AddWallet(funder, 0, 0)
	return e.Union(wallet, funder)
}

// ClusterStats summarizes one resolved cluster.
type ClusterStats struct {
	RootAddress  string
	AddressCount int
	TotalVolume  float64
	TotalBuys    int64
	Members      []string
}

// GetCluster returns the resolved cluster containing addr, or nil if
// addr has never been seen.
func (e *Engine) GetCluster(addr string) *ClusterStats {
	if _, ok := e.parent[addr]; !ok {
		return nil
	}
	root := e.Find(addr)
	return e.buildStats(root)
}

func (e *Engine) buildStats(root string) *ClusterStats {
	stats := &ClusterStats{RootAddress: root}
	for member := range e.parent {
		if e.Find(member) == root {
			stats.Members = append(stats.Members, member)
			stats.TotalVolume += e.volume[member]
			stats.TotalBuys += e.buys[member]
		}
	}
	sort.Strings(stats.Members)
	stats.AddressCount = len(stats.Members)
	return stats
}

// AllClusters returns every distinct cluster currently known, sorted
// by total volume descending.
func (e *Engine) AllClusters() []*ClusterStats {
	seen := make(map[string]bool)
	var out []*ClusterStats
	for addr := range e.parent {
		root := e.Find(addr)
		if seen[root] {
			continue
		}
		seen[root] = true
		out = append(out, e.buildStats(root))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TotalVolume > out[j].TotalVolume
	})
	return out
}

// Membership reports, for wallets, how many resolve into a
// multi-member (size >= 2) cluster and the largest such cluster's
// size — the shape the Scorer's clustering sub-score needs.
func (e *Engine) Membership(wallets []string) (inMultiMember, largest int) {
	for _, w := range wallets {
		if _, ok := e.parent[w]; !ok {
			continue
		}
		size := e.size[e.Find(w)]
		if size >= 2 {
			inMultiMember++
			if size > largest {
				largest = size
			}
		}
	}
	return inMultiMember, largest
}

// ClustersForWallets returns the deduped cluster (by root) each of
// wallets resolves to, in wallets order, skipping any address never
// seen before.
func (e *Engine) ClustersForWallets(wallets []string) []*ClusterStats {
	seen := make(map[string]bool)
	var out []*ClusterStats
	for _, w := range wallets {
		if _, ok := e.parent[w]; !ok {
			continue
		}
		root := e.Find(w)
		if seen[root] {
			continue
		}
		seen[root] = true
		out = append(out, e.buildStats(root))
	}
	return out
}

// Summarize produces a short human-readable description of the
// clustering among wallets: top-5 clusters by volume, lettered A-E,
// with a "(+N more)" suffix when more exist.
func (e *Engine) Summarize(wallets []string) string {
	clusters := e.ClustersForWallets(wallets)
	if len(clusters) == 0 {
		return "No cluster data available"
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].TotalVolume > clusters[j].TotalVolume
	})

	totalWallets := 0
	for _, c := range clusters {
		totalWallets += c.AddressCount
	}
	clusterCount := len(clusters)

	top := clusters
	more := 0
	if len(top) > 5 {
		more = len(top) - 5
		top = top[:5]
	}

	var parts []string
	for i, c := range top {
		label := string(rune('A' + i))
		word := "wallet"
		if c.AddressCount > 1 {
			word = "wallets"
		}
		parts = append(parts, fmt.Sprintf("Cluster %s (%d %s, %.2f SOL)", label, c.AddressCount, word, c.TotalVolume))
	}

	clusterWord := "cluster"
	if clusterCount > 1 {
		clusterWord = "clusters"
	}
	summary := fmt.Sprintf("%d wallets in %d %s", totalWallets, clusterCount, clusterWord)
	if len(parts) > 0 {
		summary += ": " + joinComma(parts)
	}
	if more > 0 {
		summary += fmt.Sprintf(" (+%d more clusters)", more)
	}
	return summary
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// TotalClusters returns the number of distinct clusters with >= 2
// members currently resolved.
func (e *Engine) TotalClusters() int {
	count := 0
	for _, c := range e.AllClusters() {
		if c.AddressCount >= 2 {
			count++
		}
	}
	return count
}

// TotalAddresses returns the number of distinct addresses ever seen.
func (e *Engine) TotalAddresses() int {
	return len(e.parent)
}
