// Package enrichment provides wallet-history lookups against a remote
// enrichment RPC under a daily credit budget, guarded by the shared
// backpressure circuit breaker. This is the out-of-core-scope external
// collaborator: the pipeline depends only on the narrow Enricher
// interface below, never on the concrete HTTP client.
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rawblock/sentinel/internal/backpressure"
)

// CreditCosts are the fixed per-operation costs against the daily
// budget, matching the remote API's published pricing exactly.
var CreditCosts = map[string]int{
	"getAccountInfo":           1,
	"getSignaturesForAddress":  10,
	"getTransaction":           10,
	"getTransactionsForAddress": 100,
}

// CreditBudget tracks daily credit spend, resetting at local midnight.
type CreditBudget struct {
	dailyLimit int

	mu        sync.Mutex
	usedToday int
	lastReset time.Time
}

// NewCreditBudget constructs a CreditBudget with the given daily limit.
func NewCreditBudget(dailyLimit int) *CreditBudget {
	return &CreditBudget{dailyLimit: dailyLimit, lastReset: today()}
}

func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (b *CreditBudget) maybeReset() {
	t := today()
	if !t.Equal(b.lastReset) {
		b.usedToday = 0
		b.lastReset = t
	}
}

// CanSpend reports whether credits can be spent without exceeding the
// daily limit.
func (b *CreditBudget) CanSpend(credits int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeReset()
	return b.usedToday+credits <= b.dailyLimit
}

// Spend attempts to record a spend of credits, returning false (and
// leaving the counter unchanged) if it would exceed the daily limit.
func (b *CreditBudget) Spend(credits int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeReset()
	if b.usedToday+credits > b.dailyLimit {
		return false
	}
	b.usedToday += credits
	return true
}

// IsDegraded reports whether usage has crossed 80% of the daily limit.
func (b *CreditBudget) IsDegraded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeReset()
	return float64(b.usedToday) > float64(b.dailyLimit)*0.8
}

// Remaining returns the credits left for today.
func (b *CreditBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeReset()
	r := b.dailyLimit - b.usedToday
	if r < 0 {
		r = 0
	}
	return r
}

// BudgetStats is a point-in-time snapshot of a CreditBudget.
type BudgetStats struct {
	DailyLimit int
	UsedToday  int
	Remaining  int
	UsagePct   float64
	IsDegraded bool
}

// Stats returns a snapshot of b.
func (b *CreditBudget) Stats() BudgetStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeReset()
	var pct float64
	if b.dailyLimit > 0 {
		pct = float64(b.usedToday) / float64(b.dailyLimit) * 100
	}
	return BudgetStats{
		DailyLimit: b.dailyLimit,
		UsedToday:  b.usedToday,
		Remaining:  b.dailyLimit - b.usedToday,
		UsagePct:   pct,
		IsDegraded: pct > 80,
	}
}

// FundingHop is one link in a traced funding chain.
type FundingHop struct {
	Hop       int
	Funder    string
	Signature string
	Slot      uint64
}

// FundingTrace is the result of walking a wallet's funding lineage
// back max_hops transactions.
type FundingTrace struct {
	Wallet         string
	Chain          []FundingHop
	UltimateFunder string
	Hops           int
}

// Enricher is the narrow interface the ingest pipeline depends on for
// wallet funding lineage. Implementations must be safe for concurrent
// use.
type Enricher interface {
	TraceFunding(ctx context.Context, address string, maxHops int) (*FundingTrace, error)
	IsDegraded() bool
}

// signatureInfo mirrors one entry of getSignaturesForAddress.
type signatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	Err       json.RawMessage `json:"err"`
}

// rpcResponse is the generic JSON-RPC 2.0 envelope.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client is an HTTP JSON-RPC client for a Helius-style wallet
// enrichment API, credit-budgeted and circuit-breaker-guarded.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	budget  *CreditBudget
	breaker *backpressure.CircuitBreaker
	sem     chan struct{}

	mu       sync.Mutex
	requests int64
	errors   int64
	nextID   int64
}

// NewClient constructs an enrichment Client against baseURL (the
// provider's JSON-RPC endpoint, already carrying any required API key
// query parameter).
func NewClient(baseURL string, budget *CreditBudget, breaker *backpressure.CircuitBreaker) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		budget:  budget,
		breaker: breaker,
		sem:     make(chan struct{}, 5),
	}
}

func (c *Client) rpcCall(ctx context.Context, method string, params []interface{}, credits int) (json.RawMessage, error) {
	if !c.budget.CanSpend(credits) {
		return nil, fmt.Errorf("enrichment: credit budget exceeded, skipping %s", method)
	}

	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	c.mu.Lock()
	c.requests++
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	c.budget.Spend(credits)

	var result json.RawMessage
	err := c.breaker.Call(func() error {
		payload, err := json.Marshal(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      id,
			"method":  method,
			"params":  params,
		})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("enrichment: %s returned status %d", method, resp.StatusCode)
		}

		var rpcResp rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
			return fmt.Errorf("decode rpc response: %w", err)
		}
		if rpcResp.Error != nil {
			return fmt.Errorf("enrichment rpc error: %s", rpcResp.Error.Message)
		}
		result = rpcResp.Result
		return nil
	})

	if err != nil {
		c.mu.Lock()
		c.errors++
		c.mu.Unlock()
		return nil, err
	}
	return result, nil
}

// GetSignatures returns up to limit recent signatures for address.
func (c *Client) GetSignatures(ctx context.Context, address string, limit int) ([]signatureInfo, error) {
	params := []interface{}{address, map[string]interface{}{"limit": limit}}
	raw, err := c.rpcCall(ctx, "getSignaturesForAddress", params, CreditCosts["getSignaturesForAddress"])
	if err != nil {
		return nil, err
	}
	var sigs []signatureInfo
	if err := json.Unmarshal(raw, &sigs); err != nil {
		return nil, fmt.Errorf("decode signatures: %w", err)
	}
	return sigs, nil
}

// GetTransaction fetches one transaction's raw JSON representation.
func (c *Client) GetTransaction(ctx context.Context, signature string) (json.RawMessage, error) {
	params := []interface{}{signature, map[string]interface{}{
		"encoding":                       "jsonParsed",
		"maxSupportedTransactionVersion": 0,
	}}
	return c.rpcCall(ctx, "getTransaction", params, CreditCosts["getTransaction"])
}

// TraceFunding walks address's earliest transactions back up to
// maxHops links, returning the funding chain found or nil if none
// could be traced. This mirrors the original system's breadth-limited
// single-path trace: at each hop it looks at the address's oldest few
// signatures for the first SOL transfer into it.
func (c *Client) TraceFunding(ctx context.Context, address string, maxHops int) (*FundingTrace, error) {
	if !c.budget.CanSpend(10 * maxHops) {
		return nil, nil
	}

	current := address
	var chain []FundingHop

	for hop := 0; hop < maxHops; hop++ {
		sigs, err := c.GetSignatures(ctx, current, 5)
		if err != nil || len(sigs) == 0 {
			break
		}

		for i := len(sigs) - 1; i >= 0; i-- {
			sig := sigs[i]
			if len(sig.Err) > 0 && string(sig.Err) != "null" {
				continue
			}
			txRaw, err := c.GetTransaction(ctx, sig.Signature)
			if err != nil || txRaw == nil {
				continue
			}
			funder := extractFunder(txRaw, current)
			if funder != "" && funder != current {
				chain = append(chain, FundingHop{Hop: hop + 1, Funder: funder, Signature: sig.Signature, Slot: sig.Slot})
				current = funder
				break
			}
		}
	}

	if len(chain) == 0 {
		return nil, nil
	}
	return &FundingTrace{
		Wallet:         address,
		Chain:          chain,
		UltimateFunder: chain[len(chain)-1].Funder,
		Hops:           len(chain),
	}, nil
}

// extractFunder inspects a raw transaction's pre/post balances for the
// account whose balance decreased by the same transfer that increased
// recipient's: first plausible sender wins, with no attempt at exact
// lamport reconciliation.
func extractFunder(txRaw json.RawMessage, recipient string) string {
	var tx struct {
		Meta struct {
			PreBalances  []int64 `json:"preBalances"`
			PostBalances []int64 `json:"postBalances"`
		} `json:"meta"`
		Transaction struct {
			Message struct {
				AccountKeys []json.RawMessage `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(txRaw, &tx); err != nil {
		return ""
	}

	keys := make([]string, len(tx.Transaction.Message.AccountKeys))
	for i, raw := range tx.Transaction.Message.AccountKeys {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			keys[i] = s
			continue
		}
		var obj struct {
			Pubkey string `json:"pubkey"`
		}
		if json.Unmarshal(raw, &obj) == nil {
			keys[i] = obj.Pubkey
		}
	}

	pre, post := tx.Meta.PreBalances, tx.Meta.PostBalances
	for i, addr := range keys {
		if addr != recipient || i >= len(pre) || i >= len(post) {
			continue
		}
		if post[i] <= pre[i] {
			continue
		}
		for j, other := range keys {
			if j >= len(pre) || j >= len(post) {
				continue
			}
			if pre[j] > post[j] {
				return other
			}
		}
	}
	return ""
}

// IsDegraded reports whether the client's credit budget has crossed
// the degraded threshold.
func (c *Client) IsDegraded() bool {
	return c.budget.IsDegraded()
}

// ClientStats is a snapshot of request/error counters plus the
// underlying budget's state.
type ClientStats struct {
	Requests    int64
	Errors      int64
	ErrorRatePct float64
	Budget      BudgetStats
}

// Stats returns a snapshot of c.
func (c *Client) Stats() ClientStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var rate float64
	if c.requests > 0 {
		rate = float64(c.errors) / float64(c.requests) * 100
	}
	return ClientStats{
		Requests:     c.requests,
		Errors:       c.errors,
		ErrorRatePct: rate,
		Budget:       c.budget.Stats(),
	}
}
