package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/rawblock/sentinel/internal/scoring"
	"github.com/rawblock/sentinel/pkg/models"
)

var retryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

const maxRetries = 3
const maxConcurrentDeliveries = 5

// ChannelKind selects how a Channel's payload is built.
type ChannelKind int

const (
	ChannelDiscord ChannelKind = iota
	ChannelTelegram
)

// Channel is one configured delivery destination.
type Channel struct {
	Name           string
	Kind           ChannelKind
	WebhookURL     string
	RateLimitPerMin int

	mu         sync.Mutex
	lastReset  int64
	minuteSent int
	sentCount  int64
	errorCount int64
}

func (c *Channel) checkRateLimit(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	minute := now.Unix() / 60
	if minute != c.lastReset {
		c.lastReset = minute
		c.minuteSent = 0
	}
	if c.minuteSent >= c.RateLimitPerMin {
		return false
	}
	c.minuteSent++
	return true
}

func (c *Channel) recordSent()  { c.mu.Lock(); c.sentCount++; c.mu.Unlock() }
func (c *Channel) recordError() { c.mu.Lock(); c.errorCount++; c.mu.Unlock() }

// Stats is a snapshot of a channel's delivery counters.
type Stats struct {
	Name         string
	Configured   bool
	SentCount    int64
	ErrorCount   int64
	ErrorRatePct float64
}

// Stats returns a point-in-time snapshot for c.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.sentCount + c.errorCount
	var rate float64
	if total > 0 {
		rate = float64(c.errorCount) / float64(total) * 100
	}
	return Stats{
		Name:         c.Name,
		Configured:   c.WebhookURL != "",
		SentCount:    c.sentCount,
		ErrorCount:   c.errorCount,
		ErrorRatePct: rate,
	}
}

// Dispatcher delivers alerts to every configured channel concurrently,
// bounding in-flight deliveries and enforcing each channel's own rate
// limit and retry policy.
type Dispatcher struct {
	channels []*Channel
	client   *http.Client
	sem      chan struct{}
}

// NewDispatcher constructs a Dispatcher over channels.
func NewDispatcher(channels []*Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		client:   &http.Client{Timeout: 30 * time.Second},
		sem:      make(chan struct{}, maxConcurrentDeliveries),
	}
}

// Dispatch delivers alert (with an optional score breakdown) to every
// configured channel concurrently, returning once all attempts have
// resolved. It never returns an error itself — per-channel delivery
// outcomes are returned as a channel-name -> delivered map (for
// persisting onto Alert.Delivered) and tracked cumulatively in each
// channel's Stats.
func (d *Dispatcher) Dispatch(ctx context.Context, a models.Alert, score *scoring.Score) map[string]bool {
	results := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, ch := range d.channels {
		if ch.WebhookURL == "" {
			continue
		}
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.sem <- struct{}{}
			defer func() { <-d.sem }()
			ok := d.deliver(ctx, ch, a, score)
			mu.Lock()
			results[ch.Name] = ok
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) deliver(ctx context.Context, ch *Channel, a models.Alert, score *scoring.Score) bool {
	if !ch.checkRateLimit(time.Now()) {
		log.Printf("alert: %s rate limit reached, skipping alert for %s", ch.Name, a.Mint)
		return false
	}

	payload, err := buildPayload(ch.Kind, a, score)
	if err != nil {
		log.Printf("alert: %s payload build error: %v", ch.Name, err)
		ch.recordError()
		return false
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		status, retryAfter, err := d.post(ctx, ch.WebhookURL, payload)
		if err != nil {
			if attempt < maxRetries-1 {
				log.Printf("alert: %s network error, retrying in %s: %v", ch.Name, retryDelays[attempt], err)
				sleep(ctx, retryDelays[attempt])
				continue
			}
			ch.recordError()
			log.Printf("alert: %s send failed after %d attempts: %v", ch.Name, maxRetries, err)
			return false
		}

		switch {
		case status == http.StatusTooManyRequests:
			delay := retryAfter
			if delay <= 0 {
				delay = 5 * time.Second
			}
			log.Printf("alert: %s rate limited by remote, retry after %s", ch.Name, delay)
			sleep(ctx, delay)
			continue
		case status >= 500:
			if attempt < maxRetries-1 {
				log.Printf("alert: %s server error %d, retrying in %s", ch.Name, status, retryDelays[attempt])
				sleep(ctx, retryDelays[attempt])
				continue
			}
			ch.recordError()
			log.Printf("alert: %s server error after %d attempts: %d", ch.Name, maxRetries, status)
			return false
		case status >= 400:
			// Terminal client error: never retry.
			ch.recordError()
			log.Printf("alert: %s webhook error: %d", ch.Name, status)
			return false
		default:
			ch.recordSent()
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (d *Dispatcher) post(ctx context.Context, url string, payload []byte) (status int, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		var body struct {
			RetryAfter float64 `json:"retry_after"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		retryAfter = time.Duration(body.RetryAfter * float64(time.Second))
	}
	return resp.StatusCode, retryAfter, nil
}

func buildPayload(kind ChannelKind, a models.Alert, score *scoring.Score) ([]byte, error) {
	switch kind {
	case ChannelDiscord:
		return json.Marshal(FormatDiscordEmbed(a, score))
	case ChannelTelegram:
		return json.Marshal(map[string]string{
			"text":       FormatTelegram(a, score),
			"parse_mode": "Markdown",
		})
	default:
		return nil, fmt.Errorf("unknown channel kind %d", kind)
	}
}
