package api

import "testing"

func TestAllow_PermitsUpToBurstThenBlocks(t *testing.T) {
	rl := &RateLimiter{rate: 1.0 / 60.0, burst: 3, buckets: make(map[string]*ipBucket)}
	for i := 0; i < 3; i++ {
		ok, _ := rl.allow("1.2.3.4")
		if !ok {
			t.Fatalf("expected request %d within burst to be allowed", i+1)
		}
	}
	ok, retryAfter := rl.allow("1.2.3.4")
	if ok {
		t.Error("expected the request beyond burst capacity to be blocked")
	}
	if retryAfter <= 0 {
		t.Error("expected a positive retry-after duration once blocked")
	}
}

func TestAllow_TracksEachIPIndependently(t *testing.T) {
	rl := &RateLimiter{rate: 1.0 / 60.0, burst: 1, buckets: make(map[string]*ipBucket)}
	okA, _ := rl.allow("1.1.1.1")
	okB, _ := rl.allow("2.2.2.2")
	if !okA || !okB {
		t.Error("expected separate IPs to each get their own independent bucket")
	}
}
