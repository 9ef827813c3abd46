package feed

import "time"

// ReconnectPolicy decides how long to wait before the next connection
// attempt. There is deliberately no attempt limit: a long-lived background
// collector never gives up on its receiver.
type ReconnectPolicy struct {
	Delay      time.Duration // base delay between attempts
	Max        time.Duration // cap when growing; ignored if Multiplier <= 1
	Multiplier float64       // growth per consecutive failure; 0 or 1 = fixed
}

// FixedDelay is the reference policy: a constant wait between attempts.
func FixedDelay(d time.Duration) ReconnectPolicy {
	return ReconnectPolicy{Delay: d}
}

// DefaultPolicy matches the reference collector: 3 seconds, fixed.
func DefaultPolicy() ReconnectPolicy {
	return FixedDelay(3 * time.Second)
}

// Backoff returns the wait before attempt n (0-based count of consecutive
// failures since the last successful connection).
func (p ReconnectPolicy) Backoff(n int) time.Duration {
	d := p.Delay
	if d <= 0 {
		d = 3 * time.Second
	}
	if p.Multiplier <= 1 {
		return d
	}
	for i := 0; i < n; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	return d
}
