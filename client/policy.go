package client

import "time"

// PollPolicy bounds how a job's status is polled.
type PollPolicy struct {
	// Interval is the wait between the end of one status query and the
	// start of the next.
	Interval time.Duration
	// Multiplier grows Interval after every wait; values <= 1 keep it fixed.
	Multiplier float64
	// MaxInterval caps the grown interval; zero means no cap.
	MaxInterval time.Duration
	// MaxAttempts caps the number of status queries; zero means unlimited.
	MaxAttempts int
	// MaxDuration caps the total polling time; zero means unlimited.
	MaxDuration time.Duration
}

// DefaultPollPolicy polls every second for at most thirty minutes.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    time.Second,
		Multiplier:  1,
		MaxDuration: 30 * time.Minute,
	}
}

func (p PollPolicy) normalized() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxInterval > 0 && p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	return p
}

// next returns the interval that follows d.
func (p PollPolicy) next(d time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return d
	}
	grown := time.Duration(float64(d) * p.Multiplier)
	if p.MaxInterval > 0 && grown > p.MaxInterval {
		return p.MaxInterval
	}
	return grown
}
