package health

import (
	"context"
	"time"
)

// Statuses reported for individual checks and the aggregate.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes a single dependency. A nil return marks it healthy.
type CheckFunc func(ctx context.Context) error

// Check is the recorded outcome of one dependency probe.
type Check struct {
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	Message      string  `json:"message,omitempty"`
	ResponseTime float64 `json:"response_time_ms"`
}

// Report is the aggregate health of one service.
type Report struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

type probe struct {
	name     string
	critical bool
	fn       CheckFunc
}

// Checker runs registered dependency probes for one service. A failing
// critical probe makes the service unhealthy; a failing optional probe
// only degrades it.
type Checker struct {
	service string
	timeout time.Duration
	probes  []probe
}

// NewChecker creates a checker reporting under the given service name.
func NewChecker(service string) *Checker {
	return &Checker{service: service, timeout: 5 * time.Second}
}

// AddCheck registers a critical dependency probe.
func (c *Checker) AddCheck(name string, fn CheckFunc) {
	c.probes = append(c.probes, probe{name: name, critical: true, fn: fn})
}

// AddOptionalCheck registers a probe whose failure degrades the service
// instead of marking it unhealthy.
func (c *Checker) AddOptionalCheck(name string, fn CheckFunc) {
	c.probes = append(c.probes, probe{name: name, critical: false, fn: fn})
}

// Service returns the name the checker reports under.
func (c *Checker) Service() string { return c.service }

// Run probes every dependency and aggregates the results.
func (c *Checker) Run(ctx context.Context) Report {
	report := Report{
		Service:   c.service,
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make([]Check, 0, len(c.probes)),
	}

	for _, p := range c.probes {
		result := c.runProbe(ctx, p)
		report.Checks = append(report.Checks, result)

		if result.Status != StatusUnhealthy {
			continue
		}
		if p.critical {
			report.Status = StatusUnhealthy
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	return report
}

// Ready probes only the critical dependencies and returns the names of
// those that failed.
func (c *Checker) Ready(ctx context.Context) []string {
	var failing []string
	for _, p := range c.probes {
		if !p.critical {
			continue
		}
		if result := c.runProbe(ctx, p); result.Status == StatusUnhealthy {
			failing = append(failing, p.name)
		}
	}
	return failing
}

func (c *Checker) runProbe(ctx context.Context, p probe) Check {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := p.fn(probeCtx)
	elapsed := time.Since(start).Seconds() * 1000

	if err != nil {
		return Check{Name: p.name, Status: StatusUnhealthy, Message: err.Error(), ResponseTime: elapsed}
	}
	return Check{Name: p.name, Status: StatusHealthy, ResponseTime: elapsed}
}
