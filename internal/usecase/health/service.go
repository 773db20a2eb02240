// Package health aggregates readiness checks over the engine's
// collaborators.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/veltra/findex/internal/domain"
)

const checkTimeout = 5 * time.Second

// Pinger checks one collaborator's availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the readiness report for one dependency.
type Status struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Report is the aggregate readiness outcome.
type Report struct {
	OK     bool     `json:"ok"`
	Checks []Status `json:"checks"`
}

type check struct {
	name string
	run  func(ctx context.Context) error
}

// Service runs all registered checks concurrently.
type Service struct {
	checks []check
}

// New creates an empty health service.
func New() *Service {
	return &Service{}
}

// AddPinger registers a collaborator exposing Ping.
func (s *Service) AddPinger(name string, p Pinger) {
	s.checks = append(s.checks, check{name: name, run: p.Ping})
}

// AddHealthChecker registers an embedding provider.
func (s *Service) AddHealthChecker(name string, h domain.HealthChecker) {
	s.checks = append(s.checks, check{name: name, run: h.HealthCheck})
}

// Check runs every registered probe concurrently and reports per-dependency
// status. Statuses come back in registration order.
func (s *Service) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	report := Report{OK: true, Checks: make([]Status, len(s.checks))}

	var wg sync.WaitGroup
	for i, c := range s.checks {
		wg.Add(1)
		go func(i int, c check) {
			defer wg.Done()
			status := Status{Name: c.name, OK: true}
			if err := c.run(ctx); err != nil {
				status.OK = false
				status.Error = err.Error()
			}
			report.Checks[i] = status
		}(i, c)
	}
	wg.Wait()

	for _, st := range report.Checks {
		if !st.OK {
			report.OK = false
			break
		}
	}
	return report
}
