// Package service defines the lifecycle contract every transport adapter
// implements, and a Manager that starts/stops a set of them in order.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Layer groups services for descriptor ordering/reporting purposes.
type Layer string

const (
	LayerIngress  Layer = "ingress"  // transport adapters (HTTP, ws, wire)
	LayerEngine   Layer = "engine"   // dispatcher, session registry
	LayerData     Layer = "data"     // database manager
	LayerSecurity Layer = "security" // auth, rate limiting
)

// Descriptor summarizes a running service for diagnostics/introspection.
type Descriptor struct {
	Name  string
	Layer Layer
}

// Service is anything with an explicit start/stop lifecycle.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DescriptorProvider is implemented by services that want to contribute a
// Descriptor beyond their bare name.
type DescriptorProvider interface {
	Descriptor() Descriptor
}

// Manager starts a set of attached services in attachment order and stops
// them in reverse order, matching internal/app.Application's Attach/Start/Stop
// contract.
type Manager struct {
	mu       sync.Mutex
	services []Service
	started  []Service // successfully started, in order, for rollback/stop
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Attach registers a service. Safe to call only before Start.
func (m *Manager) Attach(s Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil {
		return fmt.Errorf("service: cannot attach nil service")
	}
	m.services = append(m.services, s)
	return nil
}

// Start starts every attached service in attachment order. If one fails,
// every previously started service is stopped before the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	services := append([]Service(nil), m.services...)
	m.mu.Unlock()

	for _, s := range services {
		if err := s.Start(ctx); err != nil {
			m.rollback(ctx)
			return fmt.Errorf("service %q: start: %w", s.Name(), err)
		}
		m.mu.Lock()
		m.started = append(m.started, s)
		m.mu.Unlock()
	}
	return nil
}

func (m *Manager) rollback(ctx context.Context) {
	m.mu.Lock()
	started := append([]Service(nil), m.started...)
	m.started = nil
	m.mu.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		_ = started[i].Stop(ctx)
	}
}

// Stop stops every started service in reverse order, collecting errors
// rather than stopping short.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	started := append([]Service(nil), m.started...)
	m.started = nil
	m.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		if err := started[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("service %q: stop: %w", started[i].Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("service: %d service(s) failed to stop: %v", len(errs), errs)
	}
	return nil
}

// Descriptors returns a layer-then-name sorted descriptor list for every
// attached service.
func (m *Manager) Descriptors() []Descriptor {
	m.mu.Lock()
	services := append([]Service(nil), m.services...)
	m.mu.Unlock()

	out := make([]Descriptor, 0, len(services))
	for _, s := range services {
		if dp, ok := s.(DescriptorProvider); ok {
			out = append(out, dp.Descriptor())
			continue
		}
		out = append(out, Descriptor{Name: s.Name(), Layer: LayerIngress})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Layer != out[j].Layer {
			return out[i].Layer < out[j].Layer
		}
		return out[i].Name < out[j].Name
	})
	return out
}
