package node

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Service is the interface for managed subsystems.
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// ServiceFunc adapts a pair of functions to Service. A nil Stop is a no-op.
type ServiceFunc struct {
	ServiceName string
	StartFn     func(ctx context.Context) error
	StopFn      func() error
}

func (s ServiceFunc) Start(ctx context.Context) error { return s.StartFn(ctx) }

func (s ServiceFunc) Stop() error {
	if s.StopFn == nil {
		return nil
	}
	return s.StopFn()
}

func (s ServiceFunc) Name() string { return s.ServiceName }

// ServiceManager starts services in registration order and stops the
// started ones in reverse.
type ServiceManager struct {
	services []Service
	started  int
	logger   *zap.Logger
}

// NewServiceManager creates a service manager.
func NewServiceManager(logger *zap.Logger) *ServiceManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceManager{logger: logger}
}

// Add appends a service to the manager.
func (sm *ServiceManager) Add(svc Service) {
	sm.services = append(sm.services, svc)
}

// StartAll starts all services in order. On failure the services already
// started are stopped again.
func (sm *ServiceManager) StartAll(ctx context.Context) error {
	for _, svc := range sm.services[sm.started:] {
		sm.logger.Info("starting service", zap.String("name", svc.Name()))
		if err := svc.Start(ctx); err != nil {
			if stopErr := sm.StopAll(); stopErr != nil {
				sm.logger.Error("rollback incomplete", zap.Error(stopErr))
			}
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		sm.started++
	}
	return nil
}

// StopAll stops started services in reverse order and returns the first
// error. Calling it again is a no-op.
func (sm *ServiceManager) StopAll() error {
	var firstErr error
	for ; sm.started > 0; sm.started-- {
		svc := sm.services[sm.started-1]
		sm.logger.Info("stopping service", zap.String("name", svc.Name()))
		if err := svc.Stop(); err != nil {
			sm.logger.Error("failed to stop service",
				zap.String("name", svc.Name()),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("stop %s: %w", svc.Name(), err)
			}
		}
	}
	return firstErr
}

// Services returns the list of managed services.
func (sm *ServiceManager) Services() []Service {
	return sm.services
}
