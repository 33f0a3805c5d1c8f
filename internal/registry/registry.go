// Package registry keeps the validator roster the consensus engine reads
// its active set from.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/echenim/Bedrock/hybrid/internal/types"
)

var (
	ErrDuplicateValidator = errors.New("registry: validator already registered")
	ErrUnknownValidator   = errors.New("registry: unknown validator")
)

// Manager is an in-memory validator registry. It is safe for concurrent
// use; the consensus engine only reads from it. Validators keep their
// registration order.
type Manager struct {
	mu    sync.RWMutex
	order []types.Address
	byID  map[types.Address]types.Validator
}

// New creates a Manager holding vals. Every validator must be valid and
// have a distinct address.
func New(vals []types.Validator) (*Manager, error) {
	m := &Manager{byID: make(map[types.Address]types.Validator, len(vals))}
	for _, v := range vals {
		if err := m.Add(v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add registers a new validator.
func (m *Manager) Add(v types.Validator) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[v.Address]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateValidator, v.Address.Short())
	}
	m.byID[v.Address] = cloneValidator(v)
	m.order = append(m.order, v.Address)
	return nil
}

// Update replaces the stake, storage and reputation of a registered
// validator. Address and public key are immutable.
func (m *Manager) Update(addr types.Address, stake, storage, reputation uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.byID[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownValidator, addr.Short())
	}
	v.Stake = stake
	v.StorageProvided = storage
	v.Reputation = reputation
	m.byID[addr] = v
	return nil
}

// SetActive toggles whether a validator is part of the active set.
func (m *Manager) SetActive(addr types.Address, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.byID[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownValidator, addr.Short())
	}
	v.Active = active
	m.byID[addr] = v
	return nil
}

// Remove deletes a validator from the registry.
func (m *Manager) Remove(addr types.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[addr]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownValidator, addr.Short())
	}
	delete(m.byID, addr)
	for i, a := range m.order {
		if a == addr {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// ActiveValidators returns a snapshot of the active validators in
// registration order.
func (m *Manager) ActiveValidators() []types.Validator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Validator, 0, len(m.order))
	for _, a := range m.order {
		if v := m.byID[a]; v.Active {
			out = append(out, cloneValidator(v))
		}
	}
	return out
}

// All returns every registered validator, active or not.
func (m *Manager) All() []types.Validator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Validator, 0, len(m.order))
	for _, a := range m.order {
		out = append(out, cloneValidator(m.byID[a]))
	}
	return out
}

// Validator looks up a validator by address.
func (m *Manager) Validator(addr types.Address) (types.Validator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.byID[addr]
	if !ok {
		return types.Validator{}, false
	}
	return cloneValidator(v), true
}

// Size returns the number of registered validators.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func cloneValidator(v types.Validator) types.Validator {
	v.PublicKey = append([]byte(nil), v.PublicKey...)
	return v
}
