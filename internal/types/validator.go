package types

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
)

// Validator is a registry record: the identity plus the three inputs of
// hybrid voting power.
type Validator struct {
	Address   Address `json:"address"`
	PublicKey []byte  `json:"public_key"`

	// Stake is the bonded amount in base units.
	Stake uint64 `json:"stake"`
	// StorageProvided is the pledged storage capacity in bytes.
	StorageProvided uint64 `json:"storage_provided"`
	// Reputation is an additive score; it contributes Reputation/1000 power.
	Reputation uint64 `json:"reputation"`

	Active bool `json:"active"`
}

// Validate checks the record for structural validity.
func (v *Validator) Validate() error {
	if v.Address.IsZero() {
		return errors.New("validator address must not be zero")
	}
	if len(v.PublicKey) == 0 {
		return fmt.Errorf("validator %s: public key required", v.Address.Short())
	}
	return nil
}

// SortByAddress orders validators lexicographically by address. It is the
// canonical order used wherever ties need breaking.
func SortByAddress(vals []Validator) {
	sort.SliceStable(vals, func(i, j int) bool {
		return bytes.Compare(vals[i].Address[:], vals[j].Address[:]) < 0
	})
}

// FindByAddress looks up a validator by address.
func FindByAddress(vals []Validator, addr Address) (Validator, bool) {
	for _, v := range vals {
		if v.Address == addr {
			return v, true
		}
	}
	return Validator{}, false
}
