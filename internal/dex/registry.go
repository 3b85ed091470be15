package dex

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/flashexec/flashexec/internal/errors"
)

// Default venue names the adapter resolves when a swap does not name one.
const (
	VenueConstantProduct = "swap-v2"
	VenueConcentrated    = "swap-v3"
)

// VenueRegistry maps venue names to contract addresses. Writes are
// admin-gated; reads resolve at call time so an admin rebind takes effect on
// the next execution.
type VenueRegistry struct {
	admin  common.Address
	venues map[string]common.Address
}

func NewVenueRegistry(admin common.Address) *VenueRegistry {
	return &VenueRegistry{
		admin:  admin,
		venues: make(map[string]common.Address),
	}
}

func normalizeVenueName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Set binds name to addr. Only the admin may write; binding the zero address
// removes the entry.
func (r *VenueRegistry) Set(caller common.Address, name string, addr common.Address) error {
	if caller != r.admin {
		return clierr.New(clierr.CodeAuth, "only the admin can update the venue registry")
	}
	name = normalizeVenueName(name)
	if name == "" {
		return clierr.New(clierr.CodeValidation, "venue name must not be empty")
	}
	if addr == (common.Address{}) {
		delete(r.venues, name)
		return nil
	}
	r.venues[name] = addr
	return nil
}

// Resolve returns the address bound to name.
func (r *VenueRegistry) Resolve(name string) (common.Address, error) {
	addr, ok := r.venues[normalizeVenueName(name)]
	if !ok {
		return common.Address{}, clierr.Newf(clierr.CodeNotFound, "unknown venue %q", name)
	}
	return addr, nil
}

// Names returns the registered venue names in sorted order.
func (r *VenueRegistry) Names() []string {
	names := make([]string, 0, len(r.venues))
	for name := range r.venues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
