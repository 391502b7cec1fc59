// Package registry answers whether a recovered signer is an approved
// validator, either from an on-chain registry contract or from a static
// allow-list in config.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

const registryABI = `[{"inputs":[{"internalType":"address","name":"validator","type":"address"}],"name":"isApprovedValidator","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"}]`

const defaultCallTimeout = 10 * time.Second

// ContractRegistry consults a registry contract per lookup.
type ContractRegistry struct {
	caller      ethereum.ContractCaller
	contract    common.Address
	callTimeout time.Duration
	abi         abi.ABI
}

var _ domain.ValidatorRegistry = (*ContractRegistry)(nil)

// NewContractRegistry creates a ContractRegistry backed by the registry
// contract at the given address.
func NewContractRegistry(caller ethereum.ContractCaller, contract common.Address) (*ContractRegistry, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("registry: parse ABI: %w", err)
	}
	return &ContractRegistry{
		caller:      caller,
		contract:    contract,
		callTimeout: defaultCallTimeout,
		abi:         parsed,
	}, nil
}

// IsApprovedValidator implements domain.ValidatorRegistry.
func (r *ContractRegistry) IsApprovedValidator(ctx context.Context, addr common.Address) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	input, err := r.abi.Pack("isApprovedValidator", addr)
	if err != nil {
		return false, fmt.Errorf("registry: pack call: %w", err)
	}

	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: input}, nil)
	if err != nil {
		return false, fmt.Errorf("registry: call %s: %w", r.contract.Hex(), err)
	}
	if len(raw) == 0 {
		return false, fmt.Errorf("registry: empty result from %s, no registry at address?", r.contract.Hex())
	}

	outs, err := r.abi.Unpack("isApprovedValidator", raw)
	if err != nil {
		return false, fmt.Errorf("registry: unpack result: %w", err)
	}
	approved, ok := outs[0].(bool)
	if !ok {
		return false, fmt.Errorf("registry: unexpected result type %T", outs[0])
	}
	return approved, nil
}

// StaticRegistry approves a fixed set of addresses. It backs deployments
// that have no registry contract and the offline check mode.
type StaticRegistry struct {
	approved map[common.Address]struct{}
}

var _ domain.ValidatorRegistry = (*StaticRegistry)(nil)

// NewStaticRegistry builds a StaticRegistry from hex addresses, typically
// straight from config.
func NewStaticRegistry(addrs []string) (*StaticRegistry, error) {
	approved := make(map[common.Address]struct{}, len(addrs))
	for _, a := range addrs {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("registry: invalid validator address %q", a)
		}
		approved[common.HexToAddress(a)] = struct{}{}
	}
	return &StaticRegistry{approved: approved}, nil
}

// IsApprovedValidator implements domain.ValidatorRegistry. It never
// returns an error.
func (r *StaticRegistry) IsApprovedValidator(_ context.Context, addr common.Address) (bool, error) {
	_, ok := r.approved[addr]
	return ok, nil
}
