package registry

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

var (
	contractAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	validatorAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type fakeCaller struct {
	result  []byte
	err     error
	lastMsg ethereum.CallMsg
}

func (c *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.lastMsg = msg
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

func packBool(t *testing.T, r *ContractRegistry, v bool) []byte {
	t.Helper()
	out, err := r.abi.Methods["isApprovedValidator"].Outputs.Pack(v)
	if err != nil {
		t.Fatalf("pack result: %v", err)
	}
	return out
}

func TestContractRegistry(t *testing.T) {
	for _, approved := range []bool{true, false} {
		caller := &fakeCaller{}
		reg, err := NewContractRegistry(caller, contractAddr)
		if err != nil {
			t.Fatalf("NewContractRegistry: %v", err)
		}
		caller.result = packBool(t, reg, approved)

		got, err := reg.IsApprovedValidator(context.Background(), validatorAddr)
		if err != nil {
			t.Fatalf("IsApprovedValidator: %v", err)
		}
		if got != approved {
			t.Errorf("approved = %v, want %v", got, approved)
		}

		if caller.lastMsg.To == nil || *caller.lastMsg.To != contractAddr {
			t.Errorf("call target = %v, want %s", caller.lastMsg.To, contractAddr.Hex())
		}
		wantInput, err := reg.abi.Pack("isApprovedValidator", validatorAddr)
		if err != nil {
			t.Fatalf("pack expected input: %v", err)
		}
		if !bytes.Equal(caller.lastMsg.Data, wantInput) {
			t.Errorf("call data = %x, want %x", caller.lastMsg.Data, wantInput)
		}
	}
}

func TestContractRegistryErrors(t *testing.T) {
	tests := []struct {
		name    string
		result  []byte
		callErr error
		wantSub string
	}{
		{name: "call failure", callErr: errors.New("connection refused"), wantSub: "connection refused"},
		{name: "empty result", result: []byte{}, wantSub: "no registry at address"},
		{name: "truncated result", result: []byte{0x01}, wantSub: "unpack"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &fakeCaller{result: tt.result, err: tt.callErr}
			reg, err := NewContractRegistry(caller, contractAddr)
			if err != nil {
				t.Fatalf("NewContractRegistry: %v", err)
			}
			_, err = reg.IsApprovedValidator(context.Background(), validatorAddr)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("err = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestStaticRegistry(t *testing.T) {
	reg, err := NewStaticRegistry([]string{
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
	})
	if err != nil {
		t.Fatalf("NewStaticRegistry: %v", err)
	}

	tests := []struct {
		addr string
		want bool
	}{
		{"0x1111111111111111111111111111111111111111", true},
		{"0x2222222222222222222222222222222222222222", true},
		{"0x3333333333333333333333333333333333333333", false},
	}
	for _, tt := range tests {
		got, err := reg.IsApprovedValidator(context.Background(), common.HexToAddress(tt.addr))
		if err != nil {
			t.Fatalf("IsApprovedValidator(%s): %v", tt.addr, err)
		}
		if got != tt.want {
			t.Errorf("IsApprovedValidator(%s) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestStaticRegistryRejectsBadAddress(t *testing.T) {
	if _, err := NewStaticRegistry([]string{"not-an-address"}); err == nil {
		t.Fatal("expected error for invalid address")
	}
}

func TestStaticRegistryEmpty(t *testing.T) {
	reg, err := NewStaticRegistry(nil)
	if err != nil {
		t.Fatalf("NewStaticRegistry: %v", err)
	}
	got, err := reg.IsApprovedValidator(context.Background(), validatorAddr)
	if err != nil {
		t.Fatalf("IsApprovedValidator: %v", err)
	}
	if got {
		t.Error("empty registry approved an address")
	}
}
