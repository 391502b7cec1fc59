package chainlink

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

var feedAddr = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")

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

func packRound(t *testing.T, src *FeedSource, answer *big.Int, updatedAt int64) []byte {
	t.Helper()
	out, err := src.abi.Methods["latestRoundData"].Outputs.Pack(
		big.NewInt(42), answer, big.NewInt(updatedAt), big.NewInt(updatedAt), big.NewInt(42),
	)
	if err != nil {
		t.Fatalf("pack round data: %v", err)
	}
	return out
}

func TestQuote(t *testing.T) {
	caller := &fakeCaller{}
	src, err := NewFeedSource(caller, feedAddr, 0)
	if err != nil {
		t.Fatalf("NewFeedSource: %v", err)
	}

	updated := time.Now().Add(-time.Minute).Unix()
	caller.result = packRound(t, src, big.NewInt(250017000000), updated)

	quote, err := src.Quote(context.Background())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.Value != 2500.17 {
		t.Errorf("value = %v, want 2500.17", quote.Value)
	}
	if quote.Source != domain.SourceSecondary {
		t.Errorf("source = %q, want %q", quote.Source, domain.SourceSecondary)
	}
	if got := quote.ObservedAt.Unix(); got != updated {
		t.Errorf("observed at = %d, want %d", got, updated)
	}

	if caller.lastMsg.To == nil || *caller.lastMsg.To != feedAddr {
		t.Errorf("call target = %v, want %s", caller.lastMsg.To, feedAddr.Hex())
	}
	if want := src.abi.Methods["latestRoundData"].ID; !bytes.Equal(caller.lastMsg.Data, want) {
		t.Errorf("call data = %x, want selector %x", caller.lastMsg.Data, want)
	}
}

func TestQuoteStaleRound(t *testing.T) {
	caller := &fakeCaller{}
	src, err := NewFeedSource(caller, feedAddr, 5*time.Minute)
	if err != nil {
		t.Fatalf("NewFeedSource: %v", err)
	}
	caller.result = packRound(t, src, big.NewInt(250000000000), time.Now().Add(-time.Hour).Unix())

	if _, err := src.Quote(context.Background()); !errors.Is(err, domain.ErrStaleQuote) {
		t.Errorf("err = %v, want ErrStaleQuote", err)
	}
}

func TestQuoteStalenessDisabled(t *testing.T) {
	caller := &fakeCaller{}
	src, err := NewFeedSource(caller, feedAddr, 0)
	if err != nil {
		t.Fatalf("NewFeedSource: %v", err)
	}
	caller.result = packRound(t, src, big.NewInt(250000000000), time.Now().Add(-24*time.Hour).Unix())

	quote, err := src.Quote(context.Background())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.Value != 2500 {
		t.Errorf("value = %v, want 2500", quote.Value)
	}
}

func TestQuoteErrors(t *testing.T) {
	tests := []struct {
		name    string
		result  []byte
		callErr error
		answer  *big.Int
		wantSub string
	}{
		{name: "call failure", callErr: errors.New("connection refused"), wantSub: "connection refused"},
		{name: "empty result", result: []byte{}, wantSub: "no aggregator at address"},
		{name: "truncated result", result: []byte{0x01, 0x02}, wantSub: "unpack"},
		{name: "zero answer", answer: big.NewInt(0), wantSub: "non-positive answer"},
		{name: "negative answer", answer: big.NewInt(-1), wantSub: "non-positive answer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &fakeCaller{result: tt.result, err: tt.callErr}
			src, err := NewFeedSource(caller, feedAddr, 0)
			if err != nil {
				t.Fatalf("NewFeedSource: %v", err)
			}
			if tt.answer != nil {
				caller.result = packRound(t, src, tt.answer, time.Now().Unix())
			}
			_, err = src.Quote(context.Background())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("err = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}
