// Package chainlink reads the secondary price from a Chainlink-style
// on-chain aggregator.
package chainlink

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

// aggregatorABI covers the single read this source needs.
const aggregatorABI = `[{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}]`

// answerDecimals is the aggregator's fixed answer scaling: the reported
// price is answer / 10^8.
const answerDecimals = 8

const defaultCallTimeout = 10 * time.Second

// FeedSource quotes the latest round of one aggregator contract.
type FeedSource struct {
	caller      ethereum.ContractCaller
	feed        common.Address
	maxAge      time.Duration // 0 disables the staleness guard
	callTimeout time.Duration
	abi         abi.ABI
}

var _ domain.PriceSource = (*FeedSource)(nil)

// NewFeedSource creates a FeedSource reading from the aggregator at feed
// through the given caller (an ethclient.Client in production). maxAge
// rejects rounds whose updatedAt is older; zero disables the check.
func NewFeedSource(caller ethereum.ContractCaller, feed common.Address, maxAge time.Duration) (*FeedSource, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("chainlink: parse aggregator ABI: %w", err)
	}
	return &FeedSource{
		caller:      caller,
		feed:        feed,
		maxAge:      maxAge,
		callTimeout: defaultCallTimeout,
		abi:         parsed,
	}, nil
}

// Quote implements domain.PriceSource by calling latestRoundData and
// scaling the answer down by 10^8.
func (s *FeedSource) Quote(ctx context.Context) (domain.PriceQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	input, err := s.abi.Pack("latestRoundData")
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("chainlink: pack call: %w", err)
	}

	raw, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &s.feed, Data: input}, nil)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("chainlink: call %s: %w", s.feed.Hex(), err)
	}
	if len(raw) == 0 {
		return domain.PriceQuote{}, fmt.Errorf("chainlink: empty result from %s, no aggregator at address?", s.feed.Hex())
	}

	outs, err := s.abi.Unpack("latestRoundData", raw)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("chainlink: unpack round data: %w", err)
	}

	answer, ok := outs[1].(*big.Int)
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("chainlink: unexpected answer type %T", outs[1])
	}
	updatedAt, ok := outs[3].(*big.Int)
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("chainlink: unexpected updatedAt type %T", outs[3])
	}

	if answer.Sign() <= 0 {
		return domain.PriceQuote{}, fmt.Errorf("chainlink: non-positive answer %s", answer)
	}

	observed := time.Unix(updatedAt.Int64(), 0).UTC()
	if s.maxAge > 0 {
		if age := time.Since(observed); age > s.maxAge {
			return domain.PriceQuote{}, fmt.Errorf("chainlink: round updated %s ago: %w", age.Round(time.Second), domain.ErrStaleQuote)
		}
	}

	return domain.PriceQuote{
		Value:      decimal.NewFromBigInt(answer, -answerDecimals).InexactFloat64(),
		Source:     domain.SourceSecondary,
		ObservedAt: observed,
	}, nil
}
