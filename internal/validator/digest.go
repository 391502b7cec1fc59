package validator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

// DomainTag prefixes every attestation digest so signatures cannot be
// replayed across schemes. Changing it invalidates every previously
// signed attestation.
const DomainTag = "restake-attestation-v1"

// priceDecimals is the fixed-point precision of the price field in the
// signed payload.
const priceDecimals = 18

// AttestationDigest computes the canonical keccak-256 digest of an
// attestation's signed fields. The packed field order is fixed:
//
//	domain tag (raw string bytes)
//	position id (32 bytes)
//	owner (20-byte address)
//	action (raw string bytes)
//	timestamp in Unix seconds (uint256, 32 bytes)
//	price scaled to 18 decimals (uint256, 32 bytes)
//
// Both signing and verification run through this one function. The two
// encodings must never diverge: a mismatch does not raise an error, it
// silently recovers the wrong address.
func AttestationDigest(att domain.Attestation) []byte {
	return ethcrypto.Keccak256(concatBytes(
		[]byte(DomainTag),
		att.PositionID.Bytes(),
		att.Owner.Bytes(),
		[]byte(att.Action),
		bigIntTo32Bytes(big.NewInt(att.Timestamp.Unix())),
		bigIntTo32Bytes(ScalePrice(att.PriceAtValidation)),
	))
}

// SigningHash applies the Ethereum personal-message prefix to the
// canonical digest. This is the hash that is actually signed and that
// addresses are recovered against.
func SigningHash(att domain.Attestation) []byte {
	return accounts.TextHash(AttestationDigest(att))
}

// ScalePrice converts a price into its 18-decimal fixed-point integer
// representation. Decimal arithmetic keeps the scaling exact for any
// float64 input, so the digest is reproducible from stored fields.
func ScalePrice(price float64) *big.Int {
	return decimal.NewFromFloat(price).Shift(priceDecimals).BigInt()
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
