package validator_test

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/validator"
)

func baseAttestation() domain.Attestation {
	return domain.Attestation{
		ID:                uuid.MustParse("5cbdfd9b-69a1-4b33-8a35-a2f055e3a23b"),
		PositionID:        common.HexToHash("0xdeadbeef"),
		Owner:             common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Action:            domain.ActionRestake,
		Timestamp:         time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		PriceAtValidation: 2500,
		ValidatorAddress:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
}

func TestAttestationDigestDeterministic(t *testing.T) {
	a := baseAttestation()
	b := baseAttestation()
	if !bytes.Equal(validator.AttestationDigest(a), validator.AttestationDigest(b)) {
		t.Error("identical attestations produced different digests")
	}
	if len(validator.AttestationDigest(a)) != 32 {
		t.Error("digest must be 32 bytes")
	}
}

// Every signed field must influence the digest; unsigned fields must not.
func TestAttestationDigestFieldSensitivity(t *testing.T) {
	base := validator.AttestationDigest(baseAttestation())

	mutations := []struct {
		name   string
		mutate func(*domain.Attestation)
		signed bool
	}{
		{"position id", func(a *domain.Attestation) { a.PositionID = common.HexToHash("0x02") }, true},
		{"owner", func(a *domain.Attestation) { a.Owner = common.HexToAddress("0x3333") }, true},
		{"action", func(a *domain.Attestation) { a.Action = domain.ActionReturnToPool }, true},
		{"timestamp", func(a *domain.Attestation) { a.Timestamp = a.Timestamp.Add(time.Second) }, true},
		{"price", func(a *domain.Attestation) { a.PriceAtValidation = 2500.0001 }, true},
		{"attestation id", func(a *domain.Attestation) { a.ID = uuid.New() }, false},
		{"validator address", func(a *domain.Attestation) { a.ValidatorAddress = common.HexToAddress("0x4444") }, false},
		{"external payload", func(a *domain.Attestation) { a.ExternalValidation = []byte(`{"ok":true}`) }, false},
	}
	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			att := baseAttestation()
			m.mutate(&att)
			changed := !bytes.Equal(base, validator.AttestationDigest(att))
			if changed != m.signed {
				t.Errorf("mutating %s: digest changed = %v, want %v", m.name, changed, m.signed)
			}
		})
	}
}

// Sub-second drift, as introduced by storage round-trips, must not change
// the digest: only whole Unix seconds are encoded.
func TestAttestationDigestSubSecondStable(t *testing.T) {
	a := baseAttestation()
	b := baseAttestation()
	b.Timestamp = b.Timestamp.Add(430 * time.Millisecond)
	if !bytes.Equal(validator.AttestationDigest(a), validator.AttestationDigest(b)) {
		t.Error("sub-second timestamp drift changed the digest")
	}
}

func TestScalePrice(t *testing.T) {
	tests := []struct {
		price float64
		want  string
	}{
		{2500, "2500000000000000000000"},
		{1, "1000000000000000000"},
		{0.5, "500000000000000000"},
		{2500.37, "2500370000000000000000"},
		{0, "0"},
	}
	for _, tt := range tests {
		got := validator.ScalePrice(tt.price)
		want, ok := new(big.Int).SetString(tt.want, 10)
		if !ok {
			t.Fatalf("bad want literal %q", tt.want)
		}
		if got.Cmp(want) != 0 {
			t.Errorf("ScalePrice(%v) = %s, want %s", tt.price, got, want)
		}
	}
}

// The prefixed signing hash must differ from the raw digest and stay
// deterministic.
func TestSigningHash(t *testing.T) {
	a := baseAttestation()
	digest := validator.AttestationDigest(a)
	hash := validator.SigningHash(a)
	if bytes.Equal(digest, hash) {
		t.Error("signing hash must apply the personal-message prefix")
	}
	if !bytes.Equal(hash, validator.SigningHash(baseAttestation())) {
		t.Error("signing hash not deterministic")
	}
}
