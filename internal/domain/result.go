package domain

import "github.com/ethereum/go-ethereum/common"

// ValidationResult is the outcome of a single validation step. Steps
// compose by short-circuiting: the first failing step's result is
// surfaced verbatim and later steps never run.
type ValidationResult struct {
	Success bool
	Reason  string         // human-readable, set on failure
	Details map[string]any // structured diagnostics, set on failure
}

// OK returns a passing result.
func OK() ValidationResult {
	return ValidationResult{Success: true}
}

// Fail returns a failing result with a reason and structured details
// identifying exactly what failed.
func Fail(reason string, details map[string]any) ValidationResult {
	return ValidationResult{Reason: reason, Details: details}
}

// MovementResult is the caller-safe outcome of a position movement
// validation. Attestation is set only when Success is true.
type MovementResult struct {
	ValidationResult
	Attestation *Attestation
}

// PriceCheckResult reports a standalone two-source price check along with
// the arithmetic mean of the observations.
type PriceCheckResult struct {
	ValidationResult
	PrimaryPrice   float64
	SecondaryPrice float64
	AveragePrice   float64
}

// VerificationResult is the verdict on a stored attestation. Signer is
// the recovered address when recovery succeeded, regardless of whether it
// turned out to be approved.
type VerificationResult struct {
	Valid  bool
	Signer *common.Address
	Reason string
}
