// Package compute derives the opaque profit figure from a batch's parameter
// triple. It is a pure mapping over encrypted handles: no side effects, no
// cleartext, determinism inherited from the arithmetic capability.
package compute

import (
	"errors"
	"fmt"

	"github.com/cipherlend/cipherlend/pkg/batch"
	"github.com/cipherlend/cipherlend/pkg/fhe"
)

// ErrNotInitialized means an uninitialized handle reached execution. Unlike
// submission, which coerces missing handles to zero, execution is strict.
var ErrNotInitialized = errors.New("compute: parameter handle not initialized")

// Engine evaluates profit over the encrypted arithmetic capability.
type Engine struct {
	arith fhe.Arithmetic
}

func NewEngine(arith fhe.Arithmetic) *Engine {
	return &Engine{arith: arith}
}

// Execute computes profit = loanAmount × interestRate − collateralAmount as
// an opaque handle. All three inputs must be initialized.
func (e *Engine) Execute(params batch.LoanParams) (fhe.Handle, error) {
	if !params.Initialized() {
		return nil, ErrNotInitialized
	}

	gross, err := e.arith.Mul(params.LoanAmount, params.InterestRate)
	if err != nil {
		return nil, fmt.Errorf("compute gross: %w", err)
	}
	profit, err := e.arith.Sub(gross, params.CollateralAmount)
	if err != nil {
		return nil, fmt.Errorf("compute profit: %w", err)
	}
	return profit, nil
}
