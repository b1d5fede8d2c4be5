package lending

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cipherlend/cipherlend/pkg/fhe/fhetest"
)

// pipelineResult runs the whole submit/execute/deliver pipeline and returns
// the revealed plaintext.
func pipelineResult(t *testing.T, loan, collateral, rate uint64) (uint64, error) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.protocol.AddProvider(ctx, owner, providerA); err != nil {
		return 0, err
	}
	if _, err := f.protocol.OpenBatch(ctx, owner); err != nil {
		return 0, err
	}
	if err := f.protocol.SubmitParams(ctx, providerA,
		f.scheme.Encrypt(loan), f.scheme.Encrypt(collateral), f.scheme.Encrypt(rate)); err != nil {
		return 0, err
	}
	req, err := f.protocol.ExecuteAndRequestDecryption(ctx, providerA)
	if err != nil {
		return 0, err
	}
	if err := f.oracle.DeliverAll(ctx); err != nil {
		return 0, err
	}
	got, err := f.protocol.Request(ctx, req.ID)
	if err != nil {
		return 0, err
	}
	return got.Plaintext, nil
}

func TestProfitFormulaProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("revealed profit is loan × rate − collateral mod the plaintext modulus",
		prop.ForAll(func(loan, collateral, rate uint64) bool {
			got, err := pipelineResult(t, loan, collateral, rate)
			if err != nil {
				return false
			}
			m := uint64(fhetest.Modulus)
			want := ((loan%m)*(rate%m)%m + m - collateral%m) % m
			return got == want
		},
			gen.UInt64Range(0, fhetest.Modulus-1),
			gen.UInt64Range(0, fhetest.Modulus-1),
			gen.UInt64Range(0, fhetest.Modulus-1),
		))

	properties.Property("repeat deliveries reveal exactly once",
		prop.ForAll(func(loan, collateral, rate uint64, extra uint8) bool {
			f := newFixture(t)
			ctx := context.Background()

			if err := f.protocol.AddProvider(ctx, owner, providerA); err != nil {
				return false
			}
			if _, err := f.protocol.OpenBatch(ctx, owner); err != nil {
				return false
			}
			if err := f.protocol.SubmitParams(ctx, providerA,
				f.scheme.Encrypt(loan), f.scheme.Encrypt(collateral), f.scheme.Encrypt(rate)); err != nil {
				return false
			}
			req, err := f.protocol.ExecuteAndRequestDecryption(ctx, providerA)
			if err != nil {
				return false
			}

			successes := 0
			for i := 0; i <= int(extra%4)+1; i++ {
				if f.oracle.Deliver(ctx, req.ID) == nil {
					successes++
				}
			}
			return successes == 1
		},
			gen.UInt64Range(0, fhetest.Modulus-1),
			gen.UInt64Range(0, fhetest.Modulus-1),
			gen.UInt64Range(0, fhetest.Modulus-1),
			gen.UInt8(),
		))

	properties.TestingRun(t)
}
