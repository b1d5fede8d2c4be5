package decrypt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cipherlend/cipherlend/pkg/batch"
	"github.com/cipherlend/cipherlend/pkg/compute"
	"github.com/cipherlend/cipherlend/pkg/fhe/fhetest"
	"github.com/cipherlend/cipherlend/pkg/oracle"
)

type coordFixture struct {
	coord  *Coordinator
	oracle *oracle.Local
	scheme *fhetest.Scheme
	signer *oracle.Signer
}

func newCoordFixture(t *testing.T) *coordFixture {
	t.Helper()
	scheme := fhetest.New()
	signer, err := oracle.NewSigner()
	require.NoError(t, err)
	svc := oracle.NewLocal(scheme, signer)
	engine := compute.NewEngine(scheme)
	coord := NewCoordinator("coordinator-test", engine, svc, oracle.NewProofVerifier(signer.PublicKey()), NewMemoryStore()).
		WithClock(func() time.Time { return time.Unix(1700000000, 0).UTC() })
	svc.SetCallback(func(ctx context.Context, requestID string, cleartext []byte, proof string) error {
		_, err := coord.OnDecryptionCallback(ctx, requestID, cleartext, proof)
		return err
	})
	return &coordFixture{coord: coord, oracle: svc, scheme: scheme, signer: signer}
}

func (f *coordFixture) params(loan, collateral, rate uint64) batch.LoanParams {
	return batch.LoanParams{
		LoanAmount:       f.scheme.Encrypt(loan),
		CollateralAmount: f.scheme.Encrypt(collateral),
		InterestRate:     f.scheme.Encrypt(rate),
	}
}

func TestExecuteAndDeliver(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	req, err := f.coord.ExecuteAndRequestDecryption(ctx, 1, f.params(100, 50, 2))
	require.NoError(t, err)
	require.False(t, req.Processed)
	require.NotEmpty(t, req.StateHash)

	profit, ok := f.coord.ProfitResult(1)
	require.True(t, ok)
	require.Equal(t, uint64(150), profit.(*fhetest.Handle).Value)

	require.NoError(t, f.oracle.Deliver(ctx, req.ID))

	got, err := f.coord.Request(ctx, req.ID)
	require.NoError(t, err)
	require.True(t, got.Processed)
	require.Equal(t, uint64(150), got.Plaintext)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), got.ProcessedAt)
}

func TestDuplicateDeliveryIsReplay(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	req, err := f.coord.ExecuteAndRequestDecryption(ctx, 1, f.params(100, 50, 2))
	require.NoError(t, err)

	require.NoError(t, f.oracle.Deliver(ctx, req.ID))
	require.ErrorIs(t, f.oracle.Deliver(ctx, req.ID), ErrReplayAttempt)

	// the first delivery's result is untouched
	got, err := f.coord.Request(ctx, req.ID)
	require.NoError(t, err)
	require.True(t, got.Processed)
	require.Equal(t, uint64(150), got.Plaintext)
}

func TestStaleRequestFailsStateMismatch(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	first, err := f.coord.ExecuteAndRequestDecryption(ctx, 1, f.params(100, 50, 2))
	require.NoError(t, err)

	// re-execution replaces the stored profit, invalidating the first request
	second, err := f.coord.ExecuteAndRequestDecryption(ctx, 1, f.params(100, 50, 2))
	require.NoError(t, err)
	require.NotEqual(t, first.StateHash, second.StateHash)

	require.ErrorIs(t, f.oracle.Deliver(ctx, first.ID), ErrStateMismatch)

	// the fresh request still completes
	require.NoError(t, f.oracle.Deliver(ctx, second.ID))
	got, err := f.coord.Request(ctx, second.ID)
	require.NoError(t, err)
	require.True(t, got.Processed)
}

func TestInvalidProofThenValidProof(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	req, err := f.coord.ExecuteAndRequestDecryption(ctx, 1, f.params(100, 50, 2))
	require.NoError(t, err)

	cleartext := []byte{0, 0, 0, 0, 0, 0, 0, 150}
	_, err = f.coord.OnDecryptionCallback(ctx, req.ID, cleartext, "forged-proof")
	require.ErrorIs(t, err, ErrInvalidProof)

	// a failed proof check does not consume the request
	require.NoError(t, f.oracle.Deliver(ctx, req.ID))
	got, err := f.coord.Request(ctx, req.ID)
	require.NoError(t, err)
	require.True(t, got.Processed)
	require.Equal(t, uint64(150), got.Plaintext)
}

func TestCallbackUnknownRequest(t *testing.T) {
	f := newCoordFixture(t)
	_, err := f.coord.OnDecryptionCallback(context.Background(), "never-issued", nil, "")
	require.ErrorIs(t, err, ErrUnknownRequest)
}

func TestExecuteRejectsUninitializedParams(t *testing.T) {
	f := newCoordFixture(t)
	_, err := f.coord.ExecuteAndRequestDecryption(context.Background(), 1, batch.LoanParams{})
	require.ErrorIs(t, err, compute.ErrNotInitialized)
}

func TestCallbackRejectsMalformedCleartext(t *testing.T) {
	f := newCoordFixture(t)
	ctx := context.Background()

	req, err := f.coord.ExecuteAndRequestDecryption(ctx, 1, f.params(1, 0, 1))
	require.NoError(t, err)

	// authentic proof over truncated cleartext: the proof check passes but
	// decoding must fail, and the request stays unprocessed
	short := []byte{1, 2, 3}
	proof, err := f.signer.Mint(req.ID, short)
	require.NoError(t, err)
	_, err = f.coord.OnDecryptionCallback(ctx, req.ID, short, proof)
	require.Error(t, err)

	got, err := f.coord.Request(ctx, req.ID)
	require.NoError(t, err)
	require.False(t, got.Processed)
}
