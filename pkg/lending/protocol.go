// Package lending composes the protocol: role table and pause flag wrap
// every entry point, the cooldown gate bounds provider call rates, the batch
// ledger holds encrypted submissions, and the decryption coordinator drives
// the request/callback state machine. This is the single mutating surface;
// callers never touch the components directly.
package lending

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cipherlend/cipherlend/pkg/access"
	"github.com/cipherlend/cipherlend/pkg/batch"
	"github.com/cipherlend/cipherlend/pkg/compute"
	"github.com/cipherlend/cipherlend/pkg/cooldown"
	"github.com/cipherlend/cipherlend/pkg/decrypt"
	"github.com/cipherlend/cipherlend/pkg/events"
	"github.com/cipherlend/cipherlend/pkg/fhe"
	"github.com/cipherlend/cipherlend/pkg/observability"
	"github.com/cipherlend/cipherlend/pkg/oracle"
)

// Options wires a Protocol. Oracle, Verifier, and Arithmetic are required;
// nil stores default to in-memory implementations.
type Options struct {
	Owner    string
	Identity string // this deployment's identity, bound into commitments

	Arithmetic fhe.Arithmetic
	Oracle     oracle.Service
	Verifier   oracle.Verifier

	RequestStore    decrypt.Store
	CooldownStore   cooldown.Store
	CooldownSeconds uint64

	Logger    *slog.Logger
	Telemetry *observability.Provider
}

// Protocol is the coordinator facade. All mutating operations run under one
// mutex, matching the serialized execution model the components assume.
type Protocol struct {
	mu     sync.Mutex
	acl    *access.Controller
	gate   *cooldown.Gate
	ledger *batch.Ledger
	coord  *decrypt.Coordinator
	log    *events.Log
	logger *slog.Logger
	tel    *observability.Provider
}

// New builds a Protocol from Options.
func New(opts Options) (*Protocol, error) {
	acl, err := access.NewController(opts.Owner)
	if err != nil {
		return nil, err
	}

	if opts.CooldownStore == nil {
		opts.CooldownStore = cooldown.NewMemoryStore()
	}
	if opts.CooldownSeconds == 0 {
		opts.CooldownSeconds = 60
	}
	gate, err := cooldown.NewGate(opts.CooldownStore, opts.CooldownSeconds)
	if err != nil {
		return nil, err
	}

	if opts.RequestStore == nil {
		opts.RequestStore = decrypt.NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	engine := compute.NewEngine(opts.Arithmetic)
	return &Protocol{
		acl:    acl,
		gate:   gate,
		ledger: batch.NewLedger(opts.Arithmetic),
		coord:  decrypt.NewCoordinator(opts.Identity, engine, opts.Oracle, opts.Verifier, opts.RequestStore),
		log:    events.NewLog(),
		logger: opts.Logger,
		tel:    opts.Telemetry,
	}, nil
}

/* Administrative surface (owner only) */

// TransferOwnership reassigns the owner.
func (p *Protocol) TransferOwnership(ctx context.Context, caller, newOwner string) error {
	return p.run(ctx, "transfer_ownership", func() error {
		if err := p.acl.RequireOwner(caller); err != nil {
			return err
		}
		if err := p.acl.RequireActive(); err != nil {
			return err
		}
		if err := p.acl.TransferOwnership(caller, newOwner); err != nil {
			return err
		}
		p.emit(events.TypeOwnershipTransferred, map[string]interface{}{
			"previous_owner": caller,
			"new_owner":      newOwner,
		})
		return nil
	})
}

// AddProvider grants the provider role; idempotent.
func (p *Protocol) AddProvider(ctx context.Context, caller, provider string) error {
	return p.run(ctx, "add_provider", func() error {
		if err := p.acl.RequireOwner(caller); err != nil {
			return err
		}
		if err := p.acl.RequireActive(); err != nil {
			return err
		}
		if err := p.acl.AddProvider(caller, provider); err != nil {
			return err
		}
		p.emit(events.TypeProviderAdded, map[string]interface{}{"provider": provider})
		return nil
	})
}

// RemoveProvider revokes the provider role; idempotent.
func (p *Protocol) RemoveProvider(ctx context.Context, caller, provider string) error {
	return p.run(ctx, "remove_provider", func() error {
		if err := p.acl.RequireOwner(caller); err != nil {
			return err
		}
		if err := p.acl.RequireActive(); err != nil {
			return err
		}
		if err := p.acl.RemoveProvider(caller, provider); err != nil {
			return err
		}
		p.emit(events.TypeProviderRemoved, map[string]interface{}{"provider": provider})
		return nil
	})
}

// SetPaused toggles the pause flag. Exempt from the pause gate so a paused
// protocol can be resumed.
func (p *Protocol) SetPaused(ctx context.Context, caller string, paused bool) error {
	return p.run(ctx, "set_paused", func() error {
		if err := p.acl.SetPaused(caller, paused); err != nil {
			return err
		}
		p.emit(events.TypePauseSet, map[string]interface{}{"paused": paused})
		return nil
	})
}

// SetCooldownSeconds updates the shared cooldown interval.
func (p *Protocol) SetCooldownSeconds(ctx context.Context, caller string, seconds uint64) error {
	return p.run(ctx, "set_cooldown", func() error {
		if err := p.acl.RequireOwner(caller); err != nil {
			return err
		}
		if err := p.acl.RequireActive(); err != nil {
			return err
		}
		if err := p.gate.SetSeconds(seconds); err != nil {
			return err
		}
		p.emit(events.TypeCooldownUpdated, map[string]interface{}{"seconds": seconds})
		return nil
	})
}

// OpenBatch starts the next submission window.
func (p *Protocol) OpenBatch(ctx context.Context, caller string) (uint64, error) {
	var id uint64
	err := p.run(ctx, "open_batch", func() error {
		if err := p.acl.RequireOwner(caller); err != nil {
			return err
		}
		if err := p.acl.RequireActive(); err != nil {
			return err
		}
		var err error
		if id, err = p.ledger.Open(); err != nil {
			return err
		}
		p.emit(events.TypeBatchOpened, map[string]interface{}{"batch_id": id})
		return nil
	})
	return id, err
}

// CloseBatch ends the submission window; the batch id stays current for
// execution and result retrieval.
func (p *Protocol) CloseBatch(ctx context.Context, caller string) (uint64, error) {
	var id uint64
	err := p.run(ctx, "close_batch", func() error {
		if err := p.acl.RequireOwner(caller); err != nil {
			return err
		}
		if err := p.acl.RequireActive(); err != nil {
			return err
		}
		var err error
		if id, err = p.ledger.Close(); err != nil {
			return err
		}
		p.emit(events.TypeBatchClosed, map[string]interface{}{"batch_id": id})
		return nil
	})
	return id, err
}

/* Provider surface */

// SubmitParams records the encrypted triple against the open batch. Guard
// order: role, pause, cooldown, batch state. The cooldown stamp is consumed
// even if the submission then fails on batch state.
func (p *Protocol) SubmitParams(ctx context.Context, caller string, loan, collateral, rate fhe.Handle) error {
	return p.run(ctx, "submit_params", func() error {
		if err := p.acl.RequireProvider(caller); err != nil {
			return err
		}
		if err := p.acl.RequireActive(); err != nil {
			return err
		}
		if err := p.gate.CheckAndStamp(ctx, caller, cooldown.ClassSubmit); err != nil {
			return err
		}
		batchID, stored, err := p.ledger.SubmitParams(loan, collateral, rate)
		if err != nil {
			return err
		}
		digests := stored.Digests()
		p.emit(events.TypeParamsSubmitted, map[string]interface{}{
			"batch_id":          batchID,
			"provider":          caller,
			"loan_digest":       digests[0],
			"collateral_digest": digests[1],
			"rate_digest":       digests[2],
		})
		return nil
	})
}

// ExecuteAndRequestDecryption computes the current batch's profit and
// submits it to the oracle. The batch may already be closed; only a protocol
// that never opened a batch fails with ErrBatchClosed.
func (p *Protocol) ExecuteAndRequestDecryption(ctx context.Context, caller string) (*decrypt.Request, error) {
	var req *decrypt.Request
	err := p.run(ctx, "execute_and_request_decryption", func() error {
		if err := p.acl.RequireProvider(caller); err != nil {
			return err
		}
		if err := p.acl.RequireActive(); err != nil {
			return err
		}
		if err := p.gate.CheckAndStamp(ctx, caller, cooldown.ClassDecrypt); err != nil {
			return err
		}

		batchID, _ := p.ledger.Current()
		if batchID == 0 {
			return batch.ErrBatchClosed
		}
		// A missing triple reaches execution as the zero value and fails the
		// strict initialization check there.
		params, _ := p.ledger.Params(batchID)

		var err error
		if req, err = p.coord.ExecuteAndRequestDecryption(ctx, batchID, params); err != nil {
			return err
		}
		p.emit(events.TypeDecryptionRequested, map[string]interface{}{
			"request_id": req.ID,
			"batch_id":   req.BatchID,
			"state_hash": req.StateHash,
		})
		return nil
	})
	return req, err
}

/* Oracle surface */

// OnDecryptionCallback is the callback entry point handed to the oracle.
// Validation order and the exactly-once guarantee live in the coordinator;
// this layer adds the completion notification carrying the plaintext.
func (p *Protocol) OnDecryptionCallback(ctx context.Context, requestID string, cleartext []byte, proof string) error {
	return p.run(ctx, "on_decryption_callback", func() error {
		req, err := p.coord.OnDecryptionCallback(ctx, requestID, cleartext, proof)
		if err != nil {
			return err
		}
		p.emit(events.TypeDecryptionCompleted, map[string]interface{}{
			"request_id": req.ID,
			"batch_id":   req.BatchID,
			"plaintext":  req.Plaintext,
		})
		return nil
	})
}

/* Read-only surface */

// CurrentBatch returns the current batch id (0 if none yet) and whether it
// is open.
func (p *Protocol) CurrentBatch() (uint64, bool) { return p.ledger.Current() }

// Request returns the stored decryption request.
func (p *Protocol) Request(ctx context.Context, id string) (*decrypt.Request, error) {
	return p.coord.Request(ctx, id)
}

// ProfitResult returns the batch's opaque stored result, if computed.
func (p *Protocol) ProfitResult(batchID uint64) (fhe.Handle, bool) {
	return p.coord.ProfitResult(batchID)
}

// Owner returns the current owner.
func (p *Protocol) Owner() string { return p.acl.Owner() }

// IsProvider reports provider membership.
func (p *Protocol) IsProvider(principal string) bool { return p.acl.IsProvider(principal) }

// Paused reports the pause flag.
func (p *Protocol) Paused() bool { return p.acl.Paused() }

// CooldownSeconds returns the cooldown interval.
func (p *Protocol) CooldownSeconds() uint64 { return p.gate.Seconds() }

// Events exposes the notification log for observers and verification.
func (p *Protocol) Events() *events.Log { return p.log }

func (p *Protocol) run(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	ctx, span := p.tel.Start(ctx, op)
	defer span.End()

	p.mu.Lock()
	err := fn()
	p.mu.Unlock()

	p.tel.RecordOp(ctx, op, err, time.Since(start))
	if err != nil {
		p.logger.Debug("operation rejected", "op", op, "err", err)
	}
	return err
}

func (p *Protocol) emit(t events.Type, payload map[string]interface{}) {
	if _, err := p.log.Append(t, payload); err != nil {
		p.logger.Error("notification append failed", "type", t, "err", err)
	}
}
