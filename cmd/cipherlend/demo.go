package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/cipherlend/cipherlend/pkg/config"
	"github.com/cipherlend/cipherlend/pkg/cooldown"
	"github.com/cipherlend/cipherlend/pkg/decrypt"
	"github.com/cipherlend/cipherlend/pkg/fhe"
	"github.com/cipherlend/cipherlend/pkg/lending"
	"github.com/cipherlend/cipherlend/pkg/observability"
	"github.com/cipherlend/cipherlend/pkg/oracle"
)

// runDemo drives the full protocol lifecycle against the local oracle:
// open a batch, submit encrypted loan parameters, close, execute, and let
// the oracle callback reveal the profit.
func runDemo(_ []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	logger := newLogger(stdout, cfg)
	ctx := context.Background()

	logger.Info("generating BFV key set")
	scheme, sk, err := fhe.NewBFV()
	if err != nil {
		fmt.Fprintf(stderr, "key generation: %v\n", err)
		return 1
	}

	signer, err := oracle.NewSigner()
	if err != nil {
		fmt.Fprintf(stderr, "oracle signer: %v\n", err)
		return 1
	}
	orc := oracle.NewLocal(fhe.NewBFVDecryptor(scheme, sk), signer).
		WithRateLimit(rate.Limit(cfg.OracleRatePerSec), 1)

	store, cleanup, err := openRequestStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "request store: %v\n", err)
		return 1
	}
	defer cleanup()

	var cooldownStore cooldown.Store
	if cfg.RedisAddr != "" {
		rs := cooldown.NewRedisStore(cfg.RedisAddr, "", 0)
		defer rs.Close()
		cooldownStore = rs
	}

	var tel *observability.Provider
	if cfg.TelemetryEnabled {
		telCfg := observability.DefaultConfig()
		telCfg.OTLPEndpoint = cfg.OTLPEndpoint
		if tel, err = observability.New(ctx, telCfg); err != nil {
			fmt.Fprintf(stderr, "telemetry: %v\n", err)
			return 1
		}
		defer tel.Shutdown(context.Background())
	}

	proto, err := lending.New(lending.Options{
		Owner:           cfg.Owner,
		Identity:        cfg.Identity,
		Arithmetic:      scheme,
		Oracle:          orc,
		Verifier:        oracle.NewProofVerifier(signer.PublicKey()),
		RequestStore:    store,
		CooldownStore:   cooldownStore,
		CooldownSeconds: cfg.CooldownSeconds,
		Logger:          logger,
		Telemetry:       tel,
	})
	if err != nil {
		fmt.Fprintf(stderr, "protocol setup: %v\n", err)
		return 1
	}
	orc.SetCallback(proto.OnDecryptionCallback)

	const provider = "provider-1"
	if err := proto.AddProvider(ctx, cfg.Owner, provider); err != nil {
		fmt.Fprintf(stderr, "add provider: %v\n", err)
		return 1
	}

	batchID, err := proto.OpenBatch(ctx, cfg.Owner)
	if err != nil {
		fmt.Fprintf(stderr, "open batch: %v\n", err)
		return 1
	}
	logger.Info("batch opened", "batch_id", batchID)

	triple, err := encryptTriple(scheme, 100, 50, 2)
	if err != nil {
		fmt.Fprintf(stderr, "encrypt params: %v\n", err)
		return 1
	}
	if err := proto.SubmitParams(ctx, provider, triple[0], triple[1], triple[2]); err != nil {
		fmt.Fprintf(stderr, "submit params: %v\n", err)
		return 1
	}
	logger.Info("encrypted parameters submitted", "loan", 100, "collateral", 50, "rate", 2)

	if _, err := proto.CloseBatch(ctx, cfg.Owner); err != nil {
		fmt.Fprintf(stderr, "close batch: %v\n", err)
		return 1
	}

	req, err := proto.ExecuteAndRequestDecryption(ctx, provider)
	if err != nil {
		fmt.Fprintf(stderr, "execute: %v\n", err)
		return 1
	}
	logger.Info("decryption requested",
		"request_id", req.ID, "batch_id", req.BatchID, "state_hash", req.StateHash)

	if err := orc.DeliverAll(ctx); err != nil {
		fmt.Fprintf(stderr, "oracle delivery: %v\n", err)
		return 1
	}

	revealed, err := proto.Request(ctx, req.ID)
	if err != nil {
		fmt.Fprintf(stderr, "request lookup: %v\n", err)
		return 1
	}
	logger.Info("profit revealed",
		"request_id", revealed.ID, "profit", revealed.Plaintext, "processed", revealed.Processed)

	if ok, reason := proto.Events().Verify(); !ok {
		fmt.Fprintf(stderr, "notification chain broken: %s\n", reason)
		return 1
	}
	logger.Info("notification chain verified", "entries", proto.Events().Length())
	return 0
}

func encryptTriple(scheme *fhe.BFV, loan, collateral, rate uint64) ([3]fhe.Handle, error) {
	var out [3]fhe.Handle
	var err error
	if out[0], err = scheme.EncryptUint64(loan); err != nil {
		return out, err
	}
	if out[1], err = scheme.EncryptUint64(collateral); err != nil {
		return out, err
	}
	out[2], err = scheme.EncryptUint64(rate)
	return out, err
}

func openRequestStore(cfg *config.Config) (decrypt.Store, func(), error) {
	switch cfg.StoreBackend {
	case "sqlite":
		s, err := decrypt.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		s, err := decrypt.NewPostgresStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, func() { _ = db.Close() }, nil
	default:
		return decrypt.NewMemoryStore(), func() {}, nil
	}
}
