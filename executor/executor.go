// Package executor runs dispatched task envelopes on the local node.
// WebAssembly payloads run in a fresh wazero runtime per task; other kinds
// are echoed back.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/cohort/dispatcher"
	"github.com/absmach/cohort/pkg/payload"
	"github.com/absmach/cohort/task"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

var (
	errMissingFunction = errors.New("wasm module does not export the requested function")
	errInstantiate     = errors.New("failed to instantiate wasm module")
)

var _ dispatcher.Executor = (*Host)(nil)

// WasmResult is the output of a WebAssembly task.
type WasmResult struct {
	Function string   `json:"function"`
	Results  []uint64 `json:"results"`
	Stdout   string   `json:"stdout,omitempty"`
}

type Host struct {
	cache  wazero.CompilationCache
	logger *slog.Logger
}

func New(logger *slog.Logger) *Host {
	return &Host{
		cache:  wazero.NewCompilationCache(),
		logger: logger,
	}
}

func (h *Host) Execute(ctx context.Context, t task.Envelope) (any, error) {
	p := t.Payload
	switch p.Kind {
	case payload.KindWasm:
		return h.runWasm(ctx, t.ID, p)
	case payload.KindJSON:
		var v any
		if err := p.Decode(&v); err != nil {
			return nil, err
		}

		return v, nil
	default:
		return string(p.Data), nil
	}
}

func (h *Host) runWasm(ctx context.Context, id string, p payload.Payload) (WasmResult, error) {
	begin := time.Now()
	cfg := wazero.NewRuntimeConfig().
		WithCompilationCache(h.cache).
		WithCloseOnContextDone(true)
	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	defer func() {
		if err := r.Close(ctx); err != nil {
			h.logger.Warn("failed to close wasm runtime", slog.String("task_id", id), slog.Any("error", err))
		}
	}()

	// WASI backs the panic and print paths of TinyGo builds.
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	var stdout bytes.Buffer
	mcfg := wazero.NewModuleConfig().
		WithName(id).
		WithStdout(&stdout).
		WithStartFunctions("_initialize")
	module, err := r.InstantiateWithConfig(ctx, p.Data, mcfg)
	if err != nil {
		return WasmResult{}, errors.Join(errInstantiate, err)
	}

	fn := module.ExportedFunction(p.Function)
	if fn == nil {
		return WasmResult{}, fmt.Errorf("%w: %s", errMissingFunction, p.Function)
	}

	results, err := fn.Call(ctx, p.Args...)
	if err != nil {
		return WasmResult{}, fmt.Errorf("call %s: %w", p.Function, err)
	}

	h.logger.Debug("finished running wasm task",
		slog.String("task_id", id),
		slog.String("function", p.Function),
		slog.Duration("duration", time.Since(begin)),
	)

	return WasmResult{Function: p.Function, Results: results, Stdout: stdout.String()}, nil
}

func (h *Host) Close(ctx context.Context) error {
	return h.cache.Close(ctx)
}
