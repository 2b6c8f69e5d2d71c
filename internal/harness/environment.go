// internal/harness/environment.go
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"
)

// DefaultEvalTimeout bounds script execution when the caller's context
// carries no deadline.
const DefaultEvalTimeout = 30 * time.Second

// Environment hosts the emulated page: a goja VM on an event loop with the
// session's media stubs installed as the standard browser globals. All VM
// access is serialized through the loop; recorder timers dispatch their
// events back onto it.
type Environment struct {
	loop    *eventloop.EventLoop
	session *Session
	logger  *zap.Logger
}

// NewEnvironment creates a stopped environment for the session.
func NewEnvironment(session *Session, logger *zap.Logger) *Environment {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Environment{
		loop:    eventloop.NewEventLoop(),
		session: session,
		logger:  logger.Named("environment"),
	}
}

// Start runs the event loop in the background and installs the patches.
func (e *Environment) Start(ctx context.Context) error {
	e.loop.Start()
	return e.Install(ctx)
}

// Stop halts the event loop, letting queued jobs finish.
func (e *Environment) Stop() {
	e.loop.Stop()
}

// Install applies the media patches to the VM's global scope. Safe to call
// arbitrarily many times; constructor markers make repeats no-ops.
func (e *Environment) Install(ctx context.Context) error {
	errCh := make(chan error, 1)
	e.loop.RunOnLoop(func(vm *goja.Runtime) {
		errCh <- e.install(vm)
	})
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("context done while installing patches: %w", ctx.Err())
	}
}

type evalResult struct {
	value interface{}
	err   error
}

// Eval runs a script on the loop and exports its result. A returned Promise
// is awaited; rejection surfaces as an error.
func (e *Environment) Eval(ctx context.Context, script string) (interface{}, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultEvalTimeout)
		defer cancel()
	}

	resCh := make(chan evalResult, 1)
	e.loop.RunOnLoop(func(vm *goja.Runtime) {
		v, err := vm.RunString(script)
		if err != nil {
			if jsErr, ok := err.(*goja.Exception); ok {
				err = fmt.Errorf("javascript exception: %s", jsErr.String())
			}
			resCh <- evalResult{err: err}
			return
		}
		if promise, ok := v.Export().(*goja.Promise); ok {
			e.settlePromise(vm, promise, resCh)
			return
		}
		resCh <- evalResult{value: v.Export()}
	})

	select {
	case res := <-resCh:
		return res.value, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("context done while evaluating script: %w", ctx.Err())
	}
}

// settlePromise reports a promise's outcome on resCh. Runs on the loop.
func (e *Environment) settlePromise(vm *goja.Runtime, promise *goja.Promise, resCh chan evalResult) {
	switch promise.State() {
	case goja.PromiseStateFulfilled:
		resCh <- evalResult{value: promise.Result().Export()}
	case goja.PromiseStateRejected:
		resCh <- evalResult{err: fmt.Errorf("javascript promise rejected: %v", promise.Result().Export())}
	default:
		// Still pending: attach reactions. They execute as later loop jobs.
		then, _ := goja.AssertFunction(vm.ToValue(promise).ToObject(vm).Get("then"))
		onFulfilled := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			resCh <- evalResult{value: call.Argument(0).Export()}
			return goja.Undefined()
		})
		onRejected := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			resCh <- evalResult{err: fmt.Errorf("javascript promise rejected: %v", call.Argument(0).Export())}
			return goja.Undefined()
		})
		if _, err := then(vm.ToValue(promise), onFulfilled, onRejected); err != nil {
			resCh <- evalResult{err: fmt.Errorf("failed to await promise: %w", err)}
		}
	}
}
