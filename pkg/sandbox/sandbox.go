// Package sandbox executes skill scripts in a restricted, embedded Lua
// interpreter. Executed code sees only an enumerated module allow-list --
// no filesystem, network, process, or reflection capability is ever exposed.
// Every failure mode is contained and reported as a structured *Error; a
// fault inside untrusted code never propagates as a fault of the host.
package sandbox

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"

	"github.com/skillforge/skillforge/pkg/logger"
)

// EntryPoint is the function every skill script must define. It receives a
// single table of inputs and returns a single table of outputs.
const EntryPoint = "run_skill"

// Allow-listable module names. The enumeration is fixed; anything else a
// script reaches for fails with a capability violation.
const (
	ModuleJSON  = "json" // data formatting (json.encode / json.decode)
	ModuleMath  = "math" // arithmetic (Lua math library)
	ModuleCSV   = "csv"  // tabular parsing (csv.parse / csv.write)
	ModuleRegex = "re"   // pattern matching (Lua string library)
	ModuleStats = "stats" // descriptive statistics
)

// AllModules returns the full module allow-list enumeration.
func AllModules() []string {
	return []string{ModuleJSON, ModuleMath, ModuleCSV, ModuleRegex, ModuleStats}
}

// forbiddenModules are never reachable regardless of configuration.
var forbiddenModules = []string{"io", "os", "package", "debug", "coroutine", "channel"}

// DefaultTimeout bounds an execution when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Executor runs skill scripts against a restricted capability set. An
// Executor is immutable after construction and safe for concurrent use;
// every execution gets a fresh interpreter state that is torn down on
// return.
type Executor struct {
	allowed map[string]bool
	timeout time.Duration
}

// Option configures an Executor.
type Option func(*Executor) error

// WithAllowedModules restricts the reachable modules to the given subset of
// the fixed enumeration.
func WithAllowedModules(names ...string) Option {
	return func(e *Executor) error {
		allowed := make(map[string]bool, len(names))
		for _, name := range names {
			if !isKnownModule(name) {
				return errors.Errorf("unknown sandbox module %q", name)
			}
			allowed[name] = true
		}
		e.allowed = allowed
		return nil
	}
}

// WithTimeout sets the wall-clock execution deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) error {
		if d <= 0 {
			return errors.New("sandbox timeout must be positive")
		}
		e.timeout = d
		return nil
	}
}

// NewExecutor creates an executor. By default the full module enumeration is
// allowed and executions are bounded by DefaultTimeout.
func NewExecutor(opts ...Option) (*Executor, error) {
	e := &Executor{timeout: DefaultTimeout}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.allowed == nil {
		allowed := make(map[string]bool)
		for _, name := range AllModules() {
			allowed[name] = true
		}
		e.allowed = allowed
	}
	return e, nil
}

func isKnownModule(name string) bool {
	for _, m := range AllModules() {
		if m == name {
			return true
		}
	}
	return false
}

// Execute runs a skill script with the given inputs and returns its
// structured outputs. The script must define run_skill(inputs) -> table.
// On any failure no output is returned; partial state inside the sandbox is
// discarded with the interpreter.
func (e *Executor) Execute(ctx context.Context, code string, inputs map[string]any) (map[string]any, error) {
	L := e.newState(ctx)
	defer L.Close()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	L.SetContext(ctx)

	fn, err := L.LoadString(code)
	if err != nil {
		return nil, newError(RuntimeError, "failed to compile skill code: %s", luaErrorMessage(err))
	}

	// Run the top-level chunk so function definitions take effect.
	L.Push(fn)
	if err := L.PCall(0, 0, nil); err != nil {
		return nil, e.classify(ctx, err)
	}

	entry, ok := L.GetGlobal(EntryPoint).(*lua.LFunction)
	if !ok {
		return nil, newError(EntryPointMissing, "skill code must define a %s(inputs) function returning a table", EntryPoint)
	}

	if inputs == nil {
		inputs = map[string]any{}
	}
	if err := L.CallByParam(lua.P{Fn: entry, NRet: 1, Protect: true}, goMapToLuaTable(L, inputs)); err != nil {
		return nil, e.classify(ctx, err)
	}

	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, newError(UnserializableOutput, "%s must return a table, got %s", EntryPoint, ret.Type())
	}
	goVal, err := luaTableToGo(tbl)
	if err != nil {
		return nil, newError(UnserializableOutput, "%s", err.Error())
	}
	outputs, ok := goVal.(map[string]any)
	if !ok {
		return nil, newError(UnserializableOutput, "%s must return a string-keyed mapping", EntryPoint)
	}
	return outputs, nil
}

// newState builds a fresh interpreter exposing only the allowed modules.
func (e *Executor) newState(ctx context.Context) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	// Core language only: base and table libraries. Everything else is
	// gated behind the allow-list or permanently forbidden.
	lua.OpenBase(L)
	lua.OpenTable(L)

	// Base registers chunk loaders that could smuggle code past the
	// capability guards, and protected-call primitives that would let a
	// script swallow a violation and keep running. Remove them.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "pcall", "xpcall"} {
		L.SetGlobal(name, lua.LNil)
	}

	// Scripts must not write to the host's stdout; print is routed to the
	// debug log instead.
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.Get(i).String())
		}
		logger.G(ctx).WithField("source", "sandbox").Debug(strings.Join(parts, "\t"))
		return 0
	}))

	if e.allowed[ModuleMath] {
		lua.OpenMath(L)
	} else {
		guardModule(L, "math")
	}
	if e.allowed[ModuleRegex] {
		lua.OpenString(L)
	} else {
		guardModule(L, "string")
	}
	if e.allowed[ModuleJSON] {
		registerJSONModule(L)
	} else {
		guardModule(L, "json")
	}
	if e.allowed[ModuleCSV] {
		registerCSVModule(L)
	} else {
		guardModule(L, "csv")
	}
	if e.allowed[ModuleStats] {
		registerStatsModule(L)
	} else {
		guardModule(L, "stats")
	}

	for _, name := range forbiddenModules {
		guardModule(L, name)
	}

	return L
}

// classify converts an interpreter error into the sandbox taxonomy. The
// deadline check comes first: a timed-out execution aborts wherever the VM
// happens to be, so its error text is meaningless.
func (e *Executor) classify(ctx context.Context, err error) *Error {
	if ctx.Err() == context.DeadlineExceeded {
		return newError(ExecutionTimeout, "execution exceeded the %s deadline", e.timeout)
	}
	msg := luaErrorMessage(err)
	if strings.Contains(msg, violationMarker) {
		return newError(CapabilityViolation, "%s", msg)
	}
	return newError(RuntimeError, "%s", msg)
}

// luaErrorMessage extracts the error object from an interpreter error,
// dropping the Lua stack trace.
func luaErrorMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		return apiErr.Object.String()
	}
	return err.Error()
}
