/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package sandbox runs untrusted workflow scripts in an isolated ECMAScript VM with a fixed
// capability set and wall-clock, memory, stack and concurrency ceilings.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/goccy/go-json"
	"golang.org/x/sync/semaphore"

	"github.com/asgardeo/conduit/internal/system/config"
	"github.com/asgardeo/conduit/internal/system/log"
	"github.com/asgardeo/conduit/internal/system/metrics"
)

const loggerComponentName = "Sandbox"

// State is a step of the sandbox lifecycle.
type State string

// Sandbox lifecycle states.
const (
	StateCreated       State = "created"
	StateCompiled      State = "compiled"
	StateRunning       State = "running"
	StateCompleted     State = "completed"
	StateTimedOut      State = "timed_out"
	StateRuntimeFailed State = "runtime_failed"
	StateDisposed      State = "disposed"
)

const (
	defaultTimeout          = 5 * time.Second
	defaultMaxTimeout       = 30 * time.Second
	defaultMemoryLimitMB    = 128
	defaultMaxScriptBytes   = 64 * 1024
	defaultMaxConcurrent    = 8
	defaultMaxCallStackSize = 1024
	maxLogEntries           = 100
	maxLogEntryLength       = 1000
)

// globals removed from every VM before the script runs.
var removedGlobals = []string{"eval", "Function", "Reflect", "Proxy", "globalThis", "WebAssembly", "Atomics",
	"SharedArrayBuffer"}

// prelude builds the snapshot and freeze functions used to expose host data read-only.
var prelude = goja.MustCompile("prelude.js", `(function () {
	function freeze(o) {
		if (o !== null && typeof o === "object" && !Object.isFrozen(o)) {
			Object.freeze(o);
			Object.getOwnPropertyNames(o).forEach(function (k) { freeze(o[k]); });
		}
		return o;
	}
	return {
		snapshot: function (text) { return freeze(JSON.parse(text)); },
		freeze: freeze,
		output: function () {
			return typeof result === "undefined" ? undefined : JSON.stringify(result);
		}
	};
})()`, true)

type interruptReason int

const (
	interruptTimeout interruptReason = iota + 1
	interruptMemory
	interruptCancelled
)

// Config holds the executor ceilings.
type Config struct {
	Timeout          time.Duration
	MaxTimeout       time.Duration
	MemoryLimitMB    int
	MaxScriptBytes   int
	MaxConcurrent    int
	MaxCallStackSize int
}

// ConfigFromServer converts the sandbox section of the server configuration.
func ConfigFromServer(cfg config.SandboxConfig) Config {
	return Config{
		Timeout:        time.Duration(cfg.TimeoutMs) * time.Millisecond,
		MaxTimeout:     time.Duration(cfg.MaxTimeoutMs) * time.Millisecond,
		MemoryLimitMB:  cfg.MemoryLimitMB,
		MaxScriptBytes: cfg.MaxScriptBytes,
		MaxConcurrent:  cfg.MaxConcurrent,
	}
}

// Request is a single script execution.
type Request struct {
	Script string
	// Context is the workflow context slice exposed as the context binding.
	Context map[string]any
	// Input is the previous node's output exposed as the input binding.
	Input any
	// TimeoutMs overrides the default timeout, capped at the configured maximum.
	TimeoutMs int
	// MemoryLimitMB overrides the default memory ceiling, capped at the configured limit.
	MemoryLimitMB int
}

// Result is the outcome of a completed script.
type Result struct {
	// Value is the JSON-decoded value of the result binding, or nil when the script did not set it.
	Value    any           `json:"value"`
	Logs     []string      `json:"logs,omitempty"`
	State    State         `json:"state"`
	Duration time.Duration `json:"-"`
}

// ExecutorInterface runs scripts.
type ExecutorInterface interface {
	Run(ctx context.Context, req Request) (*Result, error)
	Active() int64
}

// Executor runs scripts in a fresh VM per execution. It is safe for concurrent use.
type Executor struct {
	cfg    Config
	caps   Capabilities
	envRaw []byte
	sem    *semaphore.Weighted
	active atomic.Int64
}

// NewExecutor creates an executor with the given ceilings and capabilities.
func NewExecutor(cfg Config, caps Capabilities) (*Executor, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = defaultMaxTimeout
	}
	if cfg.Timeout > cfg.MaxTimeout {
		cfg.Timeout = cfg.MaxTimeout
	}
	if cfg.MemoryLimitMB <= 0 {
		cfg.MemoryLimitMB = defaultMemoryLimitMB
	}
	if cfg.MaxScriptBytes <= 0 {
		cfg.MaxScriptBytes = defaultMaxScriptBytes
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.MaxCallStackSize <= 0 {
		cfg.MaxCallStackSize = defaultMaxCallStackSize
	}

	env := caps.Env
	if env == nil {
		env = map[string]string{}
	}
	envRaw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sandbox environment: %w", err)
	}

	return &Executor{
		cfg:    cfg,
		caps:   caps,
		envRaw: envRaw,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}, nil
}

// Active returns the number of live sandboxes.
func (e *Executor) Active() int64 {
	return e.active.Load()
}

// Run validates, compiles and runs req.Script. Every error is a *ScriptError. The VM and its
// timers are released before Run returns on every path.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName))

	if err := ValidateScript(req.Script, e.cfg.MaxScriptBytes); err != nil {
		logger.Warn("Rejected script before compilation", log.Error(err))
		metrics.RecordSandboxExecution(string(CategoryValidation))
		return nil, err
	}

	program, err := goja.Compile("script.js", req.Script, false)
	if err != nil {
		metrics.RecordSandboxExecution(string(CategoryCompilation))
		return nil, newScriptError(CategoryCompilation, "%s", compileMessage(err))
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		metrics.RecordSandboxExecution(string(CategoryCapacity))
		return nil, newScriptError(CategoryCapacity, "No sandbox capacity available")
	}
	defer e.sem.Release(1)

	s := &session{
		executor: e,
		timeout:  e.timeoutFor(req.TimeoutMs),
		memLimit: e.memoryFor(req.MemoryLimitMB),
		state:    StateCreated,
		logger:   logger,
	}
	metrics.SetSandboxActive(e.active.Add(1))
	defer func() {
		s.dispose()
		metrics.SetSandboxActive(e.active.Add(-1))
	}()

	result, runErr := s.run(ctx, program, req)
	metrics.RecordSandboxExecution(string(s.state))
	if runErr != nil {
		logger.Debug("Script execution failed", log.String("state", string(s.state)),
			log.String("category", string(runErr.Category)))
		return nil, runErr
	}
	return result, nil
}

func (e *Executor) timeoutFor(ms int) time.Duration {
	if ms <= 0 {
		return e.cfg.Timeout
	}
	d := time.Duration(ms) * time.Millisecond
	if d > e.cfg.MaxTimeout {
		return e.cfg.MaxTimeout
	}
	return d
}

func (e *Executor) memoryFor(mb int) uint64 {
	if mb <= 0 || mb > e.cfg.MemoryLimitMB {
		mb = e.cfg.MemoryLimitMB
	}
	return uint64(mb) * 1024 * 1024
}

// session is one VM lifecycle.
type session struct {
	executor *Executor
	timeout  time.Duration
	memLimit uint64
	vm       *goja.Runtime
	outputFn goja.Callable
	state    State
	logs     []string
	cleanups []func()
	logger   *log.Logger
}

func (s *session) run(ctx context.Context, program *goja.Program, req Request) (result *Result, scriptErr *ScriptError) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from sandbox panic", log.Any("panic", r))
			s.state = StateRuntimeFailed
			result, scriptErr = nil, newScriptError(CategoryInternal, "Internal sandbox error")
		}
	}()

	start := time.Now()
	if err := s.setup(req); err != nil {
		s.state = StateRuntimeFailed
		return nil, err
	}
	s.state = StateCompiled

	s.arm(ctx)
	s.state = StateRunning

	if _, err := s.vm.RunProgram(program); err != nil {
		return nil, s.fail(err)
	}
	value, err := s.output()
	if err != nil {
		return nil, s.fail(err)
	}
	s.state = StateCompleted
	return &Result{Value: value, Logs: s.logs, State: s.state, Duration: time.Since(start)}, nil
}

// setup creates the VM and installs the capability bindings.
func (s *session) setup(req Request) *ScriptError {
	vm := goja.New()
	s.vm = vm
	vm.SetMaxCallStackSize(s.executor.cfg.MaxCallStackSize)
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	preludeValue, err := vm.RunProgram(prelude)
	if err != nil {
		return newScriptError(CategoryInternal, "Failed to initialize sandbox")
	}
	tools := preludeValue.ToObject(vm)
	snapshot, _ := goja.AssertFunction(tools.Get("snapshot"))
	freeze, _ := goja.AssertFunction(tools.Get("freeze"))
	if snapshot == nil || freeze == nil {
		return newScriptError(CategoryInternal, "Failed to initialize sandbox")
	}
	output, _ := goja.AssertFunction(tools.Get("output"))
	if output == nil {
		return newScriptError(CategoryInternal, "Failed to initialize sandbox")
	}
	s.outputFn = output

	bind := func(name string, raw []byte) *ScriptError {
		v, err := snapshot(goja.Undefined(), vm.ToValue(string(raw)))
		if err != nil {
			return newScriptError(CategoryInternal, "Failed to expose %s to the sandbox", name)
		}
		if err := vm.Set(name, v); err != nil {
			return newScriptError(CategoryInternal, "Failed to expose %s to the sandbox", name)
		}
		return nil
	}

	ctxRaw, err := json.Marshal(emptyIfNil(req.Context))
	if err != nil {
		return newScriptError(CategoryValidation, "Context is not serializable")
	}
	inputRaw, err := json.Marshal(req.Input)
	if err != nil {
		return newScriptError(CategoryValidation, "Input is not serializable")
	}
	if serr := bind("context", ctxRaw); serr != nil {
		return serr
	}
	if serr := bind("input", inputRaw); serr != nil {
		return serr
	}
	if serr := bind("env", s.executor.envRaw); serr != nil {
		return serr
	}

	console := vm.NewObject()
	_ = console.Set("log", s.consoleLog)
	if _, err := freeze(goja.Undefined(), console); err != nil {
		return newScriptError(CategoryInternal, "Failed to initialize sandbox")
	}
	_ = vm.Set("console", console)

	if h := s.executor.caps.Helpers; h != nil {
		helpers := vm.NewObject()
		if h.SHA256 != nil {
			_ = helpers.Set("sha256", h.SHA256)
		}
		if h.Base64Encode != nil {
			_ = helpers.Set("base64Encode", h.Base64Encode)
		}
		if h.Base64Decode != nil {
			_ = helpers.Set("base64Decode", h.Base64Decode)
		}
		if h.UUID != nil {
			_ = helpers.Set("uuid", h.UUID)
		}
		if h.Now != nil {
			now := h.Now
			_ = helpers.Set("now", func() string { return now().UTC().Format(time.RFC3339Nano) })
		}
		if _, err := freeze(goja.Undefined(), helpers); err != nil {
			return newScriptError(CategoryInternal, "Failed to initialize sandbox")
		}
		_ = vm.Set("helpers", helpers)
	}

	global := vm.GlobalObject()
	for _, name := range removedGlobals {
		_ = global.Delete(name)
	}

	// Declared up front so strict-mode scripts can assign it.
	if err := vm.Set("result", goja.Undefined()); err != nil {
		return newScriptError(CategoryInternal, "Failed to initialize sandbox")
	}
	return nil
}

// arm starts the wall-clock timer, the memory watchdog and the cancellation watcher.
func (s *session) arm(ctx context.Context) {
	vm := s.vm
	timer := time.AfterFunc(s.timeout, func() { vm.Interrupt(interruptTimeout) })
	s.cleanups = append(s.cleanups, func() { timer.Stop() })

	stopWatchdog := watchMemory(s.memLimit, func() { vm.Interrupt(interruptMemory) })
	s.cleanups = append(s.cleanups, stopWatchdog)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(interruptCancelled)
		case <-done:
		}
	}()
	s.cleanups = append(s.cleanups, func() { close(done) })
}

// output reads the result binding through JSON so only plain data leaves the VM.
func (s *session) output() (any, error) {
	v, err := s.outputFn(goja.Undefined())
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(v.String()), &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// fail classifies a run error and records the terminal state.
func (s *session) fail(err error) *ScriptError {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		switch interrupted.Value() {
		case interruptMemory:
			s.state = StateRuntimeFailed
			return newScriptError(CategoryMemoryLimit, "Script exceeded the memory limit")
		case interruptCancelled:
			s.state = StateTimedOut
			return newScriptError(CategoryTimeout, "Script execution was cancelled")
		default:
			s.state = StateTimedOut
			return newScriptError(CategoryTimeout, "Script execution timed out after %s", s.timeout)
		}
	}

	s.state = StateRuntimeFailed
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return newScriptError(CategoryRuntime, "%s", exceptionMessage(exception))
	}
	return newScriptError(CategoryRuntime, "%s", firstLine(err.Error()))
}

// dispose stops every timer and watcher and drops the VM.
func (s *session) dispose() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil
	if s.vm != nil {
		s.vm.ClearInterrupt()
		s.vm = nil
	}
	s.outputFn = nil
	s.logger.Debug("Sandbox disposed", log.String("terminalState", string(s.state)))
	s.state = StateDisposed
}

func (s *session) consoleLog(call goja.FunctionCall) goja.Value {
	if len(s.logs) >= maxLogEntries {
		return goja.Undefined()
	}
	parts := make([]string, 0, len(call.Arguments))
	for _, arg := range call.Arguments {
		parts = append(parts, arg.String())
	}
	entry := strings.Join(parts, " ")
	if len(entry) > maxLogEntryLength {
		entry = entry[:maxLogEntryLength] + "..."
	}
	s.logs = append(s.logs, entry)
	return goja.Undefined()
}

func exceptionMessage(ex *goja.Exception) string {
	if v := ex.Value(); v != nil {
		return firstLine(v.String())
	}
	return firstLine(ex.Error())
}

func compileMessage(err error) string {
	var syntaxErr *goja.CompilerSyntaxError
	if errors.As(err, &syntaxErr) {
		return "Syntax error: " + firstLine(syntaxErr.Message)
	}
	return "Script failed to compile"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func emptyIfNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
