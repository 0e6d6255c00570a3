package jsruntime

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fnhost/fnhost/fault"
	"github.com/fnhost/fnhost/manifest"
	"github.com/fnhost/fnhost/runtime"
)

func load(t *testing.T, src string, deps map[string]string) (runtime.Handler, error) {
	t.Helper()
	rt := New()

	m := &manifest.Manifest{Name: "test-fn", Runtime: Name, Source: "test-fn.js"}
	var named []runtime.NamedModule
	for name, msrc := range deps {
		mod, err := rt.CompileModule(name, []byte(msrc))
		if err != nil {
			t.Fatalf("compile module %s: %v", name, err)
		}
		named = append(named, runtime.NamedModule{Name: name, Module: mod})
		m.Dependencies = append(m.Dependencies, manifest.Dependency{Name: name})
	}
	return rt.LoadHandler(m, []byte(src), named)
}

func mustLoad(t *testing.T, src string, deps map[string]string) runtime.Handler {
	t.Helper()
	h, err := load(t, src, deps)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return h
}

func TestInvokeReturnsExportedValue(t *testing.T) {
	h := mustLoad(t, `function handler(event) { return { echo: event, n: 2 }; }`, nil)

	out, err := h.Invoke(context.Background(), map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("result type %T", out)
	}
	if m["n"] != int64(2) {
		t.Errorf("n = %#v", m["n"])
	}
}

func TestContractValidation(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"missing entry point", `var x = 1;`, "does not define"},
		{"not callable", `var handler = 42;`, "not callable"},
		{"zero arity", `function handler() { return null; }`, "exactly 1 argument"},
		{"two arity", `function handler(a, b) { return null; }`, "exactly 1 argument"},
		{"syntax error", `function handler(e) {`, ""},
		{"load-time throw", `throw new Error("init failed"); function handler(e) {}`, "load-time error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(t, tc.src, nil)
			if err == nil {
				t.Fatal("load succeeded")
			}
			if !fault.Is(err, fault.KindContractViolation) {
				t.Fatalf("kind = %v, want ContractViolationError", err)
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestRequirePreloadedModule(t *testing.T) {
	h := mustLoad(t,
		`var greet = require("greeter").greet;
		 function handler(event) { return { message: greet(event.name) }; }`,
		map[string]string{
			"greeter": `exports.greet = function (name) { return "Hi, " + name; };`,
		})

	out, err := h.Invoke(context.Background(), map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	if msg := out.(map[string]any)["message"]; msg != "Hi, Ada" {
		t.Errorf("message = %#v", msg)
	}
}

func TestRequireTransitive(t *testing.T) {
	// A later module may build on an earlier one.
	h := mustLoad(t,
		`var loud = require("loud");
		 function handler(event) { return loud.shout(event.word); }`,
		map[string]string{
			"upper": `exports.up = function (s) { return s.toUpperCase(); };`,
			"loud":  `var up = require("upper").up; exports.shout = function (s) { return up(s) + "!"; };`,
		})

	out, err := h.Invoke(context.Background(), map[string]any{"word": "hey"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "HEY!" {
		t.Errorf("out = %#v", out)
	}
}

func TestRequireUndeclaredModule(t *testing.T) {
	_, err := load(t, `var x = require("mystery"); function handler(e) { return null; }`, nil)
	if !fault.Is(err, fault.KindDependencyResolution) {
		t.Fatalf("kind = %v, want DependencyResolutionError", err)
	}
}

func TestCircularRequire(t *testing.T) {
	_, err := load(t,
		`var a = require("a"); function handler(e) { return null; }`,
		map[string]string{
			"a": `var b = require("b"); exports.v = 1;`,
			"b": `var a = require("a"); exports.v = 2;`,
		})
	if !fault.Is(err, fault.KindDependencyResolution) {
		t.Fatalf("kind = %v, want DependencyResolutionError", err)
	}
	if !strings.Contains(err.Error(), "circular") {
		t.Errorf("err = %v, want circular require", err)
	}
}

func TestModuleLoadError(t *testing.T) {
	_, err := load(t,
		`var bad = require("bad"); function handler(e) { return null; }`,
		map[string]string{"bad": `throw new Error("module init boom");`})
	if !fault.Is(err, fault.KindDependencyResolution) {
		t.Fatalf("kind = %v, want DependencyResolutionError", err)
	}
}

func TestSwallowedRequireErrorStillLoads(t *testing.T) {
	// A unit that catches its own require failure keeps loading; the host
	// only sees what the handler does not swallow.
	h := mustLoad(t,
		`var dep = null;
		 try { dep = require("mystery"); } catch (e) { dep = null; }
		 function handler(event) { return { loaded: dep !== null }; }`, nil)

	out, err := h.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.(map[string]any)["loaded"] != false {
		t.Errorf("out = %#v", out)
	}
}

func TestUncaughtExceptionBecomesExecutionError(t *testing.T) {
	h := mustLoad(t, `function handler(event) { throw new Error("logic failed"); }`, nil)

	_, err := h.Invoke(context.Background(), nil)
	if !fault.Is(err, fault.KindHandlerExecution) {
		t.Fatalf("kind = %v, want HandlerExecutionError", err)
	}
	if !strings.Contains(err.Error(), "logic failed") {
		t.Errorf("handler message lost: %v", err)
	}

	// The VM survives an exception; the next call succeeds.
	h2 := mustLoad(t,
		`function handler(event) { if (event.boom) { throw new Error("x"); } return "ok"; }`, nil)
	if _, err := h2.Invoke(context.Background(), map[string]any{"boom": true}); err == nil {
		t.Fatal("expected error")
	}
	out, err := h2.Invoke(context.Background(), map[string]any{"boom": false})
	if err != nil || out != "ok" {
		t.Fatalf("out = %#v, err = %v", out, err)
	}
}

func TestInterruptOnContextCancel(t *testing.T) {
	h := mustLoad(t, `function handler(event) { for (;;) {} }`, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := h.Invoke(ctx, nil)
	if err == nil {
		t.Fatal("busy loop returned")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("interrupt took %v", elapsed)
	}

	// The artifact stays warm after an abort.
	h2 := mustLoad(t, `function handler(event) { if (event) { for (;;) {} } return "fine"; }`, nil)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, _ = h2.Invoke(ctx2, true)
	cancel2()
	out, err := h2.Invoke(context.Background(), nil)
	if err != nil || out != "fine" {
		t.Fatalf("warm call after abort: out = %#v, err = %v", out, err)
	}
}

func TestCancelAtCompletionDoesNotPoisonPool(t *testing.T) {
	// A cancel landing in the window where the call just returned must not
	// leave a pending interrupt on a pooled VM.
	h := mustLoad(t,
		`function handler(event) { var s = 0; for (var i = 0; i < event.n; i++) { s += i; } return s; }`, nil)

	for i := 0; i < 3000; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		go func(d time.Duration) {
			time.Sleep(d)
			cancel()
		}(time.Duration(i%40) * time.Microsecond)

		_, _ = h.Invoke(ctx, map[string]any{"n": 500})
		cancel()

		out, err := h.Invoke(context.Background(), map[string]any{"n": 3})
		if err != nil {
			t.Fatalf("round %d: clean call failed: %v", i, err)
		}
		if out != int64(3) {
			t.Fatalf("round %d: out = %#v", i, out)
		}
	}
}

func TestConcurrentInvocations(t *testing.T) {
	h := mustLoad(t, `function handler(event) { return event.i * 2; }`, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := h.Invoke(context.Background(), map[string]any{"i": i})
			if err != nil {
				errs <- err
				return
			}
			if out != int64(i*2) {
				errs <- fault.New(fault.KindHandlerExecution, "out = %#v for i = %d", out, i)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCompileModuleErrors(t *testing.T) {
	rt := New()
	if _, err := rt.CompileModule("empty", nil); !fault.Is(err, fault.KindDependencyResolution) {
		t.Errorf("empty source: %v", err)
	}
	if _, err := rt.CompileModule("broken", []byte(`exports.f = function ( {`)); !fault.Is(err, fault.KindDependencyResolution) {
		t.Errorf("syntax error: %v", err)
	}
}
