package loader

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fnhost/fnhost/depmod"
	"github.com/fnhost/fnhost/fault"
	"github.com/fnhost/fnhost/manifest"
	"github.com/fnhost/fnhost/runtime"
	jsruntime "github.com/fnhost/fnhost/runtime/js"
)

func newHarness(t *testing.T, depOpts ...depmod.Option) (*Loader, string) {
	t.Helper()
	reg := runtime.NewRegistry()
	reg.Register(jsruntime.New())
	return NewLoader(reg, depmod.NewPreloader(depOpts...)), t.TempDir()
}

func writeUnit(t *testing.T, dir, name, src string) {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
}

func jsManifest(name, source, bundleDir string, deps ...manifest.Dependency) *manifest.Manifest {
	return &manifest.Manifest{
		Name:         name,
		Runtime:      jsruntime.Name,
		Source:       source,
		BundleDir:    bundleDir,
		Dependencies: deps,
	}
}

func TestColdStartThenWarmReuse(t *testing.T) {
	l, dir := newHarness(t)
	writeUnit(t, dir, "fn.js", `function handler(event) { return { ok: true }; }`)
	m := jsManifest("fn", "fn.js", dir)

	a1, err := l.Load(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := l.Load(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Error("warm load returned a different artifact")
	}
	if n := l.LoadCount("fn"); n != 1 {
		t.Errorf("load attempts = %d, want 1", n)
	}
}

func TestConcurrentColdStartSingleFlight(t *testing.T) {
	l, dir := newHarness(t)
	writeUnit(t, dir, "fn.js", `function handler(event) { return 1; }`)
	m := jsManifest("fn", "fn.js", dir)

	const callers = 32
	arts := make([]*Artifact, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			arts[i], errs[i] = l.Load(context.Background(), m)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatal(errs[i])
		}
		if arts[i] != arts[0] {
			t.Fatalf("caller %d received a different artifact", i)
		}
	}
	if n := l.LoadCount("fn"); n != 1 {
		t.Errorf("load attempts = %d, want 1", n)
	}
}

func TestCachedFailureSurfacesUntilEvicted(t *testing.T) {
	l, dir := newHarness(t)
	writeUnit(t, dir, "fn.js", `var broken = 1;`) // no entry point
	m := jsManifest("fn", "fn.js", dir)

	_, err := l.Load(context.Background(), m)
	if !fault.Is(err, fault.KindContractViolation) {
		t.Fatalf("err = %v", err)
	}

	// The failure is cached: same error, no second attempt.
	_, err2 := l.Load(context.Background(), m)
	if err2 == nil || err2.Error() != err.Error() {
		t.Fatalf("cached failure changed: %v", err2)
	}
	if n := l.LoadCount("fn"); n != 1 {
		t.Fatalf("load attempts = %d, want 1", n)
	}

	// Redeploy: the external trigger rewrites the unit and evicts.
	writeUnit(t, dir, "fn.js", `function handler(event) { return "fixed"; }`)
	l.Evict("fn")

	a, err := l.Load(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	out, err := a.Handler.Invoke(context.Background(), nil)
	if err != nil || out != "fixed" {
		t.Fatalf("out = %#v, err = %v", out, err)
	}
	if n := l.LoadCount("fn"); n != 2 {
		t.Errorf("load attempts = %d, want 2", n)
	}
}

func TestUnknownRuntime(t *testing.T) {
	l, dir := newHarness(t)
	m := &manifest.Manifest{Name: "fn", Runtime: "cobol", Source: "fn.cbl", BundleDir: dir}
	_, err := l.Load(context.Background(), m)
	if !fault.Is(err, fault.KindContractViolation) {
		t.Fatalf("err = %v", err)
	}
}

func TestMissingSourceUnit(t *testing.T) {
	l, dir := newHarness(t)
	m := jsManifest("fn", "nope.js", dir)
	_, err := l.Load(context.Background(), m)
	if !fault.Is(err, fault.KindContractViolation) {
		t.Fatalf("err = %v", err)
	}
}

func TestDependencyFailureIsFatalToColdStart(t *testing.T) {
	l, dir := newHarness(t)
	writeUnit(t, dir, "fn.js", `var g = require("ghost"); function handler(e) { return null; }`)
	m := jsManifest("fn", "fn.js", dir, manifest.Dependency{Name: "ghost"})

	_, err := l.Load(context.Background(), m)
	if !fault.Is(err, fault.KindDependencyResolution) {
		t.Fatalf("err = %v", err)
	}
}

func TestDependenciesLoadedBeforeHandler(t *testing.T) {
	l, dir := newHarness(t, depmod.WithBuiltin("greeter",
		[]byte(`exports.greet = function (n) { return "Hi, " + (n === null || n === undefined ? "World" : n); };`)))
	writeUnit(t, dir, "fn.js",
		`var greet = require("greeter").greet;
		 function handler(event) { return { message: greet(event && event.name) }; }`)
	m := jsManifest("fn", "fn.js", dir, manifest.Dependency{Name: "greeter"})

	a, err := l.Load(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	out, err := a.Handler.Invoke(context.Background(), map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	if msg := out.(map[string]any)["message"]; msg != "Hi, Ada" {
		t.Errorf("message = %#v", msg)
	}
}
