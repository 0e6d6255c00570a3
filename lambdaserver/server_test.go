package lambdaserver

import (
	"context"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/fnhost/fnhost/invoke"
	"github.com/fnhost/fnhost/manifest"
	"github.com/fnhost/fnhost/runtime"
	jsruntime "github.com/fnhost/fnhost/runtime/js"
)

func setupApp(t *testing.T) {
	t.Helper()

	store, err := manifest.LoadFile("testdata/functions.yaml")
	if err != nil {
		t.Fatalf("load manifests: %v", err)
	}
	reg := runtime.NewRegistry()
	reg.Register(jsruntime.New())

	app = invoke.NewEngine(store, reg, nil, nil)
	t.Cleanup(func() { app = nil })
}

func TestParseEnvelope(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"function":"hello","payload":{"name":"Ada"}}`))
	if err != nil {
		t.Fatalf("parseEnvelope: %v", err)
	}
	if env.function != "hello" {
		t.Fatalf("function = %q", env.function)
	}
	if got, want := string(env.payload), `{"name":"Ada"}`; got != want {
		t.Fatalf("payload = %s, want %s", got, want)
	}

	env, err = parseEnvelope([]byte(`{"function":"hello"}`))
	if err != nil {
		t.Fatalf("parseEnvelope without payload: %v", err)
	}
	if env.payload != nil {
		t.Fatalf("payload = %s, want none", env.payload)
	}

	for _, raw := range []string{`{}`, `{"function":42}`, `not json`, `{"function":""}`} {
		if _, err := parseEnvelope([]byte(raw)); err == nil {
			t.Fatalf("parseEnvelope(%s) accepted", raw)
		}
	}
}

func TestInvoke(t *testing.T) {
	setupApp(t)

	out, err := Invoke(context.Background(), []byte(`{"function":"hello","payload":{"name":"Ada"}}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got, want := string(out), `{"message":"Hello, Ada!"}`; got != want {
		t.Fatalf("out = %s, want %s", got, want)
	}
}

func TestInvokeCarriesStructuredErrors(t *testing.T) {
	setupApp(t)

	// A handler failure is data, not a Lambda invocation error.
	out, err := Invoke(context.Background(), []byte(`{"function":"throws","payload":{}}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if kind := gjson.GetBytes(out, "kind").String(); kind != "HandlerExecutionError" {
		t.Fatalf("kind = %q, out = %s", kind, out)
	}

	// An unknown function is a host condition and surfaces as an error.
	if _, err := Invoke(context.Background(), []byte(`{"function":"no-such-function"}`)); err == nil {
		t.Fatal("unknown function accepted")
	}
}
