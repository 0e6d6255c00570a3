// Package lambdaserver runs the host as an AWS Lambda function. Each Lambda
// invocation carries an envelope naming the target function and its wire
// payload; the response is the serialized result or the structured error
// object.
package lambdaserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/tidwall/gjson"

	"github.com/fnhost/fnhost/invoke"
)

var app *invoke.Engine

// Serve registers the engine with the Lambda runtime. It blocks for the
// lifetime of the execution environment.
func Serve(e *invoke.Engine) {
	app = e
	lambda.Start(Invoke)
}

// Close stops accepting invocations.
func Close() {
	if app != nil {
		app.Stop()
	}
}

type envelope struct {
	function string
	payload  []byte
}

// parseEnvelope splits a Lambda event into the target function name and the
// raw wire payload. The payload is optional; anything JSON-shaped is passed
// through untouched.
func parseEnvelope(raw []byte) (envelope, error) {
	if !gjson.ValidBytes(raw) {
		return envelope{}, errors.New("lambdaserver: event is not valid JSON")
	}
	fn := gjson.GetBytes(raw, "function")
	if fn.Type != gjson.String || fn.String() == "" {
		return envelope{}, errors.New(`lambdaserver: event has no "function" field`)
	}
	env := envelope{function: fn.String()}
	if p := gjson.GetBytes(raw, "payload"); p.Exists() {
		env.payload = []byte(p.Raw)
	}
	return env, nil
}

// Invoke handles one Lambda event. Per-invocation failures come back as the
// structured error object; only envelope and host-level conditions surface
// as Lambda invocation errors.
func Invoke(ctx context.Context, raw []byte) ([]byte, error) {
	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, err
	}

	res, err := app.Invoke(ctx, env.function, env.payload)
	if err != nil {
		return nil, fmt.Errorf("lambdaserver: %w", err)
	}
	return res.Wire(), nil
}
