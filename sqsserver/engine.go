// Package sqsserver is the asynchronous front door: it long-polls an SQS
// queue for invocation envelopes and feeds them to the engine. A handled
// message is deleted whether the invocation succeeded or produced a
// structured error; only admission conditions (stopped engine, over
// capacity) leave the message for redelivery.
package sqsserver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fnhost/fnhost/invoke"
)

type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Engine struct {
	*Options

	app     *invoke.Engine
	client  SQSClient
	running atomic.Int32
	wg      sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewEngine(app *invoke.Engine, opts ...Option) *Engine {
	e := &Engine{
		Options: NewOptions(opts...),
		app:     app,
	}

	if e.Options.SQSClient != nil {
		e.client = e.Options.SQSClient
	} else {
		cfg, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			panic(err)
		}
		e.client = sqs.NewFromConfig(cfg)
	}

	e.running.Store(1)
	return e
}

func (e *Engine) Start() { e.running.Store(1) }

func (e *Engine) Stop() {
	e.running.Store(0)
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

func (e *Engine) IsRunning() bool { return e.running.Load() == 1 }

// Run polls the queue with Workers concurrent loops until ctx is canceled or
// Stop is called. It blocks.
func (e *Engine) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	if !e.IsRunning() {
		// Stop won the race with startup.
		cancel()
		return
	}

	workers := e.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.pollLoop(ctx)
		}()
	}
	e.wg.Wait()
}

func (e *Engine) pollLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil || !e.IsRunning() {
			return
		}

		out, err := e.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(e.QueueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     e.WaitTimeSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.Logger.Error().Err(err).Msg("receive failed")
			continue
		}

		for _, msg := range out.Messages {
			if e.handleMessage(ctx, aws.ToString(msg.Body)) {
				if _, err := e.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
					QueueUrl:      aws.String(e.QueueURL),
					ReceiptHandle: msg.ReceiptHandle,
				}); err != nil {
					e.Logger.Error().Err(err).Msg("delete failed")
				}
			}
		}
	}
}

// handleMessage runs one envelope and reports whether the message is
// handled. Unparseable envelopes are handled (poison messages are dropped,
// not redriven); admission rejections are not.
func (e *Engine) handleMessage(ctx context.Context, body string) bool {
	if !gjson.Valid(body) {
		e.Logger.Error().Str("body", body).Msg("message is not valid JSON")
		return true
	}
	fn := gjson.Get(body, "function")
	if fn.Type != gjson.String || fn.String() == "" {
		e.Logger.Error().Str("body", body).Msg("message has no function field")
		return true
	}

	var payload []byte
	if p := gjson.Get(body, "payload"); p.Exists() {
		payload = []byte(p.Raw)
	}

	res, err := e.app.Invoke(ctx, fn.String(), payload)
	if err != nil {
		if errors.Is(err, invoke.ErrOverCapacity) || errors.Is(err, invoke.ErrStopped) {
			return false
		}
		e.Logger.Error().Err(err).Str("function", fn.String()).Msg("invocation rejected")
		return true
	}

	if res.OK() {
		e.Logger.Info().Str("id", res.ID).Str("function", res.Function).Msg("invocation complete")
	} else {
		e.Logger.Warn().Str("id", res.ID).Str("function", res.Function).
			Str("error", res.Err.Error()).Msg("invocation failed")
	}

	if e.ReplyMode {
		if reply := gjson.Get(body, "replyTo").String(); reply != "" {
			e.sendReply(ctx, reply, gjson.Get(body, "correlationId").String(), res)
		}
	}
	return true
}

func (e *Engine) sendReply(ctx context.Context, queueURL, correlationID string, res *invoke.Result) {
	body, _ := sjson.Set("", "id", res.ID)
	if correlationID != "" {
		body, _ = sjson.Set(body, "correlationId", correlationID)
	}
	body, _ = sjson.SetRaw(body, "result", string(res.Wire()))

	if _, err := e.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(body),
	}); err != nil {
		e.Logger.Error().Err(err).Str("queue", queueURL).Msg("reply failed")
	}
}
