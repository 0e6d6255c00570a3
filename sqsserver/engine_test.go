package sqsserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/tidwall/gjson"

	"github.com/fnhost/fnhost/invoke"
	"github.com/fnhost/fnhost/manifest"
	"github.com/fnhost/fnhost/runtime"
	jsruntime "github.com/fnhost/fnhost/runtime/js"
)

type fakeClient struct {
	mu      sync.Mutex
	queue   []types.Message
	deleted []string
	sent    []*sqs.SendMessageInput
}

func (f *fakeClient) push(id, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, types.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("rh-" + id),
		Body:          aws.String(body),
	})
}

func (f *fakeClient) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	n := len(f.queue)
	if n > 10 {
		n = 10
	}
	msgs := f.queue[:n]
	f.queue = f.queue[n:]
	f.mu.Unlock()

	if len(msgs) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *fakeClient) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeClient) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params)
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeClient) deletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

func newTestApp(t *testing.T) *invoke.Engine {
	t.Helper()

	store, err := manifest.LoadFile("testdata/functions.yaml")
	if err != nil {
		t.Fatalf("load manifests: %v", err)
	}
	reg := runtime.NewRegistry()
	reg.Register(jsruntime.New())
	return invoke.NewEngine(store, reg, nil, nil)
}

func TestPollHandlesAndDeletes(t *testing.T) {
	client := &fakeClient{}
	client.push("m1", `{"function":"hello","payload":{"name":"Ada"},"replyTo":"reply-queue","correlationId":"c-1"}`)
	client.push("m2", `{"function":"throws","payload":{}}`)
	client.push("m3", `not json at all`)
	client.push("m4", `{"function":"no-such-function"}`)

	e := NewEngine(newTestApp(t),
		WithSQSClient(client),
		WithQueueURL("source-queue"),
		WithReplyMode(true),
	)

	done := make(chan struct{})
	go func() {
		e.Run(context.Background())
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for client.deletedCount() < 4 {
		select {
		case <-deadline:
			t.Fatalf("only %d messages handled", client.deletedCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
	e.Stop()
	<-done

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.deleted) != 4 {
		t.Fatalf("deleted %d messages, want 4", len(client.deleted))
	}
	if len(client.sent) != 1 {
		t.Fatalf("sent %d replies, want 1", len(client.sent))
	}
	reply := client.sent[0]
	if got := aws.ToString(reply.QueueUrl); got != "reply-queue" {
		t.Fatalf("reply queue = %q", got)
	}
	body := aws.ToString(reply.MessageBody)
	if got := gjson.Get(body, "correlationId").String(); got != "c-1" {
		t.Fatalf("correlationId = %q, body = %s", got, body)
	}
	if got := gjson.Get(body, "result.message").String(); got != "Hello, Ada!" {
		t.Fatalf("result = %s", gjson.Get(body, "result").Raw)
	}
}

func TestAdmissionRejectionIsNotHandled(t *testing.T) {
	app := newTestApp(t)
	e := NewEngine(app, WithSQSClient(&fakeClient{}), WithQueueURL("source-queue"))

	app.Stop()
	if e.handleMessage(context.Background(), `{"function":"hello","payload":{}}`) {
		t.Fatal("stopped engine handled a message")
	}

	app.Start()
	if !e.handleMessage(context.Background(), `{"function":"hello","payload":{}}`) {
		t.Fatal("running engine left a message unhandled")
	}
}

func TestStopRacingStartup(t *testing.T) {
	app := newTestApp(t)
	for i := 0; i < 50; i++ {
		e := NewEngine(app, WithSQSClient(&fakeClient{}), WithQueueURL("source-queue"))

		done := make(chan struct{})
		go func() {
			e.Run(context.Background())
			close(done)
		}()
		e.Stop()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return after Stop")
		}
	}
}

func TestConfigOption(t *testing.T) {
	opts := NewOptions(WithConfig([]byte("sqs:\n  queueUrl: q\n  workers: 4\n  waitTimeSeconds: 5\n  reply: true\n")))
	if opts.QueueURL != "q" || opts.Workers != 4 || opts.WaitTimeSeconds != 5 || !opts.ReplyMode {
		t.Fatalf("options = %+v", opts)
	}
}
