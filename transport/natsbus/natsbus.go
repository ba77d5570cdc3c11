/*
Package natsbus carries controller requests and events over NATS.

Requests are JSON controller.Request messages published on "<subject>.requests"; every event the controller emits is
published as JSON on "<subject>.events". Trace context travels in the message headers in both directions:
a request's trace becomes the parent of its session, and every event of that session carries it back.
*/
package natsbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Redundancy/go-scan/controller"
)

var propagator = propagation.TraceContext{}

// RequestSubject is where requests for the controller serving subject are published
func RequestSubject(subject string) string {
	return subject + ".requests"
}

// EventSubject is where the controller serving subject publishes its events
func EventSubject(subject string) string {
	return subject + ".events"
}

// Reply is sent to requests that ask for one
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Bus publishes controller events and feeds requests to a controller
type Bus struct {
	conn    *nats.Conn
	subject string
	log     hclog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// New creates a Bus on conn. It is an EventSink from the start, and handles requests once Serve is called.
func New(conn *nats.Conn, subject string, logger hclog.Logger) *Bus {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Bus{
		conn:    conn,
		subject: subject,
		log:     logger.Named("natsbus"),
	}
}

// Emit publishes e on the event subject with the trace context of e.Context.
// Failures are logged; the session carries on regardless.
func (b *Bus) Emit(e controller.Event) {
	data, err := e.Marshal()
	if err != nil {
		b.log.Error("could not encode event", "type", e.Type, "error", err)
		return
	}

	if err := publish(e.Context(), b.conn, EventSubject(b.subject), data); err != nil {
		b.log.Warn("could not publish event", "type", e.Type, "session", e.Session, "error", err)
	}
}

// Serve subscribes to the request subject and hands each request to c, in the order received.
// It returns once the subscription is in place.
func (b *Bus) Serve(c *controller.Controller) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub != nil {
		return errors.New("already serving")
	}

	subject := RequestSubject(b.subject)

	sub, err := subscribe(b.conn, subject, func(ctx context.Context, msg *nats.Msg) {
		b.handle(ctx, c, msg)
	})
	if err != nil {
		return errors.Wrapf(err, "subscribing to %v", subject)
	}

	b.sub = sub
	b.log.Info("serving requests", "subject", subject, "events", EventSubject(b.subject))

	return b.conn.Flush()
}

func (b *Bus) handle(ctx context.Context, c *controller.Controller, msg *nats.Msg) {
	request, err := controller.ParseRequest(msg.Data)
	if err != nil {
		b.log.Warn("malformed request", "error", err)
		b.Emit(controller.Event{
			Type:  controller.ErrorEvent,
			Error: &controller.ErrorPayload{Message: err.Error(), Code: controller.CodeMalformed},
		}.WithContext(ctx))
	} else {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("request", string(request.Type)))
		b.log.Debug("request received", "type", request.Type, "source", request.Source)

		// failures have already been emitted as events
		err = c.Handle(ctx, request)
	}

	if msg.Reply == "" {
		return
	}

	reply := Reply{OK: err == nil}
	if err != nil {
		reply.Error = err.Error()
	}

	data, _ := json.Marshal(reply)
	if err := msg.Respond(data); err != nil {
		b.log.Warn("could not reply", "error", err)
	}
}

// Close stops handling requests, letting one in progress finish
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub == nil {
		return nil
	}

	err := b.sub.Drain()
	b.sub = nil
	return err
}

// Send publishes a request for the controller serving subject, with the trace context of ctx
func Send(ctx context.Context, conn *nats.Conn, subject string, request controller.Request) error {
	data, err := json.Marshal(request)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}
	return publish(ctx, conn, RequestSubject(subject), data)
}

// Events subscribes to the events of the controller serving subject
func Events(conn *nats.Conn, subject string, handler func(controller.Event)) (*nats.Subscription, error) {
	return conn.Subscribe(EventSubject(subject), func(msg *nats.Msg) {
		var e controller.Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return
		}
		handler(e)
	})
}

func publish(ctx context.Context, conn *nats.Conn, subject string, data []byte) error {
	header := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(header))

	return conn.PublishMsg(&nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  header,
	})
}

// subscribe extracts the trace context of each message and handles it inside a consumer span
func subscribe(conn *nats.Conn, subject string, handler func(context.Context, *nats.Msg)) (*nats.Subscription, error) {
	return conn.Subscribe(subject, func(msg *nats.Msg) {
		ctx := propagator.Extract(context.Background(), propagation.HeaderCarrier(msg.Header))

		ctx, span := otel.Tracer("github.com/Redundancy/go-scan/natsbus").Start(ctx, "natsbus.request",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(attribute.String("subject", msg.Subject)),
		)
		defer span.End()

		handler(ctx, msg)
	})
}
