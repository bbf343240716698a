package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dashbridge/creditbridge/ulogger"
)

// EndFunc finishes a span. An error passed in is recorded on the span and
// appended to the completion log line.
type EndFunc func(err ...error)

// UTracer wraps an otel tracer with the start options used across the
// services.
type UTracer struct {
	tracer trace.Tracer
	logger ulogger.Logger
}

// Tracer returns a tracer for the named component. An optional logger is
// used for spans that carry no WithLogMessage logger of their own.
func Tracer(name string, logger ...ulogger.Logger) *UTracer {
	u := &UTracer{
		tracer: otel.Tracer(name),
	}

	if len(logger) > 0 && logger[0] != nil {
		u.logger = logger[0]
	}

	return u
}

type startOptions struct {
	attributes []attribute.KeyValue
	logger     ulogger.Logger
	logMessage string
}

// StartOption configures a span started with UTracer.Start.
type StartOption func(*startOptions)

// WithTag adds a string attribute to the span.
func WithTag(key, value string) StartOption {
	return func(o *startOptions) {
		o.attributes = append(o.attributes, attribute.String(key, value))
	}
}

// WithLogMessage logs the message when the span starts and again with
// "DONE in <took>" when it ends. An error handed to the EndFunc is appended
// to the completion line.
func WithLogMessage(logger ulogger.Logger, format string, args ...interface{}) StartOption {
	return func(o *startOptions) {
		o.logger = logger
		o.logMessage = fmt.Sprintf(format, args...)
	}
}

// Start begins a span for the named operation. The returned EndFunc must be
// called exactly once; passing it an error marks the span failed.
func (u *UTracer) Start(ctx context.Context, operation string, opts ...StartOption) (context.Context, trace.Span, EndFunc) {
	options := &startOptions{logger: u.logger}
	for _, o := range opts {
		o(options)
	}

	spanOpts := make([]trace.SpanStartOption, 0, 1)
	if len(options.attributes) > 0 {
		spanOpts = append(spanOpts, trace.WithAttributes(options.attributes...))
	}

	spanCtx, span := u.tracer.Start(ctx, operation, spanOpts...)

	start := time.Now()

	if options.logger != nil && options.logMessage != "" {
		options.logger.Debugf("%s", options.logMessage)
	}

	endFn := func(errs ...error) {
		var err error
		if len(errs) > 0 && errs[0] != nil {
			err = errs[0]
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()

		if options.logger != nil && options.logMessage != "" {
			if err != nil {
				options.logger.Errorf("%s DONE in %s with error: %v", options.logMessage, time.Since(start), err)
			} else {
				options.logger.Debugf("%s DONE in %s", options.logMessage, time.Since(start))
			}
		}
	}

	return spanCtx, span, endFn
}
