// Package logctx enriches slog records with form-session context carried on
// a context.Context. Hosts wrap their base handler once and then attach
// form/step data as it becomes known; every log line emitted under that
// context picks the attributes up automatically.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler, appending any form or step data found
// on the record's context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if fd, ok := ctx.Value(formDataKey{}).(*FormData); ok {
		r.AddAttrs(slog.Group("form",
			slog.String("id", fd.FormID),
			slog.String("source", fd.Source),
		))
	}

	if sd, ok := ctx.Value(stepDataKey{}).(*StepData); ok {
		r.AddAttrs(slog.Group("step",
			slog.String("id", sd.StepID),
			slog.Int("index", sd.Index),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type formDataKey struct{}

// FormData identifies the form session a log line belongs to.
type FormData struct {
	FormID string
	Source string // markup source, e.g. a file path
}

// WithFormData attaches form identification to ctx.
func WithFormData(ctx context.Context, data *FormData) context.Context {
	return context.WithValue(ctx, formDataKey{}, data)
}

type stepDataKey struct{}

// StepData identifies the step being processed.
type StepData struct {
	StepID string
	Index  int
}

// WithStepData attaches step identification to ctx.
func WithStepData(ctx context.Context, data *StepData) context.Context {
	return context.WithValue(ctx, stepDataKey{}, data)
}
