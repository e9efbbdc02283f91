package logger

import "context"

type logFieldsKey struct{}

// LogFields are attached to every record logged with the carrying context.
type LogFields struct {
	RunID     string
	SourceID  string
	Component string
}

// GetLogFields returns the fields stored in ctx, or the zero value.
func GetLogFields(ctx context.Context) LogFields {
	if f, ok := ctx.Value(logFieldsKey{}).(LogFields); ok {
		return f
	}
	return LogFields{}
}

func withFields(ctx context.Context, update func(*LogFields)) context.Context {
	f := GetLogFields(ctx)
	update(&f)
	return context.WithValue(ctx, logFieldsKey{}, f)
}

// WithRunID tags ctx with an orchestration run id.
func WithRunID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *LogFields) { f.RunID = id })
}

// WithSourceID tags ctx with an analysis source id.
func WithSourceID(ctx context.Context, id string) context.Context {
	return withFields(ctx, func(f *LogFields) { f.SourceID = id })
}

// WithComponent tags ctx with the emitting component.
func WithComponent(ctx context.Context, name string) context.Context {
	return withFields(ctx, func(f *LogFields) { f.Component = name })
}
