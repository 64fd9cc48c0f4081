package jobs_test

import (
	"context"
	"testing"

	"github.com/buildkite/dagger-pipelines/internal/engine"
	"github.com/buildkite/dagger-pipelines/internal/engine/enginetest"
	"github.com/buildkite/dagger-pipelines/internal/jobs"
	"github.com/buildkite/dagger-pipelines/tracetools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T, r *jobs.Runner) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := tracetools.NewTracerProvider("dagger-pipelines-test", sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r.Tracer = tracetools.Tracer(tp)
	return sr
}

func spansNamed(spans []sdktrace.ReadOnlySpan, name string) []sdktrace.ReadOnlySpan {
	var out []sdktrace.ReadOnlySpan
	for _, s := range spans {
		if s.Name() == name {
			out = append(out, s)
		}
	}
	return out
}

func attr(s sdktrace.ReadOnlySpan, key attribute.Key) string {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestConcurrentTestsTracesEveryVersion(t *testing.T) {
	t.Parallel()

	e := &enginetest.Engine{
		SyncFunc: func(_ context.Context, spec engine.Spec) error {
			if spec.From == "python:3.9-slim-buster" {
				return &engine.ExecError{Cmd: []string{"pytest", "tests"}, ExitCode: 1}
			}
			return nil
		},
	}
	r, _, _ := newRunner(e, nil)
	sr := withRecorder(t, r)

	err := r.ConcurrentTests(context.Background(), jobs.TestConfig{
		Versions: []string{"3.8", "3.9", "3.10"},
	})
	require.Error(t, err)

	ended := sr.Ended()

	roots := spansNamed(ended, "jobs.concurrent_tests")
	require.Len(t, roots, 1)
	root := roots[0]
	assert.Equal(t, codes.Error, root.Status().Code)

	versions := spansNamed(ended, "jobs.python_tests")
	require.Len(t, versions, 3)

	for _, s := range versions {
		assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID(), "each version is a child of the job span")
		assert.Equal(t, root.SpanContext().TraceID(), s.SpanContext().TraceID())

		switch v := attr(s, "python.version"); v {
		case "3.9":
			assert.Equal(t, codes.Error, s.Status().Code)
			assert.Contains(t, s.Status().Description, `command "pytest tests" exited with status 1`)
			require.Len(t, s.Events(), 1)
			assert.Equal(t, "exception", s.Events()[0].Name)
		case "3.8", "3.10":
			assert.Equal(t, codes.Unset, s.Status().Code, v)
			assert.Empty(t, s.Events(), v)
		default:
			t.Errorf("unexpected python.version attribute %q", v)
		}
	}
}

func TestJobSpans(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		run  func(context.Context, *jobs.Runner) error
	}{
		{
			name: "jobs.simple_test",
			run: func(ctx context.Context, r *jobs.Runner) error {
				return r.SimpleTest(ctx, jobs.TestConfig{})
			},
		},
		{
			name: "jobs.build_image",
			run: func(ctx context.Context, r *jobs.Runner) error {
				_, err := r.BuildImage(ctx, jobs.BuildConfig{})
				return err
			},
		},
		{
			name: "jobs.import_local_image",
			run: func(ctx context.Context, r *jobs.Runner) error {
				_, err := r.ImportLocalImage(ctx, jobs.ImportConfig{})
				return err
			},
		},
		{
			name: "jobs.rollout",
			run: func(ctx context.Context, r *jobs.Runner) error {
				_, err := r.Rollout(ctx, jobs.RolloutConfig{Cluster: "prod", Region: "us-east-1"})
				return err
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			r, _, _ := newRunner(&enginetest.Engine{}, map[string]string{"AWS": "1"})
			sr := withRecorder(t, r)

			require.NoError(t, test.run(context.Background(), r))

			ended := sr.Ended()
			require.Len(t, ended, 1)
			assert.Equal(t, test.name, ended[0].Name())
			assert.Equal(t, codes.Unset, ended[0].Status().Code)
		})
	}
}

func TestJobSpanRecordsFailure(t *testing.T) {
	t.Parallel()

	e := &enginetest.Engine{
		SyncFunc: func(context.Context, engine.Spec) error {
			return &engine.ExecError{Cmd: []string{"pytest", "tests/"}, ExitCode: 2}
		},
	}
	r, _, _ := newRunner(e, nil)
	sr := withRecorder(t, r)

	require.Error(t, r.SimpleTest(context.Background(), jobs.TestConfig{}))

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "python:3.10.9-slim-buster", attr(ended[0], "image"))
}
