package recorder

import "context"

// NoopRecorder is a no-op implementation used when the job journal is disabled.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordJobRun(_ context.Context, _ *JobRun) error { return nil }
func (n *NoopRecorder) RecentJobRuns(_ context.Context, _ int) ([]JobRun, error) {
	return nil, nil
}
func (n *NoopRecorder) Close() error { return nil }
