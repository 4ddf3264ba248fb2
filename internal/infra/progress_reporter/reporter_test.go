package progressreporter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/internal/infra/eventbus/memory"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishProgress(ctx context.Context, p scanning.Progress) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func TestBrokerProgressReporter_ReportProgress(t *testing.T) {
	t.Parallel()

	progress := scanning.Progress{
		ScanID:    "scan-1",
		Phase:     scanning.PhaseCheckFinished,
		CheckID:   "api_health",
		Index:     1,
		Total:     4,
		Status:    "passed",
		Timestamp: time.Now(),
	}

	tests := []struct {
		name    string
		pubErr  error
		wantErr bool
	}{
		{name: "successfully publishes progress"},
		{name: "handles publisher error", pubErr: errors.New("publish failed"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pub := new(mockPublisher)
			pub.On("PublishProgress", mock.Anything, progress).Return(tt.pubErr).Once()

			r := New(pub, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
			err := r.ReportProgress(context.Background(), progress)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.pubErr)
				assert.Contains(t, err.Error(), "scan-1")
			} else {
				require.NoError(t, err)
			}
			pub.AssertExpectations(t)
		})
	}
}

func TestBrokerProgressReporter_DeliversToSubscribers(t *testing.T) {
	t.Parallel()

	broker := memory.NewBroker()
	var got []scanning.ProgressPhase
	require.NoError(t, broker.SubscribeScan(context.Background(), "scan-1", func(p scanning.Progress) error {
		got = append(got, p.Phase)
		return nil
	}))

	r := New(broker, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	ctx := context.Background()
	require.NoError(t, r.ReportProgress(ctx, scanning.Progress{ScanID: "scan-1", Phase: scanning.PhaseScanStarted}))
	require.NoError(t, r.ReportProgress(ctx, scanning.Progress{ScanID: "other", Phase: scanning.PhaseScanStarted}))
	require.NoError(t, r.ReportProgress(ctx, scanning.Progress{ScanID: "scan-1", Phase: scanning.PhaseScanFinished}))

	assert.Equal(t, []scanning.ProgressPhase{scanning.PhaseScanStarted, scanning.PhaseScanFinished}, got)
}
