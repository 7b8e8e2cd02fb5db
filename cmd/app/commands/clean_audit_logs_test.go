package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRunCleanAuditLogs(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("text-output", func(t *testing.T) {
		mockRep := &mockReporter{}
		mockRep.On("CleanupExpiredLogs", ctx, int64(42), mock.AnythingOfType("time.Time")).
			Return(int64(100), nil)

		var out bytes.Buffer
		err := RunCleanAuditLogs(ctx, mockRep, logger, &out, 42, 2555, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Successfully deleted 100 audit log(s) older than 2555 day(s)")
		mockRep.AssertExpectations(t)
	})

	t.Run("json-output", func(t *testing.T) {
		mockRep := &mockReporter{}
		mockRep.On("CleanupExpiredLogs", ctx, int64(42), mock.AnythingOfType("time.Time")).
			Return(int64(50), nil)

		var out bytes.Buffer
		err := RunCleanAuditLogs(ctx, mockRep, logger, &out, 42, 30, "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), `"count": 50`)
		mockRep.AssertExpectations(t)
	})

	t.Run("invalid-days", func(t *testing.T) {
		mockRep := &mockReporter{}
		err := RunCleanAuditLogs(ctx, mockRep, logger, &bytes.Buffer{}, 42, -1, "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "days must be a positive number")
	})

	t.Run("invalid-organization-id", func(t *testing.T) {
		mockRep := &mockReporter{}
		err := RunCleanAuditLogs(ctx, mockRep, logger, &bytes.Buffer{}, 0, 30, "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "organization-id must be a positive number")
	})
}
