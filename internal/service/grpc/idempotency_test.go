package grpcsvc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
	"github.com/vladislavdragonenkov/chargemock/internal/engine"
	"github.com/vladislavdragonenkov/chargemock/internal/storage/memory"
)

func newIdempotentService(t *testing.T) (*MockService, domain.IdempotencyRepository) {
	t.Helper()
	repo := memory.NewIdempotencyRepository()
	return NewMockService(engine.New(memory.NewObjectStore()), repo, nil), repo
}

func keyedContext(key string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(IdempotencyKeyHeader, key))
}

func TestWithIdempotency_InterruptedRequestReleasesKey(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "canceled", err: status.Error(codes.Canceled, "context canceled")},
		{name: "deadline", err: status.Error(codes.DeadlineExceeded, "context deadline exceeded")},
		{name: "raw context error", err: context.Canceled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo := newIdempotentService(t)
			req, err := structpb.NewStruct(map[string]any{"amount": 100})
			require.NoError(t, err)
			ctx := keyedContext("retry-me")

			_, err = svc.withIdempotency(ctx, MethodCreateCharge, req, func(context.Context) (*structpb.Struct, error) {
				return nil, tc.err
			})
			require.Error(t, err)

			_, err = repo.Get("retry-me")
			require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

			calls := 0
			resp, err := svc.withIdempotency(ctx, MethodCreateCharge, req, func(context.Context) (*structpb.Struct, error) {
				calls++
				return structpb.NewStruct(map[string]any{"id": "ch_retry"})
			})
			require.NoError(t, err)
			require.Equal(t, 1, calls)
			require.Equal(t, "ch_retry", resp.AsMap()["id"])

			record, err := repo.Get("retry-me")
			require.NoError(t, err)
			require.Equal(t, domain.IdempotencyStatusDone, record.Status)
		})
	}
}

func TestWithIdempotency_CanceledCallerContextReleasesKey(t *testing.T) {
	svc, repo := newIdempotentService(t)
	req, err := structpb.NewStruct(map[string]any{"amount": 100})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(keyedContext("gone"))
	_, err = svc.withIdempotency(ctx, MethodCreateCharge, req, func(context.Context) (*structpb.Struct, error) {
		cancel()
		return nil, status.Error(codes.Internal, "internal error")
	})
	require.Equal(t, codes.Internal, status.Code(err))

	_, err = repo.Get("gone")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

func TestWithIdempotency_HandlerFailureIsCached(t *testing.T) {
	svc, repo := newIdempotentService(t)
	req, err := structpb.NewStruct(map[string]any{"amount": 100})
	require.NoError(t, err)
	ctx := keyedContext("failed")

	_, err = svc.withIdempotency(ctx, MethodCreateCharge, req, func(context.Context) (*structpb.Struct, error) {
		return nil, status.Error(codes.Internal, "internal error")
	})
	require.Equal(t, codes.Internal, status.Code(err))

	record, err := repo.Get("failed")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, record.Status)

	_, err = svc.withIdempotency(ctx, MethodCreateCharge, req, func(context.Context) (*structpb.Struct, error) {
		t.Fatal("handler must not run for a completed key")
		return nil, nil
	})
	require.Equal(t, codes.Internal, status.Code(err))
}
