package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// IdempotencyKeyHeader — имя metadata с ключом идемпотентности.
const IdempotencyKeyHeader = "idempotency-key"

type structHandler func(ctx context.Context) (*structpb.Struct, error)

// withIdempotency выполняет handler один раз на idempotency-key. Без ключа
// запрос выполняется как обычно. Повтор того же RPC с тем же телом получает
// сохранённый ответ или сохранённую ошибку.
func (s *MockService) withIdempotency(ctx context.Context, method string, req *structpb.Struct, handler structHandler) (*structpb.Struct, error) {
	if s.idemRepo == nil {
		return handler(ctx)
	}
	key, ok := readIdempotencyKey(ctx)
	if !ok {
		return handler(ctx)
	}

	fullMethod := FullMethod(method)
	hash, err := requestHash(req)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to hash idempotent request")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	held, err := s.idemRepo.Claim(domain.IdempotencyClaim{
		Key:         key,
		Method:      fullMethod,
		RequestHash: hash,
		ExpiresAt:   time.Now().UTC().Add(s.idempotencyTTL),
	})
	if err != nil {
		return s.replay(err, held)
	}

	resp, runErr := handler(ctx)
	if interrupted(ctx, runErr) {
		// отменённый запрос не даёт итога: ключ освобождается для повтора
		if err := s.idemRepo.Release(key); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"idempotency_key": key,
				"method":          method,
			}).Warn("failed to release idempotency key")
		}
		return resp, runErr
	}
	if err := s.idemRepo.Complete(key, outcomeOf(resp, runErr)); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"idempotency_key": key,
			"method":          method,
		}).Warn("failed to store idempotent outcome")
	}
	return resp, runErr
}

// replay превращает отказ Claim в ответ клиенту.
func (s *MockService) replay(claimErr error, held domain.IdempotencyRecord) (*structpb.Struct, error) {
	switch {
	case errors.Is(claimErr, domain.ErrIdempotencyMethodMismatch):
		return nil, statusFromError(domain.NewInvalidRequest("idempotency_key",
			"Keys for idempotent requests can only be used for the same endpoint they were first used for (%s).", held.Method))
	case errors.Is(claimErr, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists,
			"Keys for idempotent requests can only be used with the same parameters they were first used with.")
	case errors.Is(claimErr, domain.ErrIdempotencyKeyRequired):
		return nil, status.Error(codes.InvalidArgument, "idempotency-key metadata must not be empty")
	case !errors.Is(claimErr, domain.ErrIdempotencyKeyAlreadyExists):
		s.logger.WithError(claimErr).Warn("failed to claim idempotency key")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	switch held.Status {
	case domain.IdempotencyStatusProcessing:
		return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
	case domain.IdempotencyStatusDone:
		resp := new(structpb.Struct)
		if err := protojson.Unmarshal(held.Response, resp); err != nil {
			s.logger.WithError(err).WithField("idempotency_key", held.Key).Warn("failed to decode cached response")
			return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
		}
		return resp, nil
	case domain.IdempotencyStatusFailed:
		return nil, replayedFailure(held)
	default:
		return nil, status.Error(codes.Internal, "unknown idempotency record status")
	}
}

// interrupted сообщает, что запрос оборвала отмена или дедлайн, а не сам обработчик.
func interrupted(ctx context.Context, runErr error) bool {
	if runErr == nil {
		return false
	}
	if ctx.Err() != nil || errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(runErr) {
	case codes.Canceled, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

// outcomeOf сериализует ответ или gRPC-статус ошибки целиком, вместе
// с деталями invalid_request_error.
func outcomeOf(resp *structpb.Struct, runErr error) domain.IdempotencyOutcome {
	if runErr != nil {
		st := status.Convert(runErr)
		if st.Code() == codes.OK {
			st = status.New(codes.Internal, st.Message())
		}
		body, err := protojson.Marshal(st.Proto())
		if err != nil {
			body = nil
		}
		return domain.IdempotencyOutcome{Status: domain.IdempotencyStatusFailed, Response: body, Code: int(st.Code())}
	}

	if resp == nil {
		resp = &structpb.Struct{}
	}
	body, err := protojson.Marshal(resp)
	if err != nil {
		return domain.IdempotencyOutcome{Status: domain.IdempotencyStatusFailed, Code: int(codes.Internal)}
	}
	return domain.IdempotencyOutcome{Status: domain.IdempotencyStatusDone, Response: body}
}

// replayedFailure восстанавливает сохранённую ошибку. Если тело не читается,
// остаётся хотя бы код.
func replayedFailure(held domain.IdempotencyRecord) error {
	if len(held.Response) > 0 {
		saved := new(spb.Status)
		if err := protojson.Unmarshal(held.Response, saved); err == nil && codes.Code(saved.GetCode()) != codes.OK {
			return status.FromProto(saved).Err()
		}
	}

	code := codes.Internal
	if held.Code > int(codes.OK) && held.Code <= int(codes.Unauthenticated) {
		code = codes.Code(uint32(held.Code)) //nolint:gosec // range checked above.
	}
	return status.Error(code, "previous request with the same idempotency key failed")
}

func readIdempotencyKey(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, value := range md.Get(IdempotencyKeyHeader) {
		if key := strings.TrimSpace(value); key != "" {
			return key, true
		}
	}
	return "", false
}

// requestHash — sha256 от детерминированного protobuf-представления тела.
// Метод в хэш не входит: он хранится в записи отдельно.
func requestHash(req proto.Message) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
