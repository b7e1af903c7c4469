package grpcsvc

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
	"github.com/vladislavdragonenkov/chargemock/internal/engine"
)

// MockService реализует gRPC API поверх движка песочницы.
type MockService struct {
	engine         *engine.Engine
	idemRepo       domain.IdempotencyRepository
	logger         *log.Entry
	idempotencyTTL time.Duration
}

// NewMockService конструирует сервис. idemRepo может быть nil: тогда
// idempotency-key игнорируется.
func NewMockService(eng *engine.Engine, idemRepo domain.IdempotencyRepository, logger *log.Entry) *MockService {
	if logger == nil {
		logger = log.New().WithField("component", "mock-service")
	}
	return &MockService{
		engine:         eng,
		idemRepo:       idemRepo,
		logger:         logger,
		idempotencyTTL: domain.DefaultIdempotencyTTL,
	}
}

// CreateCharge создаёт платёж.
func (s *MockService) CreateCharge(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.withIdempotency(ctx, MethodCreateCharge, req, func(ctx context.Context) (*structpb.Struct, error) {
		charge, err := s.engine.CreateCharge(ctx, paramsFromStruct(req))
		return s.respond(MethodCreateCharge, charge, err)
	})
}

// RetrieveCharge возвращает платёж по полю id.
func (s *MockService) RetrieveCharge(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	params := paramsFromStruct(req)
	charge, err := s.engine.RetrieveCharge(ctx, stringField(params, "id"), expandField(params)...)
	return s.respond(MethodRetrieveCharge, charge, err)
}

// ListCharges возвращает страницу платежей.
func (s *MockService) ListCharges(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	lp, err := engine.ParseListParams(paramsFromStruct(req))
	if err != nil {
		return s.respond(MethodListCharges, nil, err)
	}
	list, err := s.engine.ListCharges(ctx, lp)
	return s.respond(MethodListCharges, list, err)
}

// CaptureCharge списывает авторизованный платёж; id берётся из поля id.
func (s *MockService) CaptureCharge(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.withIdempotency(ctx, MethodCaptureCharge, req, func(ctx context.Context) (*structpb.Struct, error) {
		params := paramsFromStruct(req)
		chargeID := stringField(params, "id")
		delete(params, "id")
		charge, err := s.engine.CaptureCharge(ctx, chargeID, params)
		return s.respond(MethodCaptureCharge, charge, err)
	})
}

// CreateCustomer создаёт покупателя.
func (s *MockService) CreateCustomer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.withIdempotency(ctx, MethodCreateCustomer, req, func(ctx context.Context) (*structpb.Struct, error) {
		customer, err := s.engine.CreateCustomer(ctx, paramsFromStruct(req))
		return s.respond(MethodCreateCustomer, customer, err)
	})
}

// RetrieveCustomer возвращает покупателя по полю id.
func (s *MockService) RetrieveCustomer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	params := paramsFromStruct(req)
	customer, err := s.engine.RetrieveCustomer(ctx, stringField(params, "id"), expandField(params)...)
	return s.respond(MethodRetrieveCustomer, customer, err)
}

// ListCustomers возвращает страницу покупателей.
func (s *MockService) ListCustomers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	lp, err := engine.ParseListParams(paramsFromStruct(req))
	if err != nil {
		return s.respond(MethodListCustomers, nil, err)
	}
	list, err := s.engine.ListCustomers(ctx, lp)
	return s.respond(MethodListCustomers, list, err)
}

// CreateToken выпускает одноразовый токен карты.
func (s *MockService) CreateToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.withIdempotency(ctx, MethodCreateToken, req, func(ctx context.Context) (*structpb.Struct, error) {
		token, err := s.engine.CreateToken(ctx, paramsFromStruct(req))
		return s.respond(MethodCreateToken, token, err)
	})
}

// RetrieveBalanceTransaction возвращает проводку по полю id.
func (s *MockService) RetrieveBalanceTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	txn, err := s.engine.RetrieveBalanceTransaction(ctx, stringField(paramsFromStruct(req), "id"))
	return s.respond(MethodRetrieveBalanceTransaction, txn, err)
}

// Reset очищает состояние песочницы вместе с ключами идемпотентности:
// сохранённые ответы ссылались бы на удалённые объекты.
func (s *MockService) Reset(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s.engine.Reset()
	if s.idemRepo != nil {
		if err := s.idemRepo.Purge(); err != nil {
			s.logger.WithError(err).Error("failed to purge idempotency keys")
			return nil, status.Error(codes.Internal, "failed to reset idempotency keys")
		}
	}
	return structpb.NewStruct(map[string]any{"object": "reset", "ok": true})
}

// respond кодирует результат или переводит ошибку в gRPC-статус.
func (s *MockService) respond(method string, result any, err error) (*structpb.Struct, error) {
	if err != nil {
		if ire, ok := domain.AsInvalidRequest(err); ok {
			s.logger.WithFields(log.Fields{
				"method":      method,
				"param":       ire.Param,
				"http_status": ire.HTTPStatus,
			}).Debug("request rejected")
		} else {
			s.logger.WithError(err).WithField("method", method).Warn("request failed")
		}
		return nil, statusFromError(err)
	}

	out, err := toStruct(result)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Error("failed to encode response")
		return nil, statusFromError(err)
	}
	return out, nil
}

var _ MockServiceServer = (*MockService)(nil)
