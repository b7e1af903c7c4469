package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// Client — типизированный клиент MockService. Ошибки запроса возвращаются
// как *domain.InvalidRequestError, остальные — как gRPC-статусы.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient создаёт клиента поверх готового соединения.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithIdempotencyKey добавляет idempotency-key в исходящую metadata.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, IdempotencyKeyHeader, key)
}

// CreateCharge создаёт платёж.
func (c *Client) CreateCharge(ctx context.Context, params domain.Params, opts ...grpc.CallOption) (domain.Charge, error) {
	return call[domain.Charge](ctx, c.cc, MethodCreateCharge, params, opts...)
}

// RetrieveCharge загружает платёж по ID.
func (c *Client) RetrieveCharge(ctx context.Context, chargeID string, expand ...string) (domain.Charge, error) {
	return call[domain.Charge](ctx, c.cc, MethodRetrieveCharge, withID(chargeID, expandParams(expand)))
}

// ListCharges возвращает страницу платежей.
func (c *Client) ListCharges(ctx context.Context, params domain.Params, opts ...grpc.CallOption) (domain.List[domain.Charge], error) {
	return call[domain.List[domain.Charge]](ctx, c.cc, MethodListCharges, params, opts...)
}

// CaptureCharge списывает авторизованный платёж.
func (c *Client) CaptureCharge(ctx context.Context, chargeID string, params domain.Params, opts ...grpc.CallOption) (domain.Charge, error) {
	return call[domain.Charge](ctx, c.cc, MethodCaptureCharge, withID(chargeID, params), opts...)
}

// CreateCustomer создаёт покупателя.
func (c *Client) CreateCustomer(ctx context.Context, params domain.Params, opts ...grpc.CallOption) (domain.Customer, error) {
	return call[domain.Customer](ctx, c.cc, MethodCreateCustomer, params, opts...)
}

// RetrieveCustomer загружает покупателя по ID.
func (c *Client) RetrieveCustomer(ctx context.Context, customerID string, expand ...string) (domain.Customer, error) {
	return call[domain.Customer](ctx, c.cc, MethodRetrieveCustomer, withID(customerID, expandParams(expand)))
}

// ListCustomers возвращает страницу покупателей.
func (c *Client) ListCustomers(ctx context.Context, params domain.Params, opts ...grpc.CallOption) (domain.List[domain.Customer], error) {
	return call[domain.List[domain.Customer]](ctx, c.cc, MethodListCustomers, params, opts...)
}

// CreateToken выпускает токен карты.
func (c *Client) CreateToken(ctx context.Context, params domain.Params, opts ...grpc.CallOption) (domain.Token, error) {
	return call[domain.Token](ctx, c.cc, MethodCreateToken, params, opts...)
}

// RetrieveBalanceTransaction загружает проводку по ID.
func (c *Client) RetrieveBalanceTransaction(ctx context.Context, txnID string) (domain.BalanceTransaction, error) {
	return call[domain.BalanceTransaction](ctx, c.cc, MethodRetrieveBalanceTransaction, withID(txnID, nil))
}

// Reset очищает состояние песочницы.
func (c *Client) Reset(ctx context.Context) error {
	_, err := call[map[string]any](ctx, c.cc, MethodReset, nil)
	return err
}

func call[T any](ctx context.Context, cc grpc.ClientConnInterface, method string, params domain.Params, opts ...grpc.CallOption) (T, error) {
	var zero T

	req, err := structFromParams(params)
	if err != nil {
		return zero, err
	}

	resp := new(structpb.Struct)
	if err := cc.Invoke(ctx, FullMethod(method), req, resp, opts...); err != nil {
		if ire, ok := AsInvalidRequest(err); ok {
			return zero, ire
		}
		return zero, err
	}
	return fromStruct[T](resp)
}

func withID(id string, params domain.Params) domain.Params {
	out := make(domain.Params, len(params)+1)
	for key, value := range params {
		out[key] = value
	}
	out["id"] = id
	return out
}

func expandParams(expand []string) domain.Params {
	if len(expand) == 0 {
		return nil
	}
	return domain.Params{"expand": expand}
}
