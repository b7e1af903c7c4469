package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя gRPC-сервиса песочницы.
const ServiceName = "chargemock.v1.MockService"

// Имена методов MockService.
const (
	MethodCreateCharge               = "CreateCharge"
	MethodRetrieveCharge             = "RetrieveCharge"
	MethodListCharges                = "ListCharges"
	MethodCaptureCharge              = "CaptureCharge"
	MethodCreateCustomer             = "CreateCustomer"
	MethodRetrieveCustomer           = "RetrieveCustomer"
	MethodListCustomers              = "ListCustomers"
	MethodCreateToken                = "CreateToken"
	MethodRetrieveBalanceTransaction = "RetrieveBalanceTransaction"
	MethodReset                      = "Reset"
)

// FullMethod возвращает имя метода в формате /service/method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// MockServiceServer — серверный API песочницы. Запросы и ответы передаются
// как google.protobuf.Struct, то есть именованные параметры в стиле REST API.
type MockServiceServer interface {
	CreateCharge(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RetrieveCharge(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCharges(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CaptureCharge(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateCustomer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RetrieveCustomer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCustomers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RetrieveBalanceTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(MockServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(MockServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func methodDesc(method string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{MethodName: method, Handler: unaryHandler(method, call)}
}

// ServiceDesc описывает MockService для grpc.Server без сгенерированного кода.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc(MethodCreateCharge, MockServiceServer.CreateCharge),
		methodDesc(MethodRetrieveCharge, MockServiceServer.RetrieveCharge),
		methodDesc(MethodListCharges, MockServiceServer.ListCharges),
		methodDesc(MethodCaptureCharge, MockServiceServer.CaptureCharge),
		methodDesc(MethodCreateCustomer, MockServiceServer.CreateCustomer),
		methodDesc(MethodRetrieveCustomer, MockServiceServer.RetrieveCustomer),
		methodDesc(MethodListCustomers, MockServiceServer.ListCustomers),
		methodDesc(MethodCreateToken, MockServiceServer.CreateToken),
		methodDesc(MethodRetrieveBalanceTransaction, MockServiceServer.RetrieveBalanceTransaction),
		methodDesc(MethodReset, MockServiceServer.Reset),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chargemock/v1/mock_service",
}

// RegisterMockServiceServer регистрирует реализацию на сервере.
func RegisterMockServiceServer(s grpc.ServiceRegistrar, srv MockServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
