package grpcsvc

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// statusFromError переводит ошибку движка в gRPC-статус. Ошибки запроса
// получают деталь Struct с полями type, message, param и http_status.
func statusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && !domain.IsInvalidRequest(err) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	ire, ok := domain.AsInvalidRequest(err)
	if !ok {
		return status.Error(codes.Internal, "internal error")
	}

	code := codes.InvalidArgument
	if ire.HTTPStatus == http.StatusNotFound {
		code = codes.NotFound
	}

	st := status.New(code, ire.Message)
	detail, detailErr := structpb.NewStruct(map[string]any{
		"type":        ire.Type(),
		"message":     ire.Message,
		"param":       ire.Param,
		"http_status": ire.HTTPStatus,
	})
	if detailErr != nil {
		return st.Err()
	}
	withDetails, detailErr := st.WithDetails(detail)
	if detailErr != nil {
		return st.Err()
	}
	return withDetails.Err()
}

// AsInvalidRequest восстанавливает ошибку запроса из gRPC-статуса на стороне клиента.
func AsInvalidRequest(err error) (*domain.InvalidRequestError, bool) {
	if ire, ok := domain.AsInvalidRequest(err); ok {
		return ire, true
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return nil, false
	}

	for _, detail := range st.Details() {
		fields, ok := detail.(*structpb.Struct)
		if !ok {
			continue
		}
		values := fields.AsMap()
		if kind, _ := values["type"].(string); kind != "invalid_request_error" {
			continue
		}

		ire := &domain.InvalidRequestError{Message: st.Message()}
		if message, ok := values["message"].(string); ok && message != "" {
			ire.Message = message
		}
		ire.Param, _ = values["param"].(string)
		if httpStatus, ok := values["http_status"].(float64); ok {
			ire.HTTPStatus = int(httpStatus)
		}
		if ire.HTTPStatus == 0 {
			ire.HTTPStatus = httpStatusFromCode(st.Code())
		}
		return ire, true
	}
	return nil, false
}

func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
