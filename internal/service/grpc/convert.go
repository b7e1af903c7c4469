package grpcsvc

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// paramsFromStruct превращает запрос в именованные параметры. Struct хранит
// все числа как double, поэтому целые значения приводятся к int64; дробные
// остаются float64 и отклоняются валидатором как нецелые.
func paramsFromStruct(s *structpb.Struct) domain.Params {
	if s == nil {
		return domain.Params{}
	}
	params := domain.Params(s.AsMap())
	for key, value := range params {
		params[key] = normalizeNumbers(value)
	}
	return params
}

func normalizeNumbers(value any) any {
	switch v := value.(type) {
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return int64(v)
		}
		return v
	case map[string]any:
		for key, item := range v {
			v[key] = normalizeNumbers(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = normalizeNumbers(item)
		}
		return v
	default:
		return value
	}
}

// structFromParams готовит параметры клиента к передаче в Struct:
// типизированные срезы и вложенные Params приводятся к []any и map[string]any,
// float64 уходит строкой.
func structFromParams(params domain.Params) (*structpb.Struct, error) {
	fields := make(map[string]any, len(params))
	for key, value := range params {
		fields[key] = plainValue(value)
	}
	return structpb.NewStruct(fields)
}

func plainValue(value any) any {
	switch v := value.(type) {
	case domain.Params:
		return plainValue(map[string]any(v))
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = plainValue(item)
		}
		return out
	case []string:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, item)
		}
		return out
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, plainValue(item))
		}
		return out
	case float64:
		return decimalString(v)
	case float32:
		return decimalString(float64(v))
	default:
		return value
	}
}

// decimalString кодирует дробное число строкой ("99.0"): иначе сервер не
// отличит 99.0 от целого 99 в double из Struct.
func decimalString(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}

// toStruct кодирует объект API в Struct через его JSON-представление.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decode response struct: %w", err)
	}
	return out, nil
}

// fromStruct декодирует Struct в объект API.
func fromStruct[T any](s *structpb.Struct) (T, error) {
	var out T
	data, err := protojson.Marshal(s)
	if err != nil {
		return out, fmt.Errorf("encode response struct: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("unmarshal response: %w", err)
	}
	return out, nil
}

// stringField достаёт строковый параметр запроса (например, id).
func stringField(params domain.Params, key string) string {
	s, _ := params[key].(string)
	return s
}

// expandField достаёт список expand; некорректные элементы пропускаются.
func expandField(params domain.Params) []string {
	switch v := params["expand"].(type) {
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	case string:
		return []string{v}
	default:
		return nil
	}
}
