package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// lookup возвращает значение параметра. nil и пустая строка считаются отсутствием.
func lookup(params domain.Params, key string) (any, bool) {
	value, ok := params[key]
	if !ok || value == nil {
		return nil, false
	}
	if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
		return nil, false
	}
	return value, true
}

// parseInteger принимает только целые представления. Дробные числа, включая
// 99.0, и строки с точкой целыми не считаются.
func parseInteger(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return uintToInt64(uint64(v))
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return uintToInt64(v)
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func uintToInt64(v uint64) (int64, bool) {
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

func parseBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func parseString(value any) (string, bool) {
	s, ok := value.(string)
	return s, ok
}

// parseStringList принимает []string, []any из строк или одну строку.
func parseStringList(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			result = append(result, s)
		}
		return result, true
	case string:
		return []string{v}, true
	default:
		return nil, false
	}
}

// parseParams принимает вложенный набор параметров (например, card).
func parseParams(value any) (domain.Params, bool) {
	switch v := value.(type) {
	case domain.Params:
		return v, true
	case map[string]any:
		return domain.Params(v), true
	default:
		return nil, false
	}
}

// formatValue печатает значение так, как его передал клиент: 99.0 остаётся 99.0.
func formatValue(value any) string {
	switch v := value.(type) {
	case float64:
		return formatFloat(v)
	case float32:
		return formatFloat(float64(v))
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}

func optionalString(params domain.Params, name string) (string, error) {
	raw, ok := lookup(params, name)
	if !ok {
		return "", nil
	}
	s, ok := parseString(raw)
	if !ok {
		return "", domain.NewInvalidRequest(name, "Invalid string: %s", formatValue(raw))
	}
	return strings.TrimSpace(s), nil
}

func optionalInteger(params domain.Params, name string) (*int64, error) {
	raw, ok := lookup(params, name)
	if !ok {
		return nil, nil
	}
	n, ok := parseInteger(raw)
	if !ok {
		return nil, domain.NewInvalidRequest(name, "Invalid integer: %s", formatValue(raw))
	}
	return &n, nil
}

func optionalPositiveInteger(params domain.Params, name string) (*int64, error) {
	n, err := optionalInteger(params, name)
	if err != nil || n == nil {
		return n, err
	}
	if *n <= 0 {
		return nil, domain.NewInvalidRequest(name, "Invalid positive integer")
	}
	return n, nil
}

func requirePositiveInteger(params domain.Params, name string) (int64, error) {
	if _, ok := lookup(params, name); !ok {
		return 0, domain.NewInvalidRequest(name, "Missing required param: %s.", name)
	}
	n, err := optionalPositiveInteger(params, name)
	if err != nil {
		return 0, err
	}
	return *n, nil
}

func optionalBool(params domain.Params, name string, fallback bool) (bool, error) {
	raw, ok := lookup(params, name)
	if !ok {
		return fallback, nil
	}
	b, ok := parseBool(raw)
	if !ok {
		return false, domain.NewInvalidRequest(name, "Invalid boolean: %s", formatValue(raw))
	}
	return b, nil
}

func optionalExpand(params domain.Params) ([]string, error) {
	raw, ok := lookup(params, "expand")
	if !ok {
		return nil, nil
	}
	fields, ok := parseStringList(raw)
	if !ok {
		return nil, domain.NewInvalidRequest("expand", "Invalid array")
	}
	return fields, nil
}
