package domain

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// FeePolicy вычисляет комиссию процессинга для суммы платежа.
type FeePolicy interface {
	Fee(amount int64, currency string) int64
}

// DefaultFee — плоская комиссия песочницы, не зависящая от суммы.
const DefaultFee FlatFee = 20

// FlatFee — фиксированная комиссия за платёж.
type FlatFee int64

func (f FlatFee) Fee(int64, string) int64 {
	if f < 0 {
		return 0
	}
	return int64(f)
}

func (f FlatFee) String() string {
	return fmt.Sprintf("flat:%d", int64(f))
}

// PercentFee — процент от суммы в базисных пунктах плюс фиксированная часть.
// Например, 2.9% + 30 задаётся как PercentFee{BasisPoints: 290, Fixed: 30}.
type PercentFee struct {
	BasisPoints int64
	Fixed       int64
}

func (p PercentFee) Fee(amount int64, _ string) int64 {
	// Округляем половину вверх, как при расчёте в минорных единицах.
	// Произведение может не влезть в int64, поэтому считаем в big.Int.
	fee := new(big.Int).Mul(big.NewInt(amount), big.NewInt(p.BasisPoints))
	fee.Add(fee, big.NewInt(5000))
	fee.Quo(fee, big.NewInt(10000))
	fee.Add(fee, big.NewInt(p.Fixed))
	switch {
	case fee.Sign() < 0:
		return 0
	case !fee.IsInt64():
		return math.MaxInt64
	default:
		return fee.Int64()
	}
}

func (p PercentFee) String() string {
	return fmt.Sprintf("percent:%d+%d", p.BasisPoints, p.Fixed)
}

// ParseFeePolicy разбирает конфигурацию вида "flat:20" или "percent:290+30".
func ParseFeePolicy(raw string) (FeePolicy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultFee, nil
	}

	kind, value, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFeePolicy, raw)
	}

	switch strings.ToLower(kind) {
	case "flat":
		fee, err := strconv.ParseInt(value, 10, 64)
		if err != nil || fee < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFeePolicy, raw)
		}
		return FlatFee(fee), nil
	case "percent":
		bpsRaw, fixedRaw, _ := strings.Cut(value, "+")
		bps, err := strconv.ParseInt(bpsRaw, 10, 64)
		if err != nil || bps < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFeePolicy, raw)
		}
		var fixed int64
		if fixedRaw != "" {
			fixed, err = strconv.ParseInt(fixedRaw, 10, 64)
			if err != nil || fixed < 0 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidFeePolicy, raw)
			}
		}
		return PercentFee{BasisPoints: bps, Fixed: fixed}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidFeePolicy, kind)
	}
}
