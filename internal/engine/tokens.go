package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// DefaultCardNumber используется, если номер карты не передан.
const DefaultCardNumber = "4242424242424242"

const (
	minCardDigits = 12
	maxCardDigits = 19
)

// CreateToken выпускает одноразовый токен карты. Реквизиты берутся из
// вложенного card или с верхнего уровня параметров.
func (e *Engine) CreateToken(ctx context.Context, params domain.Params) (token domain.Token, err error) {
	defer e.track("create_token", time.Now(), &err)

	if err := checkContext(ctx); err != nil {
		return domain.Token{}, err
	}

	fields := params
	if raw, ok := lookup(params, "card"); ok {
		nested, ok := parseParams(raw)
		if !ok {
			return domain.Token{}, domain.NewInvalidRequest("card", "Invalid hash")
		}
		fields = nested
	}

	now := e.now()
	card, err := parseCard(fields, now)
	if err != nil {
		return domain.Token{}, err
	}

	err = e.store.Tx(func(tx domain.StoreTx) error {
		card.ID = e.ids.Next(domain.ObjectTypeCard)
		token = domain.Token{
			ID:      e.ids.Next(domain.ObjectTypeToken),
			Object:  string(domain.ObjectTypeToken),
			Card:    card,
			Created: now.Unix(),
		}
		return tx.Insert(token)
	})
	if err != nil {
		return domain.Token{}, fmt.Errorf("insert token: %w", err)
	}

	e.logger.WithFields(log.Fields{
		"token_id": token.ID,
		"brand":    card.Brand,
	}).Debug("token created")
	e.metrics.RecordTokenCreated()

	return token, nil
}

func parseCard(params domain.Params, now time.Time) (domain.Card, error) {
	number := DefaultCardNumber
	if raw, ok := lookup(params, "number"); ok {
		if n, isInt := parseInteger(raw); isInt && n > 0 {
			number = strconv.FormatInt(n, 10)
		} else if s, isString := parseString(raw); isString {
			number = normalizeCardNumber(s)
		} else {
			return domain.Card{}, domain.NewInvalidRequest("number", "Your card number is incorrect.")
		}
	}
	if !validCardNumber(number) {
		return domain.Card{}, domain.NewInvalidRequest("number", "Your card number is incorrect.")
	}

	expMonth, err := optionalInteger(params, "exp_month")
	if err != nil {
		return domain.Card{}, err
	}
	month := int64(12)
	if expMonth != nil {
		month = *expMonth
	}
	if month < 1 || month > 12 {
		return domain.Card{}, domain.NewInvalidRequest("exp_month", "Your card's expiration month is invalid.")
	}

	expYear, err := optionalInteger(params, "exp_year")
	if err != nil {
		return domain.Card{}, err
	}
	year := int64(now.Year() + 1)
	if expYear != nil {
		year = *expYear
	}
	if year < int64(now.Year()) || (year == int64(now.Year()) && month < int64(now.Month())) {
		return domain.Card{}, domain.NewInvalidRequest("exp_year", "Your card's expiration year is invalid.")
	}

	return domain.Card{
		Object:   string(domain.ObjectTypeCard),
		Brand:    cardBrand(number),
		ExpMonth: int(month),
		ExpYear:  int(year),
		Last4:    number[len(number)-4:],
	}, nil
}

func normalizeCardNumber(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
}

// validCardNumber проверяет длину, состав и контрольную сумму Луна.
func validCardNumber(number string) bool {
	if len(number) < minCardDigits || len(number) > maxCardDigits {
		return false
	}

	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return sum%10 == 0
}

// cardBrand определяет платёжную систему по префиксу номера.
func cardBrand(number string) string {
	prefix := func(n int) int {
		if len(number) < n {
			return -1
		}
		v, _ := strconv.Atoi(number[:n])
		return v
	}

	switch p2, p4 := prefix(2), prefix(4); {
	case number[0] == '4':
		return "Visa"
	case p2 >= 51 && p2 <= 55, p4 >= 2221 && p4 <= 2720:
		return "MasterCard"
	case p2 == 34 || p2 == 37:
		return "American Express"
	case p4 == 6011 || p2 == 65:
		return "Discover"
	case p2 == 35:
		return "JCB"
	case p2 == 30 || p2 == 36 || p2 == 38:
		return "Diners Club"
	default:
		return "Unknown"
	}
}
