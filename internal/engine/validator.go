package engine

import (
	"strings"

	"golang.org/x/text/currency"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// chargeInput — проверенные параметры создания платежа.
type chargeInput struct {
	amount      int64
	currency    string
	description string
	capture     bool
	source      string
	card        string
	customer    string
	expand      []string
}

// validateChargeParams проверяет параметры в фиксированном порядке;
// отчёт содержит первое найденное нарушение.
func validateChargeParams(params domain.Params) (chargeInput, error) {
	in := chargeInput{capture: true}

	amount, err := requirePositiveInteger(params, "amount")
	if err != nil {
		return chargeInput{}, err
	}
	in.amount = amount

	if in.currency, err = requireCurrency(params); err != nil {
		return chargeInput{}, err
	}
	if in.description, err = optionalString(params, "description"); err != nil {
		return chargeInput{}, err
	}
	if in.capture, err = optionalBool(params, "capture", true); err != nil {
		return chargeInput{}, err
	}
	if in.expand, err = optionalExpand(params); err != nil {
		return chargeInput{}, err
	}

	if in.source, err = optionalString(params, "source"); err != nil {
		return chargeInput{}, err
	}
	if in.card, err = optionalString(params, "card"); err != nil {
		return chargeInput{}, err
	}
	if in.customer, err = optionalString(params, "customer"); err != nil {
		return chargeInput{}, err
	}
	if in.source == "" && in.card == "" && in.customer == "" {
		return chargeInput{}, domain.NewInvalidRequest("source", "Must provide source or customer.")
	}

	return in, nil
}

// requireCurrency проверяет код ISO 4217 и приводит его к нижнему регистру.
func requireCurrency(params domain.Params) (string, error) {
	raw, ok := lookup(params, "currency")
	if !ok {
		return "", domain.NewInvalidRequest("currency", "Missing required param: currency.")
	}
	code, ok := parseString(raw)
	if !ok {
		return "", domain.NewInvalidRequest("currency", "Invalid currency: %s", formatValue(raw))
	}

	code = strings.TrimSpace(code)
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return "", domain.NewInvalidRequest("currency", "Invalid currency: %s", strings.ToLower(code))
	}
	return strings.ToLower(unit.String()), nil
}

// customerInput — проверенные параметры создания покупателя.
type customerInput struct {
	email       string
	description string
	source      string
	expand      []string
}

func validateCustomerParams(params domain.Params) (customerInput, error) {
	var (
		in  customerInput
		err error
	)
	if in.email, err = optionalString(params, "email"); err != nil {
		return customerInput{}, err
	}
	if in.email != "" && !strings.Contains(in.email, "@") {
		return customerInput{}, domain.NewInvalidRequest("email", "Invalid email address: %s", in.email)
	}
	if in.description, err = optionalString(params, "description"); err != nil {
		return customerInput{}, err
	}
	if in.source, err = optionalString(params, "source"); err != nil {
		return customerInput{}, err
	}
	if in.expand, err = optionalExpand(params); err != nil {
		return customerInput{}, err
	}
	return in, nil
}

// captureInput — проверенные параметры capture.
type captureInput struct {
	amount *int64
	expand []string
}

func validateCaptureParams(params domain.Params) (captureInput, error) {
	var (
		in  captureInput
		err error
	)
	if in.amount, err = optionalPositiveInteger(params, "amount"); err != nil {
		return captureInput{}, err
	}
	if in.expand, err = optionalExpand(params); err != nil {
		return captureInput{}, err
	}
	return in, nil
}
