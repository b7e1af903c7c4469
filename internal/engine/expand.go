package engine

import (
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

const (
	expandBalanceTransaction = "balance_transaction"
	expandCustomer           = "customer"
	expandDefaultSource      = "default_source"
	listExpandPrefix         = "data."
)

// expandSet — нормализованный набор полей для разворачивания.
type expandSet map[string]struct{}

// parseExpand убирает пробелы и префикс data., который используют list-запросы.
// Неизвестные имена сохраняются и просто игнорируются при разворачивании.
func parseExpand(fields []string) expandSet {
	set := make(expandSet, len(fields))
	for _, field := range fields {
		field = strings.TrimPrefix(strings.TrimSpace(field), listExpandPrefix)
		if field != "" {
			set[field] = struct{}{}
		}
	}
	return set
}

func (s expandSet) has(field string) bool {
	_, ok := s[field]
	return ok
}

// expandCharge подставляет полные объекты вместо ID. Повторный вызов
// для уже развёрнутого поля ничего не делает.
func (e *Engine) expandCharge(charge domain.Charge, fields expandSet) (domain.Charge, error) {
	if fields.has(expandBalanceTransaction) && !charge.BalanceTransaction.IsExpanded() && charge.BalanceTransaction.ID != "" {
		txn, err := load[domain.BalanceTransaction](e.store, domain.ObjectTypeBalanceTransaction, charge.BalanceTransaction.ID)
		if err != nil {
			return domain.Charge{}, fmt.Errorf("expand balance_transaction of %s: %w", charge.ID, err)
		}
		charge.BalanceTransaction.Expanded = &txn
	}

	if fields.has(expandCustomer) && !charge.Customer.IsExpanded() && charge.Customer.ID != "" {
		customer, err := load[domain.Customer](e.store, domain.ObjectTypeCustomer, charge.Customer.ID)
		if err != nil {
			return domain.Charge{}, fmt.Errorf("expand customer of %s: %w", charge.ID, err)
		}
		customer, err = e.renderCustomer(customer, nil)
		if err != nil {
			return domain.Charge{}, err
		}
		charge.Customer.Expanded = &customer
	}

	return charge, nil
}

// expandCustomer разворачивает default_source покупателя.
func (e *Engine) expandCustomer(customer domain.Customer, fields expandSet) (domain.Customer, error) {
	if fields.has(expandDefaultSource) && !customer.DefaultSource.IsExpanded() && customer.DefaultSource.ID != "" {
		card, err := load[domain.Card](e.store, domain.ObjectTypeCard, customer.DefaultSource.ID)
		if err != nil {
			return domain.Customer{}, fmt.Errorf("expand default_source of %s: %w", customer.ID, err)
		}
		customer.DefaultSource.Expanded = &card
	}
	return customer, nil
}
