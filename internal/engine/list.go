package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100

	chargesURL   = "/v1/charges"
	customersURL = "/v1/customers"
)

// ParseListParams разбирает параметры list-запроса: customer, limit, expand.
func ParseListParams(params domain.Params) (domain.ListParams, error) {
	var (
		lp  domain.ListParams
		err error
	)
	if lp.Customer, err = optionalString(params, "customer"); err != nil {
		return domain.ListParams{}, err
	}

	limit, err := optionalInteger(params, "limit")
	if err != nil {
		return domain.ListParams{}, err
	}
	if limit != nil {
		if *limit < 1 || *limit > maxListLimit {
			return domain.ListParams{}, invalidLimit()
		}
		lp.Limit = int(*limit)
	}

	if lp.Expand, err = optionalExpand(params); err != nil {
		return domain.ListParams{}, err
	}
	return lp, nil
}

// pageLimit применяет значение по умолчанию; 0 означает «не задан».
func pageLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return defaultListLimit, nil
	case limit < 0 || limit > maxListLimit:
		return 0, invalidLimit()
	default:
		return limit, nil
	}
}

func invalidLimit() error {
	return domain.NewInvalidRequest("limit", "Invalid limit: must be between 1 and %d", maxListLimit)
}

// paginate возвращает limit самых новых элементов в порядке создания и
// признак того, что более старые элементы остались за пределами страницы.
func paginate[T any](items []T, limit int) ([]T, bool) {
	if len(items) <= limit {
		return items, false
	}
	return items[len(items)-limit:], true
}

// ListCharges возвращает страницу платежей, опционально только одного покупателя.
func (e *Engine) ListCharges(ctx context.Context, params domain.ListParams) (list domain.List[domain.Charge], err error) {
	defer e.track("list_charges", time.Now(), &err)

	if err := checkContext(ctx); err != nil {
		return domain.List[domain.Charge]{}, err
	}

	limit, err := pageLimit(params.Limit)
	if err != nil {
		return domain.List[domain.Charge]{}, err
	}

	url := chargesURL
	if params.Customer != "" {
		if _, err := lookupCustomer(e.store, params.Customer, "customer"); err != nil {
			return domain.List[domain.Charge]{}, err
		}
		url = chargesURL + "?customer=" + params.Customer
	}

	charges, err := e.chargesOf(params.Customer)
	if err != nil {
		return domain.List[domain.Charge]{}, err
	}

	page, hasMore := paginate(charges, limit)
	fields := parseExpand(params.Expand)
	for i := range page {
		if page[i], err = e.expandCharge(page[i], fields); err != nil {
			return domain.List[domain.Charge]{}, err
		}
	}

	return domain.NewList(url, page, hasMore), nil
}

// ListCustomers возвращает страницу покупателей.
func (e *Engine) ListCustomers(ctx context.Context, params domain.ListParams) (list domain.List[domain.Customer], err error) {
	defer e.track("list_customers", time.Now(), &err)

	if err := checkContext(ctx); err != nil {
		return domain.List[domain.Customer]{}, err
	}

	limit, err := pageLimit(params.Limit)
	if err != nil {
		return domain.List[domain.Customer]{}, err
	}

	records, err := e.store.List(domain.ObjectTypeCustomer)
	if err != nil {
		return domain.List[domain.Customer]{}, fmt.Errorf("list customers: %w", err)
	}

	page, hasMore := paginate(records, limit)
	fields := parseExpand(params.Expand)
	customers := make([]domain.Customer, 0, len(page))
	for _, record := range page {
		customer, ok := record.Object.(domain.Customer)
		if !ok {
			return domain.List[domain.Customer]{}, fmt.Errorf("%w: customer %s", domain.ErrObjectTypeMismatch, record.ID)
		}
		rendered, err := e.renderCustomer(customer, fields)
		if err != nil {
			return domain.List[domain.Customer]{}, err
		}
		customers = append(customers, rendered)
	}

	return domain.NewList(customersURL, customers, hasMore), nil
}

// chargesOf возвращает платежи в порядке создания; пустой customerID — все платежи.
func (e *Engine) chargesOf(customerID string) ([]domain.Charge, error) {
	records, err := e.store.List(domain.ObjectTypeCharge)
	if err != nil {
		return nil, fmt.Errorf("list charges: %w", err)
	}

	charges := make([]domain.Charge, 0, len(records))
	for _, record := range records {
		charge, ok := record.Object.(domain.Charge)
		if !ok {
			return nil, fmt.Errorf("%w: charge %s", domain.ErrObjectTypeMismatch, record.ID)
		}
		if customerID != "" && charge.Customer.ID != customerID {
			continue
		}
		charges = append(charges, charge)
	}
	return charges, nil
}
