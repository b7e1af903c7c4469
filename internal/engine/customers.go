package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
	"github.com/vladislavdragonenkov/chargemock/internal/id"
)

// CreateCustomer создаёт покупателя; токен из source превращается в
// привязанную карту, которая становится источником по умолчанию.
func (e *Engine) CreateCustomer(ctx context.Context, params domain.Params) (customer domain.Customer, err error) {
	defer e.track("create_customer", time.Now(), &err)

	if err := checkContext(ctx); err != nil {
		return domain.Customer{}, err
	}

	in, err := validateCustomerParams(params)
	if err != nil {
		return domain.Customer{}, err
	}

	err = e.store.Tx(func(tx domain.StoreTx) error {
		customer = domain.Customer{
			ID:          e.ids.Next(domain.ObjectTypeCustomer),
			Object:      string(domain.ObjectTypeCustomer),
			Created:     e.now().Unix(),
			Description: in.description,
			Email:       in.email,
		}

		if in.source != "" {
			if id.HasTag(in.source, id.TagCard) {
				return domain.NewInvalidRequest("source", "Cannot attach card %s: provide a token.", in.source)
			}
			card, err := consumeToken(tx, in.source, "source")
			if err != nil {
				return err
			}
			card.Customer = customer.ID
			if err := tx.Insert(card); err != nil {
				return fmt.Errorf("insert card %s: %w", card.ID, err)
			}
			customer.AttachSource(card.ID)
		}

		if err := tx.Insert(customer); err != nil {
			return fmt.Errorf("insert customer: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}

	e.logger.WithFields(log.Fields{
		"customer_id": customer.ID,
		"sources":     len(customer.SourceIDs),
	}).Debug("customer created")
	e.metrics.RecordCustomerCreated()

	rendered, err := e.renderCustomer(customer, nil)
	if err != nil {
		return domain.Customer{}, err
	}
	e.enqueueEvent(domain.EventTypeCustomerCreated, rendered)

	return e.expandCustomer(rendered, parseExpand(in.expand))
}

// RetrieveCustomer возвращает покупателя с актуальными sources и charges.
func (e *Engine) RetrieveCustomer(ctx context.Context, customerID string, expand ...string) (customer domain.Customer, err error) {
	defer e.track("retrieve_customer", time.Now(), &err)

	if err := checkContext(ctx); err != nil {
		return domain.Customer{}, err
	}

	customer, err = load[domain.Customer](e.store, domain.ObjectTypeCustomer, customerID)
	if errors.Is(err, domain.ErrObjectNotFound) {
		return domain.Customer{}, domain.NewNotFound("customer", "No such customer: %s", customerID)
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("load customer %s: %w", customerID, err)
	}

	return e.renderCustomer(customer, parseExpand(expand))
}

// renderCustomer вычисляет производные представления: sources из привязанных
// карт и charges из коллекции платежей. В хранилище они не записываются.
func (e *Engine) renderCustomer(customer domain.Customer, fields expandSet) (domain.Customer, error) {
	cards := make([]domain.Card, 0, len(customer.SourceIDs))
	for _, cardID := range customer.SourceIDs {
		card, err := load[domain.Card](e.store, domain.ObjectTypeCard, cardID)
		if err != nil {
			return domain.Customer{}, fmt.Errorf("load source %s of %s: %w", cardID, customer.ID, err)
		}
		cards = append(cards, card)
	}

	charges, err := e.chargesOf(customer.ID)
	if err != nil {
		return domain.Customer{}, err
	}

	customer.Sources = domain.NewList(fmt.Sprintf("%s/%s/sources", customersURL, customer.ID), cards, false)
	customer.Charges = domain.NewList(chargesURL+"?customer="+customer.ID, charges, false)

	return e.expandCustomer(customer, fields)
}
