package engine

import (
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
	"github.com/vladislavdragonenkov/chargemock/internal/id"
)

// chargeSource — итог разрешения ссылок source/card/customer.
type chargeSource struct {
	card     domain.Card
	customer *domain.Customer
}

// resolveChargeSource находит карту для платежа. Токен расходуется и
// превращается в разовую карту; изменения попадают в ту же транзакцию.
func (e *Engine) resolveChargeSource(tx domain.StoreTx, in chargeInput) (chargeSource, error) {
	var result chargeSource

	if in.customer != "" {
		customer, err := lookupCustomer(tx, in.customer, "customer")
		if err != nil {
			return chargeSource{}, err
		}
		result.customer = &customer
	}

	ref, param := in.source, "source"
	if ref == "" {
		ref, param = in.card, "card"
	}

	switch {
	case ref == "":
		cardID := result.customer.LatestSourceID()
		if cardID == "" {
			return chargeSource{}, domain.NewInvalidRequest("card", "Cannot charge a customer that has no active card")
		}
		card, err := load[domain.Card](tx, domain.ObjectTypeCard, cardID)
		if err != nil {
			return chargeSource{}, fmt.Errorf("load default source %s: %w", cardID, err)
		}
		result.card = card

	case id.HasTag(ref, id.TagCard):
		if result.customer == nil {
			return chargeSource{}, domain.NewInvalidRequest("customer", "Customer must be provided to charge card %s.", ref)
		}
		if !result.customer.HasSource(ref) {
			return chargeSource{}, domain.NewInvalidRequest(param, "Customer %s does not have a linked source with ID %s.", result.customer.ID, ref)
		}
		card, err := load[domain.Card](tx, domain.ObjectTypeCard, ref)
		if err != nil {
			return chargeSource{}, fmt.Errorf("load source %s: %w", ref, err)
		}
		result.card = card

	case result.customer != nil:
		// токен даёт разовую карту без владельца, к клиенту она не привязана
		return chargeSource{}, domain.NewInvalidRequest(param, "Customer %s does not have a linked source with ID %s.", result.customer.ID, ref)

	default:
		card, err := consumeToken(tx, ref, param)
		if err != nil {
			return chargeSource{}, err
		}
		if err := tx.Insert(card); err != nil {
			return chargeSource{}, fmt.Errorf("insert card %s: %w", card.ID, err)
		}
		result.card = card
	}

	return result, nil
}

// consumeToken помечает токен использованным и возвращает карту за ним.
func consumeToken(tx domain.StoreTx, tokenID, param string) (domain.Card, error) {
	if err := id.Parse(tokenID, id.TagToken); err != nil {
		return domain.Card{}, domain.NewInvalidRequest(param, "Invalid token id: %s", tokenID)
	}

	token, err := load[domain.Token](tx, domain.ObjectTypeToken, tokenID)
	if errors.Is(err, domain.ErrObjectNotFound) {
		return domain.Card{}, domain.NewNotFound(param, "No such token: %s", tokenID)
	}
	if err != nil {
		return domain.Card{}, fmt.Errorf("load token %s: %w", tokenID, err)
	}
	if token.Used {
		return domain.Card{}, domain.NewInvalidRequest(param, "You cannot use a token more than once: %s", tokenID)
	}

	token.Used = true
	if err := tx.Update(token); err != nil {
		return domain.Card{}, fmt.Errorf("consume token %s: %w", tokenID, err)
	}
	return token.Card, nil
}

// lookupCustomer различает некорректный ID (400) и отсутствующий объект (404).
func lookupCustomer(r reader, customerID, param string) (domain.Customer, error) {
	if err := id.Parse(customerID, id.TagCustomer); err != nil {
		return domain.Customer{}, domain.NewInvalidRequest(param, "Invalid customer id: %s", customerID)
	}

	customer, err := load[domain.Customer](r, domain.ObjectTypeCustomer, customerID)
	if errors.Is(err, domain.ErrObjectNotFound) {
		return domain.Customer{}, domain.NewNotFound(param, "No such customer: %s", customerID)
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("load customer %s: %w", customerID, err)
	}
	return customer, nil
}

// lookupCharge возвращает 404 для любого неизвестного ID, включая некорректные.
func lookupCharge(r reader, chargeID string) (domain.Charge, error) {
	charge, err := load[domain.Charge](r, domain.ObjectTypeCharge, chargeID)
	if errors.Is(err, domain.ErrObjectNotFound) {
		return domain.Charge{}, domain.NewNotFound("charge", "No such charge: %s", chargeID)
	}
	if err != nil {
		return domain.Charge{}, fmt.Errorf("load charge %s: %w", chargeID, err)
	}
	return charge, nil
}
