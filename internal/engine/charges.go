package engine

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// CreateCharge проверяет параметры, разрешает источник оплаты и атомарно
// сохраняет платёж вместе с его balance transaction.
func (e *Engine) CreateCharge(ctx context.Context, params domain.Params) (charge domain.Charge, err error) {
	defer e.track("create_charge", time.Now(), &err)

	if err := checkContext(ctx); err != nil {
		return domain.Charge{}, err
	}

	in, err := validateChargeParams(params)
	if err != nil {
		return domain.Charge{}, err
	}

	err = e.store.Tx(func(tx domain.StoreTx) error {
		source, err := e.resolveChargeSource(tx, in)
		if err != nil {
			return err
		}

		charge = domain.Charge{
			ID:          e.ids.Next(domain.ObjectTypeCharge),
			Object:      string(domain.ObjectTypeCharge),
			Amount:      in.amount,
			Captured:    in.capture,
			Created:     e.now().Unix(),
			Currency:    in.currency,
			Description: in.description,
			Paid:        true,
			Source:      source.card,
			Status:      domain.ChargeStatusSucceeded,
		}
		if source.customer != nil {
			charge.Customer = domain.Ref[domain.Customer](source.customer.ID)
		}

		txn := e.newBalanceTransaction(charge)
		charge.BalanceTransaction = domain.Ref[domain.BalanceTransaction](txn.ID)

		if err := tx.Insert(txn); err != nil {
			return fmt.Errorf("insert balance transaction: %w", err)
		}
		if err := tx.Insert(charge); err != nil {
			return fmt.Errorf("insert charge: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Charge{}, err
	}

	e.logger.WithFields(log.Fields{
		"charge_id": charge.ID,
		"amount":    charge.Amount,
		"currency":  charge.Currency,
		"captured":  charge.Captured,
	}).Debug("charge created")
	e.metrics.RecordChargeCreated(charge.Currency, charge.Captured)
	e.enqueueEvent(domain.EventTypeChargeSucceeded, charge)

	return e.expandCharge(charge, parseExpand(in.expand))
}

// RetrieveCharge возвращает платёж по ID; неизвестный ID даёт 404 с param=charge.
func (e *Engine) RetrieveCharge(ctx context.Context, chargeID string, expand ...string) (charge domain.Charge, err error) {
	defer e.track("retrieve_charge", time.Now(), &err)

	if err := checkContext(ctx); err != nil {
		return domain.Charge{}, err
	}

	charge, err = lookupCharge(e.store, chargeID)
	if err != nil {
		return domain.Charge{}, err
	}
	return e.expandCharge(charge, parseExpand(expand))
}
