package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// CaptureCharge переводит платёж из uncaptured в captured. Проверка состояния
// и запись выполняются в одной транзакции хранилища, поэтому из конкурентных
// вызовов успешен ровно один, остальные видят уже списанный платёж.
func (e *Engine) CaptureCharge(ctx context.Context, chargeID string, params domain.Params) (charge domain.Charge, err error) {
	defer e.track("capture_charge", time.Now(), &err)

	if err := checkContext(ctx); err != nil {
		return domain.Charge{}, err
	}

	in, err := validateCaptureParams(params)
	if err != nil {
		return domain.Charge{}, err
	}

	err = e.store.Tx(func(tx domain.StoreTx) error {
		current, err := lookupCharge(tx, chargeID)
		if err != nil {
			return err
		}

		if err := current.Capture(in.amount); err != nil {
			switch {
			case errors.Is(err, domain.ErrChargeAlreadyCaptured):
				return domain.NewInvalidRequest("charge", "Charge %s has already been captured.", chargeID)
			case errors.Is(err, domain.ErrCaptureAmountInvalid):
				return domain.NewInvalidRequest("amount", "Amount to capture must be between 1 and the authorized amount %d.", current.Amount)
			default:
				return fmt.Errorf("capture charge %s: %w", chargeID, err)
			}
		}

		if err := tx.Update(current); err != nil {
			return fmt.Errorf("update charge %s: %w", chargeID, err)
		}
		charge = current
		return nil
	})
	if err != nil {
		return domain.Charge{}, err
	}

	e.logger.WithFields(log.Fields{
		"charge_id":       charge.ID,
		"amount_refunded": charge.AmountRefunded,
	}).Debug("charge captured")
	e.metrics.RecordChargeCaptured(charge.AmountRefunded > 0)
	e.enqueueEvent(domain.EventTypeChargeCaptured, charge)

	return e.expandCharge(charge, parseExpand(in.expand))
}

// Capture выполняет capture и обновляет переданный платёж на месте, так что
// значение у вызывающего и последующий RetrieveCharge совпадают.
func (e *Engine) Capture(ctx context.Context, charge *domain.Charge, params domain.Params) error {
	if charge == nil {
		return domain.NewNotFound("charge", "No such charge: ")
	}

	captured, err := e.CaptureCharge(ctx, charge.ID, params)
	if err != nil {
		return err
	}
	// Capture не меняет связанные объекты, развёрнутые ссылки вызывающего остаются.
	if charge.BalanceTransaction.IsExpanded() && !captured.BalanceTransaction.IsExpanded() {
		captured.BalanceTransaction = charge.BalanceTransaction
	}
	if charge.Customer.IsExpanded() && !captured.Customer.IsExpanded() {
		captured.Customer = charge.Customer
	}
	*charge = captured
	return nil
}
