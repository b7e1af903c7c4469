package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

const (
	balanceTransactionStatusPending = "pending"
	balanceTransactionTypeCharge    = "charge"
	feeTypeProcessing               = "processing_fee"
	feeDescriptionProcessing        = "Processing fees"
)

// newBalanceTransaction строит проводку для платежа. Вызывается ровно один раз
// внутри транзакции создания платежа; ID всегда свежий.
func (e *Engine) newBalanceTransaction(charge domain.Charge) domain.BalanceTransaction {
	fee := e.fees.Fee(charge.Amount, charge.Currency)
	if fee < 0 {
		fee = 0
	}

	return domain.BalanceTransaction{
		ID:       e.ids.Next(domain.ObjectTypeBalanceTransaction),
		Object:   string(domain.ObjectTypeBalanceTransaction),
		Amount:   charge.Amount,
		Created:  charge.Created,
		Currency: charge.Currency,
		Fee:      fee,
		FeeDetails: []domain.FeeDetail{{
			Amount:      fee,
			Currency:    charge.Currency,
			Description: feeDescriptionProcessing,
			Type:        feeTypeProcessing,
		}},
		Net:    charge.Amount - fee,
		Source: charge.ID,
		Status: balanceTransactionStatusPending,
		Type:   balanceTransactionTypeCharge,
	}
}

// RetrieveBalanceTransaction возвращает проводку по ID.
func (e *Engine) RetrieveBalanceTransaction(ctx context.Context, txnID string) (txn domain.BalanceTransaction, err error) {
	defer e.track("retrieve_balance_transaction", time.Now(), &err)

	if err := checkContext(ctx); err != nil {
		return domain.BalanceTransaction{}, err
	}

	txn, err = load[domain.BalanceTransaction](e.store, domain.ObjectTypeBalanceTransaction, txnID)
	if errors.Is(err, domain.ErrObjectNotFound) {
		return domain.BalanceTransaction{}, domain.NewNotFound("balance_transaction", "No such balance transaction: %s", txnID)
	}
	if err != nil {
		return domain.BalanceTransaction{}, fmt.Errorf("load balance transaction %s: %w", txnID, err)
	}
	return txn, nil
}
