package domain

// ChargeStatus — статус платежа в ответах API.
type ChargeStatus string

const (
	// ChargeStatusSucceeded — единственный статус, который выдаёт песочница.
	ChargeStatusSucceeded ChargeStatus = "succeeded"
)

// CaptureState описывает двухфазный жизненный цикл платежа.
type CaptureState string

const (
	// CaptureStateUncaptured — сумма авторизована, но не списана.
	CaptureStateUncaptured CaptureState = "uncaptured"
	// CaptureStateCaptured — сумма списана; обратного перехода нет.
	CaptureStateCaptured CaptureState = "captured"
)

// Charge — попытка списания суммы с карты.
type Charge struct {
	ID                 string                         `json:"id"`
	Object             string                         `json:"object"`
	Amount             int64                          `json:"amount"`
	AmountRefunded     int64                          `json:"amount_refunded"`
	BalanceTransaction Expandable[BalanceTransaction] `json:"balance_transaction"`
	Captured           bool                           `json:"captured"`
	Created            int64                          `json:"created"`
	Currency           string                         `json:"currency"`
	Customer           Expandable[Customer]           `json:"customer"`
	Description        string                         `json:"description"`
	Livemode           bool                           `json:"livemode"`
	Paid               bool                           `json:"paid"`
	Refunded           bool                           `json:"refunded"`
	Source             Card                           `json:"source"`
	Status             ChargeStatus                   `json:"status"`
}

func (c Charge) ObjectID() string       { return c.ID }
func (c Charge) ObjectType() ObjectType { return ObjectTypeCharge }

// Clone копирует платёж вместе с развёрнутыми ссылками.
func (c Charge) Clone() Object {
	if c.BalanceTransaction.Expanded != nil {
		txn := c.BalanceTransaction.Expanded.Clone().(BalanceTransaction)
		c.BalanceTransaction.Expanded = &txn
	}
	if c.Customer.Expanded != nil {
		customer := c.Customer.Expanded.Clone().(Customer)
		c.Customer.Expanded = &customer
	}
	return c
}

// State возвращает текущее состояние capture.
func (c *Charge) State() CaptureState {
	if c.Captured {
		return CaptureStateCaptured
	}
	return CaptureStateUncaptured
}

// Capture переводит платёж из uncaptured в captured.
// amount == nil означает списание полной суммы; меньшая сумма записывает
// остаток в AmountRefunded, само поле Amount не меняется.
func (c *Charge) Capture(amount *int64) error {
	if c.State() != CaptureStateUncaptured {
		return ErrChargeAlreadyCaptured
	}

	captureAmount := c.Amount
	if amount != nil {
		captureAmount = *amount
	}
	if captureAmount <= 0 || captureAmount > c.Amount {
		return ErrCaptureAmountInvalid
	}

	c.Captured = true
	c.AmountRefunded = c.Amount - captureAmount
	return nil
}
