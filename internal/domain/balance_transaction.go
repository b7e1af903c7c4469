package domain

// BalanceTransaction — запись леджера, порождённая платежом.
type BalanceTransaction struct {
	ID         string      `json:"id"`
	Object     string      `json:"object"`
	Amount     int64       `json:"amount"`
	Created    int64       `json:"created"`
	Currency   string      `json:"currency"`
	Fee        int64       `json:"fee"`
	FeeDetails []FeeDetail `json:"fee_details"`
	Net        int64       `json:"net"`
	// Source — обратная ссылка на платёж; каскадных удалений нет.
	Source string `json:"source"`
	Status string `json:"status"`
	Type   string `json:"type"`
}

// FeeDetail расшифровывает комиссию.
type FeeDetail struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

func (b BalanceTransaction) ObjectID() string       { return b.ID }
func (b BalanceTransaction) ObjectType() ObjectType { return ObjectTypeBalanceTransaction }

func (b BalanceTransaction) Clone() Object {
	b.FeeDetails = append([]FeeDetail(nil), b.FeeDetails...)
	return b
}
