package domain

// Card — платёжный источник. Customer пустой, если карта создана под разовый платёж.
type Card struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Brand    string `json:"brand"`
	Customer string `json:"customer,omitempty"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	Last4    string `json:"last4"`
}

func (c Card) ObjectID() string       { return c.ID }
func (c Card) ObjectType() ObjectType { return ObjectTypeCard }
func (c Card) Clone() Object          { return c }

// Token — одноразовый токен, за которым стоят реквизиты карты.
type Token struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Card     Card   `json:"card"`
	Created  int64  `json:"created"`
	Livemode bool   `json:"livemode"`
	Used     bool   `json:"used"`
}

func (t Token) ObjectID() string       { return t.ID }
func (t Token) ObjectType() ObjectType { return ObjectTypeToken }
func (t Token) Clone() Object          { return t }
