package domain

// Customer — покупатель с привязанными картами.
type Customer struct {
	ID            string           `json:"id"`
	Object        string           `json:"object"`
	Created       int64            `json:"created"`
	DefaultSource Expandable[Card] `json:"default_source"`
	Description   string           `json:"description"`
	Email         string           `json:"email"`
	Livemode      bool             `json:"livemode"`
	// SourceIDs хранит карты в порядке привязки; список только растёт.
	SourceIDs []string `json:"-"`
	// Sources и Charges заполняются при чтении и в хранилище не попадают.
	Sources List[Card]   `json:"sources"`
	Charges List[Charge] `json:"charges"`
}

func (c Customer) ObjectID() string       { return c.ID }
func (c Customer) ObjectType() ObjectType { return ObjectTypeCustomer }

func (c Customer) Clone() Object {
	c.SourceIDs = append([]string(nil), c.SourceIDs...)
	c.Sources = c.Sources.Clone()
	c.Charges = c.Charges.Clone()
	if c.DefaultSource.Expanded != nil {
		card := *c.DefaultSource.Expanded
		c.DefaultSource.Expanded = &card
	}
	return c
}

// LatestSourceID возвращает последнюю привязанную карту или пустую строку.
func (c *Customer) LatestSourceID() string {
	if len(c.SourceIDs) == 0 {
		return ""
	}
	return c.SourceIDs[len(c.SourceIDs)-1]
}

// HasSource проверяет, привязана ли карта к покупателю.
func (c *Customer) HasSource(cardID string) bool {
	for _, id := range c.SourceIDs {
		if id == cardID {
			return true
		}
	}
	return false
}

// AttachSource добавляет карту и делает её источником по умолчанию.
func (c *Customer) AttachSource(cardID string) {
	c.SourceIDs = append(c.SourceIDs, cardID)
	c.DefaultSource = Ref[Card](cardID)
}
