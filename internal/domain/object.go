package domain

import (
	"encoding/json"
	"time"
)

// ObjectType — тег типа ресурса; вместе с ID образует адрес записи в ObjectStore.
type ObjectType string

const (
	ObjectTypeCharge             ObjectType = "charge"
	ObjectTypeCustomer           ObjectType = "customer"
	ObjectTypeCard               ObjectType = "card"
	ObjectTypeToken              ObjectType = "token"
	ObjectTypeBalanceTransaction ObjectType = "balance_transaction"
	ObjectTypeEvent              ObjectType = "event"
)

// Object — запись, которую можно положить в ObjectStore.
type Object interface {
	ObjectID() string
	ObjectType() ObjectType
	// Clone возвращает глубокую копию, чтобы читатели не видели чужих мутаций.
	Clone() Object
}

// Record — конверт записи хранилища.
type Record struct {
	Type      ObjectType
	ID        string
	Seq       uint64 // монотонный номер вставки, задаёт порядок в списках
	CreatedAt time.Time
	Object    Object
}

// Params — именованные параметры запроса в том виде, как их передал клиент.
// Значения не типизированы: проверка типов — задача валидатора.
type Params map[string]any

// List — страница списка объектов в формате API.
type List[T any] struct {
	Object  string `json:"object"`
	Data    []T    `json:"data"`
	HasMore bool   `json:"has_more"`
	URL     string `json:"url"`
}

// NewList собирает list-объект; nil data превращается в пустой срез.
func NewList[T any](url string, data []T, hasMore bool) List[T] {
	if data == nil {
		data = []T{}
	}
	return List[T]{Object: "list", Data: data, HasMore: hasMore, URL: url}
}

// Clone копирует срез данных страницы.
func (l List[T]) Clone() List[T] {
	l.Data = append([]T(nil), l.Data...)
	return l
}

// ListParams задаёт фильтр и размер страницы для list-запросов.
type ListParams struct {
	Customer string
	Limit    int
	Expand   []string
}

// Expandable — ссылка на объект, которую можно развернуть до полного объекта.
// В JSON без разворачивания это строка с ID, после — вложенный объект.
type Expandable[T any] struct {
	ID       string
	Expanded *T
}

// Ref создаёт неразвёрнутую ссылку.
func Ref[T any](id string) Expandable[T] {
	return Expandable[T]{ID: id}
}

// IsExpanded сообщает, подставлен ли полный объект.
func (e Expandable[T]) IsExpanded() bool {
	return e.Expanded != nil
}

// IsZero сообщает, что ссылка пустая.
func (e Expandable[T]) IsZero() bool {
	return e.ID == "" && e.Expanded == nil
}

func (e Expandable[T]) MarshalJSON() ([]byte, error) {
	switch {
	case e.Expanded != nil:
		return json.Marshal(e.Expanded)
	case e.ID == "":
		return []byte("null"), nil
	default:
		return json.Marshal(e.ID)
	}
}

func (e *Expandable[T]) UnmarshalJSON(data []byte) error {
	*e = Expandable[T]{}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &e.ID)
	}

	var (
		value T
		head  struct {
			ID string `json:"id"`
		}
	)
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	e.ID = head.ID
	e.Expanded = &value
	return nil
}
