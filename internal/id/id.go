// Package id выдаёт идентификаторы объектов песочницы.
//
// Формат: "test_<tag>_<suffix>", где tag определяется типом объекта, а suffix —
// UUIDv7 в base32-кодировке TypeID. Идентификаторы K-сортируемы и уникальны
// при конкурентной генерации.
package id

import (
	"errors"
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// SandboxPrefix отличает тестовые объекты от боевых.
const SandboxPrefix = "test_"

// Tag — короткий префикс типа внутри идентификатора.
type Tag string

const (
	TagCharge             Tag = "ch"
	TagCustomer           Tag = "cus"
	TagCard               Tag = "card"
	TagToken              Tag = "tok"
	TagBalanceTransaction Tag = "txn"
	TagEvent              Tag = "evt"
)

var tagsByType = map[domain.ObjectType]Tag{
	domain.ObjectTypeCharge:             TagCharge,
	domain.ObjectTypeCustomer:           TagCustomer,
	domain.ObjectTypeCard:               TagCard,
	domain.ObjectTypeToken:              TagToken,
	domain.ObjectTypeBalanceTransaction: TagBalanceTransaction,
	domain.ObjectTypeEvent:              TagEvent,
}

var (
	// ErrMalformed — строка не похожа на идентификатор нужного типа.
	ErrMalformed = errors.New("malformed identifier")
	// ErrUnknownType — для типа объекта не задан тег.
	ErrUnknownType = errors.New("unknown object type")
)

// TagFor возвращает тег для типа объекта.
func TagFor(objectType domain.ObjectType) (Tag, error) {
	tag, ok := tagsByType[objectType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, objectType)
	}
	return tag, nil
}

// Allocator генерирует идентификаторы. Нулевое значение готово к работе.
type Allocator struct{}

// NewAllocator создаёт генератор идентификаторов.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Next возвращает свежий идентификатор для типа объекта.
// Паникует на неизвестном типе: это ошибка программиста, а не запроса.
func (a *Allocator) Next(objectType domain.ObjectType) string {
	tag, err := TagFor(objectType)
	if err != nil {
		panic(fmt.Sprintf("id: %v", err))
	}
	return New(tag)
}

// New генерирует идентификатор с заданным тегом.
func New(tag Tag) string {
	tid, err := typeid.Generate(string(tag))
	if err != nil {
		panic(fmt.Sprintf("id: invalid tag %q: %v", tag, err))
	}
	return SandboxPrefix + tid.String()
}

// Parse проверяет, что value — корректный идентификатор с тегом tag.
func Parse(value string, tag Tag) error {
	rest, ok := strings.CutPrefix(value, SandboxPrefix)
	if !ok {
		return fmt.Errorf("%w: %q", ErrMalformed, value)
	}

	tid, err := typeid.Parse(rest)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrMalformed, value, err)
	}
	if tid.Prefix() != string(tag) {
		return fmt.Errorf("%w: expected tag %q, got %q", ErrMalformed, tag, tid.Prefix())
	}
	return nil
}

// HasTag сообщает, выглядит ли value как идентификатор с тегом tag.
// Используется, чтобы различать токены и карты в параметре source.
func HasTag(value string, tag Tag) bool {
	return strings.HasPrefix(value, SandboxPrefix+string(tag)+"_")
}
