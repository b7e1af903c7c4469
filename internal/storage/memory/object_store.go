package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// collection хранит записи одного типа в порядке вставки.
type collection struct {
	byID  map[string]*domain.Record
	order []string
}

func newCollection() *collection {
	return &collection{byID: make(map[string]*domain.Record)}
}

// objectStoreInMemory — реестр объектов песочницы под одним RWMutex.
// Писатели сериализуются, читатели получают копии.
type objectStoreInMemory struct {
	mu          sync.RWMutex
	collections map[domain.ObjectType]*collection
	seq         uint64
	now         func() time.Time
}

// NewObjectStore создаёт пустое in-memory хранилище объектов.
func NewObjectStore() domain.ObjectStore {
	return &objectStoreInMemory{
		collections: make(map[domain.ObjectType]*collection),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Get возвращает копию записи или ErrObjectNotFound.
func (s *objectStoreInMemory) Get(objectType domain.ObjectType, id string) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getLocked(objectType, id)
}

// List возвращает копии всех записей типа в порядке вставки.
func (s *objectStoreInMemory) List(objectType domain.ObjectType) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[objectType]
	if !ok {
		return []domain.Record{}, nil
	}

	result := make([]domain.Record, 0, len(c.order))
	for _, id := range c.order {
		result = append(result, cloneRecord(*c.byID[id]))
	}
	return result, nil
}

// Count возвращает количество записей типа.
func (s *objectStoreInMemory) Count(objectType domain.ObjectType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[objectType]
	if !ok {
		return 0, nil
	}
	return len(c.order), nil
}

// Tx выполняет fn под эксклюзивной блокировкой и применяет накопленные
// изменения, только если fn завершилась без ошибки.
func (s *objectStoreInMemory) Tx(fn func(tx domain.StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &storeTx{
		store:  s,
		staged: make(map[recordKey]domain.Object),
	}
	if err := fn(tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

// Reset удаляет все записи и сбрасывает счётчик вставок.
func (s *objectStoreInMemory) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections = make(map[domain.ObjectType]*collection)
	s.seq = 0
}

func (s *objectStoreInMemory) getLocked(objectType domain.ObjectType, id string) (domain.Record, error) {
	c, ok := s.collections[objectType]
	if !ok {
		return domain.Record{}, domain.ErrObjectNotFound
	}
	record, ok := c.byID[id]
	if !ok {
		return domain.Record{}, domain.ErrObjectNotFound
	}
	return cloneRecord(*record), nil
}

func (s *objectStoreInMemory) collection(objectType domain.ObjectType) *collection {
	c, ok := s.collections[objectType]
	if !ok {
		c = newCollection()
		s.collections[objectType] = c
	}
	return c
}

type recordKey struct {
	objectType domain.ObjectType
	id         string
}

// storeTx накапливает изменения до commit. Блокировка хранилища уже взята.
type storeTx struct {
	store   *objectStoreInMemory
	staged  map[recordKey]domain.Object
	inserts []recordKey
}

func (tx *storeTx) Get(objectType domain.ObjectType, id string) (domain.Record, error) {
	key := recordKey{objectType: objectType, id: id}
	if obj, ok := tx.staged[key]; ok {
		record := domain.Record{Type: objectType, ID: id, Object: obj.Clone()}
		if existing, err := tx.store.getLocked(objectType, id); err == nil {
			record.Seq = existing.Seq
			record.CreatedAt = existing.CreatedAt
		}
		return record, nil
	}
	return tx.store.getLocked(objectType, id)
}

func (tx *storeTx) Insert(obj domain.Object) error {
	key, err := keyOf(obj)
	if err != nil {
		return err
	}
	if _, ok := tx.staged[key]; ok {
		return fmt.Errorf("%w: %s %s", domain.ErrObjectAlreadyExists, key.objectType, key.id)
	}
	if _, err := tx.store.getLocked(key.objectType, key.id); err == nil {
		return fmt.Errorf("%w: %s %s", domain.ErrObjectAlreadyExists, key.objectType, key.id)
	}

	tx.staged[key] = obj.Clone()
	tx.inserts = append(tx.inserts, key)
	return nil
}

func (tx *storeTx) Update(obj domain.Object) error {
	key, err := keyOf(obj)
	if err != nil {
		return err
	}
	_, staged := tx.staged[key]
	if !staged {
		if _, err := tx.store.getLocked(key.objectType, key.id); err != nil {
			return err
		}
	}

	tx.staged[key] = obj.Clone()
	return nil
}

func (tx *storeTx) commit() {
	s := tx.store
	now := s.now()

	inserted := make(map[recordKey]struct{}, len(tx.inserts))
	for _, key := range tx.inserts {
		s.seq++
		c := s.collection(key.objectType)
		c.byID[key.id] = &domain.Record{
			Type:      key.objectType,
			ID:        key.id,
			Seq:       s.seq,
			CreatedAt: now,
			Object:    tx.staged[key],
		}
		c.order = append(c.order, key.id)
		inserted[key] = struct{}{}
	}

	for key, obj := range tx.staged {
		if _, ok := inserted[key]; ok {
			continue
		}
		s.collections[key.objectType].byID[key.id].Object = obj
	}
}

func keyOf(obj domain.Object) (recordKey, error) {
	if obj == nil {
		return recordKey{}, fmt.Errorf("%w: nil object", domain.ErrObjectTypeMismatch)
	}
	if obj.ObjectID() == "" {
		return recordKey{}, fmt.Errorf("%w: empty id for %s", domain.ErrObjectTypeMismatch, obj.ObjectType())
	}
	return recordKey{objectType: obj.ObjectType(), id: obj.ObjectID()}, nil
}

func cloneRecord(src domain.Record) domain.Record {
	dst := src
	if src.Object != nil {
		dst.Object = src.Object.Clone()
	}
	return dst
}

var _ domain.ObjectStore = (*objectStoreInMemory)(nil)
