package id

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

func TestAllocatorNext(t *testing.T) {
	alloc := NewAllocator()

	tests := []struct {
		objectType domain.ObjectType
		prefix     string
		tag        Tag
	}{
		{domain.ObjectTypeCharge, "test_ch_", TagCharge},
		{domain.ObjectTypeCustomer, "test_cus_", TagCustomer},
		{domain.ObjectTypeCard, "test_card_", TagCard},
		{domain.ObjectTypeToken, "test_tok_", TagToken},
		{domain.ObjectTypeBalanceTransaction, "test_txn_", TagBalanceTransaction},
		{domain.ObjectTypeEvent, "test_evt_", TagEvent},
	}

	for _, tt := range tests {
		t.Run(string(tt.objectType), func(t *testing.T) {
			value := alloc.Next(tt.objectType)
			if !strings.HasPrefix(value, tt.prefix) {
				t.Fatalf("id %q must start with %q", value, tt.prefix)
			}
			if err := Parse(value, tt.tag); err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", value, err)
			}
			if !HasTag(value, tt.tag) {
				t.Fatalf("HasTag(%q, %q) = false", value, tt.tag)
			}
		})
	}
}

func TestAllocatorNextPanicsOnUnknownType(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown object type")
		}
	}()
	NewAllocator().Next(domain.ObjectType("refund"))
}

func TestParseRejectsMalformed(t *testing.T) {
	charge := New(TagCharge)

	tests := []struct {
		name  string
		value string
		tag   Tag
	}{
		{name: "no sandbox prefix", value: strings.TrimPrefix(charge, SandboxPrefix), tag: TagCharge},
		{name: "garbage", value: "bogus_card_token", tag: TagToken},
		{name: "wrong tag", value: charge, tag: TagToken},
		{name: "empty", value: "", tag: TagCharge},
		{name: "truncated suffix", value: "test_ch_123", tag: TagCharge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Parse(tt.value, tt.tag); !errors.Is(err, ErrMalformed) {
				t.Fatalf("Parse(%q) error = %v, want ErrMalformed", tt.value, err)
			}
		})
	}
}

func TestAllocatorConcurrentUnique(t *testing.T) {
	alloc := NewAllocator()

	const (
		workers = 8
		perWork = 500
	)

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWork)
		wg   sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWork)
			for i := 0; i < perWork; i++ {
				local = append(local, alloc.Next(domain.ObjectTypeCharge))
			}
			mu.Lock()
			defer mu.Unlock()
			for _, v := range local {
				seen[v] = struct{}{}
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWork {
		t.Fatalf("expected %d unique ids, got %d", workers*perWork, len(seen))
	}
}
