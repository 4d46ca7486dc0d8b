package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

type memoryStore struct {
	mu        sync.Mutex
	products  map[int64]inventory.Product
	orders    map[int64]Order
	entries   []inventory.LedgerEntry
	nextOrder int64
	nextEntry int64
	failWrite error
}

type memoryTx struct {
	store *memoryStore
}

func newMemoryStore() *memoryStore {
	return &memoryStore{products: make(map[int64]inventory.Product), orders: make(map[int64]Order)}
}

func (s *memoryStore) addProduct(id int64, code string, stock, threshold int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = inventory.Product{ID: id, Code: code, BaselineStock: stock, CurrentStock: stock, AlertThreshold: threshold}
}

func (s *memoryStore) product(id int64) inventory.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

func (s *memoryStore) entriesFor(productID int64) []inventory.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.LedgerEntry
	for _, e := range s.entries {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out
}

func (s *memoryStore) reconstruct(productID int64) int64 {
	p := s.product(productID)
	return inventory.Reconstruct(p.BaselineStock, s.entriesFor(productID), time.Time{})
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	products := make(map[int64]inventory.Product, len(s.products))
	for k, v := range s.products {
		products[k] = v
	}
	orders := make(map[int64]Order, len(s.orders))
	for k, v := range s.orders {
		orders[k] = v
	}
	entries := append([]inventory.LedgerEntry(nil), s.entries...)
	nextOrder, nextEntry := s.nextOrder, s.nextEntry
	if err := fn(ctx, &memoryTx{store: s}); err != nil {
		s.products, s.orders, s.entries = products, orders, entries
		s.nextOrder, s.nextEntry = nextOrder, nextEntry
		return err
	}
	return nil
}

func (s *memoryStore) GetOrder(ctx context.Context, id int64) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (s *memoryStore) ListOrders(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.Direction != "" && o.Direction != filter.Direction {
			continue
		}
		if filter.ProductID != 0 && o.ProductID != filter.ProductID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	start := (filter.Page - 1) * filter.PerPage
	if start > total {
		start = total
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (tx *memoryTx) LockProduct(ctx context.Context, productID int64) (inventory.Product, error) {
	p, ok := tx.store.products[productID]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (tx *memoryTx) RecordMovement(ctx context.Context, productID, newStock int64, entry inventory.LedgerEntry) (inventory.LedgerEntry, error) {
	p := tx.store.products[productID]
	p.CurrentStock = newStock
	tx.store.products[productID] = p
	tx.store.nextEntry++
	entry.ID = tx.store.nextEntry
	tx.store.entries = append(tx.store.entries, entry)
	return entry, nil
}

func (tx *memoryTx) InsertOrder(ctx context.Context, o Order) (Order, error) {
	if _, ok := tx.store.products[o.ProductID]; !ok {
		return Order{}, shared.Invalid("product_id", fmt.Sprintf("product %d does not exist", o.ProductID))
	}
	for _, existing := range tx.store.orders {
		if existing.Number == o.Number {
			return Order{}, fmt.Errorf("%w: order number %s already exists", shared.ErrConflict, o.Number)
		}
	}
	tx.store.nextOrder++
	o.ID = tx.store.nextOrder
	tx.store.orders[o.ID] = o
	return o, nil
}

func (tx *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	o, ok := tx.store.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (tx *memoryTx) UpdateOrder(ctx context.Context, o Order) error {
	if tx.store.failWrite != nil {
		return tx.store.failWrite
	}
	if _, ok := tx.store.orders[o.ID]; !ok {
		return ErrOrderNotFound
	}
	tx.store.orders[o.ID] = o
	return nil
}

func (tx *memoryTx) DeleteOrder(ctx context.Context, id int64) error {
	delete(tx.store.orders, id)
	return nil
}

func (tx *memoryTx) CountLedgerEntries(ctx context.Context, orderID int64) (int64, error) {
	var n int64
	for _, e := range tx.store.entries {
		if e.Ref != nil && e.Ref.OrderID == orderID {
			n++
		}
	}
	return n, nil
}
