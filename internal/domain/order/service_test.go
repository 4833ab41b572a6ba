package order

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- In-memory store ---

// fakeStore implements Repository and Tx with transactional semantics: InTx
// serializes callers on a mutex (standing in for row locks) and restores a
// snapshot when fn fails, so rollback behavior can be asserted directly.
type fakeStore struct {
	mu         sync.Mutex
	listings   map[uuid.UUID]*fakeListing
	baskets    map[uuid.UUID][]uuid.UUID
	orders     map[uuid.UUID]*Order
	deliveries map[uuid.UUID]string

	txCount    atomic.Int32
	preReadErr error
	failStep   string

	// afterPreRead runs once, after the first EligibleItems call returns, to
	// simulate state changing between the pre-read and the transaction.
	afterPreRead func(s *fakeStore)
}

type fakeListing struct {
	priceCents *int64
	active     bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		listings:   make(map[uuid.UUID]*fakeListing),
		baskets:    make(map[uuid.UUID][]uuid.UUID),
		orders:     make(map[uuid.UUID]*Order),
		deliveries: make(map[uuid.UUID]string),
	}
}

func (s *fakeStore) addListing(priceCents *int64) uuid.UUID {
	id := uuid.New()
	s.listings[id] = &fakeListing{priceCents: priceCents, active: true}
	return id
}

func (s *fakeStore) addToBasket(buyerID uuid.UUID, listingIDs ...uuid.UUID) {
	s.baskets[buyerID] = append(s.baskets[buyerID], listingIDs...)
}

func (s *fakeStore) eligibleLocked(buyerID uuid.UUID) []EligibleItem {
	var items []EligibleItem
	for _, id := range s.baskets[buyerID] {
		if l, ok := s.listings[id]; ok && l.active {
			items = append(items, EligibleItem{ListingID: id, PriceCents: l.priceCents})
		}
	}
	return items
}

func (s *fakeStore) EligibleItems(_ context.Context, buyerID uuid.UUID) ([]EligibleItem, error) {
	if s.preReadErr != nil {
		return nil, s.preReadErr
	}

	s.mu.Lock()
	items := s.eligibleLocked(buyerID)
	hook := s.afterPreRead
	s.afterPreRead = nil
	s.mu.Unlock()

	if hook != nil {
		hook(s)
	}
	return items, nil
}

func (s *fakeStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount.Add(1)

	snap := s.snapshot()
	if err := fn(&fakeTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *fakeStore) ListByBuyer(_ context.Context, buyerID uuid.UUID) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Order
	for _, o := range s.orders {
		if o.BuyerID == buyerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

type storeSnapshot struct {
	listings   map[uuid.UUID]fakeListing
	baskets    map[uuid.UUID][]uuid.UUID
	orders     map[uuid.UUID]Order
	deliveries map[uuid.UUID]string
}

func (s *fakeStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		listings:   make(map[uuid.UUID]fakeListing, len(s.listings)),
		baskets:    make(map[uuid.UUID][]uuid.UUID, len(s.baskets)),
		orders:     make(map[uuid.UUID]Order, len(s.orders)),
		deliveries: make(map[uuid.UUID]string, len(s.deliveries)),
	}
	for id, l := range s.listings {
		snap.listings[id] = *l
	}
	for b, ids := range s.baskets {
		snap.baskets[b] = append([]uuid.UUID(nil), ids...)
	}
	for id, o := range s.orders {
		snap.orders[id] = *o
	}
	for id, st := range s.deliveries {
		snap.deliveries[id] = st
	}
	return snap
}

func (s *fakeStore) restore(snap storeSnapshot) {
	s.listings = make(map[uuid.UUID]*fakeListing, len(snap.listings))
	for id, l := range snap.listings {
		cp := l
		s.listings[id] = &cp
	}
	s.baskets = make(map[uuid.UUID][]uuid.UUID, len(snap.baskets))
	for b, ids := range snap.baskets {
		s.baskets[b] = append([]uuid.UUID(nil), ids...)
	}
	s.orders = make(map[uuid.UUID]*Order, len(snap.orders))
	for id, o := range snap.orders {
		cp := o
		s.orders[id] = &cp
	}
	s.deliveries = make(map[uuid.UUID]string, len(snap.deliveries))
	for id, st := range snap.deliveries {
		s.deliveries[id] = st
	}
}

type fakeTx struct {
	s *fakeStore
}

func (t *fakeTx) fail(step string) error {
	if t.s.failStep == step {
		return errors.Errorf("injected failure at %s", step)
	}
	return nil
}

func (t *fakeTx) EligibleItemsForUpdate(_ context.Context, buyerID uuid.UUID) ([]EligibleItem, error) {
	if err := t.fail("locked read"); err != nil {
		return nil, err
	}
	return t.s.eligibleLocked(buyerID), nil
}

func (t *fakeTx) InsertOrder(_ context.Context, buyerID uuid.UUID, totalCents int64) (uuid.UUID, error) {
	if err := t.fail("insert order"); err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	t.s.orders[id] = &Order{ID: id, BuyerID: buyerID, TotalCents: totalCents, Status: StatusConfirmed}
	return id, nil
}

func (t *fakeTx) InsertDelivery(_ context.Context, orderID uuid.UUID) error {
	if err := t.fail("insert delivery"); err != nil {
		return err
	}
	t.s.deliveries[orderID] = "pending"
	return nil
}

func (t *fakeTx) InsertLineItems(_ context.Context, orderID uuid.UUID, items []EligibleItem) error {
	if err := t.fail("insert line items"); err != nil {
		return err
	}
	o := t.s.orders[orderID]
	for _, it := range items {
		var price int64
		if it.PriceCents != nil {
			price = *it.PriceCents
		}
		o.Items = append(o.Items, LineItem{ListingID: it.ListingID, PriceCents: price})
	}
	return nil
}

func (t *fakeTx) RetireListings(_ context.Context, listingIDs []uuid.UUID) error {
	if err := t.fail("retire listings"); err != nil {
		return err
	}
	for _, id := range listingIDs {
		t.s.listings[id].active = false
	}
	return nil
}

func (t *fakeTx) ClearBasket(_ context.Context, buyerID uuid.UUID) error {
	if err := t.fail("clear basket"); err != nil {
		return err
	}
	delete(t.s.baskets, buyerID)
	return nil
}

// --- Helpers ---

func cents(v int64) *int64 { return &v }

// --- Tests ---

func TestConfirm_EmptyBasket(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	buyer := uuid.New()

	_, err := svc.Confirm(context.Background(), buyer)

	require.ErrorIs(t, err, ErrNoEligibleItems)
	assert.Equal(t, int32(0), store.txCount.Load(), "empty basket must not open a transaction")
}

func TestConfirm_AllItemsInactive(t *testing.T) {
	store := newFakeStore()
	buyer := uuid.New()
	l1 := store.addListing(cents(1000))
	store.listings[l1].active = false
	store.addToBasket(buyer, l1)

	svc := NewService(store)
	_, err := svc.Confirm(context.Background(), buyer)

	require.ErrorIs(t, err, ErrNoEligibleItems)
	assert.Equal(t, int32(0), store.txCount.Load())
	assert.Len(t, store.baskets[buyer], 1, "basket must stay untouched")
}

func TestConfirm_Success(t *testing.T) {
	store := newFakeStore()
	buyer := uuid.New()
	l1 := store.addListing(cents(2500))
	l2 := store.addListing(cents(500))
	l3 := store.addListing(nil) // free item
	store.addToBasket(buyer, l1, l2, l3)

	svc := NewService(store)
	conf, err := svc.Confirm(context.Background(), buyer)

	require.NoError(t, err)
	assert.Equal(t, int64(3000), conf.TotalCents)

	o, ok := store.orders[conf.OrderID]
	require.True(t, ok)
	assert.Equal(t, buyer, o.BuyerID)
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Len(t, o.Items, 3)

	assert.Equal(t, "pending", store.deliveries[conf.OrderID])
	assert.False(t, store.listings[l1].active)
	assert.False(t, store.listings[l2].active)
	assert.False(t, store.listings[l3].active)
	assert.Empty(t, store.baskets[buyer])
}

func TestConfirm_FreeItemsOnly(t *testing.T) {
	store := newFakeStore()
	buyer := uuid.New()
	l1 := store.addListing(nil)
	store.addToBasket(buyer, l1)

	svc := NewService(store)
	conf, err := svc.Confirm(context.Background(), buyer)

	require.NoError(t, err)
	assert.Equal(t, int64(0), conf.TotalCents)
	assert.Len(t, store.orders[conf.OrderID].Items, 1)
}

func TestConfirm_StaleRowsExcludedButCleared(t *testing.T) {
	store := newFakeStore()
	buyer := uuid.New()
	active := store.addListing(cents(1500))
	sold := store.addListing(cents(9900))
	store.listings[sold].active = false
	store.addToBasket(buyer, active, sold)

	svc := NewService(store)
	conf, err := svc.Confirm(context.Background(), buyer)

	require.NoError(t, err)
	assert.Equal(t, int64(1500), conf.TotalCents)

	o := store.orders[conf.OrderID]
	require.Len(t, o.Items, 1)
	assert.Equal(t, active, o.Items[0].ListingID)

	// The stale row leaves the basket along with everything else.
	assert.Empty(t, store.baskets[buyer])
	// The already-inactive listing is untouched, not retired twice.
	assert.False(t, store.listings[sold].active)
}

func TestConfirm_BasketDrainsBetweenPreReadAndTx(t *testing.T) {
	store := newFakeStore()
	buyer := uuid.New()
	l1 := store.addListing(cents(1000))
	store.addToBasket(buyer, l1)

	store.afterPreRead = func(s *fakeStore) {
		s.mu.Lock()
		s.listings[l1].active = false
		s.mu.Unlock()
	}

	svc := NewService(store)
	_, err := svc.Confirm(context.Background(), buyer)

	require.ErrorIs(t, err, ErrNoEligibleItems)
	assert.Equal(t, int32(1), store.txCount.Load())
	assert.Len(t, store.baskets[buyer], 1, "rollback must keep the basket intact")
	assert.Empty(t, store.orders)
}

func TestConfirm_PreReadError(t *testing.T) {
	store := newFakeStore()
	store.preReadErr = errors.New("connection refused")

	svc := NewService(store)
	_, err := svc.Confirm(context.Background(), uuid.New())

	var cfErr *CommitFailedError
	require.ErrorAs(t, err, &cfErr)
	assert.Contains(t, cfErr.Error(), "connection refused")
}

func TestConfirm_WriteFailureRollsBack(t *testing.T) {
	steps := []string{"locked read", "insert order", "insert delivery", "insert line items", "retire listings", "clear basket"}

	for _, step := range steps {
		t.Run(step, func(t *testing.T) {
			store := newFakeStore()
			buyer := uuid.New()
			l1 := store.addListing(cents(2000))
			l2 := store.addListing(cents(3000))
			store.addToBasket(buyer, l1, l2)
			store.failStep = step

			svc := NewService(store)
			_, err := svc.Confirm(context.Background(), buyer)

			var cfErr *CommitFailedError
			require.ErrorAs(t, err, &cfErr)

			// Nothing of the commit sequence survives the rollback.
			assert.Empty(t, store.orders)
			assert.Empty(t, store.deliveries)
			assert.True(t, store.listings[l1].active)
			assert.True(t, store.listings[l2].active)
			assert.Len(t, store.baskets[buyer], 2)
		})
	}
}

func TestConfirm_RetryAfterFailureSucceeds(t *testing.T) {
	store := newFakeStore()
	buyer := uuid.New()
	l1 := store.addListing(cents(4200))
	store.addToBasket(buyer, l1)
	store.failStep = "insert delivery"

	svc := NewService(store)
	_, err := svc.Confirm(context.Background(), buyer)
	var cfErr *CommitFailedError
	require.ErrorAs(t, err, &cfErr)

	store.failStep = ""
	conf, err := svc.Confirm(context.Background(), buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(4200), conf.TotalCents)
}

func TestConfirm_ConcurrentCommitsSameListing(t *testing.T) {
	store := newFakeStore()
	contested := store.addListing(cents(5000))

	buyerA := uuid.New()
	buyerB := uuid.New()
	store.addToBasket(buyerA, contested)
	store.addToBasket(buyerB, contested)

	svc := NewService(store)

	type result struct {
		conf Confirmation
		err  error
	}
	results := make(chan result, 2)

	var wg sync.WaitGroup
	for _, buyer := range []uuid.UUID{buyerA, buyerB} {
		wg.Add(1)
		go func(b uuid.UUID) {
			defer wg.Done()
			conf, err := svc.Confirm(context.Background(), b)
			results <- result{conf: conf, err: err}
		}(buyer)
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for r := range results {
		if r.err == nil {
			wins++
			assert.Equal(t, int64(5000), r.conf.TotalCents)
		} else {
			losses++
			assert.ErrorIs(t, r.err, ErrNoEligibleItems)
		}
	}

	assert.Equal(t, 1, wins, "exactly one commit may win the listing")
	assert.Equal(t, 1, losses)
	assert.Len(t, store.orders, 1)
	assert.False(t, store.listings[contested].active)
}

func TestConfirm_ConcurrentDisjointBaskets(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	const buyers = 8
	buyerIDs := make([]uuid.UUID, buyers)
	for i := range buyerIDs {
		b := uuid.New()
		buyerIDs[i] = b
		store.addToBasket(b, store.addListing(cents(int64(100*(i+1)))))
	}

	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i, b := range buyerIDs {
		wg.Add(1)
		go func(i int, b uuid.UUID) {
			defer wg.Done()
			_, errs[i] = svc.Confirm(context.Background(), b)
		}(i, b)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "buyer %d", i)
	}
	assert.Len(t, store.orders, buyers)
}

func TestTotalCents(t *testing.T) {
	items := []EligibleItem{
		{ListingID: uuid.New(), PriceCents: cents(199)},
		{ListingID: uuid.New(), PriceCents: nil},
		{ListingID: uuid.New(), PriceCents: cents(801)},
	}
	assert.Equal(t, int64(1000), TotalCents(items))
	assert.Equal(t, int64(0), TotalCents(nil))
}

func TestList(t *testing.T) {
	store := newFakeStore()
	buyer := uuid.New()
	store.addToBasket(buyer, store.addListing(cents(700)))

	svc := NewService(store)
	conf, err := svc.Confirm(context.Background(), buyer)
	require.NoError(t, err)

	orders, err := svc.List(context.Background(), buyer)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, conf.OrderID, orders[0].ID)
	assert.Equal(t, int64(700), orders[0].TotalCents)

	other, err := svc.List(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}
