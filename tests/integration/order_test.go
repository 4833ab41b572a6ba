//go:build integration

package integration

import (
	"net/http"
	"sync"
	"testing"
)

func TestConfirmOrder_EmptyBasket(t *testing.T) {
	clearBasket(t)

	resp := doPost(t, "/api/orders/confirm", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if body.Code != http.StatusConflict {
		t.Errorf("error code: got %d", body.Code)
	}
}

func TestConfirmOrder_FullFlow(t *testing.T) {
	clearBasket(t)

	paid := createListing(t, "Flow test lamp", cents(12000))
	free := createListing(t, "Flow test magazines", nil)
	addToBasket(t, paid)
	addToBasket(t, free)

	// Basket shows both items before the commit.
	basketResp := doGet(t, "/api/basket")
	items := decodeJSON[[]basketItemResponse](t, basketResp)
	basketResp.Body.Close()
	if len(items) != 2 {
		t.Fatalf("expected 2 basket items, got %d", len(items))
	}

	resp := doPost(t, "/api/orders/confirm", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	conf := decodeJSON[confirmResponse](t, resp)
	if !uuidPattern.MatchString(conf.OrderID) {
		t.Errorf("order id %q is not a valid UUID", conf.OrderID)
	}
	if conf.TotalCents != 12000 {
		t.Errorf("total_cents: got %d, want 12000", conf.TotalCents)
	}

	// Basket is empty after the commit.
	basketResp = doGet(t, "/api/basket")
	items = decodeJSON[[]basketItemResponse](t, basketResp)
	basketResp.Body.Close()
	if len(items) != 0 {
		t.Errorf("expected empty basket, got %d items", len(items))
	}

	// Both listings are retired.
	for _, id := range []string{paid, free} {
		get := doGet(t, "/api/listings/"+id)
		l := decodeJSON[listingResponse](t, get)
		get.Body.Close()
		if l.IsActive {
			t.Errorf("listing %s still active after sale", id)
		}
	}

	// The order appears in history with both line items.
	ordersResp := doGet(t, "/api/orders")
	orders := decodeJSON[[]orderResponse](t, ordersResp)
	ordersResp.Body.Close()

	var found *orderResponse
	for i := range orders {
		if orders[i].OrderID == conf.OrderID {
			found = &orders[i]
		}
	}
	if found == nil {
		t.Fatal("confirmed order missing from history")
	}
	if found.Status != "confirmed" {
		t.Errorf("status: got %q", found.Status)
	}
	if len(found.Items) != 2 {
		t.Errorf("expected 2 line items, got %d", len(found.Items))
	}

	// A pending delivery was created in the same commit.
	delResp := doGet(t, "/api/deliveries")
	deliveries := decodeJSON[[]deliveryResponse](t, delResp)
	delResp.Body.Close()

	var delivery *deliveryResponse
	for i := range deliveries {
		if deliveries[i].OrderID == conf.OrderID {
			delivery = &deliveries[i]
		}
	}
	if delivery == nil {
		t.Fatal("no delivery for confirmed order")
	}
	if delivery.Status != "pending" {
		t.Errorf("delivery status: got %q, want pending", delivery.Status)
	}
}

func TestBasket_SoldListingRejected(t *testing.T) {
	clearBasket(t)

	keep := createListing(t, "Still available shelf", cents(5000))
	gone := createListing(t, "Sells out first", cents(90000))

	// Sell "gone" first, then try to put it into the basket again.
	addToBasket(t, gone)
	resp := doPost(t, "/api/orders/confirm", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first commit: expected 201, got %d", resp.StatusCode)
	}

	addToBasket(t, keep)
	addAgain := doPost(t, "/api/basket/"+gone, nil)
	defer addAgain.Body.Close()
	if addAgain.StatusCode != http.StatusConflict {
		t.Fatalf("re-add sold listing: expected 409, got %d", addAgain.StatusCode)
	}

	confirm := doPost(t, "/api/orders/confirm", nil)
	defer confirm.Body.Close()
	if confirm.StatusCode != http.StatusCreated {
		t.Fatalf("second commit: expected 201, got %d", confirm.StatusCode)
	}

	conf := decodeJSON[confirmResponse](t, confirm)
	if conf.TotalCents != 5000 {
		t.Errorf("total_cents: got %d, want 5000", conf.TotalCents)
	}
}

func TestConfirmOrder_ConcurrentCommits(t *testing.T) {
	clearBasket(t)

	id := createListing(t, "Contested turntable", cents(65000))
	addToBasket(t, id)

	// Fire several concurrent commits for the same basket. Exactly one may
	// create an order; the rest must see an empty/ineligible basket.
	const workers = 5
	codes := make([]int, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := doPost(t, "/api/orders/confirm", nil)
			codes[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	var created, conflict int
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflict++
		default:
			t.Errorf("unexpected status %d", code)
		}
	}

	if created != 1 {
		t.Errorf("expected exactly 1 created order, got %d", created)
	}
	if conflict != workers-1 {
		t.Errorf("expected %d conflicts, got %d", workers-1, conflict)
	}

	// The listing sold exactly once.
	get := doGet(t, "/api/listings/"+id)
	l := decodeJSON[listingResponse](t, get)
	get.Body.Close()
	if l.IsActive {
		t.Error("contested listing still active")
	}
}

func TestDeliveryStatusTransitions(t *testing.T) {
	clearBasket(t)

	id := createListing(t, "Delivery flow crate", cents(3000))
	addToBasket(t, id)

	confirm := doPost(t, "/api/orders/confirm", nil)
	conf := decodeJSON[confirmResponse](t, confirm)
	confirm.Body.Close()

	delResp := doGet(t, "/api/deliveries")
	deliveries := decodeJSON[[]deliveryResponse](t, delResp)
	delResp.Body.Close()

	var deliveryID string
	for _, d := range deliveries {
		if d.OrderID == conf.OrderID {
			deliveryID = d.DeliveryID
		}
	}
	if deliveryID == "" {
		t.Fatal("no delivery for order")
	}

	update := func(status string) int {
		resp := doPost(t, "/api/deliveries/"+deliveryID+"/status", map[string]string{
			"status":  status,
			"comment": "integration test",
		})
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := update("in_progress"); code != http.StatusNoContent {
		t.Fatalf("pending->in_progress: expected 204, got %d", code)
	}
	if code := update("delivered"); code != http.StatusNoContent {
		t.Fatalf("in_progress->delivered: expected 204, got %d", code)
	}

	// Terminal state is frozen.
	if code := update("pending"); code != http.StatusConflict {
		t.Fatalf("delivered->pending: expected 409, got %d", code)
	}

	// Unknown statuses are rejected outright.
	if code := update("teleported"); code != http.StatusBadRequest {
		t.Fatalf("unknown status: expected 400, got %d", code)
	}
}
