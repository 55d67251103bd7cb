//go:build integration

package test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trendstore/commerce-core/internal/cart"
	"github.com/trendstore/commerce-core/internal/catalog"
	"github.com/trendstore/commerce-core/internal/customer"
	"github.com/trendstore/commerce-core/internal/domain"
	"github.com/trendstore/commerce-core/internal/inventory"
	"github.com/trendstore/commerce-core/internal/orders"
	"github.com/trendstore/commerce-core/internal/tenant"
)

type env struct {
	db        *sql.DB
	tenantID  string
	catalog   *catalog.Repository
	ledger    *inventory.Ledger
	carts     *cart.Repository
	customers *customer.Repository
	workflow  *orders.Workflow
}

func setupEnv(ctx context.Context, t *testing.T) (*env, func()) {
	t.Helper()

	pg := SetupPostgres(ctx, t)

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		pg.Cleanup()
		t.Fatalf("failed to open database: %v", err)
	}

	tenants := tenant.NewRepository(db, "trend-store-demo")
	resolved, err := tenants.Resolve(ctx, "")
	if err != nil {
		_ = db.Close()
		pg.Cleanup()
		t.Fatalf("failed to resolve default tenant: %v", err)
	}

	catalogRepo := catalog.NewRepository(db)
	ledger := inventory.NewLedger(db)
	customerRepo := customer.NewRepository(db)
	cartRepo := cart.NewRepository(db, catalogRepo, customerRepo)
	workflow := orders.NewWorkflow(db, ledger, catalogRepo, cartRepo, customerRepo)

	e := &env{
		db:        db,
		tenantID:  resolved.ID,
		catalog:   catalogRepo,
		ledger:    ledger,
		carts:     cartRepo,
		customers: customerRepo,
		workflow:  workflow,
	}

	cleanup := func() {
		_ = db.Close()
		pg.Cleanup()
	}

	return e, cleanup
}

// seedVariant creates a published product with one variant and the given
// stock, returning the variant id.
func seedVariant(ctx context.Context, t *testing.T, e *env, title string, price int64, stock int) string {
	t.Helper()

	product, err := e.catalog.CreateProduct(ctx, e.tenantID, catalog.CreateProductInput{
		Title:  title,
		Handle: fmt.Sprintf("%s-%s", title, uuid.New().String()[:8]),
		Price:  price,
	})
	if err != nil {
		t.Fatalf("failed to create product: %v", err)
	}

	published := domain.ProductStatusPublished
	if _, err := e.catalog.UpdateProduct(ctx, e.tenantID, product.ID, catalog.UpdateProductInput{Status: &published}); err != nil {
		t.Fatalf("failed to publish product: %v", err)
	}

	variantID := product.Variants[0].ID
	if _, err := e.ledger.AdjustStock(ctx, e.tenantID, variantID, stock, 5, false); err != nil {
		t.Fatalf("failed to set stock: %v", err)
	}

	return variantID
}

func TestCheckoutFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	e, cleanup := setupEnv(ctx, t)
	defer cleanup()

	variantID := seedVariant(ctx, t, e, "sneaker", 4500, 10)

	created, err := e.carts.Create(ctx, e.tenantID, "", []cart.SeedItem{{VariantID: variantID, Quantity: 2}})
	if err != nil {
		t.Fatalf("failed to create cart: %v", err)
	}

	key := uuid.New().String()
	order, isNew, err := e.workflow.CreateFromCart(ctx, e.tenantID, created.ID, orders.CreateInput{
		TaxTotal:       450,
		ShippingTotal:  500,
		IdempotencyKey: key,
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if !isNew {
		t.Fatal("expected a new order on first checkout")
	}

	if order.Status != domain.OrderStatusPendingPayment {
		t.Fatalf("expected status %s, got %s", domain.OrderStatusPendingPayment, order.Status)
	}
	if order.Subtotal != 9000 {
		t.Fatalf("expected subtotal 9000, got %d", order.Subtotal)
	}
	if order.Total != 9950 {
		t.Fatalf("expected total 9950, got %d", order.Total)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 2 {
		t.Fatalf("unexpected order items: %+v", order.Items)
	}

	stock, err := e.ledger.GetStock(ctx, e.tenantID, variantID)
	if err != nil {
		t.Fatalf("failed to get stock: %v", err)
	}
	if stock.Reserved != 2 {
		t.Fatalf("expected 2 units reserved, got %d", stock.Reserved)
	}
	if stock.OnHand != 10 {
		t.Fatalf("expected stock on hand unchanged at 10, got %d", stock.OnHand)
	}

	consumed, err := e.carts.Get(ctx, e.tenantID, created.ID)
	if err != nil {
		t.Fatalf("failed to get cart: %v", err)
	}
	if consumed.OrderID != order.ID {
		t.Fatalf("expected cart stamped with order %s, got %q", order.ID, consumed.OrderID)
	}

	t.Run("consumed cart rejects mutation", func(t *testing.T) {
		if _, err := e.carts.AddItem(ctx, e.tenantID, created.ID, variantID, 1); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("re-checkout returns existing order", func(t *testing.T) {
		again, isNew, err := e.workflow.CreateFromCart(ctx, e.tenantID, created.ID, orders.CreateInput{IdempotencyKey: uuid.New().String()})
		if err != nil {
			t.Fatalf("re-checkout failed: %v", err)
		}
		if isNew {
			t.Fatal("expected replay, not a new order")
		}
		if again.ID != order.ID {
			t.Fatalf("expected order %s, got %s", order.ID, again.ID)
		}

		stock, err := e.ledger.GetStock(ctx, e.tenantID, variantID)
		if err != nil {
			t.Fatalf("failed to get stock: %v", err)
		}
		if stock.Reserved != 2 {
			t.Fatalf("expected reservation unchanged at 2, got %d", stock.Reserved)
		}
	})
}

func TestIdempotentCreation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	e, cleanup := setupEnv(ctx, t)
	defer cleanup()

	variantID := seedVariant(ctx, t, e, "mug", 1200, 20)
	key := uuid.New().String()

	input := orders.CreateInput{
		Items:          []orders.ItemInput{{VariantID: variantID, Quantity: 3}},
		IdempotencyKey: key,
	}

	first, isNew, err := e.workflow.Create(ctx, e.tenantID, input)
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if !isNew {
		t.Fatal("expected first create to be new")
	}

	second, isNew, err := e.workflow.Create(ctx, e.tenantID, input)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if isNew {
		t.Fatal("expected replay, not a new order")
	}
	if second.ID != first.ID {
		t.Fatalf("expected order %s, got %s", first.ID, second.ID)
	}

	stock, err := e.ledger.GetStock(ctx, e.tenantID, variantID)
	if err != nil {
		t.Fatalf("failed to get stock: %v", err)
	}
	if stock.Reserved != 3 {
		t.Fatalf("expected a single reservation of 3, got %d", stock.Reserved)
	}

	t.Run("key reuse with different items conflicts", func(t *testing.T) {
		_, _, err := e.workflow.Create(ctx, e.tenantID, orders.CreateInput{
			Items:          []orders.ItemInput{{VariantID: variantID, Quantity: 5}},
			IdempotencyKey: key,
		})
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})
}

func TestConcurrentCheckoutLastUnit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	e, cleanup := setupEnv(ctx, t)
	defer cleanup()

	variantID := seedVariant(ctx, t, e, "limited-print", 25000, 1)

	const shoppers = 8
	results := make([]error, shoppers)
	var wg sync.WaitGroup

	for i := 0; i < shoppers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := e.workflow.Create(ctx, e.tenantID, orders.CreateInput{
				Items:          []orders.ItemInput{{VariantID: variantID, Quantity: 1}},
				IdempotencyKey: uuid.New().String(),
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	var won, outOfStock int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, domain.ErrInsufficientStock):
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
	if outOfStock != shoppers-1 {
		t.Fatalf("expected %d out-of-stock losers, got %d", shoppers-1, outOfStock)
	}

	stock, err := e.ledger.GetStock(ctx, e.tenantID, variantID)
	if err != nil {
		t.Fatalf("failed to get stock: %v", err)
	}
	if stock.Reserved != 1 {
		t.Fatalf("expected exactly 1 unit reserved, got %d", stock.Reserved)
	}

	var orderCount int
	if err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orderCount); err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if orderCount != 1 {
		t.Fatalf("expected exactly 1 persisted order, got %d", orderCount)
	}
}

func TestInsufficientStockRollsBack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	e, cleanup := setupEnv(ctx, t)
	defer cleanup()

	plentiful := seedVariant(ctx, t, e, "tote", 1500, 100)
	scarce := seedVariant(ctx, t, e, "poster", 900, 2)

	_, _, err := e.workflow.Create(ctx, e.tenantID, orders.CreateInput{
		Items: []orders.ItemInput{
			{VariantID: plentiful, Quantity: 5},
			{VariantID: scarce, Quantity: 3},
		},
		IdempotencyKey: uuid.New().String(),
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	for _, variantID := range []string{plentiful, scarce} {
		stock, err := e.ledger.GetStock(ctx, e.tenantID, variantID)
		if err != nil {
			t.Fatalf("failed to get stock: %v", err)
		}
		if stock.Reserved != 0 {
			t.Fatalf("variant %s: expected 0 reserved after rollback, got %d", variantID, stock.Reserved)
		}
	}

	var orderCount int
	if err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orderCount); err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("expected no persisted orders, got %d", orderCount)
	}
}

func TestOrderLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	e, cleanup := setupEnv(ctx, t)
	defer cleanup()

	createOrder := func(t *testing.T, variantID string, qty int) *domain.Order {
		t.Helper()
		order, _, err := e.workflow.Create(ctx, e.tenantID, orders.CreateInput{
			Items:          []orders.ItemInput{{VariantID: variantID, Quantity: qty}},
			IdempotencyKey: uuid.New().String(),
		})
		if err != nil {
			t.Fatalf("failed to create order: %v", err)
		}
		return order
	}

	t.Run("fulfillment commits reservations", func(t *testing.T) {
		variantID := seedVariant(ctx, t, e, "hoodie", 6000, 10)
		order := createOrder(t, variantID, 4)

		for _, target := range []domain.OrderStatus{domain.OrderStatusPaid, domain.OrderStatusFulfilling} {
			if _, _, err := e.workflow.Transition(ctx, e.tenantID, order.ID, target); err != nil {
				t.Fatalf("transition to %s failed: %v", target, err)
			}
		}

		stock, err := e.ledger.GetStock(ctx, e.tenantID, variantID)
		if err != nil {
			t.Fatalf("failed to get stock: %v", err)
		}
		if stock.OnHand != 6 {
			t.Fatalf("expected stock on hand 6 after commit, got %d", stock.OnHand)
		}
		if stock.Reserved != 0 {
			t.Fatalf("expected 0 reserved after commit, got %d", stock.Reserved)
		}

		reservations, err := e.ledger.ListReservations(ctx, order.ID)
		if err != nil {
			t.Fatalf("failed to list reservations: %v", err)
		}
		if len(reservations) != 1 || reservations[0].Status != domain.ReservationCommitted {
			t.Fatalf("expected one committed reservation, got %+v", reservations)
		}
	})

	t.Run("cancellation releases reservations", func(t *testing.T) {
		variantID := seedVariant(ctx, t, e, "beanie", 1800, 5)
		order := createOrder(t, variantID, 2)

		if _, _, err := e.workflow.Transition(ctx, e.tenantID, order.ID, domain.OrderStatusCanceled); err != nil {
			t.Fatalf("cancellation failed: %v", err)
		}

		stock, err := e.ledger.GetStock(ctx, e.tenantID, variantID)
		if err != nil {
			t.Fatalf("failed to get stock: %v", err)
		}
		if stock.Reserved != 0 {
			t.Fatalf("expected 0 reserved after cancellation, got %d", stock.Reserved)
		}
		if stock.OnHand != 5 {
			t.Fatalf("expected stock on hand restored to 5, got %d", stock.OnHand)
		}

		reservations, err := e.ledger.ListReservations(ctx, order.ID)
		if err != nil {
			t.Fatalf("failed to list reservations: %v", err)
		}
		if len(reservations) != 1 || reservations[0].Status != domain.ReservationReleased {
			t.Fatalf("expected one released reservation, got %+v", reservations)
		}
	})

	t.Run("illegal transition rejected", func(t *testing.T) {
		variantID := seedVariant(ctx, t, e, "cap", 2200, 5)
		order := createOrder(t, variantID, 1)

		_, _, err := e.workflow.Transition(ctx, e.tenantID, order.ID, domain.OrderStatusDelivered)
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("same-status transition is a no-op", func(t *testing.T) {
		variantID := seedVariant(ctx, t, e, "scarf", 3000, 5)
		order := createOrder(t, variantID, 1)

		updated, from, err := e.workflow.Transition(ctx, e.tenantID, order.ID, domain.OrderStatusPendingPayment)
		if err != nil {
			t.Fatalf("no-op transition failed: %v", err)
		}
		if from != domain.OrderStatusPendingPayment || updated.Status != domain.OrderStatusPendingPayment {
			t.Fatalf("expected status unchanged, got from=%s status=%s", from, updated.Status)
		}
	})
}

func TestOrderPriceImmutableAfterCatalogEdit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	e, cleanup := setupEnv(ctx, t)
	defer cleanup()

	variantID := seedVariant(ctx, t, e, "jacket", 12000, 10)

	order, _, err := e.workflow.Create(ctx, e.tenantID, orders.CreateInput{
		Items:          []orders.ItemInput{{VariantID: variantID, Quantity: 1}},
		IdempotencyKey: uuid.New().String(),
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	if _, err := e.db.ExecContext(ctx, `UPDATE product_variants SET price = 99000 WHERE id = $1`, variantID); err != nil {
		t.Fatalf("failed to change catalog price: %v", err)
	}

	fetched, err := e.workflow.GetByID(ctx, e.tenantID, order.ID)
	if err != nil {
		t.Fatalf("failed to fetch order: %v", err)
	}
	if fetched.Items[0].UnitPrice != 12000 {
		t.Fatalf("expected snapshotted unit price 12000, got %d", fetched.Items[0].UnitPrice)
	}
	if fetched.Total != 12000 {
		t.Fatalf("expected total 12000, got %d", fetched.Total)
	}
}

func TestTenantIsolation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	e, cleanup := setupEnv(ctx, t)
	defer cleanup()

	otherTenantID := uuid.New().String()
	if _, err := e.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, slug, is_active) VALUES ($1, 'Other Store', 'other-store', TRUE)
	`, otherTenantID); err != nil {
		t.Fatalf("failed to insert second tenant: %v", err)
	}

	variantID := seedVariant(ctx, t, e, "belt", 3500, 5)

	order, _, err := e.workflow.Create(ctx, e.tenantID, orders.CreateInput{
		Items:          []orders.ItemInput{{VariantID: variantID, Quantity: 1}},
		IdempotencyKey: uuid.New().String(),
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	if _, err := e.workflow.GetByID(ctx, otherTenantID, order.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}

	if _, err := e.catalog.GetVariant(ctx, otherTenantID, variantID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected variant hidden across tenants, got %v", err)
	}

	list, err := e.workflow.List(ctx, otherTenantID)
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no orders for other tenant, got %d", len(list))
	}
}

func TestCustomerScoping(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	e, cleanup := setupEnv(ctx, t)
	defer cleanup()

	variantID := seedVariant(ctx, t, e, "watch", 18000, 10)

	registered, err := e.customers.Create(ctx, e.tenantID, "shopper@example.com", "Shopper")
	if err != nil {
		t.Fatalf("failed to register customer: %v", err)
	}

	t.Run("registered customer attaches to the order", func(t *testing.T) {
		order, _, err := e.workflow.Create(ctx, e.tenantID, orders.CreateInput{
			CustomerID:     registered.ID,
			Items:          []orders.ItemInput{{VariantID: variantID, Quantity: 1}},
			IdempotencyKey: uuid.New().String(),
		})
		if err != nil {
			t.Fatalf("failed to create order: %v", err)
		}
		if order.CustomerID != registered.ID {
			t.Fatalf("expected customer %s on order, got %q", registered.ID, order.CustomerID)
		}
	})

	t.Run("unknown customer id is rejected", func(t *testing.T) {
		_, _, err := e.workflow.Create(ctx, e.tenantID, orders.CreateInput{
			CustomerID:     uuid.New().String(),
			Items:          []orders.ItemInput{{VariantID: variantID, Quantity: 1}},
			IdempotencyKey: uuid.New().String(),
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("another tenant's customer is rejected", func(t *testing.T) {
		otherTenantID := uuid.New().String()
		if _, err := e.db.ExecContext(ctx, `
			INSERT INTO tenants (id, name, slug, is_active) VALUES ($1, 'Second Store', 'second-store', TRUE)
		`, otherTenantID); err != nil {
			t.Fatalf("failed to insert second tenant: %v", err)
		}

		foreign, err := e.customers.Create(ctx, otherTenantID, "foreign@example.com", "")
		if err != nil {
			t.Fatalf("failed to create foreign customer: %v", err)
		}

		_, _, err = e.workflow.Create(ctx, e.tenantID, orders.CreateInput{
			CustomerID:     foreign.ID,
			Items:          []orders.ItemInput{{VariantID: variantID, Quantity: 1}},
			IdempotencyKey: uuid.New().String(),
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for cross-tenant customer, got %v", err)
		}

		if _, err := e.carts.Create(ctx, e.tenantID, foreign.ID, nil); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on cart create, got %v", err)
		}
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		if _, err := e.customers.Create(ctx, e.tenantID, "shopper@example.com", ""); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("list is tenant scoped", func(t *testing.T) {
		customers, err := e.customers.List(ctx, e.tenantID)
		if err != nil {
			t.Fatalf("failed to list customers: %v", err)
		}
		if len(customers) != 1 || customers[0].ID != registered.ID {
			t.Fatalf("expected only the registered customer, got %+v", customers)
		}
	})
}

func TestKafkaConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	if len(brokers) == 0 {
		t.Fatal("expected at least one broker")
	}

	t.Logf("kafka brokers: %v", brokers)
}
