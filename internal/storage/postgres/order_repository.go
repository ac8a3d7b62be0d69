package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const orderColumns = `id, buyer_id, seller_id, status, total_amount, currency,
	payment_method, payment_transaction_id, payment_status, paid_at,
	shipping_recipient_name, shipping_address, shipping_city, shipping_state, shipping_zip_code,
	shipping_country, shipping_carrier, shipping_tracking_number, shipping_estimated_delivery,
	version, created_at, updated_at`

type orderRepository struct {
	tx *pgTx
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                 domain.Order
		status, payStatus string
		paidAt, eta       sql.NullTime
	)
	if err := row.Scan(
		&o.ID, &o.BuyerID, &o.SellerID, &status, &o.TotalAmount, &o.Currency,
		&o.Payment.Method, &o.Payment.TransactionID, &payStatus, &paidAt,
		&o.Shipping.RecipientName, &o.Shipping.Address, &o.Shipping.City, &o.Shipping.State, &o.Shipping.ZipCode,
		&o.Shipping.Country, &o.Shipping.Carrier, &o.Shipping.TrackingNumber, &eta,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	o.Payment.Status = domain.PaymentStatus(payStatus)
	o.Payment.PaidAt = timePtr(paidAt)
	o.Shipping.EstimatedDelivery = timePtr(eta)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func (r orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r orderRepository) get(ctx context.Context, query, id string) (domain.Order, error) {
	order, err := scanOrder(r.tx.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", translate(err))
	}
	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func (r orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Order{}, err
	}
	if order.ID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", domain.ErrInvalidInput)
	}

	now := r.tx.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	order.Version = 1

	if _, err := r.tx.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
	`, orderArgs(order)...); err != nil {
		if _, ok := uniqueViolation(err); ok {
			return domain.Order{}, fmt.Errorf("order %s: %w", order.ID, domain.ErrAlreadyExists)
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", translate(err))
	}

	for i, item := range order.Items {
		if _, err := r.tx.tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, listing_id, title, quantity, price_per_unit, image_url)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, order.ID, i, item.ListingID, item.Title, item.Quantity, item.PricePerUnit, item.ImageURL); err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", translate(err))
		}
	}
	return order.Clone(), nil
}

// Update блокирует строку заказа, применяет fn и сохраняет результат со следующей версией.
// Позиции заказа неизменны и не перезаписываются.
func (r orderRepository) Update(ctx context.Context, id string, fn func(*domain.Order) error) (domain.Order, error) {
	if err := r.tx.writable(ctx); err != nil {
		return domain.Order{}, err
	}

	current, err := r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return domain.Order{}, err
	}

	next := current.Clone()
	if err := fn(&next); err != nil {
		return domain.Order{}, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Items = current.Items
	next.Version = current.Version + 1
	next.UpdatedAt = r.tx.now()

	res, err := r.tx.tx.ExecContext(ctx, `
		UPDATE orders
		SET buyer_id = $2, seller_id = $3, status = $4, total_amount = $5, currency = $6,
		    payment_method = $7, payment_transaction_id = $8, payment_status = $9, paid_at = $10,
		    shipping_recipient_name = $11, shipping_address = $12, shipping_city = $13,
		    shipping_state = $14, shipping_zip_code = $15, shipping_country = $16,
		    shipping_carrier = $17, shipping_tracking_number = $18, shipping_estimated_delivery = $19,
		    version = $20, created_at = $21, updated_at = $22
		WHERE id = $1
		  AND version = $23
	`, append(orderArgs(next), current.Version)...)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", translate(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Order{}, domain.ErrConflictRetryable
	}
	return next, nil
}

func (r orderRepository) ListByBuyer(ctx context.Context, buyerID string, filter domain.OrderFilter) ([]domain.Order, error) {
	return r.list(ctx, "buyer_id", buyerID, filter)
}

func (r orderRepository) ListBySeller(ctx context.Context, sellerID string, filter domain.OrderFilter) ([]domain.Order, error) {
	return r.list(ctx, "seller_id", sellerID, filter)
}

func (r orderRepository) list(ctx context.Context, column, value string, filter domain.OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + column + ` = $1`
	args := []any{value}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := r.tx.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", translate(err))
	}
	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	// Соединение транзакции одно: позиции читаем только после закрытия курсора.
	_ = rows.Close()

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (r orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.tx.tx.QueryContext(ctx, `
		SELECT listing_id, title, quantity, price_per_unit, image_url
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", translate(err))
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ListingID, &item.Title, &item.Quantity, &item.PricePerUnit, &item.ImageURL); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func orderArgs(o domain.Order) []any {
	return []any{
		o.ID, o.BuyerID, o.SellerID, string(o.Status), o.TotalAmount, o.Currency,
		o.Payment.Method, o.Payment.TransactionID, string(o.Payment.Status), nullTime(o.Payment.PaidAt),
		o.Shipping.RecipientName, o.Shipping.Address, o.Shipping.City, o.Shipping.State, o.Shipping.ZipCode,
		o.Shipping.Country, o.Shipping.Carrier, o.Shipping.TrackingNumber, nullTime(o.Shipping.EstimatedDelivery),
		o.Version, o.CreatedAt, o.UpdatedAt,
	}
}

var _ domain.OrderStore = orderRepository{}
