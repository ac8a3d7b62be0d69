package order

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// RequestedItem: строка запроса на покупку.
type RequestedItem struct {
	ListingID string `validate:"required"`
	Quantity  int    `validate:"gt=0"`
}

// ReserveRequest: запрос на создание заказа с резервированием остатков.
type ReserveRequest struct {
	BuyerID  string          `validate:"required"`
	SellerID string          `validate:"required"`
	Items    []RequestedItem `validate:"required,min=1,dive"`
	// Payment: необязательные платёжные данные покупателя.
	Payment *domain.PaymentDetails
}

func validateReserve(req ReserveRequest) error {
	if err := domain.ValidateStruct(req); err != nil {
		return err
	}
	if req.Payment != nil && req.Payment.Status != "" && !req.Payment.Status.Valid() {
		return fmt.Errorf("%w: unknown payment status %q", domain.ErrInvalidInput, req.Payment.Status)
	}
	return nil
}

// Reserve атомарно проверяет и списывает остатки по всем позициям и создаёт заказ в статусе PENDING.
// Любая ошибка по любой позиции откатывает все списания.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (domain.Order, error) {
	if err := validateReserve(req); err != nil {
		return domain.Order{}, domain.WrapOp(opReserve, "order", "", err)
	}

	orderID := s.newID()
	return s.execute(ctx, opReserve, orderID, func(ctx context.Context, tx domain.Tx, eff *effects) (domain.Order, error) {
		items := make([]domain.OrderItem, 0, len(req.Items))
		currency := ""

		// Позиции обрабатываются по порядку; повтор того же объявления видит уже уменьшенный остаток.
		for _, line := range req.Items {
			listing, err := tx.Listings().Get(ctx, line.ListingID)
			if err != nil {
				return domain.Order{}, fmt.Errorf("listing %s: %w", line.ListingID, err)
			}
			// SOLD без нужного остатка означает нехватку; SOLD с остатком (ручная правка) просто недоступен.
			switch {
			case listing.SellerID != req.SellerID:
				return domain.Order{}, fmt.Errorf("listing %s (%s): %w", listing.ID, listing.Status, domain.ErrListingUnavailable)
			case listing.Quantity < line.Quantity && (listing.Status == domain.ListingStatusActive || listing.Status == domain.ListingStatusSold):
				return domain.Order{}, fmt.Errorf("listing %s has %d, requested %d: %w",
					listing.ID, listing.Quantity, line.Quantity, domain.ErrInsufficientQuantity)
			case listing.Status != domain.ListingStatusActive:
				return domain.Order{}, fmt.Errorf("listing %s (%s): %w", listing.ID, listing.Status, domain.ErrListingUnavailable)
			}

			listingCurrency := listing.Currency
			if listingCurrency == "" {
				listingCurrency = domain.DefaultCurrency
			}
			if currency == "" {
				currency = listingCurrency
			} else if currency != listingCurrency {
				return domain.Order{}, fmt.Errorf("listing %s priced in %s, order in %s: %w",
					listing.ID, listingCurrency, currency, domain.ErrCurrencyMismatch)
			}

			updated, err := tx.Listings().ConditionalUpdate(ctx, listing.ID,
				domain.ListingCondition{
					Status:      domain.ListingStatusActive,
					MinQuantity: line.Quantity,
					Version:     listing.Version,
				},
				domain.ListingMutation{Delta: -line.Quantity},
			)
			if err != nil {
				return domain.Order{}, fmt.Errorf("decrement listing %s: %w", listing.ID, err)
			}
			if updated.Status == domain.ListingStatusSold {
				eff.soldOut++
			}
			eff.reserved += line.Quantity
			eff.listingIDs = append(eff.listingIDs, listing.ID)

			items = append(items, domain.OrderItem{
				ListingID:    listing.ID,
				Title:        listing.Title,
				Quantity:     line.Quantity,
				PricePerUnit: listing.Price,
				ImageURL:     listing.PrimaryImage(),
			})
		}

		payment := domain.PaymentDetails{Status: domain.PaymentStatusPending}
		if req.Payment != nil {
			payment = *req.Payment
			if payment.Status == "" {
				payment.Status = domain.PaymentStatusPending
			}
			if payment.Status == domain.PaymentStatusCompleted && payment.PaidAt == nil {
				paidAt := s.now()
				payment.PaidAt = &paidAt
			}
		}

		created, err := tx.Orders().Create(ctx, domain.Order{
			ID:          orderID,
			BuyerID:     req.BuyerID,
			SellerID:    req.SellerID,
			Items:       items,
			TotalAmount: domain.TotalOf(items),
			Currency:    currency,
			Status:      domain.OrderStatusPending,
			Payment:     payment,
		})
		if err != nil {
			return domain.Order{}, fmt.Errorf("create order: %w", err)
		}

		if err := s.emit(ctx, tx, eff, created, domain.EventOrderCreated, "", ""); err != nil {
			return domain.Order{}, err
		}

		s.logger.WithFields(log.Fields{
			"order_id":  created.ID,
			"buyer_id":  created.BuyerID,
			"seller_id": created.SellerID,
			"items":     len(created.Items),
		}).Debug("order reserved")
		return created, nil
	})
}
