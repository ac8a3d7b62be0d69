package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Cancel отменяет заказ в статусе PENDING или PAID и возвращает остатки в объявления.
func (s *Service) Cancel(ctx context.Context, orderID string) (domain.Order, error) {
	return s.execute(ctx, opCancel, orderID, func(ctx context.Context, tx domain.Tx, eff *effects) (domain.Order, error) {
		return s.reverse(ctx, tx, eff, orderID, domain.OrderStatusCancelled, domain.EventOrderCancelled, "cancelled")
	})
}

// Refund возвращает деньги по оплаченному заказу и возвращает остатки в объявления.
func (s *Service) Refund(ctx context.Context, orderID string) (domain.Order, error) {
	return s.execute(ctx, opRefund, orderID, func(ctx context.Context, tx domain.Tx, eff *effects) (domain.Order, error) {
		return s.reverse(ctx, tx, eff, orderID, domain.OrderStatusRefunded, domain.EventOrderRefunded, "refunded")
	})
}

// reverse переводит заказ в target и компенсирует резервирование.
func (s *Service) reverse(ctx context.Context, tx domain.Tx, eff *effects, orderID string, target domain.OrderStatus, eventType, reason string) (domain.Order, error) {
	var previous domain.OrderStatus
	updated, err := tx.Orders().Update(ctx, orderID, func(o *domain.Order) error {
		if !domain.CanTransition(o.Status, target) {
			return fmt.Errorf("%s -> %s: %w", o.Status, target, domain.ErrInvalidTransition)
		}
		previous = o.Status
		o.Status = target
		o.Payment = o.Payment.RefundPayment()
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.restoreInventory(ctx, tx, eff, updated); err != nil {
		return domain.Order{}, err
	}
	if err := s.emit(ctx, tx, eff, updated, eventType, previous, reason); err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// restoreInventory возвращает количество каждой позиции. SOLD снова становится ACTIVE,
// остальные статусы объявления не меняются. Удалённые из хранилища объявления пропускаются.
func (s *Service) restoreInventory(ctx context.Context, tx domain.Tx, eff *effects, order domain.Order) error {
	for _, item := range order.Items {
		_, err := tx.Listings().ConditionalUpdate(ctx, item.ListingID,
			domain.ListingCondition{},
			domain.ListingMutation{Delta: item.Quantity},
		)
		if errors.Is(err, domain.ErrListingNotFound) {
			s.logger.WithFields(log.Fields{
				"order_id":   order.ID,
				"listing_id": item.ListingID,
			}).Warn("listing missing, inventory not restored")
			continue
		}
		if err != nil {
			return fmt.Errorf("restore listing %s: %w", item.ListingID, err)
		}
		eff.restored += item.Quantity
		eff.listingIDs = append(eff.listingIDs, item.ListingID)
	}
	return nil
}

// RecordPayment сохраняет платёжные данные. COMPLETED фиксирует время оплаты и переводит PENDING в PAID.
func (s *Service) RecordPayment(ctx context.Context, orderID string, payment domain.PaymentDetails) (domain.Order, error) {
	if !payment.Status.Valid() {
		err := fmt.Errorf("%w: unknown payment status %q", domain.ErrInvalidInput, payment.Status)
		return domain.Order{}, domain.WrapOp(opRecordPayment, "order", orderID, err)
	}

	return s.execute(ctx, opRecordPayment, orderID, func(ctx context.Context, tx domain.Tx, eff *effects) (domain.Order, error) {
		var previous domain.OrderStatus
		updated, err := tx.Orders().Update(ctx, orderID, func(o *domain.Order) error {
			if !o.Status.AcceptsDetails() {
				return fmt.Errorf("record payment on %s order: %w", o.Status, domain.ErrInvalidTransition)
			}
			previous = o.Status

			// PaidAt есть только у COMPLETED; любой другой статус снимает отметку.
			next := payment
			next.PaidAt = nil
			if next.Status == domain.PaymentStatusCompleted {
				paidAt := s.now()
				next.PaidAt = &paidAt
			}
			o.Payment = next

			if next.Status == domain.PaymentStatusCompleted && o.Status == domain.OrderStatusPending {
				o.Status = domain.OrderStatusPaid
			}
			return nil
		})
		if err != nil {
			return domain.Order{}, err
		}

		if err := s.emit(ctx, tx, eff, updated, domain.EventPaymentRecorded, previous, ""); err != nil {
			return domain.Order{}, err
		}
		if updated.Status != previous {
			if err := s.emit(ctx, tx, eff, updated, domain.EventOrderStatusChanged, previous, "payment completed"); err != nil {
				return domain.Order{}, err
			}
		}
		return updated, nil
	})
}

// RecordShipment сохраняет данные доставки. Непустой трек-номер переводит PAID в SHIPPED.
func (s *Service) RecordShipment(ctx context.Context, orderID string, shipping domain.ShippingDetails) (domain.Order, error) {
	return s.execute(ctx, opRecordShipment, orderID, func(ctx context.Context, tx domain.Tx, eff *effects) (domain.Order, error) {
		var previous domain.OrderStatus
		updated, err := tx.Orders().Update(ctx, orderID, func(o *domain.Order) error {
			if !o.Status.AcceptsDetails() {
				return fmt.Errorf("record shipment on %s order: %w", o.Status, domain.ErrInvalidTransition)
			}
			previous = o.Status
			o.Shipping = shipping
			if strings.TrimSpace(shipping.TrackingNumber) != "" && o.Status == domain.OrderStatusPaid {
				o.Status = domain.OrderStatusShipped
			}
			return nil
		})
		if err != nil {
			return domain.Order{}, err
		}

		if err := s.emit(ctx, tx, eff, updated, domain.EventShipmentRecorded, previous, ""); err != nil {
			return domain.Order{}, err
		}
		if updated.Status != previous {
			if err := s.emit(ctx, tx, eff, updated, domain.EventOrderStatusChanged, previous, "shipped"); err != nil {
				return domain.Order{}, err
			}
		}
		return updated, nil
	})
}

// MarkDelivered переводит отправленный заказ в DELIVERED.
func (s *Service) MarkDelivered(ctx context.Context, orderID string) (domain.Order, error) {
	return s.execute(ctx, opMarkDelivered, orderID, func(ctx context.Context, tx domain.Tx, eff *effects) (domain.Order, error) {
		var previous domain.OrderStatus
		updated, err := tx.Orders().Update(ctx, orderID, func(o *domain.Order) error {
			if !domain.CanTransition(o.Status, domain.OrderStatusDelivered) {
				return fmt.Errorf("%s -> %s: %w", o.Status, domain.OrderStatusDelivered, domain.ErrInvalidTransition)
			}
			previous = o.Status
			o.Status = domain.OrderStatusDelivered
			return nil
		})
		if err != nil {
			return domain.Order{}, err
		}

		if err := s.emit(ctx, tx, eff, updated, domain.EventOrderStatusChanged, previous, "delivered"); err != nil {
			return domain.Order{}, err
		}
		return updated, nil
	})
}
