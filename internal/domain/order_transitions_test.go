package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestCanTransition(t *testing.T) {
	all := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusPaid,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
	}
	allowed := map[domain.OrderStatus]map[domain.OrderStatus]bool{
		domain.OrderStatusPending: {
			domain.OrderStatusPaid:      true,
			domain.OrderStatusCancelled: true,
		},
		domain.OrderStatusPaid: {
			domain.OrderStatusShipped:   true,
			domain.OrderStatusCancelled: true,
			domain.OrderStatusRefunded:  true,
		},
		domain.OrderStatusShipped: {
			domain.OrderStatusDelivered: true,
		},
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[from][to]
			if got := domain.CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	if domain.CanTransition("LOST", domain.OrderStatusPaid) {
		t.Fatal("unknown source status must not transition")
	}
}

func TestOrderStatus_TerminalAndDetails(t *testing.T) {
	cases := []struct {
		status   domain.OrderStatus
		terminal bool
		details  bool
	}{
		{domain.OrderStatusPending, false, true},
		{domain.OrderStatusPaid, false, true},
		{domain.OrderStatusShipped, false, true},
		{domain.OrderStatusDelivered, true, false},
		{domain.OrderStatusCancelled, true, false},
		{domain.OrderStatusRefunded, true, false},
	}
	for _, tc := range cases {
		if got := tc.status.IsTerminal(); got != tc.terminal {
			t.Fatalf("%s.IsTerminal() = %v, want %v", tc.status, got, tc.terminal)
		}
		if got := tc.status.AcceptsDetails(); got != tc.details {
			t.Fatalf("%s.AcceptsDetails() = %v, want %v", tc.status, got, tc.details)
		}
		if !tc.status.Valid() {
			t.Fatalf("%s must be valid", tc.status)
		}
	}
}
