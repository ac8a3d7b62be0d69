package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus описывает жизненный цикл объявления.
type ListingStatus string

const (
	// ListingStatusDraft: черновик, ещё не выставлен на продажу.
	ListingStatusDraft ListingStatus = "DRAFT"
	// ListingStatusActive: объявление продаётся.
	ListingStatusActive ListingStatus = "ACTIVE"
	// ListingStatusSold: остаток исчерпан резервированием.
	ListingStatusSold ListingStatus = "SOLD"
	// ListingStatusInactive: снято с продажи продавцом.
	ListingStatusInactive ListingStatus = "INACTIVE"
	// ListingStatusDeleted: удалено; никогда не возвращается в продажу автоматически.
	ListingStatusDeleted ListingStatus = "DELETED"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusDraft, ListingStatusActive, ListingStatusSold, ListingStatusInactive, ListingStatusDeleted:
		return true
	default:
		return false
	}
}

// Listing: объявление продавца с ценой и остатком.
type Listing struct {
	ID        string
	SellerID  string
	Title     string
	Price     decimal.Decimal
	Currency  string
	ImageURLs []string
	Quantity  int
	Status    ListingStatus
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PrimaryImage возвращает первую картинку или пустую строку.
func (l Listing) PrimaryImage() string {
	if len(l.ImageURLs) == 0 {
		return ""
	}
	return l.ImageURLs[0]
}

// ListingCondition: предикат условного обновления объявления.
// Пустые поля не проверяются.
type ListingCondition struct {
	// Status, если задан, должен совпасть с текущим статусом.
	Status ListingStatus
	// MinQuantity: минимально допустимый текущий остаток.
	MinQuantity int
	// Version, если > 0, должна совпасть с текущей версией.
	Version int64
}

// Matches проверяет предикат на текущем состоянии объявления.
func (c ListingCondition) Matches(l Listing) bool {
	if c.Status != "" && l.Status != c.Status {
		return false
	}
	if l.Quantity < c.MinQuantity {
		return false
	}
	if c.Version > 0 && l.Version != c.Version {
		return false
	}
	return true
}

// ListingMutation: изменение остатка объявления.
type ListingMutation struct {
	// Отрицательная Delta резервирует, положительная возвращает остаток.
	Delta int
}

// Apply применяет изменение остатка и правила статусов:
// остаток <= 0 после списания переводит ACTIVE в SOLD,
// возврат остатка переводит SOLD в ACTIVE и не трогает остальные статусы.
func (m ListingMutation) Apply(l Listing, now time.Time) (Listing, error) {
	next := l.Quantity + m.Delta
	if next < 0 {
		return l, ErrConflictRetryable
	}
	l.Quantity = next
	switch {
	case m.Delta < 0 && next <= 0:
		l.Status = ListingStatusSold
	case m.Delta > 0 && l.Status == ListingStatusSold:
		l.Status = ListingStatusActive
	}
	l.Version++
	l.UpdatedAt = now
	return l, nil
}
