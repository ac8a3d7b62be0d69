// Package cache: кэш чтения для query-сервиса с инвалидацией после коммита.
package cache

import (
	"context"
	"time"
)

// TTL записей по типам сущностей.
const (
	DefaultTTL = 10 * time.Minute
	ListingTTL = 30 * time.Minute
	SellerTTL  = time.Hour
)

// Cache описывает хранилище сериализованных снимков сущностей.
type Cache interface {
	// Get читает значение в dst; found=false при промахе.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set сохраняет значение с ttl; ttl <= 0 означает DefaultTTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete удаляет ключи; отсутствующие ключи не считаются ошибкой.
	Delete(ctx context.Context, keys ...string) error
}

// Noop: кэш, который ничего не хранит. Используется, когда Redis не настроен.
type Noop struct{}

// Get всегда возвращает промах.
func (Noop) Get(context.Context, string, any) (bool, error) { return false, nil }

// Set ничего не делает.
func (Noop) Set(context.Context, string, any, time.Duration) error { return nil }

// Delete ничего не делает.
func (Noop) Delete(context.Context, ...string) error { return nil }

var _ Cache = Noop{}
