package cache

const keyPrefix = "marketplace:"

// OrderKey: ключ снимка заказа.
func OrderKey(id string) string { return keyPrefix + "order:" + id }

// ListingKey: ключ снимка объявления.
func ListingKey(id string) string { return keyPrefix + "listing:" + id }

// SellerKey: ключ профиля продавца с рейтингом.
func SellerKey(id string) string { return keyPrefix + "seller:" + id }

// ReviewKey: ключ отзыва.
func ReviewKey(id string) string { return keyPrefix + "review:" + id }

// ReviewByOrderKey: ключ отзыва по заказу.
func ReviewByOrderKey(orderID string) string { return keyPrefix + "review:order:" + orderID }
