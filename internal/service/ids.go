package service

import "github.com/google/uuid"

// IDGenerator — источник уникальных идентификаторов.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator — UUID v4 из crypto/rand.
// Handle и storage key берутся из разных экземпляров: каждое значение —
// отдельная выборка, одно не выводится из другого.
type UUIDGenerator struct{}

// NewID возвращает новый UUID v4.
func (UUIDGenerator) NewID() string {
	return uuid.New().String()
}
