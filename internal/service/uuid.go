package service

import "github.com/google/uuid"

// UUIDGenerator abstracts id generation for testability
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator generates random UUIDs
type DefaultUUIDGenerator struct{}

func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
