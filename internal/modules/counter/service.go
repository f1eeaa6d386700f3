// README: Sequential counters for human readable operator and booking codes.
package counter

import (
	"context"
	"errors"
	"fmt"
)

var ErrBadRequest = errors.New("bad request")

const NamespaceOperators = "operators"

func bookingsNamespace(operatorID string) string { return "bookings/" + operatorID }

// Store increments a namespace and returns the new value. Values start at 1 and never repeat or skip.
type Store interface {
	Increment(ctx context.Context, namespace string) (int64, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Next(ctx context.Context, namespace string) (int64, error) {
	if namespace == "" {
		return 0, ErrBadRequest
	}
	n, err := s.store.Increment(ctx, namespace)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", namespace, err)
	}
	return n, nil
}

func (s *Service) NextOperatorID(ctx context.Context) (string, error) {
	n, err := s.Next(ctx, NamespaceOperators)
	if err != nil {
		return "", err
	}
	return FormatOperatorID(n), nil
}

func (s *Service) NextBookingID(ctx context.Context, operatorID string) (string, error) {
	if operatorID == "" {
		return "", ErrBadRequest
	}
	n, err := s.Next(ctx, bookingsNamespace(operatorID))
	if err != nil {
		return "", err
	}
	return FormatBookingID(operatorID, n), nil
}

func FormatOperatorID(n int64) string { return fmt.Sprintf("OP%03d", n) }

func FormatBookingID(operatorID string, n int64) string {
	return fmt.Sprintf("%s/%08d", operatorID, n)
}
