package memory

import (
	"context"

	"cabdispatch/internal/modules/operator"
)

type OperatorStore struct {
	db *DB
}

func (s *OperatorStore) GetSettings(_ context.Context, operatorID string) (*operator.Settings, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	st, ok := s.db.settings[operatorID]
	if !ok {
		return nil, operator.ErrNotFound
	}
	return &st, nil
}

func (s *OperatorStore) PutSettings(_ context.Context, st operator.Settings) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.settings[st.OperatorID] = st
	return nil
}

func (s *OperatorStore) CreateOperator(_ context.Context, o operator.Operator) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.operators[o.ID]; ok {
		return operator.ErrBadRequest
	}
	s.db.operators[o.ID] = o
	return nil
}

type CounterStore struct {
	db *DB
}

func (s *CounterStore) Increment(_ context.Context, namespace string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.counters[namespace]++
	return s.db.counters[namespace], nil
}
