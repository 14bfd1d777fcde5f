package mocks

import (
	"context"

	"github.com/estatedesk/listingkeeper/internal/domain/activity"
	"github.com/stretchr/testify/mock"
)

// SlotStore is a mock for repository.SlotStore.
type SlotStore struct {
	mock.Mock
}

func (m *SlotStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *SlotStore) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *SlotStore) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *SlotStore) Keys(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if keys, ok := args.Get(0).([]string); ok {
		return keys, args.Error(1)
	}
	return nil, args.Error(1)
}

// ChangeNotifier is a mock for repository.ChangeNotifier.
type ChangeNotifier struct {
	mock.Mock
}

func (m *ChangeNotifier) Subscribe(ctx context.Context) (<-chan string, error) {
	args := m.Called(ctx)
	if ch, ok := args.Get(0).(<-chan string); ok {
		return ch, args.Error(1)
	}
	if ch, ok := args.Get(0).(chan string); ok {
		return ch, args.Error(1)
	}
	return nil, args.Error(1)
}

// ActivityRepository is a mock for repository.ActivityRepository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, entry *activity.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, opts activity.ListOptions) ([]activity.Entry, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]activity.Entry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}
