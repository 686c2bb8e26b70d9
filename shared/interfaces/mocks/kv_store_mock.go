package mocks

import (
	"context"

	"ronpa-server/shared/interfaces"

	"github.com/stretchr/testify/mock"
)

// MockKVStore is a mock type for the KVStore type
type MockKVStore struct {
	mock.Mock
}

// Get provides a mock function with given fields: ctx, key
func (_m *MockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	ret := _m.Called(ctx, key)

	var r0 []byte
	if rf, ok := ret.Get(0).(func(context.Context, string) []byte); ok {
		r0 = rf(ctx, key)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, key)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Set provides a mock function with given fields: ctx, key, value
func (_m *MockKVStore) Set(ctx context.Context, key string, value []byte) error {
	ret := _m.Called(ctx, key, value)

	if rf, ok := ret.Get(0).(func(context.Context, string, []byte) error); ok {
		return rf(ctx, key, value)
	}
	return ret.Error(0)
}

// NewMockKVStore creates a new instance of MockKVStore. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockKVStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockKVStore {
	m := &MockKVStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ interfaces.KVStore = (*MockKVStore)(nil)
