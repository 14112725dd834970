package transport

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockTransport is a mock implementation of Transport for testing
type MockTransport struct {
	mock.Mock
}

var _ Transport = (*MockTransport)(nil)

// Get mocks the Get method
func (m *MockTransport) Get(ctx context.Context, path string, params Params) (*Response, error) {
	args := m.Called(ctx, path, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

// Post mocks the Post method
func (m *MockTransport) Post(ctx context.Context, path string, body any) (*Response, error) {
	args := m.Called(ctx, path, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

// Patch mocks the Patch method
func (m *MockTransport) Patch(ctx context.Context, path string, body any) (*Response, error) {
	args := m.Called(ctx, path, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

// Delete mocks the Delete method
func (m *MockTransport) Delete(ctx context.Context, path string, params Params) (*Response, error) {
	args := m.Called(ctx, path, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

// JSONResponse builds a Response whose Data is the given JSON text.
func JSONResponse(data string) *Response {
	return &Response{Data: []byte(data)}
}
