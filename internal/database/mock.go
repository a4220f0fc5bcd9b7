package database

import (
	"context"
	"sync"
)

// MockConn is a test double for the Conn interface.
type MockConn struct {
	QueryFn func(query string, args []any) ([]Row, error)
	ExecErr error
	PingErr error

	mu       sync.Mutex
	Queries  []string
	Executed []string
	Closed   bool
}

func (m *MockConn) Query(_ context.Context, query string, args ...any) ([]Row, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, query)
	m.mu.Unlock()
	if m.QueryFn == nil {
		return nil, nil
	}
	return m.QueryFn(query, args)
}

func (m *MockConn) ExecScript(_ context.Context, script string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Executed = append(m.Executed, script)
	return m.ExecErr
}

func (m *MockConn) Ping(_ context.Context) error {
	return m.PingErr
}

func (m *MockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// MockFactory hands out the same MockConn on every Open.
type MockFactory struct {
	Name    string
	Conn    *MockConn
	OpenErr error

	mu     sync.Mutex
	Opened int
}

func (f *MockFactory) Open(_ context.Context) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	f.Opened++
	if f.Conn == nil {
		f.Conn = &MockConn{}
	}
	return f.Conn, nil
}

func (f *MockFactory) Describe() string {
	if f.Name == "" {
		return "mock"
	}
	return f.Name
}

var (
	_ Conn    = (*MockConn)(nil)
	_ Factory = (*MockFactory)(nil)
)
