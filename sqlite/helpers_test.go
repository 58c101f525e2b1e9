package sqlite_test

import "github.com/fwojciec/relay/mock"

func newConn(id string) *mock.Conn {
	return &mock.Conn{
		IDFn:   func() string { return id },
		SendFn: func([]byte) error { return nil },
	}
}
