package gormclient

import "fmt"

// ConnectionError reports a failure to open or verify the database connection.
type ConnectionError struct {
	Driver Driver
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s datasource: %v", e.Driver, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// DisconnectionError reports a failure to close the database connection.
type DisconnectionError struct {
	Err error
}

func (e *DisconnectionError) Error() string {
	return fmt.Sprintf("disconnect datasource: %v", e.Err)
}

func (e *DisconnectionError) Unwrap() error {
	return e.Err
}
