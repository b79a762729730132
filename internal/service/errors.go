package service

import "errors"

var (
	// ErrFatalConfig means a container cannot sync until the user acts,
	// typically an encrypted container whose passphrase is missing with no
	// recovery configured. Never silently retried.
	ErrFatalConfig = errors.New("fatal configuration")
	// ErrContainerExists means a container with the same id is already
	// registered.
	ErrContainerExists = errors.New("container already registered")
	// ErrContainerNotFound means no container with the given id is
	// registered.
	ErrContainerNotFound = errors.New("container not registered")
)
