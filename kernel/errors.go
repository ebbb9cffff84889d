package kernel

import "errors"

var (
	ErrNoProc          = errors.New("no free process slot")
	ErrNoContainerSlot = errors.New("no free container slot")
	ErrContainerFull   = errors.New("container process table full")
	ErrNotFound        = errors.New("no such process")
	ErrNoContainer     = errors.New("no such container")
	ErrNoChildren      = errors.New("no children")
	ErrKilled          = errors.New("process killed")
	ErrConsoleBusy     = errors.New("console already bound to a container")
	ErrNoConsole       = errors.New("no such console")
	ErrNoPath          = errors.New("root path does not exist")
	ErrPermission      = errors.New("operation not permitted inside a container")
	ErrDiskQuota       = errors.New("container disk quota exceeded")
	ErrNoSpace         = errors.New("no space left on disk")
	ErrAlreadySet      = errors.New("already initialized")
	ErrStarted         = errors.New("kernel already started")
)
