package svc

import "errors"

// ErrUnknownDriver is returned for a storage driver other than postgres or sqlite.
var ErrUnknownDriver = errors.New("unknown storage driver")

// ErrStorageInitFailed wraps every storage initialization failure.
var ErrStorageInitFailed = errors.New("storage initialization failed")
