package web

import "errors"

var (
	// ErrInvalidPort is returned by Config.Validate for ports outside the
	// TCP range.
	ErrInvalidPort = errors.New("server port must be between 0 and 65535")

	// ErrAlreadyListening is reported when Listen or Start is called on a
	// server that is already serving.
	ErrAlreadyListening = errors.New("web server is already listening")

	// ErrNoApplication is returned by MountActions on a server built
	// without an application.
	ErrNoApplication = errors.New("web server has no application attached")
)
