package worker

import "errors"

// ErrNoCommand is returned by Start when no worker command is configured.
var ErrNoCommand = errors.New("worker: no command configured")
