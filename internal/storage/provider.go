package storage

import "manimrender/internal/ports"

// Provider is the object store the render job uploads artifacts to.
type Provider = ports.ObjectStore
