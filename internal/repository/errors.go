package repository

import "errors"

// ErrNotFound is returned by a KV backend when a key has no value. Callers
// translate it into domain behaviour (an absent key reads as empty state),
// keeping driver errors such as sql.ErrNoRows or redis.Nil out of services.
var ErrNotFound = errors.New("repository: not found")
