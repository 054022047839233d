package cache

import "errors"

var ErrNotFound = errors.New("error not found in cache")
