package deadletter

import "errors"

// ErrNotFound — записи нет в архиве (удалена или истёк TTL).
var ErrNotFound = errors.New("dead letter not found")
