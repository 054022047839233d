package dbModel

import (
	"encoding/json"
	"time"
)

type UserList struct {
	UserID   int64           `db:"user_id"`
	ListKind string          `db:"list_kind"`
	Data     json.RawMessage `db:"data"`
	DtUpdate time.Time       `db:"dt_update"`
}
