package audit

import (
	"strings"
	"time"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Filter mempersempit timeline. From inklusif, To eksklusif; nilai kosong
// berarti tanpa batasan.
type Filter struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	EntityID string
	Action   string
}

func (f Filter) trimmed() Filter {
	f.Actor = strings.TrimSpace(f.Actor)
	f.Entity = strings.TrimSpace(f.Entity)
	f.EntityID = strings.TrimSpace(f.EntityID)
	f.Action = strings.TrimSpace(f.Action)
	return f
}

// TimelineRow adalah satu kejadian di audit_logs.
type TimelineRow struct {
	ID       int64          `json:"id"`
	At       time.Time      `json:"at"`
	Actor    string         `json:"actor"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Result adalah satu halaman timeline.
type Result struct {
	Rows   []TimelineRow     `json:"data"`
	Paging shared.PageCursor `json:"paging"`
}

// Query diteruskan ke repository. Limit nol berarti tanpa batas.
type Query struct {
	Filter
	Offset int
	Limit  int
}
