package audit

import (
	"context"
	"errors"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	// ExportLimit membatasi jumlah baris satu kali ekspor.
	ExportLimit = 5000
)

var errNoRepository = errors.New("audit: repository not configured")

// Repository membaca audit_logs, terbaru lebih dulu.
type Repository interface {
	Timeline(ctx context.Context, q Query) ([]TimelineRow, error)
}

// Service melayani timeline dan ekspor audit.
type Service struct {
	repo Repository
}

// NewService membuat service audit.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline mengembalikan satu halaman. Ukuran halaman default 20, paling
// banyak 50; satu baris ekstra dibaca untuk mengetahui halaman berikutnya.
func (s *Service) Timeline(ctx context.Context, f Filter, page shared.PageRequest) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, errNoRepository
	}
	page = page.Clamp(defaultPageSize, maxPageSize)
	rows, err := s.repo.Timeline(ctx, Query{Filter: f.trimmed(), Offset: page.Offset(), Limit: page.Size + 1})
	if err != nil {
		return Result{}, err
	}
	rows, cursor := shared.TrimProbe(rows, page)
	return Result{Rows: rows, Paging: cursor}, nil
}

// Export mengembalikan paling banyak ExportLimit baris tanpa paging.
func (s *Service) Export(ctx context.Context, f Filter) ([]TimelineRow, error) {
	if s == nil || s.repo == nil {
		return nil, errNoRepository
	}
	return s.repo.Timeline(ctx, Query{Filter: f.trimmed(), Limit: ExportLimit})
}
