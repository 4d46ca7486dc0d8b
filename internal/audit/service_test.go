package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

type stubTimelineRepo struct {
	rows     []TimelineRow
	err      error
	lastCall Query
}

func (s *stubTimelineRepo) Timeline(ctx context.Context, q Query) ([]TimelineRow, error) {
	s.lastCall = q
	if s.err != nil {
		return nil, s.err
	}
	rows := s.rows
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func mockRow(id int64, at, action, entity, entityID string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{ID: id, At: ts, Actor: "alice", Action: action, Entity: entity, EntityID: entityID}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow(3, "2026-03-10T10:00:00Z", "approve", "order", "7"),
		mockRow(2, "2026-03-09T09:00:00Z", "create", "order", "7"),
		mockRow(1, "2026-03-08T08:00:00Z", "adjust", "product", "1"),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), Filter{
		From:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Entity: "  order ",
	}, shared.PageRequest{Page: 1, Size: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)
	require.Equal(t, 3, repo.lastCall.Limit)
	require.Zero(t, repo.lastCall.Offset)
	require.Equal(t, "order", repo.lastCall.Entity)
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), Filter{}, shared.PageRequest{Page: 3, Size: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize, result.Paging.PageSize)
	require.Equal(t, 2*maxPageSize, repo.lastCall.Offset)
	require.Equal(t, maxPageSize+1, repo.lastCall.Limit)
	require.Equal(t, 2, result.Paging.PrevPage)
	require.False(t, result.Paging.HasNext)
	require.NotNil(t, result.Rows)

	_, err = svc.Timeline(context.Background(), Filter{}, shared.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, defaultPageSize+1, repo.lastCall.Limit)
}

func TestServiceExportCapsRows(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{mockRow(1, "2026-03-08T08:00:00Z", "adjust", "product", "1")}}
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), Filter{Actor: "alice"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, ExportLimit, repo.lastCall.Limit)
	require.Zero(t, repo.lastCall.Offset)
}

func TestServicePropagatesRepositoryError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&stubTimelineRepo{err: boom})
	_, err := svc.Timeline(context.Background(), Filter{}, shared.PageRequest{})
	require.ErrorIs(t, err, boom)

	_, err = NewService(nil).Export(context.Background(), Filter{})
	require.Error(t, err)
}

func TestBuildTimelineSQL(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sql, args := buildTimelineSQL(Query{Filter: Filter{From: from, Entity: "order", EntityID: "7"}, Limit: 21, Offset: 20})

	require.True(t, strings.HasPrefix(sql, "SELECT id, occurred_at, actor, action, entity, entity_id, meta FROM audit_logs WHERE "))
	require.Contains(t, sql, "occurred_at >= $1 AND entity = $2 AND entity_id = $3")
	require.Contains(t, sql, "ORDER BY occurred_at DESC, id DESC LIMIT $4 OFFSET $5")
	require.Equal(t, []any{from, "order", "7", 21, 20}, args)

	sql, args = buildTimelineSQL(Query{})
	require.NotContains(t, sql, "WHERE")
	require.NotContains(t, sql, "LIMIT")
	require.Empty(t, args)
}

func TestWriteCSV(t *testing.T) {
	row := mockRow(9, "2026-03-10T10:00:00Z", "approve", "order", "7")
	row.Meta = map[string]any{"number": "SO-1, A"}

	var out strings.Builder
	require.NoError(t, WriteCSV(&out, []TimelineRow{row, mockRow(8, "2026-03-09T09:00:00Z", "create", "order", "7")}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "id,at,actor,action,entity,entity_id,meta", lines[0])
	require.Equal(t, `9,2026-03-10T10:00:00Z,alice,approve,order,7,"{""number"":""SO-1, A""}"`, lines[1])
	require.Equal(t, "8,2026-03-09T09:00:00Z,alice,create,order,7,", lines[2])
}
