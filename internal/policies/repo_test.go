package policies

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-central/pkg/db/dbtest"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/pagination"
)

func TestListAlertsPagesNewestFirst(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	productID := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		alert := &models.Alert{
			ID:        uuid.New(),
			Type:      enums.PolicyLowStock.AlertType(),
			ProductID: productID,
			Severity:  enums.AlertSeverityWarning,
			Message:   "low stock",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.InsertAlert(context.Background(), alert); err != nil {
			t.Fatalf("insert alert: %v", err)
		}
		ids = append(ids, alert.ID)
	}

	first, next, err := repo.ListAlerts(context.Background(), productID, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 2 || first[0].ID != ids[2] || first[1].ID != ids[1] {
		t.Fatalf("expected the two newest alerts, got %+v", first)
	}
	if next == "" {
		t.Fatal("expected a next cursor")
	}

	second, next, err := repo.ListAlerts(context.Background(), productID, pagination.Params{Limit: 2, Cursor: next})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second) != 1 || second[0].ID != ids[0] {
		t.Fatalf("expected the oldest alert, got %+v", second)
	}
	if next != "" {
		t.Fatalf("expected no cursor on the last page, got %q", next)
	}
}

func TestListAlertsRejectsBadCursor(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	_, _, err := repo.ListAlerts(context.Background(), uuid.New(), pagination.Params{Cursor: "!!"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
