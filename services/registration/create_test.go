package registration

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"eventpay/pkg/errutil"
	"eventpay/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func seedEvent(t *testing.T, db *gorm.DB, event *Event) {
	t.Helper()
	if event.Status == "" {
		event.Status = string(EventActive)
	}
	if event.StartAt.IsZero() {
		event.StartAt = time.Now().Add(240 * time.Hour)
	}
	require.NoError(t, db.Create(event).Error)
}

func create(db *gorm.DB, node *snowflake.Node, p CreateParams) (*Registration, error) {
	var reg *Registration
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		reg, err = Create(context.Background(), tx, node, p)
		return err
	})
	return reg, err
}

func TestCreateConsumesCapacity(t *testing.T) {
	db := testutil.NewTestDB(t, &Event{}, &Registration{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	seedEvent(t, db, &Event{ID: "evt-1", OrganizerID: "org-1", Capacity: 2, AllowMultiple: true})

	reg, err := create(db, node, CreateParams{PaymentID: "pay-1", UserID: "user-1", EventID: "evt-1", Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, string(StatusConfirmed), reg.Status)

	_, err = create(db, node, CreateParams{PaymentID: "pay-2", UserID: "user-2", EventID: "evt-1", Quantity: 1})
	require.NoError(t, err)

	var event Event
	require.NoError(t, db.First(&event, "id = ?", "evt-1").Error)
	require.Equal(t, int64(2), event.Registered)

	// The event is full now.
	_, err = create(db, node, CreateParams{PaymentID: "pay-3", UserID: "user-3", EventID: "evt-1", Quantity: 1})
	require.Equal(t, errutil.StatusUnprocessableEntity, errutil.StatusOf(err))
}

func TestCreateRejectsQuantityOverRemainingCapacity(t *testing.T) {
	db := testutil.NewTestDB(t, &Event{}, &Registration{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	seedEvent(t, db, &Event{ID: "evt-1", Capacity: 3, Registered: 2})

	_, err = create(db, node, CreateParams{PaymentID: "pay-1", UserID: "user-1", EventID: "evt-1", Quantity: 2})
	require.Equal(t, errutil.StatusUnprocessableEntity, errutil.StatusOf(err))

	// A single seat still fits.
	_, err = create(db, node, CreateParams{PaymentID: "pay-2", UserID: "user-1", EventID: "evt-1", Quantity: 1})
	require.NoError(t, err)
}

func TestCreateRejectsDuplicateRegistration(t *testing.T) {
	db := testutil.NewTestDB(t, &Event{}, &Registration{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	seedEvent(t, db, &Event{ID: "evt-1", Capacity: 10})

	_, err = create(db, node, CreateParams{PaymentID: "pay-1", UserID: "user-1", EventID: "evt-1", Quantity: 1})
	require.NoError(t, err)

	_, err = create(db, node, CreateParams{PaymentID: "pay-2", UserID: "user-1", EventID: "evt-1", Quantity: 1})
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))
}

func TestCreateAllowsMultipleWhenEventPermits(t *testing.T) {
	db := testutil.NewTestDB(t, &Event{}, &Registration{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	seedEvent(t, db, &Event{ID: "evt-1", Capacity: 10, AllowMultiple: true})

	_, err = create(db, node, CreateParams{PaymentID: "pay-1", UserID: "user-1", EventID: "evt-1", Quantity: 1})
	require.NoError(t, err)

	_, err = create(db, node, CreateParams{PaymentID: "pay-2", UserID: "user-1", EventID: "evt-1", Quantity: 1})
	require.NoError(t, err)
}

func TestCreateRejectsInactiveEvent(t *testing.T) {
	db := testutil.NewTestDB(t, &Event{}, &Registration{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	seedEvent(t, db, &Event{ID: "evt-1", Capacity: 10, Status: string(EventCancelled)})

	_, err = create(db, node, CreateParams{PaymentID: "pay-1", UserID: "user-1", EventID: "evt-1", Quantity: 1})
	require.Equal(t, errutil.StatusUnprocessableEntity, errutil.StatusOf(err))

	_, err = create(db, node, CreateParams{PaymentID: "pay-1", UserID: "user-1", EventID: "missing", Quantity: 1})
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}
