package repository_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/entity"
	"github.com/joseph-ayodele/tools-tracker/internal/testutil"
)

func TestOrderRoundTripWithItems(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos(t)
	_ = seedJob(t, repos) // seeds the catalog

	orderID := uuid.New()
	desc := "site 4"
	marking := "INV-77"
	order := entity.Order{
		ID:          orderID,
		EmployeeID:  42,
		Description: &desc,
		Items: []entity.OrderItem{
			{ID: uuid.New(), OrderID: orderID, ToolID: 2, Position: 0},
			{ID: uuid.New(), OrderID: orderID, ToolID: 1, Marking: &marking, Position: 1},
		},
	}
	require.NoError(t, repos.Orders.Create(ctx, order))

	got, err := repos.Orders.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.EmployeeID)
	require.NotNil(t, got.Description)
	assert.Equal(t, "site 4", *got.Description)
	require.Len(t, got.Items, 2)
	assert.Equal(t, entity.ToolID(2), got.Items[0].ToolID)
	assert.Nil(t, got.Items[0].Marking)
	require.NotNil(t, got.Items[1].Marking)
	assert.Equal(t, "INV-77", *got.Items[1].Marking)

	removed, err := repos.Orders.DeleteItem(ctx, got.Items[0].ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repos.Orders.DeleteItem(ctx, got.Items[0].ID)
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, repos.Orders.Delete(ctx, orderID))
	_, err = repos.Orders.Get(ctx, orderID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	items, err := repos.Orders.ListItems(ctx, orderID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestToolExistingIDs(t *testing.T) {
	ctx := context.Background()
	repos := testutil.NewRepos(t)
	_ = seedJob(t, repos)

	found, err := repos.Tools.ExistingIDs(ctx, []entity.ToolID{1, 3, 99})
	require.NoError(t, err)
	assert.Equal(t, map[entity.ToolID]bool{1: true, 3: true}, found)

	tools, err := repos.Tools.List(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 3)
	assert.Equal(t, "hammer", tools[0].Name)
}
