package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secret-santa/internal/models"
)

func TestWishListItems(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	ps := addParticipants(t, s, "Alice", "Bob")

	first, err := s.AddItem(ctx, models.WishListItem{ParticipantID: &ps[0].ID, Name: "Socks", Priority: models.PriorityLow})
	require.NoError(t, err)
	second, err := s.AddItem(ctx, models.WishListItem{ParticipantID: &ps[0].ID, Name: "Book", Link: "https://example.com", Priority: models.PriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, 1, first.DisplayOrder)
	assert.Equal(t, 2, second.DisplayOrder)
	assert.Equal(t, "https://example.com", second.Link)

	_, err = s.AddItem(ctx, models.WishListItem{ParticipantID: &ps[0].ID, Name: "Bad", Priority: 9})
	assert.ErrorIs(t, err, ErrInvalid)

	np, err := s.AddNonParticipant(ctx, "Baby Dan", ps[0].ID)
	require.NoError(t, err)
	_, err = s.AddItem(ctx, models.WishListItem{ParticipantID: &ps[0].ID, NonParticipantID: &np.ID, Name: "Both", Priority: 2})
	assert.ErrorIs(t, err, ErrInvalid)

	npItem, err := s.AddItem(ctx, models.WishListItem{NonParticipantID: &np.ID, Name: "Rattle", Priority: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, npItem.DisplayOrder)

	require.NoError(t, s.ReorderItems(ctx, ps[0].ID, []int64{second.ID, first.ID}))
	items, err := s.ItemsForParticipant(ctx, ps[0].ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Book", items[0].Name)

	n, err := s.CountItems(ctx, ps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first.Name = "Wool socks"
	require.NoError(t, s.UpdateItem(ctx, *first))
	got, err := s.GetItem(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Wool socks", got.Name)

	require.NoError(t, s.DeleteItem(ctx, first.ID))
	assert.ErrorIs(t, s.DeleteItem(ctx, first.ID), ErrNotFound)

	managed, err := s.ListNonParticipants(ctx, ps[0].ID)
	require.NoError(t, err)
	require.Len(t, managed, 1)
	npItems, err := s.ItemsForNonParticipant(ctx, managed[0].ID)
	require.NoError(t, err)
	assert.Len(t, npItems, 1)
}

func TestTogglePurchase(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	ps := addParticipants(t, s, "Alice", "Bob", "Carol")

	item, err := s.AddItem(ctx, models.WishListItem{ParticipantID: &ps[1].ID, Name: "Scarf", Priority: 1})
	require.NoError(t, err)

	_, err = s.RecipientItems(ctx, ps[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CommitAssignment(ctx, ps[0].ID, ps[1].ID, time.Now()))

	purchased, err := s.TogglePurchase(ctx, item.ID, ps[0].ID)
	require.NoError(t, err)
	assert.True(t, purchased)

	items, err := s.RecipientItems(ctx, ps[0].ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsPurchased)

	purchased, err = s.TogglePurchase(ctx, item.ID, ps[0].ID)
	require.NoError(t, err)
	assert.False(t, purchased)

	_, err = s.TogglePurchase(ctx, item.ID, ps[2].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
