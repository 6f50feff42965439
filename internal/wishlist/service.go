package wishlist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"secret-santa/internal/models"
	"secret-santa/internal/storage"
)

var (
	ErrForbidden = errors.New("not allowed to edit this wish list")
	ErrNotFound  = errors.New("wish list item not found")
	ErrInvalid   = errors.New("invalid wish list item")
	// ErrNotPicked is returned for recipient views before the caller has drawn.
	ErrNotPicked = errors.New("you have not drawn your Secret Santa yet")
)

type Store interface {
	GetParticipant(ctx context.Context, id int64) (*models.Participant, error)
	ListParticipants(ctx context.Context) ([]models.Participant, error)
	AddNonParticipant(ctx context.Context, name string, managedBy int64) (*models.NonParticipant, error)
	GetNonParticipant(ctx context.Context, id int64) (*models.NonParticipant, error)
	ListNonParticipants(ctx context.Context, managedBy int64) ([]models.NonParticipant, error)
	AddItem(ctx context.Context, item models.WishListItem) (*models.WishListItem, error)
	GetItem(ctx context.Context, id int64) (*models.WishListItem, error)
	UpdateItem(ctx context.Context, item models.WishListItem) error
	DeleteItem(ctx context.Context, id int64) error
	ItemsForParticipant(ctx context.Context, participantID int64) ([]models.WishListItem, error)
	ItemsForNonParticipant(ctx context.Context, nonParticipantID int64) ([]models.WishListItem, error)
	ReorderItems(ctx context.Context, participantID int64, ids []int64) error
	RecipientItems(ctx context.Context, santaID int64) ([]models.WishListItem, error)
	TogglePurchase(ctx context.Context, itemID, santaID int64) (bool, error)
}

// Notifier is told when a participant's own list changes.
type Notifier interface {
	NotifyWishListUpdate(ctx context.Context, ownerID int64) error
}

// ItemInput is the editable part of an item.
type ItemInput struct {
	Name        string `json:"item_name"`
	Description string `json:"description"`
	Link        string `json:"link"`
	PriceRange  string `json:"price_range"`
	Priority    int    `json:"priority"`
	// NonParticipantID targets a managed non-participant instead of the caller.
	NonParticipantID *int64 `json:"non_participant_id,omitempty"`
}

type ManagedList struct {
	NonParticipant models.NonParticipant `json:"non_participant"`
	Items          []models.WishListItem `json:"items"`
}

// MyLists is everything a participant can edit.
type MyLists struct {
	Items           []models.WishListItem `json:"items"`
	NonParticipants []ManagedList         `json:"non_participants"`
}

// Overview is one read-only list in the all-wishlists view.
type Overview struct {
	ID            int64                 `json:"id"`
	Name          string                `json:"name"`
	Type          string                `json:"type"`
	ManagedByName string                `json:"managed_by_name,omitempty"`
	Items         []models.WishListItem `json:"items"`
}

type Service struct {
	store    Store
	notifier Notifier
	log      zerolog.Logger
}

func NewService(store Store, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		log:      log.With().Str("component", "Wishlist").Logger(),
	}
}

func (in ItemInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: item name is required", ErrInvalid)
	}
	if in.Priority < models.PriorityHigh || in.Priority > models.PriorityLow {
		return fmt.Errorf("%w: priority must be between %d and %d", ErrInvalid, models.PriorityHigh, models.PriorityLow)
	}
	return nil
}

// canEdit reports whether participantID owns item or manages its
// non-participant.
func (s *Service) canEdit(ctx context.Context, participantID int64, item *models.WishListItem) error {
	if item.ParticipantID != nil {
		if *item.ParticipantID == participantID {
			return nil
		}
		return ErrForbidden
	}
	if item.NonParticipantID == nil {
		return ErrForbidden
	}
	return s.manages(ctx, participantID, *item.NonParticipantID)
}

func (s *Service) manages(ctx context.Context, participantID, nonParticipantID int64) error {
	np, err := s.store.GetNonParticipant(ctx, nonParticipantID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrForbidden
	}
	if err != nil {
		return err
	}
	if np.ManagedByParticipantID != participantID {
		return ErrForbidden
	}
	return nil
}

func (s *Service) getItem(ctx context.Context, id int64) (*models.WishListItem, error) {
	item, err := s.store.GetItem(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	return item, err
}

// notify tells the owner's Santa about a change. Failures are logged only.
func (s *Service) notify(ctx context.Context, item *models.WishListItem) {
	if s.notifier == nil || item.ParticipantID == nil {
		return
	}
	if err := s.notifier.NotifyWishListUpdate(context.WithoutCancel(ctx), *item.ParticipantID); err != nil {
		s.log.Warn().Err(err).Int64("participant_id", *item.ParticipantID).Msg("Failed to send wish list update notification")
	}
}

// AddItem appends an item to the caller's list, or to a non-participant the
// caller manages.
func (s *Service) AddItem(ctx context.Context, participantID int64, in ItemInput) (*models.WishListItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	item := models.WishListItem{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Link:        in.Link,
		PriceRange:  in.PriceRange,
		Priority:    in.Priority,
	}
	if in.NonParticipantID != nil {
		if err := s.manages(ctx, participantID, *in.NonParticipantID); err != nil {
			return nil, err
		}
		item.NonParticipantID = in.NonParticipantID
	} else {
		item.ParticipantID = &participantID
	}

	created, err := s.store.AddItem(ctx, item)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("participant_id", participantID).Int64("item_id", created.ID).Msg("Wish list item added")
	s.notify(ctx, created)
	return created, nil
}

func (s *Service) UpdateItem(ctx context.Context, participantID, itemID int64, in ItemInput) (*models.WishListItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	item, err := s.getItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.canEdit(ctx, participantID, item); err != nil {
		return nil, err
	}

	item.Name = strings.TrimSpace(in.Name)
	item.Description = in.Description
	item.Link = in.Link
	item.PriceRange = in.PriceRange
	item.Priority = in.Priority
	if err := s.store.UpdateItem(ctx, *item); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.notify(ctx, item)
	return item, nil
}

func (s *Service) DeleteItem(ctx context.Context, participantID, itemID int64) error {
	item, err := s.getItem(ctx, itemID)
	if err != nil {
		return err
	}
	if err := s.canEdit(ctx, participantID, item); err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, itemID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Reorder sets the display order of the caller's own items.
func (s *Service) Reorder(ctx context.Context, participantID int64, ids []int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: item ids are required", ErrInvalid)
	}
	return s.store.ReorderItems(ctx, participantID, ids)
}

func (s *Service) AddNonParticipant(ctx context.Context, participantID int64, name string) (*models.NonParticipant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	return s.store.AddNonParticipant(ctx, name, participantID)
}

// MyItems returns the caller's list and the lists they manage.
func (s *Service) MyItems(ctx context.Context, participantID int64) (*MyLists, error) {
	items, err := s.store.ItemsForParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	managed, err := s.store.ListNonParticipants(ctx, participantID)
	if err != nil {
		return nil, err
	}

	out := &MyLists{Items: items, NonParticipants: []ManagedList{}}
	for _, np := range managed {
		npItems, err := s.store.ItemsForNonParticipant(ctx, np.ID)
		if err != nil {
			return nil, err
		}
		out.NonParticipants = append(out.NonParticipants, ManagedList{NonParticipant: np, Items: npItems})
	}
	return out, nil
}

// RecipientItems lists the caller's recipient's items with the caller's
// purchase marks.
func (s *Service) RecipientItems(ctx context.Context, santaID int64) ([]models.WishListItem, error) {
	items, err := s.store.RecipientItems(ctx, santaID)
	if errors.Is(err, storage.ErrNotFound) {
		if _, perr := s.store.GetParticipant(ctx, santaID); perr != nil {
			return nil, perr
		}
		return nil, ErrNotPicked
	}
	return items, err
}

// TogglePurchase flips the caller's purchase mark on an item of their
// recipient and returns the new state.
func (s *Service) TogglePurchase(ctx context.Context, santaID, itemID int64) (bool, error) {
	purchased, err := s.store.TogglePurchase(ctx, itemID, santaID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, ErrForbidden
	}
	return purchased, err
}

// All returns every list, participants first, read-only.
func (s *Service) All(ctx context.Context) ([]Overview, error) {
	participants, err := s.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}

	var lists, managed []Overview
	for _, p := range participants {
		items, err := s.store.ItemsForParticipant(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		lists = append(lists, Overview{ID: p.ID, Name: p.FirstName, Type: "participant", Items: items})

		nps, err := s.store.ListNonParticipants(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, np := range nps {
			npItems, err := s.store.ItemsForNonParticipant(ctx, np.ID)
			if err != nil {
				return nil, err
			}
			managed = append(managed, Overview{
				ID: np.ID, Name: np.Name, Type: "non-participant", ManagedByName: p.FirstName, Items: npItems,
			})
		}
	}
	return append(lists, managed...), nil
}
