package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"media-tracker/internal/events"
	"media-tracker/internal/models"
	"media-tracker/internal/repository"
)

// ListService creates, renames and deletes lists.
type ListService struct {
	lists  ListStore
	events EventPublisher
	log    *zap.Logger
}

// NewListService creates a new ListService. publisher may be nil.
func NewListService(lists ListStore, publisher EventPublisher, log *zap.Logger) *ListService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ListService{lists: lists, events: publisher, log: log.Named("lists")}
}

// CreateDefaultLists creates "To Watch" and "Seen" for a new account.
// It must be called once per owner.
func (s *ListService) CreateDefaultLists(ctx context.Context, ownerID string) ([]models.List, error) {
	lists, err := s.lists.CreateDefaults(ctx, ownerID, models.DefaultListNames())
	if err != nil {
		return nil, fmt.Errorf("failed to create default lists: %w", err)
	}
	return lists, nil
}

// CreateList creates an additional list. Names need not be unique.
func (s *ListService) CreateList(ctx context.Context, ownerID, name string) (*models.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidListName
	}
	list := &models.List{Name: name, OwnerID: ownerID}
	if err := s.lists.Create(ctx, list); err != nil {
		return nil, err
	}
	s.log.Info("list created", zap.Int64("list_id", list.ID), zap.String("owner", ownerID))
	return list, nil
}

// RenameList renames a list unless it is protected.
func (s *ListService) RenameList(ctx context.Context, listID int64, newName string) error {
	list, err := s.getList(ctx, listID)
	if err != nil {
		return err
	}
	if list.Protected() {
		return ErrProtectedList
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrInvalidListName
	}

	err = s.lists.Rename(ctx, listID, newName)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrListNotFound
	}
	return err
}

// DeleteList removes a list owned by ownerID with all of its memberships.
// A list owned by someone else is reported as not found.
func (s *ListService) DeleteList(ctx context.Context, listID int64, ownerID string) error {
	list, err := s.GetOwnedList(ctx, listID, ownerID)
	if err != nil {
		return err
	}
	if list.Protected() {
		return ErrProtectedList
	}

	err = s.lists.DeleteCascade(ctx, listID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrListNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete list %d: %w", listID, err)
	}

	s.log.Info("list deleted", zap.Int64("list_id", listID), zap.String("owner", ownerID))
	if s.events != nil {
		evt := events.ListDeletedEvent(listID, ownerID)
		if err := s.events.Publish(ctx, evt); err != nil {
			s.log.Warn("failed to publish list event", zap.String("subject", evt.Subject()), zap.Error(err))
		}
	}
	return nil
}

// GetListName returns the name of a list.
func (s *ListService) GetListName(ctx context.Context, listID int64) (string, error) {
	list, err := s.getList(ctx, listID)
	if err != nil {
		return "", err
	}
	return list.Name, nil
}

// GetUserLists returns every list of ownerID, oldest first. Never nil.
func (s *ListService) GetUserLists(ctx context.Context, ownerID string) ([]models.List, error) {
	lists, err := s.lists.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if lists == nil {
		lists = []models.List{}
	}
	return lists, nil
}

// GetOwnedList returns the list if ownerID owns it, ErrListNotFound otherwise.
func (s *ListService) GetOwnedList(ctx context.Context, listID int64, ownerID string) (*models.List, error) {
	list, err := s.lists.GetByIDAndOwner(ctx, listID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load list %d: %w", listID, err)
	}
	if list == nil {
		return nil, ErrListNotFound
	}
	return list, nil
}

func (s *ListService) getList(ctx context.Context, listID int64) (*models.List, error) {
	list, err := s.lists.GetByID(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to load list %d: %w", listID, err)
	}
	if list == nil {
		return nil, ErrListNotFound
	}
	return list, nil
}
