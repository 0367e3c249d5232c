package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

const viewHistoryLimit = 100

// ViewHistoryInput is a page view to record.
type ViewHistoryInput struct {
	SessionID  string
	UserID     string
	EntityType string
	EntityID   string
	Path       string
	PathJSON   map[string]any
}

// ViewHistoryService records and lists browsing history.
type ViewHistoryService interface {
	Create(ctx context.Context, in ViewHistoryInput) (*entity.ViewHistory, error)
	FindBySession(ctx context.Context, sessionID string) ([]*entity.ViewHistory, error)
	FindByUser(ctx context.Context, userID string) ([]*entity.ViewHistory, error)
	ClearSession(ctx context.Context, sessionID string) error
}

type viewHistoryUseCase struct {
	repo   repository.ViewHistoryRepository
	logger *zap.Logger
}

func NewViewHistoryService(repo repository.ViewHistoryRepository, logger *zap.Logger) ViewHistoryService {
	return &viewHistoryUseCase{repo: repo, logger: logger.Named("view_history")}
}

func (uc *viewHistoryUseCase) Create(ctx context.Context, in ViewHistoryInput) (*entity.ViewHistory, error) {
	if in.SessionID == "" || in.EntityType == "" || in.EntityID == "" {
		return nil, fmt.Errorf("%w: sessionId, entityType and entityId are required", ErrInvalidInput)
	}
	v := &entity.ViewHistory{
		SessionID:  in.SessionID,
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		PathJSON:   in.PathJSON,
	}
	if in.UserID != "" {
		v.UserID = &in.UserID
	}
	if in.Path != "" {
		v.Path = &in.Path
	}
	if err := uc.repo.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to record view: %w", err)
	}
	return v, nil
}

func (uc *viewHistoryUseCase) FindBySession(ctx context.Context, sessionID string) ([]*entity.ViewHistory, error) {
	return uc.repo.ListBySession(ctx, sessionID, viewHistoryLimit)
}

func (uc *viewHistoryUseCase) FindByUser(ctx context.Context, userID string) ([]*entity.ViewHistory, error) {
	return uc.repo.ListByUser(ctx, userID, viewHistoryLimit)
}

func (uc *viewHistoryUseCase) ClearSession(ctx context.Context, sessionID string) error {
	if err := uc.repo.DeleteBySession(ctx, sessionID); err != nil {
		return err
	}
	uc.logger.Info("Cleared view history", zap.String("session_id", sessionID))
	return nil
}
