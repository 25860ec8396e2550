package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/models"
)

type OfferInput struct {
	Title       string   `json:"title" validate:"required,max=255"`
	Description string   `json:"description"`
	Type        string   `json:"type" validate:"omitempty,oneof=sweepstakes survey download subscription custom"`
	Payout      *float64 `json:"payout" validate:"omitempty,gte=0,lte=99999999.99"`
	Status      string   `json:"status" validate:"omitempty,oneof=active inactive paused"`
}

type OfferService struct {
	DB *gorm.DB
}

func NewOfferService(db *gorm.DB) *OfferService {
	return &OfferService{DB: db}
}

func (s *OfferService) Create(ctx context.Context, input OfferInput) (*models.Offer, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	offer := models.Offer{
		Title:       input.Title,
		Description: input.Description,
		Type:        models.OfferTypeCustom,
		Status:      models.OfferStatusActive,
	}
	applyOfferInput(&offer, input)

	if err := s.DB.WithContext(ctx).Create(&offer).Error; err != nil {
		logger.FromContext(ctx).Error("Create offer error", zap.String("title", offer.Title), zap.Error(err))
		return nil, fmt.Errorf("create offer: %w", ErrPersistence)
	}
	return &offer, nil
}

func (s *OfferService) Update(ctx context.Context, id uint, input OfferInput) (*models.Offer, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	offer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	offer.Title = input.Title
	offer.Description = input.Description
	applyOfferInput(offer, input)

	if err := s.DB.WithContext(ctx).Save(offer).Error; err != nil {
		logger.FromContext(ctx).Error("Update offer error", zap.Uint("offer_id", id), zap.Error(err))
		return nil, fmt.Errorf("update offer %d: %w", id, ErrPersistence)
	}
	return offer, nil
}

func applyOfferInput(offer *models.Offer, input OfferInput) {
	if input.Type != "" {
		offer.Type = input.Type
	}
	if input.Payout != nil {
		offer.Payout = *input.Payout
	}
	if input.Status != "" {
		offer.Status = input.Status
	}
}

func (s *OfferService) Get(ctx context.Context, id uint) (*models.Offer, error) {
	var offer models.Offer
	err := s.DB.WithContext(ctx).First(&offer, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("offer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// List returns offers newest first, optionally restricted to one status.
func (s *OfferService) List(ctx context.Context, status string) ([]models.Offer, error) {
	offers := []models.Offer{}
	q := s.DB.WithContext(ctx).Order("created_at desc, id desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&offers).Error
	return offers, err
}

// Deactivate hides an offer without deleting it, so past conversions keep their link.
func (s *OfferService) Deactivate(ctx context.Context, id uint) error {
	res := s.DB.WithContext(ctx).Model(&models.Offer{}).Where("id = ?", id).Update("status", models.OfferStatusInactive)
	if res.Error != nil {
		logger.FromContext(ctx).Error("Deactivate offer error", zap.Uint("offer_id", id), zap.Error(res.Error))
		return fmt.Errorf("deactivate offer %d: %w", id, ErrPersistence)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
