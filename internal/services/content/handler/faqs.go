package handler

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
)

const FAQ_CACHE_KEY = "faq:active"

func (s *ContentHandler) ListFAQs(ctx context.Context, activeOnly bool) ([]models.FAQ, error) {
	if activeOnly {
		var cached []models.FAQ
		if shared.GetJSON(ctx, s.redis, s.log, FAQ_CACHE_KEY, &cached) {
			return cached, nil
		}
	}

	query := s.db.WithContext(ctx).Model(&models.FAQ{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	faqs := []models.FAQ{}
	if err := query.Order("sort_order asc").Order("id asc").Find(&faqs).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load FAQs: %v", err)
	}

	if activeOnly {
		shared.SetJSON(ctx, s.redis, s.log, FAQ_CACHE_KEY, faqs, shared.CACHE_TTL_MEDIUM)
	}
	return faqs, nil
}

type FAQInput struct {
	Question  *string
	Answer    *string
	Category  *string
	SortOrder *int
	IsActive  *bool
}

func (s *ContentHandler) saveFAQ(ctx context.Context, faq *models.FAQ, in FAQInput) error {
	if in.Question != nil {
		faq.Question = strings.TrimSpace(*in.Question)
	}
	if in.Answer != nil {
		faq.Answer = strings.TrimSpace(*in.Answer)
	}
	if in.Category != nil {
		faq.Category = *in.Category
	}
	if in.SortOrder != nil {
		faq.SortOrder = *in.SortOrder
	}
	if in.IsActive != nil {
		faq.IsActive = *in.IsActive
	}

	var v []shared.FieldViolation
	if faq.Question == "" {
		v = append(v, shared.FieldViolation{Field: "question", Message: "Vui lòng nhập câu hỏi"})
	}
	if faq.Answer == "" {
		v = append(v, shared.FieldViolation{Field: "answer", Message: "Vui lòng nhập câu trả lời"})
	}
	if len(v) > 0 {
		return shared.FieldError(codes.InvalidArgument, "Dữ liệu FAQ không hợp lệ", v...)
	}

	if err := s.db.WithContext(ctx).Save(faq).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to save FAQ: %v", err)
	}
	_ = s.redis.Del(ctx, FAQ_CACHE_KEY).Err()
	return nil
}

func (s *ContentHandler) CreateFAQ(ctx context.Context, in FAQInput) (*models.FAQ, error) {
	faq := models.FAQ{IsActive: true}
	if err := s.saveFAQ(ctx, &faq, in); err != nil {
		return nil, err
	}
	return &faq, nil
}

func (s *ContentHandler) UpdateFAQ(ctx context.Context, id int64, in FAQInput) (*models.FAQ, error) {
	var faq models.FAQ
	if err := s.db.WithContext(ctx).First(&faq, id).Error; err != nil {
		return nil, shared.NotFoundOr(err, "FAQ")
	}
	if err := s.saveFAQ(ctx, &faq, in); err != nil {
		return nil, err
	}
	return &faq, nil
}

func (s *ContentHandler) DeleteFAQ(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&models.FAQ{}, id)
	if res.Error != nil {
		return status.Errorf(codes.Internal, "Failed to delete FAQ: %v", res.Error)
	}
	if res.RowsAffected == 0 {
		return status.Errorf(codes.NotFound, "Không tìm thấy FAQ")
	}
	_ = s.redis.Del(ctx, FAQ_CACHE_KEY).Err()
	return nil
}
