package handler

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	commissions "github.com/cminh91/dong-y-sub001/internal/services/commissions/handler"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
)

const (
	SETTING_CACHE_PREFIX = "setting:"
	HOMEPAGE_CACHE_KEY   = "setting:homepage"

	HomepagePrefix     = "homepage_"
	PaymentSettingsKey = "payment_settings"
	SiteInfoKey        = "site_info"
)

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// SettingValidator checks a value before it is stored under its key.
type SettingValidator func(raw json.RawMessage) error

type ContentHandler struct {
	db         *gorm.DB
	redis      *redis.Client
	log        *zap.Logger
	validators map[string]SettingValidator
}

func NewContentHandler(db *gorm.DB, redisClient *redis.Client, log *zap.Logger) *ContentHandler {
	h := &ContentHandler{db: db, redis: redisClient, log: log.Named("content"), validators: map[string]SettingValidator{}}
	h.RegisterValidator(commissions.AffiliateSettingsKey, func(raw json.RawMessage) error {
		s := commissions.DefaultAffiliateSettings()
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		return s.Validate()
	})
	h.RegisterValidator(PaymentSettingsKey, func(raw json.RawMessage) error {
		var p PaymentSettings
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		return p.Validate()
	})
	return h
}

func (s *ContentHandler) RegisterValidator(key string, v SettingValidator) {
	s.validators[key] = v
}

// IsPublicSetting reports whether key may be read without authentication.
func IsPublicSetting(key string) bool {
	return strings.HasPrefix(key, HomepagePrefix) || key == PaymentSettingsKey || key == SiteInfoKey
}

func (s *ContentHandler) invalidateSetting(ctx context.Context, key string) {
	keys := []string{SETTING_CACHE_PREFIX + key}
	if strings.HasPrefix(key, HomepagePrefix) {
		keys = append(keys, HOMEPAGE_CACHE_KEY)
	}
	_ = s.redis.Del(ctx, keys...).Err()
}

func (s *ContentHandler) GetSetting(ctx context.Context, key string) (*models.SystemSetting, error) {
	cacheKey := SETTING_CACHE_PREFIX + key

	var cached models.SystemSetting
	if shared.GetJSON(ctx, s.redis, s.log, cacheKey, &cached) {
		return &cached, nil
	}

	var setting models.SystemSetting
	if err := s.db.WithContext(ctx).Where(&models.SystemSetting{Key: key}).First(&setting).Error; err != nil {
		return nil, shared.NotFoundOr(err, "cấu hình")
	}

	shared.SetJSON(ctx, s.redis, s.log, cacheKey, setting, shared.CACHE_TTL_MEDIUM)
	return &setting, nil
}

func (s *ContentHandler) ListSettings(ctx context.Context) ([]models.SystemSetting, error) {
	var settings []models.SystemSetting
	if err := s.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&settings).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load settings: %v", err)
	}
	return settings, nil
}

// UpsertSetting stores value under key. Concurrent writers race and the last write wins.
func (s *ContentHandler) UpsertSetting(ctx context.Context, key string, value json.RawMessage, description string, updatedBy *int64) (*models.SystemSetting, error) {
	if !keyPattern.MatchString(key) {
		return nil, shared.FieldError(codes.InvalidArgument, "Khoá cấu hình không hợp lệ",
			shared.FieldViolation{Field: "key", Message: "Chỉ gồm chữ thường, số và dấu gạch dưới"})
	}
	if !json.Valid(value) {
		return nil, shared.FieldError(codes.InvalidArgument, "Giá trị cấu hình không hợp lệ",
			shared.FieldViolation{Field: "value", Message: "Giá trị phải là JSON hợp lệ"})
	}
	if v, ok := s.validators[key]; ok {
		if err := v(value); err != nil {
			return nil, shared.FieldError(codes.InvalidArgument, "Giá trị cấu hình không hợp lệ",
				shared.FieldViolation{Field: "value", Message: err.Error()})
		}
	}

	setting := models.SystemSetting{
		Key:         key,
		Value:       models.JSONValue(value),
		Description: description,
		UpdatedBy:   updatedBy,
	}
	columns := []string{"value", "updated_by", "updated_at"}
	if description != "" {
		columns = append(columns, "description")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&setting).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to save setting: %v", err)
	}

	s.invalidateSetting(ctx, key)
	return s.GetSetting(ctx, key)
}

func (s *ContentHandler) DeleteSetting(ctx context.Context, key string) error {
	res := s.db.WithContext(ctx).Where(&models.SystemSetting{Key: key}).Delete(&models.SystemSetting{})
	if res.Error != nil {
		return status.Errorf(codes.Internal, "Failed to delete setting: %v", res.Error)
	}
	if res.RowsAffected == 0 {
		return status.Errorf(codes.NotFound, "Không tìm thấy cấu hình")
	}
	s.invalidateSetting(ctx, key)
	return nil
}

// GetHomepage merges every homepage_* setting into one document keyed by section.
func (s *ContentHandler) GetHomepage(ctx context.Context) (map[string]json.RawMessage, error) {
	cached := map[string]json.RawMessage{}
	if shared.GetJSON(ctx, s.redis, s.log, HOMEPAGE_CACHE_KEY, &cached) {
		return cached, nil
	}

	var settings []models.SystemSetting
	if err := s.db.WithContext(ctx).Where(clause.Like{Column: clause.Column{Name: "key"}, Value: HomepagePrefix + "%"}).Find(&settings).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load homepage: %v", err)
	}

	out := make(map[string]json.RawMessage, len(settings))
	for _, st := range settings {
		if !strings.HasPrefix(st.Key, HomepagePrefix) {
			continue
		}
		out[strings.TrimPrefix(st.Key, HomepagePrefix)] = json.RawMessage(st.Value)
	}

	shared.SetJSON(ctx, s.redis, s.log, HOMEPAGE_CACHE_KEY, out, shared.CACHE_TTL_MEDIUM)
	return out, nil
}

func (s *ContentHandler) UpdateHomepageSection(ctx context.Context, section string, value json.RawMessage, updatedBy *int64) (*models.SystemSetting, error) {
	return s.UpsertSetting(ctx, HomepagePrefix+strings.ToLower(section), value, "", updatedBy)
}
