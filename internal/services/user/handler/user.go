package handler

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/policy"
	"github.com/cminh91/dong-y-sub001/internal/services/shared"
	"github.com/cminh91/dong-y-sub001/internal/utils"
)

const (
	USER_CACHE_PREFIX = "user:subject:"
	MinPasswordLength = 6
)

type UserHandler struct {
	db     *gorm.DB
	redis  *redis.Client
	log    *zap.Logger
	tokens *utils.TokenIssuer
	cost   int
}

func NewUserHandler(db *gorm.DB, redisClient *redis.Client, log *zap.Logger, tokens *utils.TokenIssuer) *UserHandler {
	return &UserHandler{
		db:     db,
		redis:  redisClient,
		log:    log.Named("user"),
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
	}
}

func (s *UserHandler) InvalidateUserCaches(ctx context.Context, userIDs ...int64) {
	for _, id := range userIDs {
		_ = s.redis.Del(ctx, fmt.Sprintf("%s%d", USER_CACHE_PREFIX, id)).Err()
	}
}

type AuthResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

type RegisterInput struct {
	Email        string
	Password     string
	FullName     string
	Phone        string
	ReferralCode string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserHandler) issue(user *models.User) (*AuthResult, error) {
	token, exp, err := s.tokens.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to generate token: %v", err)
	}
	return &AuthResult{Token: token, ExpiresAt: exp, User: user}, nil
}

func (s *UserHandler) uniqueReferralCode(ctx context.Context) (string, error) {
	for i := 0; i < 5; i++ {
		code := utils.ReferralCode()
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("referral_code = ?", code).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a referral code")
}

func (s *UserHandler) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)

	var v []shared.FieldViolation
	if _, err := mail.ParseAddress(in.Email); err != nil || in.Email == "" {
		v = append(v, shared.FieldViolation{Field: "email", Message: "Email không hợp lệ"})
	}
	if len(in.Password) < MinPasswordLength {
		v = append(v, shared.FieldViolation{Field: "password", Message: "Mật khẩu phải có ít nhất 6 ký tự"})
	}
	if in.FullName == "" {
		v = append(v, shared.FieldViolation{Field: "fullName", Message: "Vui lòng nhập họ tên"})
	}
	if len(v) > 0 {
		return nil, shared.FieldError(codes.InvalidArgument, "Thông tin đăng ký không hợp lệ", v...)
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", in.Email).Count(&existing).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to check email: %v", err)
	}
	if existing > 0 {
		return nil, shared.FieldError(codes.AlreadyExists, "Email đã được sử dụng",
			shared.FieldViolation{Field: "email", Message: "Email đã được sử dụng"})
	}

	var referredBy *int64
	if code := strings.ToUpper(strings.TrimSpace(in.ReferralCode)); code != "" {
		var referrer models.User
		if err := s.db.WithContext(ctx).Where("referral_code = ? AND is_active = ?", code, true).First(&referrer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, shared.FieldError(codes.InvalidArgument, "Mã giới thiệu không tồn tại",
					shared.FieldViolation{Field: "referralCode", Message: "Mã giới thiệu không tồn tại"})
			}
			return nil, status.Errorf(codes.Internal, "Failed to look up referral code: %v", err)
		}
		referredBy = &referrer.ID
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to hash password: %v", err)
	}
	code, err := s.uniqueReferralCode(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to generate referral code: %v", err)
	}

	user := models.User{
		Email:        in.Email,
		Password:     string(pwHash),
		FullName:     in.FullName,
		Phone:        strings.TrimSpace(in.Phone),
		Role:         models.RoleCustomer,
		Permissions:  models.StringArray{},
		ReferralCode: code,
		ReferredByID: referredBy,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to create user: %v", err)
	}

	s.log.Info("user registered", zap.Int64("user_id", user.ID), zap.Bool("referred", referredBy != nil))
	return s.issue(&user)
}

func (s *UserHandler) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := status.Errorf(codes.Unauthenticated, "Email hoặc mật khẩu không đúng")

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ? AND is_active = ?", normalizeEmail(email), true).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid
		}
		return nil, status.Errorf(codes.Internal, "Failed to load user: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, invalid
	}

	now := time.Now()
	user.LastLogin = &now
	if err := s.db.WithContext(ctx).Model(&user).UpdateColumn("last_login", now).Error; err != nil {
		s.log.Warn("failed to record last login", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return s.issue(&user)
}

func (s *UserHandler) GetMe(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, shared.NotFoundOr(err, "người dùng")
	}
	return &user, nil
}

func (s *UserHandler) ChangePassword(ctx context.Context, id int64, current, next string) error {
	user, err := s.GetMe(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)) != nil {
		return shared.FieldError(codes.InvalidArgument, "Mật khẩu hiện tại không đúng",
			shared.FieldViolation{Field: "currentPassword", Message: "Mật khẩu hiện tại không đúng"})
	}
	if len(next) < MinPasswordLength {
		return shared.FieldError(codes.InvalidArgument, "Mật khẩu mới không hợp lệ",
			shared.FieldViolation{Field: "newPassword", Message: "Mật khẩu phải có ít nhất 6 ký tự"})
	}
	pwHash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return status.Errorf(codes.Internal, "Failed to hash password: %v", err)
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password", string(pwHash)).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to update password: %v", err)
	}
	return nil
}

// LoadSubject returns the policy view of a user. It is cached briefly and dropped on every admin update.
func (s *UserHandler) LoadSubject(ctx context.Context, id int64) (policy.Subject, error) {
	cacheKey := fmt.Sprintf("%s%d", USER_CACHE_PREFIX, id)

	var cached policy.Subject
	if shared.GetJSON(ctx, s.redis, s.log, cacheKey, &cached) {
		return cached, nil
	}

	user, err := s.GetMe(ctx, id)
	if err != nil {
		return policy.Subject{}, err
	}
	subject := policy.Subject{
		UserID:   user.ID,
		Email:    user.Email,
		Role:     policy.Role(user.Role),
		Extra:    []string(user.Permissions),
		IsActive: user.IsActive,
	}
	shared.SetJSON(ctx, s.redis, s.log, cacheKey, subject, shared.CACHE_TTL_SHORT)
	return subject, nil
}

type UserFilter struct {
	Role     string
	Search   string
	IsActive *bool
	Page     shared.Page
}

func (s *UserHandler) ListUsers(ctx context.Context, f UserFilter) ([]models.User, shared.PageMeta, error) {
	page := f.Page.Normalize()
	query := s.db.WithContext(ctx).Model(&models.User{})

	if f.Role != "" {
		query = query.Where("role = ?", strings.ToUpper(f.Role))
	}
	if f.IsActive != nil {
		query = query.Where("is_active = ?", *f.IsActive)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("(LOWER(email) LIKE ? OR LOWER(full_name) LIKE ? OR phone LIKE ?)", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, shared.PageMeta{}, status.Errorf(codes.Internal, "Failed to count users: %v", err)
	}

	var users []models.User
	if err := query.Order("created_at desc").Order("id desc").Offset(page.Offset()).Limit(page.PageSize).Find(&users).Error; err != nil {
		return nil, shared.PageMeta{}, status.Errorf(codes.Internal, "Failed to retrieve users: %v", err)
	}
	return users, page.Meta(total), nil
}

type AdminUserInput struct {
	FullName       *string
	Phone          *string
	Role           *string
	Permissions    *[]string
	CommissionRate *decimal.Decimal
	IsActive       *bool
}

func (s *UserHandler) UpdateUser(ctx context.Context, id int64, in AdminUserInput) (*models.User, error) {
	user, err := s.GetMe(ctx, id)
	if err != nil {
		return nil, err
	}

	// Only the columns named by in are written. Commission totals and balances
	// move concurrently through checkout and payouts.
	changes := map[string]interface{}{}
	var v []shared.FieldViolation
	if in.FullName != nil {
		if name := strings.TrimSpace(*in.FullName); name != "" {
			changes["full_name"] = name
		} else {
			v = append(v, shared.FieldViolation{Field: "fullName", Message: "Vui lòng nhập họ tên"})
		}
	}
	if in.Phone != nil {
		changes["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.Role != nil {
		role := strings.ToUpper(*in.Role)
		if policy.ValidRole(role) {
			changes["role"] = role
		} else {
			v = append(v, shared.FieldViolation{Field: "role", Message: "Vai trò không hợp lệ"})
		}
	}
	if in.Permissions != nil {
		perms := models.StringArray{}
		for _, p := range *in.Permissions {
			if !policy.ValidPermission(p) {
				v = append(v, shared.FieldViolation{Field: "permissions", Message: fmt.Sprintf("Quyền không hợp lệ: %s", p)})
				continue
			}
			perms = append(perms, p)
		}
		changes["permissions"] = perms
	}
	if in.CommissionRate != nil {
		rate := *in.CommissionRate
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
			v = append(v, shared.FieldViolation{Field: "commissionRate", Message: "Tỷ lệ hoa hồng phải từ 0 đến 100"})
		} else {
			changes["commission_rate"] = rate
		}
	}
	if in.IsActive != nil {
		changes["is_active"] = *in.IsActive
	}
	if len(v) > 0 {
		return nil, shared.FieldError(codes.InvalidArgument, "Dữ liệu người dùng không hợp lệ", v...)
	}

	if len(changes) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return nil, status.Errorf(codes.Internal, "Failed to update user: %v", err)
		}
	}
	if user, err = s.GetMe(ctx, id); err != nil {
		return nil, err
	}

	s.InvalidateUserCaches(ctx, user.ID)
	s.log.Info("user updated", zap.Int64("user_id", user.ID), zap.String("role", user.Role), zap.Bool("active", user.IsActive))
	return user, nil
}
