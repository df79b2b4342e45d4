package handler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/policy"
	"github.com/cminh91/dong-y-sub001/internal/testutil"
	"github.com/cminh91/dong-y-sub001/internal/utils"
)

func newUsers(t *testing.T) *UserHandler {
	t.Helper()
	db := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)
	h := NewUserHandler(db, rdb, zap.NewNop(), utils.NewTokenIssuer("test-secret", time.Hour))
	h.cost = bcrypt.MinCost
	return h
}

func TestRegisterAndLogin(t *testing.T) {
	h := newUsers(t)
	ctx := context.Background()

	res, err := h.Register(ctx, RegisterInput{Email: " An@Example.vn ", Password: "secret1", FullName: "Nguyễn An", Phone: "0901234567"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.User.Email != "an@example.vn" || res.User.Role != models.RoleCustomer || len(res.User.ReferralCode) != 8 {
		t.Fatalf("unexpected user %+v", res.User)
	}

	claims, err := h.tokens.ParseToken(res.Token)
	if err != nil || claims.UserID != res.User.ID || claims.Role != models.RoleCustomer {
		t.Fatalf("token claims %+v, err %v", claims, err)
	}

	if _, err := h.Register(ctx, RegisterInput{Email: "an@example.vn", Password: "secret1", FullName: "B"}); status.Code(err) != codes.AlreadyExists {
		t.Fatalf("duplicate email: %v", err)
	}

	if _, err := h.Login(ctx, "an@example.vn", "wrong"); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("wrong password: %v", err)
	}
	logged, err := h.Login(ctx, "AN@example.vn", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.User.LastLogin == nil {
		t.Fatal("last login should be set")
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newUsers(t)
	ctx := context.Background()

	_, err := h.Register(ctx, RegisterInput{Email: "not-an-email", Password: "123", FullName: ""})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	_, err = h.Register(ctx, RegisterInput{Email: "x@example.vn", Password: "secret1", FullName: "X", ReferralCode: "NOPE1234"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("unknown referral code: %v", err)
	}
}

func TestRegisterWithReferral(t *testing.T) {
	h := newUsers(t)
	ctx := context.Background()

	agent := testutil.CreateUser(t, h.db, models.RoleAgent, nil)
	res, err := h.Register(ctx, RegisterInput{Email: "c@example.vn", Password: "secret1", FullName: "C", ReferralCode: agent.ReferralCode})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.User.ReferredByID == nil || *res.User.ReferredByID != agent.ID {
		t.Fatalf("expected referral by %d, got %v", agent.ID, res.User.ReferredByID)
	}
}

func TestUpdateUserAndSubjectCache(t *testing.T) {
	h := newUsers(t)
	ctx := context.Background()

	u := testutil.CreateUser(t, h.db, models.RoleCustomer, nil)

	subject, err := h.LoadSubject(ctx, u.ID)
	if err != nil {
		t.Fatalf("subject: %v", err)
	}
	if policy.Can(subject, policy.OrdersView) {
		t.Fatal("customers cannot view all orders")
	}

	role := "staff"
	perms := []string{string(policy.SettingsEdit)}
	rate := decimal.NewFromInt(12)
	updated, err := h.UpdateUser(ctx, u.ID, AdminUserInput{Role: &role, Permissions: &perms, CommissionRate: &rate})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Role != models.RoleStaff || !updated.CommissionRate.Equal(rate) {
		t.Fatalf("unexpected user %+v", updated)
	}

	subject, _ = h.LoadSubject(ctx, u.ID)
	if !policy.Can(subject, policy.SettingsEdit) || !policy.Can(subject, policy.OrdersView) {
		t.Fatalf("subject cache was not refreshed: %+v", subject)
	}

	bad := []string{"orders.delete"}
	if _, err := h.UpdateUser(ctx, u.ID, AdminUserInput{Permissions: &bad}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("unknown permission: %v", err)
	}
	tooHigh := decimal.NewFromInt(101)
	if _, err := h.UpdateUser(ctx, u.ID, AdminUserInput{CommissionRate: &tooHigh}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("rate above 100: %v", err)
	}

	inactive := false
	h.UpdateUser(ctx, u.ID, AdminUserInput{IsActive: &inactive})
	subject, _ = h.LoadSubject(ctx, u.ID)
	if policy.Can(subject, policy.OrdersView) {
		t.Fatal("inactive users have no permissions")
	}
}

func TestListUsersFilters(t *testing.T) {
	h := newUsers(t)
	ctx := context.Background()

	testutil.CreateUser(t, h.db, models.RoleAgent, nil)
	testutil.CreateUser(t, h.db, models.RoleCustomer, nil)
	testutil.CreateUser(t, h.db, models.RoleCustomer, nil)

	users, meta, err := h.ListUsers(ctx, UserFilter{Role: "customer"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if meta.Total != 2 || len(users) != 2 {
		t.Fatalf("expected 2 customers, got %d", meta.Total)
	}
}

func TestChangePassword(t *testing.T) {
	h := newUsers(t)
	ctx := context.Background()

	res, _ := h.Register(ctx, RegisterInput{Email: "p@example.vn", Password: "secret1", FullName: "P"})
	if err := h.ChangePassword(ctx, res.User.ID, "wrong", "secret2"); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("wrong current password: %v", err)
	}
	if err := h.ChangePassword(ctx, res.User.ID, "secret1", "secret2"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := h.Login(ctx, "p@example.vn", "secret2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestUpdateUserKeepsConcurrentCommissionCredits(t *testing.T) {
	h := newUsers(t)
	ctx := context.Background()
	agent := testutil.CreateUser(t, h.db, models.RoleAgent, nil)

	testutil.AfterFirstRead(t, h.db, "users", func(db *gorm.DB) {
		err := db.Exec("UPDATE users SET total_commission = total_commission + ?, available_balance = available_balance + ? WHERE id = ?",
			50000, 20000, agent.ID).Error
		if err != nil {
			t.Errorf("credit: %v", err)
		}
	})

	name := "Trần Văn Đại Lý"
	updated, err := h.UpdateUser(ctx, agent.ID, AdminUserInput{FullName: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.FullName != "Trần Văn Đại Lý" {
		t.Fatalf("name not updated: %q", updated.FullName)
	}

	var stored models.User
	h.db.First(&stored, agent.ID)
	if !stored.TotalCommission.Equal(decimal.NewFromInt(50000)) || !stored.AvailableBalance.Equal(decimal.NewFromInt(20000)) {
		t.Fatalf("credits lost: total_commission=%s available_balance=%s", stored.TotalCommission, stored.AvailableBalance)
	}
	if stored.Role != models.RoleAgent || !stored.IsActive {
		t.Fatalf("untouched columns changed: role=%s active=%t", stored.Role, stored.IsActive)
	}
}
