package handler

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	commissions "github.com/cminh91/dong-y-sub001/internal/services/commissions/handler"
	"github.com/cminh91/dong-y-sub001/internal/testutil"
)

func newAffiliate(t *testing.T) (*AffiliateHandler, *gorm.DB, *redis.Client) {
	t.Helper()
	db := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)
	ch := commissions.NewCommissionHandler(db, rdb, zap.NewNop())
	return NewAffiliateHandler(db, rdb, zap.NewNop(), ch), db, rdb
}

func strPtr(s string) *string { return &s }

func TestCreateLinkForProduct(t *testing.T) {
	h, db, _ := newAffiliate(t)
	ctx := context.Background()
	agent := testutil.CreateUser(t, db, models.RoleAgent, nil)
	p := testutil.CreateProduct(t, db, "cao-ban-long", 300000, 5)

	link, err := h.CreateLink(ctx, agent.ID, LinkInput{ProductID: &p.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if link.Slug == "" || link.Title != p.Name || !link.IsActive {
		t.Fatalf("unexpected link %+v", link)
	}

	if _, err := h.CreateLink(ctx, agent.ID, LinkInput{Slug: strPtr(link.Slug)}); status.Code(err) != codes.AlreadyExists {
		t.Fatalf("duplicate slug should be rejected, got %v", err)
	}
	if _, err := h.CreateLink(ctx, agent.ID, LinkInput{TargetURL: strPtr("https://evil.example")}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("off-site target should be rejected, got %v", err)
	}
}

func TestTrackClickDedupesPerIP(t *testing.T) {
	h, db, _ := newAffiliate(t)
	ctx := context.Background()
	agent := testutil.CreateUser(t, db, models.RoleAgent, nil)
	p := testutil.CreateProduct(t, db, "hoat-huyet", 90000, 5)
	link, _ := h.CreateLink(ctx, agent.ID, LinkInput{ProductID: &p.ID})

	res, err := h.TrackClick(ctx, link.Slug, "1.2.3.4")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if !res.Counted || res.CookieDays != 30 || res.Redirect != ProductPathPrefix+p.Slug {
		t.Fatalf("unexpected result %+v", res)
	}
	h.TrackClick(ctx, link.Slug, "1.2.3.4")
	h.TrackClick(ctx, link.Slug, "5.6.7.8")

	var reloaded models.AffiliateLink
	db.First(&reloaded, link.ID)
	if reloaded.Clicks != 2 {
		t.Fatalf("clicks = %d, want 2", reloaded.Clicks)
	}

	h.SetLinkActive(ctx, link.ID, false)
	if _, err := h.TrackClick(ctx, link.Slug, "9.9.9.9"); status.Code(err) != codes.NotFound {
		t.Fatalf("inactive link should not track, got %v", err)
	}
}

func TestUpdateAndDeleteOwnLinksOnly(t *testing.T) {
	h, db, _ := newAffiliate(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, models.RoleAgent, nil)
	other := testutil.CreateUser(t, db, models.RoleAgent, nil)
	link, _ := h.CreateLink(ctx, owner.ID, LinkInput{Title: strPtr("Khuyến mãi")})

	if _, err := h.UpdateLink(ctx, other.ID, link.ID, LinkInput{Title: strPtr("x")}); status.Code(err) != codes.NotFound {
		t.Fatalf("foreign link update should be NotFound, got %v", err)
	}
	updated, err := h.UpdateLink(ctx, owner.ID, link.ID, LinkInput{Title: strPtr("Tết"), TargetURL: strPtr("/khuyen-mai")})
	if err != nil || updated.Title != "Tết" {
		t.Fatalf("update: %v", err)
	}

	used, _ := h.CreateLink(ctx, owner.ID, LinkInput{})
	db.Create(&models.Order{OrderNumber: "DY000000AAAAAA", CustomerName: "x", CustomerPhone: "1", PaymentMethod: "COD",
		Status: models.OrderPending, PaymentStatus: models.PaymentPending, AffiliateLinkID: &used.ID})

	if deleted, err := h.DeleteLink(ctx, owner.ID, used.ID); err != nil || deleted {
		t.Fatalf("used link should be deactivated, deleted=%v err=%v", deleted, err)
	}
	if deleted, err := h.DeleteLink(ctx, owner.ID, link.ID); err != nil || !deleted {
		t.Fatalf("unused link should be deleted, deleted=%v err=%v", deleted, err)
	}

	links, meta, _ := h.ListLinks(ctx, LinkFilter{UserID: &owner.ID})
	if meta.Total != 1 || links[0].IsActive {
		t.Fatalf("unexpected links %+v", links)
	}
}

func TestGetStats(t *testing.T) {
	h, db, _ := newAffiliate(t)
	ctx := context.Background()
	agent := testutil.CreateUser(t, db, models.RoleAgent, nil)
	testutil.CreateUser(t, db, models.RoleCustomer, &agent.ID)

	link, _ := h.CreateLink(ctx, agent.ID, LinkInput{})
	db.Model(link).Updates(map[string]interface{}{"clicks": 8, "conversions": 2})
	db.Create(&models.Commission{OrderID: 1, UserID: agent.ID, Level: 1, BaseAmount: decimal.NewFromInt(100000),
		Rate: decimal.NewFromInt(10), Amount: decimal.NewFromInt(10000), Status: models.CommissionPending})

	stats, err := h.GetStats(ctx, agent.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Clicks != 8 || stats.Conversions != 2 || !stats.ConversionRate.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Referrals != 1 || !stats.Commission.Pending.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestDeleteLinkKeepsLinkWhenUsageUnknown(t *testing.T) {
	h, db, _ := newAffiliate(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, models.RoleAgent, nil)
	link := testutil.CreateLink(t, db, owner.ID, 10)

	testutil.FailReads(t, db, "orders")
	if _, err := h.DeleteLink(ctx, owner.ID, link.ID); status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}

	var n int64
	db.Model(&models.AffiliateLink{}).Where("id = ?", link.ID).Count(&n)
	if n != 1 {
		t.Fatal("link deleted although its usage could not be checked")
	}
}

func TestCreateLinkDuplicateSlugRaceIsConflict(t *testing.T) {
	h, db, _ := newAffiliate(t)
	ctx := context.Background()
	agent := testutil.CreateUser(t, db, models.RoleAgent, nil)
	other := testutil.CreateLink(t, db, agent.ID, 10)

	// Another link takes the slug right after the availability check.
	testutil.AfterFirstRead(t, db, "affiliate_links", func(db *gorm.DB) {
		db.Exec("UPDATE affiliate_links SET slug = ? WHERE id = ?", "lien-ket-he", other.ID)
	})

	_, err := h.CreateLink(ctx, agent.ID, LinkInput{Slug: strPtr("lien-ket-he")})
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}
