package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
	"github.com/cminh91/dong-y-sub001/internal/gateway/handlers"
	"github.com/cminh91/dong-y-sub001/internal/health"
	affiliate "github.com/cminh91/dong-y-sub001/internal/services/affiliate/handler"
	cart "github.com/cminh91/dong-y-sub001/internal/services/cart/handler"
	catalog "github.com/cminh91/dong-y-sub001/internal/services/catalog/handler"
	commissions "github.com/cminh91/dong-y-sub001/internal/services/commissions/handler"
	content "github.com/cminh91/dong-y-sub001/internal/services/content/handler"
	orders "github.com/cminh91/dong-y-sub001/internal/services/orders/handler"
	users "github.com/cminh91/dong-y-sub001/internal/services/user/handler"
	"github.com/cminh91/dong-y-sub001/internal/testutil"
	"github.com/cminh91/dong-y-sub001/internal/utils"
)

type env struct {
	router *gin.Engine
	db     *gorm.DB
	tokens *utils.TokenIssuer
}

func newEnv(t *testing.T, sensitiveRate string) env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)
	log := zap.NewNop()
	tokens := utils.NewTokenIssuer("test-secret", time.Hour)

	ch := commissions.NewCommissionHandler(db, rdb, log)
	svc := Services{
		Orders:      orders.NewOrderHandler(db, rdb, log, ch, decimal.NewFromInt(1)),
		Commissions: ch,
		Affiliate:   affiliate.NewAffiliateHandler(db, rdb, log, ch),
		Catalog:     catalog.NewCatalogHandler(db, rdb, log),
		Cart:        cart.NewCartHandler(db, log),
		Content:     content.NewContentHandler(db, rdb, log),
		Users:       users.NewUserHandler(db, rdb, log, tokens),
		Tokens:      tokens,
		Health:      health.NewChecker(db, rdb),
	}
	r, err := NewRouter(svc, Options{
		AllowedOrigins: []string{"*"},
		GeneralRate:    "1000-M",
		SensitiveRate:  sensitiveRate,
		MaxUploadSize:  1 << 20,
	}, log)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return env{router: r, db: db, tokens: tokens}
}

func (e env) tokenFor(t *testing.T, u *models.User) string {
	t.Helper()
	token, _, err := e.tokens.GenerateToken(u.ID, u.Email, u.Role)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

func (e env) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handlers.APIResponse {
	t.Helper()
	var resp handlers.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestHealthAndRequestID(t *testing.T) {
	e := newEnv(t, "100-M")

	w := e.do(http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}

func TestRegisterThenMe(t *testing.T) {
	e := newEnv(t, "100-M")

	w := e.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email": "lan@example.vn", "password": "matkhau123", "fullName": "Trần Thị Lan",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d: %s", w.Code, w.Body.String())
	}
	var auth struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &auth)
	if auth.Data.Token == "" {
		t.Fatal("register should return a token")
	}

	if w := e.do(http.MethodGet, "/api/auth/me", nil, auth.Data.Token); w.Code != http.StatusOK {
		t.Fatalf("me = %d: %s", w.Code, w.Body.String())
	}
	if w := e.do(http.MethodGet, "/api/auth/me", nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("me without token = %d", w.Code)
	}
	if w := e.do(http.MethodGet, "/api/auth/me", nil, "not-a-jwt"); w.Code != http.StatusUnauthorized {
		t.Fatalf("me with bad token = %d", w.Code)
	}
}

func TestValidationErrorsListFields(t *testing.T) {
	e := newEnv(t, "100-M")

	w := e.do(http.MethodPost, "/api/auth/register", map[string]string{"email": "khong-hop-le", "password": "1"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode(t, w)
	fields := map[string]bool{}
	for _, v := range resp.Errors {
		fields[v.Field] = true
	}
	if !fields["email"] || !fields["password"] || !fields["fullName"] {
		t.Fatalf("unexpected field errors %+v", resp.Errors)
	}
}

func TestAdminRoutesRequirePermission(t *testing.T) {
	e := newEnv(t, "100-M")
	customer := testutil.CreateUser(t, e.db, models.RoleCustomer, nil)
	staff := testutil.CreateUser(t, e.db, models.RoleStaff, nil)

	if w := e.do(http.MethodGet, "/api/admin/orders", nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d", w.Code)
	}
	if w := e.do(http.MethodGet, "/api/admin/orders", nil, e.tokenFor(t, customer)); w.Code != http.StatusForbidden {
		t.Fatalf("customer = %d", w.Code)
	}
	if w := e.do(http.MethodGet, "/api/admin/orders", nil, e.tokenFor(t, staff)); w.Code != http.StatusOK {
		t.Fatalf("staff = %d: %s", w.Code, w.Body.String())
	}
	if w := e.do(http.MethodGet, "/api/admin/users", nil, e.tokenFor(t, staff)); w.Code != http.StatusForbidden {
		t.Fatalf("staff on users = %d", w.Code)
	}
}

func TestGuestCheckoutAndLookupByPhone(t *testing.T) {
	e := newEnv(t, "100-M")
	p := testutil.CreateProduct(t, e.db, "cao-ich-mau", 150000, 10)

	w := e.do(http.MethodPost, "/api/orders/create", map[string]interface{}{
		"items":         []map[string]interface{}{{"productId": p.ID, "quantity": 2, "price": "150000"}},
		"customerName":  "Nguyễn Văn A",
		"customerPhone": "+84912345678",
		"shippingAddress": map[string]string{
			"fullName": "Nguyễn Văn A", "phone": "0912345678", "address": "12 Lê Lợi", "province": "Hà Nội",
		},
		"paymentMethod": "COD",
		"totalAmount":   "300000",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("checkout = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Data struct {
			OrderNumber string `json:"orderNumber"`
		} `json:"data"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)
	if created.Data.OrderNumber == "" {
		t.Fatal("missing order number")
	}

	path := "/api/orders/" + created.Data.OrderNumber
	if w := e.do(http.MethodGet, path, nil, ""); w.Code != http.StatusNotFound {
		t.Fatalf("lookup without phone = %d", w.Code)
	}
	if w := e.do(http.MethodGet, path+"?phone=0912345678", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("lookup with phone = %d: %s", w.Code, w.Body.String())
	}
}

func TestAffiliateTrackSetsCookie(t *testing.T) {
	e := newEnv(t, "100-M")
	agent := testutil.CreateUser(t, e.db, models.RoleAgent, nil)
	link := testutil.CreateLink(t, e.db, agent.ID, 10)

	w := e.do(http.MethodGet, "/api/affiliate/track/"+link.Slug, nil, "")
	if w.Code != http.StatusFound {
		t.Fatalf("track = %d", w.Code)
	}
	cookie := w.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, handlers.AffiliateCookie+"="+link.Slug) || !strings.Contains(cookie, "HttpOnly") {
		t.Fatalf("unexpected cookie %q", cookie)
	}

	w = e.do(http.MethodGet, "/api/affiliate/track/khong-ton-tai", nil, "")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("unknown slug = %d to %q", w.Code, w.Header().Get("Location"))
	}
}

func TestSensitiveRoutesAreRateLimited(t *testing.T) {
	e := newEnv(t, "2-M")
	body := map[string]string{"email": "ai@example.vn", "password": "sai-mat-khau"}

	for i := 0; i < 2; i++ {
		if w := e.do(http.MethodPost, "/api/auth/login", body, ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d = %d", i+1, w.Code)
		}
	}
	if w := e.do(http.MethodPost, "/api/auth/login", body, ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("third attempt = %d", w.Code)
	}
	if w := e.do(http.MethodGet, "/api/faqs", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("general routes should not share the sensitive quota: %d", w.Code)
	}
}
