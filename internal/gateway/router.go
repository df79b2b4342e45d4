// Package gateway assembles the HTTP API.
package gateway

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cminh91/dong-y-sub001/internal/gateway/handlers"
	"github.com/cminh91/dong-y-sub001/internal/gateway/middleware"
	"github.com/cminh91/dong-y-sub001/internal/health"
	"github.com/cminh91/dong-y-sub001/internal/policy"
	affiliate "github.com/cminh91/dong-y-sub001/internal/services/affiliate/handler"
	cart "github.com/cminh91/dong-y-sub001/internal/services/cart/handler"
	catalog "github.com/cminh91/dong-y-sub001/internal/services/catalog/handler"
	commissions "github.com/cminh91/dong-y-sub001/internal/services/commissions/handler"
	content "github.com/cminh91/dong-y-sub001/internal/services/content/handler"
	orders "github.com/cminh91/dong-y-sub001/internal/services/orders/handler"
	users "github.com/cminh91/dong-y-sub001/internal/services/user/handler"
	"github.com/cminh91/dong-y-sub001/internal/storage"
	"github.com/cminh91/dong-y-sub001/internal/utils"
)

type Services struct {
	Orders      *orders.OrderHandler
	Commissions *commissions.CommissionHandler
	Affiliate   *affiliate.AffiliateHandler
	Catalog     *catalog.CatalogHandler
	Cart        *cart.CartHandler
	Content     *content.ContentHandler
	Users       *users.UserHandler
	Tokens      *utils.TokenIssuer
	Uploader    storage.Uploader
	Health      *health.Checker
}

type Options struct {
	AllowedOrigins []string
	TrustedProxies []string
	GeneralRate    string
	SensitiveRate  string
	SecureCookies  bool
	MaxUploadSize  int64
}

func NewRouter(svc Services, opts Options, log *zap.Logger) (*gin.Engine, error) {
	handlers.RegisterValidators()

	general, err := middleware.RateLimit(opts.GeneralRate, "api", log)
	if err != nil {
		return nil, err
	}
	sensitive, err := middleware.RateLimit(opts.SensitiveRate, "sensitive", log)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(middleware.RequestLogger(log.Named("http")))
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("panic recovered", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(500, gin.H{"success": false, "message": "Đã xảy ra lỗi, vui lòng thử lại sau"})
	}))
	r.Use(middleware.Metrics())
	r.Use(middleware.SetupCORS(opts.AllowedOrigins))

	jwt := middleware.JWTAuth(svc.Tokens, svc.Users)
	optional := middleware.OptionalAuth(svc.Tokens, svc.Users)
	perm := middleware.RequirePermission
	anyPerm := middleware.RequireAnyPermission

	orderH := handlers.NewOrderHTTPHandler(svc.Orders, log)
	affH := handlers.NewAffiliateHTTPHandler(svc.Affiliate, svc.Commissions, log, opts.SecureCookies)
	catalogH := handlers.NewCatalogHTTPHandler(svc.Catalog, log)
	cartH := handlers.NewCartHTTPHandler(svc.Cart, log)
	contentH := handlers.NewContentHTTPHandler(svc.Content, svc.Orders, log)
	userH := handlers.NewUserHTTPHandler(svc.Users, log)
	uploadH := handlers.NewUploadHTTPHandler(svc.Uploader, opts.MaxUploadSize, log)
	healthH := handlers.NewHealthHTTPHandler(svc.Health)

	r.GET("/health", healthH.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(general)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", sensitive, userH.Register)
			auth.POST("/login", sensitive, userH.Login)
			auth.GET("/me", jwt, userH.Me)
			auth.PUT("/password", sensitive, jwt, userH.ChangePassword)
		}

		api.GET("/products", catalogH.ListProducts)
		api.GET("/products/:slug", catalogH.GetProduct)
		api.GET("/categories", catalogH.Categories)

		cartG := api.Group("/cart", jwt)
		{
			cartG.GET("", cartH.Get)
			cartG.POST("", cartH.Add)
			cartG.PUT("/:productId", cartH.SetQuantity)
			cartG.DELETE("/:productId", cartH.Remove)
			cartG.DELETE("", cartH.Clear)
		}

		ordersG := api.Group("/orders")
		{
			ordersG.POST("/create", sensitive, optional, orderH.Create)
			ordersG.GET("", jwt, orderH.ListMine)
			ordersG.GET("/:orderNumber", optional, orderH.GetByNumber)
			ordersG.POST("/:orderNumber/cancel", jwt, orderH.CancelOwn)
		}

		api.GET("/affiliate/track/:slug", affH.Track)
		aff := api.Group("/affiliate", jwt, perm(policy.AffiliateUse))
		{
			aff.POST("/links", affH.CreateLink)
			aff.GET("/links", affH.ListMyLinks)
			aff.PUT("/links/:id", affH.UpdateLink)
			aff.DELETE("/links/:id", affH.DeleteLink)
			aff.GET("/stats", affH.Stats)
			aff.GET("/commissions", affH.MyCommissions)
		}

		api.GET("/settings/:key", contentH.GetPublicSetting)
		api.GET("/homepage", contentH.Homepage)
		api.GET("/payment-settings", contentH.PaymentSettings)
		api.GET("/payment-settings/qr", contentH.PaymentQR)
		api.GET("/posts", contentH.ListPosts)
		api.GET("/posts/:slug", contentH.GetPost)
		api.GET("/faqs", contentH.ListFAQs)

		admin := api.Group("/admin", jwt)
		{
			ao := admin.Group("/orders")
			{
				ao.GET("", anyPerm(policy.OrdersView, policy.OrdersEdit), orderH.AdminList)
				ao.GET("/:id", anyPerm(policy.OrdersView, policy.OrdersEdit), orderH.AdminGet)
				ao.PUT("/:id", perm(policy.OrdersEdit), orderH.AdminUpdate)
				ao.PUT("/:id/status", perm(policy.OrdersEdit), orderH.AdminUpdateStatus)
				ao.PUT("/:id/payment-status", perm(policy.OrdersEdit), orderH.AdminUpdatePaymentStatus)
			}

			ac := admin.Group("/commissions", perm(policy.CommissionsManage))
			{
				ac.GET("", affH.AdminListCommissions)
				ac.PUT("/:id/approve", affH.AdminApproveCommission)
				ac.PUT("/:id/pay", affH.AdminPayCommission)
				ac.PUT("/:id/cancel", affH.AdminCancelCommission)
			}

			al := admin.Group("/affiliate-links", perm(policy.CommissionsManage))
			{
				al.GET("", affH.AdminListLinks)
				al.PUT("/:id/active", affH.AdminSetLinkActive)
			}

			ap := admin.Group("/products", perm(policy.ProductsEdit))
			{
				ap.GET("", catalogH.AdminListProducts)
				ap.GET("/:id", catalogH.AdminGetProduct)
				ap.POST("", catalogH.CreateProduct)
				ap.PUT("/:id", catalogH.UpdateProduct)
				ap.DELETE("/:id", catalogH.DeleteProduct)
			}

			acat := admin.Group("/categories", perm(policy.ProductsEdit))
			{
				acat.GET("", catalogH.AdminCategories)
				acat.POST("", catalogH.CreateCategory)
				acat.PUT("/:id", catalogH.UpdateCategory)
				acat.DELETE("/:id", catalogH.DeleteCategory)
			}

			as := admin.Group("/settings", perm(policy.SettingsEdit))
			{
				as.GET("", contentH.AdminListSettings)
				as.GET("/:key", contentH.AdminGetSetting)
				as.PUT("/:key", contentH.AdminPutSetting)
				as.DELETE("/:key", contentH.AdminDeleteSetting)
			}
			admin.PUT("/homepage/:section", perm(policy.SettingsEdit), contentH.AdminPutHomepageSection)

			apo := admin.Group("/posts", perm(policy.PostsEdit))
			{
				apo.GET("", contentH.AdminListPosts)
				apo.GET("/:id", contentH.AdminGetPost)
				apo.POST("", contentH.CreatePost)
				apo.PUT("/:id", contentH.UpdatePost)
				apo.DELETE("/:id", contentH.DeletePost)
			}

			af := admin.Group("/faqs", perm(policy.PostsEdit))
			{
				af.GET("", contentH.AdminListFAQs)
				af.POST("", contentH.CreateFAQ)
				af.PUT("/:id", contentH.UpdateFAQ)
				af.DELETE("/:id", contentH.DeleteFAQ)
			}

			au := admin.Group("/users", perm(policy.UsersEdit))
			{
				au.GET("", userH.ListUsers)
				au.GET("/:id", userH.GetUser)
				au.PUT("/:id", userH.UpdateUser)
			}

			admin.POST("/uploads", anyPerm(policy.ProductsEdit, policy.PostsEdit), uploadH.Upload)
		}
	}

	return r, nil
}
