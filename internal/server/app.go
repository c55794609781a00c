// Package server 组装 HTTP 路由、依赖与中间件，使 main 保持简单可读。
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"ratemall/internal/config"
	"ratemall/internal/metrics"
	"ratemall/internal/store"
	"ratemall/internal/uploads"
	"ratemall/router"
)

type AppOptions struct {
	Config config.Config
	DB     *sql.DB
}

type App struct {
	cfg     config.Config
	db      *sql.DB
	store   *store.Store
	uploads *uploads.Storage
	engine  *gin.Engine
}

func NewApp(opts AppOptions) (*App, error) {
	st := store.New(opts.DB)
	st.SetDialect(store.Dialect(opts.Config.DB.Driver))

	uploadStorage := uploads.NewStorage(opts.Config.Uploads.Dir)

	sessionSecret := strings.TrimSpace(os.Getenv("SESSION_SECRET"))
	if sessionSecret == "" {
		sessionSecret = randomSecret(32)
	}

	app := &App{
		cfg:     opts.Config,
		db:      opts.DB,
		store:   st,
		uploads: uploadStorage,
	}

	if opts.Config.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())
	engine.Use(metrics.GinMiddleware())
	sessionStore := cookie.NewStore([]byte(sessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   2592000, // 30 days
		HttpOnly: true,
		Secure:   opts.Config.Env != "dev" && !opts.Config.Security.DisableSecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	engine.Use(sessions.Sessions(SessionCookieName, sessionStore))

	router.SetRouter(engine, router.Options{
		Store:   st,
		Uploads: uploadStorage,

		AllowOpenRegistration: opts.Config.Security.AllowOpenRegistration,
		PublicBaseURL:         strings.TrimRight(strings.TrimSpace(opts.Config.Server.PublicBaseURL), "/"),

		DepositMinAmount:     opts.Config.Deposit.MinAmount,
		ReferralBonusPercent: opts.Config.Referral.BonusPercent,
		PayoutMinAmount:      opts.Config.Payout.MinAmount,

		Healthz: app.handleHealthz,

		StripeWebhookByPaymentChannel: app.handleStripeWebhookByPaymentChannel,
		EPayNotifyByPaymentChannel:    app.handleEPayNotifyByPaymentChannel,
	})
	app.engine = engine
	return app, nil
}

func (a *App) Handler() http.Handler {
	return a.engine
}

func randomSecret(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	type resp struct {
		OK  bool   `json:"ok"`
		Env string `json:"env"`

		DBOK bool `json:"db_ok"`

		AllowOpenRegistration bool `json:"allow_open_registration"`
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	dbOK := a.db.PingContext(ctx) == nil

	out := resp{
		OK:                    true,
		Env:                   a.cfg.Env,
		DBOK:                  dbOK,
		AllowOpenRegistration: a.cfg.Security.AllowOpenRegistration,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	_ = json.NewEncoder(w).Encode(out)
}
