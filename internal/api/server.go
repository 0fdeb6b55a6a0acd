package api

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"SmartClaim/internal/dispatch"
	"SmartClaim/internal/notify"
	"SmartClaim/internal/session"
	"SmartClaim/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed web
var webFS embed.FS

// SessionController 是 API 所需的钱包会话能力。
type SessionController interface {
	Toggle(ctx context.Context) (session.Session, error)
	WaitBound(ctx context.Context) (session.Session, error)
	Current() session.Session
	Detected() bool
	DeepLink() string
}

// ActionDispatcher 是 API 所需的合约操作能力。
type ActionDispatcher interface {
	RegisterPolicy(ctx context.Context, req dispatch.PolicyRequest) (dispatch.Result, error)
	SubmitClaim(ctx context.Context, req dispatch.ClaimRequest) (dispatch.Result, error)
	ApproveClaim(ctx context.Context, req dispatch.AdminRequest) (dispatch.Result, error)
	Payout(ctx context.Context, req dispatch.AdminRequest) (dispatch.Result, error)
	Reject(ctx context.Context, action dispatch.Action, cause error) (dispatch.Result, error)
}

// NoticeFeed 提供最近的提示记录。
type NoticeFeed interface {
	Recent(limit int) []notify.Notice
}

// MetricsSink 记录 HTTP 指标并暴露抓取端点。
type MetricsSink interface {
	ObserveHTTPRequest(handler, method string, status int, duration time.Duration)
	Handler() http.Handler
}

// Option 定义 Server 的可选配置。
type Option func(*Server)

// WithNotices 设置提示记录来源。
func WithNotices(feed NoticeFeed) Option {
	return func(s *Server) { s.notices = feed }
}

// WithMetrics 设置指标收集器。
func WithMetrics(m MetricsSink) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger 设置请求日志。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server 负责暴露单页界面与 REST 接口。
type Server struct {
	addr     string
	sessions SessionController
	actions  ActionDispatcher
	notices  NoticeFeed
	metrics  MetricsSink
	logger   *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, sessions SessionController, actions ActionDispatcher, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		sessions: sessions,
		actions:  actions,
		logger:   logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 构建完整的路由。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, echoRequestID, middleware.Recoverer, s.instrument)

	static, err := fs.Sub(webFS, "web")
	if err != nil {
		// embed 目录在编译期确定，不会出现该错误。
		panic(err)
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, static, "index.html")
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/wallet", s.handleWallet)
		api.Post("/wallet/toggle", s.handleToggle)
		api.Post("/policies", s.handleRegisterPolicy)
		api.Post("/claims", s.handleSubmitClaim)
		api.Post("/claims/{policyID}/approve", s.handleApproveClaim)
		api.Post("/claims/{policyID}/payout", s.handlePayout)
		api.Get("/notices", s.handleNotices)
	})
	return r
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP 服务已启动", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
