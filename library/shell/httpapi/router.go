package httpapi

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/library/shell"
)

// ErrNilEngine is returned by NewRouter without an engine.
var ErrNilEngine = errors.New("engine must not be nil")

// Handler serves the circulation routes.
type Handler struct {
	engine       *circulation.Engine
	logger       *slog.Logger
	metrics      circulation.MetricsCollector
	retryOptions []shell.RetryOption
}

// Option configures the Handler.
type Option func(*Handler) error

// WithRequestLogger logs one line per request.
func WithRequestLogger(logger *slog.Logger) Option {
	return func(h *Handler) error {
		h.logger = logger
		return nil
	}
}

// WithRetryMetrics records the retries of read operations.
func WithRetryMetrics(collector circulation.MetricsCollector) Option {
	return func(h *Handler) error {
		if collector == nil {
			return shell.ErrNilMetricsCollector
		}

		h.metrics = collector

		return nil
	}
}

// WithRetryOptions overrides the backoff settings of read retries.
func WithRetryOptions(options ...shell.RetryOption) Option {
	return func(h *Handler) error {
		h.retryOptions = append(h.retryOptions, options...)
		return nil
	}
}

// NewRouter builds the gin engine with all routes.
func NewRouter(engine *circulation.Engine, options ...Option) (*gin.Engine, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}

	h := &Handler{engine: engine}
	for _, option := range options {
		if err := option(h); err != nil {
			return nil, err
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if h.logger != nil {
		router.Use(requestLogger(h.logger))
	}

	router.GET("/healthz", h.health)

	router.GET("/books/available", h.listAvailableBooks)
	router.POST("/books", h.addBook)
	router.GET("/books/:isbn", h.getBook)
	router.GET("/books/:isbn/transactions", h.listTransactions)
	router.GET("/books/:isbn/loans", h.listLoans)
	router.POST("/books/issue/:isbn", h.issueBook)
	router.POST("/books/return/:isbn", h.returnBook)
	router.DELETE("/books/delete/:isbn", h.deleteBook)

	router.GET("/members", h.listMembers)
	router.GET("/members/:id", h.getMember)
	router.POST("/members/add", h.addMember)
	router.PUT("/members/update/:bookId", h.updateMember)
	router.DELETE("/members/delete/:bookId", h.deleteMember)

	return router, nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.InfoContext(c.Request.Context(), "http request served",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
		)
	}
}
