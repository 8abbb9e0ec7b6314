package router

import (
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/openshelf/service-library-go/internal/account"
	accountrepo "github.com/openshelf/service-library-go/internal/account/repo"
	"github.com/openshelf/service-library-go/internal/auth"
	"github.com/openshelf/service-library-go/internal/catalog"
	catalogrepo "github.com/openshelf/service-library-go/internal/catalog/repo"
	"github.com/openshelf/service-library-go/internal/config"
	"github.com/openshelf/service-library-go/internal/loan"
	loanrepo "github.com/openshelf/service-library-go/internal/loan/repo"
	"github.com/openshelf/service-library-go/internal/ratelimit"
	"github.com/openshelf/service-library-go/pkg/utilities"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// RequestIDMiddleware tags every response with an X-Request-Id, generating
// one when the client didn't send it.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = utilities.NewRequestID()
			}
			w.Header().Set("X-Request-Id", id)
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
				"request_id", lrw.Header().Get("X-Request-Id"),
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Services bundles the wired service layer so main can reach pieces the
// router also uses (sweeper startup, table setup).
type Services struct {
	Accounts *account.Service
	Catalog  *catalog.Service
	Loans    *loan.Service
}

// Build wires repositories, services and handlers and mounts every route on
// a stdlib mux. listing may be nil to run without the book-page cache.
func Build(logger *zap.SugaredLogger, db *sqlx.DB, listing catalog.ListingCache, cfg config.Config) (http.Handler, *Services) {
	userRepo := accountrepo.NewUserRepo(db)
	catalogRepo := catalogrepo.NewCatalogRepo(db)
	loanRepo := loanrepo.NewLoanRepo(db)

	accounts := account.NewService(userRepo, nil)
	books := catalog.NewService(catalogRepo, listing, cfg.BooksCacheTTL, logger)
	loans := loan.NewService(loanRepo, catalogRepo, userRepo, loan.Config{
		LoanPeriodDays: cfg.LoanPeriodDays,
		MaxActiveLoans: cfg.MaxActiveLoans,
		LateFeePerDay:  cfg.LateFeePerDay,
	})
	tokens := auth.NewTokenService(cfg.TokenSecret, cfg.TokenExpiry)

	authHandler := auth.NewHandler(accounts, tokens, logger)
	accountHandler := account.NewHandler(accounts, logger)
	catalogHandler := catalog.NewHandler(books, logger)
	loanHandler := loan.NewHandler(loans, logger)

	requireAuth := auth.RequireAuth(tokens)
	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			requireAuth(h).ServeHTTP(w, r)
		}
	}

	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// auth
	mux.HandleFunc("POST /api/v1/auth/login", ratelimit.New(10).Wrap(authHandler.Login))

	// users
	mux.HandleFunc("POST /api/v1/users", ratelimit.New(5).Wrap(accountHandler.Create))
	mux.HandleFunc("GET /api/v1/users", ratelimit.New(20).Wrap(accountHandler.List))
	mux.HandleFunc("GET /api/v1/users/{id}", ratelimit.New(30).Wrap(accountHandler.Get))
	mux.HandleFunc("GET /api/v1/users/{id}/loans", ratelimit.New(30).Wrap(loanHandler.ListByUser))

	// authors
	mux.HandleFunc("POST /api/v1/books/authors", ratelimit.New(5).Wrap(protected(catalogHandler.CreateAuthor)))
	mux.HandleFunc("GET /api/v1/books/authors", ratelimit.New(30).Wrap(catalogHandler.ListAuthors))
	mux.HandleFunc("DELETE /api/v1/books/authors/{id}", ratelimit.New(5).Wrap(protected(catalogHandler.DeleteAuthor)))
	mux.HandleFunc("GET /api/v1/books/authors/{id}/books", ratelimit.New(30).Wrap(catalogHandler.ListBooksByAuthor))

	// books
	mux.HandleFunc("POST /api/v1/books", ratelimit.New(5).Wrap(protected(catalogHandler.CreateBook)))
	mux.HandleFunc("GET /api/v1/books", ratelimit.New(60).Wrap(catalogHandler.ListBooks))
	mux.HandleFunc("GET /api/v1/books/{id}/availability", ratelimit.New(60).Wrap(catalogHandler.Availability))

	// loans
	mux.HandleFunc("POST /api/v1/loans", ratelimit.New(10).Wrap(loanHandler.Create))
	mux.HandleFunc("POST /api/v1/loans/{id}/return", ratelimit.New(10).Wrap(loanHandler.Return))
	mux.HandleFunc("GET /api/v1/loans/active-delayed", ratelimit.New(20).Wrap(loanHandler.ListActiveOrDelayed))

	handler := RequestIDMiddleware()(LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux)))
	return handler, &Services{Accounts: accounts, Catalog: books, Loans: loans}
}
