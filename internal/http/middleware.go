package http

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"backend/internal/domain"
)

type contextKey string

const (
	contextKeyDeviceID contextKey = "deviceID"
	contextKeyActor    contextKey = "actor"
	contextKeyRole     contextKey = "role"
)

// Cashier and back-office roles carried in the JWT "role" claim.
const (
	RoleAdmin  = "admin"
	RoleKasir  = "kasir"
	RoleGudang = "petugas_gudang"
)

func Recoverer(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.WithFields(logrus.Fields{
						"panic": rec,
						"stack": string(debug.Stack()),
						"path":  r.URL.Path,
					}).Error("panic recovered")
					writeErr(w, domain.NewError(domain.CodeInternal, http.StatusInternalServerError, "internal error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func Logger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   ww.Status(),
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start).String(),
				"remote":   r.RemoteAddr,
			}).Info("request")
		})
	}
}

func Timeout(next http.Handler) http.Handler {
	return middleware.Timeout(60 * time.Second)(next)
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Device-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireDeviceID rejects sync traffic without an x-device-id header. The
// header value is the stable identity the idempotency and checkpoint tables
// key on.
func RequireDeviceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := strings.TrimSpace(r.Header.Get("X-Device-Id"))
		if deviceID == "" {
			writeErr(w, domain.Validationf("x-device-id header is required"))
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyDeviceID, deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func deviceIDFrom(ctx context.Context) string {
	value, _ := ctx.Value(contextKeyDeviceID).(string)
	return value
}

type authClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates the HS256 bearer token and stores subject and role in the
// request context.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(raw) == "" {
				writeErr(w, domain.NewError(domain.CodeUnauthorized, http.StatusUnauthorized, "missing bearer token"))
				return
			}

			claims := &authClaims{}
			token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				writeErr(w, domain.NewError(domain.CodeUnauthorized, http.StatusUnauthorized, "invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyActor, claims.Subject)
			ctx = context.WithValue(ctx, contextKeyRole, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route subtree to the listed roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := map[string]bool{}
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := r.Context().Value(contextKeyRole).(string)
			if !allowed[role] {
				writeErr(w, domain.NewError(domain.CodeForbidden, http.StatusForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actorFrom(ctx context.Context) *string {
	value, _ := ctx.Value(contextKeyActor).(string)
	if value == "" {
		return nil
	}
	return &value
}
