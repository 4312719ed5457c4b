package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/handler/http/respond"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are issued by the identity service. The subject is the user id.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

func (v *Verifier) ParseActor(tokenStr string) (domain.Actor, error) {
	claims := new(Claims)
	token, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return domain.Actor{}, ErrInvalidToken
	}

	role := domain.Role(claims.Role)
	switch role {
	case "":
		role = domain.RoleUser
	case domain.RoleUser, domain.RoleAdmin, domain.RoleSuperAdmin:
	default:
		return domain.Actor{}, ErrInvalidToken
	}
	return domain.Actor{ID: claims.Subject, Email: claims.Email, Role: role}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// actor on the request context.
func Middleware(v *Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				respond.WriteError(w, http.StatusUnauthorized, respond.ErrorBody{Code: respond.CodeUnauthorized, Message: "missing bearer token"})
				return
			}
			actor, err := v.ParseActor(tokenStr)
			if err != nil {
				logger.Debug("Rejected bearer token", zap.String("path", r.URL.Path), zap.Error(err))
				respond.WriteError(w, http.StatusUnauthorized, respond.ErrorBody{Code: respond.CodeUnauthorized, Message: "invalid or expired token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(domain.ContextWithActor(r.Context(), actor)))
		})
	}
}

// ActorFrom returns the authenticated actor. Routes behind Middleware always have one.
func ActorFrom(r *http.Request) domain.Actor {
	actor, _ := domain.ActorFromContext(r.Context())
	return actor
}
