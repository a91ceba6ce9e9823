// Package middleware содержит HTTP middleware сервиса учёта недостач.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gioigioi124/elanAI/internal/model"
)

type contextKey string

const actorKey contextKey = "actor"

const (
	authCookieName = "auth_token"
	bearerPrefix   = "Bearer "
)

// AuthMiddleware проверяет подписанный токен пользователя, выданный внешним сервисом входа.
// Токен имеет вид "userID|role|warehouse.<hmac-sha256>".
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет токен из заголовка Authorization или cookie и добавляет пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		actor, ok := a.ParseToken(token)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := WithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	if cookie, err := r.Cookie(authCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// SignToken выдаёт токен для пользователя.
func (a *AuthMiddleware) SignToken(actor model.Actor) string {
	payload := actor.UserID + "|" + string(actor.Role) + "|" + string(actor.WarehouseCode)
	return payload + "." + a.sign(payload)
}

// ParseToken проверяет подпись токена и возвращает пользователя.
func (a *AuthMiddleware) ParseToken(token string) (model.Actor, bool) {
	dot := strings.LastIndexByte(token, '.')
	if dot <= 0 {
		return model.Actor{}, false
	}

	payload, signature := token[:dot], token[dot+1:]
	if !hmac.Equal([]byte(signature), []byte(a.sign(payload))) {
		return model.Actor{}, false
	}

	parts := strings.Split(payload, "|")
	if len(parts) != 3 || parts[0] == "" {
		return model.Actor{}, false
	}

	actor := model.Actor{
		UserID:        parts[0],
		Role:          model.Role(parts[1]),
		WarehouseCode: model.Warehouse(parts[2]),
	}
	switch actor.Role {
	case model.RoleAdmin, model.RoleStaff, model.RoleWarehouse, model.RoleLeader:
	default:
		return model.Actor{}, false
	}
	if actor.WarehouseCode != "" && !actor.WarehouseCode.Valid() {
		return model.Actor{}, false
	}

	return actor, true
}

func (a *AuthMiddleware) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// ActorFromContext извлекает пользователя из контекста запроса.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(model.Actor)
	return actor, ok
}

// WithActor возвращает контекст с указанным пользователем.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}
