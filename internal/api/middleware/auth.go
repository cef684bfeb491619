package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"crossarb/pkg/crypto"
)

var (
	debugUsername     = os.Getenv("DEBUG_USERNAME")
	debugPassword     = os.Getenv("DEBUG_PASSWORD")
	debugPasswordHash = os.Getenv("DEBUG_PASSWORD_HASH")
)

// DebugAuth защищает отладочные эндпоинты (/debug/pprof) базовой авторизацией.
// Пароль сверяется либо с bcrypt-хешем из DEBUG_PASSWORD_HASH, либо с открытым
// DEBUG_PASSWORD через сравнение за постоянное время. В окружении разработки
// (ENV=development или пусто) проверка пропускается.
func DebugAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env := os.Getenv("ENV")
		if env == "development" || env == "" {
			next.ServeHTTP(w, r)
			return
		}

		if debugUsername == "" || (debugPassword == "" && debugPasswordHash == "") {
			// В продакшене без настроенных учетных данных отладка закрыта
			http.Error(w, "debug endpoints are disabled", http.StatusForbidden)
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}

		userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(debugUsername)) == 1
		if !userMatch || !passwordMatch(password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func passwordMatch(password string) bool {
	if debugPasswordHash != "" {
		return crypto.CheckPasswordMatch(password, debugPasswordHash)
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(debugPassword)) == 1
}
