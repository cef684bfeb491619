package middleware

import (
	"net/http"
	"os"
	"strings"
)

// allowedOrigins - источники, которым разрешены кросс-доменные запросы.
// По умолчанию - адреса локальной разработки (Vite и CRA).
var allowedOrigins = map[string]bool{
	"http://localhost:3000": true,
	"http://localhost:5173": true,
	"http://localhost:8080": true,
	"http://127.0.0.1:3000": true,
	"http://127.0.0.1:5173": true,
	"http://127.0.0.1:8080": true,
}

func init() {
	// CORS_ALLOWED_ORIGINS - список через запятую, дополняет значения по умолчанию
	if env := os.Getenv("CORS_ALLOWED_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}
}

// CORS выставляет заголовки кросс-доменного доступа. Для запросов с
// credentials заголовок Access-Control-Allow-Origin должен содержать
// конкретный источник, поэтому разрешенный Origin отражается как есть.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin == "" {
			// Запрос без Origin (curl, серверные клиенты) - не CORS
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
