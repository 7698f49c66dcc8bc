package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func signedToken(t *testing.T, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":     1,
		"account_id":  4,
		"location_id": 9,
		"role":        role,
		"exp":         time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(viper.GetString("jwt.secret_key")))
	assert.NoError(t, err)
	return signed
}

func TestAuthMiddleware_ClaimsInContext(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	InitAuthMiddleware(nil)

	var gotRole string
	var gotAccount, gotLocation int
	handler := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRole, _ = RoleFromContext(r.Context())
		gotAccount, gotLocation, _ = TenantFromContext(r.Context())
	}))

	r := httptest.NewRequest("GET", "/credits/wallet", nil)
	r.Header.Set("Authorization", "Bearer "+signedToken(t, "owner"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "owner", gotRole)
	assert.Equal(t, 4, gotAccount)
	assert.Equal(t, 9, gotLocation)
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	guarded := RequireRole("owner")(next)

	t.Run("owner passes", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/license/generate", nil)
		r = r.WithContext(context.WithValue(r.Context(), "role", "owner"))
		w := httptest.NewRecorder()
		guarded.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("staff role rejected", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/license/generate", nil)
		r = r.WithContext(context.WithValue(r.Context(), "role", "receptionist"))
		w := httptest.NewRecorder()
		guarded.ServeHTTP(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing role", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/license/generate", nil)
		w := httptest.NewRecorder()
		guarded.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthMiddleware_TokenWithoutRole(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	InitAuthMiddleware(nil)

	// Tokens issued before roles were added carry no role claim; they stay
	// valid but cannot pass a RequireRole gate.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":     1,
		"account_id":  4,
		"location_id": 9,
		"exp":         time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	assert.NoError(t, err)

	handler := AuthMiddleware(RequireRole("owner")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	r := httptest.NewRequest("POST", "/license/generate", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
