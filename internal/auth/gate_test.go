package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkboard/inkboard/internal/domain"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParseTokenValid(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"id":   float64(7),
		"name": "Dana",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	identity, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID(7), identity.UserID)
	assert.Equal(t, "Dana", identity.DisplayName)
}

func TestParseTokenMissing(t *testing.T) {
	_, err := ParseToken("", testSecret)
	assert.ErrorIs(t, err, ErrTokenMissing)
}

func TestParseTokenBadSignature(t *testing.T) {
	token := signToken(t, "wrong-secret", jwt.MapClaims{"id": float64(7)})
	_, err := ParseToken(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenExpired(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"id":  float64(7),
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err := ParseToken(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenMalformed(t *testing.T) {
	_, err := ParseToken("not.a.jwt", testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenMissingSubject(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"name": "NoID"})
	_, err := ParseToken(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenDefaultsDisplayName(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"id": float64(12)})
	identity, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-12", identity.DisplayName)
}

func gateRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", Middleware(testSecret), func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, identity)
	})
	return r
}

func TestMiddlewareRejectsBeforeHandler(t *testing.T) {
	r := gateRouter()

	for name, url := range map[string]string{
		"missing": "/ws",
		"invalid": "/ws?token=garbage",
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, url, nil)
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestMiddlewareAttachesIdentity(t *testing.T) {
	r := gateRouter()
	token := signToken(t, testSecret, jwt.MapClaims{
		"id":   float64(3),
		"name": "Bea",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":3,"name":"Bea"}`, w.Body.String())
}
