package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func router(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/", mw, func(c *gin.Context) {
		id, ok := UserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "ok": ok})
	})
	return r
}

func get(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	raw, err := tokens.Issue(42, "ada", "ada@example.com")
	require.NoError(t, err)

	id, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	_, err = NewTokens("other", time.Hour).Parse(raw)
	assert.Error(t, err)
}

func TestTokensRejectExpiredAndUnsigned(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	raw, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tokens.Parse(raw)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": 1, "exp": time.Now().Add(time.Hour).Unix()})
	raw, err = none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Parse(raw)
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	r := router(AuthMiddleware(tokens))

	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "garbage").Code)

	raw, err := tokens.Issue(7, "ada", "ada@example.com")
	require.NoError(t, err)
	w := get(r, raw)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":7,"ok":true}`, w.Body.String())
}

func TestOptionalAuth(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	r := router(OptionalAuth(tokens))

	w := get(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":0,"ok":false}`, w.Body.String())

	w = get(r, "garbage")
	assert.JSONEq(t, `{"id":0,"ok":false}`, w.Body.String())
}
