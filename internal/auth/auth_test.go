package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront-sync/internal/config"
)

const testSecret = "test-secret"

func sign(t *testing.T, sub, role string, exp time.Time) string {
	t.Helper()
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	}}
	claims.Metadata.Role = role
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func newVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(config.AuthConfig{Secret: testSecret, SellerRole: "seller"})
	require.NoError(t, err)
	return v
}

func TestVerify(t *testing.T) {
	v := newVerifier(t)

	id, err := v.Verify(sign(t, "user_1", "seller", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user_1", Role: "seller"}, id)
	assert.True(t, v.IsSeller(id))
	assert.False(t, v.IsSeller(Identity{UserID: "user_2"}))

	_, err = v.Verify(sign(t, "user_1", "", time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = v.Verify(sign(t, "", "", time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrMissingUser)

	_, err = v.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	v := newVerifier(t)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	v, err := NewVerifier(config.AuthConfig{PublicKey: string(pemKey), SellerRole: "seller"})
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "user_rs",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(key)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user_rs", id.UserID)

	// an HS256 token must not pass an RS256 verifier
	_, err = v.Verify(sign(t, "user_rs", "", time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewVerifier_RequiresKey(t *testing.T) {
	_, err := NewVerifier(config.AuthConfig{})
	assert.Error(t, err)

	_, err = NewVerifier(config.AuthConfig{PublicKey: "not pem"})
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := newVerifier(t)
	r := gin.New()
	r.GET("/me", Middleware(v), func(c *gin.Context) {
		id, _ := FromContext(c)
		c.JSON(http.StatusOK, gin.H{"success": true, "user": id.UserID})
	})
	token := sign(t, "user_1", "", time.Now().Add(time.Hour))

	tests := []struct {
		name string
		set  func(*http.Request)
		want string
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, `{"success":true,"user":"user_1"}`},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: token}) }, `{"success":true,"user":"user_1"}`},
		{"missing", func(r *http.Request) {}, `{"success":false,"message":"Unauthorized"}`},
		{"bad token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, `{"success":false,"message":"Unauthorized"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tc.set(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tc.want, w.Body.String())
		})
	}
}
