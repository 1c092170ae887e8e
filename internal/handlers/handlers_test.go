package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/imrishuroy/go-storefront-sync/internal/addresses"
	"github.com/imrishuroy/go-storefront-sync/internal/auth"
	"github.com/imrishuroy/go-storefront-sync/internal/aws"
	"github.com/imrishuroy/go-storefront-sync/internal/aws/awstest"
	"github.com/imrishuroy/go-storefront-sync/internal/config"
	"github.com/imrishuroy/go-storefront-sync/internal/eventbus"
	"github.com/imrishuroy/go-storefront-sync/internal/idempotency"
	"github.com/imrishuroy/go-storefront-sync/internal/media"
	"github.com/imrishuroy/go-storefront-sync/internal/orders"
	"github.com/imrishuroy/go-storefront-sync/internal/products"
	"github.com/imrishuroy/go-storefront-sync/internal/users"
)

const testSecret = "handler-secret"

var fixedNow = time.UnixMilli(1700000000000)

type fixture struct {
	router *gin.Engine
	dynamo *awstest.FakeDynamo
	sqs    *awstest.FakeSQS
	s3     *awstest.FakeS3
	cfg    HandlerConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	dynamo := awstest.NewFakeDynamo(map[string]string{
		"users":       "user_id",
		"products":    "product_id",
		"orders":      "order_id",
		"addresses":   "address_id",
		"idempotency": "idempotency_key",
	})
	sqs := &awstest.FakeSQS{}
	s3 := awstest.NewFakeS3()

	verifier, err := auth.NewVerifier(config.AuthConfig{Secret: testSecret, SellerRole: "seller"})
	require.NoError(t, err)

	cfg := HandlerConfig{
		Users:       users.NewStore(dynamo, "users"),
		Products:    products.NewStore(dynamo, "products"),
		Orders:      orders.NewStore(dynamo, "orders"),
		Addresses:   addresses.NewStore(dynamo, "addresses"),
		Idempotency: idempotency.NewStore(dynamo, "idempotency", time.Hour),
		Events:      eventbus.NewClient("test", aws.NewPublisher(sqs, "https://queue"), log),
		Media:       media.NewS3Uploader(s3, "bucket", "https://cdn.test", "us-east-1", log),
		Auth:        verifier,
		Now:         func() time.Time { return fixedNow },
	}
	return &fixture{
		router: NewRouter(cfg, log),
		dynamo: dynamo,
		sqs:    sqs,
		s3:     s3,
		cfg:    cfg,
	}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	claims.Metadata.Role = role
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

type request struct {
	method  string
	path    string
	token   string
	body    io.Reader
	ctype   string
	headers map[string]string
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

// multipartBody encodes fields (repeated keys allowed) and image files.
func multipartBody(t *testing.T, fields [][2]string, images map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		require.NoError(t, w.WriteField(f[0], f[1]))
	}
	for name, content := range images {
		part, err := w.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

// send serves r and returns the raw recorder.
func (f *fixture) send(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(r.method, r.path, r.body)
	if r.ctype != "" {
		req.Header.Set("Content-Type", r.ctype)
	} else if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// do serves r, requires the 200 envelope and decodes it.
func (f *fixture) do(t *testing.T, r request) map[string]interface{} {
	t.Helper()
	w := f.send(t, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func productFields(name string, price, offer string) [][2]string {
	return [][2]string{
		{"name", name},
		{"description", "A " + strings.ToLower(name)},
		{"category", "Footwear"},
		{"price", price},
		{"offerPrice", offer},
	}
}
