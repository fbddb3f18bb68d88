package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/docqa/docqa-api/internal/core/domain"
	"github.com/docqa/docqa-api/internal/core/policy"
	"github.com/docqa/docqa-api/internal/core/service"
	"github.com/docqa/docqa-api/internal/infrastructure/credential"
	"github.com/docqa/docqa-api/internal/infrastructure/db/memory"
	"github.com/docqa/docqa-api/internal/infrastructure/db/redis"
)

type countingDocuments struct {
	mu      sync.Mutex
	uploads int
}

func (d *countingDocuments) Upload(_ context.Context, actor *domain.User, fileName string, _ io.ReaderAt, _ int64) (*domain.UploadResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploads++
	return &domain.UploadResult{DocumentID: fmt.Sprintf("doc-%d", actor.ID), FileName: fileName, ChunksStored: 1, ChunkIDs: []string{"c1"}}, nil
}

func (d *countingDocuments) List(context.Context) ([]domain.DocumentSummary, error) {
	return nil, nil
}

func (d *countingDocuments) Delete(context.Context, string) (int, error) {
	return 0, domain.ErrDocumentNotFound
}

func (d *countingDocuments) Clear(context.Context) error {
	return nil
}

func (d *countingDocuments) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uploads
}

type echoQA struct{}

func (echoQA) Ask(_ context.Context, question string) (*domain.Answer, error) {
	return &domain.Answer{Content: map[string]any{"answer": question}}, nil
}

type client struct {
	t *testing.T
	e *echo.Echo
}

func (c client) do(method, path, token, contentType string, body io.Reader) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c.e.ServeHTTP(rec, req)
	return rec
}

func (c client) json(method, path, token string, payload any) *httptest.ResponseRecorder {
	c.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(c.t, err)
		body = bytes.NewReader(raw)
	}
	return c.do(method, path, token, echo.MIMEApplicationJSON, body)
}

func (c client) upload(token string) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "report.pdf")
	require.NoError(c.t, err)
	_, _ = part.Write([]byte("%PDF-1.4"))
	require.NoError(c.t, w.Close())
	return c.do(http.MethodPost, "/documents", token, w.FormDataContentType(), &buf)
}

func (c client) token(email, password string) string {
	c.t.Helper()
	rec := c.json(http.MethodPost, "/auth/token", "", map[string]string{"email": email, "password": password})
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.AccessToken
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRouter_AccessControlFlow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rs, err := policy.Default()
	require.NoError(t, err)
	engine, err := policy.New(rs)
	require.NoError(t, err)

	creds, err := credential.NewStore("router-secret", time.Hour,
		credential.WithRevoker(redis.NewRevocationList(rdb, "")), credential.WithCost(bcrypt.MinCost))
	require.NoError(t, err)

	repo := memory.NewIdentityRepository()
	identity := service.NewIdentityService(repo, creds, engine, zerolog.Nop())
	_, err = identity.BootstrapAdmin(context.Background(), "root@example.com", "rootpassword")
	require.NoError(t, err)

	docs := &countingDocuments{}
	e := NewRouter(Dependencies{
		Gate:      service.NewGate(creds, repo, engine, nil, zerolog.Nop()),
		Auth:      identity,
		Users:     identity,
		Roles:     identity,
		Documents: docs,
		QA:        echoQA{},
		Log:       zerolog.Nop(),
	})
	c := client{t: t, e: e}

	rec := c.do(http.MethodGet, "/", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", "", "", nil).Code)

	rec = c.json(http.MethodPost, "/auth/register", "", map[string]string{
		"email": "Alice@Example.com", "password": "password123", "full_name": "Alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	aliceID := int64(decode(t, rec)["id"].(float64))

	rec = c.json(http.MethodPost, "/auth/register", "", map[string]string{
		"email": "alice@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	alice := c.token("alice@example.com", "password123")
	admin := c.token("root@example.com", "rootpassword")

	t.Run("missing token is unauthenticated", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/users/me", "", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Bearer", rec.Header().Get(echo.HeaderWWWAuthenticate))
	})

	t.Run("defaults allow self service without roles", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/users/me", alice, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice@example.com", decode(t, rec)["email"])
	})

	t.Run("no roles cannot ask", func(t *testing.T) {
		rec := c.json(http.MethodPost, "/qa", alice, map[string]string{"query": "hi"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Not authorized to perform ask", decode(t, rec)["error"])
	})

	rolesByName := func() map[string]float64 {
		rec := c.do(http.MethodGet, "/roles", admin, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		out := map[string]float64{}
		for _, r := range decode(t, rec)["roles"].([]any) {
			role := r.(map[string]any)
			out[role["name"].(string)] = role["id"].(float64)
		}
		return out
	}

	t.Run("user role grants ask", func(t *testing.T) {
		userRole := rolesByName()[domain.RoleUser]
		rec := c.do(http.MethodPost, fmt.Sprintf("/roles/assign/%d/%.0f", aliceID, userRole), admin, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = c.json(http.MethodPost, "/qa", alice, map[string]string{"query": "hi"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hi", decode(t, rec)["response_content"].(map[string]any)["answer"])
	})

	t.Run("role management requires manage_roles", func(t *testing.T) {
		rec := c.json(http.MethodPost, "/roles", alice, map[string]string{"name": "editor"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("runtime grant and revoke control uploads", func(t *testing.T) {
		rec := c.upload(alice)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, 0, docs.count())

		rec = c.json(http.MethodPost, "/roles", admin, map[string]string{"name": "editor"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		editorID := decode(t, rec)["id"].(float64)

		perm := map[string]string{"action": "write", "resource_type": "Document"}
		rec = c.json(http.MethodPost, fmt.Sprintf("/roles/%.0f/permissions", editorID), admin, perm)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = c.do(http.MethodPost, fmt.Sprintf("/roles/assign/%d/%.0f", aliceID, editorID), admin, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = c.upload(alice)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, 1, docs.count())

		rec = c.json(http.MethodDelete, fmt.Sprintf("/roles/%.0f/permissions", editorID), admin, perm)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = c.upload(alice)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, 1, docs.count())
	})

	t.Run("unknown grants are rejected", func(t *testing.T) {
		editorID := rolesByName()["editor"]
		rec := c.json(http.MethodPost, fmt.Sprintf("/roles/%.0f/permissions", editorID), admin,
			map[string]string{"action": "launch", "resource_type": "Document"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("last admin cannot lose the admin role", func(t *testing.T) {
		adminRole := rolesByName()[domain.RoleAdmin]
		rec := c.do(http.MethodGet, "/users/me", admin, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		rootID := decode(t, rec)["id"].(float64)

		rec = c.do(http.MethodDelete, fmt.Sprintf("/roles/remove/%.0f/%.0f", rootID, adminRole), admin, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec)["error"], "last admin")
	})

	t.Run("logout revokes the token", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/auth/logout", alice, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = c.do(http.MethodGet, "/users/me", alice, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderWWWAuthenticate), "Bearer"))
	})
}
