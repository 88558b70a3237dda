package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ds124wfegd/timecapsule/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	capsuleID   = "5b0c1f9e-2f41-4c3e-9a57-0d1c2b3a4f50"
	missingID   = "9d3e2c1b-0a4f-4e5d-8c7b-6a5f4e3d2c1b"
	messageID   = "0f8e7d6c-5b4a-4c3d-9e2f-1a0b9c8d7e6f"
	deliveredID = "3c4d5e6f-7a8b-4c9d-8e0f-1a2b3c4d5e6f"
)

type testServer struct {
	capsules *mockCapsuleService
	messages *mockMessageService
	users    *mockUserService
	router   *gin.Engine
}

func newTestServer() *testServer {
	s := &testServer{
		capsules: &mockCapsuleService{},
		messages: &mockMessageService{},
		users:    &mockUserService{},
	}
	s.router = InitRoutes(RouterConfig{
		ClientURL:          "http://client.test",
		RequestTimeout:     5 * time.Second,
		MaxMultipartMemory: 8 << 20,
	}, Handlers{
		Capsules: NewCapsuleHandler(s.capsules),
		Messages: NewScheduledMessageHandler(s.messages),
		Users:    NewUserHandler(s.users),
	}, staticTokens{})
	return s
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var payload map[string]any
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	}
	return w, payload
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func TestHealthAndNotFound(t *testing.T) {
	s := newTestServer()

	w, body := s.do(t, http.MethodGet, "/api/health", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", body["status"])
	assert.NotEmpty(t, body["timestamp"])

	w, body = s.do(t, http.MethodGet, "/api/nope", "", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Route not found", body["message"])
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer()
	s.capsules.ListFunc = func(_ context.Context, userID string) ([]*entity.Capsule, error) {
		assert.Equal(t, "u1", userID)
		return nil, nil
	}

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"bad token", "forged", http.StatusUnauthorized},
		{"good token", "good-u1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := s.do(t, http.MethodGet, "/api/capsules", tt.token, nil, "")
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, []any{}, body["capsules"])
			}
		})
	}
}

func TestGetSharedCapsule(t *testing.T) {
	unlock := time.Date(2031, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		err    error
		want   int
		locked bool
	}{
		{"locked", &entity.LockedError{UnlockDate: unlock}, http.StatusForbidden, true},
		{"expired", entity.ErrShareExpired, http.StatusGone, false},
		{"unknown", entity.ErrCapsuleNotFound, http.StatusNotFound, false},
		{"ok", nil, http.StatusOK, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			s.capsules.SharedFunc = func(_ context.Context, token string) (*entity.Capsule, error) {
				assert.Equal(t, "abc", token)
				if tt.err != nil {
					return nil, tt.err
				}
				return &entity.Capsule{ID: "c1", Title: "Hello", Message: "secret"}, nil
			}

			w, body := s.do(t, http.MethodGet, "/api/capsules/share/abc", "", nil, "")
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.err == nil, body["success"])
			if tt.locked {
				assert.Equal(t, true, body["locked"])
				assert.Equal(t, "2031-05-01T12:00:00Z", body["unlockDate"])
			}
			if tt.err == nil {
				capsule := body["capsule"].(map[string]any)
				assert.Equal(t, "secret", capsule["message"])
			}
		})
	}
}

func TestGetCapsuleLockedProjection(t *testing.T) {
	s := newTestServer()
	c := &entity.Capsule{ID: "c1", Title: "T", Message: "hidden", UnlockDate: time.Now().Add(time.Hour), IsLocked: true}
	s.capsules.GetFunc = func(_ context.Context, userID, id string) (*entity.CapsuleView, error) {
		assert.Equal(t, "u1", userID)
		assert.Equal(t, capsuleID, id)
		return &entity.CapsuleView{Locked: true, Summary: c.LockedSummary()}, nil
	}

	w, body := s.do(t, http.MethodGet, "/api/capsules/"+capsuleID, "good-u1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["locked"])
	capsule := body["capsule"].(map[string]any)
	assert.Equal(t, "T", capsule["title"])
	assert.NotContains(t, capsule, "message")
	assert.NotContains(t, capsule, "media")
}

func TestCreateCapsuleJSON(t *testing.T) {
	s := newTestServer()
	var got *entity.CreateCapsuleInput
	s.capsules.CreateFunc = func(_ context.Context, userID string, in *entity.CreateCapsuleInput) (*entity.Capsule, error) {
		got = in
		return &entity.Capsule{ID: "c1", Title: in.Title}, nil
	}

	w, body := s.do(t, http.MethodPost, "/api/capsules", "good-u1", jsonBody(t, map[string]any{
		"title":      "Hello",
		"unlockDate": "2031-05-01T12:00",
		"recipients": `["a@example.com","b@example.com"]`,
	}), "application/json")

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Capsule created successfully.", body["message"])
	require.NotNil(t, got)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got.Recipients)
	require.NotNil(t, got.UnlockDate)
	assert.Equal(t, time.Date(2031, 5, 1, 12, 0, 0, 0, time.UTC), *got.UnlockDate)
}

func TestCreateCapsuleMultipart(t *testing.T) {
	s := newTestServer()
	var got *entity.CreateCapsuleInput
	var content []byte
	s.capsules.CreateFunc = func(_ context.Context, _ string, in *entity.CreateCapsuleInput) (*entity.Capsule, error) {
		got = in
		require.Len(t, in.Media, 1)
		var err error
		content, err = io.ReadAll(in.Media[0].Reader)
		require.NoError(t, err)
		return &entity.Capsule{ID: "c1"}, nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "With photo"))
	require.NoError(t, mw.WriteField("unlockDate", "2031-05-01T00:00:00.000Z"))
	require.NoError(t, mw.WriteField("recipients", `["a@example.com"]`))
	fw, err := mw.CreateFormFile("media", "photo.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w, _ := s.do(t, http.MethodPost, "/api/capsules", "good-u1", &buf, mw.FormDataContentType())

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "With photo", got.Title)
	assert.Equal(t, []string{"a@example.com"}, got.Recipients)
	assert.Equal(t, "photo.png", got.Media[0].Filename)
	assert.Equal(t, int64(9), got.Media[0].Size)
	assert.Equal(t, "png-bytes", string(content))
}

func TestCreateCapsuleErrors(t *testing.T) {
	s := newTestServer()
	s.capsules.CreateFunc = func(context.Context, string, *entity.CreateCapsuleInput) (*entity.Capsule, error) {
		return nil, entity.NewValidationError("unlock date must be in the future")
	}

	w, body := s.do(t, http.MethodPost, "/api/capsules", "good-u1",
		jsonBody(t, map[string]any{"title": "x", "unlockDate": "2001-01-01"}), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unlock date must be in the future", body["message"])

	w, _ = s.do(t, http.MethodPost, "/api/capsules", "good-u1",
		jsonBody(t, map[string]any{"title": "x", "unlockDate": "tomorrow"}), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/capsules", "good-u1",
		jsonBody(t, map[string]any{"title": "x", "recipients": 42}), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegenerateAndDeleteCapsule(t *testing.T) {
	s := newTestServer()
	expiry := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)
	s.capsules.RegenerateFunc = func(context.Context, string, string) (*entity.ShareInfo, error) {
		return &entity.ShareInfo{ShareToken: "new", ShareExpiry: expiry}, nil
	}
	s.capsules.DeleteFunc = func(_ context.Context, _, id string) error {
		if id == missingID {
			return entity.ErrCapsuleNotFound
		}
		return nil
	}

	w, body := s.do(t, http.MethodPost, "/api/capsules/"+capsuleID+"/regenerate-token", "good-u1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "new", body["shareToken"])
	assert.Equal(t, "2031-01-01T00:00:00Z", body["shareExpiry"])

	w, _ = s.do(t, http.MethodDelete, "/api/capsules/"+capsuleID, "good-u1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = s.do(t, http.MethodDelete, "/api/capsules/"+missingID, "good-u1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "capsule not found", body["message"])
}

func TestMalformedIDIsNotFound(t *testing.T) {
	s := newTestServer()
	called := false
	s.capsules.GetFunc = func(context.Context, string, string) (*entity.CapsuleView, error) {
		called = true
		return nil, nil
	}
	s.capsules.DeleteFunc = func(context.Context, string, string) error { called = true; return nil }
	s.capsules.RegenerateFunc = func(context.Context, string, string) (*entity.ShareInfo, error) {
		called = true
		return nil, nil
	}
	s.messages.DeleteFunc = func(context.Context, string, string) error { called = true; return nil }

	tests := []struct {
		method, path, message string
	}{
		{http.MethodGet, "/api/capsules/not-a-uuid", "capsule not found"},
		{http.MethodDelete, "/api/capsules/abc", "capsule not found"},
		{http.MethodPost, "/api/capsules/1234/regenerate-token", "capsule not found"},
		{http.MethodDelete, "/api/scheduled-messages/abc", "scheduled message not found"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w, body := s.do(t, tt.method, tt.path, "good-u1", nil, "")
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, tt.message, body["message"])
		})
	}
	assert.False(t, called, "services are not reached with a malformed id")
}

func TestScheduledMessages(t *testing.T) {
	s := newTestServer()
	s.messages.CreateFunc = func(_ context.Context, userID string, in *entity.CreateScheduledMessageInput) (*entity.ScheduledMessage, error) {
		return &entity.ScheduledMessage{ID: "m1", UserID: userID, Subject: in.Subject, DeliveryDate: *in.DeliveryDate}, nil
	}
	s.messages.ListFunc = func(context.Context, string) ([]*entity.ScheduledMessage, error) { return nil, nil }
	s.messages.DeleteFunc = func(_ context.Context, _, id string) error {
		if id == deliveredID {
			return entity.ErrMessageDelivered
		}
		return nil
	}

	w, body := s.do(t, http.MethodPost, "/api/scheduled-messages", "good-u1", jsonBody(t, map[string]any{
		"recipientEmail": "a@example.com", "subject": "Hi", "message": "m", "deliveryDate": "2031-02-03",
	}), "application/json")
	require.Equal(t, http.StatusCreated, w.Code)
	scheduled := body["scheduled"].(map[string]any)
	assert.Equal(t, "m1", scheduled["id"])
	assert.Equal(t, "2031-02-03T00:00:00Z", scheduled["deliveryDate"])

	w, body = s.do(t, http.MethodGet, "/api/scheduled-messages", "good-u1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, body["messages"])

	w, body = s.do(t, http.MethodDelete, "/api/scheduled-messages/"+deliveredID, "good-u1", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "cannot delete a delivered message", body["message"])

	w, _ = s.do(t, http.MethodDelete, "/api/scheduled-messages/"+messageID, "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRoutes(t *testing.T) {
	s := newTestServer()
	s.users.RegisterFunc = func(_ context.Context, _, email, _ string) (*entity.AuthResult, error) {
		if email == "taken@example.com" {
			return nil, entity.ErrUserAlreadyExists
		}
		return &entity.AuthResult{Token: "jwt", User: &entity.User{ID: "u1", Email: email, PasswordHash: "hash"}}, nil
	}
	s.users.LoginFunc = func(context.Context, string, string) (*entity.AuthResult, error) {
		return nil, entity.ErrInvalidCredentials
	}
	s.users.GetFunc = func(_ context.Context, id string) (*entity.User, error) {
		return &entity.User{ID: id, Name: "Ada"}, nil
	}
	s.users.ResetFunc = func(context.Context, string, string) (*entity.AuthResult, error) {
		return nil, entity.ErrInvalidResetToken
	}

	w, body := s.do(t, http.MethodPost, "/api/auth/register", "", jsonBody(t, map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "secret1",
	}), "application/json")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "jwt", body["token"])
	user := body["user"].(map[string]any)
	assert.NotContains(t, user, "passwordHash")

	w, _ = s.do(t, http.MethodPost, "/api/auth/register", "", jsonBody(t, map[string]string{
		"name": "Ada", "email": "taken@example.com", "password": "secret1",
	}), "application/json")
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/auth/login", "", jsonBody(t, map[string]string{
		"email": "ada@example.com", "password": "wrong",
	}), "application/json")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = s.do(t, http.MethodGet, "/api/auth/me", "good-u9", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u9", body["user"].(map[string]any)["id"])

	w, _ = s.do(t, http.MethodPost, "/api/auth/reset-password/tok", "", jsonBody(t, map[string]string{
		"password": "newpass1",
	}), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseRecipients(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"null", "null", nil, false},
		{"array", `["a@x.io","b@x.io"]`, []string{"a@x.io", "b@x.io"}, false},
		{"encoded array", `"[\"a@x.io\"]"`, []string{"a@x.io"}, false},
		{"number", `42`, nil, true},
		{"garbage", `a@x.io`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRecipients([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantNil bool
		wantErr bool
	}{
		{in: "", wantNil: true},
		{in: "2031-05-01T10:00:00+02:00", want: time.Date(2031, 5, 1, 8, 0, 0, 0, time.UTC)},
		{in: "2031-05-01T10:00:00.500Z", want: time.Date(2031, 5, 1, 10, 0, 0, 500_000_000, time.UTC)},
		{in: "2031-05-01T10:00:00", want: time.Date(2031, 5, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2031-05-01T10:00", want: time.Date(2031, 5, 1, 10, 0, 0, 0, time.UTC)},
		{in: "2031-05-01", want: time.Date(2031, 5, 1, 0, 0, 0, 0, time.UTC)},
		{in: "01/05/2031", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %s", got)
		})
	}
}
