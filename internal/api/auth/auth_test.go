package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/account"
	"github.com/Doczin0/todo-datacake-backend/internal/api/middleware"
	"github.com/Doczin0/todo-datacake-backend/internal/model"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/apperr"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAccounts struct {
	mock.Mock
}

func (m *mockAccounts) Register(ctx context.Context, in account.RegisterInput) (*model.User, error) {
	args := m.Called(ctx, in)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *mockAccounts) VerifyEmail(ctx context.Context, email, code string) error {
	return m.Called(ctx, email, code).Error(0)
}

func (m *mockAccounts) ResendCode(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockAccounts) ResolveUsername(ctx context.Context, identifier string) (string, error) {
	args := m.Called(ctx, identifier)
	return args.String(0), args.Error(1)
}

func (m *mockAccounts) RequestReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockAccounts) ConfirmReset(ctx context.Context, email, code, password string) error {
	return m.Called(ctx, email, code, password).Error(0)
}

func (m *mockAccounts) Authenticate(ctx context.Context, identifier, password string) (*model.User, error) {
	args := m.Called(ctx, identifier, password)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *mockAccounts) Profile(ctx context.Context, userID uint) (*model.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func newTestRouter(accounts Accounts) (*gin.Engine, *TokenIssuer) {
	gin.SetMode(gin.TestMode)
	tokens := NewTokenIssuer("test-secret", time.Minute, time.Hour)
	h := NewHandler(accounts, tokens, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := gin.New()
	r.POST("/register", h.Register)
	r.POST("/verify", h.Verify)
	r.POST("/resolve", h.ResolveUsername)
	r.POST("/token", h.Login)
	r.POST("/token/refresh", h.Refresh)
	r.POST("/password/confirm", h.PasswordConfirm)
	r.GET("/me", middleware.AuthMiddleware(tokens), h.Me)
	return r, tokens
}

func post(r http.Handler, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestRegister_FieldErrorsBody(t *testing.T) {
	accounts := new(mockAccounts)
	accounts.On("Register", mock.Anything, mock.Anything).
		Return(nil, apperr.FieldErrors{"email": {"Insira um endereço de email válido."}})
	r, _ := newTestRouter(accounts)

	w, body := post(r, "/register", `{"username":"ana","email":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []interface{}{"Insira um endereço de email válido."}, body["email"])
	assert.Equal(t, "Houve um problema com sua requisição.", body["detail"])
}

func TestVerify_AcceptsLegacyTokenField(t *testing.T) {
	accounts := new(mockAccounts)
	accounts.On("VerifyEmail", mock.Anything, "ana@x.com", "123456").Return(nil)
	r, _ := newTestRouter(accounts)

	w, body := post(r, "/verify", `{"email":"ana@x.com","token":"123456"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "login", body["redirect"])
	accounts.AssertExpectations(t)
}

func TestVerify_BusinessErrorIs400(t *testing.T) {
	accounts := new(mockAccounts)
	accounts.On("VerifyEmail", mock.Anything, "ana@x.com", "000000").
		Return(apperr.Business("code_mismatch", "Código inválido."))
	r, _ := newTestRouter(accounts)

	w, body := post(r, "/verify", `{"email":"ana@x.com","code":"000000"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Código inválido.", body["detail"])
}

func TestLogin_FallsBackToUsernameAndIssuesTokens(t *testing.T) {
	accounts := new(mockAccounts)
	user := &model.User{ID: 9, Username: "ana", Email: "ana@x.com"}
	accounts.On("Authenticate", mock.Anything, "ana", "Secret@1").Return(user, nil)
	accounts.On("Profile", mock.Anything, uint(9)).Return(user, nil)
	r, tokens := newTestRouter(accounts)

	w, body := post(r, "/token", `{"username":"ana","password":"Secret@1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	access, _ := body["access"].(string)
	uid, err := tokens.ParseAccess(access)
	require.NoError(t, err)
	assert.Equal(t, uint(9), uid)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	me := httptest.NewRecorder()
	r.ServeHTTP(me, req)
	assert.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"username":"ana"`)
}

func TestLogin_Credentials(t *testing.T) {
	accounts := new(mockAccounts)
	accounts.On("Authenticate", mock.Anything, "ana", "bad").
		Return(nil, apperr.Credentials("invalid_credentials", "Credenciais invalidas."))
	r, _ := newTestRouter(accounts)

	w, body := post(r, "/token", `{"identifier":"ana","password":"bad"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Credenciais invalidas.", body["detail"])
}

func TestRefresh(t *testing.T) {
	r, tokens := newTestRouter(new(mockAccounts))

	w, body := post(r, "/token/refresh", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Refresh token ausente.", body["detail"])

	w, _ = post(r, "/token/refresh", `{"refresh":"garbage"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, refresh, err := tokens.Pair(3)
	require.NoError(t, err)
	w, body = post(r, "/token/refresh", `{"refresh":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["access"])
}

func TestPasswordConfirm_PassesFields(t *testing.T) {
	accounts := new(mockAccounts)
	accounts.On("ConfirmReset", mock.Anything, "ana@x.com", "654321", "Nova@Senha1").Return(nil)
	r, _ := newTestRouter(accounts)

	w, _ := post(r, "/password/confirm", `{"email":"ana@x.com","code":"654321","password":"Nova@Senha1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	accounts.AssertExpectations(t)
}

func TestBadJSON(t *testing.T) {
	r, _ := newTestRouter(new(mockAccounts))
	w, body := post(r, "/resolve", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Corpo da requisição inválido.", body["detail"])
}
