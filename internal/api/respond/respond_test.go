package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Doczin0/todo-datacake-backend/internal/pkg/apperr"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/logger"

	"github.com/gin-gonic/gin"
)

func run(t *testing.T, err error) (int, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", func(c *gin.Context) { Error(c, logger.Discard(), err) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return w.Code, body
}

func TestError_FieldErrors(t *testing.T) {
	fe := apperr.FieldErrors{}
	fe.Add("title", "O título não pode estar vazio.")

	code, body := run(t, fe)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if body["detail"] != MsgFieldProblem {
		t.Fatalf("unexpected detail %v", body["detail"])
	}
	msgs, ok := body["title"].([]interface{})
	if !ok || len(msgs) != 1 || msgs[0] != "O título não pode estar vazio." {
		t.Fatalf("unexpected title errors %v", body["title"])
	}
}

func TestError_Kinds(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperr.Business("x", "negócio"), http.StatusBadRequest},
		{apperr.Credentials("x", "credenciais"), http.StatusBadRequest},
		{apperr.Unauthorized("x", "token"), http.StatusUnauthorized},
		{apperr.NotFound("x", "sumiu"), http.StatusNotFound},
	}
	for _, tc := range cases {
		code, body := run(t, tc.err)
		if code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, code)
		}
		if body["detail"] != tc.err.Error() || body["error"] != tc.err.Error() {
			t.Fatalf("%v: unexpected body %v", tc.err, body)
		}
	}
}

func TestError_InternalHidesCause(t *testing.T) {
	code, body := run(t, errors.New("dial tcp: connection refused"))
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
	if body["detail"] != MsgInternal {
		t.Fatalf("unexpected detail %v", body["detail"])
	}
}
