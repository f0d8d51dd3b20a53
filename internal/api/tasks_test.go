package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Doczin0/todo-datacake-backend/internal/api/middleware"
	"github.com/Doczin0/todo-datacake-backend/internal/model"
	"github.com/Doczin0/todo-datacake-backend/internal/todo"

	"github.com/gin-gonic/gin"
)

type mockTaskStore struct {
	createFunc  func(ctx context.Context, ownerID uint, ch *todo.Changes) (*model.Task, error)
	createCalls int
	toggleCalls int
}

func (m *mockTaskStore) Create(ctx context.Context, ownerID uint, ch *todo.Changes) (*model.Task, error) {
	m.createCalls++
	return m.createFunc(ctx, ownerID, ch)
}

func (m *mockTaskStore) Get(context.Context, uint, uint) (*model.Task, error) {
	return nil, todo.ErrTaskNotFound
}

func (m *mockTaskStore) List(context.Context, uint, todo.Filter) ([]model.Task, error) {
	return nil, nil
}

func (m *mockTaskStore) Update(context.Context, uint, uint, *todo.Changes) (*model.Task, error) {
	return nil, todo.ErrTaskNotFound
}

func (m *mockTaskStore) Delete(context.Context, uint, uint) error {
	return todo.ErrTaskNotFound
}

func (m *mockTaskStore) Toggle(context.Context, uint, uint) (*model.Task, error) {
	m.toggleCalls++
	return nil, todo.ErrTaskNotFound
}

func newMockServer(store TaskStore) (*Server, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	s := &Server{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tasks:  store,
	}
	r := gin.New()
	withUser := func(h gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			middleware.SetUserID(c, 7)
			h(c)
		}
	}
	r.GET("/tasks", withUser(s.handleListTasks))
	r.POST("/tasks", withUser(s.handleCreateTask))
	r.POST("/tasks/:id/toggle", withUser(s.handleToggleTask))
	return s, r
}

func TestCreateTask_PassesOwnerAndForcedRecurrence(t *testing.T) {
	var gotOwner uint
	var gotChanges *todo.Changes
	store := &mockTaskStore{
		createFunc: func(_ context.Context, ownerID uint, ch *todo.Changes) (*model.Task, error) {
			gotOwner, gotChanges = ownerID, ch
			return &model.Task{ID: 1, Title: "x", Recurrence: model.RecurrenceNone}, nil
		},
	}
	_, r := newMockServer(store)

	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBufferString(`{"title":"x","recurrence":"diaria"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if gotOwner != 7 {
		t.Fatalf("expected owner 7, got %d", gotOwner)
	}
	if gotChanges.Fields["recurrence"] != model.RecurrenceNone {
		t.Fatalf("recurrence should be forced to none, got %v", gotChanges.Fields["recurrence"])
	}
}

func TestCreateTask_InvalidBodyDoesNotReachStore(t *testing.T) {
	store := &mockTaskStore{}
	_, r := newMockServer(store)

	for _, body := range []string{`{"title":""}`, `{"title":`, `{"title":"x","importance":"urgente"}`} {
		req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, w.Code)
		}
	}
	if store.createCalls != 0 {
		t.Fatalf("store should not be called, got %d calls", store.createCalls)
	}
}

func TestToggleTask_InvalidID(t *testing.T) {
	store := &mockTaskStore{}
	_, r := newMockServer(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/tasks/abc/toggle", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if store.toggleCalls != 0 {
		t.Fatalf("store should not be called")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/tasks/5/toggle", nil))
	if w.Code != http.StatusNotFound || store.toggleCalls != 1 {
		t.Fatalf("expected store 404, got %d (calls=%d)", w.Code, store.toggleCalls)
	}
}

func TestListTasks_EmptyIsArray(t *testing.T) {
	_, r := newMockServer(&mockTaskStore{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks", nil))
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("expected empty array, got %d %s", w.Code, w.Body.String())
	}
}
