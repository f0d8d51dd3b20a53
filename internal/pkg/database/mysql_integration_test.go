//go:build integration

package database_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Doczin0/todo-datacake-backend/internal/account"
	"github.com/Doczin0/todo-datacake-backend/internal/config"
	"github.com/Doczin0/todo-datacake-backend/internal/model"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/database"
	"github.com/Doczin0/todo-datacake-backend/internal/pkg/logger"
	"github.com/Doczin0/todo-datacake-backend/internal/todo"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startMySQL 启动 MySQL 容器并返回可直接使用的 DSN。
func startMySQL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "mysql:8.0",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "root",
			"MYSQL_DATABASE":      "datacake",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("ready for connections").WithOccurrence(2),
			wait.ForListeningPort("3306/tcp"),
		).WithStartupTimeout(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "3306")
	require.NoError(t, err)

	cfg := mysqldriver.NewConfig()
	cfg.User = "root"
	cfg.Passwd = "root"
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", host, port.Port())
	cfg.DBName = "datacake"
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

func TestMySQL_AccountsAndTasks(t *testing.T) {
	dsn := startMySQL(t)
	ctx := context.Background()

	db, err := database.Open(config.DatabaseConfig{Driver: "mysql", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Ping(ctx, db))

	users := account.NewGormUserStore(db)
	u := &model.User{Username: "Ana", Email: "Ana@Example.com", Password: "x"}
	require.NoError(t, users.Create(ctx, u))

	dup := &model.User{Username: "ana", Email: "other@example.com", Password: "x"}
	require.ErrorIs(t, users.Create(ctx, dup), account.ErrDuplicateUser)

	found, err := users.FindByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, found.ID)

	tasks := todo.NewStore(db, logger.Discard())
	title := "Revisar PR"
	in := todo.TaskInput{
		Title: &title,
		Tags:  &[]string{"trabalho", "saúde"},
		ChecklistItems: &[]todo.ChecklistInput{
			{Label: "ler diff"},
			{Label: "comentar"},
		},
	}
	ch, err := in.Validate(todo.ModeCreate)
	require.NoError(t, err)

	task, err := tasks.Create(ctx, u.ID, ch)
	require.NoError(t, err)
	require.Equal(t, []string{"Trabalho", "Saúde"}, task.Tags)
	require.Len(t, task.ChecklistItems, 2)

	list, err := tasks.List(ctx, u.ID, todo.Filter{Tag: "Saúde"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	// 默认排序规则下 "Saude" 与 "Saúde" 相等，标签过滤必须逐字节比较
	list, err = tasks.List(ctx, u.ID, todo.Filter{Tag: "Saude"})
	require.NoError(t, err)
	require.Empty(t, list)

	require.NoError(t, users.Delete(ctx, u.ID))
	_, err = users.FindByID(ctx, u.ID)
	require.ErrorIs(t, err, account.ErrUserNotFound)
}
