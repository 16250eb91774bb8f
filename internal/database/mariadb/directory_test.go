//go:build integration

package mariadb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mariadb:11",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MARIADB_ROOT_PASSWORD": "root",
			"MARIADB_DATABASE":      "school",
			"MARIADB_USER":          "sis",
			"MARIADB_PASSWORD":      "sis",
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("sis:sis@tcp(%s:%s)/school", host, port.Port())
	var pool *Pool
	// The port opens before the server accepts the application user
	for i := 0; i < 30; i++ {
		if pool, err = NewPool(ctx, dsn); err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func TestDirectory(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE students (id VARCHAR(32) PRIMARY KEY, name VARCHAR(255) NOT NULL,
			department VARCHAR(255), year INT, email VARCHAR(255), phone VARCHAR(64))`,
		`INSERT INTO students VALUES ('S002', 'Bob', 'Math', 3, NULL, NULL)`,
		`INSERT INTO students VALUES ('S001', 'Alice', 'Physics', 2, 'alice@example.com', '555-0100')`,
	} {
		if _, err := pool.db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	dir := NewDirectory(pool)

	t.Run("GetStudent", func(t *testing.T) {
		s, err := dir.GetStudent(ctx, "S002")
		if err != nil || s == nil {
			t.Fatalf("GetStudent() = %v, %v", s, err)
		}
		if s.Department != "Math" || s.Year != "3" || s.Email != "" {
			t.Errorf("GetStudent() = %+v", s)
		}
		missing, err := dir.GetStudent(ctx, "S999")
		if err != nil || missing != nil {
			t.Errorf("GetStudent(missing) = %v, %v, want nil", missing, err)
		}
	})

	t.Run("ListStudents", func(t *testing.T) {
		list, err := dir.ListStudents(ctx)
		if err != nil {
			t.Fatalf("ListStudents() error = %v", err)
		}
		if len(list) != 2 || list[0].ID != "S001" || list[0].Phone != "555-0100" {
			t.Errorf("ListStudents() = %+v", list)
		}
	})
}
