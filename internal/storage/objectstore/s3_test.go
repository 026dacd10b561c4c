package objectstore

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/testcontainers/testcontainers-go"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
)

// setupTestS3 запускает MinIO в Docker-контейнере через testcontainers.
func setupTestS3(t *testing.T) *S3Store {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := tcminio.Run(ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		tcminio.WithUsername("mediabroker"),
		tcminio.WithPassword("mediabroker-secret"),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить MinIO контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить адрес MinIO: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := NewS3Store(S3Config{
		Endpoint:  endpoint,
		AccessKey: container.Username,
		SecretKey: container.Password,
		Bucket:    "media-test",
		PartSize:  5 << 20,
	}, logger)
	if err != nil {
		t.Fatalf("Ошибка создания S3Store: %v", err)
	}

	return store
}

// TestNewS3Store_Validation проверяет обязательные параметры.
func TestNewS3Store_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	if _, err := NewS3Store(S3Config{Bucket: "b"}, logger); err == nil {
		t.Error("ожидалась ошибка без endpoint")
	}
	if _, err := NewS3Store(S3Config{Endpoint: "localhost:9000"}, logger); err == nil {
		t.Error("ожидалась ошибка без bucket")
	}

	store, err := NewS3Store(S3Config{Endpoint: "localhost:9000", Bucket: "b"}, logger)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if store.Bucket() != "b" {
		t.Errorf("неожиданный bucket: %q", store.Bucket())
	}
}

// TestS3Store_PutList проверяет полный цикл против реального MinIO.
func TestS3Store_PutList(t *testing.T) {
	store := setupTestS3(t)
	ctx := context.Background()

	if err := store.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	// Повторный вызов идемпотентен
	if err := store.EnsureBucket(ctx); err != nil {
		t.Fatalf("повторный EnsureBucket: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	payload := strings.Repeat("a", 10)
	info, err := store.Put(ctx, "2026/10/sample.wav", strings.NewReader(payload), -1, "audio/wav")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != int64(len(payload)) {
		t.Errorf("ожидался размер %d, получен %d", len(payload), info.Size)
	}

	objects, err := store.List(ctx, "2026/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 1 || objects[0].Key != "2026/10/sample.wav" {
		t.Fatalf("неожиданный листинг: %+v", objects)
	}

	// Содержимое совпадает с загруженным
	obj, err := store.client.GetObject(ctx, store.Bucket(), "2026/10/sample.wav", minio.GetObjectOptions{})
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		t.Fatalf("чтение объекта: %v", err)
	}
	if !bytes.Equal(data, []byte(payload)) {
		t.Errorf("содержимое не совпадает: %q", data)
	}
}
