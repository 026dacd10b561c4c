package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/media-broker/internal/api/middleware"
	"github.com/bigkaa/media-broker/internal/auth"
	"github.com/bigkaa/media-broker/internal/config"
	"github.com/bigkaa/media-broker/internal/server"
	"github.com/bigkaa/media-broker/internal/service"
	"github.com/bigkaa/media-broker/internal/storage/objectstore"
	"github.com/bigkaa/media-broker/internal/storage/registry"
)

const testBucket = "tasama-recordings"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testAPI — собранный сервис поверх in-memory хранилища.
type testAPI struct {
	srv     *server.Server
	handler http.Handler
	store   *objectstore.MemoryStore
	reg     *registry.MemoryRegistry
}

func newTestAPI(t *testing.T, maxBytes int64) *testAPI {
	t.Helper()
	return newTestAPIWithConfig(t, maxBytes, &config.Config{Port: 3000, ShutdownTimeout: time.Second})
}

func newTestAPIWithConfig(t *testing.T, maxBytes int64, cfg *config.Config) *testAPI {
	t.Helper()
	logger := testLogger()
	secret := []byte("handlers-test-secret")

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		Secret:     secret,
		TTL:        24 * time.Hour,
		Password:   "demo123",
		BcryptCost: bcrypt.MinCost,
	}, logger)
	if err != nil {
		t.Fatal(err)
	}
	validator := auth.NewValidator(auth.ValidatorConfig{Secret: secret}, logger)

	store := objectstore.NewMemoryStore(testBucket)
	reg := registry.New(logger)

	upload := service.NewUploadService(store, reg, service.UploadConfig{MaxBytes: maxBytes}, logger)
	api := NewAPIHandler(
		NewAuthHandler(issuer),
		NewAuthzHandler(service.NewBrokerService(validator, reg, logger), store.Bucket()),
		NewMediaHandler(upload, service.NewListingService(reg), store.Bucket()),
		NewMaintenanceHandler(service.NewReconcileService(store, reg, upload, logger)),
		NewHealthHandler(reg, store, nil),
		server.NewMetricsHandler(),
		middleware.NewJWTAuth(validator, logger).Middleware(),
	)

	srv := server.New(cfg, logger, api, middleware.RequestLogger(logger), middleware.MetricsMiddleware())

	return &testAPI{srv: srv, handler: srv.Handler(), store: store, reg: reg}
}

func (a *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) login(t *testing.T) string {
	t.Helper()
	rec := a.do(httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"testuser","password":"demo123"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("вход: ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp.Token
}

// multipartBody формирует тело multipart/form-data с одним файлом.
func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (a *testAPI) upload(t *testing.T, token, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, "file", filename, "audio/wav", data)
	req := httptest.NewRequest(http.MethodPost, "/media/upload", body)
	req.Header.Set("Content-Type", ct)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.do(req)
}

func (a *testAPI) authz(token, method, uri string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/authz/media", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != "" {
		req.Header.Set(HeaderOriginalMethod, method)
	}
	req.Header.Set(HeaderOriginalURI, uri)
	return a.do(req)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("тело ошибки не JSON: %v", err)
	}
	return body.Error.Code
}

var storageKeyRe = regexp.MustCompile(`^\d{4}/\d{2}/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.wav$`)

// TestScenario_LoginUploadAuthorize — полный путь: вход, загрузка, подзапрос proxy.
func TestScenario_LoginUploadAuthorize(t *testing.T) {
	api := newTestAPI(t, 1<<20)
	token := api.login(t)

	payload := []byte("RIFF012345")
	rec := api.upload(t, token, "sample.wav", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("загрузка: ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}

	var uploaded mediaResponse
	if err := json.NewDecoder(rec.Body).Decode(&uploaded); err != nil {
		t.Fatal(err)
	}
	if !storageKeyRe.MatchString(uploaded.StorageKey) {
		t.Errorf("storageKey не соответствует YYYY/MM/<uuid>.wav: %q", uploaded.StorageKey)
	}
	if uploaded.Handle == "" || strings.Contains(uploaded.StorageKey, uploaded.Handle) {
		t.Errorf("handle не должен совпадать с частью storageKey: %q", uploaded.Handle)
	}
	if uploaded.Size != int64(len(payload)) || uploaded.OriginalName != "sample.wav" || uploaded.UploadedBy != "testuser" {
		t.Errorf("неожиданные метаданные: %+v", uploaded)
	}
	if uploaded.DownloadPath != "/v1/audio/"+uploaded.Handle || uploaded.Bucket != testBucket {
		t.Errorf("неожиданные downloadPath/bucket: %q %q", uploaded.DownloadPath, uploaded.Bucket)
	}

	rec = api.authz(token, http.MethodGet, "/v1/audio/"+uploaded.Handle)
	if rec.Code != http.StatusOK {
		t.Fatalf("authz: ожидался 200, получен %d", rec.Code)
	}
	if got := rec.Header().Get(HeaderMediaKey); got != uploaded.StorageKey {
		t.Errorf("X-Media-Key = %q, ожидалось %q", got, uploaded.StorageKey)
	}
	if got := rec.Header().Get(HeaderMediaFilename); got != "sample.wav" {
		t.Errorf("X-Media-Filename = %q", got)
	}
	if got := rec.Header().Get(HeaderMediaBucket); got != testBucket {
		t.Errorf("X-Media-Bucket = %q", got)
	}
	if got := rec.Header().Get(HeaderMediaSize); got != "10" {
		t.Errorf("X-Media-Size = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("тело успешного ответа должно быть пустым: %q", rec.Body.String())
	}

	// Объект по X-Media-Key совпадает с загруженным
	data, _, ok := api.store.Get(rec.Header().Get(HeaderMediaKey))
	if !ok || !bytes.Equal(data, payload) {
		t.Errorf("объект в хранилище не совпадает с загруженным: %q", data)
	}

	rec = api.authz(token, http.MethodGet, "/v1/audio/bogus")
	if rec.Code != http.StatusNotFound {
		t.Errorf("неизвестный handle: ожидался 404, получен %d", rec.Code)
	}
}

// TestAuthz_StatusCodes проверяет коды отказа подзапроса.
func TestAuthz_StatusCodes(t *testing.T) {
	api := newTestAPI(t, 1<<20)
	token := api.login(t)

	tests := []struct {
		name   string
		token  string
		method string
		uri    string
		want   int
	}{
		{"без токена", "", "GET", "/v1/audio/x", http.StatusUnauthorized},
		{"мусорный токен", "garbage", "GET", "/v1/audio/x", http.StatusForbidden},
		{"POST", token, "POST", "/v1/audio/x", http.StatusForbidden},
		{"некорректный путь", token, "GET", "/etc/passwd", http.StatusBadRequest},
		{"неизвестный handle", token, "GET", "/v1/audio/does-not-exist", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.authz(tt.token, tt.method, tt.uri)
			if rec.Code != tt.want {
				t.Errorf("ожидался %d, получен %d", tt.want, rec.Code)
			}
			if rec.Header().Get(HeaderMediaKey) != "" {
				t.Error("X-Media-Key не должен выставляться при отказе")
			}
		})
	}
}

// TestAuthz_AnyMethodRouted проверяет, что подзапрос с методом исходного запроса доходит до брокера.
func TestAuthz_AnyMethodRouted(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/authz/media", nil)
	req.Header.Set(HeaderOriginalURI, "/v1/audio/x")
	rec := api.do(req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался 401 от брокера, получен %d", rec.Code)
	}
}

// TestLogin_Errors проверяет отказы входа.
func TestLogin_Errors(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"не JSON", "username=testuser", http.StatusBadRequest},
		{"без пароля", `{"username":"testuser"}`, http.StatusBadRequest},
		{"без имени", `{"password":"demo123"}`, http.StatusBadRequest},
		{"неверный пароль", `{"username":"testuser","password":"nope"}`, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("ожидался %d, получен %d", tt.want, rec.Code)
			}
		})
	}
}

// TestLogin_Response проверяет формат ответа входа.
func TestLogin_Response(t *testing.T) {
	api := newTestAPI(t, 1<<20)
	rec := api.do(httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"testuser","password":"demo123"}`)))

	var resp loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" || resp.ExpiresIn != "24h" {
		t.Errorf("неожиданный ответ: %+v", resp)
	}
}

// TestUpload_StorageFailureLeavesNoRecord проверяет, что сбой хранилища не оставляет записи.
func TestUpload_StorageFailureLeavesNoRecord(t *testing.T) {
	api := newTestAPI(t, 1<<20)
	token := api.login(t)
	api.store.SetPutError(errors.New("backend unavailable"))

	rec := api.upload(t, token, "sample.wav", []byte("0123456789"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("ожидался 500, получен %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "STORAGE_WRITE_FAILED" {
		t.Errorf("ожидался код STORAGE_WRITE_FAILED, получен %q", code)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/media/list", nil)
	listReq.Header.Set("Authorization", "Bearer "+token)
	listRec := api.do(listReq)

	var list listResponse
	if err := json.NewDecoder(listRec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 0 || len(list.Files) != 0 {
		t.Errorf("листинг должен быть пустым, получено %d", list.Count)
	}
}

// TestUpload_Rejects проверяет отказы загрузки.
func TestUpload_Rejects(t *testing.T) {
	api := newTestAPI(t, 8)
	token := api.login(t)

	t.Run("без токена", func(t *testing.T) {
		if rec := api.upload(t, "", "a.wav", []byte("x")); rec.Code != http.StatusUnauthorized {
			t.Errorf("ожидался 401, получен %d", rec.Code)
		}
	})

	t.Run("слишком большой", func(t *testing.T) {
		rec := api.upload(t, token, "a.wav", []byte("0123456789"))
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("ожидался 413, получен %d", rec.Code)
		}
		if code := errorCode(t, rec); code != "FILE_TOO_LARGE" {
			t.Errorf("ожидался FILE_TOO_LARGE, получен %q", code)
		}
	})

	t.Run("не multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/media/upload", strings.NewReader("raw"))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/octet-stream")
		if rec := api.do(req); rec.Code != http.StatusBadRequest {
			t.Errorf("ожидался 400, получен %d", rec.Code)
		}
	})

	t.Run("без поля file", func(t *testing.T) {
		body, ct := multipartBody(t, "attachment", "a.wav", "", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/media/upload", body)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", ct)
		if rec := api.do(req); rec.Code != http.StatusBadRequest {
			t.Errorf("ожидался 400, получен %d", rec.Code)
		}
	})

	if api.reg.Count() != 0 || api.store.Len() != 0 {
		t.Error("отклонённые загрузки не должны ничего сохранять")
	}
}

// TestList_Pagination проверяет листинг и валидацию параметров.
func TestList_Pagination(t *testing.T) {
	api := newTestAPI(t, 1<<20)
	token := api.login(t)

	for _, name := range []string{"a.wav", "b.wav", "c.wav"} {
		if rec := api.upload(t, token, name, []byte(name)); rec.Code != http.StatusOK {
			t.Fatalf("загрузка %s: %d", name, rec.Code)
		}
	}

	list := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/media/list"+query, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		return api.do(req)
	}

	rec := list("?limit=2&offset=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	var resp listResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || resp.Total != 3 {
		t.Errorf("ожидалось count=2 total=3, получено %d/%d", resp.Count, resp.Total)
	}
	if resp.Files[0].OriginalName != "b.wav" || resp.Files[1].OriginalName != "c.wav" {
		t.Errorf("нарушен порядок добавления: %s, %s", resp.Files[0].OriginalName, resp.Files[1].OriginalName)
	}

	for _, q := range []string{"?limit=0", "?limit=1001", "?limit=x", "?offset=-1"} {
		if rec := list(q); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: ожидался 400, получен %d", q, rec.Code)
		}
	}
}

// TestMaintenance_Orphans проверяет отчёт об осиротевших объектах.
func TestMaintenance_Orphans(t *testing.T) {
	api := newTestAPI(t, 1<<20)
	token := api.login(t)

	if rec := api.upload(t, token, "a.wav", []byte("a")); rec.Code != http.StatusOK {
		t.Fatalf("загрузка: %d", rec.Code)
	}
	if _, err := api.store.Put(context.Background(), "2026/01/stray.wav", strings.NewReader("zz"), 2, "audio/wav"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/maintenance/orphans", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := api.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}

	var resp orphansResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Scanned != 2 || resp.Count != 1 || resp.Orphans[0].Key != "2026/01/stray.wav" {
		t.Errorf("неожиданный отчёт: %+v", resp)
	}

	noAuth := api.do(httptest.NewRequest(http.MethodGet, "/maintenance/orphans", nil))
	if noAuth.Code != http.StatusUnauthorized {
		t.Errorf("без токена: ожидался 401, получен %d", noAuth.Code)
	}
}

// TestPublicEndpoints проверяет корень, health и metrics.
func TestPublicEndpoints(t *testing.T) {
	api := newTestAPI(t, 1<<20)

	rec := api.do(httptest.NewRequest(http.MethodGet, "/", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK || string(body) != rootBanner {
		t.Errorf("GET /: %d %q", rec.Code, body)
	}

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		if rec := api.do(httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != http.StatusOK {
			t.Errorf("%s: ожидался 200, получен %d", path, rec.Code)
		}
	}
}

// failingPinger — хранилище, которое не отвечает.
type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

// TestHealthReady_StoreDown проверяет 503 при недоступном хранилище.
func TestHealthReady_StoreDown(t *testing.T) {
	h := NewHealthHandler(registry.New(testLogger()), failingPinger{}, nil)
	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ожидался 503, получен %d", rec.Code)
	}
}

// TestUpload_SlowBodyOutlivesReadTimeout проверяет, что потоковая загрузка
// не обрывается по MB_HTTP_READ_TIMEOUT на реальном соединении.
func TestUpload_SlowBodyOutlivesReadTimeout(t *testing.T) {
	api := newTestAPIWithConfig(t, 1<<20, &config.Config{
		HTTPReadTimeout:       300 * time.Millisecond,
		HTTPReadHeaderTimeout: time.Second,
		ShutdownTimeout:       time.Second,
	})
	token := api.login(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- api.srv.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", "slow.wav")
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		chunk := bytes.Repeat([]byte("a"), 1024)
		for range 10 {
			if _, err := part.Write(chunk); err != nil {
				_ = pw.CloseWithError(err)
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
		_ = pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequest(http.MethodPost, "http://"+ln.Addr().String()+"/media/upload", pr)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("запрос загрузки: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("ожидался 200, получен %d: %s", resp.StatusCode, body)
	}
	if api.reg.Count() != 1 {
		t.Errorf("ожидалась 1 запись в реестре, получено %d", api.reg.Count())
	}
	if got := api.reg.List()[0].SizeBytes; got != 10*1024 {
		t.Errorf("ожидался размер %d, получен %d", 10*1024, got)
	}
}

// TestBodyLimit проверяет лимит тела запроса без переполнения.
func TestBodyLimit(t *testing.T) {
	if got := bodyLimit(10); got != 10+multipartOverhead {
		t.Errorf("bodyLimit(10) = %d", got)
	}
	if got := bodyLimit(math.MaxInt64); got != math.MaxInt64 {
		t.Errorf("bodyLimit(MaxInt64) = %d, ожидалось MaxInt64", got)
	}
	if got := bodyLimit(math.MaxInt64 - multipartOverhead); got != math.MaxInt64 {
		t.Errorf("bodyLimit на границе = %d", got)
	}
}
