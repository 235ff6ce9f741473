// Package testutil 测试辅助：sqlite 内存库与 HTTP 请求工具
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"clubexpense/internal/config"
	"clubexpense/internal/infrastructure/database"
	"clubexpense/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	JWTSecret = "clubexpense-test-secret"
	JWTIssuer = "clubexpense"
)

var unsafeDBName = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SetupTestDB 每个测试独立的内存 SQLite，使用生产模型迁移
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", unsafeDBName.ReplaceAllString(t.Name(), "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// TestConfig 默认配置 + 测试用的 JWT 密钥
func TestConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Mode = gin.TestMode
	cfg.Auth.JWTSecret = JWTSecret
	cfg.Auth.Issuer = JWTIssuer
	cfg.Business.MaxReceiptBytes = 1 << 20
	return cfg
}

// SeedClub creates a club with the given budget in yen
func SeedClub(t *testing.T, db *gorm.DB, name string, budget int64) *model.Club {
	t.Helper()
	club := &model.Club{Name: name, TotalBudget: decimal.NewFromInt(budget)}
	if err := db.Create(club).Error; err != nil {
		t.Fatalf("Failed to seed club: %v", err)
	}
	return club
}

// SeedUser creates a user belonging to club
func SeedUser(t *testing.T, db *gorm.DB, club *model.Club, authUID, displayName, role string) *model.User {
	t.Helper()
	user := &model.User{
		AuthUID:     authUID,
		ClubID:      club.ID,
		DisplayName: displayName,
		Role:        role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	return user
}

// RequestSeed 直接写入的申请，用于汇总与检索测试
type RequestSeed struct {
	Status    string
	Amount    int64
	Date      string
	Category  string
	Reason    string
	Applicant string
	CreatedAt time.Time
}

// SoftDelete sets deleted_at on a seeded row
func SoftDelete(t *testing.T, db *gorm.DB, value interface{}) {
	t.Helper()
	if err := db.Delete(value).Error; err != nil {
		t.Fatalf("Failed to soft delete: %v", err)
	}
}

// SeedRequest creates a request row without items, bypassing the service layer
func SeedRequest(t *testing.T, db *gorm.DB, user *model.User, seed RequestSeed) *model.Request {
	t.Helper()
	if seed.Status == "" {
		seed.Status = model.RequestStatusSubmitted
	}
	if seed.Date == "" {
		seed.Date = "2024-04-01"
	}
	if seed.Applicant == "" {
		seed.Applicant = user.DisplayName
	}

	req := &model.Request{
		RequestNo:      fmt.Sprintf("KS-TEST-%d", time.Now().UnixNano()),
		ClubID:         user.ClubID,
		UserID:         user.ID,
		Date:           seed.Date,
		JobTitle:       "顧問",
		ApplicantName:  seed.Applicant,
		Category:       seed.Category,
		Reason:         seed.Reason,
		TotalAmount:    decimal.NewFromInt(seed.Amount),
		Status:         seed.Status,
		RevisionNumber: 1,
		CreatedAt:      seed.CreatedAt,
	}
	req.SetFlow(nil)
	if err := db.Create(req).Error; err != nil {
		t.Fatalf("Failed to seed request: %v", err)
	}
	return req
}

// MemoryBlobStore 内存文件存储，可模拟上传和签名失败
type MemoryBlobStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	FailPut  bool
	FailSign bool
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (s *MemoryBlobStore) Put(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPut {
		return errors.New("blob store unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[path] = data
	s.types[path] = contentType
	return nil
}

func (s *MemoryBlobStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSign {
		return "", errors.New("sign failed")
	}
	if _, ok := s.objects[path]; !ok {
		return "", fmt.Errorf("object not found: %s", path)
	}
	return fmt.Sprintf("https://blob.test/%s?ttl=%d", path, int(ttl.Seconds())), nil
}

// Object returns the stored bytes and content type
func (s *MemoryBlobStore) Object(path string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	return data, s.types[path], ok
}

// Paths returns every stored path in sorted order
func (s *MemoryBlobStore) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.objects))
	for p := range s.objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// DoRequest executes a JSON request against the test router
func DoRequest(r http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// FilePart 一个 multipart 文件字段
type FilePart struct {
	Field    string
	FileName string
	Data     []byte
}

// DoMultipart executes a multipart/form-data POST against the test router
func DoMultipart(r http.Handler, path string, fields map[string]string, file *FilePart, token string) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if file != nil {
		fw, _ := mw.CreateFormFile(file.Field, file.FileName)
		_, _ = fw.Write(file.Data)
	}
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the {code, message, data} envelope
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// ResponseCode returns the business code of the envelope, -1 if absent
func ResponseCode(w *httptest.ResponseRecorder) int {
	code, ok := ParseResponse(w)["code"].(float64)
	if !ok {
		return -1
	}
	return int(code)
}
