package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/plankdev/plank-ai-backend/internal/domain"
	"github.com/plankdev/plank-ai-backend/internal/http/middleware"
	"github.com/plankdev/plank-ai-backend/internal/services"
)

//
// Fakes
//

type fakeConvSvc struct {
	created     *domain.Conversation
	createErr   error
	createTitle string

	pageItems []domain.Conversation
	pageTotal int64
	pageErr   error

	deleteErr error
	deletedID string
}

func (s *fakeConvSvc) Create(ctx context.Context, userID, title string) (*domain.Conversation, error) {
	s.createTitle = title
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.created, nil
}

func (s *fakeConvSvc) List(ctx context.Context, userID string) ([]domain.Conversation, error) {
	return s.pageItems, s.pageErr
}

func (s *fakeConvSvc) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error) {
	return s.pageItems, s.pageTotal, s.pageErr
}

func (s *fakeConvSvc) Delete(ctx context.Context, userID, conversationID string) error {
	s.deletedID = conversationID
	return s.deleteErr
}

type fakeMsgSvc struct {
	sendIn    services.SendInput
	sendCalls int
	sendRes   *services.SendResult
	sendErr   error

	listItems []domain.Message
	listTotal int64
	listErr   error

	maxRunes int

	digestCount int64
	digestTS    *time.Time
	digestErr   error

	replayKey string
	replayRes *services.SendResult
	replayErr error

	rememberKey string
	rememberRes *services.SendResult
	rememberTTL time.Duration
}

func (s *fakeMsgSvc) Send(ctx context.Context, userID string, in services.SendInput) (*services.SendResult, error) {
	s.sendIn = in
	s.sendCalls++
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	return s.sendRes, nil
}

func (s *fakeMsgSvc) ListPage(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	return s.listItems, s.listTotal, s.listErr
}

func (s *fakeMsgSvc) MaxRunes() int {
	if s.maxRunes > 0 {
		return s.maxRunes
	}
	return 4000
}

func (s *fakeMsgSvc) Digest(ctx context.Context, userID, conversationID string) (int64, *time.Time, error) {
	return s.digestCount, s.digestTS, s.digestErr
}

func (s *fakeMsgSvc) Replay(ctx context.Context, userID, conversationID, key string) (*services.SendResult, error) {
	s.replayKey = key
	if s.replayErr != nil {
		return nil, s.replayErr
	}
	return s.replayRes, nil
}

func (s *fakeMsgSvc) Remember(ctx context.Context, userID, conversationID, key string, res *services.SendResult, ttl time.Duration) error {
	s.rememberKey = key
	s.rememberRes = res
	s.rememberTTL = ttl
	return nil
}

type fakeUsageSvc struct {
	user      *domain.User
	ensureErr error
	usage     *services.Usage
	snapErr   error
}

func (s *fakeUsageSvc) EnsureUser(ctx context.Context, id string) (*domain.User, error) {
	if s.ensureErr != nil {
		return nil, s.ensureErr
	}
	return s.user, nil
}

func (s *fakeUsageSvc) Snapshot(ctx context.Context, userID string) (*services.Usage, error) {
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	return s.usage, nil
}

type fakePaySvc struct {
	createRes *services.CreateResult
	createErr error

	statusRes *services.StatusResult
	statusErr error

	confirmTx  string
	confirmRes *domain.Payment
	confirmErr error

	listItems []domain.Payment
	listErr   error
}

func (s *fakePaySvc) Create(ctx context.Context, userID string, amount int, method string) (*services.CreateResult, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.createRes, nil
}

func (s *fakePaySvc) Status(ctx context.Context, id uint) (*services.StatusResult, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return s.statusRes, nil
}

func (s *fakePaySvc) Confirm(ctx context.Context, id uint, transactionID string) (*domain.Payment, error) {
	s.confirmTx = transactionID
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	return s.confirmRes, nil
}

func (s *fakePaySvc) List(ctx context.Context, userID string) ([]domain.Payment, error) {
	return s.listItems, s.listErr
}

type fakeFileSvc struct {
	recorded  *domain.UploadedFile
	recordErr error
	listItems []domain.UploadedFile
	listErr   error

	gotStoredName string
	gotMimeType   string
}

func (s *fakeFileSvc) Record(ctx context.Context, userID, storedName, originalName, mimeType string, size int64) (*domain.UploadedFile, error) {
	s.gotStoredName = storedName
	s.gotMimeType = mimeType
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	return s.recorded, nil
}

func (s *fakeFileSvc) List(ctx context.Context, userID string) ([]domain.UploadedFile, error) {
	return s.listItems, s.listErr
}

func (s *fakeFileSvc) URL(storedName string) string { return "/uploads/" + storedName }

type fakeAISvc struct {
	prompt string
	reply  string
}

func (s *fakeAISvc) GenerateReply(ctx context.Context, prompt string) string {
	s.prompt = prompt
	return s.reply
}

//
// Harness
//

type handlerFakes struct {
	conv  *fakeConvSvc
	msg   *fakeMsgSvc
	usage *fakeUsageSvc
	pay   *fakePaySvc
	file  *fakeFileSvc
	ai    *fakeAISvc
}

func newTestRouter(t *testing.T) (*gin.Engine, *handlerFakes) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &handlerFakes{
		conv:  &fakeConvSvc{},
		msg:   &fakeMsgSvc{},
		usage: &fakeUsageSvc{},
		pay:   &fakePaySvc{},
		file:  &fakeFileSvc{},
		ai:    &fakeAISvc{},
	}
	h := New(f.conv, f.msg, f.usage, f.pay, f.file, f.ai)
	h.UploadDir = t.TempDir()

	r := gin.New()
	r.GET("/user", h.GetUser)
	r.GET("/usage", h.GetUsage)
	r.POST("/conversations", h.CreateConversation)
	r.GET("/conversations", h.ListConversations)
	r.DELETE("/conversations/:id", h.DeleteConversation)
	r.GET("/conversations/:id/messages", h.ListMessages)
	r.POST("/messages", middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil), h.PostMessage)
	r.POST("/ai/chat", h.AIChat)
	r.POST("/upload", h.Upload)
	r.GET("/files", h.ListFiles)
	r.POST("/payments", h.CreatePayment)
	r.GET("/payments", h.ListPayments)
	r.GET("/payments/:id/status", h.PaymentStatus)
	r.POST("/payments/:id/confirm", h.ConfirmPayment)
	return r, f
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

const testConvID = "141add05-4415-4938-b5a1-17e0d3171aff"

//
// Users & usage
//

func TestGetUser_ProvisionsAndReturns(t *testing.T) {
	r, f := newTestRouter(t)
	f.usage.user = &domain.User{ID: "demo-user", UsageCount: 2}

	w := doJSON(t, r, http.MethodGet, "/user", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	u := decode[domain.User](t, w)
	if u.ID != "demo-user" || u.UsageCount != 2 {
		t.Fatalf("user = %+v", u)
	}
}

func TestGetUsage_ReportsSnapshot(t *testing.T) {
	r, f := newTestRouter(t)
	limit := 10
	f.usage.user = &domain.User{ID: "demo-user"}
	f.usage.usage = &services.Usage{UsageCount: 4, Limit: &limit}

	w := doJSON(t, r, http.MethodGet, "/usage", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	got := decode[services.Usage](t, w)
	if got.UsageCount != 4 || got.Limit == nil || *got.Limit != 10 {
		t.Fatalf("usage = %+v", got)
	}
}

//
// Conversations
//

func TestCreateConversation_Returns201(t *testing.T) {
	r, f := newTestRouter(t)
	f.conv.created = &domain.Conversation{ID: testConvID, Title: "Halo"}

	w := doJSON(t, r, http.MethodPost, "/conversations", gin.H{"title": "  Halo  "})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if f.conv.createTitle != "Halo" {
		t.Fatalf("title passed to service = %q", f.conv.createTitle)
	}
}

func TestDeleteConversation_BadUUID(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodDelete, "/conversations/not-a-uuid", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestDeleteConversation_NotFoundAndNoContent(t *testing.T) {
	r, f := newTestRouter(t)

	f.conv.deleteErr = services.ErrConversationNotFound
	w := doJSON(t, r, http.MethodDelete, "/conversations/"+testConvID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	e := decode[ErrorResponse](t, w)
	if e.Code != ErrCodeNotFound {
		t.Fatalf("error code = %q", e.Code)
	}

	f.conv.deleteErr = nil
	w = doJSON(t, r, http.MethodDelete, "/conversations/"+testConvID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
}

//
// Messages
//

func TestPostMessage_Success(t *testing.T) {
	r, f := newTestRouter(t)
	f.msg.sendRes = &services.SendResult{
		UserMessage:      &domain.Message{ID: "m1", Role: "user", Content: "halo"},
		AssistantMessage: &domain.Message{ID: "m2", Role: "assistant", Content: "hai"},
		UsageCount:       3,
	}

	w := doJSON(t, r, http.MethodPost, "/messages", gin.H{
		"conversationId": testConvID,
		"content":        "halo",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	res := decode[PostMessageResponse](t, w)
	if res.AIMessage == nil || res.AIMessage.Content != "hai" || res.UsageCount != 3 {
		t.Fatalf("response = %+v", res)
	}
}

func TestPostMessage_SanitizesContent(t *testing.T) {
	r, f := newTestRouter(t)
	f.msg.sendRes = &services.SendResult{
		UserMessage:      &domain.Message{},
		AssistantMessage: &domain.Message{ID: "m2"},
	}

	w := doJSON(t, r, http.MethodPost, "/messages", gin.H{
		"conversationId": testConvID,
		"content":        "a\r\nb\n\n\n\nc",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if f.msg.sendIn.Content != "a\nb\n\nc" {
		t.Fatalf("sanitized content = %q", f.msg.sendIn.Content)
	}
}

func TestPostMessage_MissingConversationID(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/messages", gin.H{"content": "halo"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPostMessage_NonUUIDConversation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/messages", gin.H{"conversationId": "abc", "content": "halo"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPostMessage_EmptyBodyAndNoFile(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/messages", gin.H{"conversationId": testConvID, "content": "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPostMessage_QuotaExceededHas403AndUpsell(t *testing.T) {
	r, f := newTestRouter(t)
	f.msg.sendErr = services.ErrQuotaExceeded

	w := doJSON(t, r, http.MethodPost, "/messages", gin.H{"conversationId": testConvID, "content": "halo"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	e := decode[ErrorResponse](t, w)
	if e.Code != ErrCodeQuotaExceeded || !e.UpgradeRequired {
		t.Fatalf("error = %+v", e)
	}
	if !strings.Contains(e.Message, "Upgrade ke Pro") {
		t.Fatalf("message = %q", e.Message)
	}
}

func TestPostMessage_ConversationMissing404(t *testing.T) {
	r, f := newTestRouter(t)
	f.msg.sendErr = services.ErrConversationNotFound

	w := doJSON(t, r, http.MethodPost, "/messages", gin.H{"conversationId": testConvID, "content": "halo"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

// doJSONKeyed is doJSON with an Idempotency-Key header attached.
func doJSONKeyed(t *testing.T, r *gin.Engine, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPostMessage_ReplayEchoesRecordedPair(t *testing.T) {
	r, f := newTestRouter(t)
	f.msg.replayRes = &services.SendResult{
		UserMessage:      &domain.Message{ID: "m1", Role: "user", Content: "halo"},
		AssistantMessage: &domain.Message{ID: "m2", Role: "assistant", Content: "hai"},
	}
	f.usage.usage = &services.Usage{UsageCount: 5, IsPremium: false}

	w := doJSONKeyed(t, r, http.MethodPost, "/messages", "retry-1", gin.H{
		"conversationId": testConvID,
		"content":        "halo",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay header missing, headers = %v", w.Header())
	}
	res := decode[PostMessageResponse](t, w)
	if res.UserMessage == nil || res.UserMessage.ID != "m1" {
		t.Fatalf("user message = %+v", res.UserMessage)
	}
	if res.AIMessage == nil || res.AIMessage.ID != "m2" {
		t.Fatalf("ai message = %+v", res.AIMessage)
	}
	if res.UsageCount != 5 {
		t.Fatalf("usage count = %d, want current snapshot", res.UsageCount)
	}
	if f.msg.replayKey != "retry-1" {
		t.Fatalf("replay key = %q", f.msg.replayKey)
	}
	if f.msg.sendCalls != 0 {
		t.Fatalf("send called %d times on replay", f.msg.sendCalls)
	}
}

func TestPostMessage_RemembersResultUnderKey(t *testing.T) {
	r, f := newTestRouter(t)
	f.msg.sendRes = &services.SendResult{
		UserMessage:      &domain.Message{ID: "m1"},
		AssistantMessage: &domain.Message{ID: "m2"},
		UsageCount:       1,
	}

	w := doJSONKeyed(t, r, http.MethodPost, "/messages", "retry-2", gin.H{
		"conversationId": testConvID,
		"content":        "halo",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if f.msg.sendCalls != 1 {
		t.Fatalf("send calls = %d", f.msg.sendCalls)
	}
	if f.msg.rememberKey != "retry-2" || f.msg.rememberRes != f.msg.sendRes {
		t.Fatalf("remembered key=%q res=%p", f.msg.rememberKey, f.msg.rememberRes)
	}
}

func TestListMessages_BadUUID(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/conversations/xyz/messages", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListMessages_PaginationMetadata(t *testing.T) {
	r, f := newTestRouter(t)
	f.msg.listItems = []domain.Message{{ID: "m1"}, {ID: "m2"}}
	f.msg.listTotal = 5

	w := doJSON(t, r, http.MethodGet, "/conversations/"+testConvID+"/messages?page=1&page_size=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	res := decode[ListMessagesResponse](t, w)
	if res.Pagination.Total != 5 || res.Pagination.TotalPages != 3 || !res.Pagination.HasNext {
		t.Fatalf("pagination = %+v", res.Pagination)
	}
}

func TestListMessages_ForeignConversationGets404WithoutETag(t *testing.T) {
	r, f := newTestRouter(t)
	f.msg.digestErr = services.ErrConversationNotFound

	w := doJSON(t, r, http.MethodGet, "/conversations/"+testConvID+"/messages", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if et := w.Header().Get("ETag"); et != "" {
		t.Fatalf("ETag leaked for inaccessible conversation: %q", et)
	}
}

func TestListMessages_ETagAndNotModified(t *testing.T) {
	r, f := newTestRouter(t)
	ts := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	f.msg.digestCount = 3
	f.msg.digestTS = &ts
	f.msg.listItems = []domain.Message{{ID: "m1"}}
	f.msg.listTotal = 3

	w := doJSON(t, r, http.MethodGet, "/conversations/"+testConvID+"/messages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	want := `W/"messages:` + testConvID + `:3:` + strconv.FormatInt(ts.Unix(), 10) + `"`
	if etag != want {
		t.Fatalf("etag = %q, want %q", etag, want)
	}

	req := httptest.NewRequest(http.MethodGet, "/conversations/"+testConvID+"/messages", nil)
	req.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	if w2.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d", w2.Code)
	}
	if w2.Body.Len() != 0 {
		t.Fatalf("304 carried a body: %s", w2.Body.String())
	}
}

//
// AI passthrough
//

func TestAIChat_Passthrough(t *testing.T) {
	r, f := newTestRouter(t)
	f.ai.reply = "hai juga"

	w := doJSON(t, r, http.MethodPost, "/ai/chat", gin.H{"message": "  halo  "})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	res := decode[AIChatResponse](t, w)
	if res.Response != "hai juga" {
		t.Fatalf("response = %+v", res)
	}
	if f.ai.prompt != "halo" {
		t.Fatalf("prompt = %q, want trimmed", f.ai.prompt)
	}
}

func TestAIChat_MessageRequired(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/ai/chat", gin.H{"message": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

//
// Payments
//

func TestCreatePayment_Returns201WithDeepLink(t *testing.T) {
	r, f := newTestRouter(t)
	f.pay.createRes = &services.CreateResult{
		Payment:    &domain.Payment{ID: 7, Amount: 25000, Method: "dana", Status: "pending"},
		PaymentURL: "dana://pay?amount=25000&to=08881382817&reference=7",
	}

	w := doJSON(t, r, http.MethodPost, "/payments", gin.H{"amount": 25000, "paymentMethod": "dana"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	res := decode[services.CreateResult](t, w)
	if !strings.HasPrefix(res.PaymentURL, "dana://pay?amount=25000") {
		t.Fatalf("paymentUrl = %q", res.PaymentURL)
	}
}

func TestCreatePayment_ValidationErrors(t *testing.T) {
	r, f := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/payments", gin.H{"amount": 25000})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing method: status = %d", w.Code)
	}

	f.pay.createErr = services.ErrInvalidPaymentMethod
	w = doJSON(t, r, http.MethodPost, "/payments", gin.H{"amount": 25000, "paymentMethod": "paypal"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad method: status = %d", w.Code)
	}

	f.pay.createErr = services.ErrInvalidAmount
	w = doJSON(t, r, http.MethodPost, "/payments", gin.H{"amount": -1, "paymentMethod": "dana"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad amount: status = %d", w.Code)
	}
}

func TestPaymentStatus_OKAndNotFound(t *testing.T) {
	r, f := newTestRouter(t)
	f.pay.statusRes = &services.StatusResult{
		Status:        "processing",
		PaymentID:     7,
		PaymentMethod: "dana",
		Amount:        25000,
		Elapsed:       15,
	}

	w := doJSON(t, r, http.MethodGet, "/payments/7/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	res := decode[services.StatusResult](t, w)
	if res.Status != "processing" || res.Elapsed != 15 {
		t.Fatalf("result = %+v", res)
	}

	f.pay.statusErr = services.ErrPaymentNotFound
	w = doJSON(t, r, http.MethodGet, "/payments/404/status", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPaymentStatus_BadID(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, id := range []string{"abc", "0", "-3"} {
		w := doJSON(t, r, http.MethodGet, "/payments/"+id+"/status", nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("id %q: status = %d", id, w.Code)
		}
	}
}

func TestConfirmPayment_WithAndWithoutBody(t *testing.T) {
	r, f := newTestRouter(t)
	f.pay.confirmRes = &domain.Payment{ID: 7, Status: "completed", TransactionID: "TRX-1"}

	w := doJSON(t, r, http.MethodPost, "/payments/7/confirm", gin.H{"transactionId": "TRX-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if f.pay.confirmTx != "TRX-1" {
		t.Fatalf("transaction id = %q", f.pay.confirmTx)
	}
	res := decode[ConfirmPaymentResponse](t, w)
	if res.Payment.Status != "completed" || !res.IsPremium {
		t.Fatalf("response = %+v", res)
	}

	// The body is optional.
	w = doJSON(t, r, http.MethodPost, "/payments/7/confirm", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("empty body: status = %d", w.Code)
	}
}

// storedPaymentStore backs a real PaymentService with one in-memory payment.
type storedPaymentStore struct {
	payment       *domain.Payment
	completeCalls int
}

func (s *storedPaymentStore) CreatePayment(ctx context.Context, db *gorm.DB, userID string, amount int, method string) (*domain.Payment, error) {
	return s.payment, nil
}

func (s *storedPaymentStore) GetPayment(ctx context.Context, db *gorm.DB, id uint) (*domain.Payment, error) {
	cp := *s.payment
	return &cp, nil
}

func (s *storedPaymentStore) ListPayments(ctx context.Context, db *gorm.DB, userID string) ([]domain.Payment, error) {
	return []domain.Payment{*s.payment}, nil
}

func (s *storedPaymentStore) SettlePayment(ctx context.Context, db *gorm.DB, id uint, status, transactionID string) (bool, error) {
	return false, nil
}

func (s *storedPaymentStore) CompletePayment(ctx context.Context, db *gorm.DB, id uint, transactionID string) (bool, error) {
	s.completeCalls++
	s.payment.Status = domain.PaymentStatusCompleted
	if transactionID != "" {
		s.payment.TransactionID = transactionID
	}
	return true, nil
}

type recordingGranter struct{ granted []string }

func (g *recordingGranter) GrantPremium(ctx context.Context, userID string) error {
	g.granted = append(g.granted, userID)
	return nil
}

// A payment the timer already settled as failed must still complete and grant
// premium when the user confirms manually, all the way through the HTTP layer.
func TestConfirmPayment_OverridesStoredFailed(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := &storedPaymentStore{payment: &domain.Payment{
		ID:     107,
		UserID: "demo-user",
		Amount: 25000,
		Method: domain.PaymentMethodDana,
		Status: domain.PaymentStatusFailed,
	}}
	granter := &recordingGranter{}
	svc := &services.PaymentService{Store: store, Entitlement: granter}

	h := New(&fakeConvSvc{}, &fakeMsgSvc{}, &fakeUsageSvc{}, svc, &fakeFileSvc{}, &fakeAISvc{})
	r := gin.New()
	r.POST("/payments/:id/confirm", h.ConfirmPayment)

	w := doJSON(t, r, http.MethodPost, "/payments/107/confirm", gin.H{"transactionId": "TRX-9"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	res := decode[ConfirmPaymentResponse](t, w)
	if res.Payment == nil || res.Payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("payment = %+v", res.Payment)
	}
	if !res.IsPremium {
		t.Fatalf("isPremium = false after confirm")
	}
	if store.completeCalls != 1 {
		t.Fatalf("complete calls = %d", store.completeCalls)
	}
	if len(granter.granted) != 1 || granter.granted[0] != "demo-user" {
		t.Fatalf("grants = %v", granter.granted)
	}
}

func TestListPayments(t *testing.T) {
	r, f := newTestRouter(t)
	f.pay.listItems = []domain.Payment{{ID: 2}, {ID: 1}}

	w := doJSON(t, r, http.MethodGet, "/payments", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	res := decode[ListPaymentsResponse](t, w)
	if len(res.Payments) != 2 || res.Payments[0].ID != 2 {
		t.Fatalf("payments = %+v", res.Payments)
	}
}

//
// Uploads
//

func multipartUpload(t *testing.T, field, filename, mimeType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + filename + `"`}
	hdr["Content-Type"] = []string{mimeType}
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUpload_Success(t *testing.T) {
	r, f := newTestRouter(t)
	f.file.recorded = &domain.UploadedFile{ID: 1, OriginalName: "foto.png", FileType: "image/png"}

	body, contentType := multipartUpload(t, "file", "foto.png", "image/png", "fake-png-bytes")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	res := decode[UploadResponse](t, w)
	if res.File == nil || res.File.OriginalName != "foto.png" {
		t.Fatalf("response = %+v", res)
	}
	if !strings.HasPrefix(res.URL, "/uploads/") || !strings.HasSuffix(res.URL, ".png") {
		t.Fatalf("url = %q", res.URL)
	}
	if !strings.HasSuffix(f.file.gotStoredName, ".png") {
		t.Fatalf("stored name = %q, extension lost", f.file.gotStoredName)
	}
}

func TestUpload_MissingFileField(t *testing.T) {
	r, _ := newTestRouter(t)

	body, contentType := multipartUpload(t, "wrong", "x.png", "image/png", "data")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUpload_DisallowedType(t *testing.T) {
	r, _ := newTestRouter(t)

	body, contentType := multipartUpload(t, "file", "evil.exe", "application/x-msdownload", "MZ")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestUploadTypeAllowed(t *testing.T) {
	cases := map[string]bool{
		"image/png":          true,
		"IMAGE/JPEG":         true,
		"audio/mpeg":         true,
		"video/mp4":          true,
		"text/plain":         true,
		"application/pdf":    true,
		"application/zip":    true,
		"application/x-zip-compressed":                true,
		"application/vnd.android.package-archive":     true,
		"application/msword":                          true,
		"application/x-msdownload":                    false,
		"application/octet-stream":                    false,
		"":                                            false,
	}
	for mt, want := range cases {
		if got := uploadTypeAllowed(mt); got != want {
			t.Fatalf("uploadTypeAllowed(%q) = %v, want %v", mt, got, want)
		}
	}
}

func TestListFiles(t *testing.T) {
	r, f := newTestRouter(t)
	f.file.listItems = []domain.UploadedFile{{ID: 1, FileName: "a.txt"}}

	w := doJSON(t, r, http.MethodGet, "/files", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	res := decode[ListFilesResponse](t, w)
	if len(res.Files) != 1 || res.Files[0].FileName != "a.txt" {
		t.Fatalf("files = %+v", res.Files)
	}
}

//
// Helpers
//

func TestSanitizeContent(t *testing.T) {
	cases := map[string]string{
		"a\r\nb":          "a\nb",
		"a\rb":            "a\nb",
		"a\n\n\n\n\nb":    "a\n\nb",
		"  trimmed  ":     "trimmed",
		"multi\n\npara":   "multi\n\npara",
	}
	for in, want := range cases {
		if got := sanitizeContent(in); got != want {
			t.Fatalf("sanitizeContent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		query    string
		page     int
		pageSize int
	}{
		{"", 1, 20},
		{"page=3&page_size=50", 3, 50},
		{"page=-1&page_size=0", 1, 1},
		{"page=abc&page_size=xyz", 1, 20},
		{"page_size=1000", 1, 100},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/x?"+tc.query, nil)
		page, pageSize := clampPagination(c)
		if page != tc.page || pageSize != tc.pageSize {
			t.Fatalf("query %q: page=%d pageSize=%d, want %d/%d", tc.query, page, pageSize, tc.page, tc.pageSize)
		}
	}
}

func TestPaginationOf(t *testing.T) {
	p := paginationOf(2, 10, 25)
	if p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("pagination = %+v", p)
	}
	last := paginationOf(3, 10, 25)
	if last.HasNext {
		t.Fatalf("last page should not have next: %+v", last)
	}
}

func TestUserID_HeaderFallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := userID(c); got != "demo-user" {
		t.Fatalf("default user = %q", got)
	}

	c.Request.Header.Set("X-User-ID", "user123")
	if got := userID(c); got != "user123" {
		t.Fatalf("header user = %q", got)
	}

	c.Set("userID", "ctx-user")
	if got := userID(c); got != "ctx-user" {
		t.Fatalf("context user = %q", got)
	}
}
