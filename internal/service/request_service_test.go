package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"clubexpense/internal/config"
	"clubexpense/internal/infrastructure/lock"
	"clubexpense/internal/model"
	"clubexpense/internal/repository"
	"clubexpense/internal/testutil"
	"clubexpense/pkg/apperr"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	cfg      *config.Config
	blobs    *testutil.MemoryBlobStore
	requests *RequestService
	club     *model.Club
	member   *model.User
	other    *model.User
	admin    *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := testutil.TestConfig()
	blobs := testutil.NewMemoryBlobStore()

	club := testutil.SeedClub(t, db, "サッカー部", 100000)
	f := &fixture{
		db:     db,
		cfg:    cfg,
		blobs:  blobs,
		club:   club,
		member: testutil.SeedUser(t, db, club, "uid-member", "佐藤 一郎", model.UserRoleMember),
		other:  testutil.SeedUser(t, db, club, "uid-other", "鈴木 次郎", model.UserRoleMember),
		admin:  testutil.SeedUser(t, db, club, "uid-admin", "山田 花子", model.UserRoleGlobalAdmin),
	}
	f.requests = NewRequestService(db, blobs, nil, cfg, zaptest.NewLogger(t))
	return f
}

func validDetails() RequestDetails {
	return RequestDetails{
		Date:          "2024-04-15",
		JobTitle:      "顧問",
		ApplicantName: "佐藤 一郎",
		Category:      "備品",
		Reason:        "練習用ボール",
		Payee:         "スポーツ店",
	}
}

func ballItems() []ItemInput {
	return []ItemInput{
		{ItemName: "Ball", Quantity: Number("2"), UnitPrice: Number("1500")},
		{ItemName: "", Quantity: Number("1"), UnitPrice: Number("999")},
	}
}

func (f *fixture) create(t *testing.T) *RequestView {
	t.Helper()
	view, err := f.requests.Create(context.Background(), f.member.AuthUID, &CreateRequestInput{
		Details: validDetails(),
		Items:   ballItems(),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return view
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestCreate_FiltersBlankItemsAndComputesTotal(t *testing.T) {
	f := newFixture(t)
	view := f.create(t)

	if !view.TotalAmount.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("total = %s, want 3000", view.TotalAmount)
	}
	if view.Status != model.RequestStatusSubmitted {
		t.Errorf("status = %s, want submitted", view.Status)
	}
	if view.RevisionNumber != 1 {
		t.Errorf("revision = %d, want 1", view.RevisionNumber)
	}
	if len(view.Flow()) != 0 || view.RejectionReason != nil {
		t.Errorf("new request should have empty flow and no rejection reason")
	}

	items, err := repository.NewItemRepository(f.db).ListByRequest(context.Background(), view.ID)
	if err != nil {
		t.Fatalf("ListByRequest: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("persisted items = %d, want 1", len(items))
	}
	item := items[0]
	if item.ItemName != "Ball" || !item.Quantity.Equal(decimal.NewFromInt(2)) ||
		!item.UnitPrice.Equal(decimal.NewFromInt(1500)) || !item.Amount.Equal(decimal.NewFromInt(3000)) || item.SortOrder != 0 {
		t.Errorf("unexpected item: %+v", item)
	}

	stored, err := repository.NewRequestRepository(f.db).GetByID(context.Background(), view.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !stored.TotalAmount.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("stored total = %s, want 3000", stored.TotalAmount)
	}
	if !strings.HasPrefix(stored.RequestNo, "KS") {
		t.Errorf("request no = %s, want KS prefix", stored.RequestNo)
	}

	events, err := repository.NewOutboxRepository(f.db).ListByAggregate(context.Background(), view.ID)
	if err != nil {
		t.Fatalf("ListByAggregate: %v", err)
	}
	if len(events) != 1 || events[0].EventType != model.EventRequestSubmitted {
		t.Errorf("events = %+v, want one submitted event", events)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input *CreateRequestInput
	}{
		{"missing applicant", &CreateRequestInput{
			Details: RequestDetails{Date: "2024-04-15", JobTitle: "顧問"},
			Items:   ballItems(),
		}},
		{"only blank items", &CreateRequestInput{
			Details: validDetails(),
			Items:   []ItemInput{{ItemName: "  ", Quantity: Number("1"), UnitPrice: Number("100")}},
		}},
		{"negative price", &CreateRequestInput{
			Details: validDetails(),
			Items:   []ItemInput{{ItemName: "Ball", Quantity: Number("1"), UnitPrice: Number("-100")}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.requests.Create(ctx, f.member.AuthUID, tt.input)
			assertKind(t, err, apperr.KindValidation)
		})
	}

	var count int64
	f.db.Model(&model.Request{}).Count(&count)
	if count != 0 {
		t.Errorf("requests = %d, want 0 after validation failures", count)
	}
}

func TestCreate_UnknownCaller(t *testing.T) {
	f := newFixture(t)
	_, err := f.requests.Create(context.Background(), "uid-nobody", &CreateRequestInput{
		Details: validDetails(),
		Items:   ballItems(),
	})
	assertKind(t, err, apperr.KindAuth)
}

func TestCreate_ReceiptUploadFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.blobs.FailPut = true

	_, err := f.requests.Create(context.Background(), f.member.AuthUID, &CreateRequestInput{
		Details: validDetails(),
		Items:   ballItems(),
		Receipt: &ReceiptUpload{FileName: "receipt.png", Data: pngBytes(t, 40, 30)},
	})
	assertKind(t, err, apperr.KindStorage)

	var count int64
	f.db.Model(&model.Request{}).Count(&count)
	if count != 0 {
		t.Errorf("requests = %d, want 0 when blob write fails", count)
	}
}

func TestCreate_StoresReceiptAndThumbnail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.requests.Create(ctx, f.member.AuthUID, &CreateRequestInput{
		Details: validDetails(),
		Items:   ballItems(),
		Receipt: &ReceiptUpload{FileName: "領収書 01.png", Data: pngBytes(t, 400, 300)},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if view.ReceiptPath == nil {
		t.Fatal("receipt path not set")
	}

	path := *view.ReceiptPath
	if !strings.HasPrefix(path, "1/") || !strings.HasSuffix(path, "_____01.png") {
		t.Errorf("receipt path = %s", path)
	}
	if _, contentType, ok := f.blobs.Object(path); !ok || contentType != "image/png" {
		t.Errorf("receipt not stored as image/png: ok=%v type=%s", ok, contentType)
	}
	if _, contentType, ok := f.blobs.Object(ThumbnailPath(path)); !ok || contentType != "image/jpeg" {
		t.Errorf("thumbnail not stored: ok=%v type=%s", ok, contentType)
	}

	detail, err := f.requests.Get(ctx, f.member.AuthUID, view.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if detail.ReceiptURL == "" {
		t.Error("expected signed receipt url")
	}
	if detail.ClubName != "サッカー部" || len(detail.Items) != 1 {
		t.Errorf("unexpected detail: club=%s items=%d", detail.ClubName, len(detail.Items))
	}
}

func TestCreate_RejectsUnsupportedReceipt(t *testing.T) {
	f := newFixture(t)
	_, err := f.requests.Create(context.Background(), f.member.AuthUID, &CreateRequestInput{
		Details: validDetails(),
		Items:   ballItems(),
		Receipt: &ReceiptUpload{FileName: "memo.txt", Data: []byte("just some text")},
	})
	assertKind(t, err, apperr.KindValidation)
	if len(f.blobs.Paths()) != 0 {
		t.Errorf("nothing should be uploaded, got %v", f.blobs.Paths())
	}
}

func TestApprove_FiveRolesCloseRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.create(t)

	for i, role := range model.ApprovalRoles[:4] {
		req, err := f.requests.Approve(ctx, f.admin.AuthUID, view.ID, role, "")
		if err != nil {
			t.Fatalf("approve %s: %v", role, err)
		}
		if req.Status != model.RequestStatusSubmitted {
			t.Fatalf("after %d approvals status = %s, want submitted", i+1, req.Status)
		}
		if len(req.Flow()) != i+1 {
			t.Fatalf("flow length = %d, want %d", len(req.Flow()), i+1)
		}
	}

	req, err := f.requests.Approve(ctx, f.admin.AuthUID, view.ID, model.ApprovalRoleBoardChairman, "理事長 太郎")
	if err != nil {
		t.Fatalf("approve 理事長: %v", err)
	}
	if req.Status != model.RequestStatusApproved {
		t.Fatalf("status = %s, want approved", req.Status)
	}
	if !req.Flow().Complete() {
		t.Error("flow should be complete")
	}

	entry, _ := req.Flow().Entry(model.ApprovalRoleDepartment)
	if entry.Name != "山田 花子" {
		t.Errorf("approver name fallback = %q, want caller display name", entry.Name)
	}
	entry, _ = req.Flow().Entry(model.ApprovalRoleBoardChairman)
	if entry.Name != "理事長 太郎" {
		t.Errorf("explicit approver name = %q", entry.Name)
	}

	_, err = f.requests.Approve(ctx, f.admin.AuthUID, view.ID, model.ApprovalRoleDepartment, "")
	assertKind(t, err, apperr.KindDuplicateApproval)
	if !strings.Contains(err.Error(), model.ApprovalRoleDepartment) {
		t.Errorf("duplicate error should name the role: %v", err)
	}

	events, _ := repository.NewOutboxRepository(f.db).ListByAggregate(ctx, view.ID)
	if last := events[len(events)-1]; last.EventType != model.EventRequestApproved {
		t.Errorf("last event = %s, want approved", last.EventType)
	}
}

func TestApprove_OrderIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.create(t)

	roles := []string{
		model.ApprovalRoleBoardChairman,
		model.ApprovalRoleDeputyHead,
		model.ApprovalRoleDepartment,
		model.ApprovalRolePrincipal,
		model.ApprovalRoleVicePrincipal,
	}
	var req *model.Request
	var err error
	for _, role := range roles {
		if req, err = f.requests.Approve(ctx, f.member.AuthUID, view.ID, role, ""); err != nil {
			t.Fatalf("approve %s: %v", role, err)
		}
	}
	if req.Status != model.RequestStatusApproved {
		t.Errorf("status = %s, want approved", req.Status)
	}
	for i, entry := range req.Flow() {
		if entry.Role != roles[i] {
			t.Errorf("flow[%d] = %s, want insertion order %s", i, entry.Role, roles[i])
		}
	}
}

func TestApprove_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.create(t)

	_, err := f.requests.Approve(ctx, "uid-nobody", view.ID, model.ApprovalRolePrincipal, "")
	assertKind(t, err, apperr.KindAuth)

	_, err = f.requests.Approve(ctx, f.admin.AuthUID, 9999, model.ApprovalRolePrincipal, "")
	assertKind(t, err, apperr.KindNotFound)

	_, err = f.requests.Approve(ctx, f.admin.AuthUID, view.ID, "会計", "")
	assertKind(t, err, apperr.KindValidation)

	if _, err := f.requests.Reject(ctx, f.admin.AuthUID, view.ID, "金額不明確", ""); err != nil {
		t.Fatalf("reject: %v", err)
	}
	_, err = f.requests.Approve(ctx, f.admin.AuthUID, view.ID, model.ApprovalRolePrincipal, "")
	assertKind(t, err, apperr.KindInvalidTransition)
}

func TestApprove_RequiresName(t *testing.T) {
	f := newFixture(t)
	nameless := testutil.SeedUser(t, f.db, f.club, "uid-nameless", "", model.UserRoleMember)
	view := f.create(t)

	_, err := f.requests.Approve(context.Background(), nameless.AuthUID, view.ID, model.ApprovalRolePrincipal, "  ")
	assertKind(t, err, apperr.KindValidation)
}

func TestApprove_DraftTolerated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := testutil.SeedRequest(t, f.db, f.member, testutil.RequestSeed{Status: model.RequestStatusDraft, Amount: 1000})

	req, err := f.requests.Approve(ctx, f.admin.AuthUID, draft.ID, model.ApprovalRolePrincipal, "")
	if err != nil {
		t.Fatalf("approve draft: %v", err)
	}
	if req.Status != model.RequestStatusDraft || len(req.Flow()) != 1 {
		t.Errorf("draft should pass through unchanged: status=%s flow=%d", req.Status, len(req.Flow()))
	}
}

func TestApprove_EnforcedRoles(t *testing.T) {
	f := newFixture(t)
	f.cfg.Business.EnforceApproverRoles = true
	ctx := context.Background()
	view := f.create(t)

	vp := testutil.SeedUser(t, f.db, f.club, "uid-vp", "教頭 先生", model.UserRoleApprover)
	if err := f.db.Model(vp).Update("approver_role", model.ApprovalRoleVicePrincipal).Error; err != nil {
		t.Fatalf("set approver role: %v", err)
	}

	_, err := f.requests.Approve(ctx, f.member.AuthUID, view.ID, model.ApprovalRoleVicePrincipal, "")
	assertKind(t, err, apperr.KindForbidden)

	_, err = f.requests.Approve(ctx, vp.AuthUID, view.ID, model.ApprovalRolePrincipal, "")
	assertKind(t, err, apperr.KindForbidden)

	if _, err := f.requests.Approve(ctx, vp.AuthUID, view.ID, model.ApprovalRoleVicePrincipal, ""); err != nil {
		t.Fatalf("approver with matching role: %v", err)
	}
	if _, err := f.requests.Approve(ctx, f.admin.AuthUID, view.ID, model.ApprovalRolePrincipal, ""); err != nil {
		t.Fatalf("global admin: %v", err)
	}
}

func TestApprove_ConcurrentDistinctRoles(t *testing.T) {
	f := newFixture(t)
	view := f.create(t)

	var wg sync.WaitGroup
	errs := make([]error, len(model.ApprovalRoles))
	for i, role := range model.ApprovalRoles {
		wg.Add(1)
		go func(i int, role string) {
			defer wg.Done()
			_, errs[i] = f.requests.Approve(context.Background(), f.admin.AuthUID, view.ID, role, "")
		}(i, role)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("approve %s: %v", model.ApprovalRoles[i], err)
		}
	}

	req, err := repository.NewRequestRepository(f.db).GetByID(context.Background(), view.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(req.Flow()) != len(model.ApprovalRoles) {
		t.Fatalf("flow length = %d, want %d", len(req.Flow()), len(model.ApprovalRoles))
	}
	seen := map[string]bool{}
	for _, e := range req.Flow() {
		if seen[e.Role] {
			t.Errorf("duplicate role %s", e.Role)
		}
		seen[e.Role] = true
	}
	if req.Status != model.RequestStatusApproved {
		t.Errorf("status = %s, want approved", req.Status)
	}
}

func TestApprove_ConcurrentSameRole(t *testing.T) {
	f := newFixture(t)
	view := f.create(t)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.requests.Approve(context.Background(), f.admin.AuthUID, view.ID, model.ApprovalRolePrincipal, "")
		}(i)
	}
	wg.Wait()

	success := 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case apperr.Is(err, apperr.KindDuplicateApproval):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Errorf("successful approvals = %d, want 1", success)
	}
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.create(t)

	if _, err := f.requests.Approve(ctx, f.admin.AuthUID, view.ID, model.ApprovalRoleDepartment, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, err := f.requests.Reject(ctx, f.admin.AuthUID, view.ID, "   ", "")
	assertKind(t, err, apperr.KindValidation)

	req, err := f.requests.Reject(ctx, f.admin.AuthUID, view.ID, "  金額不明確 ", "")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if req.Status != model.RequestStatusRejected {
		t.Errorf("status = %s, want rejected", req.Status)
	}
	if req.RejectionReason == nil || *req.RejectionReason != "山田 花子: 金額不明確" {
		t.Errorf("rejection reason = %v", req.RejectionReason)
	}
	if len(req.Flow()) != 1 {
		t.Errorf("flow should be preserved on rejection, got %d entries", len(req.Flow()))
	}

	_, err = f.requests.Reject(ctx, f.admin.AuthUID, view.ID, "再度", "")
	assertKind(t, err, apperr.KindInvalidTransition)
}

func TestReject_ApprovedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.create(t)
	for _, role := range model.ApprovalRoles {
		if _, err := f.requests.Approve(ctx, f.admin.AuthUID, view.ID, role, ""); err != nil {
			t.Fatalf("approve %s: %v", role, err)
		}
	}

	_, err := f.requests.Reject(ctx, f.admin.AuthUID, view.ID, "やはり不要", "教頭")
	assertKind(t, err, apperr.KindInvalidTransition)
}

func TestResubmit_ResetsWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.create(t)

	if _, err := f.requests.Approve(ctx, f.admin.AuthUID, view.ID, model.ApprovalRolePrincipal, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.requests.Reject(ctx, f.admin.AuthUID, view.ID, "金額不明確", ""); err != nil {
		t.Fatalf("reject: %v", err)
	}

	reason := "試合用ボール"
	result, err := f.requests.Resubmit(ctx, f.member.AuthUID, view.ID, &ResubmitInput{
		Patch: RequestPatch{Reason: &reason},
		Items: []ItemInput{
			{ItemName: "試合球", Quantity: Number("2"), UnitPrice: Number("2000")},
			{ItemName: "空気入れ", UnitPrice: Number("1000")},
		},
	})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	if result.Status != model.RequestStatusSubmitted {
		t.Errorf("status = %s, want submitted", result.Status)
	}
	if result.RevisionNumber != 2 {
		t.Errorf("revision = %d, want 2", result.RevisionNumber)
	}
	if len(result.Flow()) != 0 {
		t.Errorf("flow should be reset, got %d entries", len(result.Flow()))
	}
	if result.RejectionReason != nil {
		t.Errorf("rejection reason should be cleared, got %q", *result.RejectionReason)
	}
	if !result.TotalAmount.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("total = %s, want 5000", result.TotalAmount)
	}
	if result.Reason != reason || result.JobTitle != "顧問" {
		t.Errorf("patch not applied correctly: reason=%s job=%s", result.Reason, result.JobTitle)
	}
	if len(result.Items) != 2 || result.Items[1].ItemName != "空気入れ" || result.Items[1].SortOrder != 1 {
		t.Errorf("items not replaced: %+v", result.Items)
	}

	// 再提出后可以再次承认
	if _, err := f.requests.Approve(ctx, f.admin.AuthUID, view.ID, model.ApprovalRolePrincipal, ""); err != nil {
		t.Errorf("approve after resubmit: %v", err)
	}
}

func TestResubmit_KeepsItemsAndReceiptWhenOmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.requests.Create(ctx, f.member.AuthUID, &CreateRequestInput{
		Details: validDetails(),
		Items:   ballItems(),
		Receipt: &ReceiptUpload{FileName: "r.png", Data: pngBytes(t, 10, 10)},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.requests.Reject(ctx, f.admin.AuthUID, view.ID, "日付誤り", ""); err != nil {
		t.Fatalf("reject: %v", err)
	}

	uploads := len(f.blobs.Paths())
	date := "2024-04-20"
	result, err := f.requests.Resubmit(ctx, f.member.AuthUID, view.ID, &ResubmitInput{Patch: RequestPatch{Date: &date}})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	if result.Date != date {
		t.Errorf("date = %s, want %s", result.Date, date)
	}
	if !result.TotalAmount.Equal(decimal.NewFromInt(3000)) || len(result.Items) != 1 {
		t.Errorf("items should be kept: total=%s items=%d", result.TotalAmount, len(result.Items))
	}
	if result.ReceiptPath == nil || *result.ReceiptPath != *view.ReceiptPath {
		t.Errorf("receipt path should be kept")
	}
	if len(f.blobs.Paths()) != uploads {
		t.Errorf("no upload expected without a new file")
	}
}

func TestResubmit_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.create(t)

	_, err := f.requests.Resubmit(ctx, f.member.AuthUID, view.ID, &ResubmitInput{})
	assertKind(t, err, apperr.KindInvalidTransition)

	if _, err := f.requests.Reject(ctx, f.admin.AuthUID, view.ID, "金額不明確", ""); err != nil {
		t.Fatalf("reject: %v", err)
	}

	_, err = f.requests.Resubmit(ctx, f.other.AuthUID, view.ID, &ResubmitInput{})
	assertKind(t, err, apperr.KindForbidden)

	_, err = f.requests.Resubmit(ctx, f.member.AuthUID, 9999, &ResubmitInput{})
	assertKind(t, err, apperr.KindNotFound)

	_, err = f.requests.Resubmit(ctx, f.member.AuthUID, view.ID, &ResubmitInput{Items: []ItemInput{}})
	assertKind(t, err, apperr.KindValidation)

	empty := ""
	_, err = f.requests.Resubmit(ctx, f.member.AuthUID, view.ID, &ResubmitInput{Patch: RequestPatch{ApplicantName: &empty}})
	assertKind(t, err, apperr.KindValidation)

	req, _ := repository.NewRequestRepository(f.db).GetByID(ctx, view.ID)
	if req.Status != model.RequestStatusRejected || req.RevisionNumber != 1 {
		t.Errorf("failed resubmits must not change the request: status=%s revision=%d", req.Status, req.RevisionNumber)
	}
}

func TestResubmit_RevisionIncrementsByOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.create(t)

	for want := 2; want <= 4; want++ {
		if _, err := f.requests.Reject(ctx, f.admin.AuthUID, view.ID, "修正してください", ""); err != nil {
			t.Fatalf("reject: %v", err)
		}
		result, err := f.requests.Resubmit(ctx, f.member.AuthUID, view.ID, &ResubmitInput{})
		if err != nil {
			t.Fatalf("resubmit: %v", err)
		}
		if result.RevisionNumber != want {
			t.Fatalf("revision = %d, want %d", result.RevisionNumber, want)
		}
	}
}

func TestGet_Access(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.create(t)

	otherClub := testutil.SeedClub(t, f.db, "野球部", 50000)
	outsider := testutil.SeedUser(t, f.db, otherClub, "uid-outsider", "田中", model.UserRoleMember)
	advisor := testutil.SeedUser(t, f.db, otherClub, "uid-advisor", "顧問", model.UserRoleAdvisor)

	_, err := f.requests.Get(ctx, outsider.AuthUID, view.ID)
	assertKind(t, err, apperr.KindForbidden)

	if _, err := f.requests.Get(ctx, advisor.AuthUID, view.ID); err != nil {
		t.Errorf("advisor should see request: %v", err)
	}
	if _, err := f.requests.Get(ctx, f.other.AuthUID, view.ID); err != nil {
		t.Errorf("club member should see request: %v", err)
	}
}

func TestCreate_KeepsFreeFormDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, date := range []string{"2024/04/15", "令和6年4月15日", "2024-04"} {
		details := validDetails()
		details.Date = date
		view, err := f.requests.Create(ctx, f.member.AuthUID, &CreateRequestInput{Details: details, Items: ballItems()})
		if err != nil {
			t.Fatalf("Create(%q): %v", date, err)
		}
		if view.Date != date {
			t.Errorf("date = %q, want %q", view.Date, date)
		}
	}
}

func TestDeletedRequest_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	submitted := testutil.SeedRequest(t, f.db, f.member, testutil.RequestSeed{Amount: 1000})
	rejected := testutil.SeedRequest(t, f.db, f.member, testutil.RequestSeed{Status: model.RequestStatusRejected, Amount: 2000})
	testutil.SoftDelete(t, f.db, submitted)
	testutil.SoftDelete(t, f.db, rejected)

	_, err := f.requests.Approve(ctx, f.admin.AuthUID, submitted.ID, model.ApprovalRolePrincipal, "校長")
	assertKind(t, err, apperr.KindNotFound)
	_, err = f.requests.Reject(ctx, f.admin.AuthUID, submitted.ID, "金額不明確", "")
	assertKind(t, err, apperr.KindNotFound)
	_, err = f.requests.Resubmit(ctx, f.member.AuthUID, rejected.ID, &ResubmitInput{})
	assertKind(t, err, apperr.KindNotFound)
	_, err = f.requests.Get(ctx, f.member.AuthUID, submitted.ID)
	assertKind(t, err, apperr.KindNotFound)
}

func TestDeletedUser_Auth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.create(t)

	testutil.SoftDelete(t, f.db, f.admin)

	_, err := f.requests.Approve(ctx, f.admin.AuthUID, view.ID, model.ApprovalRolePrincipal, "校長")
	assertKind(t, err, apperr.KindAuth)
	_, err = f.requests.Create(ctx, f.admin.AuthUID, &CreateRequestInput{Details: validDetails(), Items: ballItems()})
	assertKind(t, err, apperr.KindAuth)
}

type stubLocker struct {
	err error
}

func (l stubLocker) Lock(ctx context.Context, requestID int64, owner string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

func TestApprove_LockErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.create(t)

	busy := NewRequestService(f.db, f.blobs, stubLocker{err: lock.ErrLockFailed}, f.cfg, zaptest.NewLogger(t))
	_, err := busy.Approve(ctx, f.admin.AuthUID, view.ID, model.ApprovalRolePrincipal, "校長")
	assertKind(t, err, apperr.KindStaleState)

	broken := NewRequestService(f.db, f.blobs, stubLocker{err: errors.New("connection refused")}, f.cfg, zaptest.NewLogger(t))
	_, err = broken.Approve(ctx, f.admin.AuthUID, view.ID, model.ApprovalRolePrincipal, "校長")
	assertKind(t, err, apperr.KindStorage)

	ok := NewRequestService(f.db, f.blobs, stubLocker{}, f.cfg, zaptest.NewLogger(t))
	if _, err := ok.Approve(ctx, f.admin.AuthUID, view.ID, model.ApprovalRolePrincipal, "校長"); err != nil {
		t.Fatalf("Approve with free lock: %v", err)
	}
}
