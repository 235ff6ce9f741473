package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"clubexpense/internal/config"
	"clubexpense/internal/service"
	"clubexpense/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg              *config.Config
	userService      *service.UserService
	requestService   *service.RequestService
	dashboardService *service.DashboardService
	adminService     *service.AdminService
}

// NewHandler 创建处理器实例，locker 为 nil 时不使用分布式锁
func NewHandler(db *gorm.DB, blobs service.BlobStore, locker service.RequestLocker, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:              cfg,
		userService:      service.NewUserService(db, logger),
		requestService:   service.NewRequestService(db, blobs, locker, cfg, logger),
		dashboardService: service.NewDashboardService(db, blobs, cfg, logger),
		adminService:     service.NewAdminService(db, blobs, cfg, logger),
	}
}

func authUID(c *gin.Context) string {
	return c.GetString(ContextAuthUID)
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "IDが不正です。")
		return 0, false
	}
	return id, true
}

// ============================================================
// 初期设定
// ============================================================

// ListClubs 可选择的部活动
// GET /api/v1/clubs
func (h *Handler) ListClubs(c *gin.Context) {
	clubs, err := h.userService.ListClubs(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, clubs)
}

// SetupRequest 初期设定请求，club_id 与 club_name 二选一
type SetupRequest struct {
	LastName    string `json:"last_name" binding:"required"`
	FirstName   string `json:"first_name" binding:"required"`
	ClubID      int64  `json:"club_id"`
	ClubName    string `json:"club_name"`
	TotalBudget *int64 `json:"total_budget"`
}

// Setup 初期设定
// POST /api/v1/setup
func (h *Handler) Setup(c *gin.Context) {
	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "姓と名を入力してください。")
		return
	}

	user, err := h.userService.Setup(c.Request.Context(), authUID(c), &service.SetupInput{
		LastName:    req.LastName,
		FirstName:   req.FirstName,
		ClubID:      req.ClubID,
		ClubName:    req.ClubName,
		TotalBudget: req.TotalBudget,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, user)
}

// ============================================================
// 成员
// ============================================================

// Dashboard 预算消耗与申请履历
// GET /api/v1/dashboard?status=&month_from=&month_to=&keyword=
func (h *Handler) Dashboard(c *gin.Context) {
	result, err := h.dashboardService.Dashboard(c.Request.Context(), authUID(c), service.HistoryFilter{
		Status:    c.Query("status"),
		MonthFrom: c.Query("month_from"),
		MonthTo:   c.Query("month_to"),
		Keyword:   c.Query("keyword"),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// CreateRequest 提交申请，multipart 表单，items 为 JSON 字符串
// POST /api/v1/requests
func (h *Handler) CreateRequest(c *gin.Context) {
	items, err := service.ParseItems(c.PostForm("items"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	receipt, ok := h.readReceipt(c)
	if !ok {
		return
	}

	result, err := h.requestService.Create(c.Request.Context(), authUID(c), &service.CreateRequestInput{
		Details: service.RequestDetails{
			Date:          c.PostForm("date"),
			JobTitle:      c.PostForm("job_title"),
			ApplicantName: c.PostForm("applicant_name"),
			Category:      c.PostForm("category"),
			Reason:        c.PostForm("reason"),
			Payee:         c.PostForm("payee"),
		},
		Items:   items,
		Receipt: receipt,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// GetRequest 申请详情
// GET /api/v1/requests/:id
func (h *Handler) GetRequest(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	result, err := h.requestService.Get(c.Request.Context(), authUID(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// ResubmitRequest 修改差し戻された申请并再提出，未传的字段保持原值
// POST /api/v1/requests/:id/resubmit
func (h *Handler) ResubmitRequest(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	in := &service.ResubmitInput{
		Patch: service.RequestPatch{
			Date:          optionalForm(c, "date"),
			JobTitle:      optionalForm(c, "job_title"),
			ApplicantName: optionalForm(c, "applicant_name"),
			Category:      optionalForm(c, "category"),
			Reason:        optionalForm(c, "reason"),
			Payee:         optionalForm(c, "payee"),
		},
	}

	if raw, exists := c.GetPostForm("items"); exists {
		items, err := service.ParseItems(raw)
		if err != nil {
			response.FromError(c, err)
			return
		}
		in.Items = items
	}

	receipt, ok := h.readReceipt(c)
	if !ok {
		return
	}
	in.Receipt = receipt

	result, err := h.requestService.Resubmit(c.Request.Context(), authUID(c), id, in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// ApproveBody 承认请求
type ApproveBody struct {
	Role         string `json:"role" binding:"required"`
	ApproverName string `json:"approver_name"`
}

// ApproveRequest 以指定役職承认
// POST /api/v1/requests/:id/approve
func (h *Handler) ApproveRequest(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req ApproveBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "承認する役職を選択してください。")
		return
	}

	result, err := h.requestService.Approve(c.Request.Context(), authUID(c), id, req.Role, req.ApproverName)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// RejectBody 差し戻し请求
type RejectBody struct {
	Reason       string `json:"reason"`
	RejectorName string `json:"rejector_name"`
}

// RejectRequest 差し戻し
// POST /api/v1/requests/:id/reject
func (h *Handler) RejectRequest(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req RejectBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "差し戻し理由を入力してください。")
		return
	}

	result, err := h.requestService.Reject(c.Request.Context(), authUID(c), id, req.Reason, req.RejectorName)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 管理画面
// ============================================================

// AdminClubs 全部活动预算一览
// GET /api/v1/admin/clubs
func (h *Handler) AdminClubs(c *gin.Context) {
	result, err := h.adminService.ClubOverview(c.Request.Context(), authUID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// AdminClubDetail 部活动的分类、月度合计
// GET /api/v1/admin/clubs/:id
func (h *Handler) AdminClubDetail(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	result, err := h.adminService.ClubDetail(c.Request.Context(), authUID(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// AdminPending 决裁待ち一览
// GET /api/v1/admin/pending
func (h *Handler) AdminPending(c *gin.Context) {
	result, err := h.adminService.PendingRequests(c.Request.Context(), authUID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// AdminSearch 横断检索
// GET /api/v1/admin/requests?club_id=&status=&month=&keyword=
func (h *Handler) AdminSearch(c *gin.Context) {
	filter, ok := searchFilter(c)
	if !ok {
		return
	}

	result, err := h.adminService.Search(c.Request.Context(), authUID(c), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// AdminExport 检索结果导出 xlsx
// GET /api/v1/admin/requests/export
func (h *Handler) AdminExport(c *gin.Context) {
	filter, ok := searchFilter(c)
	if !ok {
		return
	}

	data, err := h.adminService.ExportSearch(c.Request.Context(), authUID(c), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}

	filename := fmt.Sprintf("requests_%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// AdminRequestDetail 申请详情
// GET /api/v1/admin/requests/:id
func (h *Handler) AdminRequestDetail(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	result, err := h.adminService.RequestDetail(c.Request.Context(), authUID(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// AdminSlip 承认单
// GET /api/v1/admin/requests/:id/slip
func (h *Handler) AdminSlip(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	result, err := h.adminService.ApprovalSlip(c.Request.Context(), authUID(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

func searchFilter(c *gin.Context) (service.SearchFilter, bool) {
	filter := service.SearchFilter{
		Status:  c.Query("status"),
		Month:   c.Query("month"),
		Keyword: c.Query("keyword"),
	}
	if raw := c.Query("club_id"); raw != "" && raw != "all" {
		clubID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.ParamError(c, "club_id が不正です。")
			return filter, false
		}
		filter.ClubID = clubID
	}
	return filter, true
}

// optionalForm 表单中存在该字段时返回其值
func optionalForm(c *gin.Context, key string) *string {
	if v, exists := c.GetPostForm(key); exists {
		return &v
	}
	return nil
}

// readReceipt 读取可选的 receipt 文件，超过上限的部分不读入内存
func (h *Handler) readReceipt(c *gin.Context) (*service.ReceiptUpload, bool) {
	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, true
		}
		response.ParamError(c, "領収書の読み込みに失敗しました。")
		return nil, false
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.ParamError(c, "領収書の読み込みに失敗しました。")
		return nil, false
	}
	defer file.Close()

	limit := h.cfg.Business.MaxReceiptBytes
	reader := io.Reader(file)
	if limit > 0 {
		reader = io.LimitReader(file, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		response.ParamError(c, "領収書の読み込みに失敗しました。")
		return nil, false
	}

	return &service.ReceiptUpload{FileName: fileHeader.Filename, Data: data}, true
}
