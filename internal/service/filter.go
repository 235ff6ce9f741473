package service

import (
	"strings"

	"clubexpense/internal/model"
)

const statusAll = "all"

// HistoryFilter 申请履历的筛选条件，零值表示不过滤
type HistoryFilter struct {
	Status    string
	MonthFrom string // YYYY-MM
	MonthTo   string // YYYY-MM
	Keyword   string
}

// FilterHistory 记载日或申请日的年月任一落在范围内即命中
func FilterHistory(requests []*model.Request, f HistoryFilter) []*model.Request {
	keyword := strings.ToLower(strings.TrimSpace(f.Keyword))
	inRange := func(month string) bool {
		if month == "" {
			return false
		}
		if f.MonthFrom != "" && month < f.MonthFrom {
			return false
		}
		if f.MonthTo != "" && month > f.MonthTo {
			return false
		}
		return true
	}

	result := make([]*model.Request, 0, len(requests))
	for _, r := range requests {
		if !statusMatches(r.Status, f.Status) {
			continue
		}
		if f.MonthFrom != "" || f.MonthTo != "" {
			if !inRange(dateMonth(r.Date)) && !inRange(r.CreatedAt.Format("2006-01")) {
				continue
			}
		}
		if keyword != "" && !containsAny(keyword, r.Category, r.Reason, r.ApplicantName) {
			continue
		}
		result = append(result, r)
	}
	return result
}

// SearchFilter 管理画面横断检索条件
type SearchFilter struct {
	ClubID  int64
	Status  string
	Month   string // YYYY-MM
	Keyword string
}

// FilterSearch 关键字额外匹配部活动名
func FilterSearch(requests []*model.Request, clubNames map[int64]string, f SearchFilter) []*model.Request {
	keyword := strings.ToLower(strings.TrimSpace(f.Keyword))

	result := make([]*model.Request, 0, len(requests))
	for _, r := range requests {
		if f.ClubID > 0 && r.ClubID != f.ClubID {
			continue
		}
		if !statusMatches(r.Status, f.Status) {
			continue
		}
		if f.Month != "" && dateMonth(r.Date) != f.Month && r.CreatedAt.Format("2006-01") != f.Month {
			continue
		}
		if keyword != "" && !containsAny(keyword, r.Category, r.Reason, r.ApplicantName, clubNameOf(clubNames, r.ClubID)) {
			continue
		}
		result = append(result, r)
	}
	return result
}

func statusMatches(status, want string) bool {
	return want == "" || want == statusAll || status == want
}

func containsAny(keyword string, fields ...string) bool {
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), keyword) {
			return true
		}
	}
	return false
}
