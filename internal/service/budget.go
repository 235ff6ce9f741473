package service

import (
	"regexp"
	"sort"
	"strings"

	"clubexpense/internal/model"
	"clubexpense/pkg/money"

	"github.com/shopspring/decimal"
)

// OtherCategory 未填写分类时归入的分类
const OtherCategory = "その他"

// BudgetUsage 部活动预算的消耗情况
type BudgetUsage struct {
	TotalBudget    decimal.Decimal `json:"total_budget"`
	Spent          decimal.Decimal `json:"spent"`
	Remaining      decimal.Decimal `json:"remaining"`
	UsageRatio     float64         `json:"usage_ratio"`
	DisplayPercent float64         `json:"display_percent"` // 展示用，最大 100
	OverBudget     bool            `json:"over_budget"`
	SpentText      string          `json:"spent_text"`
	RemainingText  string          `json:"remaining_text"`
}

// SumSpent 合计 approved / paid 申请的金额
func SumSpent(requests []*model.Request) decimal.Decimal {
	spent := decimal.Zero
	for _, r := range requests {
		if isSpent(r.Status) {
			spent = spent.Add(r.TotalAmount)
		}
	}
	return spent
}

func isSpent(status string) bool {
	for _, s := range model.SpentStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// ComputeUsage 预算为 0 或负数时使用率为 0；剩余额可以为负
func ComputeUsage(totalBudget, spent decimal.Decimal) BudgetUsage {
	usage := BudgetUsage{
		TotalBudget: totalBudget,
		Spent:       spent,
		Remaining:   totalBudget.Sub(spent),
	}
	if totalBudget.IsPositive() {
		usage.UsageRatio = spent.Div(totalBudget).InexactFloat64()
	}
	usage.DisplayPercent = usage.UsageRatio * 100
	if usage.DisplayPercent > 100 {
		usage.DisplayPercent = 100
	}
	usage.OverBudget = usage.Remaining.IsNegative()
	usage.SpentText = money.FormatYen(usage.Spent)
	usage.RemainingText = money.FormatYen(usage.Remaining)
	return usage
}

type CategoryTotal struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// CategoryBreakdown 按分类合计，金额降序
func CategoryBreakdown(requests []*model.Request) []CategoryTotal {
	totals := make(map[string]decimal.Decimal)
	for _, r := range requests {
		if !isSpent(r.Status) {
			continue
		}
		category := strings.TrimSpace(r.Category)
		if category == "" {
			category = OtherCategory
		}
		totals[category] = totals[category].Add(r.TotalAmount)
	}

	result := make([]CategoryTotal, 0, len(totals))
	for category, amount := range totals {
		result = append(result, CategoryTotal{Category: category, Amount: amount})
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].Amount.Cmp(result[j].Amount); c != 0 {
			return c > 0
		}
		return result[i].Category < result[j].Category
	})
	return result
}

type MonthTotal struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// MonthlyBreakdown 按年月合计，月份升序
func MonthlyBreakdown(requests []*model.Request) []MonthTotal {
	totals := make(map[string]decimal.Decimal)
	for _, r := range requests {
		if !isSpent(r.Status) {
			continue
		}
		month := RequestMonth(r)
		totals[month] = totals[month].Add(r.TotalAmount)
	}

	result := make([]MonthTotal, 0, len(totals))
	for month, amount := range totals {
		result = append(result, MonthTotal{Month: month, Amount: amount})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Month < result[j].Month
	})
	return result
}

var yearMonthPattern = regexp.MustCompile(`^\d{4}-\d{2}`)

// dateMonth 记载日的年月，无法识别时返回空
func dateMonth(date string) string {
	date = strings.TrimSpace(date)
	if !yearMonthPattern.MatchString(date) {
		return ""
	}
	return date[:7]
}

// RequestMonth 记载日的年月，记载日无法识别时使用申请时间
func RequestMonth(r *model.Request) string {
	if month := dateMonth(r.Date); month != "" {
		return month
	}
	return r.CreatedAt.Format("2006-01")
}
