package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"clubexpense/internal/model"
	"clubexpense/pkg/apperr"

	"github.com/shopspring/decimal"
)

// FlexNumber 明细中的数值，JSON 中可以是数字、数字字符串或 null
type FlexNumber struct {
	raw string
	set bool
}

// Number 用文本构造数值，主要供测试和表单解析使用
func Number(raw string) FlexNumber {
	return FlexNumber{raw: strings.TrimSpace(raw), set: true}
}

func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" {
		*n = FlexNumber{}
		return nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Number(s)
		return nil
	}
	*n = Number(text)
	return nil
}

// resolve 未填写时返回 def；非数值或负数时 ok 为 false
func (n FlexNumber) resolve(def decimal.Decimal) (decimal.Decimal, bool) {
	if !n.set || n.raw == "" {
		return def, true
	}
	d, err := decimal.NewFromString(n.raw)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// ItemInput 提交的明细行
type ItemInput struct {
	ItemName  string     `json:"item_name"`
	Quantity  FlexNumber `json:"quantity"`
	UnitPrice FlexNumber `json:"unit_price"`
}

// ParseItems 解析表单中的明细 JSON，空字符串视为没有明细
func ParseItems(raw string) ([]ItemInput, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var inputs []ItemInput
	if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
		return nil, apperr.Validation("明細データの形式が不正です。")
	}
	return inputs, nil
}

// 数量最多两位小数，单价为整数日元
const quantityScale = 2

// NormalizeItems 丢弃品名为空的行，补全默认值并计算金额与合计
// 数量缺省为 1，单价缺省为 0；非数值或负数返回 ValidationError
func NormalizeItems(inputs []ItemInput) ([]*model.RequestItem, decimal.Decimal, error) {
	one := decimal.NewFromInt(1)
	total := decimal.Zero
	items := make([]*model.RequestItem, 0, len(inputs))

	for _, in := range inputs {
		name := strings.TrimSpace(in.ItemName)
		if name == "" {
			continue
		}

		qty, ok := in.Quantity.resolve(one)
		if !ok || !qty.Equal(qty.Round(quantityScale)) {
			return nil, decimal.Zero, apperr.Validation(fmt.Sprintf("明細「%s」の数量が正しくありません。", name))
		}
		price, ok := in.UnitPrice.resolve(decimal.Zero)
		if !ok || !price.Equal(price.Round(0)) {
			return nil, decimal.Zero, apperr.Validation(fmt.Sprintf("明細「%s」の単価が正しくありません。", name))
		}

		amount := qty.Mul(price)
		items = append(items, &model.RequestItem{
			ItemName:  name,
			Quantity:  qty,
			UnitPrice: price,
			Amount:    amount,
			SortOrder: len(items),
		})
		total = total.Add(amount)
	}

	if len(items) == 0 {
		return nil, decimal.Zero, apperr.Validation("少なくとも1つの明細を入力してください。")
	}
	return items, total, nil
}
