package service

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "申請一覧"

var exportHeaders = []string{"申請番号", "部活動", "記載日", "申請者", "分類", "理由", "支払先", "金額", "状態", "版数", "申請日時"}

// WriteRequestsXLSX 检索结果写入 xlsx，金额列保留数值便于汇总
func WriteRequestsXLSX(rows []*RequestView) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err := f.SetCellStyle(exportSheet, "A1", lastHeader, headerStyle); err != nil {
		return nil, err
	}

	for i, row := range rows {
		r := i + 2
		amount, _ := row.TotalAmount.Round(0).Float64()
		values := []interface{}{
			row.RequestNo,
			row.ClubName,
			row.Date,
			row.ApplicantName,
			row.Category,
			row.Reason,
			row.Payee,
			amount,
			StatusLabel(row.Status),
			row.RevisionNumber,
			row.CreatedAt.Format("2006-01-02 15:04"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, r)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	totalRow := len(rows) + 2
	if len(rows) > 0 {
		label, _ := excelize.CoordinatesToCellName(7, totalRow)
		sum, _ := excelize.CoordinatesToCellName(8, totalRow)
		if err := f.SetCellValue(exportSheet, label, "合計"); err != nil {
			return nil, err
		}
		if err := f.SetCellFormula(exportSheet, sum, fmt.Sprintf("SUM(H2:H%d)", totalRow-1)); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
