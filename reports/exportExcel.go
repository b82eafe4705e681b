package reports

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"
)

// BuildMetricsWorkbook renders the shop's metrics into one workbook:
// an overview sheet, a daily orders sheet and a top customers sheet.
func BuildMetricsWorkbook(ctx context.Context, shopId uint, from time.Time, to time.Time) (*excelize.File, error) {
	overview, err := GetOverviewMetrics(ctx, shopId, from, to)
	if err != nil {
		return nil, err
	}
	byDate, err := GetOrdersByDate(ctx, shopId, from, to)
	if err != nil {
		return nil, err
	}
	topCustomers, err := GetTopCustomersBySpend(ctx, shopId, 10)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()

	sheet := "Overview"
	f.SetSheetName("Sheet1", sheet)
	f.SetCellValue(sheet, "A1", "Metric")
	f.SetCellValue(sheet, "B1", "Value")
	f.SetCellValue(sheet, "A2", "Customers")
	f.SetCellValue(sheet, "B2", overview.CustomerCount)
	f.SetCellValue(sheet, "A3", "Products")
	f.SetCellValue(sheet, "B3", overview.ProductCount)
	f.SetCellValue(sheet, "A4", "Orders")
	f.SetCellValue(sheet, "B4", overview.OrderCount)
	f.SetCellValue(sheet, "A5", "Revenue")
	f.SetCellValue(sheet, "B5", overview.TotalRevenue.String())
	f.SetCellValue(sheet, "A6", "Events (24h)")
	f.SetCellValue(sheet, "B6", overview.EventsLast24h)

	sheet = "OrdersByDate"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	f.SetCellValue(sheet, "A1", "Date")
	f.SetCellValue(sheet, "B1", "Orders")
	f.SetCellValue(sheet, "C1", "Revenue")
	for i, row := range byDate {
		f.SetCellValue(sheet, "A"+fmt.Sprint(i+2), row.Date)
		f.SetCellValue(sheet, "B"+fmt.Sprint(i+2), row.OrderCount)
		f.SetCellValue(sheet, "C"+fmt.Sprint(i+2), row.Revenue.String())
	}

	sheet = "TopCustomers"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}
	f.SetCellValue(sheet, "A1", "Email")
	f.SetCellValue(sheet, "B1", "FirstName")
	f.SetCellValue(sheet, "C1", "LastName")
	f.SetCellValue(sheet, "D1", "TotalSpent")
	f.SetCellValue(sheet, "E1", "OrdersCount")
	for i, row := range topCustomers {
		f.SetCellValue(sheet, "A"+fmt.Sprint(i+2), row.Email)
		f.SetCellValue(sheet, "B"+fmt.Sprint(i+2), row.FirstName)
		f.SetCellValue(sheet, "C"+fmt.Sprint(i+2), row.LastName)
		f.SetCellValue(sheet, "D"+fmt.Sprint(i+2), row.TotalSpent.String())
		f.SetCellValue(sheet, "E"+fmt.Sprint(i+2), row.OrdersCount)
	}

	return f, nil
}

func WriteWorkbook(w http.ResponseWriter, f *excelize.File, filename string) error {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	return f.Write(w)
}
