package export

import (
	"fmt"
	"io"
	"time"

	"sessionbook/internal/models"
	"sessionbook/internal/schedule"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Бронирования"

var headers = []string{"ID", "Дата", "Время", "Длительность, мин", "Клиент", "Email", "Телефон", "Статус", "Цена", "Заметки"}

var statusTitles = map[string]string{
	models.StatusBooked:    "Забронировано",
	models.StatusCompleted: "Завершено",
	models.StatusCancelled: "Отменено",
}

// Bookings builds a workbook listing the bookings with local dates and times of zone.
func Bookings(provider *models.Provider, zone *schedule.Zone, from, to time.Time, bookings []*models.Booking) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	// Заголовок периода
	title := fmt.Sprintf("%s: %s - %s (%s)", provider.DisplayName,
		zone.LocalDate(from), zone.LocalDate(to.Add(-time.Second)), zone.Name())
	_ = f.SetCellValue(sheetName, "A1", title)
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	cancelledStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#9C0006", Strike: true},
	})

	var revenue float64
	counts := make(map[string]int)
	row := 3
	for _, b := range bookings {
		values := []interface{}{
			b.ID,
			zone.LocalDate(b.StartAt),
			zone.Label(b.StartAt) + "-" + zone.Label(b.EndAt()),
			b.Duration,
			b.ClientName,
			b.ClientEmail,
			b.ClientPhone,
			statusTitle(b.Status),
			b.Price,
			b.Notes,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}
		if b.Status == models.StatusCancelled {
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(len(headers), row)
			_ = f.SetCellStyle(sheetName, first, last, cancelledStyle)
		}

		counts[b.Status]++
		if b.Status == models.StatusCompleted {
			revenue += b.Price
		}
		row++
	}

	// Итоги
	row++
	summary := [][2]interface{}{
		{"Всего", len(bookings)},
		{statusTitle(models.StatusBooked), counts[models.StatusBooked]},
		{statusTitle(models.StatusCompleted), counts[models.StatusCompleted]},
		{statusTitle(models.StatusCancelled), counts[models.StatusCancelled]},
		{"Выручка (завершено)", revenue},
	}
	for _, line := range summary {
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), line[0])
		_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), line[1])
		row++
	}

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "D", 14)
	_ = f.SetColWidth(sheetName, "E", "G", 25)
	_ = f.SetColWidth(sheetName, "H", "I", 15)
	_ = f.SetColWidth(sheetName, "J", "J", 40)
	return f, nil
}

// Write builds the workbook and streams it to w.
func Write(w io.Writer, provider *models.Provider, zone *schedule.Zone, from, to time.Time, bookings []*models.Booking) error {
	f, err := Bookings(provider, zone, from, to, bookings)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func statusTitle(status string) string {
	if title, ok := statusTitles[status]; ok {
		return title
	}
	return status
}
