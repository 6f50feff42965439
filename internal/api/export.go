package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"secret-santa/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	participantHeader = []string{"ID", "First Name", "Phone Number", "Has Picked", "Picked At", "Assigned To", "SMS Enabled"}
	exclusionHeader   = []string{"Participant", "Cannot Draw", "Reason"}
	deliveryHeader    = []string{"Message Type", "Total", "Sent", "Delivered", "Failed"}
)

type sheet struct {
	name   string
	header []string
	widths []float64
	rows   [][]any
}

// BuildWorkbook renders the game state as an xlsx workbook.
func BuildWorkbook(participants []models.Participant, rules []models.ExclusionRule, delivery []models.DeliveryStats) ([]byte, error) {
	names := make(map[int64]string, len(participants))
	for _, p := range participants {
		names[p.ID] = p.FirstName
	}

	ps := sheet{name: "Participants", header: participantHeader, widths: []float64{8, 20, 20, 12, 20, 20, 12}}
	for _, p := range participants {
		var pickedAt, assignedTo string
		if p.PickedAt != nil {
			pickedAt = p.PickedAt.Format("2006-01-02 15:04:05")
		}
		if p.AssignedToID != nil {
			assignedTo = names[*p.AssignedToID]
		}
		ps.rows = append(ps.rows, []any{p.ID, p.FirstName, p.PhoneNumber, yesNo(p.HasPicked), pickedAt, assignedTo, yesNo(p.Preferences.SMSEnabled)})
	}

	ex := sheet{name: "Exclusions", header: exclusionHeader, widths: []float64{20, 20, 30}}
	for _, r := range rules {
		ex.rows = append(ex.rows, []any{r.ParticipantName, r.ExcludedName, r.Reason})
	}

	dl := sheet{name: "Deliveries", header: deliveryHeader, widths: []float64{20, 10, 10, 10, 10}}
	for _, d := range delivery {
		dl.rows = append(dl.rows, []any{string(d.Type), d.Total, d.Sent, d.Delivered, d.Failed})
	}

	return writeWorkbook(ps, ex, dl)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func writeWorkbook(sheets ...sheet) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, sh := range sheets {
		// The default sheet becomes the first one.
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", sh.name, err)
		}
		if err := fillSheet(f, sh, headerStyle); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func fillSheet(f *excelize.File, sh sheet, headerStyle int) error {
	for col, h := range sh.header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sh.name, cell, h); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sh.name, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		if col < len(sh.widths) {
			name, err := excelize.ColumnNumberToName(col + 1)
			if err != nil {
				return err
			}
			if err := f.SetColWidth(sh.name, name, name, sh.widths[col]); err != nil {
				return fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	for r, row := range sh.rows {
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sh.name, cell, v); err != nil {
				return fmt.Errorf("failed to set cell %s!%s: %w", sh.name, cell, err)
			}
		}
	}

	return f.SetPanes(sh.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// ImportRow is one participant read from an uploaded workbook. Row is the
// 1-based spreadsheet row.
type ImportRow struct {
	Row         int
	FirstName   string
	PhoneNumber string
}

var errNoHeader = errors.New("first sheet needs a First Name and a Phone Number column")

// ParseParticipants reads participants from the first sheet of an xlsx file.
// Headers are matched case-insensitively; blank rows are skipped.
func ParseParticipants(r io.Reader) ([]ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workbook: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, errNoHeader
	}

	nameCol, phoneCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "first name", "name":
			nameCol = i
		case "phone number", "phone":
			phoneCol = i
		}
	}
	if nameCol < 0 || phoneCol < 0 {
		return nil, errNoHeader
	}

	var result []ImportRow
	for i, row := range rows[1:] {
		name, phone := cellAt(row, nameCol), cellAt(row, phoneCol)
		if name == "" && phone == "" {
			continue
		}
		result = append(result, ImportRow{Row: i + 2, FirstName: name, PhoneNumber: phone})
	}
	return result, nil
}

func cellAt(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (s *Server) export() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		participants, err := s.deps.Store.ListParticipants(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		rules, err := s.deps.Exclusions.List(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		delivery, err := s.deps.Queue.DeliveryStats(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		data, err := BuildWorkbook(participants, rules, delivery)
		if err != nil {
			s.fail(c, err)
			return
		}
		filename := fmt.Sprintf("secret-santa-%s.xlsx", time.Now().Format("20060102"))
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, xlsxContentType, data)
	}
}

type importError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// importParticipants adds every row of an uploaded workbook (form field
// "file"). Bad rows are reported and skipped.
func (s *Server) importParticipants() gin.HandlerFunc {
	return func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "file not found in request"})
			return
		}
		file, err := fh.Open()
		if err != nil {
			s.fail(c, err)
			return
		}
		defer file.Close()

		rows, err := ParseParticipants(file)
		if err != nil {
			badRequest(c, err)
			return
		}

		ctx := c.Request.Context()
		added := 0
		importErrors := []importError{}
		for _, row := range rows {
			name, phone, ok := participantRequest{FirstName: row.FirstName, PhoneNumber: row.PhoneNumber}.normalize()
			if !ok {
				importErrors = append(importErrors, importError{Row: row.Row, Message: "missing name or invalid phone number"})
				continue
			}
			if _, err := s.deps.Store.AddParticipant(ctx, name, phone); err != nil {
				importErrors = append(importErrors, importError{Row: row.Row, Message: err.Error()})
				continue
			}
			added++
		}
		s.log.Info().Int("added", added).Int("failed", len(importErrors)).Msg("Participants imported")
		c.JSON(http.StatusOK, gin.H{"success": true, "total": len(rows), "added": added, "errors": importErrors})
	}
}
