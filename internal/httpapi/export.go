package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

// Bulk export bounds.
const (
	bulkMaxDevices    = 200
	bulkMaxWindowDays = 31
	bulkPerDeviceCap  = 20000
)

type bulkHistoryRequest struct {
	Devices []string `json:"devices"`
	From    int64    `json:"from"`
	To      int64    `json:"to"`
	Format  string   `json:"format"`
}

// BulkHistory exports history for many devices in one shot, as a JSON bundle
// keyed by device or as a flat CSV/XLSX table.
func (h *DevicesHandler) BulkHistory(w http.ResponseWriter, r *http.Request) {
	var req bulkHistoryRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if len(req.Devices) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "devices is required"})
		return
	}
	if len(req.Devices) > bulkMaxDevices {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("at most %d devices per export", bulkMaxDevices),
		})
		return
	}
	if req.To == 0 {
		req.To = time.Now().UnixMilli()
	}
	if req.From > req.To {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must not be after to"})
		return
	}
	if req.To-req.From > int64(bulkMaxWindowDays)*24*int64(time.Hour/time.Millisecond) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("window must not exceed %d days", bulkMaxWindowDays),
		})
		return
	}

	bundle := make(map[string][]domain.DataEntry, len(req.Devices))
	for _, device := range req.Devices {
		entries, err := h.store.DeviceHistory(r.Context(), device, req.From, req.To, bulkPerDeviceCap)
		if err != nil {
			writeError(w, err)
			return
		}
		bundle[device] = entries
	}

	switch req.Format {
	case "", "json":
		writeJSON(w, http.StatusOK, bundle)
	case "csv":
		h.writeCSV(w, req.Devices, bundle)
	case "xlsx":
		h.writeXLSX(w, req.Devices, bundle)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "format must be json, csv or xlsx"})
	}
}

// flattenEntry turns a payload into flat columns: scalars keep their field
// name, {value, units} objects become field.value and field.units.
func flattenEntry(device string, entry domain.DataEntry) map[string]string {
	row := map[string]string{"device": device}
	for field, raw := range entry {
		if obj, ok := raw.(map[string]any); ok {
			for k, v := range obj {
				row[field+"."+k] = cellValue(v)
			}
			continue
		}
		row[field] = cellValue(raw)
	}
	return row
}

func cellValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// tabulate flattens the bundle into a shared header plus ordered rows. The
// header is the union of all columns seen, with device and timestamp pinned
// first.
func tabulate(order []string, bundle map[string][]domain.DataEntry) ([]string, []map[string]string) {
	seen := map[string]bool{}
	var rows []map[string]string
	for _, device := range order {
		for _, entry := range bundle[device] {
			row := flattenEntry(device, entry)
			for k := range row {
				seen[k] = true
			}
			rows = append(rows, row)
		}
	}

	delete(seen, "device")
	delete(seen, "timestamp")
	rest := make([]string, 0, len(seen))
	for k := range seen {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	header := append([]string{"device", "timestamp"}, rest...)
	return header, rows
}

func (h *DevicesHandler) writeCSV(w http.ResponseWriter, order []string, bundle map[string][]domain.DataEntry) {
	header, rows := tabulate(order, bundle)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="history.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write(header)
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			record[i] = row[col]
		}
		_ = cw.Write(record)
	}
	cw.Flush()
}

func (h *DevicesHandler) writeXLSX(w http.ResponseWriter, order []string, bundle map[string][]domain.DataEntry) {
	header, rows := tabulate(order, bundle)

	f := excelize.NewFile()
	const sheet = "History"
	f.SetSheetName("Sheet1", sheet)

	cells := make([]any, len(header))
	for i, col := range header {
		cells[i] = col
	}
	_ = f.SetSheetRow(sheet, "A1", &cells)
	for n, row := range rows {
		for i, col := range header {
			cells[i] = row[col]
		}
		addr, _ := excelize.CoordinatesToCellName(1, n+2)
		_ = f.SetSheetRow(sheet, addr, &cells)
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="history.xlsx"`)
	if err := f.Write(w); err != nil {
		h.logger.Warn("xlsx export write failed", zap.Error(err))
	}
}
