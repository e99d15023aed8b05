package applyrun

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

// WriteRunItemsCSV streams a run's items as CSV.
func WriteRunItemsCSV(w io.Writer, items []ApplyRunItem) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"order_ref", "sku", "quantity", "status", "reason"}); err != nil {
		return err
	}
	for _, item := range items {
		reason := item.Reason
		if len(item.MissingSKUs) > 0 && reason == "" {
			reason = "missing:" + strings.Join(item.MissingSKUs, " ")
		}
		if err := writer.Write([]string{
			item.OrderRef,
			item.SKU,
			strconv.FormatInt(item.Qty, 10),
			string(item.Status),
			reason,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
