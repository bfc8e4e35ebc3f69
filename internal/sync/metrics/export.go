package metrics

import (
	"strconv"
	"strings"

	"github.com/saludcampo/offlinesync/internal/models"
)

// NoDataMessage is returned by ExportCSV when there are no records.
const NoDataMessage = "No synchronization data available"

// CSVHeader is the first line of every non-empty export.
const CSVHeader = "ID,Timestamp,Collection,Success,Attempt,DurationMs,Error"

// TimestampLayout is RFC 3339 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ExportCSV renders records as CSV, one row per record in the given order.
// Timestamp, Collection and Error are always quoted. A record without an
// error message exports "-" in the Error column.
func ExportCSV(records []*models.SyncAttempt) string {
	if len(records) == 0 {
		return NoDataMessage
	}

	var b strings.Builder
	b.WriteString(CSVHeader)
	b.WriteByte('\n')
	for _, r := range records {
		if r == nil {
			continue
		}
		errMsg := r.ErrorMessage
		if errMsg == "" {
			errMsg = "-"
		}
		success := "no"
		if r.Success {
			success = "yes"
		}

		b.WriteString(strconv.FormatInt(r.ID, 10))
		b.WriteByte(',')
		writeQuoted(&b, r.Timestamp.UTC().Format(TimestampLayout))
		b.WriteByte(',')
		writeQuoted(&b, r.Collection)
		b.WriteByte(',')
		b.WriteString(success)
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(r.AttemptNumber))
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(r.DurationMs, 10))
		b.WriteByte(',')
		writeQuoted(&b, errMsg)
		b.WriteByte('\n')
	}
	return b.String()
}

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	b.WriteString(strings.ReplaceAll(s, `"`, `""`))
	b.WriteByte('"')
}
