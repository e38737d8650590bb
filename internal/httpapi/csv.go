package httpapi

import (
	"encoding/csv"
	"io"
	"time"

	"event-access/internal/access"
	"event-access/internal/i18n"
)

// utf8BOM makes spreadsheet apps detect the encoding of accented names.
const utf8BOM = "\ufeff"

var logsCSVHeader = []string{
	"Data/Hora", "Tipo", "Participante", "CPF", "Email", "Telefone",
	"Stand", "Portão", "Operador", "Método", "Evento",
}

func writeLogsCSV(w io.Writer, rows []access.LogRow, loc *time.Location, z *i18n.Localizer) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(logsCSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		kind := z.Message("csv.entry", nil)
		if r.Entry.Type == access.TypeExit {
			kind = z.Message("csv.exit", nil)
		}
		rec := []string{
			r.Entry.CreatedAt.In(loc).Format("02/01/2006 15:04:05"),
			kind,
			r.Participant.Name,
			r.Participant.NationalID,
			r.Participant.Email,
			r.Participant.Phone,
			standLabel(r.Participant),
			r.Entry.Gate,
			r.Entry.OperatorName,
			string(r.Entry.VerificationMethod),
			r.EventName,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
