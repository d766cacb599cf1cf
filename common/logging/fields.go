package logging

import (
	"log/slog"
	"time"
)

// Field names shared by every service so log queries stay uniform.
const (
	FieldService    = "service"
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldRuleID     = "rule_id"
	FieldEventID    = "event_id"
	FieldAlertID    = "alert_id"
	FieldIncidentID = "incident_id"
	FieldImportID   = "import_id"
	FieldSHA256     = "sha256"
	FieldCount      = "count"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Component returns a slog attribute naming the subsystem inside a service.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute with d expressed in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error. A nil error logs as "<nil>".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "<nil>")
	}
	return slog.String(FieldError, err.Error())
}

func RuleID(id string) slog.Attr     { return slog.String(FieldRuleID, id) }
func EventID(id string) slog.Attr    { return slog.String(FieldEventID, id) }
func AlertID(id string) slog.Attr    { return slog.String(FieldAlertID, id) }
func IncidentID(id string) slog.Attr { return slog.String(FieldIncidentID, id) }
func ImportID(id string) slog.Attr   { return slog.String(FieldImportID, id) }
func SHA256(sum string) slog.Attr    { return slog.String(FieldSHA256, sum) }
func Count(n int) slog.Attr          { return slog.Int(FieldCount, n) }
