package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"event-access/internal/access"
	"event-access/internal/auth"
	"event-access/internal/i18n"
	"event-access/internal/occupancy"
	"event-access/internal/rbac"
	"event-access/pkg/logger"

	"github.com/gin-gonic/gin"
)

type scanBody struct {
	ParticipantID      string `json:"participantId"`
	EventID            string `json:"eventId"`
	Gate               string `json:"gate"`
	Location           string `json:"location"`
	OperatorName       string `json:"operatorName"`
	OperatorEmail      string `json:"operatorEmail"`
	DeviceID           string `json:"deviceId"`
	DeviceName         string `json:"deviceName"`
	VerificationMethod string `json:"verificationMethod"`
	Notes              string `json:"notes"`
}

type checkInBody struct {
	scanBody
	// RequirePreviousExit defaults to true when omitted.
	RequirePreviousExit *bool `json:"requirePreviousExit"`
	ForceEntry          bool  `json:"forceEntry"`
}

type checkOutBody struct {
	scanBody
	ForceExit bool `json:"forceExit"`
}

// operatorFrom fills the log's operator from the token when the body leaves it out.
func operatorFrom(ctx context.Context, name, email string) access.Operator {
	id, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	name = strings.TrimSpace(name)
	if name == "" {
		name = auth.Name(ctx)
	}
	return access.Operator{ID: id, Name: name, Email: strings.TrimSpace(email), Role: role}
}

func deviceFrom(ctx context.Context, b scanBody) access.Device {
	return access.Device{
		ID:   strings.TrimSpace(b.DeviceID),
		Name: strings.TrimSpace(b.DeviceName),
		IP:   ClientIPFromContext(ctx),
	}
}

func canOverride(ctx context.Context) bool {
	role, _ := auth.Role(ctx)
	return role == rbac.RoleAdmin || role == rbac.RoleSupervisor
}

type checkInResponse struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	AccessLog   accessLogJSON   `json:"accessLog"`
	Participant participantJSON `json:"participant"`
	Forced      bool            `json:"forced,omitempty"`
}

// CheckIn handles POST /v1/access/check-in.
func (h Handlers) CheckIn(c *gin.Context) {
	var body checkInBody
	if err := c.ShouldBindJSON(&body); err != nil {
		failCode(c, http.StatusBadRequest, codeInvalidBody)
		return
	}
	ctx := c.Request.Context()
	if body.ForceEntry && !canOverride(ctx) {
		failCode(c, http.StatusForbidden, codeOverrideForbidden)
		return
	}
	requireExit := body.RequirePreviousExit == nil || *body.RequirePreviousExit

	res, err := h.Access.CheckIn(ctx, access.CheckInRequest{
		ParticipantID: body.ParticipantID,
		EventID:       strings.TrimSpace(body.EventID),
		Gate:          body.Gate,
		Location:      body.Location,
		Operator:      operatorFrom(ctx, body.OperatorName, body.OperatorEmail),
		Device:        deviceFrom(ctx, body.scanBody),
		Method:        access.VerificationMethod(strings.ToUpper(strings.TrimSpace(body.VerificationMethod))),
		Notes:         body.Notes,
		AllowReentry:  !requireExit,
		ForceEntry:    body.ForceEntry,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, checkInResponse{
		Success:     true,
		Message:     i18n.From(c).Message("success.check_in", nil),
		AccessLog:   toAccessLog(res.Entry),
		Participant: toParticipant(res.Participant),
		Forced:      res.Forced,
	})
}

type checkOutResponse struct {
	Success         bool            `json:"success"`
	Message         string          `json:"message"`
	AccessLog       accessLogJSON   `json:"accessLog"`
	Duration        string          `json:"duration"`
	DurationMinutes int             `json:"durationMinutes"`
	Participant     participantJSON `json:"participant"`
	Forced          bool            `json:"forced,omitempty"`
}

// CheckOut handles POST /v1/access/check-out.
func (h Handlers) CheckOut(c *gin.Context) {
	var body checkOutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		failCode(c, http.StatusBadRequest, codeInvalidBody)
		return
	}
	ctx := c.Request.Context()
	if body.ForceExit && !canOverride(ctx) {
		failCode(c, http.StatusForbidden, codeOverrideForbidden)
		return
	}

	res, err := h.Access.CheckOut(ctx, access.CheckOutRequest{
		ParticipantID: body.ParticipantID,
		EventID:       strings.TrimSpace(body.EventID),
		Gate:          body.Gate,
		Location:      body.Location,
		Operator:      operatorFrom(ctx, body.OperatorName, body.OperatorEmail),
		Device:        deviceFrom(ctx, body.scanBody),
		Method:        access.VerificationMethod(strings.ToUpper(strings.TrimSpace(body.VerificationMethod))),
		Notes:         body.Notes,
		ForceExit:     body.ForceExit,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, checkOutResponse{
		Success:         true,
		Message:         i18n.From(c).Message("success.check_out", nil),
		AccessLog:       toAccessLog(res.Entry),
		Duration:        access.FormatDuration(res.Duration),
		DurationMinutes: access.RoundedMinutes(res.Duration),
		Participant:     toParticipant(res.Participant),
		Forced:          res.Forced,
	})
}

type fastBody struct {
	ParticipantID string `json:"participantId"`
	EventID       string `json:"eventId"`
	Type          string `json:"type"`
	Gate          string `json:"gate"`
	OperatorName  string `json:"operatorName"`
	DeviceID      string `json:"deviceId"`
	DeviceName    string `json:"deviceName"`
}

type fastParticipantJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fastResponse struct {
	Success     bool                `json:"success"`
	Type        string              `json:"type"`
	Participant fastParticipantJSON `json:"participant"`
	Time        time.Time           `json:"time"`
}

// FastCheckIn handles POST /v1/access/fast-check-in.
func (h Handlers) FastCheckIn(c *gin.Context) {
	var body fastBody
	if err := c.ShouldBindJSON(&body); err != nil {
		failCode(c, http.StatusBadRequest, codeInvalidBody)
		return
	}
	ctx := c.Request.Context()
	res, err := h.Access.FastCheckIn(ctx, access.FastCheckInRequest{
		ParticipantID: body.ParticipantID,
		EventID:       body.EventID,
		Type:          access.Type(strings.ToUpper(strings.TrimSpace(body.Type))),
		Gate:          body.Gate,
		Operator:      operatorFrom(ctx, body.OperatorName, ""),
		Device: access.Device{
			ID:   strings.TrimSpace(body.DeviceID),
			Name: strings.TrimSpace(body.DeviceName),
			IP:   ClientIPFromContext(ctx),
		},
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, fastResponse{
		Success:     true,
		Type:        string(res.Entry.Type),
		Participant: fastParticipantJSON{ID: res.Participant.ID, Name: res.Participant.Name},
		Time:        res.Entry.CreatedAt,
	})
}

// Status handles GET /v1/access/status/:id?eventId=.
func (h Handlers) Status(c *gin.Context) {
	view, err := h.Access.Status(c.Request.Context(), c.Param("id"), c.Query("eventId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toStatus(view, i18n.From(c)))
}

// Stats handles GET /v1/access/stats/:eventId. The id may also be a slug or code.
func (h Handlers) Stats(c *gin.Context) {
	view, err := h.Access.GetStats(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toStatsView(view))
}

type reconcileResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Event   eventJSON `json:"event"`
	Stats   statsJSON `json:"stats"`
}

// Reconcile handles POST /v1/access/stats/:eventId/reconcile.
func (h Handlers) Reconcile(c *gin.Context) {
	ctx := c.Request.Context()
	ev, st, err := h.Access.ReconcileByRef(ctx, c.Param("eventId"))
	if err != nil {
		fail(c, err)
		return
	}

	if h.Audit != nil {
		op := operatorFrom(ctx, "", "")
		meta := fmt.Sprintf(`{"currentInsideCount":%d,"totalEntries":%d,"totalExits":%d}`,
			st.CurrentInsideCount, st.TotalEntries, st.TotalExits)
		if err := h.Audit.LogAdminAction(ctx, ev.ID, op.ID, op.Name, op.Role, ClientIPFromContext(ctx), "stats reconciled", meta); err != nil {
			logger.FromGin(c).Warn("audit append failed", "err", err, "event_id", ev.ID)
		}
	}

	c.JSON(http.StatusOK, reconcileResponse{
		Success: true,
		Message: i18n.From(c).Message("success.reconciled", nil),
		Event:   toEvent(ev),
		Stats:   toStats(st),
	})
}

// Logs handles GET /v1/access/logs. format=csv streams every matching row
// as a spreadsheet attachment; JSON is paginated.
func (h Handlers) Logs(c *gin.Context) {
	f, err := h.parseLogFilter(c)
	if err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()

	if strings.EqualFold(c.Query("format"), "csv") {
		rows, err := h.exportLogs(ctx, f)
		if err != nil {
			fail(c, err)
			return
		}
		filename := "access-logs-" + h.now().In(h.loc()).Format("2006-01-02") + ".csv"
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		if err := writeLogsCSV(c.Writer, rows, h.loc(), i18n.From(c)); err != nil {
			logger.FromGin(c).Error("csv export failed", "err", err)
		}
		return
	}

	page, err := h.Access.ListLogs(ctx, f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toLogs(page))
}

// exportLogs walks every page of f. limit/offset from the query are ignored.
func (h Handlers) exportLogs(ctx context.Context, f access.LogFilter) ([]access.LogRow, error) {
	f.Limit = access.MaxLogLimit
	f.Offset = 0
	var out []access.LogRow
	for {
		page, err := h.Access.ListLogs(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Rows...)
		if len(page.Rows) < f.Limit || len(out) >= page.Total {
			return out, nil
		}
		f.Offset += len(page.Rows)
	}
}

func (h Handlers) parseLogFilter(c *gin.Context) (access.LogFilter, error) {
	f := access.LogFilter{
		EventID:       c.Query("eventId"),
		ParticipantID: c.Query("participantId"),
		Gate:          c.Query("gate"),
	}
	if t := strings.TrimSpace(c.Query("type")); t != "" {
		f.Type = access.Type(strings.ToUpper(t))
	}

	var err error
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = queryInt(c, "offset"); err != nil {
		return f, err
	}
	if f.From, err = h.queryTime(c, "from", false); err != nil {
		return f, err
	}
	if f.To, err = h.queryTime(c, "to", true); err != nil {
		return f, err
	}
	return f, nil
}

func invalidFilter(field string) error {
	return &access.Error{
		Kind: access.ErrValidation,
		Code: access.CodeInvalidFilter,
		Data: map[string]any{"Field": field},
	}
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidFilter(key)
	}
	return n, nil
}

// queryTime accepts RFC 3339 or a bare date. A bare "to" date covers the whole day.
func (h Handlers) queryTime(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, raw, h.loc())
	if err != nil {
		return nil, invalidFilter(key)
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &d, nil
}

type verifyNotFound struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Verify handles GET /v1/verify/:id?eventId=. It is public: badges are
// scanned by kiosks that hold no operator token.
func (h Handlers) Verify(c *gin.Context) {
	view, err := h.Access.Verify(c.Request.Context(), c.Param("id"), c.Query("eventId"))
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			code := access.CodeParticipantNotFound
			if de, ok := access.AsError(err); ok {
				code = de.Code
			}
			c.AbortWithStatusJSON(http.StatusNotFound, verifyNotFound{
				Error:   code,
				Message: i18n.From(c).Message("verify.not_found", nil),
			})
			return
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toVerify(view, i18n.From(c)))
}

// Live handles GET /v1/access/stats/:eventId/live as a server-sent event
// stream. The current aggregate is sent first, then every published update.
func (h Handlers) Live(c *gin.Context) {
	if h.Feed == nil {
		failCode(c, http.StatusServiceUnavailable, codeLiveUnavailable)
		return
	}
	ctx := c.Request.Context()
	view, err := h.Access.GetStats(ctx, c.Param("eventId"))
	if err != nil {
		fail(c, err)
		return
	}
	updates, err := h.Feed.Watch(ctx, view.Event.ID)
	if err != nil {
		logger.FromGin(c).Error("live subscribe failed", "err", err, "event_id", view.Event.ID)
		failCode(c, http.StatusServiceUnavailable, codeLiveUnavailable)
		return
	}

	first := true
	c.Stream(func(io.Writer) bool {
		if first {
			first = false
			c.SSEvent("occupancy", occupancy.SnapshotOf(view.Stats))
			return true
		}
		snap, ok := <-updates
		if !ok {
			return false
		}
		c.SSEvent("occupancy", snap)
		return true
	})
}
