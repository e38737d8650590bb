package httpapi

import (
	"time"

	"event-access/internal/access"
	"event-access/internal/i18n"
)

type accessLogJSON struct {
	ID                 string    `json:"id"`
	Type               string    `json:"type"`
	Time               time.Time `json:"time"`
	Gate               string    `json:"gate,omitempty"`
	Location           string    `json:"location,omitempty"`
	VerificationMethod string    `json:"verificationMethod,omitempty"`
	Operator           string    `json:"operator,omitempty"`
	Notes              string    `json:"notes,omitempty"`
}

func toAccessLog(e access.LogEntry) accessLogJSON {
	return accessLogJSON{
		ID:                 e.ID,
		Type:               string(e.Type),
		Time:               e.CreatedAt,
		Gate:               e.Gate,
		Location:           e.Location,
		VerificationMethod: string(e.VerificationMethod),
		Operator:           e.OperatorName,
		Notes:              e.Notes,
	}
}

type participantJSON struct {
	ID             string `json:"id"`
	ShortID        string `json:"shortId"`
	EventID        string `json:"eventId,omitempty"`
	Name           string `json:"name"`
	CPF            string `json:"cpf"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	FaceImageURL   string `json:"faceImageUrl,omitempty"`
	ApprovalStatus string `json:"approvalStatus"`
	IsApproved     bool   `json:"isApproved"`
	Stand          string `json:"stand,omitempty"`
}

func toParticipant(p access.Participant) participantJSON {
	status := p.ApprovalStatus
	if status == "" {
		status = access.ApprovalPending
	}
	return participantJSON{
		ID:             p.ID,
		ShortID:        p.ShortID(),
		EventID:        p.EventID,
		Name:           p.Name,
		CPF:            p.NationalID,
		Email:          p.Email,
		Phone:          p.Phone,
		FaceImageURL:   p.FaceImageURL,
		ApprovalStatus: string(status),
		IsApproved:     p.Approved(),
		Stand:          standLabel(p),
	}
}

func standLabel(p access.Participant) string {
	if p.StandName != "" {
		return p.StandName
	}
	return p.StandCode
}

type standJSON struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func toStand(p access.Participant) *standJSON {
	if p.StandCode == "" && p.StandName == "" {
		return nil
	}
	return &standJSON{Code: p.StandCode, Name: p.StandName}
}

type eventJSON struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Code            string     `json:"code"`
	Slug            string     `json:"slug,omitempty"`
	Status          string     `json:"status"`
	StartDate       *time.Time `json:"startDate,omitempty"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	MaxCapacity     int        `json:"maxCapacity"`
	RegisteredCount int        `json:"registeredCount"`
}

func toEvent(e access.Event) eventJSON {
	return eventJSON{
		ID:              e.ID,
		Name:            e.Name,
		Code:            e.Code,
		Slug:            e.Slug,
		Status:          e.Status,
		StartDate:       e.StartDate,
		EndDate:         e.EndDate,
		MaxCapacity:     e.MaxCapacity,
		RegisteredCount: e.RegisteredCount,
	}
}

type statsJSON struct {
	CurrentInsideCount  int        `json:"currentInsideCount"`
	TotalEntries        int        `json:"totalEntries"`
	TotalExits          int        `json:"totalExits"`
	UniqueVisitors      int        `json:"uniqueVisitors"`
	PeakCount           int        `json:"peakCount"`
	PeakTime            *time.Time `json:"peakTime"`
	LastEntryAt         *time.Time `json:"lastEntryAt"`
	LastExitAt          *time.Time `json:"lastExitAt"`
	OccupancyPercentage *int       `json:"occupancyPercentage,omitempty"`
}

func toStats(s access.Stats) statsJSON {
	return statsJSON{
		CurrentInsideCount: s.CurrentInsideCount,
		TotalEntries:       s.TotalEntries,
		TotalExits:         s.TotalExits,
		UniqueVisitors:     s.UniqueVisitors,
		PeakCount:          s.PeakCount,
		PeakTime:           s.PeakTime,
		LastEntryAt:        s.LastEntryAt,
		LastExitAt:         s.LastExitAt,
	}
}

// --- status ---

type lastAccessJSON struct {
	Type      string    `json:"type"`
	Time      time.Time `json:"time"`
	Gate      string    `json:"gate,omitempty"`
	TimeSince string    `json:"timeSince"`
}

type accessStatusJSON struct {
	IsInside        bool            `json:"isInside"`
	CanEnter        bool            `json:"canEnter"`
	CanExit         bool            `json:"canExit"`
	LastAccess      *lastAccessJSON `json:"lastAccess"`
	TotalEntries    int             `json:"totalEntries"`
	TotalExits      int             `json:"totalExits"`
	TotalTimeInside string          `json:"totalTimeInside"`
}

type statusResponse struct {
	Success     bool             `json:"success"`
	Participant participantJSON  `json:"participant"`
	Event       *eventJSON       `json:"event"`
	Stand       *standJSON       `json:"stand"`
	Status      accessStatusJSON `json:"accessStatus"`
	History     []accessLogJSON  `json:"history"`
	CheckedAt   time.Time        `json:"checkedAt"`
}

func toStatus(v access.StatusView, z *i18n.Localizer) statusResponse {
	out := statusResponse{
		Success:     true,
		Participant: toParticipant(v.Participant),
		Stand:       toStand(v.Participant),
		Status: accessStatusJSON{
			IsInside:        v.Presence.Inside,
			CanEnter:        v.CanEnter,
			CanExit:         v.CanExit,
			TotalEntries:    v.Presence.TotalEntries,
			TotalExits:      v.Presence.TotalExits,
			TotalTimeInside: access.FormatDuration(v.Presence.TimeInside),
		},
		History:   make([]accessLogJSON, 0, len(v.History)),
		CheckedAt: v.CheckedAt,
	}
	if v.Event != nil {
		e := toEvent(*v.Event)
		out.Event = &e
	}
	if last := v.Presence.Last; last != nil {
		out.Status.LastAccess = &lastAccessJSON{
			Type:      string(last.Type),
			Time:      last.CreatedAt,
			Gate:      last.Gate,
			TimeSince: z.TimeSince(v.CheckedAt.Sub(last.CreatedAt)),
		}
	}
	for _, e := range v.History {
		out.History = append(out.History, toAccessLog(e))
	}
	return out
}

// --- stats ---

type activityJSON struct {
	accessLogJSON
	Participant participantJSON `json:"participant"`
}

type hourJSON struct {
	Hour    int `json:"hour"`
	Entries int `json:"entries"`
	Exits   int `json:"exits"`
}

type hourlyJSON struct {
	Entries int        `json:"entries"`
	Exits   int        `json:"exits"`
	Hours   []hourJSON `json:"hours"`
}

type statsResponse struct {
	Success            bool              `json:"success"`
	Event              eventJSON         `json:"event"`
	Stats              statsJSON         `json:"stats"`
	Source             string            `json:"source"`
	RecentActivity     []activityJSON    `json:"recentActivity"`
	ParticipantsInside []participantJSON `json:"participantsInside"`
	HourlyToday        hourlyJSON        `json:"hourlyToday"`
	GeneratedAt        time.Time         `json:"generatedAt"`
}

func toStatsView(v access.StatsView) statsResponse {
	stats := toStats(v.Stats)
	pct := v.OccupancyPercentage
	stats.OccupancyPercentage = &pct

	out := statsResponse{
		Success:            true,
		Event:              toEvent(v.Event),
		Stats:              stats,
		Source:             v.Source,
		RecentActivity:     make([]activityJSON, 0, len(v.RecentActivity)),
		ParticipantsInside: make([]participantJSON, 0, len(v.ParticipantsInside)),
		HourlyToday: hourlyJSON{
			Entries: v.TodayEntries,
			Exits:   v.TodayExits,
			Hours:   make([]hourJSON, 0, len(v.HourlyToday)),
		},
		GeneratedAt: v.GeneratedAt,
	}
	for _, r := range v.RecentActivity {
		out.RecentActivity = append(out.RecentActivity, activityJSON{
			accessLogJSON: toAccessLog(r.Entry),
			Participant:   toParticipant(r.Participant),
		})
	}
	for _, p := range v.ParticipantsInside {
		out.ParticipantsInside = append(out.ParticipantsInside, toParticipant(p))
	}
	for _, h := range v.HourlyToday {
		out.HourlyToday.Hours = append(out.HourlyToday.Hours, hourJSON{Hour: h.Hour, Entries: h.Entries, Exits: h.Exits})
	}
	return out
}

// --- logs ---

type operatorJSON struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type deviceJSON struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	IP   string `json:"ip,omitempty"`
}

type logEventJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type logRowJSON struct {
	accessLogJSON
	Operator    operatorJSON    `json:"operator"`
	Device      deviceJSON      `json:"device"`
	Participant participantJSON `json:"participant"`
	Event       logEventJSON    `json:"event"`
}

type logSummaryJSON struct {
	Entries int `json:"entries"`
	Exits   int `json:"exits"`
}

type logsResponse struct {
	Success bool           `json:"success"`
	Total   int            `json:"total"`
	Count   int            `json:"count"`
	Offset  int            `json:"offset"`
	Limit   int            `json:"limit"`
	Summary logSummaryJSON `json:"summary"`
	Logs    []logRowJSON   `json:"logs"`
}

func toLogs(p access.LogPage) logsResponse {
	out := logsResponse{
		Success: true,
		Total:   p.Total,
		Count:   len(p.Rows),
		Offset:  p.Offset,
		Limit:   p.Limit,
		Summary: logSummaryJSON{Entries: p.Entries, Exits: p.Exits},
		Logs:    make([]logRowJSON, 0, len(p.Rows)),
	}
	for _, r := range p.Rows {
		out.Logs = append(out.Logs, logRowJSON{
			accessLogJSON: toAccessLog(r.Entry),
			Operator:      operatorJSON{ID: r.Entry.OperatorID, Name: r.Entry.OperatorName, Email: r.Entry.OperatorEmail},
			Device:        deviceJSON{ID: r.Entry.DeviceID, Name: r.Entry.DeviceName, IP: r.Entry.DeviceIP},
			Participant:   toParticipant(r.Participant),
			Event:         logEventJSON{ID: r.Entry.EventID, Name: r.EventName},
		})
	}
	return out
}

// --- verify ---

type verifyEventJSON struct {
	eventJSON
	IsActive      bool `json:"isActive"`
	IsWithinDates bool `json:"isWithinDates"`
}

type verifyStatusJSON struct {
	IsApproved bool   `json:"isApproved"`
	IsPending  bool   `json:"isPending"`
	IsRejected bool   `json:"isRejected"`
	CanEnter   bool   `json:"canEnter"`
	Message    string `json:"message"`
}

type verifyResponse struct {
	Valid        bool             `json:"valid"`
	Verified     bool             `json:"verified"`
	Participant  participantJSON  `json:"participant"`
	RegisteredAt time.Time        `json:"registeredAt"`
	Event        *verifyEventJSON `json:"event"`
	Stand        *standJSON       `json:"stand"`
	Status       verifyStatusJSON `json:"status"`
	VerifiedAt   time.Time        `json:"verifiedAt"`
}

func toVerify(v access.VerifyView, z *i18n.Localizer) verifyResponse {
	p := toParticipant(v.Participant)
	out := verifyResponse{
		Valid:        true,
		Verified:     v.Verified,
		Participant:  p,
		RegisteredAt: v.Participant.CreatedAt,
		Stand:        toStand(v.Participant),
		Status: verifyStatusJSON{
			IsApproved: v.Participant.Approved(),
			IsPending:  p.ApprovalStatus == string(access.ApprovalPending),
			IsRejected: p.ApprovalStatus == string(access.ApprovalRejected),
			CanEnter:   v.CanEnter,
			Message:    z.Message(v.StatusMessage, nil),
		},
		VerifiedAt: v.VerifiedAt,
	}
	if v.Event != nil {
		out.Event = &verifyEventJSON{
			eventJSON:     toEvent(*v.Event),
			IsActive:      v.EventActive,
			IsWithinDates: v.WithinDates,
		}
	}
	return out
}
