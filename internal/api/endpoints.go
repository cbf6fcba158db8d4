package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"signboard/internal/content"
	"signboard/internal/storage"
	"signboard/internal/trigger"
)

// ---- status ----

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.ok(w, r, "", map[string]any{
		"status":    "online",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) BoardStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.d.BoardStatus(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.ok(w, r, "", map[string]any{
		"online":   status.Online,
		"ip":       status.Settings.IP,
		"port":     status.Settings.Port,
		"protocol": status.Settings.Protocol,
	})
}

// ---- messages & programs ----

type sendMessageRequest struct {
	Message string `json:"message" validate:"required,max=1000"`
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	res := h.d.SendQuick(r.Context(), req.Message)
	if !res.OK {
		h.writeJSON(w, r, http.StatusOK, Response{Success: false, Message: "delivery failed: " + res.Err.Error()})
		return
	}
	h.ok(w, r, "Message sent successfully", nil)
}

type programRequest struct {
	Type    string           `json:"type"`
	Widgets []content.Widget `json:"widgets"`
}

func (h *Handler) SendProgram(w http.ResponseWriter, r *http.Request) {
	var req programRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	combined, res := h.d.SendProgram(r.Context(), req.Widgets)
	data := map[string]any{"message": combined}
	if !res.OK {
		h.writeJSON(w, r, http.StatusOK, Response{Success: false, Message: "delivery failed: " + res.Err.Error(), Data: data})
		return
	}
	h.ok(w, r, "Program sent successfully", data)
}

// ---- schedules ----

type createScheduleRequest struct {
	Time    string `json:"time" validate:"required"`
	Message string `json:"message" validate:"required,max=1000"`
}

type scheduleView struct {
	ID      int64  `json:"id"`
	Time    string `json:"time"`
	Message string `json:"message"`
	Active  bool   `json:"active"`
}

func viewSchedule(s storage.Schedule) scheduleView {
	return scheduleView{ID: s.ID, Time: s.At, Message: s.Message, Active: s.Active}
}

func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	row, err := h.schedules.Create(r.Context(), req.Time, req.Message)
	if err != nil {
		if errors.Is(err, trigger.ErrInvalidTimeSpec) {
			h.badRequest(w, r, err)
			return
		}
		h.internalError(w, r, err)
		return
	}
	h.ok(w, r, "Schedule created", viewSchedule(row))
}

func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	rows, err := h.schedules.List(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	views := make([]scheduleView, 0, len(rows))
	for _, row := range rows {
		views = append(views, viewSchedule(row))
	}
	h.ok(w, r, "", views)
}

type updateScheduleRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "invalid schedule id")
		return
	}
	var req updateScheduleRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	if err := h.schedules.SetActive(r.Context(), id, *req.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.fail(w, r, http.StatusNotFound, "schedule not found")
			return
		}
		h.internalError(w, r, err)
		return
	}
	h.ok(w, r, "Schedule updated", nil)
}

func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, "invalid schedule id")
		return
	}
	if err := h.schedules.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.fail(w, r, http.StatusNotFound, "schedule not found")
			return
		}
		h.internalError(w, r, err)
		return
	}
	h.ok(w, r, "Schedule deleted", nil)
}

// ---- birthdays ----

type birthdayRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	DOB  string `json:"dob" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) AddBirthday(w http.ResponseWriter, r *http.Request) {
	var req birthdayRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	if err := h.store.AddBirthday(r.Context(), req.Name, req.DOB); err != nil {
		h.internalError(w, r, err)
		return
	}
	h.ok(w, r, "Birthday added", nil)
}

type birthdayView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	DOB  string `json:"dob"`
}

func (h *Handler) ListBirthdays(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListBirthdays(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	views := make([]birthdayView, 0, len(rows))
	for _, b := range rows {
		views = append(views, birthdayView{ID: b.ID, Name: b.Name, DOB: b.DOB})
	}
	h.ok(w, r, "", views)
}

// ---- logs ----

type recordView struct {
	ID       string `json:"id"`
	Message  string `json:"message"`
	At       string `json:"timestamp"`
	Category string `json:"category"`
}

func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			h.fail(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	recs, err := h.store.RecentDispatches(r.Context(), limit)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	views := make([]recordView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, recordView{
			ID:       rec.ID,
			Message:  rec.Message,
			At:       rec.At.Format(time.RFC3339),
			Category: rec.Category,
		})
	}
	h.ok(w, r, "", views)
}

// ---- settings ----

type boardSettingsRequest struct {
	IP         string `json:"ip" validate:"required"`
	Port       int    `json:"port" validate:"required,min=1,max=65535"`
	Protocol   string `json:"protocol" validate:"required,oneof=HTTP TCP"`
	Brightness int    `json:"brightness" validate:"min=0,max=100"`
	FontSize   int    `json:"font_size" validate:"min=1,max=96"`
	Color      string `json:"color" validate:"required"`
	Effect     string `json:"effect" validate:"required"`
}

func (h *Handler) GetBoardSettings(w http.ResponseWriter, r *http.Request) {
	bs, err := h.store.BoardSettings(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.ok(w, r, "", map[string]any{
		"ip":         bs.IP,
		"port":       bs.Port,
		"protocol":   bs.Protocol,
		"brightness": bs.Brightness,
		"font_size":  bs.FontSize,
		"color":      bs.Color,
		"effect":     bs.Effect,
	})
}

func (h *Handler) UpdateBoardSettings(w http.ResponseWriter, r *http.Request) {
	var req boardSettingsRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	bs := storage.BoardSettings{
		IP:         req.IP,
		Port:       req.Port,
		Protocol:   req.Protocol,
		Brightness: req.Brightness,
		FontSize:   req.FontSize,
		Color:      req.Color,
		Effect:     req.Effect,
	}
	if err := h.store.SaveBoardSettings(r.Context(), bs); err != nil {
		h.internalError(w, r, err)
		return
	}
	h.ok(w, r, "Board settings updated", nil)
}

type aiSettingsRequest struct {
	Style    string `json:"style" validate:"required"`
	Language string `json:"language" validate:"required"`
	Tone     string `json:"tone" validate:"required"`
}

func (h *Handler) GetAISettings(w http.ResponseWriter, r *http.Request) {
	as, err := h.store.AISettings(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.ok(w, r, "", map[string]any{
		"style":    as.Style,
		"language": as.Language,
		"tone":     as.Tone,
	})
}

func (h *Handler) UpdateAISettings(w http.ResponseWriter, r *http.Request) {
	var req aiSettingsRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	as := storage.AISettings{Style: req.Style, Language: req.Language, Tone: req.Tone}
	if err := h.store.SaveAISettings(r.Context(), as); err != nil {
		h.internalError(w, r, err)
		return
	}
	h.ok(w, r, "AI settings updated", nil)
}
