package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pulsecoach/backend/internal/common"
	"github.com/pulsecoach/backend/internal/program"
)

type createProgramReq struct {
	UserID            uint64        `json:"user_id"`
	Type              string        `json:"type"`
	StartDate         string        `json:"start_date"`
	PeriodLengthWeeks int           `json:"period_length_weeks"`
	Spec              *program.Spec `json:"spec_json"`
}

func (h *Handler) CreateProgram(c *gin.Context) {
	var req createProgramReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "invalid json")
		return
	}
	if req.UserID == 0 || req.Type == "" {
		common.BadRequest(c, "user_id and type are required")
		return
	}

	spec := program.Spec{SpecVersion: 1, Source: "api"}
	if req.Spec != nil {
		spec = *req.Spec
	}

	p, period, err := h.Programs.Create(c.Request.Context(), program.CreateRequest{
		UserID:            req.UserID,
		Type:              req.Type,
		StartDate:         req.StartDate,
		PeriodLengthWeeks: req.PeriodLengthWeeks,
		Spec:              spec,
	})
	if err != nil {
		if errors.Is(err, program.ErrNoDays) {
			common.Internal(c, program.ErrNoDays.Error())
			return
		}
		h.Log.Error("program create failed", zap.Uint64("user_id", req.UserID), zap.Error(err))
		common.Internal(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"program": p, "period": period})
}

func (h *Handler) GetProgram(c *gin.Context) {
	p, ok := h.loadProgram(c)
	if !ok {
		return
	}
	periods, err := h.Programs.Periods(c.Request.Context(), p.ProgramID)
	if err != nil {
		common.Internal(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"program": p, "periods": periods})
}

func (h *Handler) GetToday(c *gin.Context) {
	p, ok := h.loadProgram(c)
	if !ok {
		return
	}
	periods, err := h.Programs.Periods(c.Request.Context(), p.ProgramID)
	if err != nil {
		common.Internal(c, err.Error())
		return
	}
	day := program.ResolveDay(periods, program.TodayUTC())
	if day == nil {
		common.NotFound(c, "no day scheduled today")
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": program.FormatDate(program.TodayUTC()), "day": day})
}

func (h *Handler) GetWeek(c *gin.Context) {
	h.window(c, 7, c.Query("start"))
}

func (h *Handler) GetWindow(c *gin.Context) {
	n, err := strconv.Atoi(c.Query("days"))
	if err != nil || n < 1 || n > 366 {
		common.BadRequest(c, "days must be in [1,366]")
		return
	}
	h.window(c, n, c.Query("start"))
}

func (h *Handler) window(c *gin.Context, n int, startStr string) {
	if startStr == "" {
		common.BadRequest(c, "start is required")
		return
	}
	start, err := program.ParseDate(startStr)
	if err != nil {
		common.BadRequest(c, "invalid start date")
		return
	}

	p, ok := h.loadProgram(c)
	if !ok {
		return
	}
	periods, err := h.Programs.Periods(c.Request.Context(), p.ProgramID)
	if err != nil {
		common.Internal(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"start": program.FormatDate(start),
		"days":  program.Window(periods, start, n),
	})
}

type changeProgramReq struct {
	EffectiveDate  string        `json:"effective_date"`
	SpecPatch      *program.Spec `json:"spec_patch"`
	NewPeriodWeeks int           `json:"new_period_weeks"`
	RequestText    string        `json:"request_text"`
}

func (h *Handler) ChangeProgram(c *gin.Context) {
	var req changeProgramReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "invalid json")
		return
	}
	if req.EffectiveDate == "" {
		common.BadRequest(c, "effective_date is required")
		return
	}

	id := c.Param("id")
	period, err := h.Programs.ApplyChange(c.Request.Context(), id, program.ChangeRequest{
		EffectiveDate:  req.EffectiveDate,
		RequestText:    req.RequestText,
		NewPeriodWeeks: req.NewPeriodWeeks,
		SpecPatch:      req.SpecPatch,
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.NotFound(c, "program not found")
		case errors.Is(err, program.ErrNoDays):
			common.Internal(c, program.ErrNoDays.Error())
		case errors.Is(err, program.ErrBadEffectiveDate):
			common.BadRequest(c, err.Error())
		default:
			h.Log.Error("program change failed", zap.String("program_id", id), zap.Error(err))
			common.Internal(c, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"period": period})
}

type patchPeriodReq struct {
	Days []program.Day `json:"days"`
}

func (h *Handler) PatchPeriod(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		common.BadRequest(c, "invalid period index")
		return
	}

	var req patchPeriodReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Days == nil {
		common.BadRequest(c, "days array is required")
		return
	}
	if len(req.Days) == 0 {
		common.BadRequest(c, "days must not be empty")
		return
	}

	id := c.Param("id")
	period, err := h.Programs.ReplacePeriodDays(c.Request.Context(), id, index, req.Days)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.NotFound(c, "period not found")
			return
		}
		common.BadRequest(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"period": period})
}

func (h *Handler) loadProgram(c *gin.Context) (*program.Program, bool) {
	id := c.Param("id")
	p, err := h.Programs.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.NotFound(c, "program not found")
		} else {
			common.Internal(c, err.Error())
		}
		return nil, false
	}
	return p, true
}
