package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glucolog/glucolog/internal/dosing"
	"github.com/glucolog/glucolog/internal/entries"
	apperrors "github.com/glucolog/glucolog/internal/errors"
	"github.com/glucolog/glucolog/internal/stats"
	"github.com/glucolog/glucolog/internal/store"
	"github.com/glucolog/glucolog/internal/streaks"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Server) userID(c *fiber.Ctx) string {
	if id, ok := c.Locals("user_id").(string); ok && id != "" {
		return id
	}
	return store.DefaultUserID
}

// bodyError turns a JSON decode failure into a message that names the
// offending field when the decoder can tell us which one it was.
func bodyError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("invalid %s: unexpected %s value", typeErr.Field, typeErr.Value)
	}
	return "invalid request body"
}

// ==================== Auth ====================

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
	}

	if s.config.Security.Password != "" && req.Password != s.config.Security.Password {
		return c.Status(401).JSON(fiber.Map{"error": "invalid credentials"})
	}

	ttl := time.Duration(s.config.Security.TokenTTL) * time.Hour
	sessionID := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": store.DefaultUserID,
		"jti": sessionID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.config.Security.JWTSecret))
	if err != nil {
		s.logger.Error("failed to sign token", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to generate token"})
	}

	if err := s.store.SetSession(sessionID, []byte(store.DefaultUserID), ttl); err != nil {
		s.logger.Error("failed to persist session", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to create session"})
	}

	return c.JSON(fiber.Map{
		"token":      tokenString,
		"expires_at": time.Now().Add(ttl).Unix(),
	})
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	if sessionID, ok := c.Locals("session_id").(string); ok && sessionID != "" {
		if err := s.store.DeleteSession(sessionID); err != nil {
			s.logger.Warn("failed to delete session", zap.Error(err))
		}
	}
	return c.SendStatus(204)
}

// ==================== Bolus suggestion ====================

// handleSuggest is the public calculator endpoint. Only parameters omitted
// from the request fall back to the stored dosing profile; a field the
// caller actually sent is validated as given, so an explicit zero fails
// instead of being defaulted. The profile row is seeded with the built-in
// defaults, so the chain is request value, then profile, then default.
func (s *Server) handleSuggest(c *fiber.Ctx) error {
	var in dosing.Input
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": bodyError(err)})
	}

	if profile, err := s.store.GetProfile(store.DefaultUserID); err == nil {
		if in.CarbRatio == nil {
			in.CarbRatio = &profile.CarbRatio
		}
		if in.SensitivityFactor == nil {
			in.SensitivityFactor = &profile.SensitivityFactor
		}
		if in.TargetGlucose == nil {
			in.TargetGlucose = &profile.TargetGlucose
		}
	}

	result, err := dosing.Suggest(in)
	if err != nil {
		var valErr *dosing.ValidationError
		if errors.As(err, &valErr) {
			s.metrics.RecordValidationFailure(valErr.Field)
			return c.Status(400).JSON(fiber.Map{"error": valErr.Error()})
		}
		s.logger.Error("suggestion failed", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "internal error"})
	}

	s.metrics.RecordSuggestion()

	audit := &store.DoseSuggestion{
		UserID:            store.DefaultUserID,
		Carbs:             in.Carbs,
		CurrentGlucose:    in.CurrentGlucose,
		CarbRatio:         result.CarbRatio,
		SensitivityFactor: result.SensitivityFactor,
		TargetGlucose:     result.TargetGlucose,
		CarbUnits:         result.CarbUnits,
		CorrectionUnits:   result.CorrectionUnits,
		SuggestedBolus:    result.SuggestedBolus,
	}
	if err := s.store.CreateSuggestion(audit); err != nil {
		s.logger.Warn("failed to record suggestion audit", zap.Error(err))
	}

	return c.JSON(fiber.Map{
		"suggested_bolus": result.SuggestedBolus,
		"details": fiber.Map{
			"carb_units":         result.CarbUnits,
			"correction_units":   result.CorrectionUnits,
			"carb_ratio":         result.CarbRatio,
			"sensitivity_factor": result.SensitivityFactor,
			"target_glucose":     result.TargetGlucose,
		},
	})
}

func (s *Server) handleListSuggestions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	suggestions, err := s.store.ListSuggestions(s.userID(c), limit)
	if err != nil {
		s.logger.Error("failed to list suggestions", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list suggestions"})
	}
	return c.JSON(suggestions)
}

// ==================== Journal ====================

func (s *Server) handleCreateEntry(c *fiber.Ctx) error {
	var entry entries.Entry
	if err := c.BodyParser(&entry); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": bodyError(err)})
	}
	entry.ID = ""
	entry.UserID = s.userID(c)

	if err := s.entries.Create(&entry); err != nil {
		if apperrors.IsAppError(err) {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		s.logger.Error("failed to create entry", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to create entry"})
	}

	s.metrics.RecordEntryCreated(string(entry.Type))
	s.hub.broadcast(fiber.Map{"type": "entry_created", "entry": entry})

	return c.Status(201).JSON(entry)
}

func (s *Server) handleListEntries(c *fiber.Ctx) error {
	var entryType entries.Type
	if raw := c.Query("type"); raw != "" {
		parsed, err := entries.ParseType(raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		entryType = parsed
	}

	var start, end time.Time
	if days := c.QueryInt("days", 0); days > 0 {
		start = time.Now().AddDate(0, 0, -days)
	}
	limit := c.QueryInt("limit", 100)

	list, err := s.entries.List(s.userID(c), entryType, start, end, limit)
	if err != nil {
		s.logger.Error("failed to list entries", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to list entries"})
	}
	return c.JSON(list)
}

func (s *Server) handleGetEntry(c *fiber.Ctx) error {
	entry, err := s.entries.Get(s.userID(c), c.Params("id"))
	if err != nil {
		if errors.Is(err, apperrors.ErrEntryNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "entry not found"})
		}
		s.logger.Error("failed to get entry", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to get entry"})
	}
	return c.JSON(entry)
}

func (s *Server) handleDeleteEntry(c *fiber.Ctx) error {
	if err := s.entries.Delete(s.userID(c), c.Params("id")); err != nil {
		if errors.Is(err, apperrors.ErrEntryNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "entry not found"})
		}
		s.logger.Error("failed to delete entry", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete entry"})
	}
	return c.SendStatus(204)
}

// ==================== Trends ====================

func (s *Server) handleStats(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)
	if days <= 0 || days > 365 {
		return c.Status(400).JSON(fiber.Map{"error": "days must be between 1 and 365"})
	}

	now := time.Now()
	series, err := s.entries.GlucoseSeries(s.userID(c), now.AddDate(0, 0, -days), now)
	if err != nil {
		s.logger.Error("failed to load glucose series", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to compute stats"})
	}

	samples := make([]stats.Sample, len(series))
	for i, e := range series {
		samples[i] = stats.Sample{Value: e.Value, At: e.OccurredAt}
	}

	return c.JSON(fiber.Map{
		"days":    days,
		"summary": stats.Summarize(samples),
	})
}

func (s *Server) handleStreaks(c *fiber.Ctx) error {
	userID := s.userID(c)
	now := time.Now()

	days, err := s.entries.CountByDay(userID, now.AddDate(-1, 0, 0), now)
	if err != nil {
		s.logger.Error("failed to load activity days", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to compute streaks"})
	}

	state := streaks.Compute(days, now)

	meds, err := s.entries.List(userID, entries.TypeMedication, now.AddDate(0, 0, -30), now, 0)
	if err != nil {
		s.logger.Error("failed to load medications", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to compute streaks"})
	}
	state.Adherence = streaks.Adherence(meds)

	return c.JSON(state)
}

// ==================== Dosing profile ====================

func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	profile, err := s.store.GetProfile(s.userID(c))
	if err != nil {
		if errors.Is(err, apperrors.ErrProfileNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "profile not found"})
		}
		s.logger.Error("failed to get profile", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to get profile"})
	}
	return c.JSON(profile)
}

func (s *Server) handleUpdateProfile(c *fiber.Ctx) error {
	var req struct {
		CarbRatio         *float64 `json:"carb_ratio"`
		SensitivityFactor *float64 `json:"sensitivity_factor"`
		TargetGlucose     *float64 `json:"target_glucose"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": bodyError(err)})
	}

	// Supplied values run through the same validation as request values so
	// a bad profile can never poison later suggestions. Omitted fields fall
	// back to the built-in defaults; an explicit zero is rejected, not
	// defaulted.
	trial := dosing.Input{
		Carbs:             1,
		CurrentGlucose:    1,
		CarbRatio:         req.CarbRatio,
		SensitivityFactor: req.SensitivityFactor,
		TargetGlucose:     req.TargetGlucose,
	}
	result, err := dosing.Suggest(trial)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	profile := &store.DosingProfile{
		UserID:            s.userID(c),
		CarbRatio:         result.CarbRatio,
		SensitivityFactor: result.SensitivityFactor,
		TargetGlucose:     result.TargetGlucose,
	}

	if err := s.store.SaveProfile(profile); err != nil {
		s.logger.Error("failed to save profile", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "failed to save profile"})
	}
	return c.JSON(profile)
}

// ==================== Nightscout ====================

func (s *Server) handleNightscoutSync(c *fiber.Ctx) error {
	if s.syncer == nil {
		return c.Status(400).JSON(fiber.Map{"error": "nightscout is not configured"})
	}

	imported, err := s.syncer.Sync(c.Context(), s.userID(c))
	if err != nil {
		s.metrics.RecordSyncRun("failure")
		switch apperrors.GetCode(err) {
		case apperrors.ErrSyncUnavailable.Code:
			return c.Status(503).JSON(fiber.Map{"error": "nightscout server unavailable"})
		case apperrors.ErrSyncRejected.Code:
			return c.Status(502).JSON(fiber.Map{"error": "nightscout rejected the request"})
		}
		s.logger.Error("nightscout sync failed", zap.Error(err))
		return c.Status(502).JSON(fiber.Map{"error": "sync failed"})
	}

	s.metrics.RecordSyncRun("success")
	s.metrics.RecordSyncImported(imported)

	return c.JSON(fiber.Map{"imported": imported})
}
