package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tripmind_go_backend/internal/auth"
	apperrors "tripmind_go_backend/internal/errors"
	"tripmind_go_backend/internal/models"
	"tripmind_go_backend/internal/providers"
	"tripmind_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ActionChat                = "chat"
	ActionVoiceToText         = "voice_to_text"
	ActionTextToSpeech        = "text_to_speech"
	ActionAnalyzeImage        = "analyze_image"
	ActionGenerateSuggestions = "generate_suggestions"

	defaultConversationLimit = 50
	maxConversationLimit     = 200
	defaultTripLimit         = 20
)

type Deps struct {
	Auth           *auth.Authenticator
	Agent          *services.AgentService
	Gateway        *services.GatewayService
	Media          *services.MediaService
	Routines       *services.RoutineMiningService
	Drafts         services.DraftTripServiceDB
	Trips          services.TripServiceDB
	Documents      *services.TripDocumentService
	Conversations  services.ConversationServiceDB
	Calendar       *services.CalendarService
	Locales        *services.LocaleResolver
	DraftListLimit int
	Now            func() time.Time
}

func SetupRoutes(r *gin.Engine, d Deps) {
	if d.Now == nil {
		d.Now = time.Now
	}
	api := r.Group("/api")
	api.Use(d.Auth.Middleware())
	{
		api.POST("/assistant", assistantHandler(d))
		api.POST("/route", routeHandler(d.Gateway, d.Conversations))
		api.GET("/drafts", listDraftsHandler(d))
		api.GET("/drafts/calendar.ics", draftsCalendarHandler(d))
		api.POST("/drafts/:id/accept", transitionDraftHandler(d.Drafts, models.DraftStatusAccepted))
		api.POST("/drafts/:id/dismiss", transitionDraftHandler(d.Drafts, models.DraftStatusDismissed))
		api.GET("/trips", listTripsHandler(d.Trips))
		api.GET("/trips/:id/confirmation.pdf", tripConfirmationHandler(d))
		api.GET("/recordings", listRecordingsHandler(d.Media))
		api.GET("/recordings/:name", recordingHandler(d.Media))
		api.GET("/conversation", conversationHandler(d.Conversations))
		api.GET("/usage", usageHandler(d.Conversations))
	}
}

type assistantRequest struct {
	UserID         string                 `json:"userId"`
	Message        string                 `json:"message"`
	Context        services.ClientContext `json:"context"`
	Action         string                 `json:"action"`
	Audio          string                 `json:"audio,omitempty"`
	Image          string                 `json:"image,omitempty"`
	Language       string                 `json:"language,omitempty"`
	Voice          string                 `json:"voice,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
}

func assistantHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		var req assistantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("Invalid request body"))
			return
		}
		if req.UserID != "" && req.UserID != user.ID.String() {
			apperrors.HandleError(c, apperrors.New403Error())
			return
		}
		if req.IdempotencyKey == "" {
			req.IdempotencyKey = c.GetHeader("Idempotency-Key")
		}

		if err := d.Gateway.CheckRate(c.Request.Context(), c.ClientIP()); err != nil {
			apperrors.HandleError(c, toHTTPError(err))
			return
		}

		ctx := c.Request.Context()
		switch strings.ToLower(strings.TrimSpace(req.Action)) {
		case "", ActionChat:
			result, err := d.Agent.HandleTurn(ctx, services.TurnRequest{
				UserID:         user.ID,
				Message:        req.Message,
				Context:        req.Context,
				IdempotencyKey: req.IdempotencyKey,
			})
			if err != nil {
				apperrors.HandleError(c, toHTTPError(err))
				return
			}
			c.JSON(http.StatusOK, gin.H{"assistant": result})

		case ActionVoiceToText:
			audio, err := base64.StdEncoding.DecodeString(req.Audio)
			if err != nil || len(audio) == 0 {
				apperrors.HandleError(c, apperrors.New400Error("audio must be non-empty base64"))
				return
			}
			record, err := d.Media.Transcribe(ctx, user.ID, audio, req.Language)
			if err != nil {
				apperrors.HandleError(c, toHTTPError(err))
				return
			}
			c.JSON(http.StatusOK, gin.H{"transcription": record})

		case ActionTextToSpeech:
			audio, err := d.Media.SynthesizeSpeech(ctx, req.Message, req.Voice)
			if err != nil {
				apperrors.HandleError(c, toHTTPError(err))
				return
			}
			c.JSON(http.StatusOK, gin.H{"audio": base64.StdEncoding.EncodeToString(audio), "format": "mp3"})

		case ActionAnalyzeImage:
			image, err := base64.StdEncoding.DecodeString(req.Image)
			if err != nil || len(image) == 0 {
				apperrors.HandleError(c, apperrors.New400Error("image must be non-empty base64"))
				return
			}
			analysis, err := d.Media.AnalyzeImage(ctx, image, req.Message)
			if err != nil {
				apperrors.HandleError(c, toHTTPError(err))
				return
			}
			c.JSON(http.StatusOK, gin.H{"analysis": analysis})

		case ActionGenerateSuggestions:
			locale := d.Locales.Resolve(user, req.Context)
			drafts, err := d.Routines.GenerateSuggestions(ctx, user.ID, locale.Location, d.Now())
			if err != nil {
				apperrors.HandleError(c, toHTTPError(err))
				return
			}
			c.JSON(http.StatusOK, gin.H{"suggestions": drafts})

		default:
			apperrors.HandleError(c, apperrors.New400Error("Unknown action: "+req.Action))
		}
	}
}

type routeRequest struct {
	TaskType       string                 `json:"taskType"`
	Prompt         string                 `json:"prompt"`
	Context        map[string]interface{} `json:"context"`
	PreferredModel string                 `json:"preferredModel,omitempty"`
	Complexity     string                 `json:"complexity,omitempty"`
}

func routeHandler(gateway *services.GatewayService, conversations services.ConversationServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req routeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.HandleError(c, apperrors.New400Error("Invalid request body"))
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			apperrors.HandleError(c, apperrors.New400Error("prompt is required"))
			return
		}

		result, err := gateway.Route(c.Request.Context(), c.ClientIP(), services.RouteRequest{
			TaskType:       services.TaskType(req.TaskType),
			Prompt:         req.Prompt,
			Context:        req.Context,
			PreferredModel: req.PreferredModel,
			Complexity:     req.Complexity,
		})
		if err != nil {
			apperrors.HandleError(c, toHTTPError(err))
			return
		}
		if user, ok := auth.CurrentUser(c); ok && result.Usage != nil {
			_, model := providers.ParseModelRef(result.Model, "")
			record := &models.UsageRecord{
				UserID:           user.ID,
				Model:            model,
				PromptTokens:     result.Usage.PromptTokens,
				CompletionTokens: result.Usage.CompletionTokens,
				USDCost:          providers.EstimateCostUSD(model, *result.Usage),
			}
			if err := conversations.SaveUsage(c.Request.Context(), record); err != nil {
				log.Warn().Err(err).Str("userID", user.ID.String()).Msg("Failed to record route usage")
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"result":    result.Result,
			"model":     result.Model,
			"taskType":  result.TaskType,
			"timestamp": result.Timestamp,
		})
	}
}

func listDraftsHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := auth.CurrentUser(c)
		drafts, err := d.Drafts.ListPendingDrafts(c.Request.Context(), user.ID, d.DraftListLimit, d.Now())
		if err != nil {
			apperrors.HandleError(c, toHTTPError(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"drafts": drafts})
	}
}

func draftsCalendarHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := auth.CurrentUser(c)
		feed, err := d.Calendar.PendingDraftsICS(c.Request.Context(), user.ID, d.Now())
		if err != nil {
			apperrors.HandleError(c, toHTTPError(err))
			return
		}
		c.Header("Content-Disposition", `attachment; filename="draft-trips.ics"`)
		c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(feed))
	}
}

func transitionDraftHandler(drafts services.DraftTripServiceDB, status string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := auth.CurrentUser(c)
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, apperrors.New400Error("Invalid draft id"))
			return
		}
		draft, err := drafts.TransitionDraft(c.Request.Context(), id, user.ID, status)
		if err != nil {
			apperrors.HandleError(c, toHTTPError(err))
			return
		}
		log.Info().Str("draftID", id.String()).Str("status", status).Msg("Draft transitioned")
		c.JSON(http.StatusOK, gin.H{"draft": draft})
	}
}

func listTripsHandler(trips services.TripServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := auth.CurrentUser(c)
		list, err := trips.ListTrips(c.Request.Context(), user.ID, defaultTripLimit)
		if err != nil {
			apperrors.HandleError(c, toHTTPError(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"trips": list})
	}
}

func tripConfirmationHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := auth.CurrentUser(c)
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, apperrors.New400Error("Invalid trip id"))
			return
		}
		trip, err := d.Trips.GetTrip(c.Request.Context(), id, user.ID)
		if err != nil {
			apperrors.HandleError(c, toHTTPError(err))
			return
		}
		doc, err := d.Documents.ConfirmationPDF(trip, d.Locales.Resolve(user, services.ClientContext{}))
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}
		c.Header("Content-Disposition", `attachment; filename="trip-`+trip.ID.String()+`.pdf"`)
		c.Data(http.StatusOK, "application/pdf", doc)
	}
}

func listRecordingsHandler(media *services.MediaService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := auth.CurrentUser(c)
		names, err := media.ListRecordings(c.Request.Context(), user.ID)
		if err != nil {
			apperrors.HandleError(c, toHTTPError(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"recordings": names})
	}
}

func recordingHandler(media *services.MediaService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := auth.CurrentUser(c)
		audio, err := media.Recording(c.Request.Context(), user.ID, c.Param("name"))
		if err != nil {
			apperrors.HandleError(c, toHTTPError(err))
			return
		}
		c.Data(http.StatusOK, "audio/webm", audio)
	}
}

func conversationHandler(conversations services.ConversationServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := auth.CurrentUser(c)
		limit := defaultConversationLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				apperrors.HandleError(c, apperrors.New400Error("limit must be a positive integer"))
				return
			}
			limit = min(n, maxConversationLimit)
		}
		messages, err := conversations.GetRecentMessages(c.Request.Context(), user.ID, limit)
		if err != nil {
			apperrors.HandleError(c, toHTTPError(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": messages})
	}
}

func usageHandler(conversations services.ConversationServiceDB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := auth.CurrentUser(c)
		totals, err := conversations.GetUsageTotals(c.Request.Context(), user.ID)
		if err != nil {
			apperrors.HandleError(c, toHTTPError(err))
			return
		}
		c.JSON(http.StatusOK, totals)
	}
}

// toHTTPError maps service sentinels onto the public error taxonomy.
func toHTTPError(err error) *apperrors.CustomError {
	var custom *apperrors.CustomError
	switch {
	case errors.As(err, &custom):
		return custom
	case errors.Is(err, services.ErrRateLimitExceeded):
		return apperrors.New429Error()
	case errors.Is(err, services.ErrInvalidIntent),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrUnknownProvider):
		return apperrors.New400Error(err.Error())
	case errors.Is(err, services.ErrDraftNotFound):
		return apperrors.New404Error("Draft not found")
	case errors.Is(err, services.ErrRecordingNotFound):
		return apperrors.New404Error("Recording not found")
	case errors.Is(err, services.ErrTripNotFound):
		return apperrors.New404Error("Trip not found")
	case errors.Is(err, services.ErrUserNotFound):
		return apperrors.New404Error("User not found")
	case errors.Is(err, services.ErrInvalidTransition):
		return apperrors.New409Error("Draft is no longer pending")
	case errors.Is(err, services.ErrTranscription):
		return apperrors.NewTranscriptionError(err)
	case errors.Is(err, services.ErrSynthesis):
		return apperrors.NewSynthesisError(err)
	case errors.Is(err, services.ErrAnalysis):
		return apperrors.NewAnalysisError(err)
	case errors.Is(err, services.ErrProvider):
		return apperrors.NewProviderError(err)
	case errors.Is(err, services.ErrPersistence):
		return apperrors.NewPersistenceError(err)
	case errors.Is(err, services.ErrCapabilityUnavailable):
		return apperrors.New404Error("Audio archive is not configured")
	default:
		return apperrors.New500Error(err)
	}
}
