package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sandeepkv93/companiond/internal/automation"
	"github.com/sandeepkv93/companiond/internal/commands"
	"github.com/sandeepkv93/companiond/internal/companion"
	"github.com/sandeepkv93/companiond/internal/messaging"
	"github.com/sandeepkv93/companiond/internal/model"
	"github.com/sandeepkv93/companiond/internal/storage"
	"github.com/sandeepkv93/companiond/internal/timers"
)

// Config for the HTTP API handler.
type Config struct {
	Service  *companion.Service
	BasePath string
	Logger   *slog.Logger
	Now      func() time.Time
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"timer \"tea\" not found"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError is the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type handlerDeps struct {
	svc    *companion.Service
	logger *slog.Logger
	now    func() time.Time
}

// New returns an HTTP handler exposing the companion API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("server: service is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	deps := handlerDeps{svc: cfg.Service, logger: cfg.Logger, now: cfg.Now}
	if deps.logger == nil {
		deps.logger = slog.Default()
	}
	if deps.now == nil {
		deps.now = time.Now
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				msgs = append(msgs, e.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(deps.logger))
	hcfg := huma.DefaultConfig("Companion API", "0.1.0")
	hcfg.OpenAPIPath = basePath + "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group, deps)
	registerTimers(group, deps)
	registerAutomations(group, deps)
	registerConversations(group, deps)
	registerAssistant(group, deps)
	router.Get(basePath+"/events/stream", streamEvents(deps.svc.Bus(), deps.logger))

	return router, nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"took", time.Since(start),
			)
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ce *commands.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case commands.ErrCodeNotFound:
			return newAPIError(http.StatusNotFound, string(ce.Code), ce.Message, nil)
		case commands.ErrCodeHandlerMissing:
			return newAPIError(http.StatusNotImplemented, string(ce.Code), ce.Message, nil)
		default:
			return newAPIError(http.StatusBadRequest, string(ce.Code), ce.Message, nil)
		}
	}
	if errors.Is(err, model.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "invalid_argument", err.Error(), map[string]any{"field": ve.Field})
	}
	switch {
	case errors.Is(err, automation.ErrOrphaned):
		return newAPIError(http.StatusConflict, "orphaned", err.Error(), nil)
	case errors.Is(err, automation.ErrInvalidPause),
		errors.Is(err, messaging.ErrNoAttachment),
		errors.Is(err, messaging.ErrNotVoice):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

type healthOutput struct {
	Body struct {
		Status      string `json:"status"`
		Timers      int    `json:"timers"`
		Automations int    `json:"automations"`
	}
}

func registerHealth(api huma.API, d handlerDeps) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		out.Body.Timers = len(d.svc.Timers())
		out.Body.Automations = len(d.svc.Automations())
		return out, nil
	})
}

type timerOutput struct {
	Body TimerResponse
}

type timerListOutput struct {
	Body []TimerResponse
}

type lifecycleOutput struct {
	Body LifecycleResponse
}

type timerRefInput struct {
	Ref string `path:"ref" doc:"Timer id or name"`
}

func registerTimers(api huma.API, d handlerDeps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-timers",
		Method:      http.MethodGet,
		Path:        "/timers",
		Summary:     "List timers",
	}, func(ctx context.Context, _ *struct{}) (*timerListOutput, error) {
		return &timerListOutput{Body: timerResponses(d.svc.Timers())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-timer",
		Method:        http.MethodPost,
		Path:          "/timers",
		Summary:       "Create countdown or stopwatch",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateTimerRequest
	}) (*timerOutput, error) {
		tm, err := d.svc.CreateTimer(ctx, input.Body.Name, model.TimerType(input.Body.Type), input.Body.DurationSeconds,
			timers.Options{AutoRestart: input.Body.AutoRestart})
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.Start {
			if tm, _, err = d.svc.StartTimer(ctx, tm.ID); err != nil {
				return nil, handleError(err)
			}
		}
		return &timerOutput{Body: timerResponse(tm)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-pomodoro",
		Method:        http.MethodPost,
		Path:          "/timers/pomodoro",
		Summary:       "Create pomodoro timer",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreatePomodoroRequest
	}) (*timerOutput, error) {
		b := input.Body
		tm, err := d.svc.CreatePomodoro(ctx, b.Name, model.PomodoroConfig{
			WorkDuration:            b.WorkMinutes * 60,
			BreakDuration:           b.BreakMinutes * 60,
			LongBreakDuration:       b.LongBreakMinutes * 60,
			SessionsBeforeLongBreak: b.Sessions,
			AutoRestart:             b.AutoRestart,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if b.Start {
			if tm, _, err = d.svc.StartTimer(ctx, tm.ID); err != nil {
				return nil, handleError(err)
			}
		}
		return &timerOutput{Body: timerResponse(tm)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-timer",
		Method:      http.MethodGet,
		Path:        "/timers/{ref}",
		Summary:     "Get timer",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *timerRefInput) (*timerOutput, error) {
		tm, err := d.svc.Timer(input.Ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &timerOutput{Body: timerResponse(tm)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-timer",
		Method:        http.MethodDelete,
		Path:          "/timers/{ref}",
		Summary:       "Cancel timer",
		Description:   "Automations waiting on the timer are marked orphaned and disabled.",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *timerRefInput) (*struct{}, error) {
		if _, err := d.svc.DeleteTimer(ctx, input.Ref); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	lifecycles := []struct {
		verb string
		op   func(context.Context, string) (model.Timer, timers.Outcome, error)
	}{
		{"start", d.svc.StartTimer},
		{"pause", d.svc.PauseTimer},
		{"reset", d.svc.ResetTimer},
	}
	for _, lc := range lifecycles {
		op := lc.op
		huma.Register(api, huma.Operation{
			OperationID: lc.verb + "-timer",
			Method:      http.MethodPost,
			Path:        "/timers/{ref}/" + lc.verb,
			Summary:     strings.ToUpper(lc.verb[:1]) + lc.verb[1:] + " timer",
			Errors:      []int{http.StatusNotFound},
		}, func(ctx context.Context, input *timerRefInput) (*lifecycleOutput, error) {
			tm, out, err := op(ctx, input.Ref)
			if err != nil {
				return nil, handleError(err)
			}
			return &lifecycleOutput{Body: LifecycleResponse{Timer: timerResponse(tm), Outcome: out.String()}}, nil
		})
	}
}

type automationOutput struct {
	Body AutomationResponse
}

type automationListOutput struct {
	Body []AutomationResponse
}

type automationIDInput struct {
	ID string `path:"id"`
}

func registerAutomations(api huma.API, d handlerDeps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-automations",
		Method:      http.MethodGet,
		Path:        "/automations",
		Summary:     "List automations",
	}, func(ctx context.Context, _ *struct{}) (*automationListOutput, error) {
		list := d.svc.Automations()
		now := d.now()
		out := make([]AutomationResponse, 0, len(list))
		for _, a := range list {
			out = append(out, automationResponse(a, now))
		}
		return &automationListOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-automation",
		Method:        http.MethodPost,
		Path:          "/automations",
		Summary:       "Create automation",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateAutomationRequest
	}) (*automationOutput, error) {
		b := input.Body
		a, err := d.svc.CreateAutomation(ctx, b.Name, model.TriggerKind(b.Trigger),
			model.TriggerConfig{Time: b.Time, DayOfWeek: b.Days, TimerID: b.Timer}, b.Action.toAction())
		if err != nil {
			return nil, handleError(err)
		}
		return &automationOutput{Body: automationResponse(a, d.now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-automation",
		Method:      http.MethodGet,
		Path:        "/automations/{id}",
		Summary:     "Get automation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *automationIDInput) (*automationOutput, error) {
		a, err := d.svc.Automation(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &automationOutput{Body: automationResponse(a, d.now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-automation",
		Method:        http.MethodDelete,
		Path:          "/automations/{id}",
		Summary:       "Delete automation",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *automationIDInput) (*struct{}, error) {
		if err := d.svc.DeleteAutomation(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-automation",
		Method:      http.MethodPost,
		Path:        "/automations/{id}/toggle",
		Summary:     "Flip the enabled flag",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *automationIDInput) (*automationOutput, error) {
		a, err := d.svc.ToggleAutomation(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &automationOutput{Body: automationResponse(a, d.now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pause-automation",
		Method:      http.MethodPost,
		Path:        "/automations/{id}/pause",
		Summary:     "Pause for a number of minutes",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body PauseAutomationRequest
	}) (*automationOutput, error) {
		a, err := d.svc.PauseAutomation(ctx, input.ID, time.Duration(input.Body.Minutes)*time.Minute)
		if err != nil {
			return nil, handleError(err)
		}
		return &automationOutput{Body: automationResponse(a, d.now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resume-automation",
		Method:      http.MethodPost,
		Path:        "/automations/{id}/resume",
		Summary:     "Clear a pause",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *automationIDInput) (*automationOutput, error) {
		a, err := d.svc.ResumeAutomation(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &automationOutput{Body: automationResponse(a, d.now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-firings",
		Method:      http.MethodGet,
		Path:        "/firings",
		Summary:     "List automation firings, newest first",
	}, func(ctx context.Context, input *struct {
		AutomationID string `query:"automation_id"`
		Limit        int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		Offset       int    `query:"offset" minimum:"0"`
	}) (*struct {
		Body []FiringResponse
	}, error) {
		recs, err := d.svc.Firings(ctx, storage.FiringListFilter{
			AutomationID: input.AutomationID,
			Limit:        input.Limit,
			Offset:       input.Offset,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]FiringResponse, 0, len(recs))
		for _, r := range recs {
			out = append(out, firingResponse(r))
		}
		return &struct {
			Body []FiringResponse
		}{Body: out}, nil
	})
}

type messageOutput struct {
	Body MessageResponse
}

type calendarInput struct {
	CalendarID string `path:"calendar_id"`
}

func registerConversations(api huma.API, d handlerDeps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-conversations",
		Method:      http.MethodGet,
		Path:        "/conversations",
		Summary:     "List conversation ids",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []string
	}, error) {
		ids, err := d.svc.Messaging().Conversations(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string
		}{Body: ids}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/conversations/{calendar_id}/messages",
		Summary:     "Read a conversation with text decrypted",
	}, func(ctx context.Context, input *calendarInput) (*struct {
		Body []MessageResponse
	}, error) {
		list, err := d.svc.Messaging().Decrypt(ctx, input.CalendarID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MessageResponse
		}{Body: decryptedResponses(list)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          "/conversations/{calendar_id}/messages",
		Summary:       "Send an encrypted text message",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CalendarID string `path:"calendar_id"`
		Body       SendMessageRequest
	}) (*messageOutput, error) {
		b := input.Body
		msg, err := d.svc.SendMessage(ctx, input.CalendarID, b.Text, b.Sender, messaging.SendOptions{
			TextColor: b.TextColor,
			FontStyle: model.FontStyle(b.FontStyle),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &messageOutput{Body: messageResponse(msg, b.Text, false)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "send-file",
		Method:        http.MethodPost,
		Path:          "/conversations/{calendar_id}/files",
		Summary:       "Share a file attachment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CalendarID string `path:"calendar_id"`
		Body       SendFileRequest
	}) (*messageOutput, error) {
		b := input.Body
		msg, err := d.svc.SendFileAttachment(ctx, input.CalendarID, b.Data, b.FileName, b.Description, b.Sender, b.Encrypt, messaging.Source{
			Feature:      b.SourceFeature,
			ID:           b.SourceID,
			Metadata:     b.Metadata,
			AllowEditing: b.AllowEditing,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &messageOutput{Body: messageResponse(msg, d.svc.Messaging().DecryptedText(msg), false)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "send-voice",
		Method:        http.MethodPost,
		Path:          "/conversations/{calendar_id}/voice",
		Summary:       "Send a voice message",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		CalendarID string `path:"calendar_id"`
		Body       SendVoiceRequest
	}) (*messageOutput, error) {
		b := input.Body
		msg, err := d.svc.SendVoice(ctx, input.CalendarID, b.Sender, b.Audio, b.MimeType, time.Duration(b.DurationMs)*time.Millisecond)
		if err != nil {
			return nil, handleError(err)
		}
		return &messageOutput{Body: messageResponse(msg, "", false)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-message-content",
		Method:      http.MethodGet,
		Path:        "/conversations/{calendar_id}/messages/{message_id}/content",
		Summary:     "Decrypted attachment or voice audio",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CalendarID string `path:"calendar_id"`
		MessageID  string `path:"message_id"`
	}) (*struct {
		Body FileContentResponse
	}, error) {
		msgs, err := d.svc.Messaging().Messages(ctx, input.CalendarID)
		if err != nil {
			return nil, handleError(err)
		}
		for _, msg := range msgs {
			if msg.ID != input.MessageID {
				continue
			}
			var out FileContentResponse
			switch msg.Kind {
			case model.PayloadVoice:
				out.Data, err = d.svc.Messaging().VoiceAudio(msg)
				out.FileType = msg.Voice.MimeType
			default:
				out.Data, err = d.svc.Messaging().OpenAttachment(msg)
				if msg.Attachment != nil {
					out.FileName = msg.Attachment.FileName
					out.FileType = msg.Attachment.FileType
				}
			}
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body FileContentResponse
			}{Body: out}, nil
		}
		return nil, newAPIError(http.StatusNotFound, "not_found", "message not found", map[string]any{"message_id": input.MessageID})
	})

	huma.Register(api, huma.Operation{
		OperationID:   "clear-conversation",
		Method:        http.MethodDelete,
		Path:          "/conversations/{calendar_id}",
		Summary:       "Delete every message in a conversation",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *calendarInput) (*struct{}, error) {
		if err := d.svc.ClearConversation(ctx, input.CalendarID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerAssistant(api huma.API, d handlerDeps) {
	handlers := commands.ForService(d.svc)
	huma.Register(api, huma.Operation{
		OperationID: "run-command",
		Method:      http.MethodPost,
		Path:        "/assistant/commands",
		Summary:     "Run an assistant command",
		Description: "Accepts the same language as the dashboard palette, e.g. `timer 5m tea` or `remind daily 09:00 standup`.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CommandRequest
	}) (*struct {
		Body CommandResponse
	}, error) {
		res, err := commands.Run(ctx, input.Body.Input, handlers)
		if err != nil {
			d.logger.Debug("assistant command failed", "input", input.Body.Input, "err", err)
			return nil, handleError(err)
		}
		return &struct {
			Body CommandResponse
		}{Body: CommandResponse{Message: res.Message}}, nil
	})
}
