package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/sorobanclub/backend/core"
	"github.com/sorobanclub/backend/core/session"
	"github.com/sorobanclub/backend/core/student"
	"github.com/sorobanclub/backend/core/user"
	realtimesvc "github.com/sorobanclub/backend/services/realtime"
)

type realtimeApi struct {
	hub      *realtimesvc.Hub
	students student.Service
	users    user.Service
}

func registerRealtimeAPI(g *echo.Group, _ echo.MiddlewareFunc, hub *realtimesvc.Hub, students student.Service, userSvc user.Service) {
	api := realtimeApi{hub: hub, students: students, users: userSvc}

	// browsers cannot set headers on websocket dials; the token rides the
	// query string for this route only
	wsJWT := middleware.JWTWithConfig(middleware.JWTConfig{
		SigningKey:    appJWTConfig.SigningKey,
		SigningMethod: appJWTConfig.SigningMethod,
		ContextKey:    appJWTConfig.ContextKey,
		Claims:        new(Claims),
		TokenLookup:   "query:token",
	})
	g.GET("/realtime", api.subscribe, wsJWT)
}

// subscribe upgrades to a websocket after checking the actor may observe
// every requested channel.
func (api *realtimeApi) subscribe(ctx echo.Context) error {
	requested := ctx.QueryParams()["channel"]
	if len(requested) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "channel", Error: "at least one channel is required"})
	}

	actor, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	channels := make([]session.Channel, 0, len(requested))
	for _, raw := range requested {
		ch, err := api.authorizeChannel(ctx, actor, raw)
		if err != nil {
			return err
		}
		channels = append(channels, ch)
	}

	return api.hub.Subscribe(ctx.Response(), ctx.Request(), channels...)
}

func (api *realtimeApi) authorizeChannel(ctx echo.Context, actor user.User, raw string) (session.Channel, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", core.NewValidationError(nil, core.FieldError{Field: "channel", Error: "malformed channel " + raw})
	}

	rctx := ctx.Request().Context()
	switch parts[0] {
	case "player":
		ok, err := api.students.CanPerformAction(rctx, actor, parts[1], session.ActionObserve)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errHttpForbidden
		}
		return session.PlayerChannel(parts[1]), nil

	case "classroom":
		if !actor.IsAdmin() {
			class, err := api.students.GetClassroom(rctx, parts[1])
			if err != nil {
				return "", err
			}
			if class.TeacherID != actor.ID {
				return "", errHttpForbidden
			}
		}
		return session.ClassroomChannel(parts[1]), nil

	default:
		return "", core.NewValidationError(nil, core.FieldError{Field: "channel", Error: "unknown channel kind " + parts[0]})
	}
}
