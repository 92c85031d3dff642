package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sorobanclub/backend/core"
	"github.com/sorobanclub/backend/core/session"
	"github.com/sorobanclub/backend/core/student"
	"github.com/sorobanclub/backend/core/user"
)

type studentApi struct {
	svc   student.Service
	users user.Service
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc student.Service, userSvc user.Service) {
	api := studentApi{svc: svc, users: userSvc}

	sg := g.Group("/students", jwt)
	sg.POST("", api.create)
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update)
	sg.DELETE("/:id", api.destroy, adminMiddleware())

	cg := g.Group("/classrooms", jwt)
	cg.POST("", api.createClassroom)
	cg.GET("", api.queryClassrooms)
}

// Handlers

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}

	actor, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	// parents register their own children; admins register anyone's
	if !actor.IsAdmin() {
		if !actor.IsParent() {
			return errHttpForbidden
		}
		data.ParentID = actor.ID
	}

	if err := data.Validate(); err != nil {
		return err
	}

	stu, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, stu)
}

func (api *studentApi) query(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rctx := ctx.Request().Context()

	var students []student.Student
	switch {
	case actor.IsParent():
		students, err = api.svc.QueryByParent(rctx, actor.ID)
	case actor.IsTeacher():
		classID := ctx.QueryParam("classroom_id")
		if classID == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "classroom_id", Error: "classroom_id is required"})
		}
		class, cErr := api.svc.GetClassroom(rctx, classID)
		if cErr != nil {
			return cErr
		}
		if class.TeacherID != actor.ID {
			return errHttpForbidden
		}
		students, err = api.svc.QueryByClassroom(rctx, classID)
	case actor.IsAdmin():
		if parentID := ctx.QueryParam("parent_id"); parentID != "" {
			students, err = api.svc.QueryByParent(rctx, parentID)
		} else if classID := ctx.QueryParam("classroom_id"); classID != "" {
			students, err = api.svc.QueryByClassroom(rctx, classID)
		} else {
			return core.NewValidationError(nil, core.FieldError{Field: "parent_id", Error: "parent_id or classroom_id is required"})
		}
	default:
		return errHttpForbidden
	}
	if err != nil {
		return err
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	// same visibility policy as observing the student's sessions
	ok, err := api.svc.CanPerformAction(ctx.Request().Context(), actor, ctx.Param("id"), session.ActionObserve)
	if err != nil {
		return err
	}
	if !ok {
		return errHttpNotFound
	}

	stu, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stu)
}

func (api *studentApi) update(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	stu, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && stu.ParentID != actor.ID {
		return errHttpNotFound
	}

	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	// classroom assignment is an admin concern
	if data.ClassroomID != nil && !actor.IsAdmin() {
		return errHttpForbidden
	}

	stu, err = api.svc.Update(ctx.Request().Context(), stu.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stu)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

type NewClassroomRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	// TeacherID is honored for admins only; teachers create their own rooms.
	TeacherID string `json:"teacher_id" validate:"omitempty,uuid4"`
}

func (cr *NewClassroomRequest) Validate() error {
	cr.Name = core.CleanString(cr.Name)
	return core.Validate.Struct(cr)
}

func (api *studentApi) createClassroom(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !(actor.IsTeacher() || actor.IsAdmin()) {
		return errHttpForbidden
	}

	var data NewClassroomRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClassroomRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	teacherID := actor.ID
	if actor.IsAdmin() && data.TeacherID != "" {
		teacherID = data.TeacherID
	}

	class, err := api.svc.CreateClassroom(ctx.Request().Context(), data.Name, teacherID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, class)
}

func (api *studentApi) queryClassrooms(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	teacherID := actor.ID
	if actor.IsAdmin() && ctx.QueryParam("teacher_id") != "" {
		teacherID = ctx.QueryParam("teacher_id")
	} else if !actor.IsTeacher() && !actor.IsAdmin() {
		return errHttpForbidden
	}

	classes, err := api.svc.QueryClassroomsByTeacher(ctx.Request().Context(), teacherID)
	if err != nil {
		return err
	}
	if classes == nil {
		classes = []student.Classroom{}
	}
	return ctx.JSON(http.StatusOK, classes)
}
