package echoapi

import (
	"encoding/json"
	"io/ioutil"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v81"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/registration"
	"github.com/vladapp/backend/core/school"
)

const (
	teachersFileField = "teachers"
	studentsFileField = "students"
	dataField         = "data"
)

type schoolApi struct {
	deps ServerDeps
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := schoolApi{deps: deps}

	sg := g.Group("/schools")

	// un-authed endpoints
	sg.POST("", api.create)
	sg.POST("/payment/webhook", api.paymentWebhook)

	// authed endpoints
	sg.GET("", api.query, jwt)
	sg.GET("/:id", api.retrieve, jwt)
}

// Handlers

// create registers a school from a multipart upload: a JSON "data" part plus
// one CSV file per account kind. It blocks until the payment outcome is known.
func (api *schoolApi) create(ctx echo.Context) error {
	var data NewSchoolRequest
	if err := json.Unmarshal([]byte(ctx.FormValue(dataField)), &data); err != nil {
		return core.NewValidationError(errors.New("invalid data payload"))
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	teacherCSV, err := readUpload(ctx, teachersFileField)
	if err != nil {
		return err
	}
	studentCSV, err := readUpload(ctx, studentsFileField)
	if err != nil {
		return err
	}

	teachers, teacherErrs, err := school.ParseTeacherRecords(teacherCSV)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: teachersFileField, Error: err.Error()})
	}
	students, studentErrs, err := school.ParseStudentRecords(studentCSV)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: studentsFileField, Error: err.Error()})
	}

	rctx := ctx.Request().Context()
	id, err := api.deps.Coordinator.Begin(rctx, registration.NewRegistration{
		Name:            data.Name,
		Email:           data.Email,
		Siret:           data.Siret,
		PaymentMethodID: data.PaymentMethodID,
		ManagedBy:       data.ManagedBy,
		Teachers:        teachers,
		Students:        students,
	})
	if err != nil {
		return errors.Wrap(err, "beginning registration")
	}

	outcome, err := api.deps.Coordinator.AwaitOutcome(rctx, id)
	if err != nil {
		return errors.Wrap(err, "awaiting registration outcome")
	}

	switch outcome.Status {
	case registration.OutcomeSucceeded:
		sch, err := api.deps.SchoolSvc.GetByID(rctx, outcome.SchoolID)
		if err != nil {
			return errors.Wrap(err, "finding school by ID")
		}
		return ctx.JSON(http.StatusCreated, NewSchoolResponse{
			School:      sch,
			SkippedRows: rowErrorDTOs(teacherErrs, studentErrs),
		})
	case registration.OutcomeTimedOut:
		return errPaymentTimedOut
	default:
		return errPaymentFailed
	}
}

// paymentWebhook ingests payment provider events. It always acknowledges with
// 200 so the provider stops retrying; stale events are a no-op.
func (api *schoolApi) paymentWebhook(ctx echo.Context) error {
	var ev stripe.Event
	if err := ctx.Bind(&ev); err != nil {
		return core.NewValidationError(errors.New("invalid event payload"))
	}

	subID, _ := ev.Data.Object["subscription"].(string)
	if subID == "" {
		return ctx.JSON(http.StatusOK, echo.Map{"received": true})
	}

	err := api.deps.Coordinator.HandleEvent(ctx.Request().Context(), registration.Event{
		Type:           string(ev.Type),
		SubscriptionID: subID,
	})
	if err != nil && errors.Cause(err) != registration.ErrUnknownRegistration {
		return errors.Wrap(err, "handling payment event")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"received": true})
}

func (api *schoolApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if !claims.IsTeacher {
		return errHttpNotFound
	}
	schools, err := api.deps.SchoolSvc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	return ctx.JSON(http.StatusOK, managedBy(schools, claims.Subject))
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sch, err := api.deps.SchoolSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == school.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding school by ID")
	}
	if !memberOf(sch, claims) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, sch)
}

// Helpers

func readUpload(ctx echo.Context, field string) ([]byte, error) {
	fh, err := ctx.FormFile(field)
	if err != nil {
		return nil, core.NewValidationError(nil, core.FieldError{Field: field, Error: "this file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s upload", field)
	}
	defer func(f multipart.File) { _ = f.Close() }(f)

	data, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s upload", field)
	}
	return data, nil
}

func rowErrorDTOs(teacherErrs, studentErrs []school.RowError) []RowErrorDTO {
	dtos := make([]RowErrorDTO, 0, len(teacherErrs)+len(studentErrs))
	for _, re := range teacherErrs {
		dtos = append(dtos, RowErrorDTO{File: teachersFileField, Row: re.Row, Error: re.Err})
	}
	for _, re := range studentErrs {
		dtos = append(dtos, RowErrorDTO{File: studentsFileField, Row: re.Row, Error: re.Err})
	}
	if len(dtos) == 0 {
		return nil
	}
	return dtos
}

func managedBy(schools []school.School, userID string) []school.School {
	managed := make([]school.School, 0, len(schools))
	for _, sch := range schools {
		for _, id := range sch.ManagedBy {
			if id == userID {
				managed = append(managed, sch)
				break
			}
		}
	}
	return managed
}

func memberOf(sch school.School, claims Claims) bool {
	ids := sch.Teachers
	if claims.IsStudent {
		ids = sch.Students
	}
	for _, id := range ids {
		if id == claims.Subject {
			return true
		}
	}
	for _, id := range sch.ManagedBy {
		if id == claims.Subject {
			return true
		}
	}
	return false
}
