package router

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/HatiCode/tsdash/pkg/failure"
	"github.com/HatiCode/tsdash/pkg/httpx"
	"github.com/HatiCode/tsdash/pkg/models"
	"github.com/HatiCode/tsdash/pkg/sample"
	"github.com/HatiCode/tsdash/pkg/timeseries"
)

// sampleFrequencies are the choices of the sample form, in display order.
var sampleFrequencies = []frequencyChoice{
	{Code: "D", Name: "Days"},
	{Code: "B", Name: "Business days"},
	{Code: "w", Name: "Weeks"},
	{Code: "M", Name: "Months"},
	{Code: "Q", Name: "Quarters"},
	{Code: "Y", Name: "Years"},
}

type frequencyChoice struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type sampleForm struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Frequency string `json:"frequency" validate:"required,oneof=D B w W M Q Y"`
	AROrder   int    `json:"ar_order" validate:"min=1,max=5"`
	MAOrder   int    `json:"ma_order" validate:"min=1,max=5"`
}

type sampleDefaults struct {
	sampleForm
	Frequencies []frequencyChoice `json:"frequencies"`
}

func defaultSampleForm(now time.Time) sampleForm {
	return sampleForm{
		StartDate: now.Format(time.DateOnly),
		EndDate:   now.AddDate(0, 0, 30).Format(time.DateOnly),
		Frequency: "D",
		AROrder:   1,
		MAOrder:   1,
	}
}

// parseSampleForm reads the sample form of r. Missing fields keep their
// defaults.
func parseSampleForm(r *http.Request, now time.Time) (sampleForm, error) {
	if err := r.ParseForm(); err != nil {
		return sampleForm{}, &failure.Error{Kind: failure.InvalidParameter, Field: "form", Reason: "the form could not be read"}
	}

	f := defaultSampleForm(now)
	if v := r.Form.Get("start_date"); v != "" {
		f.StartDate = v
	}
	if v := r.Form.Get("end_date"); v != "" {
		f.EndDate = v
	}
	if v := r.Form.Get("frequency"); v != "" {
		f.Frequency = v
	}
	for _, field := range []struct {
		name string
		dst  *int
	}{
		{"ar_order", &f.AROrder},
		{"ma_order", &f.MAOrder},
	} {
		v := strings.TrimSpace(r.Form.Get(field.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return sampleForm{}, &failure.Error{Kind: failure.InvalidParameter, Field: field.name, Reason: "it must be a whole number"}
		}
		*field.dst = n
	}
	return f, nil
}

// params converts a validated form.
func (f sampleForm) params() (sample.Params, error) {
	start, err := time.Parse(time.DateOnly, f.StartDate)
	if err != nil {
		return sample.Params{}, err
	}
	end, err := time.Parse(time.DateOnly, f.EndDate)
	if err != nil {
		return sample.Params{}, err
	}
	freq, err := timeseries.ParseFrequency(f.Frequency)
	if err != nil {
		return sample.Params{}, &failure.Error{Kind: failure.InvalidParameter, Field: "frequency", Reason: err.Error()}
	}
	return sample.Params{Start: start, End: end, Frequency: freq, AROrder: f.AROrder, MAOrder: f.MAOrder}, nil
}

type refitRequest struct {
	Session   string `json:"session" validate:"required,uuid"`
	AROrder   int    `json:"ar_order" validate:"min=0,max=5"`
	DiffOrder int    `json:"diff_order" validate:"min=0,max=2"`
	MAOrder   int    `json:"ma_order" validate:"min=0,max=5"`
}

func (req refitRequest) order() models.Order {
	return models.Order{P: req.AROrder, D: req.DiffOrder, Q: req.MAOrder}
}

type importRequest struct {
	Adapter string            `json:"adapter" validate:"required,oneof=prometheus victoriametrics http"`
	Config  map[string]string `json:"config"`
	Window  string            `json:"window" validate:"required"`
	Step    string            `json:"step"`
}

func (req importRequest) toImport() (ImportRequest, error) {
	window, err := time.ParseDuration(req.Window)
	if err != nil || window <= 0 {
		return ImportRequest{}, &failure.Error{Kind: failure.InvalidParameter, Field: "window", Reason: "expected a positive duration such as 720h"}
	}
	var step time.Duration
	if req.Step != "" {
		step, err = time.ParseDuration(req.Step)
		if err != nil || step <= 0 {
			return ImportRequest{}, &failure.Error{Kind: failure.InvalidParameter, Field: "step", Reason: "expected a positive duration such as 24h"}
		}
	}
	return ImportRequest{Adapter: req.Adapter, Config: req.Config, Window: window, Step: step}, nil
}

var errBadJSON = &failure.Error{Kind: failure.InvalidParameter, Field: "body", Reason: "the request body is not valid JSON"}

// validate checks request structs and reports the first problem as an
// invalid_parameter failure named after the JSON field.
type validate struct {
	v *validator.Validate
}

func newValidate() *validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &validate{v: v}
}

func (v *validate) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &failure.Error{Kind: failure.InvalidParameter, Field: fe.Field(), Reason: reason(fe)}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "a value is required"
	case "datetime":
		return "expected a date formatted as YYYY-MM-DD"
	case "oneof":
		return "it must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return "it must be at least " + fe.Param()
	case "max":
		return "it must be at most " + fe.Param()
	case "uuid":
		return "expected a session id"
	default:
		return fmt.Sprintf("failed the %s check", fe.Tag())
	}
}

// failureBody maps err to a status and reply body.
func failureBody(err error) (int, httpx.ErrorResponse) {
	if fe, ok := failure.As(err); ok {
		return fe.Status(), httpx.ErrorResponse{Error: fe.Message(), Kind: string(fe.Kind)}
	}
	return http.StatusInternalServerError, httpx.ErrorResponse{Error: "internal server error"}
}
