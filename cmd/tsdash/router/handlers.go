package router

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/HatiCode/tsdash/pkg/failure"
	"github.com/HatiCode/tsdash/pkg/httpx"
)

const serverTimeoutMessage = "The server took too long to process the request. " +
	"Please try again with a smaller file or sample."

func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.opts.MaxUploadBytes {
		h.writeFailure(w, r, &failure.Error{Kind: failure.TooLarge, Limit: h.opts.MaxUploadBytes})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeFailure(w, r, &failure.Error{Kind: failure.TooLarge, Limit: tooLarge.Limit})
			return
		}
		h.writeFailure(w, r, failure.New(failure.MissingFile))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil || header.Filename == "" {
		h.writeFailure(w, r, failure.New(failure.MissingFile))
		return
	}
	defer file.Close()

	res, err := h.svc.Upload(r.Context(), filepath.Base(header.Filename), file)
	h.writeResult(w, r, res, err)
}

func (h *handler) sampleDefaults(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, r, http.StatusOK, sampleDefaults{
		sampleForm:  defaultSampleForm(h.opts.Now()),
		Frequencies: sampleFrequencies,
	})
}

func (h *handler) sample(w http.ResponseWriter, r *http.Request) {
	form, err := parseSampleForm(r, h.opts.Now())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if err := h.validate.Struct(form); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	params, err := form.params()
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	res, err := h.svc.Sample(r.Context(), params)
	h.writeResult(w, r, res, err)
}

func (h *handler) randomSample(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RandomSample(r.Context())
	h.writeResult(w, r, res, err)
}

func (h *handler) importSeries(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeFailure(w, r, errBadJSON)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	ir, err := req.toImport()
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	res, err := h.svc.Import(r.Context(), ir)
	h.writeResult(w, r, res, err)
}

func (h *handler) refit(w http.ResponseWriter, r *http.Request) {
	var req refitRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeFailure(w, r, errBadJSON)
		return
	}
	view, err := h.runRefit(r, req)
	h.writeResult(w, r, view, err)
}

func (h *handler) runRefit(r *http.Request, req refitRequest) (*RefitView, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, err
	}
	return h.svc.Refit(r.Context(), req.Session, req.order())
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Session(r.Context(), chi.URLParam(r, "id"))
	h.writeResult(w, r, sess, err)
}

func (h *handler) getResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := h.svc.ResultsFile(r.Context(), id)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="results.csv"`)
	http.ServeFile(w, r, path)
}

func (h *handler) getPlot(w http.ResponseWriter, r *http.Request) {
	path, ok := h.svc.PlotPath(chi.URLParam(r, "name"))
	if !ok {
		httpx.WriteErrorMessage(w, r, http.StatusNotFound, "plot not found")
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

func (h *handler) serverTimeout(w http.ResponseWriter, r *http.Request) {
	httpx.WriteErrorMessage(w, r, http.StatusServiceUnavailable, serverTimeoutMessage)
}
