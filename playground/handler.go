package playground

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/tsawler/go-mlplayground/checkpoints"
	"github.com/tsawler/go-mlplayground/dataset"
	"github.com/tsawler/go-mlplayground/kmeans"
	"github.com/tsawler/go-mlplayground/loop"
	"github.com/tsawler/go-mlplayground/regression"
)

// multipartOverhead is the slack allowed on top of the upload ceiling for form framing
const multipartOverhead = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the HTTP control surface
func (p *Playground) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/pages", p.handlePages)
	mux.HandleFunc("GET /api/widgets", p.handleWidgets)
	mux.HandleFunc("GET /api/{widget}", p.handleStatus)
	mux.HandleFunc("POST /api/{widget}/{action}", p.handleControl)
	mux.HandleFunc("POST /api/{widget}/data", p.handleUpload)
	mux.HandleFunc("POST /api/{widget}/generate", p.handleGenerate)
	mux.HandleFunc("POST /api/regression/config", p.handleRegressionConfig)
	mux.HandleFunc("POST /api/kmeans/k", p.handleClusterCount)
	mux.HandleFunc("GET /api/{widget}/checkpoint", p.handleCheckpointGet)
	mux.HandleFunc("POST /api/{widget}/checkpoint", p.handleCheckpointPost)
	if p.feed != nil {
		mux.Handle("GET /ws", p.feed)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Upload failures carry their inline
// message instead of the wrapped error text.
func (p *Playground) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	msg := err.Error()

	var upload *dataset.UploadError
	switch {
	case errors.As(err, &upload):
		msg = upload.Message
		if errors.Is(err, dataset.ErrFileTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
	case errors.Is(err, ErrUnknownWidget), errors.Is(err, ErrUnknownAction):
		status = http.StatusNotFound
	case errors.Is(err, loop.ErrExhausted), errors.Is(err, loop.ErrClosed):
		status = http.StatusConflict
	case errors.Is(err, ErrNoData),
		errors.Is(err, checkpoints.ErrInvalidCheckpoint),
		errors.Is(err, regression.ErrLearningRateRange),
		errors.Is(err, regression.ErrIterationsRange),
		errors.Is(err, kmeans.ErrClusterCountRange):
		status = http.StatusBadRequest
	}
	p.log.Debugf("request failed with %d: %v", status, err)
	writeJSON(w, status, errorResponse{Error: msg})
}

func (p *Playground) handlePages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Pages())
}

func (p *Playground) handleWidgets(w http.ResponseWriter, r *http.Request) {
	out := make([]Status, 0, len(Widgets))
	for _, name := range Widgets {
		st, err := p.Status(name)
		if err != nil {
			p.writeError(w, err)
			return
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, out)
}

func (p *Playground) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := p.Status(r.PathValue("widget"))
	if err != nil {
		p.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (p *Playground) handleControl(w http.ResponseWriter, r *http.Request) {
	widget := r.PathValue("widget")
	if err := p.Control(widget, r.PathValue("action")); err != nil {
		p.writeError(w, err)
		return
	}
	p.handleStatus(w, r)
}

func (p *Playground) handleUpload(w http.ResponseWriter, r *http.Request) {
	widget := r.PathValue("widget")
	opts := dataset.UploadOptions{MaxSizeMB: p.cfg.Upload.MaxSizeMB}
	limit := opts.MaxBytes()

	var (
		body io.Reader
		size int64
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				p.writeError(w, opts.TooLarge())
				return
			}
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing upload field \"file\""})
			return
		}
		defer file.Close()
		body, size = file, header.Size
	} else {
		body, size = r.Body, r.ContentLength
	}

	n, err := p.UploadCSV(widget, size, body)
	if err != nil {
		p.writeError(w, err)
		return
	}
	p.log.Debugf("%s: upload accepted, %d records", widget, n)
	p.handleStatus(w, r)
}

func (p *Playground) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if _, err := p.Regenerate(r.PathValue("widget")); err != nil {
		p.writeError(w, err)
		return
	}
	p.handleStatus(w, r)
}

func (p *Playground) handleRegressionConfig(w http.ResponseWriter, r *http.Request) {
	var settings RegressionSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := p.ConfigureRegression(settings); err != nil {
		p.writeError(w, err)
		return
	}
	st, _ := p.Status(WidgetRegression)
	writeJSON(w, http.StatusOK, st)
}

func (p *Playground) handleClusterCount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		K int `json:"k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := p.SetClusterCount(req.K); err != nil {
		p.writeError(w, err)
		return
	}
	st, _ := p.Status(WidgetKMeans)
	writeJSON(w, http.StatusOK, st)
}

func (p *Playground) handleCheckpointGet(w http.ResponseWriter, r *http.Request) {
	widget := r.PathValue("widget")
	format, err := checkpoints.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		p.writeError(w, err)
		return
	}

	data, err := p.EncodeCheckpoint(widget, format)
	if err != nil {
		p.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": widget + format.Extension(),
	}))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (p *Playground) handleCheckpointPost(w http.ResponseWriter, r *http.Request) {
	widget := r.PathValue("widget")
	format, err := checkpoints.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		p.writeError(w, err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, dataset.UploadOptions{MaxSizeMB: p.cfg.Upload.MaxSizeMB}.MaxBytes()))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "checkpoint too large"})
		return
	}
	if err := p.DecodeCheckpoint(widget, format, data); err != nil {
		p.writeError(w, err)
		return
	}
	p.handleStatus(w, r)
}
