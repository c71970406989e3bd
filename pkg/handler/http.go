package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/foomo/posstore/pkg/storage"
	"github.com/foomo/posstore/requests"
	httputils "github.com/foomo/keel/utils/net/http"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type (
	HTTP struct {
		executor
		path string
	}
	HTTPOption func(*HTTP)
)

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewHTTP returns a shiny new web server
func NewHTTP(l *zap.Logger, storage *storage.Facade, opts ...HTTPOption) http.Handler {
	inst := &HTTP{
		executor: executor{
			l:       l.Named("http"),
			storage: storage,
		},
		path: "/posstore",
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func WithPath(v string) HTTPOption {
	return func(o *HTTP) {
		o.path = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (h *HTTP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputils.ServerError(h.l, w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if r.Body == nil {
		httputils.BadRequestServerError(h.l, w, r, errors.New("empty request body"))
		return
	}

	bytes, err := io.ReadAll(r.Body)
	if err != nil {
		httputils.BadRequestServerError(h.l, w, r, errors.Wrap(err, "failed to read incoming request"))
		return
	}

	route := Route(strings.TrimPrefix(r.URL.Path, h.path+"/"))
	if route == RouteDownload {
		h.download(w, r, bytes)
		return
	}

	reply, status := h.handleRequest(r.Context(), route, bytes, sourceWebserver)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(reply)
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

// download replies with the bare backup file.
func (h *HTTP) download(w http.ResponseWriter, r *http.Request, jsonBytes []byte) {
	req := &requests.Export{}
	if err := unmarshalOptional(jsonBytes, req); err != nil {
		httputils.BadRequestServerError(h.l, w, r, errors.Wrap(err, "could not read incoming json"))
		return
	}
	export, err := h.export(r.Context(), req)
	if err != nil {
		httputils.ServerError(h.l, w, r, http.StatusInternalServerError, errors.Wrap(err, "failed to export"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Data)))
	_, _ = w.Write(export.Data)
}
