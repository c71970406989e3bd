package handler

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/foomo/posstore/pkg/backup"
	"github.com/foomo/posstore/pkg/confirm"
	"github.com/foomo/posstore/pkg/kv"
	"github.com/foomo/posstore/pkg/metrics"
	"github.com/foomo/posstore/pkg/storage"
	"github.com/foomo/posstore/requests"
	"github.com/foomo/posstore/responses"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// executor runs routes against the storage facade for both transports.
type executor struct {
	l       *zap.Logger
	storage *storage.Facade
}

func (e *executor) handleRequest(ctx context.Context, route Route, jsonBytes []byte, source string) ([]byte, int) {
	start := time.Now()

	reply := e.executeRequest(ctx, route, jsonBytes)
	status := http.StatusOK
	result := "success"
	if errReply, ok := reply.(*responses.Error); ok {
		status = errReply.Status
		result = "error"
	}

	metrics.ServiceRequestCounter.WithLabelValues(string(route), result, source).Inc()
	metrics.ServiceRequestDuration.WithLabelValues(string(route), result, source).Observe(time.Since(start).Seconds())

	replyBytes, err := e.encodeReply(reply)
	if err != nil {
		replyBytes, _ = e.encodeReply(responses.NewError(responses.CodeInternal, "could not encode reply"))
		status = http.StatusInternalServerError
	}
	return replyBytes, status
}

func (e *executor) executeRequest(ctx context.Context, route Route, jsonBytes []byte) (reply interface{}) {
	var (
		apiErr            error
		jsonErr           error
		processIfJSONIsOk = func(err error, processingFunc func()) {
			if err != nil {
				jsonErr = err
				return
			}
			processingFunc()
		}
	)

	// handle and process
	switch route {
	case RouteLoadCollection:
		req := &requests.Collection{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			reply = &responses.Collection{Name: req.Name, Items: e.storage.Load(ctx, req.Name)}
		})
	case RouteSaveCollection:
		req := &requests.Collection{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			if apiErr = e.storage.Save(ctx, req.Name, req.Items); apiErr == nil {
				reply = &responses.Collection{Name: req.Name, Items: e.storage.Load(ctx, req.Name)}
			}
		})
	case RouteGetSettings:
		reply = e.storage.LoadSettings(ctx)
	case RouteGetSetting:
		req := &requests.Setting{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			reply = &responses.Setting{Key: req.Key, Value: e.storage.Setting(ctx, req.Key, req.Fallback)}
		})
	case RouteSaveSettings:
		req := &requests.Settings{}
		processIfJSONIsOk(decodeSettings(jsonBytes, req), func() {
			if apiErr = e.storage.SaveSettings(ctx, req.Settings); apiErr == nil {
				reply = e.storage.Settings().Current()
			}
		})
	case RouteUpdateSettings:
		req := &requests.Settings{}
		processIfJSONIsOk(decodeSettings(jsonBytes, req), func() {
			reply, apiErr = e.storage.UpdateSettings(ctx, req.Settings)
		})
	case RouteResetSettings:
		reply, apiErr = e.storage.ResetSettings(ctx)
	case RouteExport:
		req := &requests.Export{}
		processIfJSONIsOk(unmarshalOptional(jsonBytes, req), func() {
			var export *backup.Export
			if export, apiErr = e.export(ctx, req); apiErr == nil {
				reply = &responses.Export{
					Name:      export.Name,
					Kind:      string(export.Snapshot.Kind()),
					Timestamp: export.Snapshot.Timestamp,
					Backup:    export.Data,
				}
			}
		})
	case RouteImport:
		req := &requests.Import{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			reply, apiErr = e.importBackup(ctx, req)
		})
	case RouteClear:
		req := &requests.Clear{}
		processIfJSONIsOk(json.Unmarshal(jsonBytes, req), func() {
			var cleared bool
			if cleared, apiErr = e.storage.ClearAll(ctx, confirm.Static{Yes: req.Confirm, Answer: req.Phrase}); apiErr == nil {
				reply = &responses.Clear{Cleared: cleared}
			}
		})
	case RouteEnsureBackup:
		var created bool
		if created, apiErr = e.storage.EnsureRecentBackup(ctx); apiErr == nil {
			last, _ := e.storage.Backup().LastExport(ctx)
			reply = &responses.EnsureBackup{Created: created, LastBackup: last}
		}
	default:
		reply = responses.NewStatusError(http.StatusNotFound, responses.CodeUnknownRoute, "unknown handler: "+string(route))
	}

	// error handling
	if jsonErr != nil {
		e.l.Error("could not read incoming json", zap.Error(jsonErr))
		reply = responses.NewStatusError(http.StatusBadRequest, responses.CodeInvalidJSON, "could not read incoming json "+jsonErr.Error())
	} else if apiErr != nil {
		e.l.Error("an API error occurred", zap.String("route", string(route)), zap.Error(apiErr))
		reply = apiError(apiErr)
	}

	return reply
}

// export runs the export for the download and export routes.
func (e *executor) export(ctx context.Context, req *requests.Export) (*backup.Export, error) {
	if req.Raw {
		return e.storage.ExportRaw(ctx, TriggerAPI)
	}
	return e.storage.Export(ctx, TriggerAPI)
}

// importBackup restores req.Backup. Once started the restore runs to the end,
// even when the caller goes away.
func (e *executor) importBackup(ctx context.Context, req *requests.Import) (*backup.Report, error) {
	select {
	case result := <-e.storage.ImportAsync(ctx, bytes.NewReader(req.Backup), confirm.Static{Yes: req.Confirm}):
		return result.Report, result.Err
	case <-ctx.Done():
		e.l.Warn("caller gone before the restore finished", zap.Error(ctx.Err()))
		return nil, ctx.Err()
	}
}

// encodeReply takes an interface and encodes it as JSON
// it returns the resulting JSON and a marshalling error
func (e *executor) encodeReply(reply interface{}) (replyBytes []byte, err error) {
	replyBytes, err = json.Marshal(map[string]interface{}{
		"reply": reply,
	})
	if err != nil {
		e.l.Error("could not encode reply", zap.Error(err))
	}
	return
}

func apiError(err error) *responses.Error {
	switch {
	case errors.Is(err, backup.ErrNotConfirmed):
		return responses.NewStatusError(http.StatusPreconditionFailed, responses.CodeNotConfirmed, err.Error())
	case errors.Is(err, backup.ErrInvalidSnapshot), errors.Is(err, kv.ErrInvalidKey):
		return responses.NewStatusError(http.StatusBadRequest, responses.CodeInvalidInput, err.Error())
	default:
		return responses.NewError(responses.CodeInternal, "internal error "+err.Error())
	}
}

// unmarshalOptional accepts an empty body as the zero request.
func unmarshalOptional(jsonBytes []byte, v interface{}) error {
	if len(bytes.TrimSpace(jsonBytes)) == 0 {
		return nil
	}
	return json.Unmarshal(jsonBytes, v)
}

func decodeSettings(jsonBytes []byte, req *requests.Settings) error {
	if err := json.Unmarshal(jsonBytes, req); err != nil {
		return err
	}
	if req.Settings == nil {
		return errors.New("missing settings")
	}
	return nil
}
