package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/foomo/posstore/pkg/backup"
	"github.com/foomo/posstore/pkg/metrics"
	"github.com/foomo/posstore/pkg/storage"
	"github.com/foomo/posstore/requests"
	"github.com/foomo/posstore/responses"
	"go.uber.org/zap"
)

type Socket struct {
	executor
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewSocket returns a shiny new socket server
func NewSocket(l *zap.Logger, storage *storage.Facade) *Socket {
	inst := &Socket{
		executor: executor{
			l:       l.Named("socket"),
			storage: storage,
		},
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Serve answers requests framed as route:length{json} on conn until the
// client hangs up or sends an invalid request.
func (h *Socket) Serve(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				if !errors.Is(err, io.EOF) {
					h.l.Error("panic in handle connection", zap.Error(err))
				}
			} else {
				h.l.Error("panic in handle connection", zap.String("error", fmt.Sprint(r)))
			}
		}
	}()

	h.l.Debug("socketServer.handleConnection")
	remote := conn.RemoteAddr().String()
	metrics.NumSocketsGauge.WithLabelValues(remote).Inc()
	defer metrics.NumSocketsGauge.WithLabelValues(remote).Dec()

	var (
		headerBuffer [1]byte
		header       = ""
	)
	for {
		// let us read with 1 byte steps on conn until we find "{"
		_, readErr := conn.Read(headerBuffer[0:])
		if readErr != nil {
			h.l.Debug("looks like the client closed the connection", zap.Error(readErr))
			return
		}
		if headerBuffer[0] != '{' {
			// adding to header byte by byte
			header += string(headerBuffer[0:])
			continue
		}

		// json has started
		route, jsonLength, headerErr := h.extractRouteAndJSONLength(header)
		// reset header
		header = ""
		if headerErr != nil {
			h.l.Error("invalid request could not read header", zap.Error(headerErr))
			encodedErr, encodingErr := h.encodeReply(responses.NewStatusError(400, responses.CodeInvalidHeader, "invalid header "+headerErr.Error()))
			if encodingErr == nil {
				h.writeResponse(conn, encodedErr)
			} else {
				h.l.Error("could not respond to invalid request", zap.Error(encodingErr))
			}
			return
		}
		h.l.Debug("found json", zap.Int("length", jsonLength))
		if jsonLength <= 0 {
			h.l.Error("can not read empty json")
			return
		}

		// let us try to read some json
		jsonBytes := make([]byte, jsonLength)
		// that is "{"
		jsonBytes[0] = '{'
		if _, err := io.ReadFull(conn, jsonBytes[1:]); err != nil {
			h.l.Error("could not read json - giving up with this client connection", zap.Error(err))
			return
		}

		h.l.Debug("read json", zap.Int("length", len(jsonBytes)))

		h.writeResponse(conn, h.execute(route, jsonBytes))
		// note: connection remains open
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (h *Socket) extractRouteAndJSONLength(header string) (route Route, jsonLength int, err error) {
	headerParts := strings.Split(header, ":")
	if len(headerParts) != 2 {
		return "", 0, errors.New("invalid header")
	}
	jsonLength, err = strconv.Atoi(headerParts[1])
	if err != nil {
		err = fmt.Errorf("could not parse length in header: %q", header)
	}
	return Route(headerParts[0]), jsonLength, err
}

func (h *Socket) execute(route Route, jsonBytes []byte) []byte {
	h.l.Debug("incoming json buffer", zap.Int("length", len(jsonBytes)))
	ctx := context.Background()

	if route == RouteDownload {
		req := &requests.Export{}
		export, err := h.download(ctx, jsonBytes, req)
		if err != nil {
			h.l.Error("socketServer.execute download failed", zap.Error(err))
			reply, _ := h.encodeReply(responses.NewError(responses.CodeInternal, "download failed "+err.Error()))
			return reply
		}
		return export.Data
	}

	reply, _ := h.handleRequest(ctx, route, jsonBytes, sourceSocketServer)
	return reply
}

func (h *Socket) download(ctx context.Context, jsonBytes []byte, req *requests.Export) (*backup.Export, error) {
	if err := unmarshalOptional(jsonBytes, req); err != nil {
		return nil, err
	}
	return h.export(ctx, req)
}

func (h *Socket) writeResponse(conn net.Conn, reply []byte) {
	headerBytes := []byte(strconv.Itoa(len(reply)))
	reply = append(headerBytes, reply...)
	h.l.Debug("replying", zap.Int("length", len(reply)))
	n, writeError := conn.Write(reply)
	if writeError != nil {
		h.l.Error("socketServer.writeResponse: could not write reply", zap.Error(writeError))
		return
	}
	if n < len(reply) {
		h.l.Error("socketServer.writeResponse: write too short",
			zap.Int("got", n),
			zap.Int("expected", len(reply)),
		)
		return
	}
	h.l.Debug("replied. waiting for next request on open connection")
}
