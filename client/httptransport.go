package client

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"

	"github.com/foomo/posstore/pkg/handler"
	"github.com/foomo/posstore/responses"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type (
	httpTransport struct {
		client   *http.Client
		endpoint string
	}
	HTTPTransportOption func(*httpTransport)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func HTTPTransportWithHTTPClient(c *http.Client) HTTPTransportOption {
	return func(o *httpTransport) {
		o.client = c
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewHTTPTransport will create a new http transport for the given server.
// Caution: the provided server url is not validated!
func NewHTTPTransport(server string, opts ...HTTPTransportOption) transport {
	inst := &httpTransport{
		endpoint: server,
		client:   http.DefaultClient,
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (ht *httpTransport) shutdown() {
	ht.client.CloseIdleConnections()
}

func (ht *httpTransport) call(ctx context.Context, route handler.Route, request interface{}, response interface{}) error {
	httpResponse, err := ht.do(ctx, route, request)
	if err != nil {
		return err
	}
	defer httpResponse.Body.Close()

	responseBytes, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read reply")
	}

	if httpResponse.StatusCode != http.StatusOK {
		return replyError(httpResponse.StatusCode, responseBytes)
	}

	envelope := struct {
		Reply jsoniter.RawMessage `json:"reply"`
	}{}
	if err := json.Unmarshal(responseBytes, &envelope); err != nil {
		return errors.Wrap(err, "failed to decode reply")
	}
	if err := json.Unmarshal(envelope.Reply, response); err != nil {
		return errors.Wrap(err, "failed to decode reply")
	}
	return nil
}

func (ht *httpTransport) download(ctx context.Context, route handler.Route, request interface{}) (string, []byte, error) {
	httpResponse, err := ht.do(ctx, route, request)
	if err != nil {
		return "", nil, err
	}
	defer httpResponse.Body.Close()

	responseBytes, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to read reply")
	}
	if httpResponse.StatusCode != http.StatusOK {
		return "", nil, replyError(httpResponse.StatusCode, responseBytes)
	}

	var name string
	if _, params, err := mime.ParseMediaType(httpResponse.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	return name, responseBytes, nil
}

func (ht *httpTransport) do(ctx context.Context, route handler.Route, request interface{}) (*http.Response, error) {
	requestBytes, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}
	req, err := http.NewRequestWithContext(ctx,
		http.MethodPost,
		ht.endpoint+"/"+string(route),
		bytes.NewBuffer(requestBytes),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return ht.client.Do(req)
}

// replyError extracts the error of a non 200 reply.
func replyError(status int, body []byte) error {
	envelope := struct {
		Reply *responses.Error `json:"reply"`
	}{}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Reply != nil {
		return envelope.Reply
	}
	return &responses.Error{Status: status, Message: http.StatusText(status)}
}
