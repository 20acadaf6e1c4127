// Package gqlrequest decodes GraphQL HTTP payloads and derives the metadata
// the middleware stack logs, traces, meters and limits on.
package gqlrequest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// Envelope is the normalized GraphQL payload of one HTTP request.
type Envelope struct {
	Method        string
	Query         string
	OperationName string
	Variables     json.RawMessage
}

// DecodeEnvelope reads the GraphQL payload from r and rewinds the body so
// the GraphQL handler can read it again. GET carries the query in the URL;
// POST carries JSON or an application/graphql document.
func DecodeEnvelope(r *http.Request) (Envelope, error) {
	if r == nil {
		return Envelope{}, fmt.Errorf("request is nil")
	}
	env := Envelope{Method: r.Method}

	switch r.Method {
	case http.MethodGet:
		values := r.URL.Query()
		env.Query = values.Get("query")
		env.OperationName = values.Get("operationName")
		if raw := values.Get("variables"); raw != "" {
			env.Variables = json.RawMessage(raw)
		}
		return env, nil
	case http.MethodPost:
	default:
		return env, nil
	}
	if r.Body == nil {
		return env, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return env, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	if mediaType == "application/graphql" {
		env.Query = string(body)
		return env, nil
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return env, nil
	}
	var payload struct {
		Query         string          `json:"query"`
		OperationName string          `json:"operationName"`
		Variables     json.RawMessage `json:"variables"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return env, fmt.Errorf("decode graphql payload: %w", err)
	}
	env.Query = payload.Query
	env.OperationName = payload.OperationName
	if vars := bytes.TrimSpace(payload.Variables); len(vars) > 0 && !bytes.Equal(vars, []byte("null")) {
		env.Variables = append(json.RawMessage(nil), vars...)
	}
	return env, nil
}
