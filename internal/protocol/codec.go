package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://cogniviz.local/schemas/"

// #region codec

// Codec validates frames against the embedded JSON Schemas before decoding
// them into tagged message types.
type Codec struct {
	server *jsonschema.Schema
	client *jsonschema.Schema
}

// NewCodec compiles the embedded schemas.
func NewCodec() (*Codec, error) {
	server, err := compile("server.schema.json")
	if err != nil {
		return nil, err
	}
	client, err := compile("client.schema.json")
	if err != nil {
		return nil, err
	}
	return &Codec{server: server, client: client}, nil
}

// MustCodec is NewCodec for package-level initialisation. The schemas are
// embedded, so failure is a build defect.
func MustCodec() *Codec {
	c, err := NewCodec()
	if err != nil {
		panic(err)
	}
	return c
}

func compile(name string) (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := schemaBase + name
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load schema %s: %w", name, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return s, nil
}

// #endregion codec

// #region decode

// DecodeServer validates and decodes a frame received by the client.
func (c *Codec) DecodeServer(data []byte) (ServerMessage, error) {
	tag, err := validate(c.server, data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TypePrediction:
		var m PredictionMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode prediction: %w", err)
		}
		return &m, nil
	case TypeError:
		var m ErrorMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode error frame: %w", err)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("unexpected server message type %q", tag)
}

// DecodeClient validates and decodes a frame received by the service.
func (c *Codec) DecodeClient(data []byte) (ClientMessage, error) {
	tag, err := validate(c.client, data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TypeMetrics:
		var m MetricsPacket
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
		return &m, nil
	case TypePing:
		var m Ping
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode ping: %w", err)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("unexpected client message type %q", tag)
}

// validate checks data against s and returns its type tag.
func validate(s *jsonschema.Schema, data []byte) (string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("parse frame: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return "", fmt.Errorf("invalid frame: %w", err)
	}
	obj := v.(map[string]any)
	tag, _ := obj["type"].(string)
	return tag, nil
}

// #endregion decode
