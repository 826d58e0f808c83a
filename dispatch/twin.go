// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/native"
)

type (
	// TwinState tells whether a twin update is the full document or a
	// desired property patch.
	TwinState int

	// TwinUpdate is a twin document or patch pushed by the hub, or the
	// answer to a twin request.
	TwinUpdate struct {
		State   TwinState
		Desired any
	}
)

const (
	TwinComplete TwinState = iota
	TwinPartial
)

func (s TwinState) String() string {
	switch s {
	case TwinComplete:
		return "complete"
	case TwinPartial:
		return "partial"
	default:
		return fmt.Sprintf("TwinState(%d)", int(s))
	}
}

// TwinUpdateStateFrom maps a native twin update state. Values other than
// complete and partial are rejected.
func TwinUpdateStateFrom(s native.TwinUpdateState) (TwinState, error) {
	switch s {
	case native.TwinUpdateComplete:
		return TwinComplete, nil
	case native.TwinUpdatePartial:
		return TwinPartial, nil
	default:
		return 0, &errors.Error{
			Message:       fmt.Sprintf("unknown twin update state %d", int(s)),
			Kind:          errors.PayloadInvalid,
			PropertyName:  "state",
			PropertyValue: int(s),
		}
	}
}

// OnTwin is the native twin callback, for both desired property pushes and
// twin request completions. Updates that cannot be decoded are dropped.
func OnTwin(s native.TwinUpdateState, payload []byte, ctx native.Context) {
	r, ok := lookup(ctx)
	if !ok {
		return
	}
	bg := context.Background()

	state, err := TwinUpdateStateFrom(s)
	if err != nil {
		r.log.Err(bg, err)
		return
	}

	desired, err := decodeJSON(payload, "twin")
	if err != nil {
		r.log.Err(bg, err)
		return
	}

	r.log.Debug(bg, "twin update received",
		slog.String("state", state.String()),
		slog.Int("size", len(payload)),
	)
	send(r, r.twin, "twin", TwinUpdate{state, desired})
}

// decodeJSON parses a UTF-8 JSON document into generic values.
func decodeJSON(payload []byte, name string) (any, error) {
	if !utf8.Valid(payload) {
		return nil, &errors.Error{
			Message:      name + " payload is not valid UTF-8",
			Kind:         errors.PayloadInvalid,
			PropertyName: name,
		}
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, &errors.Error{
			Message:      name + " payload is not valid JSON",
			Kind:         errors.PayloadInvalid,
			NestedError:  err,
			PropertyName: name,
		}
	}
	return v, nil
}
