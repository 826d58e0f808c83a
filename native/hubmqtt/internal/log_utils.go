// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/Azure/iothub-client-go/internal/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/iancoleman/strcase"
)

// Logger adds packet tracing to the module logger.
type Logger struct{ log.Logger }

// Packet logs the exported fields of an MQTT packet at debug level.
func (l Logger) Packet(ctx context.Context, name string, packet any) {
	// Reflection is expensive; skip it unless someone is listening.
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}

	val := realValue(reflect.ValueOf(packet))
	if missingValue(val) {
		l.Log(ctx, slog.LevelWarn, fmt.Sprintf("%s not available", name))
	} else {
		l.Log(ctx, slog.LevelDebug, name, reflectAttrs(val)...)
	}
}

func reflectAttrs(val reflect.Value) []slog.Attr {
	if val.Kind() != reflect.Struct {
		return []slog.Attr{slog.Any("value", val.Interface())}
	}

	typ := val.Type()
	var attrs []slog.Attr
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		attrs = append(attrs, reflectAttr(
			strcase.ToSnake(f.Name),
			realValue(val.Field(i)),
		)...)
	}
	return attrs
}

func reflectAttr(name string, val reflect.Value) []slog.Attr {
	if missingValue(val) {
		return nil
	}

	switch name {
	case "properties":
		return reflectAttrs(val)

	// The hub client subscribes to a handful of fixed filters.
	case "subscriptions":
		if subs, ok := val.Interface().([]paho.SubscribeOptions); ok {
			topics := make([]string, len(subs))
			for i, s := range subs {
				topics[i] = s.Topic
			}
			return []slog.Attr{slog.Any("topics", topics)}
		}
	case "reasons":
		if reasons, ok := val.Interface().([]byte); ok {
			return []slog.Attr{slog.Any("reason_codes", reasons)}
		}
	case "qo_s":
		return []slog.Attr{slog.Any("qos", val.Interface())}
	case "password":
		return []slog.Attr{slog.String(name, "<redacted>")}
	}

	switch v := val.Interface().(type) {
	case []byte:
		return []slog.Attr{slog.Int(name+"_size", len(v))}

	case paho.UserProperties:
		attrs := make([]any, len(v))
		for i, p := range v {
			attrs[i] = slog.String(p.Key, p.Value)
		}
		return []slog.Attr{slog.Group(name, attrs...)}
	}

	if val.Kind() == reflect.Struct {
		as := reflectAttrs(val)
		if len(as) == 0 {
			return nil
		}
		cpy := make([]any, len(as))
		for i, a := range as {
			cpy[i] = a
		}
		return []slog.Attr{slog.Group(name, cpy...)}
	}

	return []slog.Attr{slog.Any(name, val.Interface())}
}

func realValue(val reflect.Value) reflect.Value {
	for val.Kind() == reflect.Pointer {
		val = val.Elem()
	}
	return val
}

func missingValue(val reflect.Value) bool {
	return val.Kind() == reflect.Invalid || val.IsZero()
}
