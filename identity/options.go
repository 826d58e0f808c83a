// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package identity

import (
	"log/slog"

	"github.com/Azure/iothub-client-go/internal/options"
)

type (
	// ClientOptions are the resolved identity client options.
	ClientOptions struct {
		Socket     string
		Endpoint   string
		APIVersion string
		Logger     *slog.Logger
	}

	// ClientOption represents a single identity client option.
	ClientOption interface{ client(*ClientOptions) }

	// WithSocket sets the unix socket of the identity service.
	WithSocket string

	// WithEndpoint reaches the identity service over TCP at the given
	// http(s) URL instead of a unix socket.
	WithEndpoint string

	// WithAPIVersion overrides the requested API version.
	WithAPIVersion string

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

func (o WithSocket) client(opt *ClientOptions) {
	opt.Socket = string(o)
}

func (o WithEndpoint) client(opt *ClientOptions) {
	opt.Endpoint = string(o)
}

func (o WithAPIVersion) client(opt *ClientOptions) {
	opt.APIVersion = string(o)
}

// WithLogger enables logging of identity requests.
func WithLogger(logger *slog.Logger) ClientOption {
	return withLogger{logger}
}

func (o withLogger) client(opt *ClientOptions) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options.
func (o *ClientOptions) Apply(opts []ClientOption, rest ...ClientOption) {
	for opt := range options.Apply[ClientOption](opts, rest...) {
		opt.client(o)
	}
}
