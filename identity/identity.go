// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package identity requests hub connection strings from a local identity
// service.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/Azure/iothub-client-go/errors"
	"github.com/Azure/iothub-client-go/internal/log"
	"github.com/relvacode/iso8601"
)

type (
	// Provider issues connection strings valid until a requested expiry.
	Provider interface {
		RequestConnectionString(
			ctx context.Context,
			expiry time.Time,
		) (*ConnectionInfo, error)
	}

	// ConnectionInfo is an issued connection string and the expiry the
	// service actually granted, which may be earlier than requested.
	ConnectionInfo struct {
		ConnectionString string
		Expiry           time.Time
	}

	// Client talks HTTP/JSON to the identity service, over a unix socket by
	// default.
	Client struct {
		http     *http.Client
		endpoint *url.URL
		version  string
		log      log.Logger
	}

	request struct {
		Expiry string `json:"expiry"`
	}

	response struct {
		ConnectionString string `json:"connectionString"`
		Expiry           string `json:"expiry"`
	}
)

const (
	// DefaultSocket is where the identity service listens by default.
	DefaultSocket = "/run/aziot/identityd.sock"

	// DefaultAPIVersion is the identity service API version requested.
	DefaultAPIVersion = "2020-09-01"

	connectionStringPath = "/identities/connectionstring"
)

// New creates an identity service client.
func New(opt ...ClientOption) (*Client, error) {
	var opts ClientOptions
	opts.Apply(opt)

	if opts.APIVersion == "" {
		opts.APIVersion = DefaultAPIVersion
	}

	c := &Client{version: opts.APIVersion, log: log.Wrap(opts.Logger)}

	switch {
	case opts.Endpoint != "":
		u, err := url.Parse(opts.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, &errors.Error{
				Message:       "invalid identity service endpoint",
				Kind:          errors.ConfigurationInvalid,
				NestedError:   err,
				PropertyName:  "Endpoint",
				PropertyValue: opts.Endpoint,
			}
		}
		c.endpoint = u
		c.http = &http.Client{}

	default:
		socket := opts.Socket
		if socket == "" {
			socket = DefaultSocket
		}
		// The host is ignored; every request dials the socket.
		c.endpoint = &url.URL{Scheme: "http", Host: "identityd"}
		c.http = &http.Client{Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		}}
	}

	return c, nil
}

// RequestConnectionString asks the service for a connection string valid
// until the given expiry.
func (c *Client) RequestConnectionString(
	ctx context.Context,
	expiry time.Time,
) (*ConnectionInfo, error) {
	body, err := json.Marshal(request{
		Expiry: expiry.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, errors.Normalize(err, "identity request")
	}

	u := c.endpoint.JoinPath(connectionStringPath)
	u.RawQuery = url.Values{"api-version": {c.version}}.Encode()

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		u.String(),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, errors.Normalize(err, "identity request")
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug(ctx, "requesting connection string",
		slog.Time("expiry", expiry),
	)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Normalize(err, "identity request")
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Normalize(err, "identity response")
	}

	if res.StatusCode != http.StatusOK {
		return nil, &errors.Error{
			Message: fmt.Sprintf(
				"identity service returned %d: %s",
				res.StatusCode,
				bytes.TrimSpace(data),
			),
			Kind:          errors.UnknownError,
			PropertyName:  "status",
			PropertyValue: res.StatusCode,
		}
	}

	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &errors.Error{
			Message:     "cannot decode identity service response",
			Kind:        errors.PayloadInvalid,
			NestedError: err,
		}
	}
	if r.ConnectionString == "" {
		return nil, &errors.Error{
			Message:      "identity service returned no connection string",
			Kind:         errors.PayloadInvalid,
			PropertyName: "connectionString",
		}
	}

	info := &ConnectionInfo{ConnectionString: r.ConnectionString, Expiry: expiry}
	if r.Expiry != "" {
		granted, err := iso8601.ParseString(r.Expiry)
		if err != nil {
			return nil, &errors.Error{
				Message:      "identity service returned an invalid expiry",
				Kind:         errors.PayloadInvalid,
				NestedError:  err,
				PropertyName: "expiry",
			}
		}
		info.Expiry = granted
	}
	return info, nil
}
