// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hubmqtt

import (
	"os"
	"strings"

	"github.com/Azure/iothub-client-go/errors"
)

// settings identify the hub, the device or module and its credentials.
type settings struct {
	hostName        string
	gatewayHostName string
	deviceID        string
	moduleID        string

	sharedAccessKey     string
	sharedAccessKeyName string
	sas                 string
	x509                bool

	// caFile is the edge hub's CA certificate, when connecting through one.
	caFile string
}

// Connection string example:
// HostName=h.azure-devices.net;DeviceId=d;SharedAccessKey=a2V5.
func parseConnectionString(connStr string) (*settings, error) {
	s := &settings{}
	return s, s.apply(parseToSettingsMap(connStr))
}

// Edge environment example:
// IOTEDGE_IOTHUBHOSTNAME=h.azure-devices.net
// IOTEDGE_DEVICEID=d
// IOTEDGE_MODULEID=m
// IOTEDGE_GATEWAYHOSTNAME=edgehub.
func parseEdgeEnvironment() (*settings, error) {
	if connStr := os.Getenv("EdgeHubConnectionString"); connStr != "" {
		s, err := parseConnectionString(connStr)
		if err != nil {
			return nil, err
		}
		s.caFile = os.Getenv("EdgeModuleCACertificateFile")
		return s, s.requireModule()
	}

	env := map[string]string{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, "IOTEDGE_") {
			continue
		}
		env[strings.ToLower(strings.TrimPrefix(k, "IOTEDGE_"))] = v
	}
	if len(env) == 0 {
		return nil, &errors.Error{
			Message: "no edge environment found; expected " +
				"EdgeHubConnectionString or IOTEDGE_* variables",
			Kind:         errors.ConfigurationInvalid,
			PropertyName: "environment",
		}
	}

	if scheme := env["authscheme"]; scheme != "" && scheme != "sasToken" {
		return nil, &errors.Error{
			Message:       "unsupported edge authentication scheme",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  "IOTEDGE_AUTHSCHEME",
			PropertyValue: scheme,
		}
	}

	// The workload API is not available here; development setups hand the
	// module key over directly.
	if env["sas_key"] == "" {
		return nil, &errors.Error{
			Message:      "IOTEDGE_SAS_KEY must be set to sign module tokens",
			Kind:         errors.ConfigurationInvalid,
			PropertyName: "IOTEDGE_SAS_KEY",
		}
	}

	s := &settings{}
	err := s.apply(map[string]string{
		"hostname":        env["iothubhostname"],
		"gatewayhostname": env["gatewayhostname"],
		"deviceid":        env["deviceid"],
		"moduleid":        env["moduleid"],
		"sharedaccesskey": env["sas_key"],
	})
	if err != nil {
		return nil, err
	}
	s.caFile = os.Getenv("EdgeModuleCACertificateFile")
	return s, s.requireModule()
}

func parseToSettingsMap(connStr string) map[string]string {
	settingsMap := make(map[string]string)
	connStr = strings.TrimSuffix(connStr, ";")
	for _, param := range strings.Split(connStr, ";") {
		// Keys are case-insensitive; values (notably keys and tokens) are
		// kept verbatim, including any trailing '=' padding.
		k, v, ok := strings.Cut(param, "=")
		if ok {
			settingsMap[strings.ToLower(strings.TrimSpace(k))] =
				strings.TrimSpace(v)
		}
	}
	return settingsMap
}

func (s *settings) apply(settingsMap map[string]string) error {
	for _, required := range []struct{ key, name string }{
		{"hostname", "HostName"},
		{"deviceid", "DeviceId"},
	} {
		if settingsMap[required.key] == "" {
			return &errors.Error{
				Message:      required.name + " must not be empty",
				Kind:         errors.ConfigurationInvalid,
				PropertyName: required.name,
			}
		}
	}

	assignIfExists(settingsMap, "hostname", &s.hostName)
	assignIfExists(settingsMap, "gatewayhostname", &s.gatewayHostName)
	assignIfExists(settingsMap, "deviceid", &s.deviceID)
	assignIfExists(settingsMap, "moduleid", &s.moduleID)
	assignIfExists(settingsMap, "sharedaccesskey", &s.sharedAccessKey)
	assignIfExists(settingsMap, "sharedaccesskeyname", &s.sharedAccessKeyName)
	assignIfExists(settingsMap, "sharedaccesssignature", &s.sas)
	s.x509 = strings.EqualFold(settingsMap["x509"], "true")

	credentials := 0
	for _, set := range []bool{s.sharedAccessKey != "", s.sas != "", s.x509} {
		if set {
			credentials++
		}
	}
	if credentials != 1 {
		return &errors.Error{
			Message: "exactly one of SharedAccessKey, " +
				"SharedAccessSignature or x509=true is required",
			Kind:         errors.ConfigurationInvalid,
			PropertyName: "credentials",
		}
	}

	return nil
}

func (s *settings) requireModule() error {
	if s.moduleID == "" {
		return &errors.Error{
			Message:      "edge modules require a ModuleId",
			Kind:         errors.ConfigurationInvalid,
			PropertyName: "ModuleId",
		}
	}
	return nil
}

// host is where the network connection goes.
func (s *settings) host() string {
	if s.gatewayHostName != "" {
		return s.gatewayHostName
	}
	return s.hostName
}

// clientID is the MQTT client id of the device or module.
func (s *settings) clientID() string {
	if s.moduleID != "" {
		return s.deviceID + "/" + s.moduleID
	}
	return s.deviceID
}

// assignIfExists copies a non-empty setting into field.
func assignIfExists(
	settingsMap map[string]string,
	key string,
	field *string,
) {
	if value, exists := settingsMap[key]; exists && value != "" {
		*field = value
	}
}
