// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hubmqtt

import (
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// APIVersion is the hub API version announced in the MQTT user name.
const APIVersion = "2021-04-12"

const (
	twinResponsePrefix = "$iothub/twin/res/"
	twinDesiredPrefix  = "$iothub/twin/PATCH/properties/desired/"
	twinGetTopic       = "$iothub/twin/GET/?$rid="
	twinReportedTopic  = "$iothub/twin/PATCH/properties/reported/?$rid="
	methodPrefix       = "$iothub/methods/POST/"
	methodResponse     = "$iothub/methods/res/"

	// Property bag key of a module's output name.
	outputProperty = "$.on"
)

type (
	topicKind int

	// topic is a parsed inbound topic.
	topic struct {
		kind   topicKind
		props  map[string]string
		input  string
		name   string
		rid    string
		status int
	}
)

const (
	unknownTopic topicKind = iota
	c2dTopic
	inputTopic
	twinResponseTopic
	desiredTopic
	methodTopic
)

func (s *settings) prefix() string {
	p := "devices/" + s.deviceID
	if s.moduleID != "" {
		p += "/modules/" + s.moduleID
	}
	return p
}

// username is the MQTT user name the hub expects.
func (s *settings) username(modelID string) string {
	q := url.Values{"api-version": {APIVersion}}
	if modelID != "" {
		q.Set("model-id", modelID)
	}
	return s.hostName + "/" + s.clientID() + "/?" + q.Encode()
}

// subscriptions are the filters the client subscribes to on connect.
func (s *settings) subscriptions() []string {
	incoming := "devices/" + s.deviceID + "/messages/devicebound/#"
	if s.moduleID != "" {
		incoming = s.prefix() + "/inputs/#"
	}
	return []string{
		incoming,
		twinResponsePrefix + "#",
		twinDesiredPrefix + "#",
		methodPrefix + "#",
	}
}

// telemetryTopic is the topic for an event with the given properties. An
// output name is only meaningful for modules.
func (s *settings) telemetryTopic(output string, props map[string]string) string {
	if s.moduleID != "" && output != "" {
		props = maps.Clone(props)
		props[outputProperty] = output
	}
	return s.prefix() + "/messages/events/" + encodeProperties(props)
}

func methodResponseTopic(status int, rid string) string {
	return methodResponse + strconv.Itoa(status) + "/?$rid=" + url.QueryEscape(rid)
}

// encodeProperties renders a property bag as a URL-encoded topic suffix,
// with keys in a stable order.
func encodeProperties(props map[string]string) string {
	var b strings.Builder
	for i, k := range slices.Sorted(maps.Keys(props)) {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(props[k]))
	}
	return b.String()
}

func decodeProperties(bag string) map[string]string {
	props := map[string]string{}
	bag = strings.TrimPrefix(bag, "?")
	for _, pair := range strings.Split(bag, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			continue
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		props[key] = val
	}
	return props
}

func (s *settings) parseTopic(name string) topic {
	switch {
	case strings.HasPrefix(name, twinResponsePrefix):
		status, bag, _ := strings.Cut(
			strings.TrimPrefix(name, twinResponsePrefix),
			"/",
		)
		code, err := strconv.Atoi(status)
		if err != nil {
			return topic{}
		}
		props := decodeProperties(bag)
		return topic{
			kind:   twinResponseTopic,
			status: code,
			rid:    props["$rid"],
			props:  props,
		}

	case strings.HasPrefix(name, twinDesiredPrefix):
		return topic{
			kind:  desiredTopic,
			props: decodeProperties(strings.TrimPrefix(name, twinDesiredPrefix)),
		}

	case strings.HasPrefix(name, methodPrefix):
		method, bag, _ := strings.Cut(strings.TrimPrefix(name, methodPrefix), "/")
		props := decodeProperties(bag)
		return topic{kind: methodTopic, name: method, rid: props["$rid"]}
	}

	c2d := "devices/" + s.deviceID + "/messages/devicebound/"
	if s.moduleID == "" && strings.HasPrefix(name, c2d) {
		return topic{
			kind:  c2dTopic,
			props: decodeProperties(strings.TrimPrefix(name, c2d)),
		}
	}

	inputs := s.prefix() + "/inputs/"
	if s.moduleID != "" && strings.HasPrefix(name, inputs) {
		input, bag, _ := strings.Cut(strings.TrimPrefix(name, inputs), "/")
		return topic{
			kind:  inputTopic,
			input: input,
			props: decodeProperties(bag),
		}
	}

	return topic{}
}
