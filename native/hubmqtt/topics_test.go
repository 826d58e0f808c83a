// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hubmqtt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTelemetryTopic(t *testing.T) {
	dev := &settings{hostName: "h", deviceID: "d1"}
	require.Equal(t,
		"devices/d1/messages/events/%24.mid=m1&k=a+b",
		dev.telemetryTopic("ignored", map[string]string{
			"$.mid": "m1",
			"k":     "a b",
		}),
	)

	mod := &settings{hostName: "h", deviceID: "d1", moduleID: "m1"}
	props := map[string]string{"k": "v"}
	require.Equal(t,
		"devices/d1/modules/m1/messages/events/%24.on=out&k=v",
		mod.telemetryTopic("out", props),
	)
	require.Len(t, props, 1)
}

func TestUsername(t *testing.T) {
	s := &settings{hostName: "h", deviceID: "d1", moduleID: "m1"}
	require.Equal(t, "h/d1/m1/?api-version="+APIVersion, s.username(""))
	require.Equal(t,
		"h/d1/m1/?api-version="+APIVersion+"&model-id=dtmi%3Acom%3Aex%3B1",
		s.username("dtmi:com:ex;1"),
	)
}

func TestSubscriptions(t *testing.T) {
	dev := &settings{deviceID: "d1"}
	require.Contains(t, dev.subscriptions(), "devices/d1/messages/devicebound/#")

	mod := &settings{deviceID: "d1", moduleID: "m1"}
	require.Contains(t, mod.subscriptions(), "devices/d1/modules/m1/inputs/#")
	require.Contains(t, mod.subscriptions(), "$iothub/methods/POST/#")
}

func TestParseTopic(t *testing.T) {
	dev := &settings{deviceID: "d1"}
	mod := &settings{deviceID: "d1", moduleID: "m1"}

	cases := []struct {
		name  string
		s     *settings
		topic string
		want  topic
	}{
		{
			"c2d",
			dev,
			"devices/d1/messages/devicebound/%24.mid=c1&k=v",
			topic{kind: c2dTopic, props: map[string]string{"$.mid": "c1", "k": "v"}},
		},
		{
			"input",
			mod,
			"devices/d1/modules/m1/inputs/in1/k=v",
			topic{kind: inputTopic, input: "in1", props: map[string]string{"k": "v"}},
		},
		{
			"twin response",
			dev,
			"$iothub/twin/res/204/?$rid=7&$version=3",
			topic{
				kind:   twinResponseTopic,
				status: 204,
				rid:    "7",
				props:  map[string]string{"$rid": "7", "$version": "3"},
			},
		},
		{
			"desired",
			dev,
			"$iothub/twin/PATCH/properties/desired/?$version=4",
			topic{kind: desiredTopic, props: map[string]string{"$version": "4"}},
		},
		{
			"method",
			mod,
			"$iothub/methods/POST/reboot/?$rid=9",
			topic{kind: methodTopic, name: "reboot", rid: "9"},
		},
		{"c2d for module", mod, "devices/d1/messages/devicebound/", topic{}},
		{"bad status", dev, "$iothub/twin/res/abc/?$rid=1", topic{}},
		{"other", dev, "elsewhere", topic{}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, c.s.parseTopic(c.topic))
		})
	}
}
