package senec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const lalaResponse = `{
	"ENERGY": {
		"GUI_BAT_DATA_POWER": "fl_C3FA4000",
		"GUI_BAT_DATA_FUEL_CHARGE": "fl_425E0000",
		"GUI_INVERTER_POWER": "fl_451C4000"
	},
	"PM1OBJ1": {
		"P_TOTAL": "fl_C3962000",
		"FREQ": "fl_42480000",
		"I_AC": ["fl_3FC00000", "fl_40100000", "fl_40400000"],
		"U_AC": ["fl_43660000", "fl_43678000", "fl_4365C000"],
		"P_AC": ["fl_42C80000", "fl_43480000", "fl_C2480000"]
	}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient("senec", Options{IPAddress: strings.TrimPrefix(srv.URL, "http://")}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestDecodeValue(t *testing.T) {

	cases := []struct {
		raw  string
		want any
	}{
		{"fl_447A0000", 1000.0},
		{"fl_C3FA4000", -500.5},
		{"u8_64", 100.0},
		{"u1_FFFF", 65535.0},
		{"u3_0001E240", 123456.0},
		{"u6_0000000000000010", 16.0},
		{"i1_FFFE", -2.0},
		{"i3_FFFFFFFF", -1.0},
		{"i8_80", -128.0},
		{"st_RUNNING", "RUNNING"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			v, err := decodeValue(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestDecodeValueRejects(t *testing.T) {

	assert := assert.New(t)

	for _, raw := range []string{"VARIABLE_NOT_FOUND", "1000", "xx_00", "u8_1FF", "fl_zz"} {
		_, err := decodeValue(raw)
		assert.Error(err, raw)
	}
}

func TestClientGetValues(t *testing.T) {

	require := require.New(t)

	var requested map[string]map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(http.MethodPost, r.Method)
		require.Equal("/lala.cgi", r.URL.Path)
		require.NoError(json.NewDecoder(r.Body).Decode(&requested))
		_, _ = w.Write([]byte(lalaResponse))
	})

	reading, err := c.GetValues(context.Background())
	require.NoError(err)
	require.Contains(requested, domain.SectionEnergy)
	require.Contains(requested[domain.SectionCounter], domain.KeyCounterVoltages)

	v, err := reading.Float(domain.SectionEnergy, domain.KeyBatPower)
	require.NoError(err)
	require.Equal(-500.5, v)

	voltages, err := reading.Float3(domain.SectionCounter, domain.KeyCounterVoltages)
	require.NoError(err)
	require.Equal([3]float64{230, 231.5, 229.75}, voltages)
}

func TestClientDropsUndecodableValue(t *testing.T) {

	require := require.New(t)

	body := strings.Replace(lalaResponse, `"FREQ": "fl_42480000"`, `"FREQ": "VARIABLE_NOT_FOUND"`, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})

	reading, err := c.GetValues(context.Background())
	require.NoError(err)

	_, err = reading.Float(domain.SectionCounter, domain.KeyCounterFrequency)
	require.True(domain.IsMalformedReading(err))
	_, err = reading.Float(domain.SectionEnergy, domain.KeyBatSoC)
	require.NoError(err, "other values survive")
}

func TestClientErrors(t *testing.T) {

	assert := assert.New(t)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})
	_, err := c.GetValues(context.Background())
	assert.True(domain.IsDeviceUnavailable(err))

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	})
	_, err = c.GetValues(context.Background())
	assert.True(domain.IsMalformedReading(err))

	c, err = NewClient("senec", Options{IPAddress: "127.0.0.1:1"}, zap.NewNop())
	assert.NoError(err, "construction performs no I/O")
	_, err = c.GetValues(context.Background())
	assert.True(domain.IsDeviceUnavailable(err))

	_, err = NewClient("senec", Options{}, zap.NewNop())
	assert.Error(err)
}

func TestClientURL(t *testing.T) {

	c, err := NewClient("senec", Options{IPAddress: "192.168.1.50", UseHTTPS: true, InsecureTLS: true}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "https://192.168.1.50/lala.cgi", c.URL())
}
