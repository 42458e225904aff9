package costar

import (
	"testing"
)

const sampleDoc = `{
	"current": {"temperature_2m": 21.5, "weather_code": 3, "is_day": 1},
	"hourly": {"temperature_2m": [18.1, 19.4, 21.5]},
	"station": {"name": "KOAK", "online": true},
	"rows": [{"flight": "UAL123"}, {"flight": "SWA456"}]
}`

func mustParse(t *testing.T, data string) Value {
	t.Helper()
	v, err := ParseJSON([]byte(data))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	return v
}

func TestResolve(t *testing.T) {
	root := mustParse(t, sampleDoc)

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"current.temperature_2m", "21.5", true},
		{"current.weather_code", "3", true},
		{"station.name", "KOAK", true},
		{"station.online", "true", true},
		{"hourly.temperature_2m[2]", "21.5", true},
		{"rows[1].flight", "SWA456", true},
		{"rows[0].flight", "UAL123", true},
		{"current.missing", "", false},
		{"missing.path", "", false},
		{"hourly.temperature_2m[9]", "", false},
		{"hourly.temperature_2m[-1]", "", false},
		{"station.name[0]", "", false},
		{"current[0]", "", false},
		{"", "", false},
		{"rows[x]", "", false},
		{"rows[", "", false},
	}

	for _, tt := range tests {
		got, ok := root.Resolve(tt.path)
		if ok != tt.ok {
			t.Errorf("Resolve(%q) ok=%v, want %v", tt.path, ok, tt.ok)
			continue
		}
		if ok && got.Text() != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.path, got.Text(), tt.want)
		}
	}
}

func TestResolveBareIndexSegment(t *testing.T) {
	root := mustParse(t, `{"list": [[10, 20], [30]]}`)

	v, ok := root.Resolve("list[0].[1]")
	if !ok {
		t.Fatal("bare index segment should resolve")
	}
	if v.Text() != "20" {
		t.Errorf("got %q, want 20", v.Text())
	}
}

func TestTextConversions(t *testing.T) {
	tests := []struct {
		json string
		want string
	}{
		{`"plain"`, "plain"},
		{`42`, "42"},
		{`21.50`, "21.5"},
		{`21.00`, "21"},
		{`-3.25`, "-3.25"},
		{`true`, "true"},
		{`false`, "false"},
		{`null`, ""},
		{`"café"`, "caf?"},
	}

	for _, tt := range tests {
		v := mustParse(t, tt.json)
		if got := v.Text(); got != tt.want {
			t.Errorf("Text(%s) = %q, want %q", tt.json, got, tt.want)
		}
	}
}

func TestFloatSeries(t *testing.T) {
	root := mustParse(t, `{"s": [1, 2.5, "x", null, 4]}`)
	v, _ := root.Resolve("s")
	series := v.FloatSeries()
	want := []float64{1, 2.5, 4}
	if len(series) != len(want) {
		t.Fatalf("series len = %d, want %d", len(series), len(want))
	}
	for i := range want {
		if series[i] != want[i] {
			t.Errorf("series[%d] = %v, want %v", i, series[i], want[i])
		}
	}
}

func TestExtractLikelyJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"\xEF\xBB\xBF{\"a\":1}", `{"a":1}`},
		{"garbage {\"a\":1} trailing", `{"a":1}`},
		{"  [1,2,3]\n", "[1,2,3]"},
		{"no json here", "no json here"},
	}

	for _, tt := range tests {
		got := string(ExtractLikelyJSON([]byte(tt.in)))
		if got != tt.want {
			t.Errorf("ExtractLikelyJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func BenchmarkResolve(b *testing.B) {
	v, err := ParseJSON([]byte(sampleDoc))
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.Resolve("hourly.temperature_2m[2]")
	}
}
