package catalog

import (
	"strings"
	"testing"
	"time"
)

const sampleCatalog = `{
	"active_models": {
		"general": ["bielik-11b", "llama-8b"]
	},
	"general": {
		"bielik-11b": {
			"providers": [
				{"id": "b1", "api_host": "http://gpu1:8000/", "api_type": "vllm", "model_path": "speakleash/Bielik-11B", "input_size": 4096, "weight": 3, "keep_alive": "30m"},
				{"id": "b2", "api_host": "http://gpu2:11434", "api_type": "ollama", "model_path": "bielik", "input_size": "8192"}
			],
			"providers_sleep": [
				{"id": "b3", "api_host": "http://gpu3:8000", "api_type": "vllm", "input_size": 4096}
			]
		},
		"llama-8b": {
			"providers": []
		}
	},
	"unreferenced": {
		"hidden-model": {"providers": []}
	}
}`

func TestParseValidCatalog(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatal(err)
	}

	got := c.ActiveModels()
	want := []string{"bielik-11b", "llama-8b"}
	if len(got) != len(want) {
		t.Fatalf("ActiveModels = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ActiveModels = %v, want %v", got, want)
		}
	}

	entry, ok := c.Entry("bielik-11b")
	if !ok {
		t.Fatal("bielik-11b missing")
	}
	if len(entry.Providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(entry.Providers))
	}
	if len(entry.SleepProviders) != 1 {
		t.Fatalf("sleep providers = %d, want 1", len(entry.SleepProviders))
	}

	// Groups outside active_models are ignored.
	if _, ok := c.Entry("hidden-model"); ok {
		t.Error("hidden-model should not be visible")
	}
}

func TestParseInputSizeForms(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatal(err)
	}
	ps := c.Providers("bielik-11b")
	if ps[0].InputSize.Int() != 4096 {
		t.Errorf("numeric input_size = %d, want 4096", ps[0].InputSize.Int())
	}
	if ps[1].InputSize.Int() != 8192 {
		t.Errorf("string input_size = %d, want 8192", ps[1].InputSize.Int())
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			"missing active_models",
			`{"general": {}}`,
			"active_models",
		},
		{
			"model missing from group",
			`{"active_models": {"g": ["ghost"]}, "g": {}}`,
			"ghost",
		},
		{
			"group missing entirely",
			`{"active_models": {"g": ["m"]}}`,
			`group "g"`,
		},
		{
			"non-numeric input_size",
			`{"active_models": {"g": ["m"]}, "g": {"m": {"providers": [{"id": "p", "api_host": "http://h", "api_type": "openai", "input_size": "lots"}]}}}`,
			"not numeric",
		},
		{
			"bad keep_alive",
			`{"active_models": {"g": ["m"]}, "g": {"m": {"providers": [{"id": "p", "api_host": "http://h", "api_type": "openai", "input_size": 1, "keep_alive": "2d"}]}}}`,
			"keep_alive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestEmptyProvidersLoads(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Providers("llama-8b"); len(got) != 0 {
		t.Fatalf("providers = %v, want empty", got)
	}
}

func TestProviderHost(t *testing.T) {
	tests := []struct {
		apiHost string
		want    string
	}{
		{"http://gpu1:8000/", "gpu1:8000"},
		{"http://gpu2:11434", "gpu2:11434"},
		{"https://inference.example.com/v1/", "inference.example.com"},
	}
	for _, tt := range tests {
		p := ProviderSpec{APIHost: tt.apiHost}
		if got := p.Host(); got != tt.want {
			t.Errorf("Host(%q) = %q, want %q", tt.apiHost, got, tt.want)
		}
	}
}

func TestProviderByHost(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatal(err)
	}
	p, ok := c.ProviderByHost("bielik-11b", "gpu2:11434")
	if !ok || p.ID != "b2" {
		t.Fatalf("got %v %v, want b2", p.ID, ok)
	}
	if _, ok := c.ProviderByHost("bielik-11b", "nowhere:1"); ok {
		t.Error("unexpected match")
	}
}

func TestEffectiveWeight(t *testing.T) {
	if w := (ProviderSpec{}).EffectiveWeight(); w != 1.0 {
		t.Errorf("default weight = %v, want 1.0", w)
	}
	if w := (ProviderSpec{Weight: 3}).EffectiveWeight(); w != 3.0 {
		t.Errorf("weight = %v, want 3.0", w)
	}
}

func TestParseKeepAlive(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30s", 30 * time.Second, false},
		{"45m", 45 * time.Minute, false},
		{"2h", 2 * time.Hour, false},
		{"35m", 35 * time.Minute, false},
		{"", 0, true},
		{"1d", 0, true},
		{"m30", 0, true},
		{"-5s", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseKeepAlive(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKeepAlive(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKeepAlive(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
