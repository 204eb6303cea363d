package validator

import (
	"testing"

	"github.com/robert-at-pretension-io/tbgen/internal/extractor"
)

// TestInterfaceContract checks the CUE contract between the extractor and
// the synthesizer.
func TestInterfaceContract(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	tests := []struct {
		name    string
		data    map[string]interface{}
		wantErr bool
	}{
		{
			name: "valid_interface",
			data: map[string]interface{}{
				"name":       "counter",
				"parameters": []interface{}{map[string]interface{}{"name": "W", "value": 8}},
				"ports": []interface{}{
					port("clk", "input", 1, "default", ""),
					port("data", "input", 8, "parameter", "W"),
					port("q", "output", 4, "literal", "3"),
				},
			},
			wantErr: false,
		},
		{
			name: "empty_module",
			data: map[string]interface{}{
				"name":       "empty",
				"parameters": []interface{}{},
				"ports":      []interface{}{},
			},
			wantErr: false,
		},
		{
			name: "invalid_direction",
			data: map[string]interface{}{
				"name":       "m",
				"parameters": []interface{}{},
				"ports":      []interface{}{port("sda", "inout", 1, "default", "")},
			},
			wantErr: true,
		},
		{
			name: "zero_width",
			data: map[string]interface{}{
				"name":       "m",
				"parameters": []interface{}{},
				"ports":      []interface{}{port("a", "input", 0, "literal", "0")},
			},
			wantErr: true,
		},
		{
			name: "width_above_limit",
			data: map[string]interface{}{
				"name":       "m",
				"parameters": []interface{}{},
				"ports":      []interface{}{port("a", "input", 16777217, "literal", "16777216")},
			},
			wantErr: true,
		},
		{
			name: "defaulted_port_wider_than_one",
			data: map[string]interface{}{
				"name":       "m",
				"parameters": []interface{}{},
				"ports":      []interface{}{port("a", "input", 4, "default", "")},
			},
			wantErr: true,
		},
		{
			name: "resolved_width_without_range",
			data: map[string]interface{}{
				"name":       "m",
				"parameters": []interface{}{},
				"ports":      []interface{}{port("a", "input", 4, "literal", "")},
			},
			wantErr: true,
		},
		{
			name: "bad_module_name",
			data: map[string]interface{}{
				"name":       "1bad",
				"parameters": []interface{}{},
				"ports":      []interface{}{},
			},
			wantErr: true,
		},
		{
			name: "negative_parameter",
			data: map[string]interface{}{
				"name":       "m",
				"parameters": []interface{}{map[string]interface{}{"name": "W", "value": -1}},
				"ports":      []interface{}{},
			},
			wantErr: true,
		},
		{
			name: "missing_ports",
			data: map[string]interface{}{
				"name":       "m",
				"parameters": []interface{}{},
			},
			wantErr: true,
		},
		{
			name: "unknown_field",
			data: map[string]interface{}{
				"name":       "m",
				"parameters": []interface{}{},
				"ports":      []interface{}{},
				"instances":  []interface{}{},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtractedInterfacesSatisfyContract(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	sources := []string{
		`module counter(input clk, input rst, input [3:0] inc, output [3:0] count); endmodule`,
		`module top #(parameter W = 8, parameter X = 4'h3) (input [W-1:0] d, input [N-1:0] e, input [7:4] f, output q); endmodule`,
		`module empty; endmodule`,
	}
	for _, src := range sources {
		iface, err := extractor.Parse([]byte(src))
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		if errs := v.ValidationErrors(iface); len(errs) != 0 {
			t.Fatalf("extracted interface %s violates contract: %v", iface.Name, errs)
		}
	}
}

func TestValidationErrorsReportsFailures(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	errs := v.ValidationErrors(map[string]interface{}{
		"name":       "m",
		"parameters": []interface{}{},
		"ports": []interface{}{
			port("a", "inout", 1, "default", ""),
			port("b", "input", 0, "literal", "x"),
		},
	})
	if len(errs) == 0 {
		t.Fatalf("expected validation errors")
	}
}

func port(name, dir string, width int, source, rng string) map[string]interface{} {
	p := map[string]interface{}{
		"name":         name,
		"direction":    dir,
		"width":        width,
		"width_source": source,
		"line":         1,
	}
	if rng != "" {
		p["range"] = rng
	}
	return p
}
