package agentloop

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		query    string
		expected Classification
	}{
		{"What is a goroutine?", Informational},
		{"Explain how channels work", Informational},
		{"Tell me about the scheduler", Informational},
		{"Describe the garbage collector", Informational},
		{"Why does the build fail sometimes?", Informational},
		{"Who is the module maintainer?", Informational},

		{"Search for TODO comments in the repo", Action},
		{"Run the test suite", Action},
		{"Read file config.yaml and summarize it", Action},
		{"Install the latest dependencies", Action},
		{"Create a new branch", Action},
		{"List all open ports", Action},
		{"Calculate the checksum of main.go", Action},
		{"Fetch the latest release notes", Action},

		// Mixed queries lean toward Action.
		{"Explain the failing test and then run it again", Action},
		{"What is in the logs? Check the last hour", Action},

		// No pattern matches: defaults to Action.
		{"refactor the widget thing", Action},
		{"", Action},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := Classify(tt.query)
			if got != tt.expected {
				t.Errorf("Classify(%q) = %s, want %s", tt.query, got, tt.expected)
			}
		})
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	if got := Classify("RUN THE BENCHMARKS"); got != Action {
		t.Errorf("expected Action for uppercase query, got %s", got)
	}
	if got := Classify("WHAT IS a mutex"); got != Informational {
		t.Errorf("expected Informational for uppercase query, got %s", got)
	}
}
