package guard

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		safe bool
	}{
		{"empty", "", false},
		{"whitespace", "   ", false},
		{"tabs and newlines", "\t\n", false},
		{"plain question", "What happens next?", true},
		{"story turn", "The dragon flew over the castle", true},
		{"ssn with dashes", "My SSN is 123-45-6789", false},
		{"ssn with dots", "call 123.45.6789", false},
		{"ssn without separators", "id 123456789 please", false},
		{"card number", "pay with 4111111111111111 now", false},
		{"email", "write to Alice.Smith@Example.COM", false},
		{"keyword password", "What is my password?", false},
		{"keyword upper case", "my CREDIT CARD is blue", false},
		{"keyword inside word", "passwords are boring", false},
		{"keyword social security", "Social Security office", false},
		{"keyword bank account", "open a bank account", false},
		{"short digit run", "there were 12 dwarves", true},
	}

	g := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Classify(tt.text); got != tt.safe {
				t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.safe)
			}
		})
	}
}

func TestInspectReportsRule(t *testing.T) {
	req := require.New(t)
	g := Default()

	req.Equal(Verdict{Reason: ReasonEmpty}, g.Inspect(" "))
	req.Equal(Verdict{Reason: ReasonPII, Rule: "SSN"}, g.Inspect("My SSN is 123-45-6789"))
	req.Equal(Verdict{Reason: ReasonPII, Rule: "Email Address"}, g.Inspect("a@b.io"))
	req.Equal(Verdict{Reason: ReasonBlocklist, Rule: "password"}, g.Inspect("What is my PassWord?"))
	req.Equal(Verdict{Safe: true}, g.Inspect("Once upon a time"))
}

func TestClassifyIsDeterministic(t *testing.T) {
	inputs := []string{"", "What happens next?", "my password", "123-45-6789"}
	first := make([]bool, len(inputs))
	for i, in := range inputs {
		first[i] = Classify(in)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, in := range inputs {
				if got := Classify(in); got != first[i] {
					t.Errorf("Classify(%q) changed from %v to %v", in, first[i], got)
				}
			}
		}()
	}
	wg.Wait()
}

func TestNewCustomBlocklist(t *testing.T) {
	req := require.New(t)

	g, err := New(nil, []string{" Troll ", "troll", "", "goblin"})
	req.NoError(err)
	req.False(g.Classify("a TROLL appears"))
	req.False(g.Classify("the goblin king"))
	req.True(g.Classify("my email is a@b.io"), "no PII patterns configured")
}

func TestNewEmptyBlocklist(t *testing.T) {
	g, err := New(DefaultPatterns(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !g.Classify("what is my password") {
		t.Error("expected keyword to pass without a blocklist")
	}
	if g.Classify("4111111111111111") {
		t.Error("expected card number to be rejected")
	}
}
