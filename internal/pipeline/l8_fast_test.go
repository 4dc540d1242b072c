package pipeline

import "testing"

func TestFastSafetyCheckerPassesCleanResponse(t *testing.T) {
	c := NewFastSafetyChecker(nil)
	r := c.Check("Kellogg has worked extensively with Go and distributed systems.")
	if !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
}

func TestFastSafetyCheckerFlagsPromptLeakage(t *testing.T) {
	c := NewFastSafetyChecker(nil)
	r := c.Check("As stated in my system prompt, I should only discuss Kellogg's work.")
	if r.Passed {
		t.Fatal("expected block for prompt leakage")
	}
	if len(r.Issues) == 0 || r.Issues[0] != "prompt_leakage" {
		t.Fatalf("expected prompt_leakage issue, got %+v", r.Issues)
	}
}

func TestFastSafetyCheckerFlagsInappropriateContent(t *testing.T) {
	c := NewFastSafetyChecker(nil)
	r := c.Check("That is such shit, honestly.")
	if r.Passed {
		t.Fatal("expected block for inappropriate content")
	}
}

func TestFastSafetyCheckerAllowsSafeEmail(t *testing.T) {
	c := NewFastSafetyChecker([]string{"kellogg@example.com"})
	r := c.Check("You can reach him at kellogg@example.com for more information.")
	if !r.Passed {
		t.Fatalf("expected pass for allowlisted email, got %+v", r)
	}
}

func TestFastSafetyCheckerFlagsUnknownEmail(t *testing.T) {
	c := NewFastSafetyChecker([]string{"kellogg@example.com"})
	r := c.Check("Email me directly at someoneelse@personal.com any time.")
	if r.Passed {
		t.Fatal("expected block for non-allowlisted email")
	}
}

func TestFastSafetyCheckerFlagsNegativeSelfTalk(t *testing.T) {
	c := NewFastSafetyChecker(nil)
	r := c.Check("Honestly, Kellogg sucks at public speaking.")
	if r.Passed {
		t.Fatal("expected block for negative self-talk")
	}
}
