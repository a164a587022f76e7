package models

import "testing"

func TestComposedSystemPromptOmitsEmptySections(t *testing.T) {
	agent := &Agent{System: "Be concise."}
	if got := agent.ComposedSystemPrompt(); got != "Be concise." {
		t.Fatalf("got %q, want %q", got, "Be concise.")
	}
}

func TestComposedSystemPromptJoinsAllSections(t *testing.T) {
	agent := &Agent{
		System:     "Be concise.",
		Persona:    "You are terse and exacting.",
		Guardrails: "Never fabricate file paths.",
	}
	want := "Be concise.\n\n## Persona\nYou are terse and exacting.\n\n## Guardrails\nNever fabricate file paths."
	if got := agent.ComposedSystemPrompt(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestComposedSystemPromptEmptyAgent(t *testing.T) {
	agent := &Agent{}
	if got := agent.ComposedSystemPrompt(); got != "" {
		t.Fatalf("got %q, want empty string", got)
	}
}

func TestComposedSystemPromptPersonaOnly(t *testing.T) {
	agent := &Agent{Persona: "Curious and direct."}
	want := "## Persona\nCurious and direct."
	if got := agent.ComposedSystemPrompt(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
