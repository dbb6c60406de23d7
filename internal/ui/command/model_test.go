package command

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Dismiss   ALL ": "dismiss all",
		"refresh":          "refresh",
		"   ":              "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnterEmitsCommand(t *testing.T) {
	m := New(80, 24)
	m.Focus()
	for _, r := range "read" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a command")
	}
	if got, ok := cmd().(CommandMsg); !ok || got != "read" {
		t.Fatalf("expected CommandMsg(read), got %#v", cmd())
	}
}

func TestEnterOnEmptyCancels(t *testing.T) {
	m := New(80, 24)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if _, ok := cmd().(CancelMsg); !ok {
		t.Fatal("expected empty enter to cancel")
	}
}
