package credential

import "testing"

func TestSessionTokenPrefersEnvironment(t *testing.T) {
	t.Setenv(TokenEnv, "  env-token  ")

	token, err := SessionToken()
	if err != nil {
		t.Fatalf("session token: %v", err)
	}
	if token != "env-token" {
		t.Fatalf("expected env-token, got %q", token)
	}
}
