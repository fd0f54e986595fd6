package config

import (
	"strings"
	"testing"
)

func TestExpandEnv_ValueFromEnvironment(t *testing.T) {
	t.Setenv("TOLLGATE_TEST_TOKEN", "secret-value")
	got, err := expandEnv([]byte("token: ${TOLLGATE_TEST_TOKEN}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "token: secret-value" {
		t.Errorf("expandEnv() = %q", got)
	}
}

func TestExpandEnv_DefaultWhenUnset(t *testing.T) {
	got, err := expandEnv([]byte("url: ${TOLLGATE_TEST_UNSET_URL:-http://localhost:4001}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "url: http://localhost:4001" {
		t.Errorf("expandEnv() = %q", got)
	}
}

func TestExpandEnv_EnvironmentWinsOverDefault(t *testing.T) {
	t.Setenv("TOLLGATE_TEST_URL", "http://real:9000")
	got, err := expandEnv([]byte("url: ${TOLLGATE_TEST_URL:-http://localhost:4001}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "url: http://real:9000" {
		t.Errorf("expandEnv() = %q", got)
	}
}

func TestExpandEnv_EscapedBraceInDefault(t *testing.T) {
	got, err := expandEnv([]byte(`v: ${TOLLGATE_TEST_UNSET:-a\}b}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "v: a}b" {
		t.Errorf("expandEnv() = %q", got)
	}
}

func TestExpandEnv_UnresolvedReported(t *testing.T) {
	_, err := expandEnv([]byte("a: ${TOLLGATE_TEST_MISSING_ONE}\nb: ${TOLLGATE_TEST_MISSING_TWO}"))
	if err == nil {
		t.Fatal("expected error for unresolved variables")
	}
	if !strings.Contains(err.Error(), "TOLLGATE_TEST_MISSING_ONE") || !strings.Contains(err.Error(), "TOLLGATE_TEST_MISSING_TWO") {
		t.Errorf("error should list both variables: %v", err)
	}
}
