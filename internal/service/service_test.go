package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chris/whispr/config"
)

func TestRender_Plist(t *testing.T) {
	t.Setenv("HOME", "/Users/test")
	out, err := render(plistTemplate, "/Users/test/.whispr")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"<string>com.whispr.backend</string>",
		"<string>/Users/test/.local/bin/whispr</string>\n\t\t<string>serve</string>",
		"<string>/Users/test/.whispr</string>",
		"/Users/test/.whispr/logs/whispr-stderr.log",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plist missing %q", want)
		}
	}
}

func TestRender_Systemd(t *testing.T) {
	t.Setenv("HOME", "/home/test")
	out, err := render(systemdTemplate, "/srv/whispr")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"ExecStart=/home/test/.local/bin/whispr serve",
		"WorkingDirectory=/srv/whispr",
		"StandardOutput=append:/home/test/.whispr/logs/whispr-stdout.log",
		"WantedBy=default.target",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("unit missing %q", want)
		}
	}
}

func TestResolveWorkDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	wd := t.TempDir()
	t.Chdir(wd)

	if got := resolveWorkDir(); got != config.ConfigDir() {
		t.Errorf("without config, got %q, want %q", got, config.ConfigDir())
	}

	if err := os.MkdirAll(config.ConfigDir(), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(config.ConfigFile(), []byte("DATABASE_PATH=./data.db\n"), 0600); err != nil {
		t.Fatal(err)
	}
	got, _ := filepath.EvalSymlinks(resolveWorkDir())
	want, _ := filepath.EvalSymlinks(wd)
	if got != want {
		t.Errorf("relative database path: got %q, want %q", got, want)
	}
}

func TestSeedConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	if err := os.WriteFile(".env", []byte("LLM_PROVIDER=openai\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := seedConfig(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(config.ConfigFile())
	if err != nil || string(data) != "LLM_PROVIDER=openai\n" {
		t.Fatalf("config not seeded: %q %v", data, err)
	}

	// An existing config is left alone.
	os.WriteFile(".env", []byte("LLM_PROVIDER=gemini\n"), 0600)
	if err := seedConfig(); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(config.ConfigFile())
	if string(data) != "LLM_PROVIDER=openai\n" {
		t.Errorf("existing config overwritten: %q", data)
	}
}
