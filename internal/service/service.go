// Package service installs `whispr serve` as a per-user background
// service so the browser extension always has a backend to connect to.
// macOS uses launchd and Linux uses a systemd user unit.
package service

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/joho/godotenv"

	"github.com/chris/whispr/config"
)

const label = "com.whispr.backend"

// manager is one init system. Install writes its unit file, then runs the
// enable commands.
type manager struct {
	unitPath string
	tmpl     *template.Template
	enable   [][]string
	disable  [][]string
	start    []string
	stop     []string
	status   []string
	logs     []string
}

type unitData struct {
	Label     string
	BinPath   string
	WorkDir   string
	StdoutLog string
	StderrLog string
}

func home() string {
	h, _ := os.UserHomeDir()
	return h
}

func binPath() string {
	return filepath.Join(home(), ".local", "bin", "whispr")
}

func stdoutLogPath() string { return filepath.Join(config.ConfigDir(), "logs", "whispr-stdout.log") }
func stderrLogPath() string { return filepath.Join(config.ConfigDir(), "logs", "whispr-stderr.log") }

func current() (*manager, error) {
	switch runtime.GOOS {
	case "darwin":
		plist := filepath.Join(home(), "Library", "LaunchAgents", label+".plist")
		return &manager{
			unitPath: plist,
			tmpl:     plistTemplate,
			enable:   [][]string{{"launchctl", "load", plist}},
			disable:  [][]string{{"launchctl", "unload", plist}},
			start:    []string{"launchctl", "start", label},
			stop:     []string{"launchctl", "stop", label},
			status:   []string{"launchctl", "list", label},
			logs:     []string{"tail", "-f", stdoutLogPath(), stderrLogPath()},
		}, nil
	case "linux":
		unit := filepath.Join(home(), ".config", "systemd", "user", "whispr.service")
		return &manager{
			unitPath: unit,
			tmpl:     systemdTemplate,
			enable: [][]string{
				{"systemctl", "--user", "daemon-reload"},
				{"systemctl", "--user", "enable", "--now", "whispr.service"},
			},
			disable: [][]string{{"systemctl", "--user", "disable", "--now", "whispr.service"}},
			start:   []string{"systemctl", "--user", "start", "whispr.service"},
			stop:    []string{"systemctl", "--user", "stop", "whispr.service"},
			status:  []string{"systemctl", "--user", "status", "whispr.service"},
			logs:    []string{"tail", "-f", stdoutLogPath(), stderrLogPath()},
		}, nil
	default:
		return nil, fmt.Errorf("service install is not supported on %s", runtime.GOOS)
	}
}

// Install copies the running binary to ~/.local/bin, seeds ~/.whispr/config
// from .env if needed, writes the unit file and enables it.
func Install() error {
	m, err := current()
	if err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return fmt.Errorf("resolving symlinks: %w", err)
	}
	if err := copyFile(exe, binPath(), 0755); err != nil {
		return fmt.Errorf("installing binary: %w", err)
	}
	fmt.Printf("installed binary to %s\n", binPath())

	if err := seedConfig(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(stdoutLogPath()), 0755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	unit, err := render(m.tmpl, resolveWorkDir())
	if err != nil {
		return fmt.Errorf("generating unit file: %w", err)
	}

	// Replace a previous install (ignore errors)
	if _, err := os.Stat(m.unitPath); err == nil {
		for _, args := range m.disable {
			_ = run(args...)
		}
	}

	if err := os.MkdirAll(filepath.Dir(m.unitPath), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(m.unitPath), err)
	}
	if err := os.WriteFile(m.unitPath, []byte(unit), 0644); err != nil {
		return fmt.Errorf("writing unit file: %w", err)
	}
	fmt.Printf("wrote %s\n", m.unitPath)

	for _, args := range m.enable {
		if err := run(args...); err != nil {
			return err
		}
	}
	fmt.Println("service enabled and will start on login")
	return nil
}

// Uninstall disables the service and removes the unit file and binary.
func Uninstall() error {
	m, err := current()
	if err != nil {
		return err
	}

	if _, err := os.Stat(m.unitPath); err == nil {
		for _, args := range m.disable {
			if err := run(args...); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			}
		}
		if err := os.Remove(m.unitPath); err != nil {
			return fmt.Errorf("removing unit file: %w", err)
		}
		fmt.Printf("removed %s\n", m.unitPath)
	} else {
		fmt.Println("unit file not found, skipping")
	}

	if err := os.Remove(binPath()); err == nil {
		fmt.Printf("removed %s\n", binPath())
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("removing binary: %w", err)
	}

	fmt.Println("uninstalled")
	return nil
}

func Start() error  { return do(func(m *manager) []string { return m.start }) }
func Stop() error   { return do(func(m *manager) []string { return m.stop }) }
func Status() error { return do(func(m *manager) []string { return m.status }) }
func Logs() error   { return do(func(m *manager) []string { return m.logs }) }

func Restart() error {
	_ = Stop()
	return Start()
}

func do(pick func(*manager) []string) error {
	m, err := current()
	if err != nil {
		return err
	}
	args := pick(m)
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// seedConfig copies .env to ~/.whispr/config unless a config already exists.
func seedConfig() error {
	configFile := config.ConfigFile()
	if _, err := os.Stat(configFile); err == nil {
		fmt.Printf("config already exists at %s\n", configFile)
		return nil
	}
	envData, err := os.ReadFile(".env")
	if err != nil {
		return nil
	}
	if err := os.MkdirAll(config.ConfigDir(), 0700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(configFile, envData, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Printf("seeded config from .env -> %s\n", configFile)
	return nil
}

// resolveWorkDir keeps the current directory when the configured
// DATABASE_PATH is relative, since the service would otherwise open a
// different file. Everything else runs from ~/.whispr.
func resolveWorkDir() string {
	envVars, _ := godotenv.Read(config.ConfigFile())
	if dbPath, ok := envVars["DATABASE_PATH"]; ok && !filepath.IsAbs(dbPath) {
		if wd, err := os.Getwd(); err == nil {
			return wd
		}
	}
	return config.ConfigDir()
}

func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode)
}

func run(args ...string) error {
	cmd := exec.Command(args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return nil
}

func render(tmpl *template.Template, workDir string) (string, error) {
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, unitData{
		Label:     label,
		BinPath:   binPath(),
		WorkDir:   workDir,
		StdoutLog: stdoutLogPath(),
		StderrLog: stderrLogPath(),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

var plistTemplate = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinPath}}</string>
		<string>serve</string>
	</array>
	<key>WorkingDirectory</key>
	<string>{{.WorkDir}}</string>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{.StdoutLog}}</string>
	<key>StandardErrorPath</key>
	<string>{{.StderrLog}}</string>
</dict>
</plist>
`))

var systemdTemplate = template.Must(template.New("systemd").Parse(`[Unit]
Description=Whispr voice browsing backend ({{.Label}})
After=network-online.target

[Service]
ExecStart={{.BinPath}} serve
WorkingDirectory={{.WorkDir}}
Restart=on-failure
StandardOutput=append:{{.StdoutLog}}
StandardError=append:{{.StderrLog}}

[Install]
WantedBy=default.target
`))
