package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/ayusman/thumbtrial/internal/app"
	"github.com/ayusman/thumbtrial/internal/config"
	"github.com/ayusman/thumbtrial/internal/server"
	"github.com/ayusman/thumbtrial/internal/store"
	"github.com/ayusman/thumbtrial/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.thumbtrial/config.yaml)")
	dbPath := flag.String("db", "", "path to the settings database (default ~/.thumbtrial/thumbtrial.db)")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	staticDir := flag.String("static", "", "directory of renderer assets, overrides server.static_dir")
	flag.Parse()

	fmt.Println("Thumbtrial - Thumb Gesture Trials")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}

	dataDir := filepath.Join(homeDir, ".thumbtrial")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	if *configPath == "" {
		*configPath = filepath.Join(dataDir, "config.yaml")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *staticDir != "" {
		cfg.Server.StaticDir = *staticDir
	}

	if *dbPath == "" {
		*dbPath = filepath.Join(dataDir, "thumbtrial.db")
	}
	st, err := store.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	a := app.New(app.Config{Base: cfg, Store: st})
	defer a.Close()

	hub := server.NewHub()
	a.AddObserver(hub)

	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir:    webDir,
		Store:        st,
		Settings:     a,
		Trials:       a,
		ClientConfig: a.Config,
		Delivery:     a.Stats,
		Hub:          hub,
		Stream:       a,
	})

	if err := a.Start(); err != nil {
		log.Printf("Camera unavailable, continuing without capture: %v", err)
	}
	defer a.Stop()

	go func() {
		fmt.Printf("Starting server on %s\n", cfg.Server.Addr)
		if err := srv.ListenAndServe(cfg.Server.Addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if !cfg.Tray {
		<-sigCh
		log.Println("Shutting down")
		return
	}

	// The tray owns the main thread until Quit.
	t := tray.New()
	a.AddObserver(t)
	t.OnToggle(a.SetEnabled)
	t.OnSettings(func() {
		openBrowser("http://localhost" + cfg.Server.Addr)
	})
	go func() {
		<-sigCh
		log.Println("Shutting down")
		t.Quit()
	}()
	t.Run()
}

// findWebDir searches for the renderer assets in common locations.
// It checks: "web", "../web", "../../web", and ~/.thumbtrial/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".thumbtrial", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}
