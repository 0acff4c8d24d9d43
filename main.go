package main

import (
	"context"
	"embed"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"github.com/MJE43/flip-go/bindings"
	"github.com/MJE43/flip-go/internal/app"
	"github.com/MJE43/flip-go/internal/config"
	"github.com/MJE43/flip-go/internal/logging"
)

//go:embed all:frontend/dist
var assets embed.FS

const shutdownTimeout = 10 * time.Second

var (
	appCtx   context.Context
	appCtxMu sync.RWMutex
)

func buildWindowsOptions(log *zap.Logger) *windows.Options {
	return &windows.Options{
		BackdropType: windows.Mica,
		Theme:        windows.SystemDefault,
		CustomTheme: &windows.ThemeSettings{
			DarkModeTitleBar:   windows.RGB(17, 24, 39),
			DarkModeTitleText:  windows.RGB(229, 231, 235),
			DarkModeBorder:     windows.RGB(55, 65, 81),
			LightModeTitleBar:  windows.RGB(249, 250, 251),
			LightModeTitleText: windows.RGB(17, 24, 39),
			LightModeBorder:    windows.RGB(229, 231, 235),
		},
		WebviewIsTransparent: false,
		WindowIsTranslucent:  false,
		DisablePinchZoom:     true,
		IsZoomControlEnabled: false,
		ZoomFactor:           1.0,
		WindowClassName:      "FlipGoWindow",
		OnSuspend: func() {
			log.Info("entering low power mode")
		},
		OnResume: func() {
			log.Info("resuming from low power mode")
		},
	}
}

func buildMacOptions() *mac.Options {
	return &mac.Options{
		TitleBar: mac.TitleBarDefault(),
		About: &mac.AboutInfo{
			Title: "Flip",
			Message: "Heads or tails against the house.\n\n" +
				"Plays settle on-chain through the configured gateway.\n" +
				"Built with Wails",
		},
	}
}

func buildLinuxOptions() *linux.Options {
	return &linux.Options{
		WindowIsTranslucent: false,
		WebviewGpuPolicy:    linux.WebviewGpuPolicyOnDemand,
		ProgramName:         config.AppName,
	}
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		// Without config there is nothing to log with either.
		logging.Must("info", false).Fatal("load config", zap.Error(err))
	}
	log := logging.Must(cfg.LogLevel, cfg.Dev)
	defer log.Sync()

	log.Info("starting flip", zap.String("go", runtime.Version()))

	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		if !errors.Is(err, config.ErrSetupRequired) {
			log.Fatal("init failed", zap.Error(err))
		}
		log.Warn("setup required", zap.Error(err))
	}
	gameMod := bindings.NewGameModule(a, err)

	startup := func(ctx context.Context) {
		setAppContext(ctx)
		gameMod.Startup(ctx)
		if a == nil {
			return
		}
		if err := a.StartLocalAPI(); err != nil {
			log.Warn("local api failed to start", zap.Error(err))
		} else if addr := a.LocalAPIAddr(); addr != "" {
			log.Info("local api ready", zap.String("addr", addr), zap.Bool("token", cfg.LocalAPIToken != ""))
		}
	}

	beforeClose := func(ctx context.Context) (prevent bool) {
		if a != nil {
			sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			if err := a.Close(sctx); err != nil {
				log.Warn("shutdown", zap.Error(err))
			}
		}
		setAppContext(nil)
		return false
	}

	if err := wails.Run(&options.App{
		Title:            "Flip",
		Width:            960,
		Height:           720,
		MinWidth:         720,
		MinHeight:        560,
		WindowStartState: options.Normal,
		BackgroundColour: &options.RGBA{R: 17, G: 24, B: 39, A: 255},

		AssetServer: &assetserver.Options{
			Assets: assets,
		},

		OnStartup:     startup,
		OnBeforeClose: beforeClose,
		OnShutdown: func(ctx context.Context) {
			log.Info("shutdown complete")
		},

		Menu: buildAppMenu(cfg.DataDir, log),
		Bind: []interface{}{gameMod},

		LogLevel:           logger.INFO,
		LogLevelProduction: logger.ERROR,

		EnableDefaultContextMenu: false,

		ErrorFormatter: func(err error) any {
			if err == nil {
				return nil
			}
			return err.Error()
		},

		// Two windows would race each other for the one play in flight.
		SingleInstanceLock: &options.SingleInstanceLock{
			UniqueId: "5b0f7c62-2f4e-4f53-9a4d-flip-go",
			OnSecondInstanceLaunch: func(data options.SecondInstanceData) {
				log.Info("second instance launch prevented", zap.Strings("args", data.Args))
			},
		},

		DragAndDrop: &options.DragAndDrop{
			EnableFileDrop:     false,
			DisableWebViewDrop: true,
		},

		Windows: buildWindowsOptions(log),
		Mac:     buildMacOptions(),
		Linux:   buildLinuxOptions(),
	}); err != nil {
		log.Error("wails run failed", zap.Error(err))
		os.Exit(1)
	}
}

func buildAppMenu(dataDir string, log *zap.Logger) *menu.Menu {
	rootMenu := menu.NewMenu()

	if runtime.GOOS == "darwin" {
		if appMenu := menu.AppMenu(); appMenu != nil {
			rootMenu.Append(appMenu)
		}
	}

	fileMenu := menu.NewMenu()
	fileMenu.AddText("Open Data Directory", keys.CmdOrCtrl("o"), func(_ *menu.CallbackData) {
		withAppContext(log, func(ctx context.Context) {
			openPathInExplorer(ctx, dataDir, log)
		})
	})
	fileMenu.AddSeparator()
	fileMenu.AddText("Quit", keys.CmdOrCtrl("q"), func(_ *menu.CallbackData) {
		withAppContext(log, func(ctx context.Context) {
			wruntime.Quit(ctx)
		})
	})
	rootMenu.Append(menu.SubMenu("File", fileMenu))

	viewMenu := menu.NewMenu()
	viewMenu.AddText("Reload Frontend", keys.CmdOrCtrl("r"), func(_ *menu.CallbackData) {
		withAppContext(log, func(ctx context.Context) {
			wruntime.WindowReloadApp(ctx)
		})
	})
	viewMenu.AddText("Toggle Fullscreen", keys.Combo("f", keys.CmdOrCtrlKey, keys.ShiftKey), func(_ *menu.CallbackData) {
		withAppContext(log, func(ctx context.Context) {
			if wruntime.WindowIsFullscreen(ctx) {
				wruntime.WindowUnfullscreen(ctx)
				return
			}
			wruntime.WindowFullscreen(ctx)
		})
	})
	rootMenu.Append(menu.SubMenu("View", viewMenu))

	return rootMenu
}

func openPathInExplorer(ctx context.Context, path string, log *zap.Logger) {
	if path == "" {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		log.Warn("resolve path failed", zap.String("path", path), zap.Error(err))
		abs = path
	}
	wruntime.BrowserOpenURL(ctx, fileURI(abs))
}

func fileURI(path string) string {
	clean := filepath.ToSlash(path)
	if runtime.GOOS == "windows" && len(clean) > 0 && clean[0] != '/' {
		clean = "/" + clean
	}
	u := url.URL{Scheme: "file", Path: clean}
	return u.String()
}

func setAppContext(ctx context.Context) {
	appCtxMu.Lock()
	defer appCtxMu.Unlock()
	appCtx = ctx
}

func withAppContext(log *zap.Logger, action func(context.Context)) {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()
	if ctx == nil {
		log.Debug("application context not initialised; ignoring menu action")
		return
	}
	action(ctx)
}
