package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"tetris-agent-go/src/api"
	"tetris-agent-go/src/configs"
	"tetris-agent-go/src/configs/database"
	"tetris-agent-go/src/core/history"
	"tetris-agent-go/src/core/mcp"
	"tetris-agent-go/src/core/providers/llm"
	"tetris-agent-go/src/core/tools"
	"tetris-agent-go/src/core/utils"

	// 导入所有providers以确保init函数被调用
	_ "tetris-agent-go/src/core/providers/llm/ollama"
	_ "tetris-agent-go/src/core/providers/llm/openai"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// App 一次进程运行所需的全部组件
type App struct {
	Config    *configs.Config
	Logger    *utils.Logger
	Client    *mcp.LocalClient
	History   *history.Recorder // 未配置数据库时为 nil
	providers map[string]llm.Provider
}

// loadConfig 先加载 .env，配置中的 ${VAR} 才能展开
func loadConfig(cmd *cobra.Command, validate bool) (*configs.Config, string, error) {
	envErr := godotenv.Load()

	path, _ := cmd.Flags().GetString("config")
	config, configPath, err := configs.LoadConfig(path)
	if err != nil {
		return nil, configPath, fmt.Errorf("加载配置失败(%s): %w", configPath, err)
	}
	if validate {
		if err := config.Validate(); err != nil {
			return nil, configPath, err
		}
	}
	if envErr != nil {
		fmt.Fprintln(os.Stderr, "未找到 .env 文件，使用系统环境变量")
	}
	return config, configPath, nil
}

// LoadConfigAndLogger 加载配置并初始化日志系统
func LoadConfigAndLogger(cmd *cobra.Command) (*configs.Config, *utils.Logger, error) {
	config, configPath, err := loadConfig(cmd, true)
	if err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewLogger(config.Log)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(fmt.Sprintf("日志系统初始化成功, 配置文件路径: %s", configPath))

	return config, logger, nil
}

// NewApp 创建模型提供者、工具和调用记录
func NewApp(config *configs.Config, logger *utils.Logger) (*App, error) {
	app := &App{
		Config:    config,
		Logger:    logger,
		Client:    mcp.NewLocalClient(logger),
		providers: make(map[string]llm.Provider),
	}

	visionProvider, err := app.provider(config.Tools.Vision.LLM)
	if err != nil {
		return nil, err
	}
	strategyProvider, err := app.provider(config.Tools.Strategy.LLM)
	if err != nil {
		return nil, err
	}

	vision, err := tools.NewVisionTool(config.Tools.Vision, visionProvider, logger)
	if err != nil {
		return nil, fmt.Errorf("创建视觉分析工具失败: %w", err)
	}
	strategy, err := tools.NewStrategyTool(config.Tools.Strategy, strategyProvider, logger)
	if err != nil {
		return nil, fmt.Errorf("创建策略分析工具失败: %w", err)
	}
	if err := app.Client.RegisterTetrisTools(vision, strategy); err != nil {
		return nil, err
	}

	// 初始化数据库连接，未配置时不记录调用
	if database.Enabled() {
		db, dbType, err := database.InitDB()
		if err != nil {
			logger.Warn("数据库连接失败，调用记录已关闭", map[string]interface{}{"error": err.Error()})
		} else {
			app.History = history.NewRecorder(db, logger)
			app.Client.SetRecorder(app.History)
			logger.Info("调用记录已启用", map[string]interface{}{"db_type": dbType})
		}
	}

	return app, nil
}

// provider 同一个模型只创建一次
func (a *App) provider(ref string) (llm.Provider, error) {
	if p, ok := a.providers[ref]; ok {
		return p, nil
	}
	p, err := llm.CreateFromConfig(a.Config, ref)
	if err != nil {
		return nil, fmt.Errorf("创建模型 %s 失败: %w", ref, err)
	}
	a.providers[ref] = p
	return p, nil
}

// Close 释放模型提供者和日志文件
func (a *App) Close() {
	for name, p := range a.providers {
		if err := p.Cleanup(); err != nil {
			a.Logger.Warn(fmt.Sprintf("清理模型 %s 失败", name), err)
		}
	}
	_ = a.Logger.Close()
}

func StartHttpServer(app *App, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config, logger := app.Config, app.Logger

	// 初始化Gin引擎
	if strings.EqualFold(config.Log.LogLevel, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.SetTrustedProxies([]string{"0.0.0.0"})

	// API路由全部挂载到/api前缀下
	apiGroup := router.Group("/api")
	service, err := api.NewTetrisService(config, app.Client, logger)
	if err != nil {
		logger.Error("Tetris 服务初始化失败", err)
		return nil, err
	}
	if app.History != nil {
		service.SetHistory(app.History)
	}
	if err := service.Start(groupCtx, router, apiGroup); err != nil {
		logger.Error("Tetris 服务启动失败", err)
		return nil, err
	}

	// HTTP Server（支持优雅关机）
	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Web.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("Gin 服务已启动，访问地址: http://0.0.0.0:%d", config.Web.Port))

		// 在单独的 goroutine 中监听关闭信号
		go func() {
			<-groupCtx.Done()
			logger.Info("收到关闭信号，开始关闭HTTP服务...")

			// 创建关闭超时上下文
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP服务关闭失败", err)
			} else {
				logger.Info("HTTP服务已优雅关闭")
			}
		}()

		// ListenAndServe 返回 ErrServerClosed 时表示正常关闭
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP 服务启动失败", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

// GracefulShutdown 等待系统信号或服务异常退出，然后在超时内等待所有服务关闭
func GracefulShutdown(ctx context.Context, cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group) error {
	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info(fmt.Sprintf("接收到系统信号: %v，开始优雅关闭服务", sig))
	case <-ctx.Done():
		logger.Warn("服务异常退出，开始关闭")
	}

	// 取消上下文，通知所有服务开始关闭
	cancel()

	// 等待所有服务关闭，设置超时保护
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("服务关闭过程中出现错误", err)
			return err
		}
		logger.Info("所有服务已优雅关闭")
		return nil
	case <-time.After(15 * time.Second):
		logger.Error("服务关闭超时，强制退出")
		return fmt.Errorf("服务关闭超时")
	}
}
