package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tetris-agent-go/src/core/auth"
	"tetris-agent-go/src/core/mcp"
	"tetris-agent-go/src/core/tools"
	"tetris-agent-go/src/core/utils"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务（/api/tetris/*, /metrics）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, logger, err := LoadConfigAndLogger(cmd)
			if err != nil {
				return err
			}
			app, err := NewApp(config, logger)
			if err != nil {
				logger.Error("初始化失败", err)
				return err
			}
			defer app.Close()

			// 创建可取消的上下文
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// 用 errgroup 管理服务
			g, groupCtx := errgroup.WithContext(ctx)
			if _, err := StartHttpServer(app, g, groupCtx); err != nil {
				return fmt.Errorf("启动 Http 服务失败: %w", err)
			}

			// 启动优雅关机处理
			if err := GracefulShutdown(groupCtx, cancel, logger, g); err != nil {
				return err
			}
			logger.Info("程序已成功退出")
			return nil
		},
	}
}

func newMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "通过标准输入输出提供 MCP 工具服务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, _, err := loadConfig(cmd, true)
			if err != nil {
				return err
			}
			// 标准输出被协议占用，日志只能写到 stderr
			logger := utils.NewWriterLogger(os.Stderr, config.Log.LogLevel)
			app, err := NewApp(config, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			server, err := mcp.NewServer(app.Client, version)
			if err != nil {
				return err
			}
			logger.Info("MCP stdio 服务已启动", map[string]interface{}{"tools": len(app.Client.Tools())})
			return mcp.ServeStdio(server)
		},
	}
}

func newVisionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vision <截图路径或URL>",
		Short: "分析一张游戏截图并输出结构化结果",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detailLevel, _ := cmd.Flags().GetString("detail-level")
			return runTool(cmd, tools.VisionToolName, map[string]interface{}{
				"image_input":  args[0],
				"detail_level": detailLevel,
			})
		},
	}
	cmd.Flags().StringP("detail-level", "d", "", "分析详细程度 (basic, detailed, expert)")
	return cmd
}

func newStrategyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy <游戏状态JSON文件，- 表示标准输入>",
		Short: "根据游戏状态生成策略建议",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			difficulty, _ := cmd.Flags().GetString("difficulty")
			nextPieces, _ := cmd.Flags().GetInt("next-pieces")
			return runTool(cmd, tools.StrategyToolName, map[string]interface{}{
				"game_state":  state,
				"difficulty":  difficulty,
				"next_pieces": nextPieces,
			})
		},
	}
	cmd.Flags().String("difficulty", tools.DefaultDifficulty, "难度级别 (beginner, intermediate, advanced)")
	cmd.Flags().Int("next-pieces", tools.DefaultNextPieces, "考虑的未来方块数量")
	return cmd
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <设备ID>",
		Short: "为设备签发 HTTP 接口使用的 Bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, _, err := loadConfig(cmd, false)
			if err != nil {
				return err
			}
			at, err := auth.NewAuthToken(config.Server.Token)
			if err != nil {
				return fmt.Errorf("server.token 未配置: %w", err)
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			at.SetTTL(ttl)

			token, err := at.GenerateToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", auth.DefaultTokenTTL, "有效期")
	return cmd
}

// runTool 单次调用工具并把结果以 JSON 打印到标准输出
func runTool(cmd *cobra.Command, name string, args map[string]interface{}) error {
	config, _, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	logger := utils.NewWriterLogger(cmd.ErrOrStderr(), config.Log.LogLevel)
	app, err := NewApp(config, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	result, err := app.Client.CallTool(ctx, name, args)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), utils.PrettyJSON(result))
	if env, ok := result.(tools.Envelope); ok && !env.IsSuccess() {
		return fmt.Errorf("%s: %s", env.Reason(), env.Message())
	}
	return nil
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("读取游戏状态失败: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
