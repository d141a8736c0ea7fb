package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version 构建时通过 -ldflags 注入
var version = "dev"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tetris-agent",
		Short:         "俄罗斯方块截图分析与策略建议工具服务",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "配置文件路径，默认依次查找 .config.yaml 和 config.yaml")

	root.AddCommand(
		newServeCommand(),
		newMCPCommand(),
		newVisionCommand(),
		newStrategyCommand(),
		newTokenCommand(),
	)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}
