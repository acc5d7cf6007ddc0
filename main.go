package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/any-hub/md-hub/internal/config"
	"github.com/any-hub/md-hub/internal/logging"
	"github.com/any-hub/md-hub/internal/version"
)

// configEnvKey 覆盖默认配置路径，优先级低于 --config。
const configEnvKey = "MD_HUB_CONFIG"

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

// exitError 携带子命令希望返回的退出码。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func failWith(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute 构建命令树并运行，返回退出码，方便测试。
func execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdOut)
	root.SetErr(stdErr)

	err := root.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintln(stdErr, err.Error())

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	// cobra 自身的参数/子命令错误。
	return 2
}

func newRootCmd() *cobra.Command {
	var configFlag string

	root := &cobra.Command{
		Use:           "md-hub",
		Short:         "Serve Markdown versions of site content alongside HTML pages",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Full(),
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configFlag))
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 "+configEnvKey+" 覆盖）")

	configPath := func() string { return resolveConfigPath(configFlag) }
	root.AddCommand(
		newServeCmd(configPath),
		newCheckConfigCmd(configPath),
		newVersionCmd(),
		newImportCmd(configPath),
		newCacheCmd(configPath),
	)
	return root
}

// resolveConfigPath 按 flag → 环境变量 → 默认值的顺序确定配置路径。
func resolveConfigPath(flagValue string) string {
	if path := strings.TrimSpace(flagValue); path != "" {
		return path
	}
	if path := strings.TrimSpace(os.Getenv(configEnvKey)); path != "" {
		return path
	}
	return "config.toml"
}

func newCheckConfigCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration file and exit",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := configPath()
			cfg, err := config.Load(path)
			if err != nil {
				return failWith(1, "加载配置失败: %v", err)
			}
			logger, err := logging.InitLogger(cfg.Global)
			if err != nil {
				return failWith(1, "初始化日志失败: %v", err)
			}

			snap := cfg.Snapshot()
			fields := logging.BaseFields("check_config", path)
			fields["enabled_types"] = snap.EnabledTypes
			fields["renderer"] = cfg.Global.RendererMode
			fields["redis"] = cfg.Global.RedisEnabled()
			fields["result"] = "ok"
			name, homeErr := snap.HomepageFilename()
			fields["homepage_filename"] = name
			if homeErr != nil {
				logger.WithFields(fields).WithError(homeErr).Warn("首页模式无效，已回退为 index.md")
				return nil
			}
			logger.WithFields(fields).Info("配置校验通过")
			return nil
		},
	}
}
