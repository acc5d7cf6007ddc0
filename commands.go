package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/any-hub/md-hub/internal/content"
	"github.com/any-hub/md-hub/internal/logging"
)

func newImportCmd(configPath func() string) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import Markdown files with YAML front matter into the content store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				return failWith(2, "--dir 不能为空")
			}
			return withRuntime(cmd.Context(), configPath(), func(ctx context.Context, rt *appRuntime) error {
				result, err := content.ImportDir(ctx, rt.docs, dir)
				if err != nil {
					return failWith(1, "导入失败: %v", err)
				}
				fields := logging.BaseFields("import", rt.configPath)
				fields["dir"] = dir
				fields["created"] = result.Created
				fields["updated"] = result.Updated
				fields["skipped"] = len(result.Skipped)
				rt.logger.WithFields(fields).Info("导入完成")
				return writeJSON(cmd, result)
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "包含 .md 文件的目录")
	return cmd
}

func newCacheCmd(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the generated Markdown cache",
	}

	var limit int
	warmCmd := &cobra.Command{
		Use:   "warm",
		Short: "Generate Markdown for the most recently modified documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return failWith(2, "--limit 必须大于 0")
			}
			return withRuntime(cmd.Context(), configPath(), func(ctx context.Context, rt *appRuntime) error {
				report, err := rt.manager.Warm(ctx, limit)
				if err != nil {
					return failWith(1, "预热失败: %v", err)
				}
				return writeJSON(cmd, report)
			})
		},
	}
	warmCmd.Flags().IntVar(&limit, "limit", 10, "预热的文档数量")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached Markdown entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), configPath(), func(ctx context.Context, rt *appRuntime) error {
				if err := rt.manager.ClearAll(ctx); err != nil {
					return failWith(1, "清空缓存失败: %v", err)
				}
				rt.logger.WithFields(logging.BaseFields("cache_clear", rt.configPath)).Info("缓存已清空")
				return writeJSON(cmd, map[string]bool{"cleared": true})
			})
		},
	}

	cmd.AddCommand(warmCmd, clearCmd)
	return cmd
}

// withRuntime 为一次性子命令构建运行时，结束后释放连接。
func withRuntime(ctx context.Context, configPath string, fn func(ctx context.Context, rt *appRuntime) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := loadRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	if err := fn(ctx, rt); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return err
		}
		return failWith(1, "%v", err)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
